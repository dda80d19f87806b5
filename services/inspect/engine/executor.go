// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// Executor defaults. Every template runs under a row cap and a timeout; the
// semaphore bounds concurrent backing-store calls so load sheds as queueing
// instead of unbounded query fan-out.
const (
	DefaultRowCap        = 100
	DefaultQueryTimeout  = 3 * time.Second
	DefaultMaxConcurrent = 16
)

// errBusy marks executions shed at the concurrency gate: the caller's
// context expired before a slot freed.
var errBusy = errors.New("executor busy")

// QueryRunner is the backing data store boundary. *sql.DB satisfies it.
// Placeholders are bound through the driver's native mechanism — there is
// no code path that concatenates extracted text into the query string.
type QueryRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DatasetProvider resolves MEMORY_SOURCE action targets to named in-memory
// datasets.
type DatasetProvider interface {
	// Dataset returns the rows for a named dataset and whether it exists.
	Dataset(name string) ([]map[string]any, bool)
}

// QueryExecutionResult is the raw outcome of one execution.
type QueryExecutionResult struct {
	// Rows holds at most the configured row cap, in store order.
	Rows []map[string]any

	// Truncated is true when the store had more rows than the cap. Never
	// hidden from the caller.
	Truncated bool

	// ElapsedMs is the execution wall time.
	ElapsedMs int64
}

// ExecutorConfig bounds execution resources.
type ExecutorConfig struct {
	// RowCap limits rows per execution. <= 0 selects DefaultRowCap.
	RowCap int

	// Timeout is the per-execution budget. <= 0 selects DefaultQueryTimeout.
	Timeout time.Duration

	// MaxConcurrent bounds in-flight backing-store calls. <= 0 selects
	// DefaultMaxConcurrent.
	MaxConcurrent int64
}

// Executor binds extracted parameters into a rule's template and runs it
// under the resource limits.
//
// # Description
//
// Before binding, every parameter's Unresolved flag is checked: an
// unresolved value falls back to the parameter's declared safe default, or
// execution is refused with UnresolvedParameterError. MEMORY_SOURCE rules
// resolve through the dataset provider instead of the store, under the same
// row-cap and timeout discipline.
//
// # Thread Safety
//
// Safe for concurrent use. The semaphore provides backpressure: callers
// queue until a slot frees or their context expires.
type Executor struct {
	runner   QueryRunner
	datasets DatasetProvider
	sem      *semaphore.Weighted
	cfg      ExecutorConfig
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given backing store and dataset
// provider.
//
// # Inputs
//
//   - runner: Backing store handle. Must not be nil.
//   - datasets: MEMORY_SOURCE dataset provider. May be nil when no memory
//     rules are authored.
//   - cfg: Resource limits; zero values select the defaults.
//   - logger: Logger. May be nil.
func NewExecutor(runner QueryRunner, datasets DatasetProvider, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.RowCap <= 0 {
		cfg.RowCap = DefaultRowCap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQueryTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner:   runner,
		datasets: datasets,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs the rule's action with the extracted parameters.
//
// # Outputs
//
//   - *QueryExecutionResult: Rows (capped), truncation flag, elapsed time.
//   - error: *UnresolvedParameterError before any binding when a filtering
//     parameter is unresolved with no safe default; *TimeoutError when the
//     budget is exceeded; *ExecutionError for backing-store failures.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, rule *rules.IntentRule, params ExtractedParameters) (*QueryExecutionResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "engine.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("rule_id", rule.ID),
		attribute.String("action_type", string(rule.ActionType)),
	)

	args, err := e.bindArgs(rule, params)
	if err != nil {
		executorOutcomeTotal.WithLabelValues("unresolved").Inc()
		span.SetStatus(codes.Error, "unresolved parameter")
		return nil, err
	}

	var result *QueryExecutionResult
	if rule.ActionType == rules.ActionMemorySource {
		result, err = e.executeMemory(ctx, rule)
	} else {
		result, err = e.executeTemplate(ctx, rule, args)
	}

	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		var te *TimeoutError
		switch {
		case errors.As(err, &te):
			outcome = "timeout"
		case errors.Is(err, errBusy):
			outcome = "busy"
		}
		executorOutcomeTotal.WithLabelValues(outcome).Inc()
		executorLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	result.ElapsedMs = elapsed.Milliseconds()
	executorOutcomeTotal.WithLabelValues("success").Inc()
	executorLatency.WithLabelValues("success").Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("rows", len(result.Rows)),
		attribute.Bool("truncated", result.Truncated),
	)
	return result, nil
}

// bindArgs converts extracted parameters into bind arguments, applying safe
// defaults and refusing unresolved filters.
func (e *Executor) bindArgs(rule *rules.IntentRule, params ExtractedParameters) ([]any, error) {
	args := make([]any, 0, len(params.Values))
	for i, pv := range params.Values {
		if !pv.Unresolved {
			args = append(args, pv.Value)
			continue
		}
		if i < len(rule.Parameters) && rule.Parameters[i].Default != "" {
			args = append(args, rule.Parameters[i].Default)
			continue
		}
		desc := ""
		if i < len(rule.Parameters) {
			desc = rule.Parameters[i].Description
		}
		return nil, &UnresolvedParameterError{RuleID: rule.ID, Parameter: pv.Name, Description: desc}
	}
	return args, nil
}

// executeTemplate runs a parameterized template against the backing store.
func (e *Executor) executeTemplate(ctx context.Context, rule *rules.IntentRule, args []any) (*QueryExecutionResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, &ExecutionError{RuleID: rule.ID, Err: fmt.Errorf("%w: %v", errBusy, err)}
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	rows, err := e.runner.QueryContext(ctx, rule.ActionTarget, args...)
	if err != nil {
		return nil, e.classify(ctx, rule, err)
	}
	defer rows.Close()

	result, err := e.scanRows(rows)
	if err != nil {
		return nil, e.classify(ctx, rule, err)
	}
	return result, nil
}

// scanRows reads rows up to the cap into generic maps and probes one row
// further to detect truncation.
func (e *Executor) scanRows(rows *sql.Rows) (*QueryExecutionResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryExecutionResult{Rows: make([]map[string]any, 0, 16)}
	for rows.Next() {
		if len(result.Rows) >= e.cfg.RowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// executeMemory resolves a MEMORY_SOURCE rule through the dataset provider.
func (e *Executor) executeMemory(ctx context.Context, rule *rules.IntentRule) (*QueryExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.classify(ctx, rule, err)
	}
	if e.datasets == nil {
		return nil, &ExecutionError{RuleID: rule.ID, Err: errors.New("no dataset provider configured")}
	}
	data, ok := e.datasets.Dataset(rule.ActionTarget)
	if !ok {
		return nil, &ExecutionError{RuleID: rule.ID, Err: errors.New("unknown dataset " + rule.ActionTarget)}
	}

	result := &QueryExecutionResult{}
	if len(data) > e.cfg.RowCap {
		result.Truncated = true
		data = data[:e.cfg.RowCap]
	}
	// Copy so callers can never mutate the shared dataset.
	result.Rows = make([]map[string]any, len(data))
	for i, row := range data {
		record := make(map[string]any, len(row))
		for k, v := range row {
			record[k] = v
		}
		result.Rows[i] = record
	}
	return result, nil
}

// classify maps a low-level failure onto the executor error taxonomy.
func (e *Executor) classify(ctx context.Context, rule *rules.IntentRule, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("query execution timed out",
			slog.Int64("rule_id", rule.ID),
			slog.Duration("budget", e.cfg.Timeout),
		)
		return &TimeoutError{RuleID: rule.ID, Budget: e.cfg.Timeout}
	}
	e.logger.Error("query execution failed",
		slog.Int64("rule_id", rule.ID),
		slog.String("error", err.Error()),
	)
	return &ExecutionError{RuleID: rule.ID, Err: err}
}
