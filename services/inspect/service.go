// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inspect exposes the quality-inspection query service: a
// natural-language question comes in, a deterministic rule pipeline
// (normalize, match, extract, execute, assemble) produces a structured
// answer envelope for the dashboard.
package inspect

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qualisight/qualisight/services/inspect/engine"
	"github.com/qualisight/qualisight/services/inspect/rules"
)

var tracer = otel.Tracer("qualisight.inspect")

// Service runs the query answering pipeline.
//
// # Description
//
// The pipeline is strictly staged: normalization, answer-cache lookup,
// matching, parameter extraction, execution, result normalization, and
// assembly. Every stage is deterministic; the same query against the same
// rule snapshot and data always produces the same envelope.
//
// # Thread Safety
//
// Safe for concurrent use. The rule store hands out immutable snapshots
// and every stage below it is either pure or internally synchronized.
type Service struct {
	store     *rules.Store
	extractor *engine.Extractor
	executor  *engine.Executor
	cache     engine.AnswerCache
	logger    *slog.Logger
}

// NewService wires the pipeline stages together.
//
// # Inputs
//
//   - store: Rule store. Must not be nil.
//   - extractor: Parameter extractor. Must not be nil.
//   - executor: Query executor. Must not be nil.
//   - cache: Answer cache. May be nil to disable caching.
//   - logger: Logger. May be nil.
func NewService(store *rules.Store, extractor *engine.Extractor, executor *engine.Executor, cache engine.AnswerCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		extractor: extractor,
		executor:  executor,
		cache:     cache,
		logger:    logger,
	}
}

// Answer runs the full pipeline for one query.
//
// # Description
//
// NoMatch and executor failures are mapped to well-formed envelopes, never
// errors: the caller always receives a renderable response. Only successful
// executions are cached; no-match and failure envelopes are cheap to
// rebuild and must reflect the live rule set.
//
// # Outputs
//
//   - *engine.Envelope: The response envelope. Never nil.
//
// # Thread Safety
//
// Safe for concurrent use.
func (s *Service) Answer(ctx context.Context, query string) *engine.Envelope {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "inspect.Answer")
	defer span.End()

	normalized := engine.NormalizeQuery(query)
	if normalized == "" {
		span.SetAttributes(attribute.String("outcome", "empty"))
		return engine.AssembleNoMatch(time.Since(start).Milliseconds())
	}

	snap := s.store.Snapshot()
	if snap == nil {
		s.logger.Warn("query before first rule load")
		span.SetStatus(codes.Error, "no rule snapshot")
		return engine.AssembleNoMatch(time.Since(start).Milliseconds())
	}
	span.SetAttributes(attribute.String("snapshot_version", snap.Version))

	if cached := s.cacheGet(snap.Version, normalized); cached != nil {
		span.SetAttributes(attribute.String("outcome", "cache_hit"))
		cached.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
		return cached
	}

	candidate, ok := engine.Match(ctx, normalized, snap)
	if !ok {
		span.SetAttributes(attribute.String("outcome", "no_match"))
		return engine.AssembleNoMatch(time.Since(start).Milliseconds())
	}
	rule := &candidate.Rule.Rule
	span.SetAttributes(
		attribute.Int64("rule_id", rule.ID),
		attribute.Float64("confidence", candidate.Confidence),
	)

	params := s.extractor.Extract(ctx, normalized, rule)

	exec, err := s.executor.Execute(ctx, rule, params)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("outcome", "failure"))
		return engine.AssembleFailure(err, time.Since(start).Milliseconds())
	}

	table := engine.NormalizeRows(rule, exec.Rows)
	env := engine.AssembleSuccess(candidate, table, exec, time.Since(start).Milliseconds())

	s.cachePut(snap.Version, normalized, env)

	span.SetAttributes(
		attribute.String("outcome", "success"),
		attribute.Int("rows", len(table)),
	)
	s.logger.Info("query answered",
		slog.Int64("rule_id", rule.ID),
		slog.Int("rows", len(table)),
		slog.Bool("truncated", exec.Truncated),
		slog.Int64("elapsed_ms", env.Metadata.ProcessingTimeMs),
	)
	return env
}

// Reload triggers an explicit rule reload and returns the live snapshot.
// On load failure the previous snapshot stays live and the error is
// returned for the caller to surface.
func (s *Service) Reload(ctx context.Context) (*rules.Snapshot, error) {
	if err := s.store.Load(ctx); err != nil {
		return s.store.Snapshot(), err
	}
	return s.store.Snapshot(), nil
}

// RuleSnapshot returns the current immutable rule snapshot, nil before the
// first successful load.
func (s *Service) RuleSnapshot() *rules.Snapshot {
	return s.store.Snapshot()
}

// cacheGet is a nil-safe, failure-tolerant cache read. Cache errors are
// logged and treated as misses.
func (s *Service) cacheGet(version, normalized string) *engine.Envelope {
	if s.cache == nil {
		return nil
	}
	env, err := s.cache.Get(version, normalized)
	if err != nil {
		s.logger.Warn("answer cache read failed", slog.String("error", err.Error()))
		return nil
	}
	return env
}

// cachePut is a nil-safe, failure-tolerant cache write.
func (s *Service) cachePut(version, normalized string, env *engine.Envelope) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(version, normalized, env); err != nil {
		s.logger.Warn("answer cache write failed", slog.String("error", err.Error()))
	}
}
