// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	rulesActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qualisight",
		Subsystem: "rules",
		Name:      "active",
		Help:      "Number of rules in the active snapshot",
	})

	rulesRejectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qualisight",
		Subsystem: "rules",
		Name:      "rejected",
		Help:      "Number of rules rejected at load time",
	})

	rulesReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualisight",
		Subsystem: "rules",
		Name:      "reload_total",
		Help:      "Total snapshot reloads by outcome",
	}, []string{"outcome"})
)

var storeTracer = otel.Tracer("qualisight.inspect.rules")

// =============================================================================
// Snapshot Types
// =============================================================================

// CompiledRule is an active rule plus its precomputed expanded trigger set.
//
// The expansion is computed once at snapshot build time (rules change only on
// reload), so matching never pays the expansion cost per request.
type CompiledRule struct {
	// Rule is the validated, immutable rule definition.
	Rule IntentRule

	// ExpandedTriggers is the distinct, sorted trigger ∪ synonym set.
	ExpandedTriggers []string
}

// RejectedRule records a rule excluded at load time and why, for the
// authoring tool to surface. Rejected rules never participate in matching.
type RejectedRule struct {
	Rule   IntentRule `json:"rule"`
	Reason string     `json:"reason"`
}

// Snapshot is one immutable, versioned view of the rule library.
//
// # Description
//
// A snapshot is built in full, then published by a single atomic pointer
// swap. In-flight requests keep the snapshot they started with, so readers
// never observe a partially-updated rule set and never block.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Snapshot struct {
	// Version is the snapshot token: sequence number plus content hash.
	Version string

	// Active holds the compiled rules usable for matching, sorted by ID.
	Active []CompiledRule

	// Rejected holds load-time rejections with reasons.
	Rejected []RejectedRule

	// LoadedAt is when the snapshot was built.
	LoadedAt time.Time
}

// =============================================================================
// Rule Source
// =============================================================================

// Source loads the full rule library from persistent storage.
//
// Implementations: YAML file or embedded default library, and the
// intent_rules table in the backing store. The administration API owns
// writes; this interface is read-only.
type Source interface {
	// LoadRules returns every authored rule, active and inactive alike.
	LoadRules(ctx context.Context) ([]IntentRule, error)

	// Describe names the source for logging.
	Describe() string
}

// =============================================================================
// Store
// =============================================================================

// Store holds the current rule snapshot and rebuilds it on demand.
//
// # Description
//
// Load validates every rule, partitions the set into active and rejected,
// precomputes trigger expansion, and publishes the result with an atomic
// pointer swap. A failed load keeps the previous snapshot in place — the
// engine never serves a half-loaded library.
//
// # Thread Safety
//
// Safe for concurrent use. Snapshot readers never block; Load serializes
// concurrent reloads with a mutex.
type Store struct {
	source            Source
	minTriggerRuneLen int
	logger            *slog.Logger

	current atomic.Pointer[Snapshot]
	loadMu  sync.Mutex
	loadSeq atomic.Int64
}

// NewStore creates a rule store reading from the given source.
//
// # Inputs
//
//   - source: Rule source. Must not be nil.
//   - minTriggerRuneLen: Minimum trigger word rune length; <= 1 disables the
//     screen (legacy-compatible).
//   - logger: Logger. May be nil (defaults to slog.Default()).
//
// # Outputs
//
//   - *Store: The store. Call Load before serving requests.
func NewStore(source Source, minTriggerRuneLen int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source:            source,
		minTriggerRuneLen: minTriggerRuneLen,
		logger:            logger,
	}
}

// Snapshot returns the current immutable snapshot, or nil before the first
// successful Load.
//
// # Thread Safety
//
// Safe for concurrent use; lock-free read.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load rebuilds the snapshot from the source and swaps it in atomically.
//
// # Description
//
// Every rule is validated; inactive rules are skipped silently, invalid
// rules are recorded in Rejected with the failing invariant. On source
// failure the previous snapshot stays published and the error is returned.
//
// # Inputs
//
//   - ctx: Context for the source read. Must not be nil.
//
// # Outputs
//
//   - error: Non-nil when the source read fails. Validation failures are
//     not errors; they land in Snapshot.Rejected.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent loads are serialized.
func (s *Store) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ctx, span := storeTracer.Start(ctx, "rules.Store.Load")
	defer span.End()

	loaded, err := s.source.LoadRules(ctx)
	if err != nil {
		rulesReloadTotal.WithLabelValues("source_error").Inc()
		span.RecordError(err)
		return fmt.Errorf("loading rules from %s: %w", s.source.Describe(), err)
	}

	snap := buildSnapshot(loaded, s.minTriggerRuneLen, s.loadSeq.Add(1))
	s.current.Store(snap)

	rulesActiveGauge.Set(float64(len(snap.Active)))
	rulesRejectedGauge.Set(float64(len(snap.Rejected)))
	rulesReloadTotal.WithLabelValues("success").Inc()

	span.SetAttributes(
		attribute.Int("rules.active", len(snap.Active)),
		attribute.Int("rules.rejected", len(snap.Rejected)),
		attribute.String("rules.version", snap.Version),
	)

	s.logger.Info("rule snapshot published",
		slog.String("source", s.source.Describe()),
		slog.String("version", snap.Version),
		slog.Int("active", len(snap.Active)),
		slog.Int("rejected", len(snap.Rejected)),
	)
	for _, rej := range snap.Rejected {
		s.logger.Warn("rule rejected at load time",
			slog.Int64("rule_id", rej.Rule.ID),
			slog.String("rule_name", rej.Rule.Name),
			slog.String("reason", rej.Reason),
		)
	}
	return nil
}

// buildSnapshot validates, partitions, compiles, and versions a rule set.
func buildSnapshot(loaded []IntentRule, minTriggerRuneLen int, seq int64) *Snapshot {
	snap := &Snapshot{
		Active:   make([]CompiledRule, 0, len(loaded)),
		Rejected: make([]RejectedRule, 0),
		LoadedAt: time.Now(),
	}

	hasher := sha256.New()
	for i := range loaded {
		rule := loaded[i]
		fmt.Fprintf(hasher, "%d|%s|%s|%s|%d\n", rule.ID, rule.Name, rule.ActionTarget, rule.Status, rule.Priority)

		if !rule.IsActive() {
			continue
		}
		if res := ValidateRule(&rule, minTriggerRuneLen); !res.OK {
			snap.Rejected = append(snap.Rejected, RejectedRule{Rule: rule, Reason: res.Reason})
			continue
		}
		snap.Active = append(snap.Active, CompiledRule{
			Rule:             rule,
			ExpandedTriggers: ExpandTriggers(&rule),
		})
	}

	// Deterministic order: matching iterates in ID order so the smallest-ID
	// tie break falls out of the scan naturally.
	sort.Slice(snap.Active, func(i, j int) bool {
		return snap.Active[i].Rule.ID < snap.Active[j].Rule.ID
	})

	sum := hasher.Sum(nil)
	snap.Version = fmt.Sprintf("%d-%s", seq, hex.EncodeToString(sum[:4]))
	return snap
}
