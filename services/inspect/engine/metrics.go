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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	matchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qualisight",
		Subsystem: "matcher",
		Name:      "latency_seconds",
		Help:      "Intent matching latency",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	matchOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualisight",
		Subsystem: "matcher",
		Name:      "outcome_total",
		Help:      "Match outcomes (matched / no_match)",
	}, []string{"outcome"})

	executorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qualisight",
		Subsystem: "executor",
		Name:      "latency_seconds",
		Help:      "Template query execution latency by outcome",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 5},
	}, []string{"outcome"})

	executorOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualisight",
		Subsystem: "executor",
		Name:      "outcome_total",
		Help:      "Execution outcomes (success / timeout / error / unresolved / busy)",
	}, []string{"outcome"})

	answerCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualisight",
		Subsystem: "answer_cache",
		Name:      "lookup_total",
		Help:      "Answer cache lookups (hit / miss / error)",
	}, []string{"outcome"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("qualisight.inspect.engine")
