// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the insights
// service: ask request counters by mode and status, fallback and guard
// rejection counters, and branch latency histograms.
//
// Metrics are exposed via /metrics. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"
const insightsSubsystem = "insights"

// AskMetrics holds the Prometheus instruments for ask operations.
// Initialize once at startup via NewAskMetrics().
type AskMetrics struct {
	// AsksTotal counts ask requests.
	// Labels: mode_used (tabular, pattern), status (success, error)
	AsksTotal *prometheus.CounterVec

	// FallbacksTotal counts cross-mode fallbacks.
	// Labels: from, to
	FallbacksTotal *prometheus.CounterVec

	// GuardRejectionsTotal counts safety guard rejections.
	// Labels: dialect (sql, cypher)
	GuardRejectionsTotal *prometheus.CounterVec

	// AskDurationSeconds measures end-to-end ask latency.
	// Labels: mode_used, status
	AskDurationSeconds *prometheus.HistogramVec
}

var defaultMetrics *AskMetrics

// NewAskMetrics registers the instruments with the default registry.
func NewAskMetrics() *AskMetrics {
	return &AskMetrics{
		AsksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: insightsSubsystem,
			Name:      "asks_total",
			Help:      "Total ask requests by mode and status.",
		}, []string{"mode_used", "status"}),

		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: insightsSubsystem,
			Name:      "fallbacks_total",
			Help:      "Cross-mode fallbacks by source and target mode.",
		}, []string{"from", "to"}),

		GuardRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: insightsSubsystem,
			Name:      "guard_rejections_total",
			Help:      "Safety guard rejections by dialect.",
		}, []string{"dialect"}),

		AskDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: insightsSubsystem,
			Name:      "ask_duration_seconds",
			Help:      "End-to-end ask latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"mode_used", "status"}),
	}
}

// InitMetrics initializes the package-level metrics once.
func InitMetrics() {
	if defaultMetrics == nil {
		defaultMetrics = NewAskMetrics()
	}
}

// Metrics returns the package-level instruments, or nil before InitMetrics.
func Metrics() *AskMetrics {
	return defaultMetrics
}
