// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability holds the Prometheus metrics and the OpenTelemetry
// tracer setup shared across the server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recapd/recapd/pkg/pipeline"
)

// Metrics bundles the service counters and histograms over one registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	CacheEvents   *prometheus.CounterVec
	RateLimited   prometheus.Counter
	Questions     *prometheus.CounterVec
}

// NewMetrics creates the metric set on a fresh registry, with the standard
// Go and process collectors included.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recapd_runs_total",
			Help: "Summarization runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recapd_stage_duration_seconds",
			Help:    "Pipeline stage wall time by stage and status.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage", "status"}),
		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recapd_cache_events_total",
			Help: "Result cache activity: hit, miss, join.",
		}, []string{"event"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "recapd_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		Questions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recapd_questions_total",
			Help: "Answered questions by confidence band.",
		}, []string{"confidence"}),
	}
}

var (
	_ pipeline.StageObserver = (*Metrics)(nil)
	_ pipeline.CacheObserver = (*Metrics)(nil)
)

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, status pipeline.StageStatus, seconds float64) {
	m.StageDuration.WithLabelValues(stage, string(status)).Observe(seconds)
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(mode pipeline.Mode, outcome string) {
	m.RunsTotal.WithLabelValues(string(mode), outcome).Inc()
}

// ObserveCache records one cache event: hit, miss, or join.
func (m *Metrics) ObserveCache(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
