package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/recapd/recapd/pkg/pipeline"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.ObserveRun(pipeline.ModeQuick, "completed")
	m.ObserveRun(pipeline.ModeQuick, "completed")
	m.ObserveStage(pipeline.StageExtract, pipeline.StageCompleted, 0.2)
	m.CacheEvents.WithLabelValues("hit").Inc()
	m.RateLimited.Inc()
	m.Questions.WithLabelValues("high").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("quick", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvents.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveRun(pipeline.ModeStandard, "failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "recapd_runs_total")
}
