package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordPipelineEvents(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveChunk("ok", 3, 2*time.Second)
	m.ObserveChunk("exhausted", 1, time.Second)
	m.ObserveRisks(map[string]int{"high": 2, "low": 1}, 1)
	m.ObserveJobFinished("failed", "timeout", time.Minute)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.chunkOutcomes.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.chunkRetries))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.risksEmitted.WithLabelValues("high")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.risksDeduped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed", "timeout")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveModelCall("embed", "ok", time.Millisecond)
	m.WorkerBusy(1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.ObserveSubmission("accepted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `riskreview_review_submissions_total{outcome="accepted"} 1`))
}
