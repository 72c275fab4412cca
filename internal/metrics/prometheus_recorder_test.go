package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncIngestOutcome("stored")
	pr.IncIngestOutcome("stored")
	pr.IncIngestOutcome("unknown_schema")
	pr.IncEventRecorded("iam.user-registered", "iam-service")
	pr.ObserveProcessing(15 * time.Millisecond)
	pr.SetConsumerRunning(true)

	require.Equal(t, float64(2), testutil.ToFloat64(pr.ingestMessages.WithLabelValues("stored")))
	require.Equal(t, float64(1), testutil.ToFloat64(pr.ingestMessages.WithLabelValues("unknown_schema")))
	require.Equal(t, float64(1), testutil.ToFloat64(pr.eventsRecorded.WithLabelValues("iam.user-registered", "iam-service")))
	require.Equal(t, float64(1), testutil.ToFloat64(pr.consumerRunning))

	pr.SetConsumerRunning(false)
	require.Equal(t, float64(0), testutil.ToFloat64(pr.consumerRunning))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 4)
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.IncIngestOutcome("stored")
		pr.IncEventRecorded("a", "b")
		pr.ObserveProcessing(time.Second)
		pr.SetConsumerRunning(true)
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncIngestOutcome("invalid_json")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `analytics_ingest_messages_total{outcome="invalid_json"} 1`)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	require.NotPanics(t, func() {
		r.IncIngestOutcome("stored")
		r.SetConsumerRunning(true)
	})
}
