package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "analytics"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	ingestMessages  *prom.CounterVec
	eventsRecorded  *prom.CounterVec
	processing      prom.Histogram
	consumerRunning prom.Gauge
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		ingestMessages: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Stream messages processed, by outcome",
		}, []string{"outcome"}),
		eventsRecorded: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Canonical events persisted, by event type and source",
		}, []string{"event_type", "source"}),
		processing: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_processing_seconds",
			Help:      "Time to decode, classify, validate and persist one message",
			Buckets:   prom.DefBuckets,
		}),
		consumerRunning: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_running",
			Help:      "1 while the stream consumer is running",
		}),
	}
	reg.MustRegister(pr.ingestMessages, pr.eventsRecorded, pr.processing, pr.consumerRunning)
	return pr
}

func (p *PrometheusRecorder) IncIngestOutcome(outcome string) {
	if p == nil {
		return
	}
	p.ingestMessages.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncEventRecorded(eventType, source string) {
	if p == nil {
		return
	}
	p.eventsRecorded.WithLabelValues(eventType, source).Inc()
}

func (p *PrometheusRecorder) ObserveProcessing(d time.Duration) {
	if p == nil {
		return
	}
	p.processing.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetConsumerRunning(running bool) {
	if p == nil {
		return
	}
	if running {
		p.consumerRunning.Set(1)
		return
	}
	p.consumerRunning.Set(0)
}

// HTTPHandler serves the metrics gathered by reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
