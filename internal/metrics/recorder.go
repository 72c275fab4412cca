// Package metrics exposes ingestion observability hooks.
package metrics

import "time"

// Recorder receives ingestion metrics. Implementations must tolerate nil receivers
// so callers can leave the recorder unset.
type Recorder interface {
	// IncIngestOutcome counts one processed stream message by outcome.
	IncIngestOutcome(outcome string)
	// IncEventRecorded counts one persisted event.
	IncEventRecorded(eventType, source string)
	// ObserveProcessing records how long one message took end to end.
	ObserveProcessing(d time.Duration)
	// SetConsumerRunning flags whether the ingestion loop is running.
	SetConsumerRunning(running bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) IncIngestOutcome(string)         {}
func (NoopRecorder) IncEventRecorded(string, string) {}
func (NoopRecorder) ObserveProcessing(time.Duration) {}
func (NoopRecorder) SetConsumerRunning(bool)         {}
