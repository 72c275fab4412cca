package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/classifier"
	"github.com/aevon-lab/analytics/internal/metrics"
	"github.com/aevon-lab/analytics/internal/stream"
)

// Outcome is the result of processing one stream message.
type Outcome string

const (
	OutcomeStored               Outcome = "stored"
	OutcomeInvalidJSON          Outcome = "invalid_json"
	OutcomeUnknownSchema        Outcome = "unknown_schema"
	OutcomeClassificationFailed Outcome = "classification_failed"
	OutcomeInvalidCommand       Outcome = "invalid_command"
	OutcomePersistFailed        Outcome = "persist_failed"
)

// State is the consumer lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// DefaultBackoff is the pause after a transport error or a recovered panic.
const DefaultBackoff = 2 * time.Second

// ConsumerConfig holds the consumer's settings.
type ConsumerConfig struct {
	// Backoff is the pause after a transport error or panic. Zero means DefaultBackoff.
	Backoff time.Duration
}

// Consumer drains a stream, turning each message into a stored event.
//
// Every message is acknowledged once Process returns, whatever the outcome, so
// a message whose write failed is not redelivered. The exception is a write
// interrupted by Stop: that message is left unacknowledged.
type Consumer struct {
	stream     stream.Stream
	classifier *classifier.Classifier
	service    *Service
	recorder   metrics.Recorder
	backoff    time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan stream.Subscription
}

// NewConsumer wires a consumer. The service's recorder is reused for loop metrics.
func NewConsumer(s stream.Stream, c *classifier.Classifier, svc *Service, cfg ConsumerConfig) *Consumer {
	if s == nil {
		panic("ingestion: stream must not be nil")
	}
	if c == nil {
		panic("ingestion: classifier must not be nil")
	}
	if svc == nil {
		panic("ingestion: service must not be nil")
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Consumer{
		stream:     s,
		classifier: c,
		service:    svc,
		recorder:   svc.recorder,
		backoff:    backoff,
		state:      StateStopped,
	}
}

// State reports the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the subscription and launches the processing goroutine.
// Starting a consumer that is not stopped is a no-op.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStopped {
		return nil
	}
	c.state = StateStarting

	sub, err := c.stream.Subscribe(ctx)
	if err != nil {
		c.state = StateStopped
		return fmt.Errorf("failed to subscribe to stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan stream.Subscription, 1)
	go c.run(runCtx, sub, c.done)

	c.state = StateRunning
	c.recorder.SetConsumerRunning(true)
	slog.Info("[Consumer] Started", "backoff", c.backoff)
	return nil
}

// Stop cancels the processing goroutine, waits for it to finish and closes the
// subscription. Stopping a consumer that is not running is a no-op.
// If ctx expires first, ctx.Err() is returned and the consumer stays in
// StateStopping until the goroutine exits and its subscription is closed.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()

	select {
	case sub := <-done:
		return c.finishStop(sub)
	case <-ctx.Done():
		slog.Warn("[Consumer] Stop timed out, waiting for in-flight message in background")
		go func() {
			if err := c.finishStop(<-done); err != nil {
				slog.Error("[Consumer] Late shutdown failed", "error", err)
			}
		}()
		return fmt.Errorf("consumer did not stop in time: %w", ctx.Err())
	}
}

func (c *Consumer) finishStop(sub stream.Subscription) error {
	var err error
	if closeErr := sub.Close(); closeErr != nil {
		err = fmt.Errorf("failed to close subscription: %w", closeErr)
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.recorder.SetConsumerRunning(false)
	slog.Info("[Consumer] Stopped")
	return err
}

// run is the processing loop. It returns only when ctx is done and hands the
// current subscription back on done.
func (c *Consumer) run(ctx context.Context, sub stream.Subscription, done chan<- stream.Subscription) {
	defer func() { done <- sub }()

	for {
		err := c.step(ctx, sub)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}

		slog.Error("[Consumer] Loop error, backing off", "error", err, "backoff", c.backoff)
		if !c.sleep(ctx) {
			return
		}

		if errors.Is(err, stream.ErrClosed) {
			next, subErr := c.stream.Subscribe(ctx)
			if subErr != nil {
				slog.Error("[Consumer] Failed to reopen subscription", "error", subErr)
				continue
			}
			sub = next
			slog.Info("[Consumer] Subscription reopened")
		}
	}
}

// step receives and handles one message. Panics are converted to errors.
func (c *Consumer) step(ctx context.Context, sub stream.Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic while processing message: %v", r)
		}
	}()

	msg, err := sub.Next(ctx)
	if err != nil {
		return err
	}

	outcome := c.Process(ctx, msg.Data())

	// A write cut short by shutdown is left unacknowledged for redelivery.
	if outcome == OutcomePersistFailed && ctx.Err() != nil {
		slog.Warn("[Consumer] Shutdown interrupted persist, leaving message unacknowledged",
			"subject", msg.Subject())
		return nil
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Warn("[Consumer] Failed to acknowledge message", "subject", msg.Subject(), "error", ackErr)
	}
	return nil
}

func (c *Consumer) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Process decodes, classifies, validates and persists one raw message body.
// Failures are logged and reported as an Outcome; nothing is returned as an error.
func (c *Consumer) Process(ctx context.Context, body []byte) Outcome {
	start := time.Now()
	outcome := c.process(ctx, body)
	c.recorder.ObserveProcessing(time.Since(start))
	c.recorder.IncIngestOutcome(string(outcome))
	return outcome
}

func (c *Consumer) process(ctx context.Context, body []byte) Outcome {
	payload, err := DecodePayload(body)
	if err != nil {
		slog.Error("[Consumer] Discarding message with invalid JSON",
			"error", err,
			"payload_size", len(body))
		return OutcomeInvalidJSON
	}

	classified, ok, err := c.classifier.Classify(payload)
	if !ok {
		slog.Warn("[Consumer] Discarding message with unknown schema",
			"keys", payloadKeys(payload))
		return OutcomeUnknownSchema
	}
	if err != nil {
		slog.Error("[Consumer] Discarding message that failed classification",
			"rule", classified.Rule,
			"error", err)
		return OutcomeClassificationFailed
	}

	cmd := classified.Command
	evt, err := c.service.Record(ctx, cmd)
	if err != nil {
		if errors.Is(err, v1.ErrValidation) {
			slog.Error("[Consumer] Discarding invalid command",
				"event_type", cmd.EventType,
				"source", cmd.Source,
				"error", err)
			return OutcomeInvalidCommand
		}
		slog.Error("[Consumer] Failed to persist event",
			"event_type", cmd.EventType,
			"source", cmd.Source,
			"occurred_at", classified.OccurredAtISO,
			"error", err)
		return OutcomePersistFailed
	}

	slog.Info("[Consumer] Event stored",
		"event_id", evt.ID,
		"event_type", evt.EventType,
		"source", evt.Source,
		"rule", classified.Rule)
	return OutcomeStored
}

// DecodePayload parses a message body, which must be a JSON object. Numbers
// stay json.Number so integer timestamp components and epoch fractions decode exactly.
func DecodePayload(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("message body is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	return payload, nil
}

func payloadKeys(payload map[string]interface{}) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	return keys
}
