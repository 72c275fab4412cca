// Package natsstream implements stream.Stream on NATS JetStream with a durable
// pull consumer and explicit acknowledgements.
package natsstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aevon-lab/analytics/internal/stream"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const setupTimeout = 10 * time.Second

// Config describes the JetStream stream and consumer to bind to.
type Config struct {
	URL           string
	Stream        string
	Subject       string
	Durable       string
	DeliverPolicy string
	AckWait       time.Duration
}

// Stream is a JetStream-backed stream.Stream and stream.Publisher.
type Stream struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  Config
}

// Connect dials NATS and ensures the configured stream exists.
func Connect(ctx context.Context, cfg Config) (*Stream, error) {
	if cfg.Stream == "" || cfg.Subject == "" || cfg.Durable == "" {
		return nil, fmt.Errorf("stream, subject and durable are required")
	}
	if _, err := ParseDeliverPolicy(cfg.DeliverPolicy); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("analytics-ingestion"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("[NATS] Disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("[NATS] Reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Raw analytics events from upstream producers",
		Subjects:    []string{cfg.Subject},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}

	slog.Info("[NATS] JetStream stream ready",
		"url", cfg.URL,
		"stream", cfg.Stream,
		"subject", cfg.Subject)

	return &Stream{conn: conn, js: js, cfg: cfg}, nil
}

// Subscribe binds the durable consumer and starts pulling messages.
func (s *Stream) Subscribe(ctx context.Context) (stream.Subscription, error) {
	policy, err := ParseDeliverPolicy(s.cfg.DeliverPolicy)
	if err != nil {
		return nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	consumer, err := s.js.CreateOrUpdateConsumer(setupCtx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Durable,
		FilterSubject: s.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: policy,
		AckWait:       s.cfg.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", s.cfg.Durable, err)
	}

	iter, err := consumer.Messages()
	if err != nil {
		return nil, fmt.Errorf("failed to start message iterator: %w", err)
	}

	slog.Info("[NATS] Subscribed",
		"stream", s.cfg.Stream,
		"durable", s.cfg.Durable,
		"deliver_policy", s.cfg.DeliverPolicy)

	return &subscription{iter: iter}, nil
}

// Publish writes one message to the configured subject and waits for the stream ack.
func (s *Stream) Publish(ctx context.Context, data []byte) error {
	if _, err := s.js.Publish(ctx, s.cfg.Subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// ParseDeliverPolicy maps a config value to a JetStream deliver policy.
// Empty defaults to "all", so a new durable consumer starts from the beginning of the stream.
func ParseDeliverPolicy(value string) (jetstream.DeliverPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all", "earliest":
		return jetstream.DeliverAllPolicy, nil
	case "new", "latest":
		return jetstream.DeliverNewPolicy, nil
	case "last":
		return jetstream.DeliverLastPolicy, nil
	default:
		return 0, fmt.Errorf("unsupported deliver policy %q", value)
	}
}

type subscription struct {
	iter jetstream.MessagesContext
}

// Next stops the iterator when ctx is cancelled so a blocked pull returns at once.
// The iterator is single-use after that; the caller is shutting down anyway.
func (s *subscription) Next(ctx context.Context) (stream.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, s.iter.Stop)
	msg, err := s.iter.Next()
	stop()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
			return nil, stream.ErrClosed
		}
		return nil, fmt.Errorf("failed to fetch next message: %w", err)
	}
	return msg, nil
}

func (s *subscription) Close() error {
	s.iter.Stop()
	return nil
}

var (
	_ stream.Stream    = (*Stream)(nil)
	_ stream.Publisher = (*Stream)(nil)
)
