package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aevon-lab/analytics/internal/aggregation"
	"github.com/aevon-lab/analytics/internal/classifier"
	"github.com/aevon-lab/analytics/internal/core/config"
	"github.com/aevon-lab/analytics/internal/discovery/eureka"
	"github.com/aevon-lab/analytics/internal/ingestion"
	"github.com/aevon-lab/analytics/internal/metrics"
	"github.com/aevon-lab/analytics/internal/server"
	"github.com/aevon-lab/analytics/internal/stream"
	"github.com/aevon-lab/analytics/internal/stream/natsstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

// ServeCmd runs the HTTP API, the stream consumer and the registry heartbeat.
type ServeCmd struct{}

func (s *ServeCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			slog.Error("Failed to close event store", "error", err)
		}
	}()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	// 3. Classifier
	cls, err := newClassifier(ctx, cfg.Classifier)
	if err != nil {
		return err
	}

	// 4. Stream transport
	var src stream.Stream
	ingestionOpts := []ingestion.Option{
		ingestion.WithRecorder(recorder),
		ingestion.WithMaxBodySizeMB(cfg.Server.MaxBodySizeMB),
	}
	if cfg.Stream.Enabled {
		var closeStream func()
		src, closeStream, err = openStream(ctx, cfg.Stream)
		if err != nil {
			return err
		}
		defer closeStream()

		// Nothing outside the process can reach a memory stream, so the API relays onto it.
		if pub, ok := src.(*stream.Memory); ok {
			ingestionOpts = append(ingestionOpts, ingestion.WithStreamRelay(pub))
			slog.Info("Memory stream relay enabled", "path", "/"+cfg.Server.APIVersion+"/analytics/stream")
		}
	}

	// 5. Services and HTTP
	ingestionSvc := ingestion.NewService(store.repo, ingestionOpts...)
	aggregationSvc := aggregation.NewService(store.repo, aggregation.Config{
		DefaultWindowMinutes: cfg.Metrics.WindowMinutes,
		MinWindowMinutes:     cfg.Metrics.MinWindowMinutes,
		MaxWindowMinutes:     cfg.Metrics.MaxWindowMinutes,
		DefaultRecentLimit:   cfg.Metrics.RecentLimit,
		MaxRecentLimit:       cfg.Metrics.MaxRecentLimit,
	})

	opts := []server.Option{server.WithRoutes(cfg.Server.APIVersion, ingestionSvc, aggregationSvc)}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetricsHandler(cfg.Metrics.Path, metrics.HTTPHandler(reg)))
	}
	srv := server.New(cfg.Server.Addr(), store.health, cfg.Server.Mode, opts...)

	// 6. Stream consumer
	var consumer *ingestion.Consumer
	if src != nil {
		consumer = ingestion.NewConsumer(src, cls, ingestionSvc, ingestion.ConsumerConfig{Backoff: cfg.Stream.Backoff})
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	} else {
		slog.Info("Stream consumer disabled by config")
	}

	// 7. Service discovery
	registrar := eureka.New(eureka.Config{
		Enabled:           cfg.Discovery.Enabled,
		ServiceURL:        cfg.Discovery.ServiceURL,
		AppName:           cfg.Discovery.AppName,
		InstanceHost:      cfg.Discovery.InstanceHost,
		InstanceIP:        cfg.Discovery.InstanceIP,
		Port:              cfg.Server.Port,
		HeartbeatInterval: cfg.Discovery.HeartbeatInterval,
	})
	if err := registrar.Start(ctx); err != nil {
		slog.Error("Eureka registration failed; continuing without discovery", "error", err)
	}

	// HTTP server blocks until ctx is cancelled.
	runErr := srv.Run(ctx)
	if runErr != nil {
		slog.Error("Server stopped with error", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := registrar.Stop(shutdownCtx); err != nil {
		slog.Error("Eureka deregistration failed", "error", err)
	}
	if consumer != nil {
		if err := consumer.Stop(shutdownCtx); err != nil {
			slog.Error("Consumer did not stop cleanly", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return runErr
}

// newClassifier returns the embedded rules, or the manifest at RulesPath,
// optionally watched for changes until ctx ends.
func newClassifier(ctx context.Context, cfg config.ClassifierConfig) (*classifier.Classifier, error) {
	if cfg.RulesPath == "" {
		return classifier.NewDefault(), nil
	}

	cls, err := classifier.NewFromFile(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded classifier rules", "path", cfg.RulesPath, "rules", len(cls.Rules()))

	if cfg.Watch {
		w, err := classifier.NewWatcher(cfg.RulesPath, cls)
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return nil, err
		}
		context.AfterFunc(ctx, w.Stop)
	}
	return cls, nil
}

// openStream connects the configured stream transport.
func openStream(ctx context.Context, cfg config.StreamConfig) (stream.Stream, func(), error) {
	switch cfg.Type {
	case "nats":
		js, err := natsstream.Connect(ctx, natsstream.Config{
			URL:           cfg.URL,
			Stream:        cfg.Stream,
			Subject:       cfg.Subject,
			Durable:       cfg.Durable,
			DeliverPolicy: cfg.DeliverPolicy,
			AckWait:       cfg.AckWait,
		})
		if err != nil {
			return nil, nil, err
		}
		return js, func() {
			if err := js.Close(); err != nil {
				slog.Error("Failed to close NATS connection", "error", err)
			}
		}, nil
	case "memory":
		mem := stream.NewMemory(cfg.Subject, 1024)
		return mem, func() { mem.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported stream.type %q", cfg.Type)
	}
}
