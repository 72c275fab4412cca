package main

import (
	"log/slog"
	"os"

	"github.com/aevon-lab/analytics/internal/core/config"
	"github.com/alecthomas/kong"
)

// CLI holds the global flags and subcommands.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" env:"ANALYTICS_CONFIG" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the HTTP API and the stream consumer"`
	Migrate  MigrateCmd  `cmd:"" help:"Apply database migrations and exit"`
	Classify ClassifyCmd `cmd:"" help:"Classify a JSON payload file without storing it"`
}

// AfterApply installs a bootstrap logger until the config is loaded.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the configuration and installs the configured logger.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Log, c.Verbose))
	slog.Info("Loaded config",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"database", cfg.Database.Type,
		"stream_enabled", cfg.Stream.Enabled,
		"stream", cfg.Stream.Type,
	)
	return cfg, nil
}

func newLogger(cfg config.LogConfig, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("analytics"),
		kong.Description("Analytics event ingestion and aggregation service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}
