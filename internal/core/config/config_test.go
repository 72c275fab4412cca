package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnvFiles("")
	require.NoError(t, err)

	require.Equal(t, "analytics-service", cfg.Service.Name)
	require.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	require.Equal(t, "api/v1", cfg.Server.APIVersion)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.Equal(t, 2*time.Second, cfg.Stream.Backoff)
	require.Equal(t, 30*time.Second, cfg.Discovery.HeartbeatInterval)
	require.Equal(t, 60, cfg.Metrics.WindowMinutes)
	require.Equal(t, 500, cfg.Metrics.MaxRecentLimit)
	require.False(t, cfg.Discovery.Enabled)
	require.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_FileThenEnv(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeFile(t, root, "analytics.yaml", `
server:
  port: 9090
  host: "127.0.0.1"
  api_version: "/api/v2/"
database:
  type: "SQLite"
  dsn: "analytics.db"
stream:
  type: "memory"
  subject: "analytics.events"
metrics:
  window_minutes: 120
log:
  level: "debug"
  format: "json"
`)

	t.Setenv("ANALYTICS_SERVER__PORT", "9191")
	t.Setenv("ANALYTICS_SERVER__MAX_BODY_SIZE_MB", "4")
	t.Setenv("ANALYTICS_STREAM__BACKOFF", "500ms")
	t.Setenv("ANALYTICS_DISCOVERY__ENABLED", "true")
	t.Setenv("ANALYTICS_DISCOVERY__SERVICE_URL", "http://eureka:8761/eureka/")

	cfg, err := LoadWithEnvFiles(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9191", cfg.Server.Addr())
	require.Equal(t, 4, cfg.Server.MaxBodySizeMB)
	require.Equal(t, "api/v2", cfg.Server.APIVersion)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "memory", cfg.Stream.Type)
	require.Equal(t, 500*time.Millisecond, cfg.Stream.Backoff)
	require.Equal(t, 120, cfg.Metrics.WindowMinutes)
	require.True(t, cfg.Discovery.Enabled)
	require.Equal(t, "http://eureka:8761/eureka/", cfg.Discovery.ServiceURL)
	require.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvFiles(t *testing.T) {
	root := t.TempDir()
	local := writeFile(t, root, ".env.local", "ANALYTICS_SERVICE__ENVIRONMENT=staging\n")
	shared := writeFile(t, root, ".env", "ANALYTICS_SERVICE__ENVIRONMENT=production\nANALYTICS_LOG__LEVEL=warn\n")
	t.Cleanup(func() {
		os.Unsetenv("ANALYTICS_SERVICE__ENVIRONMENT")
		os.Unsetenv("ANALYTICS_LOG__LEVEL")
	})

	cfg, err := LoadWithEnvFiles("", local, shared, filepath.Join(root, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Service.Environment)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := LoadWithEnvFiles(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "failed to load config file")
}

func TestLoad_InvalidValueFailsStartup(t *testing.T) {
	t.Setenv("ANALYTICS_METRICS__WINDOW_MINUTES", "3")

	_, err := LoadWithEnvFiles("")
	require.ErrorContains(t, err, "metrics.window_minutes 3 outside [5, 10080]")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadWithEnvFiles("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server.port"},
		{name: "bad mode", mutate: func(c *Config) { c.Server.Mode = "prod" }, wantErr: "invalid server.mode"},
		{name: "missing api version", mutate: func(c *Config) { c.Server.APIVersion = "/" }, wantErr: "server.api_version is required"},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "mysql" }, wantErr: "unsupported database.type"},
		{name: "sqlite without dsn", mutate: func(c *Config) {
			c.Database.Type = "sqlite"
			c.Database.DSN = ""
		}, wantErr: "database.dsn is required"},
		{name: "memory without dsn", mutate: func(c *Config) {
			c.Database.Type = "memory"
			c.Database.DSN = ""
		}},
		{name: "postgres pool", mutate: func(c *Config) { c.Database.MaxOpenConns = 0 }, wantErr: "database.max_open_conns"},
		{name: "nats without url", mutate: func(c *Config) { c.Stream.URL = "" }, wantErr: "stream.url is required"},
		{name: "disabled stream skips checks", mutate: func(c *Config) {
			c.Stream.Enabled = false
			c.Stream.URL = ""
		}},
		{name: "bad deliver policy", mutate: func(c *Config) { c.Stream.DeliverPolicy = "sometimes" }, wantErr: "invalid stream.deliver_policy"},
		{name: "unknown stream", mutate: func(c *Config) { c.Stream.Type = "kafka" }, wantErr: "unsupported stream.type"},
		{name: "zero backoff", mutate: func(c *Config) { c.Stream.Backoff = 0 }, wantErr: "stream.backoff"},
		{name: "watch without path", mutate: func(c *Config) { c.Classifier.Watch = true }, wantErr: "classifier.watch requires"},
		{name: "recent limit above max", mutate: func(c *Config) { c.Metrics.RecentLimit = 501 }, wantErr: "metrics.recent_limit"},
		{name: "metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, wantErr: "metrics.path"},
		{name: "discovery without app", mutate: func(c *Config) {
			c.Discovery.Enabled = true
			c.Discovery.AppName = ""
		}, wantErr: "discovery.app_name"},
		{name: "discovery without url is allowed", mutate: func(c *Config) {
			c.Discovery.Enabled = true
			c.Discovery.ServiceURL = ""
		}},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "invalid log.level"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "invalid log.format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
