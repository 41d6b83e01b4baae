package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/vr180/pkg/tracker"
)

// isolate points config discovery at empty directories.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("VR180_DATA_DIR", filepath.Join(home, "data"))

	origFile, origEnv := ConfigFile, DotEnvFile
	ConfigFile = ""
	DotEnvFile = filepath.Join(home, ".env")
	t.Cleanup(func() {
		ConfigFile = origFile
		DotEnvFile = origEnv
	})
	return home
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		home := isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "http://127.0.0.1:8001", cfg.Service.BaseURL)
		assert.Equal(t, "/job-status/{job_id}", cfg.Service.StatusPath)
		assert.Equal(t, 30*time.Second, cfg.Service.RequestTimeout)

		assert.Equal(t, tracker.StrategyAuto, cfg.Tracker.Strategy)
		assert.Equal(t, 3*time.Second, cfg.Tracker.PollInterval)
		assert.Equal(t, 30*time.Minute, cfg.Tracker.JobTimeout)
		assert.Zero(t, cfg.Tracker.StatusRetries)

		assert.Equal(t, "auto", cfg.Probe.Backend)
		assert.Equal(t, 10*time.Second, cfg.Probe.Timeout)

		assert.Equal(t, "file", cfg.Store.Backend)
		assert.Equal(t, 50, cfg.Store.MaxRecords)
		assert.Zero(t, cfg.Store.MaxAge)
		assert.Equal(t, filepath.Join(home, "data", "records"), cfg.Store.Dir)
		assert.Equal(t, filepath.Join(home, "data", "media"), cfg.Store.MediaDir)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8180, cfg.Server.Port)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Len(t, cfg.Server.CORSOrigins, 2)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"tracker": map[string]any{
				"strategy": "poll",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, tracker.StrategyPoll, cfg.Tracker.Strategy)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("VR180_PORT", "3000")
		t.Setenv("VR180_LOG_LEVEL", "warn")
		t.Setenv("VR180_PERSIST_MEDIA", "true")
		t.Setenv("VR180_SERVICE_URL", "https://convert.example.com")
		t.Setenv("VR180_CORS_ORIGINS", "https://a.example,https://b.example")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.True(t, cfg.Store.PersistMedia)
		assert.Equal(t, "https://convert.example.com", cfg.Service.BaseURL)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		home := isolate(t)
		file := filepath.Join(home, "vr180.yaml")
		require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 4500\n  host: 10.0.0.1\nstore:\n  max_records: 5\n"), 0o644))
		ConfigFile = file
		t.Setenv("VR180_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port, "runtime beats env")
		assert.Equal(t, "10.0.0.1", cfg.Server.Host, "file beats defaults")
		assert.Equal(t, 5, cfg.Store.MaxRecords)
	})

	t.Run("DotEnv", func(t *testing.T) {
		home := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("VR180_STRATEGY=stream\n"), 0o644))
		t.Cleanup(func() { _ = os.Unsetenv("VR180_STRATEGY") })

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, tracker.StrategyStream, cfg.Tracker.Strategy)
	})

	t.Run("Invalid", func(t *testing.T) {
		isolate(t)
		_, err := Load(ctx, map[string]any{"tracker": map[string]any{"strategy": "carrier-pigeon"}})
		assert.Error(t, err)

		_, err = Load(ctx, map[string]any{"service": map[string]any{"base_url": "ftp://x"}})
		assert.Error(t, err)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		home := isolate(t)
		ConfigFile = filepath.Join(home, "nope.yaml")
		_, err := Load(ctx)
		assert.Error(t, err)
	})
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("VR180_READ_TIMEOUT", "45s")
	t.Setenv("VR180_JOB_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Tracker.JobTimeout)
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"server": map[string]any{"port": 8200}})
	require.NoError(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.Server.Port, current.Server.Port)
}

func TestDerivedConfigs(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{
		"auth":  map[string]any{"token": "secret-token"},
		"store": map[string]any{"max_age": "24h", "spool_max_bytes": 1024},
	})
	require.NoError(t, err)

	assert.True(t, cfg.Session().Authenticated())
	assert.Equal(t, 24*time.Hour, cfg.ClientConfig().Policy.MaxAge)
	assert.Equal(t, int64(1024), cfg.TrackerConfig().Spool.MaxBytes)
	assert.Equal(t, cfg.Store.Dir, cfg.RecordsConfig().Dir)
	assert.Equal(t, "localhost:8180", cfg.Server.Addr())
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "VR180_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	assert.True(t, names["VR180_LOG_LEVEL"])
	assert.True(t, names["VR180_PORT"])
	assert.True(t, names["VR180_TOKEN"])
	assert.True(t, names["VR180_SERVICE_URL"])
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() {
		isolate(t)
		_, _ = Load(context.Background())
	}()

	assert.Empty(t, getEnvSpecs())
	assert.Empty(t, getUserConfigPaths())
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"Server": map[string]any{"port": 1, "tls": map[string]any{"on": true}},
		"debug":  false,
	})
	assert.Equal(t, map[string]any{"server.port": 1, "server.tls.on": true, "debug": false}, got)
}
