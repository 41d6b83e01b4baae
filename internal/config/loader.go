package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Identity names the application for config discovery.
type Identity struct {
	BinaryName string
	ConfigName string
	EnvPrefix  string
}

// DefaultIdentity is the vr180 identity.
var DefaultIdentity = Identity{BinaryName: "vr180", ConfigName: "vr180", EnvPrefix: "VR180"}

// EnvSpec maps one environment variable to a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config

	// ConfigFile, when set, is read instead of searching for vr180.yaml.
	ConfigFile string

	// DotEnvFile is loaded into the environment before env vars are read.
	// Missing files are ignored.
	DotEnvFile = ".env"
)

// Load builds the configuration. Later overrides win over earlier ones and
// over every other source.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}

	if DotEnvFile != "" {
		if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
		}
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func readConfigFile(v *viper.Viper) error {
	if ConfigFile != "" {
		v.SetConfigFile(ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", ConfigFile, err)
		}
		return nil
	}

	v.SetConfigName(appIdentity.ConfigName)
	v.SetConfigType("yaml")
	for _, dir := range getUserConfigPaths() {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// getUserConfigPaths lists directories searched for the config file.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appIdentity.ConfigName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+appIdentity.ConfigName))
	}
	return paths
}

func getEnvSpecs() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	p := appIdentity.EnvPrefix + "_"
	return []EnvSpec{
		{Name: p + "DATA_DIR", Path: "data_dir"},
		{Name: p + "SERVICE_URL", Path: "service.base_url"},
		{Name: p + "AUTH_URL", Path: "service.auth_url"},
		{Name: p + "REQUEST_TIMEOUT", Path: "service.request_timeout"},
		{Name: p + "TOKEN", Path: "auth.token"},
		{Name: p + "USERNAME", Path: "auth.username"},
		{Name: p + "STRATEGY", Path: "tracker.strategy"},
		{Name: p + "POLL_INTERVAL", Path: "tracker.poll_interval"},
		{Name: p + "JOB_TIMEOUT", Path: "tracker.job_timeout"},
		{Name: p + "STATUS_RETRIES", Path: "tracker.status_retries"},
		{Name: p + "PROBE_BACKEND", Path: "probe.backend"},
		{Name: p + "FFPROBE_PATH", Path: "probe.ffprobe_path"},
		{Name: p + "MAX_UPLOAD_BYTES", Path: "upload.max_bytes"},
		{Name: p + "STORE_BACKEND", Path: "store.backend"},
		{Name: p + "STORE_DIR", Path: "store.dir"},
		{Name: p + "MAX_RECORDS", Path: "store.max_records"},
		{Name: p + "PERSIST_MEDIA", Path: "store.persist_media"},
		{Name: p + "SQLITE_URL", Path: "store.sqlite.url"},
		{Name: p + "SQLITE_AUTH_TOKEN", Path: "store.sqlite.auth_token"},
		{Name: p + "HOST", Path: "server.host"},
		{Name: p + "PORT", Path: "server.port"},
		{Name: p + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: p + "CORS_ORIGINS", Path: "server.cors_origins"},
		{Name: p + "LOG_LEVEL", Path: "logging.level"},
		{Name: p + "LOG_PROFILE", Path: "logging.profile"},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	name := DefaultIdentity.ConfigName
	if appIdentity != nil {
		name = appIdentity.ConfigName
	}
	v.SetDefault("data_dir", gfconfig.GetAppDataDir(name))

	v.SetDefault("service.base_url", "http://127.0.0.1:8001")
	v.SetDefault("service.start_path", "/start-job")
	v.SetDefault("service.sync_path", "/convert-2d-to-vr180")
	v.SetDefault("service.status_path", "/job-status/{job_id}")
	v.SetDefault("service.stream_path", "/convert-stream")
	v.SetDefault("service.auth_url", "http://127.0.0.1:8000")
	v.SetDefault("service.profile_path", "/profile")
	v.SetDefault("service.request_timeout", "30s")
	v.SetDefault("service.status_rate", 2.0)

	v.SetDefault("tracker.strategy", "auto")
	v.SetDefault("tracker.poll_interval", "3s")
	v.SetDefault("tracker.job_timeout", "30m")
	v.SetDefault("tracker.status_retries", 0)
	v.SetDefault("tracker.retry_backoff", "1s")

	v.SetDefault("probe.backend", "auto")
	v.SetDefault("probe.timeout", "10s")

	v.SetDefault("upload.max_bytes", 0)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.max_records", 50)
	v.SetDefault("store.max_age", "0s")
	v.SetDefault("store.persist_media", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8180)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
