// Package config loads vr180 configuration from defaults, the config file,
// the environment and runtime overrides, in increasing precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/3leaps/vr180/pkg/client"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/probe"
	"github.com/3leaps/vr180/pkg/records"
	"github.com/3leaps/vr180/pkg/service"
	"github.com/3leaps/vr180/pkg/session"
	"github.com/3leaps/vr180/pkg/tracker"
)

type Config struct {
	Service service.Config `mapstructure:"service"`
	Auth    AuthConfig     `mapstructure:"auth"`
	Tracker tracker.Config `mapstructure:"tracker"`
	Probe   probe.Config   `mapstructure:"probe"`
	Upload  UploadConfig   `mapstructure:"upload"`
	Store   StoreConfig    `mapstructure:"store"`
	Server  ServerConfig   `mapstructure:"server"`
	Logging LoggingConfig  `mapstructure:"logging"`

	// DataDir holds records and persisted media unless overridden.
	DataDir string `mapstructure:"data_dir"`
}

type AuthConfig struct {
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
}

type UploadConfig struct {
	Accept   []string `mapstructure:"accept"`
	MaxBytes int64    `mapstructure:"max_bytes"`
}

type StoreConfig struct {
	Backend  string               `mapstructure:"backend"`
	Dir      string               `mapstructure:"dir"`
	SlotName string               `mapstructure:"slot_name"`
	SQLite   records.SQLiteConfig `mapstructure:"sqlite"`

	MaxRecords int           `mapstructure:"max_records"`
	MaxAge     time.Duration `mapstructure:"max_age"`

	PersistMedia bool   `mapstructure:"persist_media"`
	MediaDir     string `mapstructure:"media_dir"`

	// Spool limits for fetched results.
	SpoolDir            string `mapstructure:"spool_dir"`
	SpoolMaxMemoryBytes int64  `mapstructure:"spool_max_memory_bytes"`
	SpoolMaxBytes       int64  `mapstructure:"spool_max_bytes"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// resolve fills directory defaults derived from DataDir and validates.
func (c *Config) resolve() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Store.Dir == "" {
		c.Store.Dir = filepath.Join(c.DataDir, "records")
	}
	if c.Store.MediaDir == "" {
		c.Store.MediaDir = filepath.Join(c.DataDir, "media")
	}

	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	st, err := tracker.ParseStrategy(string(c.Tracker.Strategy))
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	c.Tracker.Strategy = st
	if c.Store.MaxRecords < 0 {
		return fmt.Errorf("store: max_records must be >= 0")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	return nil
}

func (c *Config) Session() session.Session {
	return session.Session{Token: c.Auth.Token, Username: c.Auth.Username}
}

func (c *Config) RecordsConfig() records.Config {
	return records.Config{
		Backend:  c.Store.Backend,
		Dir:      c.Store.Dir,
		SQLite:   c.Store.SQLite,
		SlotName: c.Store.SlotName,
	}
}

func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Accept:         append([]string(nil), c.Upload.Accept...),
		MaxUploadBytes: c.Upload.MaxBytes,
		Policy:         records.Policy{MaxRecords: c.Store.MaxRecords, MaxAge: c.Store.MaxAge},
		PersistMedia:   c.Store.PersistMedia,
		MediaDir:       c.Store.MediaDir,
	}
}

func (c *Config) TrackerConfig() tracker.Config {
	tc := c.Tracker
	tc.Spool = media.SpoolOptions{
		MaxMemoryBytes: c.Store.SpoolMaxMemoryBytes,
		MaxBytes:       c.Store.SpoolMaxBytes,
		TempDir:        c.Store.SpoolDir,
	}
	return tc
}
