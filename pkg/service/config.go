// Package service is the HTTP client for the remote conversion service.
package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default endpoint layout.
const (
	DefaultBaseURL     = "http://127.0.0.1:8001"
	DefaultStartPath   = "/start-job"
	DefaultSyncPath    = "/convert-2d-to-vr180"
	DefaultStatusPath  = "/job-status/{job_id}"
	DefaultStreamPath  = "/convert-stream"
	DefaultAuthURL     = "http://127.0.0.1:8000"
	DefaultProfilePath = "/profile"

	DefaultRequestTimeout = 30 * time.Second
	DefaultStatusRate     = 2.0

	// UploadField is the multipart field carrying the video.
	UploadField = "file"
)

// Config locates the conversion service and the auth backend.
type Config struct {
	BaseURL    string `mapstructure:"base_url"`
	StartPath  string `mapstructure:"start_path"`
	SyncPath   string `mapstructure:"sync_path"`
	StatusPath string `mapstructure:"status_path"`
	StreamPath string `mapstructure:"stream_path"`

	AuthURL     string `mapstructure:"auth_url"`
	ProfilePath string `mapstructure:"profile_path"`

	// RequestTimeout bounds status, profile and ping requests. Uploads,
	// artifact downloads and streams are bounded by the caller's context.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// StatusRate caps status requests per second. Zero uses DefaultStatusRate.
	StatusRate float64 `mapstructure:"status_rate"`
}

func (c *Config) applyDefaults() {
	set := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	set(&c.BaseURL, DefaultBaseURL)
	set(&c.StartPath, DefaultStartPath)
	set(&c.SyncPath, DefaultSyncPath)
	set(&c.StatusPath, DefaultStatusPath)
	set(&c.StreamPath, DefaultStreamPath)
	set(&c.AuthURL, DefaultAuthURL)
	set(&c.ProfilePath, DefaultProfilePath)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.StatusRate <= 0 {
		c.StatusRate = DefaultStatusRate
	}
}

// Validate applies defaults and checks the URLs.
func (c *Config) Validate() error {
	c.applyDefaults()
	for name, raw := range map[string]string{"base_url": c.BaseURL, "auth_url": c.AuthURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s: scheme must be http or https, got %q", name, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%s: host is required", name)
		}
	}
	if !strings.Contains(c.StatusPath, "{job_id}") {
		return fmt.Errorf("status_path must contain {job_id}")
	}
	return nil
}
