package probe

import (
	"fmt"
	"strings"
	"time"
)

// Backend names.
const (
	BackendAuto    = "auto"
	BackendFFProbe = "ffprobe"
	BackendMP4     = "mp4"
)

// DefaultTimeout bounds a single Probe call.
const DefaultTimeout = 10 * time.Second

// Config controls how converted media is inspected.
type Config struct {
	// Backend selects the decoder: auto, ffprobe or mp4.
	// auto uses ffprobe when it is installed and falls back to mp4.
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// FFProbePath overrides the ffprobe binary. Empty searches PATH.
	FFProbePath string `json:"ffprobe_path" yaml:"ffprobe_path" mapstructure:"ffprobe_path"`

	// Timeout bounds each Probe call. Zero uses DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

func (c *Config) Validate() error {
	c.Backend = strings.TrimSpace(strings.ToLower(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendAuto
	}
	switch c.Backend {
	case BackendAuto, BackendFFProbe, BackendMP4:
	default:
		return fmt.Errorf("backend %q is not supported", c.Backend)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	return nil
}
