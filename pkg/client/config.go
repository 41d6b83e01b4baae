// Package client is the conversion client facade used by the CLI and the
// local HTTP API.
package client

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/vr180/pkg/records"
)

// DefaultAccept matches the video containers the service accepts.
var DefaultAccept = []string{"*.{mp4,m4v,mov,avi,mkv,webm,mpg,mpeg}"}

type Config struct {
	// Accept lists doublestar patterns matched against the lowercased base
	// name of an upload. Empty uses DefaultAccept.
	Accept []string `mapstructure:"accept"`

	// MaxUploadBytes rejects larger uploads before any network call. Zero
	// means unlimited.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Policy bounds the record history.
	Policy records.Policy `mapstructure:"policy"`

	// PersistMedia keeps payloads on disk under MediaDir so records stay
	// downloadable across restarts.
	PersistMedia bool   `mapstructure:"persist_media"`
	MediaDir     string `mapstructure:"media_dir"`
}

func (c *Config) Validate() error {
	if len(c.Accept) == 0 {
		c.Accept = slices.Clone(DefaultAccept)
	}
	for i, p := range c.Accept {
		p = strings.ToLower(strings.TrimSpace(p))
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("accept[%d]: invalid pattern %q", i, p)
		}
		c.Accept[i] = p
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must be >= 0")
	}
	if c.PersistMedia && strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("media_dir is required when persist_media is set")
	}
	return nil
}

func (c *Config) accepts(name string) bool {
	for _, p := range c.Accept {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
