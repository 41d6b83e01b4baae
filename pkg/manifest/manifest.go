// Package manifest loads batch submission manifests.
//
// A batch manifest is a YAML or JSON file listing videos to convert one at
// a time. Manifests are validated against an embedded JSON Schema that
// disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	items:
//	  - path: clips/beach.mov
//	  - path: clips/hike.mp4
//	    name: Hike 2026.mp4
//	include:
//	  - "raw/**/*.mp4"
//	options:
//	  strategy: auto
//	  continue_on_error: true
//	  download:
//	    dir: ./converted
package manifest

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Version is the only supported manifest version.
const Version = "1.0"

// Manifest is a validated batch manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	Version string `json:"version" yaml:"version"`

	// Items are submitted in order.
	Items []Item `json:"items,omitempty" yaml:"items,omitempty"`

	// Include lists doublestar globs expanded after Items, sorted.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Item is one video to convert.
type Item struct {
	// Path is relative to the manifest's directory unless absolute.
	Path string `json:"path" yaml:"path"`

	// Name overrides the file name sent to the service.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Options struct {
	// Strategy overrides the configured tracking strategy.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// ContinueOnError keeps going after a failed item. Defaults to true.
	ContinueOnError *bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	// Download saves each converted video when set.
	Download *DownloadOptions `json:"download,omitempty" yaml:"download,omitempty"`
}

type DownloadOptions struct {
	Dir       string `json:"dir" yaml:"dir"`
	Overwrite bool   `json:"overwrite,omitempty" yaml:"overwrite,omitempty"`
}

// ApplyDefaults fills optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Options.ContinueOnError == nil {
		v := true
		m.Options.ContinueOnError = &v
	}
}

// ContinueOnError reports whether a failed item stops the batch.
func (m *Manifest) ContinueOnError() bool {
	return m.Options.ContinueOnError == nil || *m.Options.ContinueOnError
}

// Resolve returns the items to submit with absolute paths. Relative paths
// and globs are anchored at baseDir. Duplicate paths are kept once, at
// their first position.
func (m *Manifest) Resolve(baseDir string) ([]Item, error) {
	seen := make(map[string]bool)
	var out []Item
	add := func(it Item) {
		if seen[it.Path] {
			return
		}
		seen[it.Path] = true
		out = append(out, it)
	}

	for _, it := range m.Items {
		it.Path = anchor(baseDir, it.Path)
		add(it)
	}

	for _, pattern := range m.Include {
		matches, err := doublestar.FilepathGlob(anchor(baseDir, pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("include %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, p := range matches {
			add(Item{Path: p})
		}
	}
	return out, nil
}

// Manifest paths always use '/'.
func anchor(baseDir, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

// DisplayName is the file name sent to the service for it.
func (it Item) DisplayName() string {
	if it.Name != "" {
		return it.Name
	}
	return filepath.Base(it.Path)
}
