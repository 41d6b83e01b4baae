// Package records keeps the converted-video history.
//
// Only record metadata is persisted. Payloads live in media handles owned
// by the in-memory records; a reloaded record has no payload unless media
// persistence put one on disk.
package records

import (
	"time"

	"github.com/3leaps/vr180/pkg/media"
)

// Record is one successfully converted video.
type Record struct {
	ID              string    `json:"id"`
	OriginalName    string    `json:"original_name"`
	Timestamp       time.Time `json:"timestamp"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`

	// Playable is true only when the prober decoded the media.
	Playable bool `json:"playable"`

	// Advisory is the user-facing message for records that are not playable.
	Advisory string `json:"advisory,omitempty"`

	JobID         string `json:"job_id,omitempty"`
	ResultLocator string `json:"result_locator,omitempty"`

	// MediaPath is set when the payload was persisted alongside the record.
	MediaPath string `json:"media_path,omitempty"`

	// Media is the exclusively owned payload. Never persisted.
	Media *media.Handle `json:"-"`

	// Ref is the ephemeral reference issued for Media. Never persisted.
	Ref media.Ref `json:"-"`
}

// Downloadable reports whether the record still holds its payload.
func (r *Record) Downloadable() bool {
	return r.Media != nil && !r.Media.Released()
}

// DownloadName is the file name offered when the record is downloaded.
func (r *Record) DownloadName() string {
	return media.DownloadName(r.OriginalName)
}
