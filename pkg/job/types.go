// Package job defines the conversion job snapshot shared by the tracker,
// the client facade and the presentation layers.
package job

import "time"

// State is the lifecycle state of a conversion job.
//
// NOTE: These values appear in CLI JSON output and in the local HTTP API.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Active reports whether s counts against the one-active-job limit.
func (s State) Active() bool {
	return s == StateSubmitting || s == StateInProgress
}

func (s State) String() string {
	return string(s)
}

// Job is a point-in-time snapshot of a conversion job.
//
// Snapshots are values; the tracker owns the live state.
type Job struct {
	// ID is the remote job identifier. Empty for synchronous conversions.
	ID string `json:"id,omitempty"`

	// SourceFileName is the name of the uploaded file.
	SourceFileName string `json:"source_file_name"`

	State State `json:"state"`

	// Progress is a frame count or percentage reported by the service.
	// It never decreases while the job is in progress.
	Progress float64 `json:"progress"`

	// ResultLocator is the remote artifact path or URL, once known.
	ResultLocator string `json:"result_locator,omitempty"`

	// ErrorDetail is set only when State is failed.
	ErrorDetail string `json:"error,omitempty"`

	// Strategy names the update source that drove the job (sync, poll, stream).
	Strategy string `json:"strategy,omitempty"`

	// RecordID is the converted record created on success.
	RecordID string `json:"record_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
