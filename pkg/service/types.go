package service

import (
	"errors"
	"io"
)

// ErrStreamUnsupported is returned by Subscribe when the service does not
// offer a push channel.
var ErrStreamUnsupported = errors.New("service does not support event streams")

// Status values reported by the polling endpoint.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

// Event status values reported by the push channel.
const (
	EventProcessing = "processing"
	EventCompleted  = "completed"
	EventError      = "error"
)

// Upload is a video to submit.
type Upload struct {
	FileName    string
	Body        io.Reader
	Size        int64
	ContentType string
}

// StartResult is the service's answer to a start request: either a job id
// to track or the converted artifact itself.
type StartResult struct {
	JobID string

	// Artifact is set for synchronous conversions. The caller must close it.
	Artifact     io.ReadCloser
	ArtifactSize int64
	ContentType  string
}

// Status is one polling response.
type Status struct {
	Status     string   `json:"status"`
	Progress   *float64 `json:"progress,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// StreamEvent is one push-channel message.
type StreamEvent struct {
	Status   string   `json:"status"`
	JobID    string   `json:"job_id"`
	Frame    *float64 `json:"frame,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Output   string   `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Value returns the progress carried by the event, preferring frame counts.
func (e StreamEvent) Value() (float64, bool) {
	if e.Frame != nil {
		return *e.Frame, true
	}
	if e.Progress != nil {
		return *e.Progress, true
	}
	return 0, false
}

// EventStream is an open push-channel subscription.
type EventStream interface {
	// Next blocks for the next event. It returns io.EOF when the service
	// closes the channel.
	Next() (StreamEvent, error)
	Close() error
}

// Artifact is a fetched result payload. The caller must close Body.
type Artifact struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}
