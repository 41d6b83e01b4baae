// Package output provides JSONL output for CLI commands.
//
// Each line is a typed envelope holding a progress update, a converted
// record, an error or a final summary. Lines are self-contained and can be
// parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope types follow the pattern vr180.<type>.v<version>.
const (
	TypeProgress = "vr180.progress.v1"
	TypeRecord   = "vr180.record.v1"
	TypeError    = "vr180.error.v1"
	TypeSummary  = "vr180.summary.v1"
)

// Envelope wraps every JSONL line.
type Envelope struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// RunID correlates the lines of one CLI invocation.
	RunID string `json:"run_id"`

	Data json.RawMessage `json:"data"`
}

// ProgressRecord mirrors one job snapshot.
type ProgressRecord struct {
	JobID          string  `json:"job_id,omitempty"`
	SourceFileName string  `json:"source_file_name"`
	State          string  `json:"state"`
	Progress       float64 `json:"progress"`
	Strategy       string  `json:"strategy,omitempty"`
}

// RecordRecord describes a converted video.
type RecordRecord struct {
	ID              string    `json:"id"`
	OriginalName    string    `json:"original_name"`
	Timestamp       time.Time `json:"timestamp"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Playable        bool      `json:"playable"`
	Advisory        string    `json:"advisory,omitempty"`
	Downloadable    bool      `json:"downloadable"`

	// Location is where the media was downloaded to, if it was.
	Location string `json:"location,omitempty"`
}

// ErrorRecord reports a failure without aborting a batch.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Source is the upload or record the error relates to.
	Source string `json:"source,omitempty"`
}

// Error codes for ErrorRecord. They match the HTTP API error codes.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeTransport  = "TRANSPORT_ERROR"
	ErrCodeService    = "SERVICE_ERROR"
	ErrCodeTimeout    = "TIMEOUT"
	ErrCodeCancelled  = "CANCELLED"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// SummaryRecord closes a batch or single submission.
type SummaryRecord struct {
	Submitted int `json:"submitted"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
