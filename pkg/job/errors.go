package job

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the client wraps exactly one of these.
var (
	// ErrValidation indicates bad input detected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a job is already active.
	ErrConflict = errors.New("a conversion is already in progress")

	// ErrTransport indicates the service could not be reached or the
	// connection dropped.
	ErrTransport = errors.New("no response from server")

	// ErrService indicates the service answered with a failure.
	ErrService = errors.New("server error")

	// ErrDecode indicates media could not be decoded. It downgrades a record
	// to not playable and never fails a job.
	ErrDecode = errors.New("media decode failed")

	// ErrNotFound indicates a record or its payload is unavailable.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates the job exceeded its time limit.
	ErrTimeout = errors.New("job timed out")
)

// TransportMessage is the user-facing text for transport failures.
const TransportMessage = "No response from server. Please check if the backend is running."

// Error carries an error kind plus context.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Op is the operation that failed (e.g., "start", "status", "download").
	Op string

	// Detail is a human-readable description.
	Detail string

	// StatusCode is the HTTP status for service errors.
	StatusCode int

	// JobID is the job the error belongs to, when known.
	JobID string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the text shown to end users.
func (e *Error) Message() string {
	switch {
	case errors.Is(e.Kind, ErrTransport):
		return TransportMessage
	case errors.Is(e.Kind, ErrService) && e.StatusCode > 0:
		return fmt.Sprintf("Server error: %d - %s", e.StatusCode, e.Detail)
	case errors.Is(e.Kind, ErrConflict) && e.Detail != "":
		return fmt.Sprintf("A conversion is already in progress (%s)", e.Detail)
	case e.Detail != "":
		return e.Detail
	}
	return e.Error()
}

// Validation builds a validation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error naming the active job.
func Conflict(op, activeJob string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Detail: activeJob}
}

// Transport builds a transport error.
func Transport(op string, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, Err: err}
}

// Service builds a service error from a status code and response body.
func Service(op string, status int, body string) *Error {
	return &Error{Kind: ErrService, Op: op, StatusCode: status, Detail: body}
}

// Decode builds a decode error.
func Decode(op string, err error) *Error {
	return &Error{Kind: ErrDecode, Op: op, Err: err}
}

// NotFound builds a not-found error for the given id.
func NotFound(op, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Detail: id}
}

// Timeout builds a timeout error.
func Timeout(op string, err error) *Error {
	return &Error{Kind: ErrTimeout, Op: op, Err: err}
}

// KindName returns the short name of the error kind, e.g. "transport".
func (e *Error) KindName() string {
	switch e.Kind {
	case ErrValidation:
		return "validation"
	case ErrConflict:
		return "conflict"
	case ErrTransport:
		return "transport"
	case ErrService:
		return "service"
	case ErrDecode:
		return "decode"
	case ErrNotFound:
		return "not_found"
	case ErrTimeout:
		return "timeout"
	}
	return "unknown"
}

// AttachJobID records id on the first *Error in err's chain unless it
// already names a job.
func AttachJobID(err error, id string) {
	var je *Error
	if id != "" && errors.As(err, &je) && je.JobID == "" {
		je.JobID = id
	}
}

// UserMessage returns the end-user text for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var je *Error
	if errors.As(err, &je) {
		return je.Message()
	}
	return err.Error()
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsTransport(err error) bool  { return errors.Is(err, ErrTransport) }
func IsService(err error) bool    { return errors.Is(err, ErrService) }
func IsDecode(err error) bool     { return errors.Is(err, ErrDecode) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsTimeout(err error) bool    { return errors.Is(err, ErrTimeout) }
