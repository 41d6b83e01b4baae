// Package errors maps conversion errors onto the HTTP error envelope.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/output"
)

// Error codes. The shared ones are the codes of output.ErrorRecord.
const (
	CodeValidation       = output.ErrCodeValidation
	CodeConflict         = output.ErrCodeConflict
	CodeNotFound         = output.ErrCodeNotFound
	CodeTransport        = output.ErrCodeTransport
	CodeService          = output.ErrCodeService
	CodeTimeout          = output.ErrCodeTimeout
	CodeInternal         = output.ErrCodeInternal
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// HTTPError is the wire form of an envelope.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the body of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type requestIDKey struct{}

// WithRequestID stores the request id for error envelopes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Classify returns the status and code for err.
func Classify(err error) (int, string) {
	switch {
	case job.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case job.IsConflict(err):
		return http.StatusConflict, CodeConflict
	case job.IsNotFound(err), errors.Is(err, media.ErrReleased):
		return http.StatusNotFound, CodeNotFound
	case job.IsTimeout(err):
		return http.StatusGatewayTimeout, CodeTimeout
	case job.IsTransport(err):
		return http.StatusBadGateway, CodeTransport
	case job.IsService(err), job.IsDecode(err):
		return http.StatusBadGateway, CodeService
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// Envelope creates an envelope correlated with the request id in ctx.
func Envelope(ctx context.Context, code, message string) *gferrors.ErrorEnvelope {
	env := gferrors.NewErrorEnvelope(code, message)
	if ctx != nil {
		if id := RequestID(ctx); id != "" {
			env = env.WithCorrelationID(id)
		}
	}
	return env
}

// NewEnvelope classifies err and returns its envelope and status. The
// message is the user-facing text; the job id, kind and operation go into
// the envelope context.
func NewEnvelope(ctx context.Context, err error) (*gferrors.ErrorEnvelope, int) {
	status, code := Classify(err)
	msg := job.UserMessage(err)
	if code == CodeInternal {
		msg = "internal error"
	}
	env := Envelope(ctx, code, msg)

	var je *job.Error
	if errors.As(err, &je) {
		details := map[string]any{"kind": je.KindName()}
		if je.Op != "" {
			details["op"] = je.Op
		}
		if je.JobID != "" {
			details["job_id"] = je.JobID
		}
		if je.StatusCode > 0 {
			details["status_code"] = je.StatusCode
		}
		env = withContext(env, details)
	}
	return env, status
}

func withContext(env *gferrors.ErrorEnvelope, details map[string]any) *gferrors.ErrorEnvelope {
	if len(details) == 0 {
		return env
	}
	next, err := env.WithContext(details)
	if err != nil {
		return env
	}
	return next
}

// RespondWithError writes err as an envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	env, status := NewEnvelope(ctx, err)
	WriteEnvelope(w, env, status)
}

// WriteHTTPError writes an envelope with an explicit code.
func WriteHTTPError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	WriteEnvelope(w, withContext(Envelope(ctx, code, message), details), status)
}

// WriteEnvelope writes env with the given status.
func WriteEnvelope(w http.ResponseWriter, env *gferrors.ErrorEnvelope, status int) {
	body := HTTPErrorResponse{Error: HTTPError{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: env.CorrelationID,
		Details:   env.Context,
	}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
