package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits JSONL envelopes. Implementations are safe for concurrent
// use and write each envelope as one complete line.
type Writer interface {
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteRecord(ctx context.Context, rec *RecordRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

// JSONLWriter writes envelopes as newline-delimited JSON to an io.Writer.
type JSONLWriter struct {
	w     io.Writer
	runID string
	now   func() time.Time

	mu     sync.Mutex
	closed bool
}

var _ Writer = (*JSONLWriter)(nil)

func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{
		w:     w,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.write(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteRecord(ctx context.Context, rec *RecordRecord) error {
	return jw.write(ctx, TypeRecord, rec)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.write(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	if sum.DurationHuman == "" {
		sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
	}
	return jw.write(ctx, TypeSummary, sum)
}

// Close marks the writer closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) write(ctx context.Context, envType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return ErrWriterClosed
	}

	line, err := json.Marshal(Envelope{
		Type:  envType,
		TS:    jw.now(),
		RunID: jw.runID,
		Data:  payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_envelope", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a truncated line
	// would corrupt the stream.
	if err := writeAll(jw.w, append(line, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
