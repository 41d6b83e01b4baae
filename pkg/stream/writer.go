package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("stream writer is closed")

// Writer emits server-sent events. Each event is written and flushed as a
// unit.
//
// Writer is safe for concurrent use.
type Writer struct {
	w       io.Writer
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	seq    int64
}

// NewWriter wraps w. If w implements http.Flusher, every event is flushed.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
	return nil
}

// WriteJSON emits data as a JSON-encoded event of the given type. An empty
// type sends a default message event. Ids are assigned sequentially.
func (sw *Writer) WriteJSON(ctx context.Context, eventType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sw.seq++
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatInt(sw.seq, 10))
	buf.WriteByte('\n')
	if eventType != "" {
		buf.WriteString("event: ")
		buf.WriteString(eventType)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	return sw.flush(buf.Bytes())
}

// WriteComment emits a comment line, used as a keep-alive.
func (sw *Writer) WriteComment(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrWriterClosed
	}
	return sw.flush([]byte(": " + text + "\n\n"))
}

func (sw *Writer) flush(p []byte) error {
	if err := writeAll(sw.w, p); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
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
