package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const DefaultMaxLineBytes = 1 << 20

var errLineTooLong = errors.New("sse line exceeds max bytes")

type Decoder struct {
	r            *bufio.Reader
	maxLineBytes int
	lastID       string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxLineBytes: DefaultMaxLineBytes}
}

// setMaxLineBytes caps line length; n <= 0 restores the default.
func (d *Decoder) setMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// Next returns the next event carrying data.
//
// Comment lines and events without data are skipped. A final event that is
// not terminated by a blank line is still dispatched. Next returns io.EOF
// once the stream is exhausted.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)

	for {
		line, err := readLineLimited(d.r, d.maxLineBytes)
		if err != nil {
			if errors.Is(err, io.EOF) && hasData {
				return d.dispatch(ev, data.Bytes()), nil
			}
			return Event{}, err
		}
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) == 0 {
			if hasData {
				return d.dispatch(ev, data.Bytes()), nil
			}
			ev = Event{}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "event":
			ev.Type = string(value)
		case "id":
			if !bytes.ContainsRune(value, 0) {
				d.lastID = string(value)
			}
		case "retry":
			if n, err := strconv.Atoi(string(value)); err == nil && n >= 0 {
				ev.Retry = n
			}
		}
	}
}

func (d *Decoder) dispatch(ev Event, data []byte) Event {
	ev.ID = d.lastID
	ev.Data = append([]byte(nil), data...)
	return ev
}

func splitField(line []byte) (string, []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), nil
	}
	value := line[idx+1:]
	value = bytes.TrimPrefix(value, []byte(" "))
	return string(line[:idx]), value
}

func readLineLimited(r *bufio.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}

	var out []byte
	for {
		frag, err := r.ReadSlice('\n')
		out = append(out, frag...)
		if len(out) > maxBytes {
			return nil, errLineTooLong
		}
		if err == nil {
			return bytes.TrimSuffix(out, []byte("\n")), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, nil
		}
		return nil, err
	}
}
