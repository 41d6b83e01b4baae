// Package stream implements server-sent event framing.
//
// The Decoder consumes the conversion service's push channel; the Writer
// emits job updates from the local HTTP API using the same framing.
package stream

// ContentType is the media type of a server-sent event stream.
const ContentType = "text/event-stream"

// Event is a single dispatched server-sent event.
type Event struct {
	// ID is the last "id:" field seen, if any.
	ID string

	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data is the joined "data:" lines, without the trailing newline.
	Data []byte

	// Retry is the reconnection delay in milliseconds, if sent.
	Retry int
}
