package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoder_Events(t *testing.T) {
	input := ": keep-alive\n\n" +
		"id: 7\n" +
		"event: progress\n" +
		"data: {\"status\":\"processing\",\n" +
		"data: \"frame\":12}\n\n" +
		"data: second\r\n\r\n"

	d := NewDecoder(strings.NewReader(input))

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "7", ev.ID)
	require.Equal(t, "progress", ev.Type)
	require.Equal(t, "{\"status\":\"processing\",\n\"frame\":12}", string(ev.Data))

	ev, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, "", ev.Type)
	require.Equal(t, "7", ev.ID)
	require.Equal(t, "second", string(ev.Data))

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "7", d.lastID)
}

func TestDecoder_UnterminatedFinalEvent(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: last"))

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "last", string(ev.Data))

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_SkipsEventsWithoutData(t *testing.T) {
	d := NewDecoder(strings.NewReader("event: ping\n\nretry: 1500\ndata:x\n\n"))

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "x", string(ev.Data))
	require.Equal(t, 1500, ev.Retry)
	require.Equal(t, "", ev.Type)
}

func TestDecoder_MaxLineBytes(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: " + strings.Repeat("a", 64) + "\n\n"))
	d.setMaxLineBytes(16)

	_, err := d.Next()
	require.Error(t, err)
}
