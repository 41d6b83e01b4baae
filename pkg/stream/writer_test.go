package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Status string  `json:"status"`
	Frame  float64 `json:"frame"`
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sw := NewWriter(&buf)

	require.NoError(t, sw.WriteComment(context.Background(), "hello"))
	require.NoError(t, sw.WriteJSON(context.Background(), "job", payload{Status: "processing", Frame: 3}))
	require.NoError(t, sw.WriteJSON(context.Background(), "", payload{Status: "completed", Frame: 9}))
	require.NoError(t, sw.Close())

	d := NewDecoder(&buf)

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "job", ev.Type)
	require.Equal(t, "1", ev.ID)
	var got payload
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	require.Equal(t, payload{Status: "processing", Frame: 3}, got)

	ev, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, "2", ev.ID)
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	require.Equal(t, "completed", got.Status)
}

func TestWriter_Closed(t *testing.T) {
	sw := NewWriter(&bytes.Buffer{})
	require.NoError(t, sw.Close())

	require.ErrorIs(t, sw.WriteJSON(context.Background(), "", payload{}), ErrWriterClosed)
	require.ErrorIs(t, sw.WriteComment(context.Background(), "x"), ErrWriterClosed)
}

func TestWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sw := NewWriter(&bytes.Buffer{})
	require.ErrorIs(t, sw.WriteJSON(ctx, "", payload{}), context.Canceled)
}

func TestWriter_FlushesResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	require.NoError(t, sw.WriteJSON(context.Background(), "", payload{Status: "processing"}))
	require.True(t, rec.Flushed)
	require.Contains(t, rec.Body.String(), "data: {\"status\":\"processing\",\"frame\":0}\n\n")
}
