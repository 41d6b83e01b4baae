package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/session"
)

func newTestClient(t *testing.T, h http.Handler, sess session.Session) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, AuthURL: srv.URL, StatusRate: 1000}, sess)
	require.NoError(t, err)
	return c
}

func upload(name, body string) Upload {
	return Upload{FileName: name, Body: strings.NewReader(body), Size: int64(len(body))}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultStatusPath, cfg.StatusPath)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)

	cfg = Config{BaseURL: "ftp://example.com"}
	assert.Error(t, cfg.Validate())

	cfg = Config{StatusPath: "/status"}
	assert.Error(t, cfg.Validate())
}

func TestStartJob_Async(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start-job", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile(UploadField)
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(f)
		assert.Equal(t, "clip.mp4", hdr.Filename)
		assert.Equal(t, "video-bytes", string(b))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"job_id":"job-42"}`)
	})

	c := newTestClient(t, mux, session.Session{Token: "tok"})
	res, err := c.StartJob(context.Background(), upload("/home/u/clip.mp4", "video-bytes"), false)
	require.NoError(t, err)
	assert.Equal(t, "job-42", res.JobID)
	assert.Nil(t, res.Artifact)
}

func TestStartJob_SyncArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/convert-2d-to-vr180", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = io.WriteString(w, "converted")
	})

	c := newTestClient(t, mux, session.Session{})
	res, err := c.StartJob(context.Background(), upload("clip.mp4", "x"), true)
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	defer func() { _ = res.Artifact.Close() }()

	b, err := io.ReadAll(res.Artifact)
	require.NoError(t, err)
	assert.Equal(t, "converted", string(b))
	assert.Equal(t, "video/mp4", res.ContentType)
	assert.Empty(t, res.JobID)
}

func TestStartJob_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start-job", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "encoder exploded", http.StatusInternalServerError)
	})
	mux.HandleFunc("/convert-2d-to-vr180", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"detail":"no id"}`)
	})
	c := newTestClient(t, mux, session.Session{})

	_, err := c.StartJob(context.Background(), upload("clip.mp4", "x"), false)
	require.Error(t, err)
	assert.True(t, job.IsService(err))
	assert.Equal(t, "Server error: 500 - encoder exploded", job.UserMessage(err))

	_, err = c.StartJob(context.Background(), upload("clip.mp4", "x"), true)
	assert.True(t, job.IsService(err))

	_, err = c.StartJob(context.Background(), Upload{FileName: "x.mp4"}, false)
	assert.True(t, job.IsValidation(err))
}

func TestStartJob_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base}, session.Session{})
	require.NoError(t, err)

	_, err = c.StartJob(context.Background(), upload("clip.mp4", "x"), false)
	require.Error(t, err)
	assert.True(t, job.IsTransport(err))
	assert.Equal(t, job.TransportMessage, job.UserMessage(err))
}

func TestJobStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job-status/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"pending","progress":37.5}`)
	})
	mux.HandleFunc("/job-status/job-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"done","output_path":"outputs/job-2.mp4"}`)
	})
	mux.HandleFunc("/job-status/bad", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	})
	c := newTestClient(t, mux, session.Session{})

	st, err := c.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	require.NotNil(t, st.Progress)
	assert.Equal(t, 37.5, *st.Progress)

	st, err = c.JobStatus(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, st.Status)
	assert.Equal(t, "outputs/job-2.mp4", st.OutputPath)

	_, err = c.JobStatus(context.Background(), "bad")
	assert.True(t, job.IsService(err))

	_, err = c.JobStatus(context.Background(), "missing")
	assert.True(t, job.IsService(err))
}

func TestJobStatus_Cancelled(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), session.Session{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.JobStatus(ctx, "job-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, job.IsTransport(err))
}

func TestSubscribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/convert-stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "job-9", r.URL.Query().Get("job_id"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": hello\n\n")
		fmt.Fprint(w, "data: {\"status\":\"processing\",\"job_id\":\"job-9\",\"frame\":10}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"status\":\"completed\",\"job_id\":\"job-9\",\"output\":\"/outputs/job-9.mp4\"}\n\n")
	})
	c := newTestClient(t, mux, session.Session{})

	es, err := c.Subscribe(context.Background(), "job-9")
	require.NoError(t, err)
	defer func() { _ = es.Close() }()

	ev, err := es.Next()
	require.NoError(t, err)
	assert.Equal(t, EventProcessing, ev.Status)
	v, ok := ev.Value()
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	ev, err = es.Next()
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.Status)
	assert.Equal(t, "/outputs/job-9.mp4", ev.Output)

	_, err = es.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_Unsupported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, session.Session{})
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrStreamUnsupported)

	c, err = New(Config{BaseURL: srv.URL, StreamPath: "/plain"}, session.Session{})
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrStreamUnsupported)
}

func TestFetchArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/outputs/a.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = io.WriteString(w, "payload")
	})
	c := newTestClient(t, mux, session.Session{})

	for _, loc := range []string{"outputs/a.mp4", "/outputs/a.mp4", c.base.String() + "outputs/a.mp4"} {
		a, err := c.FetchArtifact(context.Background(), loc)
		require.NoError(t, err, loc)
		b, _ := io.ReadAll(a.Body)
		_ = a.Body.Close()
		assert.Equal(t, "payload", string(b))
	}

	_, err := c.FetchArtifact(context.Background(), "outputs/missing.mp4")
	assert.True(t, job.IsService(err))

	_, err = c.FetchArtifact(context.Background(), " ")
	assert.True(t, job.IsService(err))
}

func TestProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"username":"ana"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Config{AuthURL: srv.URL}, session.Session{Token: "good"})
	require.NoError(t, err)
	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana", p["username"])

	c, err = New(Config{AuthURL: srv.URL}, session.Session{Token: "bad"})
	require.NoError(t, err)
	_, err = c.Profile(context.Background())
	assert.True(t, job.IsService(err))

	c, err = New(Config{AuthURL: srv.URL}, session.Session{})
	require.NoError(t, err)
	_, err = c.Profile(context.Background())
	assert.True(t, job.IsValidation(err))
}

func TestPing(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), session.Session{})
	assert.NoError(t, c.Ping(context.Background()))

	c2, err := New(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second}, session.Session{})
	require.NoError(t, err)
	assert.True(t, job.IsTransport(c2.Ping(context.Background())))
}
