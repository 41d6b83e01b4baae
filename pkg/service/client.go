package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/session"
	"github.com/3leaps/vr180/pkg/stream"
)

// maxErrorBody caps how much of a failed response is kept as detail.
const maxErrorBody = 4 << 10

// Client talks to the conversion service on behalf of one session.
//
// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	base    *url.URL
	auth    *url.URL
	http    *http.Client
	session session.Session
	limiter *rate.Limiter
	logger  *zap.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(cfg Config, sess session.Session, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, err
	}
	auth, err := url.Parse(strings.TrimRight(cfg.AuthURL, "/") + "/")
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		base:    base,
		auth:    auth,
		http:    &http.Client{},
		session: sess,
		limiter: rate.NewLimiter(rate.Limit(cfg.StatusRate), 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// StartJob uploads a video. With sync set it targets the synchronous
// endpoint, which normally answers with the converted media.
func (c *Client) StartJob(ctx context.Context, up Upload, sync bool) (*StartResult, error) {
	const op = "start"
	if up.Body == nil || strings.TrimSpace(up.FileName) == "" {
		return nil, job.Validation(op, "upload requires a file name and body")
	}

	target := c.cfg.StartPath
	if sync {
		target = c.cfg.SyncPath
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, up))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(c.base, target), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json, video/*")

	resp, err := c.do(req, op)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		defer func() { _ = resp.Body.Close() }()
		var ack struct {
			JobID string `json:"job_id"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&ack); err != nil {
			return nil, &job.Error{Kind: job.ErrService, Op: op, Detail: "malformed acknowledgement", Err: err}
		}
		if strings.TrimSpace(ack.JobID) == "" {
			return nil, &job.Error{Kind: job.ErrService, Op: op, Detail: "acknowledgement has no job_id"}
		}
		c.logger.Debug("job accepted", zap.String("job_id", ack.JobID))
		return &StartResult{JobID: ack.JobID}, nil
	}

	return &StartResult{
		Artifact:     resp.Body,
		ArtifactSize: resp.ContentLength,
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

func writeMultipart(mw *multipart.Writer, up Upload) error {
	part, err := mw.CreateFormFile(UploadField, path.Base(strings.ReplaceAll(up.FileName, "\\", "/")))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return err
	}
	return mw.Close()
}

// JobStatus fetches one status report. Requests are rate limited.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Status, error) {
	const op = "status"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	target := strings.ReplaceAll(c.cfg.StatusPath, "{job_id}", url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(c.base, target), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		if ctx.Err() != nil {
			return nil, job.Transport(op, err)
		}
		return nil, &job.Error{Kind: job.ErrService, Op: op, Detail: "malformed status", Err: err}
	}
	return &st, nil
}

// Subscribe opens the push channel for jobID. It returns
// ErrStreamUnsupported when the service does not offer one.
func (c *Client) Subscribe(ctx context.Context, jobID string) (EventStream, error) {
	const op = "subscribe"
	u, err := url.Parse(c.resolve(c.base, c.cfg.StreamPath))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("job_id", jobID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", stream.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.send(req, op)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		_ = resp.Body.Close()
		return nil, ErrStreamUnsupported
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serviceError(op, resp)
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt != stream.ContentType {
		_ = resp.Body.Close()
		return nil, ErrStreamUnsupported
	}

	return &eventStream{body: resp.Body, dec: stream.NewDecoder(resp.Body), logger: c.logger}, nil
}

// FetchArtifact downloads the result at locator. Relative locators resolve
// against the service base URL.
func (c *Client) FetchArtifact(ctx context.Context, locator string) (*Artifact, error) {
	const op = "fetch"
	if strings.TrimSpace(locator) == "" {
		return nil, &job.Error{Kind: job.ErrService, Op: op, Detail: "empty result locator"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(c.base, locator), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	return &Artifact{Body: resp.Body, Size: resp.ContentLength, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Profile fetches the signed-in user's profile from the auth backend.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	const op = "profile"
	if !c.session.Authenticated() {
		return nil, job.Validation(op, "no session token")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(c.auth, c.cfg.ProfilePath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &job.Error{Kind: job.ErrService, Op: op, Detail: "malformed profile", Err: err}
	}
	return out, nil
}

// Ping reports whether the service answers HTTP at all. Any status counts.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req, "ping")
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.Body.Close()
}

// do sends req and maps non-2xx responses to service errors.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.send(req, op)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serviceError(op, resp)
	}
	return resp, nil
}

// send attaches the session and maps connection failures to transport
// errors. Cancellation is returned as the context error.
func (c *Client) send(req *http.Request, op string) (*http.Response, error) {
	if h := c.session.AuthorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, job.Transport(op, ctxErr)
			}
			return nil, ctxErr
		}
		return nil, job.Transport(op, err)
	}
	return resp, nil
}

func serviceError(op string, resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return job.Service(op, resp.StatusCode, strings.TrimSpace(string(b)))
}

func (c *Client) resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return base.String() + strings.TrimLeft(ref, "/")
	}
	if u.IsAbs() {
		return u.String()
	}
	u.Path = strings.TrimLeft(u.Path, "/")
	return base.ResolveReference(u).String()
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

type eventStream struct {
	body   io.ReadCloser
	dec    *stream.Decoder
	logger *zap.Logger
}

func (s *eventStream) Next() (StreamEvent, error) {
	for {
		ev, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return StreamEvent{}, io.EOF
			}
			return StreamEvent{}, job.Transport("stream", err)
		}
		var se StreamEvent
		if err := json.Unmarshal(ev.Data, &se); err != nil {
			s.logger.Debug("skipping malformed stream event", zap.Error(err))
			continue
		}
		return se, nil
	}
}

func (s *eventStream) Close() error {
	return s.body.Close()
}
