package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/pkg/client"
	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/records"
	"github.com/3leaps/vr180/pkg/stream"
	"github.com/3leaps/vr180/pkg/tracker"
)

// Facade is the conversion client surface exposed over HTTP.
type Facade interface {
	Submit(ctx context.Context, up client.Upload) (*tracker.Run, error)
	Cancel() bool
	Active() (job.Job, bool)
	Last() (job.Job, bool)
	List() []records.Record
	Get(id string) (records.Record, bool)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Media(ref media.Ref) (*media.Handle, bool)
	Watch() (<-chan job.Job, func())
}

// UploadField is the multipart field carrying the video.
const UploadField = "file"

// EventJob is the SSE event type for job snapshots.
const EventJob = "job"

const defaultHeartbeat = 15 * time.Second

// APIOptions tunes the job and record endpoints.
type APIOptions struct {
	// Spool controls where uploads are buffered while the job runs.
	Spool media.SpoolOptions

	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration

	Logger *zap.Logger
}

// API serves jobs, records and media.
type API struct {
	facade    Facade
	spool     media.SpoolOptions
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewAPI(facade Facade, opts APIOptions) *API {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &API{facade: facade, spool: opts.Spool, heartbeat: opts.Heartbeat, logger: opts.Logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", a.SubmitJob)
		r.Get("/active", a.ActiveJob)
		r.Delete("/active", a.CancelJob)
		r.Get("/last", a.LastJob)
		r.Get("/events", a.JobEvents)
	})
	r.Route("/records", func(r chi.Router) {
		r.Get("/", a.ListRecords)
		r.Delete("/", a.ClearRecords)
		r.Get("/{id}", a.GetRecord)
		r.Delete("/{id}", a.DeleteRecord)
		r.Get("/{id}/download", a.DownloadRecord)
	})
	r.Get("/media/{ref}", a.ServeMedia)
}

// RecordView is a record as returned by the API.
type RecordView struct {
	ID              string    `json:"id"`
	OriginalName    string    `json:"original_name"`
	Timestamp       time.Time `json:"timestamp"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Playable        bool      `json:"playable"`
	Advisory        string    `json:"advisory,omitempty"`
	Downloadable    bool      `json:"downloadable"`
	DownloadName    string    `json:"download_name"`

	// MediaURL plays the payload while the record holds it.
	MediaURL string `json:"media_url,omitempty"`
}

func newRecordView(r records.Record) RecordView {
	v := RecordView{
		ID:              r.ID,
		OriginalName:    r.OriginalName,
		Timestamp:       r.Timestamp,
		SizeBytes:       r.SizeBytes,
		DurationSeconds: r.DurationSeconds,
		Playable:        r.Playable,
		Advisory:        r.Advisory,
		Downloadable:    r.Downloadable(),
		DownloadName:    r.DownloadName(),
	}
	if v.Downloadable && r.Ref != "" {
		v.MediaURL = "/media/" + string(r.Ref)
	}
	return v
}

// SubmitJob accepts a multipart upload and starts converting it. The body
// is spooled first because the job reads it after the response is sent.
func (a *API) SubmitJob(w http.ResponseWriter, r *http.Request) {
	const op = "submit"

	mr, err := r.MultipartReader()
	if err != nil {
		respondWithError(w, r, job.Validation(op, "multipart form with a %q field is required", UploadField))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respondWithError(w, r, job.Validation(op, "no file selected"))
			return
		}
		if err != nil {
			respondWithError(w, r, job.Validation(op, "read upload: %v", err))
			return
		}
		if part.FormName() != UploadField {
			_ = part.Close()
			continue
		}
		a.submitPart(w, r, part)
		return
	}
}

func (a *API) submitPart(w http.ResponseWriter, r *http.Request, part *multipart.Part) {
	const op = "submit"
	defer func() { _ = part.Close() }()

	opts := a.spool
	opts.ContentType = part.Header.Get("Content-Type")
	h, err := media.Spool(r.Context(), part, -1, opts)
	if errors.Is(err, media.ErrTooLarge) {
		respondWithError(w, r, job.Validation(op, "%q exceeds the %d byte upload limit", part.FileName(), opts.MaxBytes))
		return
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	body, err := h.Open()
	if err != nil {
		_ = h.Release()
		respondWithError(w, r, err)
		return
	}

	run, err := a.facade.Submit(r.Context(), client.Upload{
		FileName:    part.FileName(),
		Body:        body,
		Size:        h.Size(),
		ContentType: opts.ContentType,
	})
	if err != nil {
		_ = body.Close()
		_ = h.Release()
		respondWithError(w, r, err)
		return
	}

	go func() {
		<-run.Done()
		_ = body.Close()
		if err := h.Release(); err != nil {
			a.logger.Warn("failed to release upload spool", zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

// ActiveJob returns the running job, or an idle snapshot.
func (a *API) ActiveJob(w http.ResponseWriter, r *http.Request) {
	j, _ := a.facade.Active()
	writeJSON(w, http.StatusOK, j)
}

func (a *API) LastJob(w http.ResponseWriter, r *http.Request) {
	j, _ := a.facade.Last()
	writeJSON(w, http.StatusOK, j)
}

// CancelJob stops the active job. Cancelling while idle is not an error.
func (a *API) CancelJob(w http.ResponseWriter, r *http.Request) {
	cancelled := a.facade.Cancel()
	j, _ := a.facade.Last()
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled, "job": j})
}

// JobEvents streams job snapshots as server-sent events until the client
// disconnects. The most recent job, if any, is sent first.
func (a *API) JobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	updates, stop := a.facade.Watch()
	defer stop()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sw := stream.NewWriter(w)
	defer func() { _ = sw.Close() }()

	if err := sw.WriteComment(ctx, "connected"); err != nil {
		return
	}
	if j, ok := a.facade.Last(); ok {
		if err := sw.WriteJSON(ctx, EventJob, j); err != nil {
			return
		}
	}

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.WriteComment(ctx, "keep-alive"); err != nil {
				return
			}
		case j, ok := <-updates:
			if !ok {
				return
			}
			if err := sw.WriteJSON(ctx, EventJob, j); err != nil {
				a.logger.Debug("job event stream closed", zap.Error(err))
				return
			}
		}
	}
}

func (a *API) ListRecords(w http.ResponseWriter, r *http.Request) {
	list := a.facade.List()
	views := make([]RecordView, 0, len(list))
	for _, rec := range list {
		views = append(views, newRecordView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": views})
}

func (a *API) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.facade.Get(id)
	if !ok {
		respondWithError(w, r, job.NotFound("get", id))
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (a *API) ClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := a.facade.ClearAll(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := a.facade.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadRecord serves the payload as an attachment named after the
// original upload.
func (a *API) DownloadRecord(w http.ResponseWriter, r *http.Request) {
	const op = "download"
	id := chi.URLParam(r, "id")
	rec, ok := a.facade.Get(id)
	if !ok {
		respondWithError(w, r, job.NotFound(op, id))
		return
	}
	if !rec.Downloadable() {
		respondWithError(w, r, &job.Error{Kind: job.ErrNotFound, Op: op, Detail: "media for " + id + " is not available"})
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.DownloadName()}))
	a.serveHandle(w, r, rec.Media, rec.DownloadName(), rec.Timestamp)
}

// ServeMedia plays a payload by its ephemeral reference. Revoked
// references are not found.
func (a *API) ServeMedia(w http.ResponseWriter, r *http.Request) {
	ref := media.Ref(chi.URLParam(r, "ref"))
	h, ok := a.facade.Media(ref)
	if !ok {
		respondWithError(w, r, job.NotFound("media", string(ref)))
		return
	}
	a.serveHandle(w, r, h, "", time.Time{})
}

func (a *API) serveHandle(w http.ResponseWriter, r *http.Request, h *media.Handle, name string, modTime time.Time) {
	rc, err := h.Open()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", h.ContentType())
	http.ServeContent(w, r, name, modTime, rc)
}
