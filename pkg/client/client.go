package client

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/provider"
	"github.com/3leaps/vr180/pkg/records"
	"github.com/3leaps/vr180/pkg/service"
	"github.com/3leaps/vr180/pkg/tracker"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client is closed")

// Upload is a video to convert.
type Upload = service.Upload

// Client runs at most one conversion at a time and owns the converted
// record history.
//
// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	tracker *tracker.Tracker
	store   *records.Store
	refs    *media.Registry
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	records []records.Record
	active  *tracker.Run
	last    *tracker.Run
	closed  bool

	watchMu  sync.Mutex
	watchers map[int]chan job.Job
	nextID   int
}

// New loads the persisted history and returns a ready client.
func New(ctx context.Context, cfg Config, tr *tracker.Tracker, store *records.Store, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:      cfg,
		tracker:  tr,
		store:    store,
		refs:     media.NewRegistry(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		watchers: make(map[int]chan job.Job),
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		c.attachMedia(&loaded[i])
	}

	kept, evicted := cfg.Policy.Apply(loaded, c.now())
	c.records = kept
	if len(evicted) > 0 {
		c.release(evicted, true)
		if err := c.store.Save(ctx, c.records); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// attachMedia re-opens a persisted payload for a reloaded record.
func (c *Client) attachMedia(r *records.Record) {
	if !c.cfg.PersistMedia || r.MediaPath == "" {
		return
	}
	h, err := media.Adopt(r.MediaPath)
	if err != nil {
		c.logger.Warn("persisted media unavailable", zap.String("record_id", r.ID), zap.Error(err))
		return
	}
	r.Media = h
	r.Ref = c.refs.Issue(h)
}

// Submit validates up and starts converting it. Validation happens before
// any network call. The job outlives ctx; stop it with Cancel.
func (c *Client) Submit(ctx context.Context, up Upload) (*tracker.Run, error) {
	const op = "submit"
	if up.Body == nil {
		return nil, job.Validation(op, "no file selected")
	}
	name := strings.TrimSpace(up.FileName)
	if name == "" {
		return nil, job.Validation(op, "file name is required")
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if !c.cfg.accepts(base) {
		return nil, job.Validation(op, "%q is not a supported video file", name)
	}
	if up.Size == 0 {
		return nil, job.Validation(op, "%q is empty", name)
	}
	if c.cfg.MaxUploadBytes > 0 && up.Size > c.cfg.MaxUploadBytes {
		return nil, job.Validation(op, "%q exceeds the %d byte upload limit", name, c.cfg.MaxUploadBytes)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.active != nil {
		if snap := c.active.Snapshot(); snap.State.Active() {
			c.mu.Unlock()
			err := job.Conflict(op, snap.SourceFileName)
			err.JobID = snap.ID
			return nil, err
		}
	}
	run := c.tracker.Start(context.WithoutCancel(ctx), up, tracker.Hooks{
		OnUpdate:   c.publish,
		OnComplete: c.complete,
	})
	c.active = run
	c.last = run
	c.mu.Unlock()

	c.logger.Info("conversion submitted", zap.String("file", name))
	return run, nil
}

// Cancel stops the active job. It is a no-op returning false when idle.
func (c *Client) Cancel() bool {
	c.mu.Lock()
	run := c.active
	c.mu.Unlock()

	if run == nil {
		return false
	}
	return run.Cancel()
}

// Active returns the job currently submitting or in progress.
func (c *Client) Active() (job.Job, bool) {
	c.mu.Lock()
	run := c.active
	c.mu.Unlock()

	if run == nil {
		return job.Job{State: job.StateIdle}, false
	}
	snap := run.Snapshot()
	if !snap.State.Active() {
		return job.Job{State: job.StateIdle}, false
	}
	return snap, true
}

// Last returns the most recent job, whatever its state.
func (c *Client) Last() (job.Job, bool) {
	c.mu.Lock()
	run := c.last
	c.mu.Unlock()

	if run == nil {
		return job.Job{State: job.StateIdle}, false
	}
	return run.Snapshot(), true
}

// complete turns a finished conversion into a record.
//
// Saving the history is best-effort: a store failure is logged and the
// record stays in memory until the next successful save. A client closed
// mid-completion discards the media, including any file just persisted.
func (c *Client) complete(done tracker.Completion) (string, error) {
	rec := records.Record{
		ID:              uuid.NewString(),
		OriginalName:    done.Job.SourceFileName,
		Timestamp:       c.now(),
		SizeBytes:       done.Media.Size(),
		DurationSeconds: done.Probe.DurationSeconds,
		Playable:        done.Probe.Playable,
		Advisory:        done.Probe.Advisory,
		JobID:           done.Job.ID,
		ResultLocator:   done.Job.ResultLocator,
		Media:           done.Media,
	}

	if c.cfg.PersistMedia {
		p, err := done.Media.Persist(c.cfg.MediaDir, rec.ID+media.DownloadExtension)
		if err != nil {
			c.logger.Warn("keeping media in memory only", zap.String("record_id", rec.ID), zap.Error(err))
		} else {
			rec.MediaPath = p
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if err := done.Media.Discard(); err != nil {
			c.logger.Warn("failed to discard media", zap.String("job_id", done.Job.ID), zap.Error(err))
		}
		return "", ErrClosed
	}

	rec.Ref = c.refs.Issue(done.Media)
	kept, evicted := c.cfg.Policy.Apply(append(c.records, rec), c.now())
	c.records = kept
	c.release(evicted, true)

	if err := c.store.Save(context.Background(), c.records); err != nil {
		c.logger.Error("failed to persist records",
			zap.String("record_id", rec.ID),
			zap.String("job_id", done.Job.ID),
			zap.Error(err))
	}
	c.logger.Info("record created",
		zap.String("record_id", rec.ID),
		zap.String("original_name", rec.OriginalName),
		zap.Bool("playable", rec.Playable))
	return rec.ID, nil
}

// List returns the records, oldest first.
func (c *Client) List() []records.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]records.Record(nil), c.records...)
}

// Get returns one record.
func (c *Client) Get(id string) (records.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.records[i], true
	}
	return records.Record{}, false
}

// Delete removes one record, revokes its reference and discards its media.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return job.NotFound("delete", id)
	}
	rec := c.records[i]
	c.records = append(c.records[:i:i], c.records[i+1:]...)

	releaseErr := c.release([]records.Record{rec}, true)
	return multierr.Append(c.store.Save(ctx, c.records), releaseErr)
}

// ClearAll revokes every reference, discards all media and empties the
// store.
func (c *Client) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.records
	c.records = nil
	releaseErr := c.release(all, true)
	return multierr.Append(c.store.Clear(ctx), releaseErr)
}

// Download writes the record's media to dst under its download name and
// returns that name.
func (c *Client) Download(ctx context.Context, id string, dst provider.ObjectPutter) (string, error) {
	const op = "download"
	rec, ok := c.Get(id)
	if !ok {
		return "", job.NotFound(op, id)
	}
	if !rec.Downloadable() {
		return "", &job.Error{Kind: job.ErrNotFound, Op: op, Detail: "media for " + id + " is not available"}
	}

	rc, err := rec.Media.Open()
	if errors.Is(err, media.ErrReleased) {
		return "", &job.Error{Kind: job.ErrNotFound, Op: op, Detail: "media for " + id + " is not available"}
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	name := rec.DownloadName()
	if err := dst.PutObject(ctx, name, rc, rec.Media.Size()); err != nil {
		return "", err
	}
	c.logger.Info("record downloaded", zap.String("record_id", id), zap.String("name", name))
	return name, nil
}

// Media resolves a live ephemeral reference.
func (c *Client) Media(ref media.Ref) (*media.Handle, bool) {
	return c.refs.Resolve(ref)
}

// References returns the lifetime issued and revoked reference counts.
func (c *Client) References() (issued, revoked int64) {
	return c.refs.Stats()
}

// Close cancels the active job, revokes all references and releases
// in-memory media. Persisted media stays on disk.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	run := c.active
	c.mu.Unlock()

	if run != nil {
		run.Cancel()
		<-run.Done()
	}

	c.mu.Lock()
	err := c.release(c.records, false)
	c.records = nil
	c.mu.Unlock()

	c.watchMu.Lock()
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
	c.watchMu.Unlock()

	return multierr.Append(err, c.store.Close())
}

// release revokes references and frees media. discard also removes
// persisted files. Callers hold c.mu or own the records exclusively.
func (c *Client) release(list []records.Record, discard bool) error {
	var err error
	for _, r := range list {
		c.refs.Revoke(r.Ref)
		if r.Media == nil {
			continue
		}
		if discard {
			err = multierr.Append(err, r.Media.Discard())
		} else {
			err = multierr.Append(err, r.Media.Release())
		}
	}
	return err
}

func (c *Client) indexOf(id string) int {
	for i := range c.records {
		if c.records[i].ID == id {
			return i
		}
	}
	return -1
}
