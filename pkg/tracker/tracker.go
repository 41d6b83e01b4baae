package tracker

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/probe"
	"github.com/3leaps/vr180/pkg/service"
)

// Service is the conversion service surface the tracker drives.
type Service interface {
	StartJob(ctx context.Context, up service.Upload, sync bool) (*service.StartResult, error)
	JobStatus(ctx context.Context, jobID string) (*service.Status, error)
	Subscribe(ctx context.Context, jobID string) (service.EventStream, error)
	FetchArtifact(ctx context.Context, locator string) (*service.Artifact, error)
}

// Prober decides whether fetched media is playable.
type Prober interface {
	Probe(ctx context.Context, h *media.Handle) (probe.Result, error)
}

// Completion is a finished conversion handed to OnComplete. OnComplete
// takes ownership of Media.
type Completion struct {
	Job      job.Job
	Media    *media.Handle
	Probe    probe.Result
	ProbeErr error
}

type Hooks struct {
	// OnUpdate receives every snapshot change, in order.
	OnUpdate func(job.Job)

	// OnComplete stores the result and returns the record id. It is called
	// at most once per run. An error fails the job and the media is
	// released.
	OnComplete func(Completion) (string, error)
}

// Tracker starts runs. It holds no per-job state.
type Tracker struct {
	cfg    Config
	svc    Service
	prober Prober
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, svc Service, prober Prober, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:    cfg.withDefaults(),
		svc:    svc,
		prober: prober,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) Config() Config {
	return t.cfg
}

// Start submits up and tracks the job in a new goroutine. The returned run
// is in the submitting state, which OnUpdate has already received.
func (t *Tracker) Start(ctx context.Context, up service.Upload, hooks Hooks) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	r := newRun(up.FileName, hooks, t.now, cancel)
	if hooks.OnUpdate != nil {
		hooks.OnUpdate(r.Snapshot())
	}
	go t.run(runCtx, r, up)
	return r
}

func (t *Tracker) run(runCtx context.Context, r *Run, up service.Upload) {
	defer close(r.done)
	defer r.cancel()

	ctx := runCtx
	if t.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(runCtx, t.cfg.JobTimeout)
		defer cancel()
	}

	log := t.logger.With(zap.String("file", up.FileName))
	log.Debug("submitting", zap.String("strategy", string(t.cfg.Strategy)))

	res, err := t.svc.StartJob(ctx, up, t.cfg.Strategy == StrategySync)
	if err != nil {
		t.stop(runCtx, ctx, r, err)
		return
	}

	if res.Artifact != nil {
		r.setStrategy(StrategySync)
		t.complete(runCtx, ctx, r, &service.Artifact{Body: res.Artifact, Size: res.ArtifactSize, ContentType: res.ContentType})
		return
	}

	r.accepted(res.JobID)
	log = log.With(zap.String("job_id", res.JobID))
	log.Info("job accepted")

	locator, err := t.track(ctx, r, res.JobID)
	if err != nil {
		t.stop(runCtx, ctx, r, err)
		return
	}
	r.setLocator(locator)

	art, err := t.svc.FetchArtifact(ctx, locator)
	if err != nil {
		t.stop(runCtx, ctx, r, err)
		return
	}
	t.complete(runCtx, ctx, r, art)
}

// stop moves the run to its terminal state after err ended tracking.
func (t *Tracker) stop(runCtx, ctx context.Context, r *Run, err error) {
	switch {
	case runCtx.Err() != nil:
		// Cancelled by the caller; an explicit Cancel has already
		// transitioned.
		r.transition(func(j *job.Job) bool {
			j.State = job.StateCancelled
			return true
		})
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.fail(job.Timeout("track", ctx.Err()))
	default:
		r.fail(err)
	}

	snap := r.Snapshot()
	t.logger.Info("job stopped",
		zap.String("job_id", snap.ID),
		zap.String("state", snap.State.String()),
		zap.Error(err))
}

func (t *Tracker) track(ctx context.Context, r *Run, jobID string) (string, error) {
	switch t.cfg.Strategy {
	case StrategyPoll:
		return t.poll(ctx, r, jobID)
	case StrategyStream:
		es, err := t.svc.Subscribe(ctx, jobID)
		if errors.Is(err, service.ErrStreamUnsupported) {
			return "", &job.Error{Kind: job.ErrService, Op: "subscribe", Detail: "event stream unavailable", Err: err}
		}
		if err != nil {
			return "", err
		}
		return t.stream(ctx, r, jobID, es)
	default:
		es, err := t.svc.Subscribe(ctx, jobID)
		if errors.Is(err, service.ErrStreamUnsupported) {
			t.logger.Debug("event stream unavailable, polling", zap.String("job_id", jobID))
			return t.poll(ctx, r, jobID)
		}
		if err != nil {
			return "", err
		}
		return t.stream(ctx, r, jobID, es)
	}
}

func (t *Tracker) stream(ctx context.Context, r *Run, jobID string, es service.EventStream) (string, error) {
	r.setStrategy(StrategyStream)

	stop := context.AfterFunc(ctx, func() { _ = es.Close() })
	defer stop()
	defer func() { _ = es.Close() }()

	for {
		ev, err := es.Next()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return "", job.Transport("stream", errors.New("event stream closed before completion"))
			}
			return "", err
		}
		if ev.JobID != "" && ev.JobID != jobID {
			continue
		}
		if v, ok := ev.Value(); ok {
			r.progress(v)
		}

		switch ev.Status {
		case service.EventCompleted:
			if ev.Output == "" {
				return "", &job.Error{Kind: job.ErrService, Op: "stream", Detail: "completed without output"}
			}
			return ev.Output, nil
		case service.EventError:
			return "", &job.Error{Kind: job.ErrService, Op: "stream", Detail: detailOr(ev.Error, "conversion failed")}
		}
	}
}

func (t *Tracker) poll(ctx context.Context, r *Run, jobID string) (string, error) {
	r.setStrategy(StrategyPoll)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		st, err := t.svc.JobStatus(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil && job.IsTransport(err) && failures < t.cfg.StatusRetries:
			failures++
			delay := t.cfg.RetryBackoff << (failures - 1)
			t.logger.Warn("status request failed, retrying",
				zap.String("job_id", jobID), zap.Int("attempt", failures), zap.Duration("delay", delay), zap.Error(err))
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
			continue
		case err != nil:
			return "", err
		}
		failures = 0

		if st.Progress != nil {
			r.progress(*st.Progress)
		}
		switch st.Status {
		case service.StatusDone:
			if st.OutputPath == "" {
				return "", &job.Error{Kind: job.ErrService, Op: "status", Detail: "done without output_path"}
			}
			return st.OutputPath, nil
		case service.StatusError:
			return "", &job.Error{Kind: job.ErrService, Op: "status", Detail: detailOr(st.Error, "conversion failed")}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// complete spools the artifact, probes it and hands it to OnComplete.
func (t *Tracker) complete(runCtx, ctx context.Context, r *Run, art *service.Artifact) {
	opts := t.cfg.Spool
	opts.ContentType = art.ContentType
	h, err := media.Spool(ctx, art.Body, art.Size, opts)
	_ = art.Body.Close()
	if err != nil {
		if ctx.Err() == nil {
			if errors.Is(err, media.ErrTooLarge) {
				err = &job.Error{Kind: job.ErrService, Op: "fetch", Detail: "result exceeds size limit", Err: err}
			} else {
				err = job.Transport("fetch", err)
			}
		}
		t.stop(runCtx, ctx, r, err)
		return
	}

	var res probe.Result
	var probeErr error
	if t.prober != nil {
		res, probeErr = t.prober.Probe(ctx, h)
	} else {
		res = probe.Result{Advisory: probe.NotPlayableAdvisory}
	}
	if probeErr != nil {
		t.logger.Warn("result is not playable", zap.String("job_id", r.Snapshot().ID), zap.Error(probeErr))
	}

	if ctx.Err() != nil {
		_ = h.Release()
		t.stop(runCtx, ctx, r, ctx.Err())
		return
	}

	completed, err := r.finish(func(snap job.Job) (string, error) {
		if r.hooks.OnComplete == nil {
			return "", nil
		}
		return r.hooks.OnComplete(Completion{Job: snap, Media: h, Probe: res, ProbeErr: probeErr})
	})
	if err != nil {
		_ = h.Release()
		t.stop(runCtx, ctx, r, err)
		return
	}
	if !completed || r.hooks.OnComplete == nil {
		_ = h.Release()
	}
	if !completed {
		return
	}

	snap := r.Snapshot()
	t.logger.Info("job completed",
		zap.String("job_id", snap.ID),
		zap.String("record_id", snap.RecordID),
		zap.Bool("playable", res.Playable))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func detailOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
