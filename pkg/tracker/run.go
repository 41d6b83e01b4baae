package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/3leaps/vr180/pkg/job"
)

// Run is one tracked job.
//
// All state changes are serialized: each change and its OnUpdate
// notification happen as a unit, so observers see snapshots in the order
// they were applied.
type Run struct {
	// seq serializes transitions together with their notifications.
	seq sync.Mutex

	mu   sync.Mutex
	snap job.Job
	err  error

	hooks  Hooks
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(fileName string, hooks Hooks, now func() time.Time, cancel context.CancelFunc) *Run {
	ts := now()
	return &Run{
		snap: job.Job{
			SourceFileName: fileName,
			State:          job.StateSubmitting,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		},
		hooks:  hooks,
		now:    now,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Snapshot returns the current job state.
func (r *Run) Snapshot() job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Err returns the error that failed the job, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the run's goroutine has exited.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) (job.Job, error) {
	select {
	case <-r.done:
		return r.Snapshot(), r.Err()
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

// Cancel stops the job. In-flight requests are aborted and any update that
// arrives afterwards is discarded. Cancel reports false when the job had
// already reached a terminal state.
func (r *Run) Cancel() bool {
	changed := r.transition(func(j *job.Job) bool {
		j.State = job.StateCancelled
		return true
	})
	r.cancel()
	return changed
}

// transition applies fn unless the job is terminal, then notifies. fn
// returns false to signal no change.
func (r *Run) transition(fn func(*job.Job) bool) bool {
	r.seq.Lock()
	defer r.seq.Unlock()
	return r.transitionLocked(fn)
}

func (r *Run) transitionLocked(fn func(*job.Job) bool) bool {
	r.mu.Lock()
	if r.snap.State.Terminal() {
		r.mu.Unlock()
		return false
	}
	next := r.snap
	if !fn(&next) {
		r.mu.Unlock()
		return false
	}
	next.UpdatedAt = r.now()
	r.snap = next
	r.mu.Unlock()

	if r.hooks.OnUpdate != nil {
		r.hooks.OnUpdate(next)
	}
	return true
}

func (r *Run) accepted(jobID string) bool {
	return r.transition(func(j *job.Job) bool {
		if j.State != job.StateSubmitting {
			return false
		}
		j.ID = jobID
		j.State = job.StateInProgress
		return true
	})
}

func (r *Run) setStrategy(s Strategy) {
	r.transition(func(j *job.Job) bool {
		if j.Strategy == string(s) {
			return false
		}
		j.Strategy = string(s)
		return true
	})
}

// progress records v unless it would move progress backwards.
func (r *Run) progress(v float64) bool {
	return r.transition(func(j *job.Job) bool {
		if j.State != job.StateInProgress || v <= j.Progress {
			return false
		}
		j.Progress = v
		return true
	})
}

func (r *Run) setLocator(locator string) {
	r.transition(func(j *job.Job) bool {
		if locator == "" || j.ResultLocator == locator {
			return false
		}
		j.ResultLocator = locator
		return true
	})
}

func (r *Run) fail(err error) bool {
	r.seq.Lock()
	defer r.seq.Unlock()

	changed := r.transitionLocked(func(j *job.Job) bool {
		job.AttachJobID(err, j.ID)
		j.State = job.StateFailed
		j.ErrorDetail = job.UserMessage(err)
		return true
	})
	if changed {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}
	return changed
}

// finish runs complete and, if it succeeds, moves the job to completed as
// one serialized step. It returns false without calling complete when the
// job is already terminal.
func (r *Run) finish(complete func(job.Job) (string, error)) (bool, error) {
	r.seq.Lock()
	defer r.seq.Unlock()

	snap := r.Snapshot()
	if snap.State.Terminal() {
		return false, nil
	}

	recordID, err := complete(snap)
	if err != nil {
		return false, err
	}

	r.transitionLocked(func(j *job.Job) bool {
		j.State = job.StateCompleted
		j.RecordID = recordID
		return true
	})
	return true, nil
}
