package tracker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
	"github.com/3leaps/vr180/pkg/probe"
	"github.com/3leaps/vr180/pkg/service"
)

type statusReply struct {
	status *service.Status
	err    error
}

func pending(progress float64) statusReply {
	return statusReply{status: &service.Status{Status: service.StatusPending, Progress: &progress}}
}

func done(output string) statusReply {
	return statusReply{status: &service.Status{Status: service.StatusDone, OutputPath: output}}
}

// fakeService scripts the conversion service. Status replies are consumed
// in order; the last one repeats.
type fakeService struct {
	mu sync.Mutex

	startResult *service.StartResult
	startErr    error
	startSync   bool

	statuses    []statusReply
	statusCalls int

	stream    service.EventStream
	streamErr error

	artifact    string
	fetchErr    error
	fetchedFrom []string
}

func (f *fakeService) StartJob(ctx context.Context, up service.Upload, sync bool) (*service.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startSync = sync
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startResult, nil
}

func (f *fakeService) JobStatus(ctx context.Context, jobID string) (*service.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil, errors.New("no status scripted")
	}
	idx := f.statusCalls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.statusCalls++
	r := f.statuses[idx]
	return r.status, r.err
}

func (f *fakeService) Subscribe(ctx context.Context, jobID string) (service.EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.stream == nil {
		return nil, service.ErrStreamUnsupported
	}
	return f.stream, nil
}

func (f *fakeService) FetchArtifact(ctx context.Context, locator string) (*service.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedFrom = append(f.fetchedFrom, locator)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &service.Artifact{Body: io.NopCloser(strings.NewReader(f.artifact)), Size: int64(len(f.artifact)), ContentType: "video/mp4"}, nil
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// chanStream is an event stream fed by the test.
type chanStream struct {
	events chan service.StreamEvent
	closed chan struct{}
	once   sync.Once
}

func newChanStream(buffer int) *chanStream {
	return &chanStream{events: make(chan service.StreamEvent, buffer), closed: make(chan struct{})}
}

func (s *chanStream) Next() (service.StreamEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return service.StreamEvent{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return service.StreamEvent{}, errors.New("use of closed stream")
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *chanStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeProber struct {
	err error
}

func (p fakeProber) Probe(ctx context.Context, h *media.Handle) (probe.Result, error) {
	if p.err != nil {
		return probe.Result{Advisory: probe.NotPlayableAdvisory}, job.Decode("probe", p.err)
	}
	d := 4.0
	return probe.Result{Playable: true, DurationSeconds: &d, Decoder: "fake"}, nil
}

// recorder captures hook calls.
type recorder struct {
	mu          sync.Mutex
	updates     []job.Job
	completions []Completion
	completeErr error
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnUpdate: func(j job.Job) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, j)
		},
		OnComplete: func(c Completion) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.completeErr != nil {
				return "", r.completeErr
			}
			r.completions = append(r.completions, c)
			return "rec-1", nil
		},
	}
}

func (r *recorder) snapshot() ([]job.Job, []Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]job.Job(nil), r.updates...), append([]Completion(nil), r.completions...)
}
