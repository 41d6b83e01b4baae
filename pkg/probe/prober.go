// Package probe decides whether converted media can be played locally.
//
// A probe never fails a job: when no decoder can read the media, the result
// is marked not playable and carries an advisory pointing the user at the
// download, which stays reliable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
)

// NotPlayableAdvisory is shown for media the local decoders cannot read.
const NotPlayableAdvisory = "The converted video cannot be played here. Please download it instead."

// Result describes a probed payload.
type Result struct {
	Playable        bool     `json:"playable"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Codec           string   `json:"codec,omitempty"`
	Decoder         string   `json:"decoder,omitempty"`
	Advisory        string   `json:"advisory,omitempty"`
}

type decoder interface {
	Name() string
	Decode(ctx context.Context, h *media.Handle) (Result, error)
}

// Prober runs the configured decoders against a media handle.
type Prober struct {
	decoders []decoder
	timeout  time.Duration
	logger   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Prober, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var decoders []decoder
	switch cfg.Backend {
	case BackendFFProbe:
		path, err := lookFFProbe(cfg.FFProbePath)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, &ffprobeDecoder{path: path})
	case BackendMP4:
		decoders = append(decoders, mp4Decoder{})
	default:
		if path, err := lookFFProbe(cfg.FFProbePath); err == nil {
			decoders = append(decoders, &ffprobeDecoder{path: path})
		} else {
			logger.Debug("ffprobe not available, using built-in mp4 decoder", zap.Error(err))
		}
		decoders = append(decoders, mp4Decoder{})
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{decoders: decoders, timeout: timeout, logger: logger}, nil
}

// Decoders returns the decoder names in the order they are tried.
func (p *Prober) Decoders() []string {
	names := make([]string, 0, len(p.decoders))
	for _, d := range p.decoders {
		names = append(names, d.Name())
	}
	return names
}

// Probe inspects h within the configured time limit.
//
// On success the result is playable. Otherwise the result is not playable,
// carries NotPlayableAdvisory, and the error is a decode error.
func (p *Prober) Probe(ctx context.Context, h *media.Handle) (Result, error) {
	if h == nil {
		return notPlayable(), job.Decode("probe", errors.New("no media"))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var errs []error
	for _, d := range p.decoders {
		res, err := runBounded(ctx, d, h)
		if err == nil {
			res.Playable = true
			res.Decoder = d.Name()
			res.Advisory = ""
			return res, nil
		}
		p.logger.Debug("probe decoder failed", zap.String("decoder", d.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no decoders configured"))
	}
	return notPlayable(), job.Decode("probe", errors.Join(errs...))
}

// runBounded returns when the decoder finishes or ctx ends, whichever is
// first.
func runBounded(ctx context.Context, d decoder, h *media.Handle) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.Decode(ctx, h)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func notPlayable() Result {
	return Result{Playable: false, Advisory: NotPlayableAdvisory}
}

func lookFFProbe(path string) (string, error) {
	if path == "" {
		path = "ffprobe"
	}
	return exec.LookPath(path)
}
