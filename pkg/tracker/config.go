// Package tracker drives one conversion job from submission to a terminal
// state.
//
// Progress arrives from one of several update sources (a synchronous
// response, status polling, or the service's event stream). Whatever the
// source, the job moves through the same state machine:
//
//	submitting -> in_progress -> completed | failed
//	submitting | in_progress -> cancelled
//	submitting -> completed (synchronous conversions)
//
// Terminal states are final. Progress never decreases.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/vr180/pkg/media"
)

// Strategy selects the update source.
type Strategy string

const (
	// StrategySync posts to the synchronous endpoint and expects the
	// converted media in the response.
	StrategySync Strategy = "sync"

	// StrategyPoll asks for job status on a fixed interval.
	StrategyPoll Strategy = "poll"

	// StrategyStream subscribes to the service's event stream.
	StrategyStream Strategy = "stream"

	// StrategyAuto streams when the service offers it and polls otherwise.
	StrategyAuto Strategy = "auto"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAuto, nil
	case StrategySync, StrategyPoll, StrategyStream, StrategyAuto:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want sync, poll, stream or auto)", s)
	}
}

const (
	DefaultPollInterval = 3 * time.Second
	DefaultJobTimeout   = 30 * time.Minute
	DefaultRetryBackoff = time.Second
)

type Config struct {
	Strategy Strategy `mapstructure:"strategy"`

	// PollInterval is the delay between status requests.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// JobTimeout fails a job that has not finished in time. Zero uses
	// DefaultJobTimeout; negative disables the limit.
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	// StatusRetries is how many consecutive transport failures polling
	// tolerates. Zero fails on the first one.
	StatusRetries int `mapstructure:"status_retries"`

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// Spool controls where fetched media is kept.
	Spool media.SpoolOptions `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyAuto
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.StatusRetries < 0 {
		c.StatusRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}
