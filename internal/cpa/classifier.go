package cpa

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

const (
	// DefaultBudget is the stock total analysis time.
	DefaultBudget = 5000 * time.Millisecond

	// DefaultMaxFrameWait is the stock per-frame wait. The poll window
	// handed to the source is twice this value.
	DefaultMaxFrameWait = 50 * time.Millisecond
)

// Classifier turns a stream of tone samples into a single terminal
// Outcome. It holds only configuration; every Classify call owns its run
// state exclusively, so one Classifier may serve concurrent runs.
type Classifier struct {
	thresholds Thresholds
	budget     time.Duration
	maxWait    time.Duration
	clock      Clock
	log        logrus.FieldLogger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithBudget sets the total analysis time. A budget of zero or less makes
// every run return Unknown immediately.
func WithBudget(d time.Duration) Option {
	return func(c *Classifier) { c.budget = d }
}

// WithMaxFrameWait sets the per-frame wait used to derive the poll window.
func WithMaxFrameWait(d time.Duration) Option {
	return func(c *Classifier) { c.maxWait = d }
}

// WithClock sets the time source used for wall-clock budget checks.
func WithClock(clk Clock) Option {
	return func(c *Classifier) { c.clock = clk }
}

// WithLogger sets the logger for per-run debug output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Classifier) { c.log = log }
}

// New creates a Classifier. Thresholds must pass Validate; callers are
// expected to build them from DefaultThresholds.
func New(thresholds Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		thresholds: thresholds,
		budget:     DefaultBudget,
		maxWait:    DefaultMaxFrameWait,
		clock:      time.Now,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify pulls samples from src until a tone run crosses its threshold,
// the stream ends, or the analysis budget is exhausted. It always returns
// exactly one Outcome and never carries state between calls.
//
// A hung-up or unreadable stream yields OutcomeHangup. Exhausting the
// budget yields OutcomeUnknown: a run that has not yet crossed its
// threshold is not a confirmed result. A run that saw nothing but
// timeouts yields OutcomeNoFrames.
func (c *Classifier) Classify(src SampleSource) Outcome {
	if c.budget <= 0 {
		return OutcomeUnknown
	}

	maxWait := c.maxWait
	if maxWait > c.budget {
		maxWait = c.budget
	}
	pollWindow := 2 * maxWait

	var (
		current   ToneLabel
		runLength int
		elapsed   time.Duration
		sawSample bool
		candidate = OutcomeUnknown
	)
	start := c.clock()

	for {
		sample, err := src.Poll(pollWindow)
		switch {
		case err == nil:
		case errors.Is(err, ErrTimeout):
			// An unreadable interval. It contributes no sample time, but
			// the wall clock still bounds the run so a silent source
			// cannot block forever.
			if c.clock().Sub(start) >= c.budget {
				if !sawSample {
					c.log.Debug("cpa: no frames received before budget expired")
					return OutcomeNoFrames
				}
				c.log.WithField("candidate", candidate).Debug("cpa: budget expired waiting for frames")
				return OutcomeUnknown
			}
			continue
		case errors.Is(err, ErrStreamEnded), errors.Is(err, io.EOF):
			c.log.Debug("cpa: stream ended")
			return OutcomeHangup
		default:
			// An unreadable channel and a hung-up channel are
			// indistinguishable from here.
			c.log.WithError(err).Debug("cpa: source failed, treating as hangup")
			return OutcomeHangup
		}

		sawSample = true
		elapsed += sample.Duration
		if elapsed >= c.budget {
			c.log.WithFields(logrus.Fields{
				"elapsed":   elapsed,
				"candidate": candidate,
			}).Debug("cpa: analysis time exhausted")
			return OutcomeUnknown
		}

		if runLength == 0 || sample.Label != current {
			// A label change discards the partial run for the old label.
			current = sample.Label
			runLength = 1
		} else {
			runLength++
		}

		switch current {
		case ToneRinging:
			if runLength == c.thresholds.Ring {
				return OutcomeRinging
			}
		case ToneBusy:
			if runLength == c.thresholds.Busy {
				return OutcomeBusy
			}
		case ToneTalking:
			if runLength == c.thresholds.Talk {
				return OutcomeTalking
			}
		case ToneCongestion:
			if runLength == c.thresholds.Congestion {
				return OutcomeCongestion
			}
		case ToneHangup:
			if runLength == c.thresholds.Hangup {
				return OutcomeHangup
			}
		case ToneSilence:
			// Silence is recorded but never terminates the run: a quiet
			// channel may still produce a tone before the budget expires.
			if runLength > c.thresholds.SilenceMin && candidate != OutcomeSilence {
				candidate = OutcomeSilence
				c.log.WithField("run_length", runLength).Debug("cpa: sustained silence recorded")
			}
		}
	}
}
