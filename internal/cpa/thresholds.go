package cpa

import (
	"fmt"
	"time"
)

// Interval is the fixed analysis cadence. Run-length thresholds are
// expressed in units of one interval.
const Interval = 20 * time.Millisecond

// Thresholds holds the per-tone run-length thresholds for one
// classification run, in Interval units.
//
// Every tone except silence terminates the run when its run length equals
// the threshold exactly. The detector re-signals a held tone on every
// interval, so an equality check fires once at the required hold time
// instead of on every subsequent interval; a run that skips past its
// threshold is deliberately not accepted. SilenceMin is the one strict
// greater-than threshold, and crossing it records silence without
// terminating the run.
type Thresholds struct {
	SilenceMin int
	Ring       int
	Busy       int
	Talk       int
	Congestion int
	Hangup     int
}

// DefaultThresholds returns the stock hold times: 150ms of ring, 80ms of
// busy or congestion, 1300ms of hangup tone, 250ms of silence. Talk
// detection does not hold continuously, so two intervals suffice.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SilenceMin: 12,
		Ring:       8,
		Busy:       4,
		Talk:       2,
		Congestion: 4,
		Hangup:     60,
	}
}

// WithSilenceWindow returns a copy with SilenceMin derived from a
// duration, rounded down to whole intervals with a floor of one.
func (t Thresholds) WithSilenceWindow(d time.Duration) Thresholds {
	units := int(d / Interval)
	if units < 1 {
		units = 1
	}
	t.SilenceMin = units
	return t
}

// Validate reports the first non-positive threshold, if any.
func (t Thresholds) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"silence", t.SilenceMin},
		{"ring", t.Ring},
		{"busy", t.Busy},
		{"talk", t.Talk},
		{"congestion", t.Congestion},
		{"hangup", t.Hangup},
	}
	for _, f := range fields {
		if f.value < 1 {
			return fmt.Errorf("cpa: %s threshold must be positive, got %d", f.name, f.value)
		}
	}
	return nil
}
