package ami_test

import (
	"testing"
	"time"

	"github.com/phatjmo/asterisk-cpa/internal/ami"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func varSet(channel, variable, value string) ami.Event {
	return ami.Event{
		"Event":    "VarSet",
		"Channel":  channel,
		"Variable": variable,
		"Value":    value,
	}
}

func hangup(channel string) ami.Event {
	return ami.Event{"Event": "Hangup", "Channel": channel}
}

func TestRegistryTracksCorrelationVariable(t *testing.T) {
	r := ami.NewRegistry("CPAUUID")

	r.Process(varSet("PJSIP/trunk-1", "CPAUUID", "uuid-1"))
	r.Process(varSet("PJSIP/trunk-2", "CPAUUID", "uuid-2"))
	// Other variables are ignored.
	r.Process(varSet("PJSIP/trunk-3", "DIALSTATUS", "ANSWER"))

	if r.Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.Size())
	}

	channel, ok := r.Lookup("uuid-1")
	if !ok || channel != "PJSIP/trunk-1" {
		t.Errorf("expected PJSIP/trunk-1, got %q (ok=%v)", channel, ok)
	}
	if _, ok := r.Lookup("uuid-missing"); ok {
		t.Error("expected miss for unknown uuid")
	}
}

func TestRegistryDropsOnHangup(t *testing.T) {
	r := ami.NewRegistry("CPAUUID")

	r.Process(varSet("PJSIP/trunk-1", "CPAUUID", "uuid-1"))
	r.Process(hangup("PJSIP/trunk-1"))

	if _, ok := r.Lookup("uuid-1"); ok {
		t.Error("expected entry removed after hangup")
	}
}

func TestRegistryIgnoresIncompleteVarSet(t *testing.T) {
	r := ami.NewRegistry("CPAUUID")

	r.Process(varSet("", "CPAUUID", "uuid-1"))
	r.Process(varSet("PJSIP/trunk-1", "CPAUUID", ""))

	if r.Size() != 0 {
		t.Errorf("expected no entries, got %d", r.Size())
	}
}

func TestRegistryExpiresStaleEntries(t *testing.T) {
	clock := newFakeClock()
	r := ami.NewRegistry("CPAUUID",
		ami.WithClock(clock.Now),
		ami.WithTTL(time.Minute))

	r.Process(varSet("PJSIP/trunk-1", "CPAUUID", "uuid-1"))

	clock.now = clock.now.Add(2 * time.Minute)
	if _, ok := r.Lookup("uuid-1"); ok {
		t.Error("expected stale entry to expire")
	}

	// A later VarSet sweeps expired peers as well.
	r.Process(varSet("PJSIP/trunk-2", "CPAUUID", "uuid-2"))
	if r.Size() != 1 {
		t.Errorf("expected only the fresh entry, got %d", r.Size())
	}
}

func TestRegistryLatestVarSetWins(t *testing.T) {
	r := ami.NewRegistry("CPAUUID")

	r.Process(varSet("PJSIP/trunk-1", "CPAUUID", "uuid-1"))
	r.Process(varSet("PJSIP/trunk-9", "CPAUUID", "uuid-1"))

	channel, ok := r.Lookup("uuid-1")
	if !ok || channel != "PJSIP/trunk-9" {
		t.Errorf("expected PJSIP/trunk-9, got %q (ok=%v)", channel, ok)
	}
}
