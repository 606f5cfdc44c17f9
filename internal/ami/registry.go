package ami

import (
	"sync"
	"time"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// DefaultEntryTTL bounds how long an unclaimed correlation entry lives.
// A classification either finishes well inside this window or never ran.
const DefaultEntryTTL = 15 * time.Minute

type entry struct {
	channel string
	seen    time.Time
}

// Registry maps analysis UUIDs to channel names. The dialplan sets the
// correlation variable to the AudioSocket UUID right before streaming;
// the resulting VarSet event ties the UUID to the channel so the outcome
// can be written back with Setvar. Hangup events and a TTL sweep keep the
// map from growing without bound.
type Registry struct {
	variable string
	clock    Clock
	ttl      time.Duration

	mu       sync.Mutex
	channels map[string]entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the time source for the registry.
func WithClock(clk Clock) RegistryOption {
	return func(r *Registry) { r.clock = clk }
}

// WithTTL sets how long entries live without being claimed.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = ttl }
}

// NewRegistry creates a Registry watching VarSet events for the given
// variable name.
func NewRegistry(variable string, opts ...RegistryOption) *Registry {
	r := &Registry{
		variable: variable,
		clock:    time.Now,
		ttl:      DefaultEntryTTL,
		channels: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process ingests one manager event.
func (r *Registry) Process(evt Event) {
	switch evt.Type() {
	case "VarSet":
		if evt.Get("Variable") != r.variable {
			return
		}
		id := evt.Get("Value")
		channel := evt.Get("Channel")
		if id == "" || channel == "" {
			return
		}
		r.mu.Lock()
		r.channels[id] = entry{channel: channel, seen: r.clock()}
		r.sweepLocked()
		r.mu.Unlock()

	case "Hangup":
		channel := evt.Get("Channel")
		if channel == "" {
			return
		}
		r.mu.Lock()
		for id, e := range r.channels {
			if e.channel == channel {
				delete(r.channels, id)
			}
		}
		r.mu.Unlock()
	}
}

// Lookup returns the channel recorded for the given analysis UUID.
func (r *Registry) Lookup(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[id]
	if !ok {
		return "", false
	}
	if r.clock().Sub(e.seen) > r.ttl {
		delete(r.channels, id)
		return "", false
	}
	return e.channel, true
}

// Size returns the number of live entries.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *Registry) sweepLocked() {
	cutoff := r.clock().Add(-r.ttl)
	for id, e := range r.channels {
		if e.seen.Before(cutoff) {
			delete(r.channels, id)
		}
	}
}
