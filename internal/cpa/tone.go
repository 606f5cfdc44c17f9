package cpa

import (
	"errors"
	"time"
)

// ToneLabel is the coarse classification assigned to one analysis interval
// by a tone detector. Silence is the zero value, matching the tone state
// numbering used by the Asterisk DSP.
type ToneLabel int

const (
	ToneSilence ToneLabel = iota
	ToneRinging
	ToneBusy
	ToneTalking
	ToneCongestion // SIT / reorder, the Special3-equivalent state
	ToneHangup
	ToneSpecial1
	ToneSpecial2
)

var toneNames = map[ToneLabel]string{
	ToneSilence:    "Silence",
	ToneRinging:    "Ringing",
	ToneBusy:       "Busy",
	ToneTalking:    "Talking",
	ToneCongestion: "Congestion",
	ToneHangup:     "Hungup",
	ToneSpecial1:   "Special1",
	ToneSpecial2:   "Special2",
}

func (l ToneLabel) String() string {
	if name, ok := toneNames[l]; ok {
		return name
	}
	return "Unknown"
}

// Sample is one classified interval of channel audio. Duration is the
// wall-clock span the interval represents: the payload length for voice
// frames, or the polling window for non-voice frames.
type Sample struct {
	Label    ToneLabel
	Duration time.Duration
}

// SampleSource yields classified intervals off a live channel, one per
// Poll. Implementations must return within maxWait plus scheduling slack.
//
// Poll returns ErrTimeout when no interval arrived inside the wait window
// and ErrStreamEnded when the channel hung up or closed. Any other error
// means the channel became unreadable, which the classifier treats the
// same as a hangup.
type SampleSource interface {
	Poll(maxWait time.Duration) (Sample, error)
}

var (
	// ErrTimeout is returned by Poll when the wait window elapsed with no
	// sample available.
	ErrTimeout = errors.New("cpa: no sample within wait window")

	// ErrStreamEnded is returned by Poll once the channel has hung up.
	ErrStreamEnded = errors.New("cpa: stream ended")
)
