// Package dsp classifies blocks of linear PCM into coarse progress tone
// states. It covers the North American progress tones: ringback (440+480),
// busy (480+620), dial tone (350+440) and the SIT triad (950/1400/1800).
package dsp

import (
	"encoding/binary"
	"math"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
)

const (
	// SampleRate is the telephony narrowband rate the detector expects.
	SampleRate = 8000

	// BlockSize is the preferred analysis block: one 20ms interval.
	BlockSize = 160

	// DefaultSilenceFloor is the RMS level below which a block counts as
	// silence, in 16-bit sample units.
	DefaultSilenceFloor = 256
)

// Tone patterns are matched on the fraction of block energy each
// component frequency carries. A candidate needs every component clearly
// present and the combined fraction to dominate the block.
const (
	minComponentFraction = 0.10
	minPatternFraction   = 0.50
)

var progressFreqs = []float64{350, 440, 480, 620, 950, 1400, 1800}

type tonePattern struct {
	label cpa.ToneLabel
	freqs []float64
}

// Pattern order breaks ties deterministically when scores are equal.
var tonePatterns = []tonePattern{
	{cpa.ToneRinging, []float64{440, 480}},
	{cpa.ToneBusy, []float64{480, 620}},
	{cpa.ToneCongestion, []float64{1800}}, // SIT third segment / reorder
	{cpa.ToneSpecial1, []float64{950}},
	{cpa.ToneSpecial2, []float64{1400}},
	{cpa.ToneSpecial2, []float64{350, 440}}, // dial tone
}

// Detector assigns one ToneLabel per PCM block. It is stateless: run-length
// accumulation across blocks belongs to the classifier, not here. A hangup
// tone state is signaled by the transport (stream close), never spectrally.
type Detector struct {
	silenceFloor float64
}

// NewDetector creates a Detector with the given RMS silence floor. Values
// of zero or less fall back to DefaultSilenceFloor.
func NewDetector(silenceFloor float64) *Detector {
	if silenceFloor <= 0 {
		silenceFloor = DefaultSilenceFloor
	}
	return &Detector{silenceFloor: silenceFloor}
}

// Analyze classifies one block of 8kHz linear PCM. Empty blocks are
// silence.
func (d *Detector) Analyze(pcm []int16) cpa.ToneLabel {
	n := len(pcm)
	if n == 0 {
		return cpa.ToneSilence
	}

	var sumSq float64
	for _, s := range pcm {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(n))
	if rms < d.silenceFloor {
		return cpa.ToneSilence
	}

	// Fraction of block energy at each progress frequency. A pure tone at
	// an evaluated frequency scores close to 1.
	fractions := make(map[float64]float64, len(progressFreqs))
	scale := sumSq * float64(n) / 2
	for _, f := range progressFreqs {
		fractions[f] = goertzelPower(pcm, f, SampleRate) / scale
	}

	best := cpa.ToneTalking
	bestScore := minPatternFraction
	for _, p := range tonePatterns {
		score := 0.0
		present := true
		for _, f := range p.freqs {
			frac := fractions[f]
			if frac < minComponentFraction {
				present = false
				break
			}
			score += frac
		}
		if present && score > bestScore {
			best = p.label
			bestScore = score
		}
	}
	return best
}

// PCMFromLE converts 16-bit little-endian PCM bytes to samples. A trailing
// odd byte is dropped.
func PCMFromLE(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return pcm
}
