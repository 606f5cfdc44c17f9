package dsp_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/dsp"
)

// synth builds one analysis block as a sum of sine components at the given
// frequencies, each with the given amplitude.
func synth(amplitude float64, freqs ...float64) []int16 {
	pcm := make([]int16, dsp.BlockSize)
	for i := range pcm {
		var v float64
		for _, f := range freqs {
			v += amplitude * math.Sin(2*math.Pi*f*float64(i)/dsp.SampleRate)
		}
		pcm[i] = int16(v)
	}
	return pcm
}

func noise(amplitude int, seed int64) []int16 {
	rng := rand.New(rand.NewSource(seed))
	pcm := make([]int16, dsp.BlockSize)
	for i := range pcm {
		pcm[i] = int16(rng.Intn(2*amplitude) - amplitude)
	}
	return pcm
}

func TestAnalyzeRingback(t *testing.T) {
	d := dsp.NewDetector(0)
	assert.Equal(t, cpa.ToneRinging, d.Analyze(synth(6000, 440, 480)))
}

func TestAnalyzeBusy(t *testing.T) {
	d := dsp.NewDetector(0)
	assert.Equal(t, cpa.ToneBusy, d.Analyze(synth(6000, 480, 620)))
}

func TestAnalyzeReorderSIT(t *testing.T) {
	d := dsp.NewDetector(0)
	assert.Equal(t, cpa.ToneCongestion, d.Analyze(synth(6000, 1800)))
}

func TestAnalyzeSITSegments(t *testing.T) {
	d := dsp.NewDetector(0)
	assert.Equal(t, cpa.ToneSpecial1, d.Analyze(synth(6000, 950)))
	assert.Equal(t, cpa.ToneSpecial2, d.Analyze(synth(6000, 1400)))
}

func TestAnalyzeDialTone(t *testing.T) {
	d := dsp.NewDetector(0)
	assert.Equal(t, cpa.ToneSpecial2, d.Analyze(synth(6000, 350, 440)))
}

func TestAnalyzeSilence(t *testing.T) {
	d := dsp.NewDetector(0)

	assert.Equal(t, cpa.ToneSilence, d.Analyze(make([]int16, dsp.BlockSize)))
	assert.Equal(t, cpa.ToneSilence, d.Analyze(nil))
	// Line noise below the floor is still silence.
	assert.Equal(t, cpa.ToneSilence, d.Analyze(noise(100, 1)))
}

func TestAnalyzeTalking(t *testing.T) {
	d := dsp.NewDetector(0)

	// Broadband noise at speech level.
	assert.Equal(t, cpa.ToneTalking, d.Analyze(noise(8000, 42)))

	// Voiced-speech surrogate: energy spread over non-progress
	// frequencies.
	assert.Equal(t, cpa.ToneTalking, d.Analyze(synth(3000, 300, 1000, 2500, 3300)))
}

func TestAnalyzeToneWithLineNoise(t *testing.T) {
	d := dsp.NewDetector(0)

	pcm := synth(6000, 440, 480)
	dirt := noise(200, 7)
	for i := range pcm {
		pcm[i] += dirt[i]
	}
	assert.Equal(t, cpa.ToneRinging, d.Analyze(pcm))
}

func TestSilenceFloorOverride(t *testing.T) {
	// A high floor swallows a quiet tone.
	d := dsp.NewDetector(10000)
	assert.Equal(t, cpa.ToneSilence, d.Analyze(synth(4000, 440, 480)))
}

func TestPCMFromLE(t *testing.T) {
	pcm := dsp.PCMFromLE([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	require.Len(t, pcm, 3)
	assert.Equal(t, int16(1), pcm[0])
	assert.Equal(t, int16(-1), pcm[1])
	assert.Equal(t, int16(-32768), pcm[2])

	// Odd trailing byte is dropped.
	assert.Len(t, dsp.PCMFromLE([]byte{0x01, 0x00, 0x02}), 1)
}
