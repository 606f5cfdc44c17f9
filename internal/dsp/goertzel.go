package dsp

import "math"

// goertzelPower returns the squared magnitude of the Goertzel filter for
// one frequency over the given block. Single-frequency DFT evaluation
// without the full transform, the same technique the Asterisk DSP uses
// for progress tone detection.
func goertzelPower(pcm []int16, freq, sampleRate float64) float64 {
	coeff := 2 * math.Cos(2*math.Pi*freq/sampleRate)
	var q1, q2 float64
	for _, s := range pcm {
		q0 := coeff*q1 - q2 + float64(s)
		q2 = q1
		q1 = q0
	}
	return q1*q1 + q2*q2 - coeff*q1*q2
}
