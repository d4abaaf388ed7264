// Package levels computes signal level metrics from PCM buffers.
// All functions are stateless reads; they never mutate the buffer.
package levels

import "math"

// Silence is the floor returned by DBFS for an all-zero signal.
const Silence = -96.0

// RMS returns the per-channel root mean square of interleaved samples.
func RMS(samples []float32, channels int) []float64 {
	if channels <= 0 || len(samples) == 0 {
		return nil
	}
	sums := make([]float64, channels)
	counts := make([]int, channels)
	for i, s := range samples {
		ch := i % channels
		sums[ch] += float64(s) * float64(s)
		counts[ch]++
	}
	out := make([]float64, channels)
	for ch := range sums {
		if counts[ch] > 0 {
			out[ch] = math.Sqrt(sums[ch] / float64(counts[ch]))
		}
	}
	return out
}

// Peak returns the per-channel absolute peak of interleaved samples.
func Peak(samples []float32, channels int) []float64 {
	if channels <= 0 || len(samples) == 0 {
		return nil
	}
	out := make([]float64, channels)
	for i, s := range samples {
		ch := i % channels
		v := math.Abs(float64(s))
		if v > out[ch] {
			out[ch] = v
		}
	}
	return out
}

// DBFS converts a linear level (RMS or peak, 0..1) to decibels relative
// to full scale, clamped at Silence.
func DBFS(level float64) float64 {
	if level <= 0 {
		return Silence
	}
	db := 20 * math.Log10(level)
	if db < Silence {
		return Silence
	}
	return db
}
