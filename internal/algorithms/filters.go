package algorithms

import "math"

// biquad holds second-order IIR filter coefficients, normalized so a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// bandpassBiquad derives constant-skirt bandpass coefficients for the band
// [lowHz, highHz] at the given sampling frequency.
func bandpassBiquad(lowHz, highHz, sampleHz float64) biquad {
	center := math.Sqrt(lowHz * highHz)
	bandwidth := highHz - lowHz

	omega := 2 * math.Pi * center / sampleHz
	sin := math.Sin(omega)
	cos := math.Cos(omega)
	q := center / bandwidth
	alpha := sin / (2 * q)

	a0 := 1 + alpha
	return biquad{
		b0: (sin / 2) / a0,
		b1: 0,
		b2: (-sin / 2) / a0,
		a1: (-2 * cos) / a0,
		a2: (1 - alpha) / a0,
	}
}

// apply runs the filter over a trace in direct form II transposed.
func (f biquad) apply(in, out []float64) {
	var z1, z2 float64
	for i, x := range in {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		out[i] = y
	}
}

// filtfilt applies the filter forward and backward over a trace for zero
// phase distortion, writing the result in place.
func filtfilt(f biquad, trace []float32) {
	n := len(trace)
	if n == 0 {
		return
	}
	forward := make([]float64, n)
	backward := make([]float64, n)
	for i, v := range trace {
		forward[i] = float64(v)
	}

	f.apply(forward, backward)
	reverse(backward)
	f.apply(backward, forward)
	reverse(forward)

	for i := range trace {
		trace[i] = float32(forward[i])
	}
}

func reverse(values []float64) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}
