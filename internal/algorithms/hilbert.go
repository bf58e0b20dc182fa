package algorithms

import (
	"math"
	"math/cmplx"
)

// fft computes an in-place radix-2 Cooley-Tukey transform. The input
// length must be a power of two; envelope() pads before calling.
func fft(values []complex128, inverse bool) {
	n := len(values)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			values[i], values[j] = values[j], values[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := 2 * math.Pi / float64(length)
		if !inverse {
			angle = -angle
		}
		w := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			root := complex(1, 0)
			half := length / 2
			for k := 0; k < half; k++ {
				even := values[start+k]
				odd := values[start+k+half] * root
				values[start+k] = even + odd
				values[start+k+half] = even - odd
				root *= w
			}
		}
	}

	if inverse {
		scale := complex(1/float64(n), 0)
		for i := range values {
			values[i] *= scale
		}
	}
}

// envelope computes the amplitude envelope of a trace via the analytic
// signal: zero the negative frequencies, double the positive ones, and
// take magnitudes after the inverse transform.
func envelope(trace []float32) []float32 {
	n := len(trace)
	if n == 0 {
		return nil
	}
	size := 1
	for size < n {
		size <<= 1
	}

	spectrum := make([]complex128, size)
	for i, v := range trace {
		spectrum[i] = complex(float64(v), 0)
	}
	fft(spectrum, false)

	// Analytic-signal weighting: DC and Nyquist stay, positives double,
	// negatives vanish.
	for i := 1; i < size/2; i++ {
		spectrum[i] *= 2
	}
	for i := size/2 + 1; i < size; i++ {
		spectrum[i] = 0
	}
	fft(spectrum, true)

	out := make([]float32, n)
	for i := range out {
		out[i] = float32(cmplx.Abs(spectrum[i]))
	}
	return out
}
