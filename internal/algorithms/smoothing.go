package algorithms

import "math"

// gaussianKernel builds a normalized 1D kernel with the given standard
// deviation. The radius covers three sigmas, which keeps truncation error
// below a tenth of a percent.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianSmooth3D applies a separable Gaussian along all three axes of a
// trace-major volume. Edges clamp to the nearest valid sample.
func gaussianSmooth3D(data []float32, inlines, crosslines, samples int, sigma float64) []float32 {
	out := make([]float32, len(data))
	copy(out, data)
	kernel := gaussianKernel(sigma)
	if len(kernel) == 1 {
		return out
	}
	tmp := make([]float32, len(data))

	index := func(il, xl, s int) int {
		return (il*crosslines+xl)*samples + s
	}

	// Sample axis: contiguous runs.
	convolveAxis(out, tmp, kernel, samples, inlines*crosslines, func(line, s int) int {
		return line*samples + s
	})
	out, tmp = tmp, out

	// Crossline axis.
	convolveAxis(out, tmp, kernel, crosslines, inlines*samples, func(line, xl int) int {
		return index(line/samples, xl, line%samples)
	})
	out, tmp = tmp, out

	// Inline axis.
	convolveAxis(out, tmp, kernel, inlines, crosslines*samples, func(line, il int) int {
		return index(il, line/samples, line%samples)
	})
	return tmp
}

// convolveAxis convolves every line running along one axis. at maps a
// perpendicular line index and an axis position to a flat volume offset.
func convolveAxis(src, dst []float32, kernel []float64, length, lines int, at func(line, pos int) int) {
	radius := len(kernel) / 2
	for line := 0; line < lines; line++ {
		for pos := 0; pos < length; pos++ {
			var acc float64
			for k := range kernel {
				j := pos + k - radius
				if j < 0 {
					j = 0
				} else if j >= length {
					j = length - 1
				}
				acc += kernel[k] * float64(src[at(line, j)])
			}
			dst[at(line, pos)] = float32(acc)
		}
	}
}
