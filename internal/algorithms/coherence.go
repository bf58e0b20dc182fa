package algorithms

import "math"

// coherenceVolume computes a structure-tensor coherence attribute over the
// whole volume. Gradients come from central differences, the tensor is
// averaged over a cubic window, and the per-voxel coherence is
// (λ1-λ2)/(λ1+λ2+λ3) from the sorted eigenvalues. Values land in [0, 1]:
// near 1 means locally planar reflectors, near 0 means chaotic texture.
func coherenceVolume(data []float32, inlines, crosslines, samples, window int) []float32 {
	n := len(data)
	index := func(il, xl, s int) int {
		return (il*crosslines+xl)*samples + s
	}
	at := func(il, xl, s int) float64 {
		if il < 0 {
			il = 0
		} else if il >= inlines {
			il = inlines - 1
		}
		if xl < 0 {
			xl = 0
		} else if xl >= crosslines {
			xl = crosslines - 1
		}
		if s < 0 {
			s = 0
		} else if s >= samples {
			s = samples - 1
		}
		return float64(data[index(il, xl, s)])
	}

	// Gradient fields, one per axis.
	gi := make([]float64, n)
	gx := make([]float64, n)
	gs := make([]float64, n)
	for il := 0; il < inlines; il++ {
		for xl := 0; xl < crosslines; xl++ {
			for s := 0; s < samples; s++ {
				i := index(il, xl, s)
				gi[i] = (at(il+1, xl, s) - at(il-1, xl, s)) / 2
				gx[i] = (at(il, xl+1, s) - at(il, xl-1, s)) / 2
				gs[i] = (at(il, xl, s+1) - at(il, xl, s-1)) / 2
			}
		}
	}

	radius := window / 2
	out := make([]float32, n)
	for il := 0; il < inlines; il++ {
		for xl := 0; xl < crosslines; xl++ {
			for s := 0; s < samples; s++ {
				var t11, t12, t13, t22, t23, t33 float64
				var count float64
				for di := -radius; di <= radius; di++ {
					wi := il + di
					if wi < 0 || wi >= inlines {
						continue
					}
					for dx := -radius; dx <= radius; dx++ {
						wx := xl + dx
						if wx < 0 || wx >= crosslines {
							continue
						}
						for ds := -radius; ds <= radius; ds++ {
							ws := s + ds
							if ws < 0 || ws >= samples {
								continue
							}
							j := index(wi, wx, ws)
							a, b, c := gi[j], gx[j], gs[j]
							t11 += a * a
							t12 += a * b
							t13 += a * c
							t22 += b * b
							t23 += b * c
							t33 += c * c
							count++
						}
					}
				}
				if count > 0 {
					t11 /= count
					t12 /= count
					t13 /= count
					t22 /= count
					t23 /= count
					t33 /= count
				}
				l1, l2, l3 := symEigenvalues3(t11, t12, t13, t22, t23, t33)
				trace := l1 + l2 + l3
				if trace <= 1e-12 {
					out[index(il, xl, s)] = 0
					continue
				}
				c := (l1 - l2) / trace
				if c < 0 {
					c = 0
				} else if c > 1 {
					c = 1
				}
				out[index(il, xl, s)] = float32(c)
			}
		}
	}
	return out
}

// symEigenvalues3 returns the eigenvalues of a symmetric 3x3 matrix in
// descending order, using the trigonometric closed form.
func symEigenvalues3(a11, a12, a13, a22, a23, a33 float64) (l1, l2, l3 float64) {
	offSq := a12*a12 + a13*a13 + a23*a23
	if offSq < 1e-30 {
		return sortDesc3(a11, a22, a33)
	}

	q := (a11 + a22 + a33) / 3
	b11, b22, b33 := a11-q, a22-q, a33-q
	p := math.Sqrt((b11*b11 + b22*b22 + b33*b33 + 2*offSq) / 6)
	if p < 1e-30 {
		return q, q, q
	}

	// det(B/p) for the shifted, scaled matrix.
	c11, c22, c33 := b11/p, b22/p, b33/p
	c12, c13, c23 := a12/p, a13/p, a23/p
	det := c11*(c22*c33-c23*c23) - c12*(c12*c33-c23*c13) + c13*(c12*c23-c22*c13)

	r := det / 2
	if r < -1 {
		r = -1
	} else if r > 1 {
		r = 1
	}
	phi := math.Acos(r) / 3

	l1 = q + 2*p*math.Cos(phi)
	l3 = q + 2*p*math.Cos(phi+2*math.Pi/3)
	l2 = 3*q - l1 - l3
	return l1, l2, l3
}

func sortDesc3(a, b, c float64) (float64, float64, float64) {
	if a < b {
		a, b = b, a
	}
	if b < c {
		b, c = c, b
	}
	if a < b {
		a, b = b, a
	}
	return a, b, c
}
