// Package algorithms implements the built-in seismic processing
// algorithms: bandpass noise reduction, Kirchhoff-style migration,
// coherence and amplitude attribute analysis, and automatic gain control.
// Each algorithm registers a parameter schema so submissions are rejected
// before a job row ever exists.
package algorithms
