package dataset

import (
	"context"
	"time"
)

// Info describes a registered seismic volume. Mirrors the catalog metadata
// kept by the upload subsystem; this package only ever reads it.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Format       string    `json:"format"`
	Inlines      int       `json:"inlines"`
	Crosslines   int       `json:"crosslines"`
	Samples      int       `json:"samples"`
	SampleRateMs float64   `json:"sample_rate_ms"`
	AcquiredAt   time.Time `json:"acquired_at,omitzero"`
}

// TraceCount returns the number of traces in the volume.
func (i Info) TraceCount() int {
	return i.Inlines * i.Crosslines
}

// Handle is a read-only view over a loaded seismic volume. Algorithms
// receive a handle and must not retain it past a single invocation.
type Handle struct {
	info Info
	data []float32
}

// Info returns the volume metadata.
func (h *Handle) Info() Info { return h.info }

// Dims returns the inline, crossline, and sample extents.
func (h *Handle) Dims() (inlines, crosslines, samples int) {
	return h.info.Inlines, h.info.Crosslines, h.info.Samples
}

// SampleRateMs returns the sample interval in milliseconds.
func (h *Handle) SampleRateMs() float64 { return h.info.SampleRateMs }

// At returns the amplitude at an inline/crossline/sample index.
func (h *Handle) At(inline, crossline, sample int) float32 {
	return h.data[(inline*h.info.Crosslines+crossline)*h.info.Samples+sample]
}

// Trace returns the sample slice for one trace. The slice aliases the
// underlying volume; callers must treat it as read-only.
func (h *Handle) Trace(inline, crossline int) []float32 {
	start := (inline*h.info.Crosslines + crossline) * h.info.Samples
	return h.data[start : start+h.info.Samples]
}

// Data returns the full volume in trace-major order. Read-only.
func (h *Handle) Data() []float32 { return h.data }

// Provider opens registered datasets by identifier. Stat reads metadata
// only, for callers that need existence and extents without the volume.
type Provider interface {
	Open(ctx context.Context, datasetID string) (*Handle, error)
	Stat(ctx context.Context, datasetID string) (Info, error)
	List(ctx context.Context) ([]Info, error)
}
