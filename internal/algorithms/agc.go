package algorithms

import (
	"context"
	"math"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// agcSpec applies automatic gain control: each sample is divided by the
// RMS amplitude of a sliding window centered on it, balancing weak deep
// reflections against strong shallow ones.
func agcSpec() registry.AlgorithmSpec {
	return registry.AlgorithmSpec{
		Name:        "agc",
		Description: "Automatic gain control with a sliding RMS window",
		Cost:        1,
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "window_length", Type: registry.TypeInt, Default: 100, Min: registry.FloatPtr(2), Max: registry.FloatPtr(5000)},
			},
		},
		Execute: runAGC,
	}
}

func runAGC(ctx context.Context, handle *dataset.Handle, params registry.Params, progress registry.ProgressFunc) (*results.Artifact, error) {
	inlines, crosslines, samples := handle.Dims()
	window := params.Int("window_length")
	if window > samples {
		window = samples
	}

	out := make([]float32, len(handle.Data()))
	traces := inlines * crosslines
	for t := 0; t < traces; t++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, "algorithms", "agc", "cancelled mid-volume", err)
		}
		start := t * samples
		agcTrace(handle.Data()[start:start+samples], out[start:start+samples], window)
		reportTraceProgress(progress, t, traces, "balancing traces")
	}
	return newArtifact(handle, "agc", out), nil
}

// agcTrace gains one trace using a prefix sum of squared amplitudes so
// each window RMS costs O(1). Windows clamp at trace boundaries; an
// all-zero window passes samples through unscaled.
func agcTrace(in, out []float32, window int) {
	n := len(in)
	prefix := make([]float64, n+1)
	for i, v := range in {
		f := float64(v)
		prefix[i+1] = prefix[i] + f*f
	}

	half := window / 2
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		rms := math.Sqrt((prefix[hi] - prefix[lo]) / float64(hi-lo))
		if rms < 1e-10 {
			out[i] = in[i]
			continue
		}
		out[i] = float32(float64(in[i]) / rms)
	}
}
