package algorithms

import (
	"context"
	"fmt"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// attributeAnalysisSpec derives interpretation attributes from a stacked
// volume: structure-tensor coherence for discontinuity mapping, or the
// Hilbert amplitude envelope for reflection strength.
func attributeAnalysisSpec() registry.AlgorithmSpec {
	return registry.AlgorithmSpec{
		Name:        "attribute_analysis",
		Description: "Coherence or amplitude-envelope attribute volumes",
		Cost:        2,
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "attribute_type", Type: registry.TypeString, Required: true, OneOf: []string{"coherence", "amplitude"}},
				{Name: "window_size", Type: registry.TypeInt, Default: 5, Min: registry.FloatPtr(3), Max: registry.FloatPtr(21)},
			},
			Check: func(p registry.Params) error {
				if p.Int("window_size")%2 == 0 {
					return fmt.Errorf("window_size must be odd, got %d", p.Int("window_size"))
				}
				return nil
			},
		},
		Execute: runAttributeAnalysis,
	}
}

func runAttributeAnalysis(ctx context.Context, handle *dataset.Handle, params registry.Params, progress registry.ProgressFunc) (*results.Artifact, error) {
	switch params.String("attribute_type") {
	case "coherence":
		return runCoherence(ctx, handle, params.Int("window_size"), progress)
	case "amplitude":
		return runAmplitude(ctx, handle, progress)
	default:
		// Unreachable after schema validation.
		return nil, services.Wrap(services.ErrValidation, "algorithms", "attribute_analysis",
			fmt.Sprintf("unsupported attribute %q", params.String("attribute_type")), nil)
	}
}

func runCoherence(ctx context.Context, handle *dataset.Handle, window int, progress registry.ProgressFunc) (*results.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "algorithms", "attribute_analysis", "cancelled before coherence", err)
	}
	if progress != nil {
		progress(0.1, "computing structure tensor")
	}

	inlines, crosslines, samples := handle.Dims()
	out := coherenceVolume(handle.Data(), inlines, crosslines, samples, window)

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "algorithms", "attribute_analysis", "cancelled mid-volume", err)
	}
	if progress != nil {
		progress(0.95, "coherence volume complete")
	}
	return newArtifact(handle, "attribute_analysis", out), nil
}

func runAmplitude(ctx context.Context, handle *dataset.Handle, progress registry.ProgressFunc) (*results.Artifact, error) {
	inlines, crosslines, samples := handle.Dims()
	out := make([]float32, len(handle.Data()))
	traces := inlines * crosslines
	for t := 0; t < traces; t++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, "algorithms", "attribute_analysis", "cancelled mid-volume", err)
		}
		start := t * samples
		copy(out[start:start+samples], envelope(handle.Data()[start:start+samples]))
		reportTraceProgress(progress, t, traces, "computing envelopes")
	}
	return newArtifact(handle, "attribute_analysis", out), nil
}
