package algorithms

import (
	"context"
	"fmt"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// noiseReductionSpec applies a zero-phase bandpass to every trace,
// suppressing energy outside the configured passband.
func noiseReductionSpec() registry.AlgorithmSpec {
	return registry.AlgorithmSpec{
		Name:        "noise_reduction",
		Description: "Zero-phase bandpass filter applied trace by trace",
		Cost:        1,
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "filter_type", Type: registry.TypeString, Default: "bandpass", OneOf: []string{"bandpass"}},
				{Name: "low_frequency", Type: registry.TypeFloat, Default: 5.0, Min: registry.FloatPtr(0.1)},
				{Name: "high_frequency", Type: registry.TypeFloat, Default: 80.0, Min: registry.FloatPtr(0.1)},
				{Name: "sample_rate", Type: registry.TypeFloat, Default: 4.0, Min: registry.FloatPtr(0.1)},
			},
			Check: func(p registry.Params) error {
				if p.Float("low_frequency") >= p.Float("high_frequency") {
					return fmt.Errorf("low_frequency %v must be below high_frequency %v",
						p.Float("low_frequency"), p.Float("high_frequency"))
				}
				// Passband must sit under Nyquist for the configured interval.
				nyquist := 1000.0 / p.Float("sample_rate") / 2
				if p.Float("high_frequency") >= nyquist {
					return fmt.Errorf("high_frequency %v exceeds Nyquist %v Hz for sample_rate %v ms",
						p.Float("high_frequency"), nyquist, p.Float("sample_rate"))
				}
				return nil
			},
		},
		Execute: runNoiseReduction,
	}
}

func runNoiseReduction(ctx context.Context, handle *dataset.Handle, params registry.Params, progress registry.ProgressFunc) (*results.Artifact, error) {
	inlines, crosslines, samples := handle.Dims()
	sampleHz := 1000.0 / params.Float("sample_rate")
	filter := bandpassBiquad(params.Float("low_frequency"), params.Float("high_frequency"), sampleHz)

	out := make([]float32, len(handle.Data()))
	copy(out, handle.Data())
	traces := inlines * crosslines
	for t := 0; t < traces; t++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, "algorithms", "noise_reduction", "cancelled mid-volume", err)
		}
		start := t * samples
		filtfilt(filter, out[start:start+samples])
		reportTraceProgress(progress, t, traces, "filtering traces")
	}

	return newArtifact(handle, "noise_reduction", out), nil
}
