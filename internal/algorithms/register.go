package algorithms

import (
	"time"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
)

// RegisterBuiltins installs the built-in seismic processing algorithms.
func RegisterBuiltins(r *registry.Registry) error {
	for _, spec := range []registry.AlgorithmSpec{
		noiseReductionSpec(),
		migrationSpec(),
		attributeAnalysisSpec(),
		agcSpec(),
	} {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// newArtifact wraps an output volume with dataset metadata. The executor
// fills in JobID before persisting.
func newArtifact(handle *dataset.Handle, algorithm string, data []float32) *results.Artifact {
	inlines, crosslines, samples := handle.Dims()
	return &results.Artifact{
		DatasetID: handle.Info().ID,
		Algorithm: algorithm,
		Dims:      [3]int{inlines, crosslines, samples},
		Summary:   results.Summarize(data),
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
}

// reportTraceProgress emits coarse progress while looping over traces,
// throttled to roughly one update per percent.
func reportTraceProgress(progress registry.ProgressFunc, done, total int, message string) {
	if progress == nil || total == 0 {
		return
	}
	step := total / 100
	if step == 0 {
		step = 1
	}
	if (done+1)%step == 0 || done+1 == total {
		progress(float64(done+1)/float64(total), message)
	}
}
