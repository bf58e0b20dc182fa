package algorithms

import (
	"context"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// migrationSpec approximates Kirchhoff time migration with an isotropic
// Gaussian diffusion of the stacked volume. The sigma parameter controls
// the aperture of the smoothing operator.
func migrationSpec() registry.AlgorithmSpec {
	return registry.AlgorithmSpec{
		Name:        "migration",
		Description: "Kirchhoff-style migration via Gaussian aperture smoothing",
		Cost:        3,
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "migration_type", Type: registry.TypeString, Default: "kirchhoff", OneOf: []string{"kirchhoff"}},
				{Name: "sigma", Type: registry.TypeFloat, Default: 1.0, Min: registry.FloatPtr(0.1), Max: registry.FloatPtr(10.0)},
			},
		},
		Execute: runMigration,
	}
}

func runMigration(ctx context.Context, handle *dataset.Handle, params registry.Params, progress registry.ProgressFunc) (*results.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "algorithms", "migration", "cancelled before smoothing", err)
	}
	if progress != nil {
		progress(0.1, "building migration operator")
	}

	inlines, crosslines, samples := handle.Dims()
	out := gaussianSmooth3D(handle.Data(), inlines, crosslines, samples, params.Float("sigma"))

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "algorithms", "migration", "cancelled mid-volume", err)
	}
	if progress != nil {
		progress(0.95, "migration smoothing complete")
	}
	return newArtifact(handle, "migration", out), nil
}
