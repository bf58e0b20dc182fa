package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"strata/internal/dataset"
	"strata/internal/results"
	"strata/internal/services"
)

// ProgressFunc lets an algorithm report completion fraction and a short
// status message while it runs. Implementations must tolerate nil.
type ProgressFunc func(fraction float64, message string)

// ExecuteFunc is one unit of seismic computation. Implementations must be
// pure over the handle and parameters: no retained state between calls, so
// a retried job reproduces its first-attempt output.
type ExecuteFunc func(ctx context.Context, handle *dataset.Handle, params Params, progress ProgressFunc) (*results.Artifact, error)

// AlgorithmSpec is a registered capability: a named, schema-validated,
// idempotent computation with a declared scheduling cost.
type AlgorithmSpec struct {
	Name        string
	Description string
	Schema      Schema
	// Cost weights scheduling; heavier algorithms consume more of the
	// dispatcher's global slots. Minimum effective cost is 1.
	Cost    int
	Execute ExecuteFunc
}

// Registry maps algorithm names to their specs. Registration happens once
// at process start; lookups afterwards are read-only.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]AlgorithmSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{specs: make(map[string]AlgorithmSpec)}
}

// Register adds an algorithm. Duplicate names are a configuration error.
func (r *Registry) Register(spec AlgorithmSpec) error {
	if spec.Name == "" {
		return services.Wrap(services.ErrValidation, "registry", "register", "algorithm name required", nil)
	}
	if spec.Execute == nil {
		return services.Wrap(services.ErrValidation, "registry", "register",
			fmt.Sprintf("algorithm %q has no execute function", spec.Name), nil)
	}
	if spec.Cost < 1 {
		spec.Cost = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return services.Wrap(services.ErrDuplicateAlgorithm, "registry", "register", spec.Name, nil)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Resolve returns the spec registered under a name.
func (r *Registry) Resolve(name string) (AlgorithmSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return AlgorithmSpec{}, services.Wrap(services.ErrUnknownAlgorithm, "registry", "resolve", name, nil)
	}
	return spec, nil
}

// Validate resolves an algorithm and checks raw parameters against its
// schema. This is the single point defending workers from malformed
// input; algorithm bodies trust the returned Params.
func (r *Registry) Validate(name string, raw map[string]any) (Params, error) {
	spec, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return spec.Schema.validate(raw)
}

// Names lists registered algorithms alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns registered specs in name order for presentation.
func (r *Registry) Specs() []AlgorithmSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]AlgorithmSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
