package registry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"strata/internal/dataset"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

func noopExecute(context.Context, *dataset.Handle, registry.Params, registry.ProgressFunc) (*results.Artifact, error) {
	return &results.Artifact{}, nil
}

func bandpassSpec() registry.AlgorithmSpec {
	return registry.AlgorithmSpec{
		Name: "noise_reduction",
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "filter_type", Type: registry.TypeString, Default: "bandpass", OneOf: []string{"bandpass"}},
				{Name: "low_frequency", Type: registry.TypeFloat, Default: 5.0, Min: registry.FloatPtr(0.1)},
				{Name: "high_frequency", Type: registry.TypeFloat, Default: 80.0, Max: registry.FloatPtr(500)},
			},
			Check: func(p registry.Params) error {
				if p.Float("low_frequency") >= p.Float("high_frequency") {
					return fmt.Errorf("low_frequency must be below high_frequency")
				}
				return nil
			},
		},
		Execute: noopExecute,
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(bandpassSpec()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.Register(bandpassSpec())
	if !errors.Is(err, services.ErrDuplicateAlgorithm) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := registry.New().Resolve("fictional")
	if !errors.Is(err, services.ErrUnknownAlgorithm) {
		t.Fatalf("expected unknown-algorithm, got %v", err)
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(bandpassSpec()); err != nil {
		t.Fatalf("register: %v", err)
	}

	params, err := reg.Validate("noise_reduction", map[string]any{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if params.Float("low_frequency") != 5.0 || params.Float("high_frequency") != 80.0 {
		t.Fatalf("defaults not applied: %v", params)
	}
	if params.String("filter_type") != "bandpass" {
		t.Fatalf("filter_type = %q", params.String("filter_type"))
	}
}

func TestValidateCrossFieldBound(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(bandpassSpec()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Validate("noise_reduction", map[string]any{
		"low_frequency":  60.0,
		"high_frequency": 50.0,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for inverted band, got %v", err)
	}
}

func TestValidateRejectsUnknownParameter(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(bandpassSpec()); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := reg.Validate("noise_reduction", map[string]any{"passes": 2})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateTypeAndBounds(t *testing.T) {
	reg := registry.New()
	spec := registry.AlgorithmSpec{
		Name: "agc",
		Schema: registry.Schema{
			Fields: []registry.ParamSpec{
				{Name: "window_length", Type: registry.TypeInt, Default: 100, Min: registry.FloatPtr(1), Max: registry.FloatPtr(10000)},
			},
		},
		Execute: noopExecute,
	}
	if err := reg.Register(spec); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := reg.Validate("agc", map[string]any{"window_length": "wide"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("string for int should fail, got %v", err)
	}
	if _, err := reg.Validate("agc", map[string]any{"window_length": 2.5}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("fractional int should fail, got %v", err)
	}
	if _, err := reg.Validate("agc", map[string]any{"window_length": 0}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("below-min should fail, got %v", err)
	}

	// JSON decoding yields float64 for whole numbers; those must coerce.
	params, err := reg.Validate("agc", map[string]any{"window_length": 64.0})
	if err != nil {
		t.Fatalf("whole float should coerce to int: %v", err)
	}
	if params.Int("window_length") != 64 {
		t.Fatalf("window_length = %d", params.Int("window_length"))
	}
}

func TestNamesSorted(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"migration", "agc", "noise_reduction"} {
		spec := registry.AlgorithmSpec{Name: name, Execute: noopExecute}
		if err := reg.Register(spec); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	names := reg.Names()
	want := []string{"agc", "migration", "noise_reduction"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}
