package services_test

import (
	"errors"
	"testing"

	"strata/internal/services"
)

func TestWrapPreservesMarker(t *testing.T) {
	err := services.Wrap(services.ErrTransient, "taskqueue", "submit", "broker unreachable", errors.New("dial tcp: refused"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatal("IsTransient should report true")
	}
	if services.IsFatal(err) {
		t.Fatal("transient error must not classify as fatal")
	}
}

func TestClassifyDefaultsToFatal(t *testing.T) {
	err := services.Classify(errors.New("corrupt trace header"))
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("untagged error should default to fatal, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatal("fatal classification must not be transient")
	}
}

func TestClassifyKeepsExistingMarker(t *testing.T) {
	orig := services.Wrap(services.ErrTransient, "worker", "execute", "timeout waiting for chunk", nil)
	if got := services.Classify(orig); !errors.Is(got, services.ErrTransient) {
		t.Fatalf("classification overwrote marker: %v", got)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "dispatcher", "watchdog", "execution deadline exceeded", nil)
	if !services.IsTransient(err) {
		t.Fatal("timeouts must follow the transient retry path")
	}
}

func TestDetailStripsSentinelPrefix(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "registry", "validate", "low_frequency must be below high_frequency", nil)
	got := services.Detail(err)
	want := "registry: validate: low_frequency must be below high_frequency"
	if got != want {
		t.Fatalf("Detail = %q, want %q", got, want)
	}
}

func TestKindLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrValidation, "registry", "validate", "bad", nil), "validation"},
		{services.Wrap(services.ErrTimeout, "dispatcher", "watchdog", "late", nil), "timeout"},
		{services.Wrap(services.ErrFatal, "worker", "execute", "corrupt", nil), "fatal"},
		{errors.New("plain"), "unclassified"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
