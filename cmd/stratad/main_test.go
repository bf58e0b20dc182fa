package main

import (
	"path/filepath"
	"testing"

	"strata/internal/config"
	"strata/internal/taskqueue"
)

func TestBuildSocketPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	expected := filepath.Join(cfg.Paths.LogDir, "strata.sock")
	if got := buildSocketPath(&cfg); got != expected {
		t.Fatalf("expected socket path %q, got %q", expected, got)
	}

	if got := buildSocketPath(nil); got != filepath.Join("", "strata.sock") {
		t.Fatalf("expected default socket path %q, got %q", filepath.Join("", "strata.sock"), got)
	}
}

func TestBuildAdapterSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.TaskQueue.Backend = config.BackendInProc
	cfg.TaskQueue.Workers = 1

	exec := &taskqueue.Executor{}
	adapter, err := buildAdapter(&cfg, exec, nil, nil)
	if err != nil {
		t.Fatalf("inproc backend: %v", err)
	}
	if adapter == nil {
		t.Fatal("inproc backend returned nil adapter")
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("close adapter: %v", err)
	}

	cfg.TaskQueue.Backend = "carrier-pigeon"
	if _, err := buildAdapter(&cfg, exec, nil, nil); err == nil {
		t.Fatal("unknown backend should be rejected")
	}
}
