package main

import (
	"io"
	"strings"
	"testing"

	"strata/internal/ipc"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Processing", statusOK, "pid 123", false)
	if !strings.Contains(line, "Processing:") || !strings.Contains(line, "[OK] pid 123") {
		t.Fatalf("unexpected status line: %q", line)
	}
	if strings.Contains(line, ansiGreen) {
		t.Fatal("colorize=false must not emit ANSI codes")
	}

	colored := renderStatusLine("Processing", statusError, "stopped", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("colorized line missing ANSI wrapping: %q", colored)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("Queue", false)
	if len(lines) != 2 {
		t.Fatalf("expected header and rule, got %v", lines)
	}
	if lines[0] != "== Queue ==" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines[1]) != len(lines[0]) {
		t.Fatalf("rule length %d != header length %d", len(lines[1]), len(lines[0]))
	}
}

func TestShouldColorizeNonTerminal(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("non-file writers must not colorize")
	}
}

func TestRenderQueueStats(t *testing.T) {
	out := renderQueueStats(&ipc.StatusResponse{
		QueueStats: map[string]int{
			"total":     7,
			"waiting":   2,
			"running":   1,
			"succeeded": 3,
			"failed":    1,
			"cancelled": 0,
		},
	})
	for _, want := range []string{"waiting", "running", "succeeded", "failed", "cancelled", "total", "7"} {
		if !strings.Contains(out, want) {
			t.Errorf("queue table missing %q:\n%s", want, out)
		}
	}
}
