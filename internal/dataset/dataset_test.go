package dataset_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"strata/internal/dataset"
	"strata/internal/services"
)

func sampleInfo(id string) dataset.Info {
	return dataset.Info{
		ID:           id,
		Name:         "Test Survey",
		Format:       "f32",
		Inlines:      2,
		Crosslines:   3,
		Samples:      4,
		SampleRateMs: 4,
	}
}

func TestWriteOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	info := sampleInfo("survey-1")
	data := make([]float32, info.TraceCount()*info.Samples)
	for i := range data {
		data[i] = float32(i) * 0.5
	}
	if err := dataset.Write(root, info, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	handle, err := dataset.NewDirProvider(root).Open(context.Background(), "survey-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	inlines, crosslines, samples := handle.Dims()
	if inlines != 2 || crosslines != 3 || samples != 4 {
		t.Fatalf("dims = %d %d %d", inlines, crosslines, samples)
	}
	if got := handle.At(1, 2, 3); got != data[len(data)-1] {
		t.Fatalf("At last = %v, want %v", got, data[len(data)-1])
	}
	trace := handle.Trace(0, 1)
	if len(trace) != 4 || trace[0] != data[4] {
		t.Fatalf("trace = %v", trace)
	}
}

func TestOpenUnknownDataset(t *testing.T) {
	provider := dataset.NewDirProvider(t.TempDir())
	_, err := provider.Open(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestOpenRejectsTruncatedVolume(t *testing.T) {
	root := t.TempDir()
	info := sampleInfo("survey-1")
	if err := dataset.Write(root, info, make([]float32, info.TraceCount()*info.Samples)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(root, "survey-1", "volume.f32")
	if err := os.Truncate(path, 8); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	_, err := dataset.NewDirProvider(root).Open(context.Background(), "survey-1")
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal size-mismatch error, got %v", err)
	}
}

func TestWriteRejectsExtentMismatch(t *testing.T) {
	if err := dataset.Write(t.TempDir(), sampleInfo("survey-1"), make([]float32, 1)); err == nil {
		t.Fatal("expected extent mismatch error")
	}
}

func TestStatReadsMetadataWithoutVolume(t *testing.T) {
	root := t.TempDir()
	info := sampleInfo("survey-1")
	if err := dataset.Write(root, info, make([]float32, info.TraceCount()*info.Samples)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "survey-1", "volume.f32")); err != nil {
		t.Fatalf("remove volume: %v", err)
	}

	provider := dataset.NewDirProvider(root)
	got, err := provider.Stat(context.Background(), "survey-1")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got.ID != "survey-1" || got.Samples != 4 {
		t.Fatalf("info = %+v", got)
	}

	if _, err := provider.Stat(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestListSortsByID(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"survey-b", "survey-a"} {
		info := sampleInfo(id)
		if err := dataset.Write(root, info, make([]float32, info.TraceCount()*info.Samples)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	infos, err := dataset.NewDirProvider(root).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "survey-a" {
		t.Fatalf("infos = %v", infos)
	}
}
