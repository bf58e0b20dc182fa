package dataset

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"strata/internal/services"
)

const (
	metaFileName   = "meta.json"
	volumeFileName = "volume.f32"
)

// DirProvider serves datasets from a directory tree: one subdirectory per
// dataset id, holding meta.json and a raw little-endian float32 volume in
// trace-major order.
type DirProvider struct {
	root string
}

// NewDirProvider builds a provider rooted at the given directory.
func NewDirProvider(root string) *DirProvider {
	return &DirProvider{root: root}
}

// Open loads a dataset volume into memory for read-only access.
func (p *DirProvider) Open(ctx context.Context, datasetID string) (*Handle, error) {
	info, err := p.readInfo(datasetID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(p.root, datasetID, volumeFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "dataset", "open", fmt.Sprintf("volume missing for %s", datasetID), nil)
		}
		return nil, fmt.Errorf("read volume: %w", err)
	}

	want := info.TraceCount() * info.Samples * 4
	if len(raw) != want {
		return nil, services.Wrap(services.ErrFatal, "dataset", "open",
			fmt.Sprintf("volume size %d does not match metadata (%d bytes expected)", len(raw), want), nil)
	}

	data := make([]float32, len(raw)/4)
	for i := range data {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		data[i] = math.Float32frombits(bits)
	}

	return &Handle{info: info, data: data}, nil
}

// Stat returns dataset metadata without loading the volume.
func (p *DirProvider) Stat(ctx context.Context, datasetID string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	return p.readInfo(datasetID)
}

// List enumerates registered datasets in id order.
func (p *DirProvider) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := p.readInfo(entry.Name())
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func (p *DirProvider) readInfo(datasetID string) (Info, error) {
	path := filepath.Join(p.root, datasetID, metaFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, services.Wrap(services.ErrNotFound, "dataset", "open", fmt.Sprintf("dataset %s not registered", datasetID), nil)
		}
		return Info{}, fmt.Errorf("read dataset metadata: %w", err)
	}

	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("parse dataset metadata: %w", err)
	}
	if info.ID == "" {
		info.ID = datasetID
	}
	if info.Inlines <= 0 || info.Crosslines <= 0 || info.Samples <= 0 {
		return Info{}, services.Wrap(services.ErrFatal, "dataset", "open",
			fmt.Sprintf("dataset %s has invalid extents %dx%dx%d", datasetID, info.Inlines, info.Crosslines, info.Samples), nil)
	}
	return info, nil
}

// Write registers a dataset under the provider root. Intended for catalog
// tooling and tests; the production upload path lives outside this system.
func Write(root string, info Info, data []float32) error {
	if info.ID == "" {
		return errors.New("dataset id required")
	}
	if len(data) != info.TraceCount()*info.Samples {
		return fmt.Errorf("data length %d does not match extents %dx%dx%d",
			len(data), info.Inlines, info.Crosslines, info.Samples)
	}

	dir := filepath.Join(root, info.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	meta, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), meta, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	raw := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(filepath.Join(dir, volumeFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write volume: %w", err)
	}
	return nil
}
