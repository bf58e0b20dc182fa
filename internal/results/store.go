package results

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
	"time"

	"strata/internal/jobs"
	"strata/internal/services"
)

const (
	metaFileName = "meta.json"
	dataFileName = "artifact.f32"
)

// Store persists result artifacts on disk, one directory per job id.
// Writes replace atomically so a retried job overwrites its earlier
// artifact instead of accumulating duplicates.
type Store struct {
	dir  string
	jobs *jobs.Store
}

// NewStore builds a result store rooted at dir. The job store backs the
// terminal-state check guarding deletion.
func NewStore(dir string, jobStore *jobs.Store) *Store {
	return &Store{dir: dir, jobs: jobStore}
}

// Put persists an artifact for a job, overwriting any previous attempt.
func (s *Store) Put(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.JobID == "" {
		return errors.New("artifact requires a job id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	finalDir := filepath.Join(s.dir, artifact.JobID)
	tmpDir := finalDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	meta, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, metaFileName), meta, 0o644); err != nil {
		return fmt.Errorf("write artifact metadata: %w", err)
	}

	raw := make([]byte, len(artifact.Data)*4)
	for i, v := range artifact.Data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(filepath.Join(tmpDir, dataFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write artifact data: %w", err)
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// Get loads the artifact for a job id.
func (s *Store) Get(ctx context.Context, jobID string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metaPath := filepath.Join(s.dir, jobID, metaFileName)
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "results", "get", fmt.Sprintf("no artifact for job %s", jobID), nil)
		}
		return nil, fmt.Errorf("read artifact metadata: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(meta, &artifact); err != nil {
		return nil, fmt.Errorf("parse artifact metadata: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, jobID, dataFileName))
	if err != nil {
		return nil, fmt.Errorf("read artifact data: %w", err)
	}
	artifact.Data = make([]float32, len(raw)/4)
	for i := range artifact.Data {
		artifact.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &artifact, nil
}

// Delete removes a job's artifact. Deleting ahead of the job's terminal
// state is refused so an in-flight job cannot lose its future output.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if s.jobs != nil {
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job != nil && !job.State.IsTerminal() {
			return services.Wrap(services.ErrJobNotTerminal, "results", "delete",
				fmt.Sprintf("job %s is %s", jobID, job.State), nil)
		}
	}
	if err := os.RemoveAll(filepath.Join(s.dir, jobID)); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Exists reports whether an artifact is present for a job id.
func (s *Store) Exists(jobID string) bool {
	_, err := os.Stat(filepath.Join(s.dir, jobID, metaFileName))
	return err == nil
}
