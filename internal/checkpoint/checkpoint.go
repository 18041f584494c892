// Package checkpoint persists mid-crawl progress so an interrupted run can
// resume without re-inspecting tables it already finished.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyz2023/odps-crawler/internal/snapshot"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists for the project.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint is the crawl's durable progress state. One checkpoint file per
// project, overwritten in place on every save.
type Checkpoint struct {
	RunID          string                              `json:"run_id"`
	Project        string                              `json:"project"`
	Processed      map[string]*warehouse.TableMetadata `json:"processed"`
	Errored        []snapshot.SkippedTable             `json:"errored"`
	ProcessedCount int                                 `json:"processed_count"`
	TotalCount     int                                 `json:"total_count"`
	UpdatedAt      time.Time                           `json:"updated_at"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the current checkpoint for the project.
	Load(ctx context.Context, project string) (*Checkpoint, error)

	// Save persists the checkpoint, replacing any previous one.
	Save(ctx context.Context, cp *Checkpoint) error

	// Clear removes the checkpoint after a successful finalize.
	Clear(ctx context.Context, project string) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager persists checkpoints to local files.
type fileManager struct {
	dir string
}

func (m *fileManager) path(project string) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", project))
}

// Load reads the project's checkpoint from file.
func (m *fileManager) Load(ctx context.Context, project string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path(project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	if cp.Processed == nil {
		cp.Processed = make(map[string]*warehouse.TableMetadata)
	}
	return &cp, nil
}

// Save persists the checkpoint to file, atomically via temp file + rename.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	path := m.path(cp.Project)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// Clear removes the project's checkpoint file. Missing files are not errors:
// a run without interruptions never saved one.
func (m *fileManager) Clear(ctx context.Context, project string) error {
	err := os.Remove(m.path(project))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}

// noopManager is used when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, project string) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error { return nil }

func (m *noopManager) Clear(ctx context.Context, project string) error { return nil }
