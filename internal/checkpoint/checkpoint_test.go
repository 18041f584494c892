package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyz2023/odps-crawler/internal/snapshot"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

func newFileManager(t *testing.T) (Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{Enabled: true, Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, dir
}

func TestSaveLoadRoundtrip(t *testing.T) {
	m, dir := newFileManager(t)
	ctx := context.Background()

	cp := &Checkpoint{
		RunID:   "run-1",
		Project: "analytics",
		Processed: map[string]*warehouse.TableMetadata{
			"orders": {Name: "orders", SizeBytes: 123},
		},
		Errored:        []snapshot.SkippedTable{{Name: "broken", Reason: snapshot.ReasonTimeout}},
		ProcessedCount: 2,
		TotalCount:     10,
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := m.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "checkpoint_analytics.json")); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	got, err := m.Load(ctx, "analytics")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != cp.RunID || got.ProcessedCount != 2 || got.TotalCount != 10 {
		t.Errorf("loaded checkpoint = %+v", got)
	}
	if md := got.Processed["orders"]; md == nil || md.SizeBytes != 123 {
		t.Errorf("Processed[orders] = %+v", md)
	}
	if len(got.Errored) != 1 || got.Errored[0].Reason != snapshot.ReasonTimeout {
		t.Errorf("Errored = %v", got.Errored)
	}
}

func TestLoadMissingReturnsErrNoCheckpoint(t *testing.T) {
	m, _ := newFileManager(t)
	if _, err := m.Load(context.Background(), "nothing"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load = %v, want ErrNoCheckpoint", err)
	}
}

func TestSaveOverwritesInPlace(t *testing.T) {
	m, dir := newFileManager(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		cp := &Checkpoint{RunID: "run-1", Project: "p", ProcessedCount: i * 50, TotalCount: 200}
		if err := m.Save(ctx, cp); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1 (overwritten in place)", len(entries))
	}

	got, err := m.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ProcessedCount != 150 {
		t.Errorf("ProcessedCount = %d, want 150", got.ProcessedCount)
	}
}

func TestClear(t *testing.T) {
	m, _ := newFileManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, &Checkpoint{RunID: "r", Project: "p"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Clear(ctx, "p"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := m.Load(ctx, "p"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load after Clear = %v, want ErrNoCheckpoint", err)
	}
	// Clearing twice is fine.
	if err := m.Clear(ctx, "p"); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestNoopManager(t *testing.T) {
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.Save(ctx, &Checkpoint{Project: "p"}); err != nil {
		t.Errorf("noop Save: %v", err)
	}
	if _, err := m.Load(ctx, "p"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("noop Load = %v, want ErrNoCheckpoint", err)
	}
	if err := m.Clear(ctx, "p"); err != nil {
		t.Errorf("noop Clear: %v", err)
	}
}
