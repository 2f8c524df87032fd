package archive

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

func newTestStore(t *testing.T, maxRuns int) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := New(Config{Dir: dir, MaxRunSize: 1024 * 1024, MaxRuns: maxRuns})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store, dir
}

func testRun(id, dataset string, created time.Time) *models.Run {
	return &models.Run{
		ID:          id,
		Dataset:     dataset,
		Elements:    100,
		Distinct:    50,
		Simulations: 3,
		Created:     created,
		Points: []models.Point{
			{Algorithm: "rec", Pow: 3, Parameter: 8, Registers: 8, Mean: 49.2},
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store, dir := newTestStore(t, 10)
	ctx := context.Background()

	run := testRun("test-run", "words", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	// The file must be a valid gzip stream
	f, err := os.Open(filepath.Join(dir, "test-run.json.gz"))
	if err != nil {
		t.Fatalf("Run file missing: %v", err)
	}
	defer f.Close()
	if _, err := gzip.NewReader(f); err != nil {
		t.Errorf("Run file is not gzip: %v", err)
	}

	loaded, err := store.GetRun(ctx, "test-run")
	if err != nil {
		t.Fatalf("Failed to load run: %v", err)
	}
	if loaded.Dataset != "words" || len(loaded.Points) != 1 || loaded.Points[0].Mean != 49.2 {
		t.Errorf("Loaded run mismatch: %+v", loaded)
	}
	if !loaded.Created.Equal(run.Created) {
		t.Errorf("Created mismatch: got %v", loaded.Created)
	}

	if err := store.SaveRun(ctx, run); !errors.Is(err, models.ErrRunExists) {
		t.Errorf("Expected ErrRunExists, got %v", err)
	}
}

func TestStore_NotFound(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if _, err := store.GetRun(ctx, "../etc/passwd"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound for path-like id, got %v", err)
	}
	if err := store.DeleteRun(ctx, "missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store, dir := newTestStore(t, 10)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, dataset := range []string{"a", "b", "a"} {
		if err := store.SaveRun(ctx, testRun(fmt.Sprintf("run-%d", i), dataset, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	// Corrupted files are skipped
	if err := os.WriteFile(filepath.Join(dir, "broken.json.gz"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("Expected newest first, got %s", runs[0].ID)
	}

	filtered, _ := store.ListRuns(ctx, "a")
	if len(filtered) != 2 {
		t.Errorf("Expected 2 runs for dataset a, got %d", len(filtered))
	}
}

func TestStore_Limits(t *testing.T) {
	store, _ := newTestStore(t, 1)
	ctx := context.Background()

	if err := store.SaveRun(ctx, testRun("one", "d", time.Now())); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if err := store.SaveRun(ctx, testRun("two", "d", time.Now())); !errors.Is(err, models.ErrTooManyRuns) {
		t.Errorf("Expected ErrTooManyRuns, got %v", err)
	}

	small, err := New(Config{Dir: t.TempDir(), MaxRunSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := small.SaveRun(ctx, testRun("big", "d", time.Now())); !errors.Is(err, models.ErrRunTooLarge) {
		t.Errorf("Expected ErrRunTooLarge, got %v", err)
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		if err := store.SaveRun(ctx, testRun(id, "d", time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteRun(ctx, "x"); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, "x"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound after delete, got %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	runs, _ := store.ListRuns(ctx, "")
	if len(runs) != 0 {
		t.Errorf("Expected no runs after clear, got %d", len(runs))
	}
}
