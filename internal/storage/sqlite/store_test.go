package sqlite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// setupTestStore creates a temporary SQLite database for testing
func setupTestStore(t *testing.T, maxRuns int) *Store {
	t.Helper()

	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	cfg.MaxRuns = maxRuns
	cfg.FlushInterval = 10 * time.Millisecond

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testRun(id, dataset string, created time.Time) *models.Run {
	return &models.Run{
		ID:          id,
		Dataset:     dataset,
		Elements:    2000,
		Distinct:    1000,
		Simulations: 10,
		Hash:        "murmur3",
		Seed:        math.MaxUint64 - 1,
		Created:     created.UTC(),
		ElapsedMS:   12,
		Points: []models.Point{
			{Algorithm: "hll", Pow: 4, Parameter: 4, Registers: 16, Mean: 1010, StdDev: 200, Min: 700, Max: 1400, RelativeError: 0.01, StandardError: 0.26, MemoryBytes: 48},
			{Algorithm: "hll", Pow: 5, Parameter: 5, Registers: 32, Mean: 995},
			{Algorithm: "rec", Pow: 4, Parameter: 16, Registers: 16, Mean: 1020},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()

	run := testRun("run-1", "words", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if got.Seed != run.Seed {
		t.Errorf("expected seed %d, got %d", run.Seed, got.Seed)
	}
	if !got.Created.Equal(run.Created) {
		t.Errorf("expected created %v, got %v", run.Created, got.Created)
	}
	if len(got.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got.Points))
	}
	if got.Points[0] != run.Points[0] {
		t.Errorf("point mismatch:\nwant %+v\ngot  %+v", run.Points[0], got.Points[0])
	}
	if got.Points[2].Algorithm != "rec" {
		t.Errorf("expected points in insertion order, got %+v", got.Points)
	}
}

func TestSaveRunConflict(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()

	if err := store.SaveRun(ctx, testRun("dup", "d", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := store.SaveRun(ctx, testRun("dup", "d", time.Now())); !errors.Is(err, models.ErrRunExists) {
		t.Errorf("expected ErrRunExists, got %v", err)
	}

	// The conflicting write must not have poisoned later writes
	if err := store.SaveRun(ctx, testRun("other", "d", time.Now())); err != nil {
		t.Errorf("SaveRun after conflict failed: %v", err)
	}
}

func TestMaxRuns(t *testing.T) {
	store := setupTestStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.SaveRun(ctx, testRun(fmt.Sprintf("r%d", i), "d", time.Now())); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}
	if err := store.SaveRun(ctx, testRun("r2", "d", time.Now())); !errors.Is(err, models.ErrTooManyRuns) {
		t.Errorf("expected ErrTooManyRuns, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, dataset := range []string{"words", "zipf", "words"} {
		run := testRun(fmt.Sprintf("r%d", i), dataset, base.Add(time.Duration(i)*time.Minute))
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	all, err := store.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r2" {
		t.Fatalf("expected 3 runs newest first, got %+v", all)
	}
	if all[0].Points != 3 || len(all[0].Algorithms) != 2 {
		t.Errorf("unexpected summary: %+v", all[0])
	}

	words, err := store.ListRuns(ctx, "words")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(words) != 2 {
		t.Errorf("expected 2 runs, got %d", len(words))
	}
}

func TestDeleteAndClear(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.SaveRun(ctx, testRun(id, "d", time.Now())); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	if err := store.DeleteRun(ctx, "a"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := store.GetRun(ctx, "a"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := store.DeleteRun(ctx, "a"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound on second delete, got %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	runs, _ := store.ListRuns(ctx, "")
	if len(runs) != 0 {
		t.Errorf("expected no runs after Clear, got %d", len(runs))
	}
}

func TestNonFiniteValues(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()

	run := testRun("inf", "d", time.Now())
	run.Points[0].Mean = math.Inf(1)
	run.Points[0].StdDev = math.NaN()

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	got, err := store.GetRun(ctx, "inf")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Points[0].Mean != math.MaxFloat64 || got.Points[0].StdDev != 0 {
		t.Errorf("unexpected stored values: %+v", got.Points[0])
	}
}

func TestConcurrentWrites(t *testing.T) {
	store := setupTestStore(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.SaveRun(ctx, testRun(fmt.Sprintf("c%d", i), "d", time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent SaveRun failed: %v", err)
		}
	}

	runs, _ := store.ListRuns(ctx, "")
	if len(runs) != 50 {
		t.Errorf("expected 50 runs, got %d", len(runs))
	}
}

func TestClosedStore(t *testing.T) {
	store := setupTestStore(t, 0)
	store.Close()

	if err := store.SaveRun(context.Background(), testRun("late", "d", time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
