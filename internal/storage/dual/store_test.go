package dual

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/cardinality_estimator/internal/storage/memory"
	"github.com/fidde/cardinality_estimator/pkg/models"
)

func testRun(id string) *models.Run {
	return &models.Run{
		ID:          id,
		Dataset:     "words",
		Simulations: 1,
		Created:     time.Now(),
		Points:      []models.Point{{Algorithm: "hll", Pow: 4, Parameter: 4, Registers: 16, Mean: 10}},
	}
}

func TestDualWrite(t *testing.T) {
	primary := memory.New()
	secondary := memory.New()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	store := New(Config{
		Primary:   primary,
		Secondary: secondary,
		Logger:    logger,
	})
	defer store.Close()

	ctx := context.Background()

	if err := store.SaveRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	store.Flush()

	if _, err := primary.GetRun(ctx, "run-1"); err != nil {
		t.Fatalf("primary GetRun failed: %v", err)
	}
	if _, err := secondary.GetRun(ctx, "run-1"); err != nil {
		t.Fatalf("secondary GetRun failed: %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	store.Flush()

	if _, err := secondary.GetRun(ctx, "run-1"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("expected run deleted from secondary, got %v", err)
	}
}

func TestReadFromPrimary(t *testing.T) {
	primary := memory.New()
	secondary := memory.New()

	store := New(Config{
		Primary:   primary,
		Secondary: secondary,
	})
	defer store.Close()

	ctx := context.Background()

	// Write directly to primary only
	if err := primary.SaveRun(ctx, testRun("primary-only")); err != nil {
		t.Fatalf("primary SaveRun failed: %v", err)
	}

	if _, err := store.GetRun(ctx, "primary-only"); err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	runs, err := store.ListRuns(ctx, "")
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected 1 run from primary, got %d (%v)", len(runs), err)
	}

	if _, err := secondary.GetRun(ctx, "primary-only"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound in secondary, got %v", err)
	}
}

func TestSecondaryWriteFailure(t *testing.T) {
	primary := memory.New()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	store := New(Config{
		Primary:   primary,
		Secondary: &failingStore{},
		Logger:    logger,
	})
	defer store.Close()

	ctx := context.Background()

	if err := store.SaveRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("SaveRun should succeed even if secondary fails: %v", err)
	}
	if _, err := primary.GetRun(ctx, "run-1"); err != nil {
		t.Fatalf("primary GetRun failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear should succeed even if secondary fails: %v", err)
	}
}

func TestPrimaryWriteFailure(t *testing.T) {
	secondary := memory.New()

	store := New(Config{
		Primary:   &failingStore{},
		Secondary: secondary,
	})
	defer store.Close()

	ctx := context.Background()

	if err := store.SaveRun(ctx, testRun("run-1")); err == nil {
		t.Fatal("expected primary failure to be returned")
	}
	store.Flush()

	if _, err := secondary.GetRun(ctx, "run-1"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("secondary must not be written when primary fails, got %v", err)
	}
}

func TestMirrorSurvivesCanceledContext(t *testing.T) {
	primary := memory.New()
	secondary := memory.New()

	store := New(Config{Primary: primary, Secondary: &slowStore{Backend: secondary}})
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := store.SaveRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	cancel()
	store.Flush()

	if _, err := secondary.GetRun(context.Background(), "run-1"); err != nil {
		t.Errorf("secondary write lost after cancel: %v", err)
	}
}

// failingStore is a mock storage that always fails writes
type failingStore struct{}

func (f *failingStore) SaveRun(ctx context.Context, run *models.Run) error {
	return errors.New("simulated failure")
}

func (f *failingStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return nil, models.ErrRunNotFound
}

func (f *failingStore) ListRuns(ctx context.Context, dataset string) ([]models.RunSummary, error) {
	return nil, nil
}

func (f *failingStore) DeleteRun(ctx context.Context, id string) error {
	return errors.New("simulated failure")
}

func (f *failingStore) Clear(ctx context.Context) error {
	return errors.New("simulated failure")
}

func (f *failingStore) Close() error {
	return nil
}

// slowStore delays writes and fails them if the context is already done
type slowStore struct {
	Backend
}

func (s *slowStore) SaveRun(ctx context.Context, run *models.Run) error {
	time.Sleep(20 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Backend.SaveRun(ctx, run)
}
