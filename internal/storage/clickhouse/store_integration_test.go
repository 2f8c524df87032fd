//go:build integration

package clickhouse

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// TestClickHouseIntegration exercises the store against a live server.
// Run with: go test -tags=integration ./internal/storage/clickhouse -v
func TestClickHouseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	config := DefaultConfig()
	if addr := os.Getenv("CLICKHOUSE_ADDR"); addr != "" {
		config.Addr = addr
	}

	store, err := NewStore(ctx, config, logger)
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	defer store.Close()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}

	run := &models.Run{
		ID:          "integration-run",
		Dataset:     "words",
		Elements:    2000,
		Distinct:    1000,
		Simulations: 10,
		Hash:        "murmur3",
		Seed:        42,
		Created:     time.Now().UTC().Truncate(time.Millisecond),
		Points: []models.Point{
			{Algorithm: "hll", Pow: 4, Parameter: 4, Registers: 16, Mean: 1010},
			{Algorithm: "rec", Pow: 4, Parameter: 16, Registers: 16, Mean: 990},
		},
	}

	t.Run("SaveAndGetRun", func(t *testing.T) {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}

		retrieved, err := store.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if retrieved.Dataset != "words" || len(retrieved.Points) != 2 {
			t.Errorf("Unexpected run: %+v", retrieved)
		}
		if retrieved.Points[1].Algorithm != "rec" {
			t.Errorf("Expected points in insertion order, got %+v", retrieved.Points)
		}
	})

	t.Run("DuplicateRun", func(t *testing.T) {
		if err := store.SaveRun(ctx, run); !errors.Is(err, models.ErrRunExists) {
			t.Errorf("Expected ErrRunExists, got %v", err)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, "words")
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].Points != 2 {
			t.Errorf("Unexpected summaries: %+v", runs)
		}
	})

	t.Run("DeleteRun", func(t *testing.T) {
		if err := store.DeleteRun(ctx, run.ID); err != nil {
			t.Fatalf("Failed to delete run: %v", err)
		}
		if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, models.ErrRunNotFound) {
			t.Errorf("Expected ErrRunNotFound, got %v", err)
		}
	})
}
