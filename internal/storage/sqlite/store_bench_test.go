package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// BenchmarkRunWrites measures write throughput through the batch writer
func BenchmarkRunWrites(b *testing.B) {
	cfg := DefaultConfig(filepath.Join(b.TempDir(), "bench.db"))

	store, err := New(cfg)
	if err != nil {
		b.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.SaveRun(ctx, testRun(fmt.Sprintf("bench-%d", i), "bench", now)); err != nil {
			b.Fatalf("SaveRun failed: %v", err)
		}
	}
}

// BenchmarkListRuns measures summary queries over a populated store
func BenchmarkListRuns(b *testing.B) {
	cfg := DefaultConfig(filepath.Join(b.TempDir(), "bench.db"))

	store, err := New(cfg)
	if err != nil {
		b.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 500; i++ {
		dataset := fmt.Sprintf("dataset-%d", i%10)
		if err := store.SaveRun(ctx, testRun(fmt.Sprintf("r-%d", i), dataset, now)); err != nil {
			b.Fatalf("SaveRun failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.ListRuns(ctx, "dataset-3"); err != nil {
			b.Fatalf("ListRuns failed: %v", err)
		}
	}
}
