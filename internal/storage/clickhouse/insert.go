package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

const (
	maxRetries    = 3
	insertTimeout = 30 * time.Second
)

// insertRun writes the run row and its points, each as one batch.
func insertRun(ctx context.Context, conn driver.Conn, run *models.Run) error {
	err := retryInsert(ctx, func(ctx context.Context) error {
		batch, err := conn.PrepareBatch(ctx, "INSERT INTO runs")
		if err != nil {
			return err
		}

		err = batch.Append(
			run.ID,
			run.Dataset,
			int64(run.Elements),
			int64(run.Distinct),
			int64(run.Simulations),
			run.Hash,
			run.Seed,
			run.Created,
			run.ElapsedMS,
		)
		if err != nil {
			return err
		}

		return batch.Send()
	})
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if len(run.Points) == 0 {
		return nil
	}

	err = retryInsert(ctx, func(ctx context.Context) error {
		batch, err := conn.PrepareBatch(ctx, "INSERT INTO run_points")
		if err != nil {
			return err
		}

		for seq, p := range run.Points {
			err = batch.Append(
				run.ID,
				uint32(seq),
				p.Algorithm,
				int32(p.Pow),
				int64(p.Parameter),
				int64(p.Registers),
				p.Mean,
				p.StdDev,
				p.Min,
				p.Max,
				p.RelativeError,
				p.StandardError,
				int64(p.MemoryBytes),
			)
			if err != nil {
				return err
			}
		}

		return batch.Send()
	})
	if err != nil {
		return fmt.Errorf("inserting run points: %w", err)
	}
	return nil
}

// retryInsert retries fn with backoff, giving each attempt its own timeout.
func retryInsert(ctx context.Context, fn func(context.Context) error) error {
	return withBackoff(ctx, maxRetries, 100*time.Millisecond, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, insertTimeout)
		defer cancel()
		return fn(attemptCtx)
	})
}
