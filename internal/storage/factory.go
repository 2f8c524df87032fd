package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/cardinality_estimator/internal/storage/archive"
	"github.com/fidde/cardinality_estimator/internal/storage/clickhouse"
	"github.com/fidde/cardinality_estimator/internal/storage/dual"
	"github.com/fidde/cardinality_estimator/internal/storage/memory"
	"github.com/fidde/cardinality_estimator/internal/storage/sqlite"
)

// Config holds storage configuration.
type Config struct {
	// Backend selects the storage backend: memory, sqlite, clickhouse or archive
	Backend string

	// Mirror optionally names a second backend that receives every write
	Mirror string

	SQLitePath     string
	ClickHouseAddr string
	ArchiveDir     string

	// MaxRuns bounds each backend, zero means unbounded
	MaxRuns int

	Logger *slog.Logger
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        "memory",
		SQLitePath:     "data/runs.db",
		ClickHouseAddr: "localhost:9000",
		ArchiveDir:     archive.DefaultDir,
		MaxRuns:        1000,
	}
}

// NewStorage creates a storage implementation based on configuration.
func NewStorage(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	primary, err := newBackend(ctx, cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Mirror == "" {
		return primary, nil
	}

	secondary, err := newBackend(ctx, cfg.Mirror, cfg)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("creating mirror: %w", err)
	}

	cfg.Logger.Info("mirroring run writes", "primary", cfg.Backend, "secondary", cfg.Mirror)
	return dual.New(dual.Config{
		Primary:   primary,
		Secondary: secondary,
		Logger:    cfg.Logger,
	}), nil
}

func newBackend(ctx context.Context, backend string, cfg Config) (Storage, error) {
	switch backend {
	case "memory":
		cfg.Logger.Info("using in-memory storage")
		return memory.NewWithLimit(cfg.MaxRuns), nil

	case "sqlite":
		cfg.Logger.Info("using SQLite storage", "path", cfg.SQLitePath)

		sqliteCfg := sqlite.DefaultConfig(cfg.SQLitePath)
		sqliteCfg.MaxRuns = cfg.MaxRuns

		store, err := sqlite.New(sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		return store, nil

	case "clickhouse":
		chCfg, err := clickhouse.ConfigFromAddr(cfg.ClickHouseAddr)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info("using ClickHouse storage", "addr", chCfg.Addr, "database", chCfg.Database)
		chCfg.MaxRuns = cfg.MaxRuns

		store, err := clickhouse.NewStore(ctx, chCfg, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	case "archive":
		cfg.Logger.Info("using archive storage", "dir", cfg.ArchiveDir)

		archiveCfg := archive.DefaultConfig()
		archiveCfg.Dir = cfg.ArchiveDir
		archiveCfg.MaxRuns = cfg.MaxRuns

		store, err := archive.New(archiveCfg)
		if err != nil {
			return nil, fmt.Errorf("creating archive store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, clickhouse, archive)", backend)
	}
}
