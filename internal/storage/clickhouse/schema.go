package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const schemaVersion = "1.0.0"

// InitializeSchema creates all required tables if they don't exist
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := createSchemaVersionTable(ctx, conn); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"runs", runsTableDDL},
		{"run_points", runPointsTableDDL},
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", table.name, err)
		}
	}

	if currentVersion == "" {
		if err := setSchemaVersion(ctx, conn, schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}

	return nil
}

func createSchemaVersionTable(ctx context.Context, conn driver.Conn) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version String,
			applied_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY applied_at
	`
	return conn.Exec(ctx, ddl)
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	row := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	if err := row.Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, conn driver.Conn, version string) error {
	return conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
}

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS runs (
    id String,
    dataset String,

    -- Stream shape
    elements Int64,
    distinct_count Int64,

    -- Experiment parameters
    simulations Int64,
    hash LowCardinality(String),
    seed UInt64,

    created DateTime64(9),
    elapsed_ms Int64

) ENGINE = MergeTree()
ORDER BY (dataset, created, id)
SETTINGS index_granularity = 8192
`

const runPointsTableDDL = `
CREATE TABLE IF NOT EXISTS run_points (
    run_id String,
    seq UInt32,

    algorithm LowCardinality(String),
    pow Int32,
    parameter Int64,
    registers Int64,

    -- Aggregate over trials
    mean Float64,
    stddev Float64,
    min_estimate Float64,
    max_estimate Float64,
    relative_error Float64,
    standard_error Float64,
    memory_bytes Int64

) ENGINE = MergeTree()
ORDER BY (run_id, seq)
SETTINGS index_granularity = 8192
`
