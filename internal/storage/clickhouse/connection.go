package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 2
	defaultDialTimeout  = 10 * time.Second
	defaultMaxRetries   = 3
	defaultRetryDelay   = 1 * time.Second
)

// ConnectionConfig holds ClickHouse connection parameters for the run store.
type ConnectionConfig struct {
	Addr     string
	Database string
	Username string
	Password string

	// Compression enables LZ4 on the native protocol
	Compression bool

	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration
	MaxRetries   int
	TLS          *tls.Config

	// MaxRuns bounds the number of stored runs, zero means unbounded
	MaxRuns int
}

// DefaultConfig returns the config for a local server without TLS.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Addr:         "localhost:9000",
		Database:     "default",
		Username:     "default",
		Compression:  true,
		MaxOpenConns: defaultMaxOpenConns,
		MaxIdleConns: defaultMaxIdleConns,
		DialTimeout:  defaultDialTimeout,
		MaxRetries:   defaultMaxRetries,
	}
}

// ConfigFromAddr builds a config from a plain host:port or a
// clickhouse:// DSN carrying credentials, database and TLS settings.
func ConfigFromAddr(addr string) (*ConnectionConfig, error) {
	config := DefaultConfig()
	if !strings.Contains(addr, "://") {
		config.Addr = addr
		return config, config.Validate()
	}

	opts, err := clickhouse.ParseDSN(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}
	if len(opts.Addr) > 0 {
		config.Addr = opts.Addr[0]
	}
	if opts.Auth.Database != "" {
		config.Database = opts.Auth.Database
	}
	if opts.Auth.Username != "" {
		config.Username = opts.Auth.Username
	}
	config.Password = opts.Auth.Password
	config.TLS = opts.TLS
	if opts.DialTimeout > 0 {
		config.DialTimeout = opts.DialTimeout
	}
	return config, config.Validate()
}

// Validate checks the config before dialing.
func (c *ConnectionConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("clickhouse address is required")
	}
	if c.Database == "" {
		return errors.New("clickhouse database is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("clickhouse max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.MaxRuns < 0 {
		return fmt.Errorf("clickhouse max runs must not be negative, got %d", c.MaxRuns)
	}
	return nil
}

// options maps the config to driver options. Deletes run synchronously so a
// deleted run is gone for the next read.
func (c *ConnectionConfig) options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{c.Addr},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			"mutations_sync":     1,
		},
		DialTimeout:      c.DialTimeout,
		MaxOpenConns:     c.MaxOpenConns,
		MaxIdleConns:     c.MaxIdleConns,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		TLS:              c.TLS,
	}
	if c.Compression {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	return opts
}

// Connect opens and pings a connection, retrying with backoff.
func Connect(ctx context.Context, config *ConnectionConfig) (driver.Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var conn driver.Conn
	err := withBackoff(ctx, config.MaxRetries, defaultRetryDelay, func(ctx context.Context) error {
		c, err := clickhouse.Open(config.options())
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse at %s: %w", config.Addr, err)
	}
	return conn, nil
}

// withBackoff calls fn up to attempts times, doubling delay between calls.
func withBackoff(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
