// Package maxcompute implements warehouse.Client against a MaxCompute (ODPS)
// project through its PostgreSQL-compatible interactive SQL endpoint, using
// the project's Information Schema views. AccessKey credentials travel as the
// DSN user/password pair.
package maxcompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// Config carries the connection settings for one project.
type Config struct {
	Endpoint        string // host:port of the interactive SQL endpoint
	Project         string
	AccessKeyID     string
	AccessKeySecret string
	FetchTimeout    time.Duration // per remote fetch; 0 means DefaultFetchTimeout
	MaxConns        int32         // pool size cap; 0 means DefaultMaxConns
}

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxConns     = 5
)

// Client talks to one warehouse project. Safe for concurrent use.
type Client struct {
	pool    *pgxpool.Pool
	project string
	timeout time.Duration
	log     *slog.Logger
}

var _ warehouse.Client = (*Client)(nil)

// Open connects and verifies the credentials with a ping. A failed connect
// or ping is a ConnectivityError: the whole run cannot proceed without it.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		url.QueryEscape(cfg.AccessKeyID),
		url.QueryEscape(cfg.AccessKeySecret),
		cfg.Endpoint,
		url.PathEscape(cfg.Project),
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint config: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, &warehouse.ConnectivityError{Endpoint: cfg.Endpoint, Err: err}
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &warehouse.ConnectivityError{Endpoint: cfg.Endpoint, Err: err}
	}

	return &Client{
		pool:    pool,
		project: cfg.Project,
		timeout: timeout,
		log:     slog.With("component", "warehouse", "project", cfg.Project),
	}, nil
}

// ListTables returns every table name in the project.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name
	`, c.project)
	if err != nil {
		return nil, &warehouse.ConnectivityError{Endpoint: c.project, Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &warehouse.ConnectivityError{Endpoint: c.project, Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &warehouse.ConnectivityError{Endpoint: c.project, Err: err}
	}
	c.log.Debug("tables listed", "count", len(names))
	return names, nil
}

// TableSize is the cheap probe for the incremental differ.
func (c *Client) TableSize(ctx context.Context, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var size int64
	err := c.pool.QueryRow(ctx, `
		SELECT COALESCE(data_length, 0)
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2
	`, c.project, name).Scan(&size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("size of %s: %w", name, warehouse.ErrTableNotFound)
		}
		return 0, &warehouse.TransientFetchError{Table: name, Op: "fetch size", Err: err}
	}
	return size, nil
}

// Inspect fetches the full metadata for one table.
func (c *Client) Inspect(ctx context.Context, name string, opts warehouse.InspectOptions) (*warehouse.TableMetadata, error) {
	md, err := c.fetchBase(ctx, name)
	if err != nil {
		return nil, err
	}

	partitioned, err := c.fetchColumns(ctx, md)
	if err != nil {
		return nil, err
	}
	md.Partitions.IsPartitioned = partitioned

	if opts.SkipPartitions {
		// HasData and Latest stay nil: unknown, not false.
		return md, nil
	}

	status, err := c.PartitionStatus(ctx, name)
	if err != nil {
		return nil, err
	}
	// A partitioned table can momentarily have zero partitions; trust the
	// schema's partition keys over the enumeration.
	status.IsPartitioned = status.IsPartitioned || partitioned
	md.Partitions = *status
	return md, nil
}

// fetchBase reads the table-level row: comment, size, timestamps, lifecycle.
func (c *Client) fetchBase(ctx context.Context, name string) (*warehouse.TableMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		md        = warehouse.TableMetadata{Name: name}
		tableType string
	)
	err := c.pool.QueryRow(ctx, `
		SELECT COALESCE(table_comment, ''),
		       COALESCE(data_length, 0),
		       creation_time,
		       last_modified_time,
		       COALESCE(table_type, 'MANAGED_TABLE'),
		       COALESCE(lifecycle, 0)
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2
	`, c.project, name).Scan(
		&md.Comment, &md.SizeBytes, &md.CreateTime, &md.LastModified,
		&tableType, &md.LifecycleDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("inspect %s: %w", name, warehouse.ErrTableNotFound)
		}
		return nil, &warehouse.TransientFetchError{Table: name, Op: "fetch table", Err: err}
	}
	md.IsVirtualView = tableType == "VIRTUAL_VIEW"
	return &md, nil
}

// fetchColumns loads the ordered column list onto md and reports whether the
// table declares any partition key columns.
func (c *Client) fetchColumns(ctx context.Context, md *warehouse.TableMetadata) (partitioned bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT column_name, data_type, COALESCE(column_comment, ''),
		       is_nullable, is_partition_key
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, c.project, md.Name)
	if err != nil {
		return false, &warehouse.TransientFetchError{Table: md.Name, Op: "fetch columns", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			col          warehouse.ColumnMetadata
			nullable     string
			partitionKey bool
		)
		if err := rows.Scan(&col.Name, &col.Type, &col.Comment, &nullable, &partitionKey); err != nil {
			return false, &warehouse.TransientFetchError{Table: md.Name, Op: "fetch columns", Err: err}
		}
		col.Nullable = nullable == "YES"
		if partitionKey {
			partitioned = true
			continue // partition keys are tracked via PartitionStatus, not the column list
		}
		md.Columns = append(md.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return false, &warehouse.TransientFetchError{Table: md.Name, Op: "fetch columns", Err: err}
	}
	return partitioned, nil
}

// PartitionStatus enumerates partitions newest-first and finds the most
// recent one with a nonzero record count. Partitions whose statistics are
// unavailable count as empty rather than failing the table.
func (c *Client) PartitionStatus(ctx context.Context, name string) (*warehouse.PartitionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT partition_name,
		       COALESCE(data_length, 0),
		       COALESCE(table_rows, 0)
		FROM information_schema.partitions
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY partition_name DESC
	`, c.project, name)
	if err != nil {
		return nil, &warehouse.TransientFetchError{Table: name, Op: "fetch partitions", Err: err}
	}
	defer rows.Close()

	status := warehouse.PartitionStatus{}
	for rows.Next() {
		var (
			pname string
			size  int64
			count int64
		)
		if err := rows.Scan(&pname, &size, &count); err != nil {
			return nil, &warehouse.TransientFetchError{Table: name, Op: "fetch partitions", Err: err}
		}
		status.PartitionCount++
		if status.Latest == nil && count > 0 {
			status.Latest = &warehouse.LatestPartition{
				Name:        pname,
				SizeBytes:   size,
				RecordCount: count,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &warehouse.TransientFetchError{Table: name, Op: "fetch partitions", Err: err}
	}

	status.IsPartitioned = status.PartitionCount > 0
	status.HasData = warehouse.Bool(status.Latest != nil)
	return &status, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}
