// Package store is a small Postgres helper: generic parameterised
// select/insert/delete plus the source history table built on it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanchriswhite/CamWatch/internal/logger"
	_ "github.com/lib/pq"
)

// Row is one result row keyed by column name
type Row map[string]interface{}

// Client runs composed queries against Postgres
type Client struct {
	db *sql.DB
}

// Open connects with a lib/pq DSN and verifies the connection
func Open(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithComponent("store").Info().Msg("Database connection established")
	return &Client{db: db}, nil
}

// New wraps an existing handle
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the pool
func (c *Client) Close() error {
	return c.db.Close()
}

// Select returns matching rows
func (c *Client) Select(ctx context.Context, table string, columns []string, filter Filter, orderBy []string, limit int) ([]Row, error) {
	q := BuildSelect(table, columns, filter, orderBy, limit)

	rows, err := c.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Insert adds one row. With returning columns the returned row is the first
// result; otherwise it is nil and only the affected count is reported.
func (c *Client) Insert(ctx context.Context, table string, values map[string]interface{}, returning []string) (Row, int64, error) {
	q, err := BuildInsert(table, values, returning)
	if err != nil {
		return nil, 0, err
	}

	if len(returning) == 0 {
		res, err := c.db.ExecContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return nil, 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		return nil, n, nil
	}

	rows, err := c.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return nil, 0, nil
	}
	return out[0], int64(len(out)), nil
}

// Delete removes matching rows and reports how many went
func (c *Client) Delete(ctx context.Context, table string, filter Filter, limit int) (int64, error) {
	q, err := BuildDelete(table, filter, limit)
	if err != nil {
		return 0, err
	}

	res, err := c.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Exec runs a statement with no result rows, for schema setup
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
