// Package dbexec runs the read-only queries behind report fetches, either
// directly or under the database role mapped from the report user.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the part of *sql.Rows report fetches read. Executors may wrap it to
// release extra resources on Close.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor runs report queries.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// ExecutorFunc adapts a function to QueryExecutor.
type ExecutorFunc func(ctx context.Context, query string, args ...any) (Rows, error)

func (f ExecutorFunc) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return f(ctx, query, args...)
}

// StandardExecutor queries the pool with the connection's default role.
type StandardExecutor struct {
	db *sql.DB
}

func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e == nil || e.db == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
