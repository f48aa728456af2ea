// Package postgres provides the database side of the agent: read-only
// execution of validated statements and schema introspection over a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecErrorKind classifies execution failures.
type ExecErrorKind string

const (
	ExecErrorTimeout ExecErrorKind = "timeout"
	ExecErrorDB      ExecErrorKind = "db_error"
)

// ExecError is a classified execution failure. Message keeps the database
// error verbatim because it is fed back into the next generation prompt.
type ExecError struct {
	Kind    ExecErrorKind
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// QueryResult holds the rows and column metadata of a successful execution.
type QueryResult struct {
	SQL     string
	Columns []string
	Rows    []map[string]any
	Count   int
}

// Executor runs validated statements against Postgres with a bounded
// per-query timeout. Exceeding the timeout cancels the in-flight query on
// the server, not just the client-side wait.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     *slog.Logger
}

// NewExecutor creates an Executor over an existing pool.
func NewExecutor(pool *pgxpool.Pool, timeout time.Duration, log *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{pool: pool, timeout: timeout, log: log}
}

// Query executes a single already-validated statement and returns rows with
// column names, or a classified *ExecError.
func (e *Executor) Query(ctx context.Context, sql string) (QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return QueryResult{SQL: sql}, classifyError(err, ctx)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return QueryResult{SQL: sql}, classifyError(err, ctx)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{SQL: sql}, classifyError(err, ctx)
	}

	if e.log != nil {
		e.log.Debug("query executed", "rows", len(out), "duration", time.Since(start))
	}

	return QueryResult{SQL: sql, Columns: columns, Rows: out, Count: len(out)}, nil
}

// classifyError maps a pgx error to an *ExecError. Context expiry is a
// timeout; everything else surfaces the database message verbatim.
func classifyError(err error, ctx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecError{Kind: ExecErrorTimeout, Message: "query exceeded the configured timeout and was cancelled"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ExecError{Kind: ExecErrorDB, Message: pgErr.Error()}
	}

	return &ExecError{Kind: ExecErrorDB, Message: err.Error()}
}
