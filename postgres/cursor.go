package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shape selects the in-memory representation of fetched rows.
type Shape int

const (
	// ShapePlain yields each row as a positional []any.
	ShapePlain Shape = iota

	// ShapeDict yields each row as a map[string]any.
	ShapeDict

	// ShapeRecord yields each row as an ordered, name-addressable Record.
	ShapeRecord
)

// querier is the subset of pgx execution methods shared by pooled
// connections, dedicated connections and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Cursor executes SQL against a single connection or transaction. Cursors
// are only valid inside the scope function that received them; the owning
// scope releases the connection on every exit path, including panic.
type Cursor struct {
	shape Shape
	q     querier
}

// Execute runs a statement and returns the number of affected rows.
func (c *Cursor) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Query fetches all rows, shaped per the cursor's Shape: []any per row for
// ShapePlain, map[string]any for ShapeDict, Record for ShapeRecord.
func (c *Cursor) Query(ctx context.Context, sql string, args ...any) ([]any, error) {
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer rows.Close()

	return c.collect(rows)
}

// QueryRow fetches the first row, shaped per the cursor's Shape. It
// returns pgx.ErrNoRows when the result set is empty.
func (c *Cursor) QueryRow(ctx context.Context, sql string, args ...any) (any, error) {
	shaped, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(shaped) == 0 {
		return nil, pgx.ErrNoRows
	}

	return shaped[0], nil
}

func (c *Cursor) collect(rows pgx.Rows) ([]any, error) {
	fields := rows.FieldDescriptions()

	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	var shaped []any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}

		switch c.shape {
		case ShapeDict:
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}

			shaped = append(shaped, row)
		case ShapeRecord:
			shaped = append(shaped, NewRecord(columns, values))
		default:
			shaped = append(shaped, values)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return shaped, nil
}

// WithCursor runs fn with a cursor bound to a pooled connection. The
// connection is released when fn returns, whether normally or by panic.
func (p *Pool) WithCursor(ctx context.Context, shape Shape, fn func(ctx context.Context, c *Cursor) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	defer conn.Release()

	return fn(ctx, &Cursor{shape: shape, q: conn})
}

// WithDedicatedCursor runs fn with a cursor bound to a fresh connection
// opened outside the pool. The connection is closed when fn returns.
func (p *Pool) WithDedicatedCursor(ctx context.Context, shape Shape, fn func(ctx context.Context, c *Cursor) error) error {
	conn, err := p.dedicatedConn(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close(ctx)
	}()

	return fn(ctx, &Cursor{shape: shape, q: conn})
}

// WithTransaction runs fn with a record-shaped cursor inside a
// transaction on a pooled connection. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics; the
// original error (or panic) always propagates to the caller.
func (p *Pool) WithTransaction(ctx context.Context, fn func(ctx context.Context, c *Cursor) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)

			panic(r)
		}
	}()

	if err := fn(ctx, &Cursor{shape: ShapeRecord, q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}

		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
