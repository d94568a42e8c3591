package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store exposes common relational operations over a Pool. Builder
// validation errors surface before any SQL is executed; driver errors
// propagate wrapped.
type Store struct {
	pool *Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool, for callers that need cursor scopes
// directly.
func (s *Store) Pool() *Pool {
	return s.pool
}

// queryRecords runs a prepared query inside a record-shaped cursor scope
// and collects the result.
func (s *Store) queryRecords(ctx context.Context, sql string, args []any) ([]Record, error) {
	var records []Record

	err := s.pool.WithCursor(ctx, ShapeRecord, func(ctx context.Context, c *Cursor) error {
		shaped, err := c.Query(ctx, sql, args...)
		if err != nil {
			return err
		}

		records = make([]Record, len(shaped))
		for i, row := range shaped {
			records[i] = row.(Record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the number of rows in table matching filters. Nil filters
// count the whole table.
func (s *Store) Count(ctx context.Context, table string, filters Filters) (int64, error) {
	sql, args, err := BuildCount(table, filters)
	if err != nil {
		return 0, err
	}

	var count int64

	err = s.pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		row, err := c.QueryRow(ctx, sql, args...)
		if err != nil {
			return err
		}

		values, ok := row.([]any)
		if !ok || len(values) == 0 {
			return fmt.Errorf("unexpected count result %T", row)
		}

		n, ok := values[0].(int64)
		if !ok {
			return fmt.Errorf("unexpected count value %T", values[0])
		}

		count = n

		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Insert inserts a single row and returns it as stored, including
// database-generated columns.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (Record, error) {
	sql, args, err := BuildInsert(table, values)
	if err != nil {
		return Record{}, err
	}

	records, err := s.queryRecords(ctx, sql, args)
	if err != nil {
		return Record{}, err
	}

	if len(records) == 0 {
		return Record{}, fmt.Errorf("insert into %s returned no rows", table)
	}

	return records[0], nil
}

// BulkInsert inserts all records in a single statement and returns the
// stored rows. Every record must carry the same columns.
func (s *Store) BulkInsert(ctx context.Context, table string, records []map[string]any) ([]Record, error) {
	sql, args, err := BuildBulkInsert(table, records)
	if err != nil {
		return nil, err
	}

	return s.queryRecords(ctx, sql, args)
}

// Update applies values to the rows matched by filters and returns the
// updated rows.
func (s *Store) Update(ctx context.Context, table string, values map[string]any, filters Filters) ([]Record, error) {
	sql, args, err := BuildUpdate(table, values, filters)
	if err != nil {
		return nil, err
	}

	return s.queryRecords(ctx, sql, args)
}

// Delete removes the rows matched by filters and returns the affected
// count. Filters are mandatory.
func (s *Store) Delete(ctx context.Context, table string, filters Filters) (int64, error) {
	sql, args, err := BuildDelete(table, filters)
	if err != nil {
		return 0, err
	}

	var affected int64

	err = s.pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		n, err := c.Execute(ctx, sql, args...)
		if err != nil {
			return err
		}

		affected = n

		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// Select fetches the rows matched by opts.
func (s *Store) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	sql, args, err := BuildSelect(table, opts)
	if err != nil {
		return nil, err
	}

	return s.queryRecords(ctx, sql, args)
}

// RawSQL runs a caller-built parameterized query and returns the rows as
// records.
func (s *Store) RawSQL(ctx context.Context, sql string, args ...any) ([]Record, error) {
	return s.queryRecords(ctx, sql, args)
}

// CallProcedure invokes a set-returning function as
// `select * from name($1, ...)` with params bound positionally, bounded by
// timeout when it is positive.
func (s *Store) CallProcedure(ctx context.Context, name string, params []any, timeout time.Duration) ([]Record, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sql := "select * from " + name +
		"(" + strings.Join(placeholderList(1, len(params)), ", ") + ");"

	return s.queryRecords(ctx, sql, params)
}
