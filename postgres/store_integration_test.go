//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Aniket1mg/cauldron/log"
)

// setupPool starts a disposable PostgreSQL container and returns a Pool
// bound to it. Container and pool are torn down via t.Cleanup.
func setupPool(t *testing.T, mutate func(*Config)) *Pool {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := Config{
		Database: "testdb",
		User:     "test",
		Password: "test",
		Host:     host,
		Port:     port.Int(),
		Logger:   log.NewNop(),
	}

	if mutate != nil {
		mutate(&cfg)
	}

	pool, err := NewPool(cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func createItemsTable(t *testing.T, pool *Pool) {
	t.Helper()

	err := pool.WithCursor(context.Background(), ShapePlain, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, `
			create table if not exists items (
				id serial primary key,
				name text not null,
				qty integer not null default 0
			);`)

		return err
	})
	require.NoError(t, err)
}

func TestIntegration_StoreCRUD(t *testing.T) {
	pool := setupPool(t, nil)
	createItemsTable(t, pool)

	ctx := context.Background()
	store := NewStore(pool)

	inserted, err := store.Insert(ctx, "items", map[string]any{"name": "bolt", "qty": 3})
	require.NoError(t, err)

	id, ok := inserted.Get("id")
	require.True(t, ok, "returning * must include generated columns")
	assert.NotNil(t, id)

	name, _ := inserted.Get("name")
	assert.Equal(t, "bolt", name)

	records, err := store.BulkInsert(ctx, "items", []map[string]any{
		{"name": "nut", "qty": 10},
		{"name": "washer", "qty": 20},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	count, err := store.Count(ctx, "items", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = store.Count(ctx, "items", Filters{{"qty": {Op: ">=", Value: 10}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated, err := store.Update(ctx, "items",
		map[string]any{"qty": 5, "name": "bolt-m8"},
		Filters{{"name": Eq("bolt")}},
	)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	qty, _ := updated[0].Get("qty")
	assert.EqualValues(t, 5, qty)

	selected, err := store.Select(ctx, "items", SelectOptions{
		Filters: Filters{{"qty": {Op: ">", Value: 1}}},
		OrderBy: "qty",
	})
	require.NoError(t, err)
	require.Len(t, selected, 3)

	first, _ := selected[0].Get("name")
	assert.Equal(t, "bolt-m8", first)

	affected, err := store.Delete(ctx, "items", Filters{{"name": Eq("washer")}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := store.RawSQL(ctx, "select name from items where qty < $1;", 100)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestIntegration_CallProcedure(t *testing.T) {
	pool := setupPool(t, nil)

	ctx := context.Background()

	err := pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, `
			create or replace function doubled(n integer)
			returns table(value integer) as $$
				select n * 2;
			$$ language sql;`)

		return err
	})
	require.NoError(t, err)

	records, err := NewStore(pool).CallProcedure(ctx, "doubled", []any{21}, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, records, 1)

	value, _ := records[0].Get("value")
	assert.EqualValues(t, 42, value)
}

func TestIntegration_CursorShapes(t *testing.T) {
	pool := setupPool(t, nil)
	createItemsTable(t, pool)

	ctx := context.Background()

	_, err := NewStore(pool).Insert(ctx, "items", map[string]any{"name": "gear", "qty": 1})
	require.NoError(t, err)

	err = pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		row, err := c.QueryRow(ctx, "select name, qty from items;")
		require.NoError(t, err)
		require.IsType(t, []any{}, row)
		assert.Equal(t, "gear", row.([]any)[0])

		return nil
	})
	require.NoError(t, err)

	err = pool.WithCursor(ctx, ShapeDict, func(ctx context.Context, c *Cursor) error {
		row, err := c.QueryRow(ctx, "select name, qty from items;")
		require.NoError(t, err)

		dict, ok := row.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "gear", dict["name"])

		return nil
	})
	require.NoError(t, err)

	err = pool.WithDedicatedCursor(ctx, ShapeRecord, func(ctx context.Context, c *Cursor) error {
		row, err := c.QueryRow(ctx, "select name, qty from items;")
		require.NoError(t, err)

		record, ok := row.(Record)
		require.True(t, ok)
		assert.Equal(t, []string{"name", "qty"}, record.Columns())

		return nil
	})
	require.NoError(t, err)
}

func TestIntegration_TransactionRollback(t *testing.T) {
	pool := setupPool(t, nil)
	createItemsTable(t, pool)

	ctx := context.Background()
	store := NewStore(pool)

	boom := errors.New("boom")

	err := pool.WithTransaction(ctx, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, "insert into items (name, qty) values ($1, $2);", "ghost", 1)
		require.NoError(t, err)

		return boom
	})
	require.ErrorIs(t, err, boom, "the scope's own error propagates")

	count, err := store.Count(ctx, "items", nil)
	require.NoError(t, err)
	assert.Zero(t, count, "rolled-back insert must not be visible")

	err = pool.WithTransaction(ctx, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, "insert into items (name, qty) values ($1, $2);", "kept", 1)

		return err
	})
	require.NoError(t, err)

	count, err = store.Count(ctx, "items", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIntegration_AcquireTimeout(t *testing.T) {
	pool := setupPool(t, func(cfg *Config) {
		cfg.MinConns = 1
		cfg.MaxConns = 1
		cfg.AcquireTimeout = 500 * time.Millisecond
	})

	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	require.NoError(t, err)

	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, ErrAcquireTimeout, "second acquire must time out while the only connection is held")

	held.Release()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err, "released connection is acquirable again")
	conn.Release()
}

func TestIntegration_IdleEviction(t *testing.T) {
	pool := setupPool(t, func(cfg *Config) {
		cfg.RefreshPeriod = 300 * time.Millisecond
	})

	ctx := context.Background()

	// Touch the pool so connections exist, then wait out a sweep.
	err := pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, "select 1;")

		return err
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stat := pool.Stat()

		return stat != nil && stat.IdleConns() == 0
	}, 5*time.Second, 100*time.Millisecond, "idle connections are swept")

	// The pool still serves queries after eviction.
	err = pool.WithCursor(ctx, ShapePlain, func(ctx context.Context, c *Cursor) error {
		_, err := c.Execute(ctx, "select 1;")

		return err
	})
	require.NoError(t, err)
}
