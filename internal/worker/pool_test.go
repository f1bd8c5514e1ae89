package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/dispatch"
	"github.com/expgrid/expgrid/internal/result"
	"github.com/expgrid/expgrid/internal/schema"
	"github.com/expgrid/expgrid/internal/status"
)

func setupPool(t *testing.T, n int) (*Pool, string) {
	t.Helper()
	ctx := context.Background()
	d := &dialect.SQLiteDialect{}
	path := filepath.Join(t.TempDir(), "test.db")

	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)"

	bootstrap, err := d.Open(ctx, dsn)
	require.NoError(t, err)
	table := &config.Table{
		Name:      "experiments",
		Keyfields: []config.Keyfield{{Name: "x", Type: "INT"}},
	}
	m := schema.New(bootstrap, d, table, false)
	require.NoError(t, m.EnsureSchema(ctx))
	_, _, err = m.FillFromProduct(ctx, map[string][]any{"x": rangeInts(n)}, nil)
	require.NoError(t, err)
	bootstrap.Close()

	pool := New(d, table, func() (*sql.DB, error) {
		return d.Open(ctx, dsn)
	})
	return pool, path
}

func rangeInts(n int) []any {
	vals := make([]any, n)
	for i := range vals {
		vals[i] = i
	}
	return vals
}

func TestPool_RunsEveryExperimentExactlyOnce(t *testing.T) {
	pool, _ := setupPool(t, 5)

	var count int64
	err := pool.Run(context.Background(), Options{Workers: 2}, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) Outcome {
		atomic.AddInt64(&count, 1)
		return Done()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestPool_HighConcurrencyClaimsEveryRowExactlyOnce(t *testing.T) {
	pool, _ := setupPool(t, 100)

	var count int64
	err := pool.Run(context.Background(), Options{Workers: 8}, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) Outcome {
		atomic.AddInt64(&count, 1)
		return Done()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestPool_RecordsErrorOutcome(t *testing.T) {
	pool, path := setupPool(t, 1)

	err := pool.Run(context.Background(), Options{Workers: 1}, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) Outcome {
		return Error(errors.New("boom"))
	})
	require.NoError(t, err)

	d := &dialect.SQLiteDialect{}
	db, derr := d.Open(context.Background(), "file:"+path)
	require.NoError(t, derr)
	defer db.Close()

	var st, errMsg string
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT status, error FROM experiments LIMIT 1").Scan(&st, &errMsg))
	assert.Equal(t, string(status.Error), st)
	assert.Equal(t, "boom", errMsg)
}

func TestPool_RecoversFromPanic(t *testing.T) {
	pool, _ := setupPool(t, 1)

	err := pool.Run(context.Background(), Options{Workers: 1}, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) Outcome {
		panic("kaboom")
	})
	require.NoError(t, err)
}
