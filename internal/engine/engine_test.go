package engine

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dispatch"
	"github.com/expgrid/expgrid/internal/result"
	"github.com/expgrid/expgrid/internal/status"
	"github.com/expgrid/expgrid/internal/worker"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	cfg := &config.Config{
		Database: config.Database{
			Provider: "sqlite",
			Database: "testdb",
			Table: config.Table{
				Name:      "experiments",
				Keyfields: []config.Keyfield{{Name: "x", Type: "INT", Values: []any{1, 2, 3}}},
			},
		},
		NJobs: 1,
	}

	e, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_FillFromConfigThenExecute(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	inserted, skipped, err := e.FillFromConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 0, skipped)

	err = e.Execute(ctx, worker.Options{Workers: 2}, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) worker.Outcome {
		return worker.Done()
	})
	require.NoError(t, err)

	var doneCount int
	require.NoError(t, e.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM experiments WHERE status = ?", string(status.Done)).Scan(&doneCount))
	assert.Equal(t, 3, doneCount)
}

func TestEngine_FillFromCombination(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	inserted, skipped, err := e.FillFromCombination(ctx, nil, []map[string]any{{"x": 99}})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, skipped)

	var count int
	require.NoError(t, e.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM experiments WHERE x = ?", 99).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEngine_ResetExperiments(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, _, err := e.FillFromConfig(ctx)
	require.NoError(t, err)

	_, err = e.DB().ExecContext(ctx, "UPDATE experiments SET status = ?", string(status.Error))
	require.NoError(t, err)

	count, err := e.ResetExperiments(ctx, status.Error)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestEngine_AddExperimentAndUnpause(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	id, created, err := e.AddExperiment(ctx, map[string]any{"x": 42})
	require.NoError(t, err)
	assert.True(t, created)

	_, err = e.DB().ExecContext(ctx, "UPDATE experiments SET status = ? WHERE id = ?", string(status.Paused), id)
	require.NoError(t, err)

	err = e.Unpause(ctx, id, func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) worker.Outcome {
		return worker.Done()
	})
	require.NoError(t, err)

	var st string
	require.NoError(t, e.DB().QueryRowContext(ctx, "SELECT status FROM experiments WHERE id = ?", id).Scan(&st))
	assert.Equal(t, string(status.Done), st)
}
