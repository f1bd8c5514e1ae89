package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/status"
)

func newTestManager(t *testing.T) (*Manager, *config.Table) {
	t.Helper()
	ctx := context.Background()
	d := &dialect.SQLiteDialect{}
	db, err := d.Open(ctx, "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table := &config.Table{
		Name:      "trig_experiments",
		Keyfields: []config.Keyfield{{Name: "value", Type: "INT"}, {Name: "exponent", Type: "INT"}},
		Resultfields: []config.Resultfield{{Name: "sin", Type: "FLOAT"}},
		Logtables: []config.Logtable{{Name: "progress", Columns: map[string]string{"message": "LONGTEXT"}}},
	}
	m := New(db, d, table, false)
	require.NoError(t, m.EnsureSchema(ctx))
	return m, table
}

func TestEnsureSchema_CreatesMainAndLogTables(t *testing.T) {
	ctx := context.Background()
	m, table := newTestManager(t)

	exists, err := m.dialect.TableExists(ctx, m.db, table.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.dialect.TableExists(ctx, m.db, table.LogtableFullName("progress"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnsureSchema_IdempotentOnExistingValidTable(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	require.NoError(t, m.EnsureSchema(ctx))
}

func TestEnsureSchema_RejectsExistingTableWithUndeclaredColumn(t *testing.T) {
	ctx := context.Background()
	m, table := newTestManager(t)

	_, err := m.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN surprise VARCHAR(255)", table.Name))
	require.NoError(t, err)

	err = m.EnsureSchema(ctx)
	require.ErrorIs(t, err, ErrWrongStructure)
	assert.Contains(t, err.Error(), "surprise")
}

func TestFillFromProduct_DeduplicatesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	domains := map[string][]any{
		"value":    {1, 2},
		"exponent": {1, 2},
	}
	inserted, skipped, err := m.FillFromProduct(ctx, domains, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)
	assert.Equal(t, 0, skipped)

	inserted, skipped, err = m.FillFromProduct(ctx, domains, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 4, skipped)
}

func TestFillFromRows_EmptyIsError(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, _, err := m.FillFromRows(ctx, nil)
	require.ErrorIs(t, err, ErrParameterCombination)
}

func TestInsertSingle_SetsCreatedForExecution(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	id, created, err := m.InsertSingle(ctx, map[string]any{"value": 5, "exponent": 2})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, id, int64(0))

	var st string
	require.NoError(t, m.db.QueryRowContext(ctx, "SELECT status FROM trig_experiments WHERE id = ?", id).Scan(&st))
	assert.Equal(t, string(status.CreatedForExecution), st)
}

func TestReset_RequeuesErrorRowsAsCreated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.FillFromProduct(ctx, map[string][]any{"value": {1}, "exponent": {1}}, nil)
	require.NoError(t, err)

	_, err = m.db.ExecContext(ctx, "UPDATE trig_experiments SET status = ?", string(status.Error))
	require.NoError(t, err)

	count, err := m.Reset(ctx, status.Error)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var st string
	require.NoError(t, m.db.QueryRowContext(ctx, "SELECT status FROM trig_experiments LIMIT 1").Scan(&st))
	assert.Equal(t, string(status.Created), st)
}

func TestFillFromProduct_CrossJoinsFixedCombinations(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	inserted, skipped, err := m.FillFromProduct(ctx, map[string][]any{"value": {1, 2}}, []map[string]any{{"exponent": 10}})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, skipped)

	var count int
	require.NoError(t, m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trig_experiments WHERE exponent = 10").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestFillFromProduct_OverlappingKeyIsParameterCombinationError(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.FillFromProduct(ctx, map[string][]any{"value": {1}}, []map[string]any{{"value": 2, "exponent": 10}})
	require.ErrorIs(t, err, ErrParameterCombination)
}

func TestFillFromRows_DoesNotCoverKeyfieldSetIsError(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.FillFromRows(ctx, []map[string]any{{"value": 1}})
	require.ErrorIs(t, err, ErrParameterCombination)
}

func TestCartesianProduct_RowMajorOrder(t *testing.T) {
	rows := CartesianProduct(map[string][]any{"a": {1, 2}, "b": {"x", "y"}})
	require.Len(t, rows, 4)
	assert.Equal(t, []map[string]any{
		{"a": 1, "b": "x"},
		{"a": 1, "b": "y"},
		{"a": 2, "b": "x"},
		{"a": 2, "b": "y"},
	}, rows)
}

func TestCartesianProduct_EmptyDomain(t *testing.T) {
	assert.Nil(t, CartesianProduct(map[string][]any{"a": {}}))
	assert.Nil(t, CartesianProduct(nil))
}
