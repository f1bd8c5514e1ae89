package emissions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/schema"
)

func TestWrite_NotEnabled(t *testing.T) {
	w := New(nil, &dialect.SQLiteDialect{}, "trig", false)
	err := w.Write(context.Background(), 1, map[string]any{})
	require.ErrorIs(t, err, ErrNotEnabled)
}

func TestWrite_InsertsKnownColumnsOnly(t *testing.T) {
	ctx := context.Background()
	d := &dialect.SQLiteDialect{}
	db, err := d.Open(ctx, "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	table := &config.Table{Name: "trig", Keyfields: []config.Keyfield{{Name: "x", Type: "INT"}}}
	m := schema.New(db, d, table, true)
	require.NoError(t, m.EnsureSchema(ctx))

	w := New(db, d, "trig", true)
	err = w.Write(ctx, 1, map[string]any{"duration": 1.5, "emissions": 0.02, "unrelated_field": "ignored"})
	require.NoError(t, err)

	var duration float64
	require.NoError(t, db.QueryRowContext(ctx, "SELECT duration FROM trig_codecarbon WHERE experiment_id = ?", 1).Scan(&duration))
	assert.Equal(t, 1.5, duration)
}
