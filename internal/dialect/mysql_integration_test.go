//go:build integration

package dialect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupMySQLContainer starts a disposable MySQL instance for networked-
// backend dialect tests that cannot be exercised against sqlite: FOR
// UPDATE row locking, INFORMATION_SCHEMA introspection, and
// CreateDatabaseIfNotExists.
func setupMySQLContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("expgrid_test"),
		mysql.WithUsername("expgrid"),
		mysql.WithPassword("expgrid"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("ready for connections").WithOccurrence(2).WithStartupTimeout(120*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)
	return dsn
}

func TestMySQLDialect_CreateDatabaseIfNotExistsAndIntrospect(t *testing.T) {
	ctx := context.Background()
	dsn := setupMySQLContainer(ctx, t)

	d := &MySQLDialect{}
	db, err := d.Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateDatabaseIfNotExists(ctx, db, "expgrid_extra"))

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE widgets (id INTEGER PRIMARY KEY %s, name VARCHAR(255))", d.AutoincrementKeyword()))
	require.NoError(t, err)

	exists, err := d.TableExists(ctx, db, "widgets")
	require.NoError(t, err)
	assert.True(t, exists)

	cols, err := d.ColumnNames(ctx, db, "widgets")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
}
