// Package dialect abstracts the differences between the embedded
// (single-file SQLite) and networked (MySQL) backends: placeholder
// syntax, autoincrement keyword, random-ordering expression, the
// FOR UPDATE suffix, and table/column introspection.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConnect is returned when a backend cannot establish a connection.
var ErrConnect = errors.New("dialect: cannot connect to database")

// Dialect hides backend-specific SQL behind one interface so the Work
// Table Manager, Dispatcher, and Result Processor never branch on
// provider name.
type Dialect interface {
	// Name identifies the backend ("sqlite" or "mysql").
	Name() string

	// Placeholder is the positional bind-parameter marker for this
	// backend's driver.
	Placeholder() string

	// AutoincrementKeyword is the column-definition keyword for a
	// synthetic, auto-incrementing primary key.
	AutoincrementKeyword() string

	// RandomOrderExpression is the SQL function used to order rows
	// randomly (RANDOM() on sqlite, RAND() on mysql).
	RandomOrderExpression() string

	// BuildPullQuery returns the claim-protocol SELECT for table, ordered
	// by orderBy, with FOR UPDATE appended on backends that support row
	// locking.
	BuildPullQuery(table, orderBy string) string

	// TableExists reports whether table is present in the database.
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)

	// ColumnNames returns every column name declared on table.
	ColumnNames(ctx context.Context, db *sql.DB, table string) ([]string, error)

	// StartTransaction begins a transaction, optionally read-only.
	StartTransaction(ctx context.Context, db *sql.DB, readonly bool) (*sql.Tx, error)

	// Open establishes a connection pool against dsn.
	Open(ctx context.Context, dsn string) (*sql.DB, error)
}

// ErrUnsupportedProvider is wrapped with the offending provider name.
var ErrUnsupportedProvider = errors.New("dialect: unsupported provider")

// ByProvider returns the Dialect implementation for a config provider
// name ("sqlite" or "mysql").
func ByProvider(provider string) (Dialect, error) {
	switch provider {
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
