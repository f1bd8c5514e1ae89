package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLDialect is the networked, multi-writer backend.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) Placeholder() string { return "?" }

func (d *MySQLDialect) AutoincrementKeyword() string { return "AUTO_INCREMENT" }

func (d *MySQLDialect) RandomOrderExpression() string { return "RAND()" }

// BuildPullQuery appends FOR UPDATE so the claim protocol holds the row
// lock until the caller's transaction commits or rolls back.
func (d *MySQLDialect) BuildPullQuery(table, orderBy string) string {
	return fmt.Sprintf("SELECT id FROM %s WHERE status = 'created' ORDER BY %s LIMIT 1 FOR UPDATE;", table, orderBy)
}

func (d *MySQLDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("mysql: checking table existence: %w", err)
	}
	return count > 0, nil
}

func (d *MySQLDialect) ColumnNames(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("mysql: reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mysql: scanning column name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *MySQLDialect) StartTransaction(ctx context.Context, db *sql.DB, readonly bool) (*sql.Tx, error) {
	return db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readonly})
}

// Open dials the networked backend with bounded retry, since the
// connection may be racing an SSH tunnel that is still establishing.
func (d *MySQLDialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	var db *sql.DB
	err := retry.Do(
		func() error {
			var openErr error
			db, openErr = sql.Open("mysql", dsn)
			if openErr != nil {
				return openErr
			}
			return db.PingContext(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return db, nil
}

// CreateDatabaseIfNotExists issues the schema-creation statement against
// a DSN with no database name segment, for first-run bootstrapping.
func CreateDatabaseIfNotExists(ctx context.Context, db *sql.DB, name string) error {
	if strings.ContainsAny(name, "`; ") {
		return fmt.Errorf("mysql: invalid database name %q", name)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name))
	if err != nil {
		return fmt.Errorf("mysql: creating database %s: %w", name, err)
	}
	return nil
}
