package dialect

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteDialect is the embedded single-file backend. It uses
// github.com/ncruces/go-sqlite3, a pure-Go driver with no cgo
// dependency, following the same choice beads made for its embedded
// storage backend.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder() string { return "?" }

func (d *SQLiteDialect) AutoincrementKeyword() string { return "AUTOINCREMENT" }

func (d *SQLiteDialect) RandomOrderExpression() string { return "RANDOM()" }

// BuildPullQuery appends a trailing ";" — the embedded backend has no
// FOR UPDATE equivalent. Concurrent claims are instead serialized by
// opening the connection with _txlock=immediate (dispatch.Claim's
// transaction takes its write lock up front) and guarding the
// subsequent UPDATE with "AND status = 'created'" so a loser transaction
// affects zero rows instead of overwriting the winner's claim.
func (d *SQLiteDialect) BuildPullQuery(table, orderBy string) string {
	return fmt.Sprintf("SELECT id FROM %s WHERE status = 'created' ORDER BY %s LIMIT 1;", table, orderBy)
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking table existence: %w", err)
	}
	return true, nil
}

func (d *SQLiteDialect) ColumnNames(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading table_info(%s): %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("sqlite: scanning table_info row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *SQLiteDialect) StartTransaction(ctx context.Context, db *sql.DB, readonly bool) (*sql.Tx, error) {
	return db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readonly})
}

// Open opens the single-file database. The caller's dsn is expected to
// carry _txlock=immediate and a busy_timeout pragma (see engine.dsnFor)
// so that concurrent claim transactions block on each other's write lock
// instead of racing or failing with SQLITE_BUSY.
func (d *SQLiteDialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return db, nil
}
