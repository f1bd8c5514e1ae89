// Package dispatch implements the claim-and-lock protocol that hands a
// single open experiment row to one worker at a time: select a
// candidate, flip it to "running", and read back its keyfield values,
// all inside one transaction so concurrent workers never race onto the
// same row. The Dialect abstraction decides whether that race is closed
// with FOR UPDATE (mysql) or with the backend's own writer
// serialization (sqlite).
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/status"
)

// ErrNoExperimentsLeft is returned by Claim when no row is currently in
// the "created" state.
var ErrNoExperimentsLeft = errors.New("dispatch: no experiments left to execute")

// ErrNoPausedExperiment is returned by Resume when id is not in the
// "paused" state.
var ErrNoPausedExperiment = errors.New("dispatch: no paused experiment with that id")

// Experiment is a claimed row: its id and its keyfield values keyed by
// column name.
type Experiment struct {
	ID       int64
	Keyfields map[string]any
}

// ClaimOptions controls how Claim selects its candidate row.
type ClaimOptions struct {
	// RandomOrder selects the candidate via the backend's random-order
	// expression instead of ascending id.
	RandomOrder bool
}

// Claim atomically selects one "created" row, flips it to "running" with
// the current timestamp, and returns its keyfield values.
func Claim(ctx context.Context, db *sql.DB, d dialect.Dialect, table *config.Table, opts ClaimOptions) (*Experiment, error) {
	orderBy := "id"
	if opts.RandomOrder {
		orderBy = d.RandomOrderExpression()
	}

	tx, err := d.StartTransaction(ctx, db, false)
	if err != nil {
		return nil, fmt.Errorf("dispatch: starting transaction: %w", err)
	}
	defer tx.Rollback()

	pullQuery := d.BuildPullQuery(table.Name, orderBy)
	var id int64
	if err := tx.QueryRowContext(ctx, pullQuery).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoExperimentsLeft
		}
		return nil, fmt.Errorf("dispatch: selecting open experiment: %w", err)
	}

	now := time.Now().Format("01/02/2006, 15:04:05")
	update := fmt.Sprintf("UPDATE %s SET status = %s, start_date = %s WHERE id = %s AND status = %s",
		table.Name, d.Placeholder(), d.Placeholder(), d.Placeholder(), d.Placeholder())
	res, err := tx.ExecContext(ctx, update, string(status.Running), now, id, string(status.Created))
	if err != nil {
		return nil, fmt.Errorf("dispatch: marking experiment running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("dispatch: checking claim result: %w", err)
	}
	if affected != 1 {
		// Another transaction claimed this row between our SELECT and
		// this UPDATE. Treat it the same as finding no candidate rather
		// than claiming a row that is no longer ours.
		return nil, ErrNoExperimentsLeft
	}

	keyfields, err := readKeyfields(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispatch: committing claim: %w", err)
	}
	return &Experiment{ID: id, Keyfields: keyfields}, nil
}

// Resume moves a previously paused experiment back to "running" and
// returns its keyfield values, for workers resuming a checkpointed run.
func Resume(ctx context.Context, db *sql.DB, d dialect.Dialect, table *config.Table, id int64) (*Experiment, error) {
	tx, err := d.StartTransaction(ctx, db, false)
	if err != nil {
		return nil, fmt.Errorf("dispatch: starting transaction: %w", err)
	}
	defer tx.Rollback()

	names := table.KeyfieldNames()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s AND status = %s",
		strings.Join(names, ", "), table.Name, d.Placeholder(), d.Placeholder())

	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := tx.QueryRowContext(ctx, query, id, string(status.Paused)).Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoPausedExperiment
		}
		return nil, fmt.Errorf("dispatch: reading paused experiment: %w", err)
	}

	update := fmt.Sprintf("UPDATE %s SET status = %s WHERE id = %s", table.Name, d.Placeholder(), d.Placeholder())
	if _, err := tx.ExecContext(ctx, update, string(status.Running), id); err != nil {
		return nil, fmt.Errorf("dispatch: marking experiment running: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispatch: committing resume: %w", err)
	}

	keyfields := make(map[string]any, len(names))
	for i, name := range names {
		keyfields[name] = vals[i]
	}
	return &Experiment{ID: id, Keyfields: keyfields}, nil
}

func readKeyfields(ctx context.Context, tx *sql.Tx, table *config.Table, id int64) (map[string]any, error) {
	names := table.KeyfieldNames()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(names, ", "), table.Name)

	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := tx.QueryRowContext(ctx, query, id).Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("dispatch: reading claimed keyfields: %w", err)
	}

	keyfields := make(map[string]any, len(names))
	for i, name := range names {
		keyfields[name] = vals[i]
	}
	return keyfields, nil
}
