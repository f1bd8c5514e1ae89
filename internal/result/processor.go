// Package result implements the per-experiment writer handed to a
// worker's routine function: it writes result fields, status
// transitions, error/machine/name tags, and log rows, all scoped to the one
// experiment id it was created for. It is the Go counterpart of
// ResultProcessor in the original project.
package result

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/status"
	"github.com/expgrid/expgrid/internal/xlog"
)

// Processor writes every outcome of running one claimed experiment.
type Processor struct {
	db      *sql.DB
	dialect dialect.Dialect
	table   *config.Table
	id      int64
	log     *slog.Logger
}

// New returns a Processor scoped to experiment id.
func New(db *sql.DB, d dialect.Dialect, table *config.Table, id int64) *Processor {
	return &Processor{db: db, dialect: d, table: table, id: id, log: xlog.Sub(xlog.New("result"), fmt.Sprintf("exp-%d", id))}
}

// ID returns the experiment id this Processor is scoped to.
func (p *Processor) ID() int64 { return p.id }

func (p *Processor) validResultColumns() map[string]bool {
	cols := p.table.ResultfieldColumns()
	valid := make(map[string]bool, len(cols))
	for name := range cols {
		valid[name] = true
	}
	return valid
}

// ProcessResults writes the given result field values to the
// experiment's row. Every key must be a declared resultfield or, when
// result timestamps are enabled, a "<field>_timestamp" column. When
// result timestamps are enabled, the paired "<field>_timestamp" entry is
// synthesized for every plain resultfield key and written atomically
// alongside its value in the same UPDATE.
func (p *Processor) ProcessResults(ctx context.Context, results map[string]any) error {
	valid := p.validResultColumns()
	var invalid []string
	for key := range results {
		if !valid[key] {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		diagErr := fmt.Errorf("%w: %s", ErrInvalidResultField, strings.Join(invalid, ", "))
		if err := p.WriteError(ctx, diagErr.Error()); err != nil {
			return err
		}
		return diagErr
	}

	now := timestamp()
	values := make(map[string]any, len(results)*2)
	for key, value := range results {
		values[key] = value
		if p.table.ResultTimestamps && !strings.HasSuffix(key, "_timestamp") {
			values[key+"_timestamp"] = now
		}
	}
	return p.update(ctx, values)
}

// ChangeStatus transitions the experiment's status, stamping start_date
// on entry to Running and end_date on entry to a terminal status.
func (p *Processor) ChangeStatus(ctx context.Context, st status.Status) error {
	values := map[string]any{"status": string(st)}
	now := timestamp()
	switch st {
	case status.Running:
		values["start_date"] = now
	case status.Done, status.Error:
		values["end_date"] = now
	}
	return p.update(ctx, values)
}

// WriteError records the failure message for this experiment, leaving
// status changes to a separate ChangeStatus(ctx, status.Error) call.
func (p *Processor) WriteError(ctx context.Context, message string) error {
	return p.update(ctx, map[string]any{"error": message})
}

// SetMachine records which worker host ran this experiment.
func (p *Processor) SetMachine(ctx context.Context, machine string) error {
	return p.update(ctx, map[string]any{"machine": machine})
}

// SetName assigns a human-readable label to this experiment run.
func (p *Processor) SetName(ctx context.Context, name string) error {
	return p.update(ctx, map[string]any{"name": name})
}

func (p *Processor) update(ctx context.Context, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		assignments[i] = fmt.Sprintf("%s = %s", name, p.dialect.Placeholder())
		args = append(args, values[name])
	}
	args = append(args, p.id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", p.table.Name, strings.Join(assignments, ", "), p.dialect.Placeholder())
	if _, err := p.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("result: updating experiment %d: %w", p.id, err)
	}
	return nil
}

// ProcessLogs appends one row to the logtable identified by suffix.
// Every key in values must be a declared column of that logtable.
func (p *Processor) ProcessLogs(ctx context.Context, suffix string, values map[string]any) error {
	lt, ok := p.table.Logtable(suffix)
	if !ok {
		diagErr := fmt.Errorf("%w: %s", ErrInvalidLogtable, suffix)
		if err := p.WriteError(ctx, diagErr.Error()); err != nil {
			return err
		}
		return diagErr
	}

	var invalid []string
	for key := range values {
		if _, ok := lt.Columns[key]; !ok {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		diagErr := fmt.Errorf("%w: %s", ErrInvalidLogtableColumn, strings.Join(invalid, ", "))
		if err := p.WriteError(ctx, diagErr.Error()); err != nil {
			return err
		}
		return diagErr
	}

	names := make([]string, 0, len(values)+2)
	args := make([]any, 0, len(values)+2)
	names = append(names, "experiment_id", "timestamp")
	args = append(args, p.id, timestamp())

	sortedKeys := make([]string, 0, len(values))
	for key := range values {
		sortedKeys = append(sortedKeys, key)
	}
	sort.Strings(sortedKeys)
	for _, key := range sortedKeys {
		names = append(names, key)
		args = append(args, values[key])
	}

	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = p.dialect.Placeholder()
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.table.LogtableFullName(suffix), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := p.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("result: writing logtable %s: %w", suffix, err)
	}
	return nil
}

func timestamp() string {
	return time.Now().Format("01/02/2006, 15:04:05")
}
