// Package emissions writes per-experiment energy/carbon measurements to
// the companion "<table>_codecarbon" child table. The measurement itself
// is produced by an external tracker (codecarbon has no Go port); this
// package only owns the row shape and the write path, mirroring
// utils.extract_codecarbon_columns and the codecarbon table handling in
// DatabaseConnector.create_table_if_not_existing.
package emissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/expgrid/expgrid/internal/dialect"
)

// ErrNotEnabled is returned by Write when the caller's configuration did
// not enable codecarbon tracking.
var ErrNotEnabled = errors.New("emissions: codecarbon tracking not enabled")

// Columns are the fixed measurement fields codecarbon reports per run.
var Columns = []string{
	"duration", "emissions", "emissions_rate",
	"cpu_power", "gpu_power", "ram_power",
	"cpu_energy", "gpu_energy", "ram_energy",
	"energy_consumed", "country_name", "region",
}

// Writer appends one measurement row per experiment run to a table's
// codecarbon child table.
type Writer struct {
	db      *sql.DB
	dialect dialect.Dialect
	table   string
	enabled bool
}

// New returns a Writer for table's codecarbon child table. enabled
// reports whether codecarbon tracking is on (the schema package creates
// the child table when the configuration has a CodeCarbon section); when
// false, Write always returns ErrNotEnabled.
func New(db *sql.DB, d dialect.Dialect, table string, enabled bool) *Writer {
	return &Writer{db: db, dialect: d, table: table, enabled: enabled}
}

// Write inserts one measurement row for experimentID. Unknown keys in
// row are silently ignored rather than rejected, since trackers evolve
// their reported field set independently of this schema.
func (w *Writer) Write(ctx context.Context, experimentID int64, row map[string]any) error {
	if !w.enabled {
		return ErrNotEnabled
	}

	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}

	names := []string{"experiment_id"}
	args := []any{experimentID}

	keys := make([]string, 0, len(row))
	for k := range row {
		if known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		names = append(names, k)
		args = append(args, row[k])
	}

	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = w.dialect.Placeholder()
	}

	stmt := fmt.Sprintf("INSERT INTO %s_codecarbon (%s) VALUES (%s)",
		w.table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := w.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("emissions: writing measurement for experiment %d: %w", experimentID, err)
	}
	return nil
}
