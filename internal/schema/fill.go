package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/expgrid/expgrid/internal/status"
)

// FillFromProduct expands the Cartesian product of the given keyfield
// value domains, cross-joined with fixed (a list of predefined
// combinations covering the keyfields parameters does not), and inserts
// every resulting combination not already present as a row with status
// "created". Mirrors combine_fill_table_parameters from the original
// project: a keyfield named by both parameters and a fixed combination is
// ErrParameterCombination, as is a result that, after joining, still
// doesn't cover every declared keyfield.
func (m *Manager) FillFromProduct(ctx context.Context, parameters map[string][]any, fixed []map[string]any) (inserted, skipped int, err error) {
	rows, err := combineParameters(m.table.KeyfieldNames(), parameters, fixed)
	if err != nil {
		return 0, 0, err
	}
	return m.FillFromRows(ctx, rows)
}

// combineParameters builds the Cartesian product of the subset of
// parameters whose keys are declared keyfields, then cross-joins it
// against fixed (used outright when parameters contributes no keyfield).
func combineParameters(keyfieldNames []string, parameters map[string][]any, fixed []map[string]any) ([]map[string]any, error) {
	filtered := make(map[string][]any, len(keyfieldNames))
	for _, name := range keyfieldNames {
		if values, ok := parameters[name]; ok {
			filtered[name] = values
		}
	}

	var product []map[string]any
	if len(filtered) > 0 {
		product = CartesianProduct(filtered)
	}

	if len(fixed) == 0 {
		return product, nil
	}
	if len(product) == 0 {
		return fixed, nil
	}

	combined := make([]map[string]any, 0, len(product)*len(fixed))
	for _, p := range product {
		for _, f := range fixed {
			row := make(map[string]any, len(p)+len(f))
			for k, v := range p {
				row[k] = v
			}
			for k, v := range f {
				if _, exists := row[k]; exists {
					return nil, fmt.Errorf("%w: key %q is used in both the parameter domains and a fixed combination", ErrParameterCombination, k)
				}
				row[k] = v
			}
			combined = append(combined, row)
		}
	}
	return combined, nil
}

// FillFromRows inserts every row not already present (by keyfield tuple)
// as a row with status "created", skipping duplicates. Every row must
// cover exactly the declared keyfield set.
func (m *Manager) FillFromRows(ctx context.Context, rows []map[string]any) (inserted, skipped int, err error) {
	if len(rows) == 0 {
		return 0, 0, fmt.Errorf("%w: no parameter combination found", ErrParameterCombination)
	}
	if err := m.validateCoverage(rows); err != nil {
		return 0, 0, err
	}

	existing, err := m.existingKeyTuples(ctx)
	if err != nil {
		return 0, 0, err
	}

	var toInsert []map[string]any
	for _, row := range rows {
		key := m.tupleKey(row)
		if existing[key] {
			skipped++
			continue
		}
		toInsert = append(toInsert, row)
	}

	if len(toInsert) == 0 {
		m.log.Info("no rows to add, all combinations already exist", "requested", len(rows))
		return 0, skipped, nil
	}

	if err := m.insertBatch(ctx, toInsert, status.Created); err != nil {
		return 0, skipped, err
	}
	m.log.Info("rows added", "inserted", len(toInsert), "skipped", skipped)
	return len(toInsert), skipped, nil
}

// InsertSingle inserts one experiment row directly in
// created_for_execution status (add_experiment in the original
// project), skipping it if its keyfield tuple already exists.
func (m *Manager) InsertSingle(ctx context.Context, combination map[string]any) (id int64, created bool, err error) {
	if err := m.validateCoverage([]map[string]any{combination}); err != nil {
		return 0, false, err
	}

	existing, err := m.existingKeyTuples(ctx)
	if err != nil {
		return 0, false, err
	}
	if existing[m.tupleKey(combination)] {
		m.log.Info("experiment already exists, skipping")
		return 0, false, nil
	}

	if err := m.insertBatch(ctx, []map[string]any{combination}, status.CreatedForExecution); err != nil {
		return 0, false, err
	}

	var lastID int64
	row := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id DESC LIMIT 1", m.table.Name))
	if err := row.Scan(&lastID); err != nil {
		return 0, true, fmt.Errorf("schema: reading inserted id: %w", err)
	}
	return lastID, true, nil
}

// validateCoverage rejects any row whose key set isn't exactly the
// declared keyfield set — matching combine_fill_table_parameters' final
// check that "the number of config_parameters + individual_parameters +
// parameters matches the amount of keyfields".
func (m *Manager) validateCoverage(rows []map[string]any) error {
	want := m.table.KeyfieldNames()
	wantSet := make(map[string]bool, len(want))
	for _, name := range want {
		wantSet[name] = true
	}

	for _, row := range rows {
		if len(row) != len(wantSet) {
			return fmt.Errorf("%w: row %v does not cover exactly the keyfield set %v", ErrParameterCombination, sortedKeys(row), want)
		}
		for k := range row {
			if !wantSet[k] {
				return fmt.Errorf("%w: row %v does not cover exactly the keyfield set %v", ErrParameterCombination, sortedKeys(row), want)
			}
		}
	}
	return nil
}

func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) insertBatch(ctx context.Context, rows []map[string]any, st status.Status) error {
	names := m.table.KeyfieldNames()
	columns := append(append([]string{}, names...), "creation_date", "status")
	placeholder := m.dialect.Placeholder()

	var valuesSQL []string
	var args []any
	now := timestamp()
	for _, row := range rows {
		ph := make([]string, len(columns))
		for i := range columns {
			ph[i] = placeholder
		}
		valuesSQL = append(valuesSQL, "("+strings.Join(ph, ", ")+")")
		for _, name := range names {
			args = append(args, row[name])
		}
		args = append(args, now, string(st))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", m.table.Name, strings.Join(columns, ", "), strings.Join(valuesSQL, ", "))
	if _, err := m.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("schema: inserting rows: %w", err)
	}
	return nil
}

func (m *Manager) existingKeyTuples(ctx context.Context) (map[string]bool, error) {
	names := m.table.KeyfieldNames()
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), m.table.Name)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("schema: reading existing rows: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("schema: scanning existing row: %w", err)
		}
		key := tupleKeyFromValues(vals)
		existing[key] = true
	}
	return existing, rows.Err()
}

func (m *Manager) tupleKey(row map[string]any) string {
	names := m.table.KeyfieldNames()
	vals := make([]any, len(names))
	for i, name := range names {
		vals[i] = row[name]
	}
	return tupleKeyFromValues(vals)
}

func tupleKeyFromValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}

// Reset pops every row whose status matches one of the given states
// (status.All pops every row regardless of status) and re-inserts their
// keyfield tuples as fresh "created" rows, returning how many were reset.
func (m *Manager) Reset(ctx context.Context, states ...status.Status) (int, error) {
	total := 0
	for _, st := range states {
		rows, err := m.popWithStatus(ctx, st)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			continue
		}
		inserted, _, err := m.FillFromRows(ctx, rows)
		if err != nil {
			return total, err
		}
		total += inserted
	}
	m.log.Info("experiments reset", "count", total, "states", states)
	return total, nil
}

func (m *Manager) popWithStatus(ctx context.Context, st status.Status) ([]map[string]any, error) {
	names := m.table.KeyfieldNames()
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), m.table.Name)
	args := []any{}
	if st != status.All {
		query += fmt.Sprintf(" WHERE status = %s", m.dialect.Placeholder())
		args = append(args, string(st))
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schema: selecting rows with status %s: %w", st, err)
	}

	var result []map[string]any
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema: scanning row: %w", err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	deleteQuery := fmt.Sprintf("DELETE FROM %s", m.table.Name)
	deleteArgs := []any{}
	if st != status.All {
		deleteQuery += fmt.Sprintf(" WHERE status = %s", m.dialect.Placeholder())
		deleteArgs = append(deleteArgs, string(st))
	}
	if _, err := m.db.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return nil, fmt.Errorf("schema: deleting rows with status %s: %w", st, err)
	}

	return result, nil
}
