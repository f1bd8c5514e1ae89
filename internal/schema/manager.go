// Package schema owns the lifecycle of the experiment table and its
// child log/codecarbon tables: creating them, validating an existing
// table's structure against the declared configuration, and filling
// them with new experiment rows. It is the Go counterpart of the
// DatabaseConnector base class in the original project, with the
// backend-specific pieces factored out into internal/dialect.
package schema

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

// fixedMetadataColumns lists the always-present, non-keyfield,
// non-resultfield columns in their canonical declaration order.
var fixedMetadataColumns = []columnDef{
	{"creation_date", "DATETIME"},
	{"status", config.DefaultStringType},
	{"start_date", "DATETIME"},
	{"name", "LONGTEXT"},
	{"machine", config.DefaultStringType},
}

var finalColumns = []columnDef{
	{"end_date", "DATETIME"},
	{"error", "LONGTEXT"},
}

type columnDef struct {
	Name string
	Type string
}

// Manager owns the experiment table for one configured Table, bound to
// a single backend connection pool.
type Manager struct {
	db         *sql.DB
	dialect    dialect.Dialect
	table      *config.Table
	codeCarbon bool
	log        *slog.Logger
}

// New returns a Manager bound to db. codeCarbon enables the companion
// *_codecarbon child table.
func New(db *sql.DB, d dialect.Dialect, table *config.Table, codeCarbon bool) *Manager {
	return &Manager{db: db, dialect: d, table: table, codeCarbon: codeCarbon, log: xlog.New("schema")}
}

// DB returns the connection pool this Manager is bound to, for callers
// (such as internal/dispatch and internal/result) that share it.
func (m *Manager) DB() *sql.DB { return m.db }

func (m *Manager) mainColumns() []columnDef {
	cols := make([]columnDef, 0, len(m.table.Keyfields)+len(fixedMetadataColumns)+len(m.table.Resultfields)*2+len(finalColumns))
	for _, k := range m.table.Keyfields {
		typ := k.Type
		if typ == "" {
			typ = config.DefaultStringType
		}
		cols = append(cols, columnDef{k.Name, typ})
	}
	cols = append(cols, fixedMetadataColumns...)

	resultNames := make([]string, len(m.table.Resultfields))
	for i, r := range m.table.Resultfields {
		resultNames[i] = r.Name
	}
	for _, r := range m.table.Resultfields {
		cols = append(cols, columnDef{r.Name, r.Type})
		if m.table.ResultTimestamps {
			cols = append(cols, columnDef{r.Name + "_timestamp", config.DefaultStringType})
		}
	}
	cols = append(cols, finalColumns...)
	return cols
}

// EnsureSchema creates the main table, its logtables, and (if enabled)
// its codecarbon table when they do not yet exist; if the main table
// already exists, its structure is validated against the configuration.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	exists, err := m.dialect.TableExists(ctx, m.db, m.table.Name)
	if err != nil {
		return err
	}

	if exists {
		return m.validateStructure(ctx)
	}

	if err := m.createTable(ctx, m.table.Name, "standard", m.mainColumns()); err != nil {
		return err
	}

	for _, suffix := range m.table.SortedLogtableNames() {
		lt, _ := m.table.Logtable(suffix)
		cols := columnsFromMap(lt.Columns)
		if err := m.createTable(ctx, m.table.LogtableFullName(suffix), "logtable", cols); err != nil {
			return err
		}
	}

	if m.codeCarbon {
		if err := m.createTable(ctx, m.table.Name+"_codecarbon", "codecarbon", codeCarbonColumns()); err != nil {
			return err
		}
	}
	return nil
}

func columnsFromMap(m map[string]string) []columnDef {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	cols := make([]columnDef, len(names))
	for i, name := range names {
		cols[i] = columnDef{name, m[name]}
	}
	return cols
}

// codeCarbonColumns mirrors utils.extract_codecarbon_columns: the fixed
// set of measurement columns the codecarbon library reports per run.
func codeCarbonColumns() []columnDef {
	return []columnDef{
		{"duration", "FLOAT"},
		{"emissions", "FLOAT"},
		{"emissions_rate", "FLOAT"},
		{"cpu_power", "FLOAT"},
		{"gpu_power", "FLOAT"},
		{"ram_power", "FLOAT"},
		{"cpu_energy", "FLOAT"},
		{"gpu_energy", "FLOAT"},
		{"ram_energy", "FLOAT"},
		{"energy_consumed", "FLOAT"},
		{"country_name", config.DefaultStringType},
		{"region", config.DefaultStringType},
	}
}

func (m *Manager) createTable(ctx context.Context, name, tableType string, cols []columnDef) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (id INTEGER PRIMARY KEY %s", name, m.dialect.AutoincrementKeyword())

	switch tableType {
	case "standard":
		for _, c := range cols {
			fmt.Fprintf(&b, ", %s %s DEFAULT NULL", c.Name, c.Type)
		}
	case "logtable":
		fmt.Fprintf(&b, ", experiment_id INTEGER, timestamp DATETIME")
		for _, c := range cols {
			fmt.Fprintf(&b, ", %s %s DEFAULT NULL", c.Name, c.Type)
		}
		fmt.Fprintf(&b, ", FOREIGN KEY (experiment_id) REFERENCES %s(id) ON DELETE CASCADE", m.table.Name)
	case "codecarbon":
		fmt.Fprintf(&b, ", experiment_id INTEGER")
		for _, c := range cols {
			fmt.Fprintf(&b, ", %s %s DEFAULT NULL", c.Name, c.Type)
		}
		fmt.Fprintf(&b, ", FOREIGN KEY (experiment_id) REFERENCES %s(id) ON DELETE CASCADE", m.table.Name)
	default:
		return fmt.Errorf("schema: unknown table type %q", tableType)
	}
	b.WriteString(");")

	if _, err := m.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("schema: creating table %s: %w", name, err)
	}
	m.log.Info("created table", "name", name, "type", tableType)
	return nil
}

// metadataColumnNames returns the lowercase names of every column that is
// always present on the main table regardless of configuration (the
// synthetic id plus fixedMetadataColumns/finalColumns), excluded from
// both directions of the structure comparison.
func metadataColumnNames() map[string]bool {
	names := make(map[string]bool, len(fixedMetadataColumns)+len(finalColumns)+1)
	names["id"] = true
	for _, c := range fixedMetadataColumns {
		names[strings.ToLower(c.Name)] = true
	}
	for _, c := range finalColumns {
		names[strings.ToLower(c.Name)] = true
	}
	return names
}

// validateStructure requires set equality between the existing table's
// non-metadata columns and the declared keyfield/resultfield set: missing
// declared columns and undeclared extra columns are both ErrWrongStructure.
func (m *Manager) validateStructure(ctx context.Context) error {
	existing, err := m.dialect.ColumnNames(ctx, m.db, m.table.Name)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[strings.ToLower(name)] = true
	}

	declared := m.table.DeclaredColumnSet()
	declaredLower := make(map[string]bool, len(declared))
	for name := range declared {
		declaredLower[strings.ToLower(name)] = true
	}

	var missing []string
	for name := range declared {
		if !have[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}

	metadata := metadataColumnNames()
	var extra []string
	for _, name := range existing {
		lower := strings.ToLower(name)
		if !metadata[lower] && !declaredLower[lower] {
			extra = append(extra, name)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns %s", strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("undeclared columns %s", strings.Join(extra, ", ")))
	}
	return fmt.Errorf("%w: %s", ErrWrongStructure, strings.Join(parts, "; "))
}

// timestamp matches the original project's wall-clock representation
// for creation_date/start_date/end_date columns.
func timestamp() string {
	return time.Now().Format("01/02/2006, 15:04:05")
}
