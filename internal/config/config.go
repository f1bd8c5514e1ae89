// Package config produces a validated, strongly typed description of the
// experiment table schema and execution policy from a declarative YAML
// document, following the precedence search and viper-backed loading
// pattern used in the teacher's own internal/config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// DefaultStringType is used for any keyfield/resultfield whose type is
// omitted, and for every synthesized "<name>_timestamp" column.
const DefaultStringType = "VARCHAR(255)"

// Keyfield is a named input dimension of an experiment, with its SQL
// column type and its ordered value domain.
type Keyfield struct {
	Name   string
	Type   string
	Values []any
}

// Resultfield is a named output column written by the experiment routine.
type Resultfield struct {
	Name string
	Type string
}

// Logtable is a child table for append-only per-experiment log lines.
// Name is the bare suffix; the actual table is "<table>__<Name>".
type Logtable struct {
	Name    string
	Columns map[string]string
}

// Table describes the main experiment table and its children.
type Table struct {
	Name             string
	Keyfields        []Keyfield
	Resultfields     []Resultfield
	ResultTimestamps bool
	Logtables        []Logtable
}

// Database describes the backend and the table it owns.
type Database struct {
	Provider string // "sqlite" or "mysql"
	Database string // file stem (sqlite) or database name (mysql)
	Table    Table
}

// Config is the fully parsed declarative document.
type Config struct {
	Database   Database
	NJobs      int
	Custom     map[string]any
	CodeCarbon map[string]any
}

// KeyfieldNames returns the ordered keyfield names.
func (t Table) KeyfieldNames() []string {
	names := make([]string, len(t.Keyfields))
	for i, k := range t.Keyfields {
		names[i] = k.Name
	}
	return names
}

// ResultfieldColumns returns the resultfield name -> SQL type map,
// including "<name>_timestamp" entries when ResultTimestamps is set.
func (t Table) ResultfieldColumns() map[string]string {
	cols := make(map[string]string, len(t.Resultfields)*2)
	for _, r := range t.Resultfields {
		cols[r.Name] = r.Type
		if t.ResultTimestamps {
			cols[r.Name+"_timestamp"] = DefaultStringType
		}
	}
	return cols
}

// KeyfieldColumns returns the keyfield name -> SQL type map.
func (t Table) KeyfieldColumns() map[string]string {
	cols := make(map[string]string, len(t.Keyfields))
	for _, k := range t.Keyfields {
		cols[k.Name] = k.Type
	}
	return cols
}

// LogtableFullName returns the physical child table name for a logtable
// suffix.
func (t Table) LogtableFullName(suffix string) string {
	return t.Name + "__" + suffix
}

// Logtable returns the logtable definition for suffix, if declared.
func (t Table) Logtable(suffix string) (Logtable, bool) {
	for _, lt := range t.Logtables {
		if lt.Name == suffix {
			return lt, true
		}
	}
	return Logtable{}, false
}

// fixedMetadataColumns are the non-keyfield, non-resultfield columns
// always present on the main table; these are excluded when comparing
// an existing table's structure against the declared schema.
var fixedMetadataColumns = map[string]bool{
	"id":            true,
	"creation_date": true,
	"status":        true,
	"start_date":    true,
	"name":          true,
	"machine":       true,
	"end_date":      true,
	"error":         true,
}

// IsFixedMetadataColumn reports whether name is one of the always-present
// metadata columns, excluded from structure comparison.
func IsFixedMetadataColumn(name string) bool {
	return fixedMetadataColumns[name]
}

// DeclaredColumnSet returns the set of columns a correctly structured
// table must have, excluding fixed metadata columns: the union of
// keyfields, resultfields, and (if enabled) resultfield timestamps.
func (t Table) DeclaredColumnSet() map[string]bool {
	set := make(map[string]bool, len(t.Keyfields)+len(t.Resultfields)*2)
	for k := range t.KeyfieldColumns() {
		set[k] = true
	}
	for k := range t.ResultfieldColumns() {
		set[k] = true
	}
	return set
}

// SortedLogtableNames returns logtable suffixes in a deterministic order,
// for stable DDL generation.
func (t Table) SortedLogtableNames() []string {
	names := make([]string, len(t.Logtables))
	for i, lt := range t.Logtables {
		names[i] = lt.Name
	}
	sort.Strings(names)
	return names
}

// Load locates and parses the declarative configuration document.
//
// Resolution order: explicit path (if non-empty) > ./expgrid.yaml in the
// current working directory > $EXPGRID_CONFIG.
func Load(explicitPath string) (*Config, error) {
	path, err := resolvePath(explicitPath)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw rawDocument
	if err := v.UnmarshalKey("expgrid", &raw); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return parseRaw(raw)
}

func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		return explicitPath, nil
	}
	if _, err := os.Stat("expgrid.yaml"); err == nil {
		return "expgrid.yaml", nil
	}
	if envPath := os.Getenv("EXPGRID_CONFIG"); envPath != "" {
		return envPath, nil
	}
	return "", fmt.Errorf("config: no configuration file found (expected ./expgrid.yaml or $EXPGRID_CONFIG)")
}

// AbsPath makes a best-effort attempt to resolve path relative to the
// process working directory, for error messages.
func AbsPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
