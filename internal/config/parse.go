package config

import (
	"fmt"
	"sort"
)

// rawDocument mirrors the YAML shape of §6: a top-level "expgrid" section
// with Database, n_jobs, Custom, and CodeCarbon.
type rawDocument struct {
	Database   rawDatabase    `mapstructure:"Database"`
	NJobs      int            `mapstructure:"n_jobs"`
	Custom     map[string]any `mapstructure:"Custom"`
	CodeCarbon map[string]any `mapstructure:"CodeCarbon"`
}

type rawDatabase struct {
	Provider string   `mapstructure:"provider"`
	Database string   `mapstructure:"database"`
	Table    rawTable `mapstructure:"table"`
}

type rawTable struct {
	Name             string                    `mapstructure:"name"`
	Keyfields        map[string]rawKeyfield    `mapstructure:"keyfields"`
	Resultfields     map[string]string         `mapstructure:"resultfields"`
	ResultTimestamps bool                      `mapstructure:"result_timestamps"`
	Logtables        map[string]map[string]string `mapstructure:"logtables"`
}

type rawKeyfield struct {
	Type   string `mapstructure:"type"`
	Values any    `mapstructure:"values"`
}

func parseRaw(raw rawDocument) (*Config, error) {
	if raw.Database.Provider != "sqlite" && raw.Database.Provider != "mysql" {
		return nil, fmt.Errorf("%w: provider must be \"sqlite\" or \"mysql\", got %q", ErrUnsupportedProvider, raw.Database.Provider)
	}
	if raw.Database.Table.Name == "" {
		return nil, fmt.Errorf("%w: table.name is required", ErrInvalidStructure)
	}

	njobs := raw.NJobs
	if njobs == 0 {
		njobs = 1
	}
	if njobs < 1 {
		return nil, fmt.Errorf("%w: n_jobs must be a positive integer, got %d", ErrInvalidStructure, njobs)
	}

	keyfields, err := parseKeyfields(raw.Database.Table.Keyfields)
	if err != nil {
		return nil, err
	}

	resultfields := parseResultfields(raw.Database.Table.Resultfields)

	logtables, err := parseLogtables(raw.Database.Table.Name, raw.Database.Table.Logtables)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: Database{
			Provider: raw.Database.Provider,
			Database: raw.Database.Database,
			Table: Table{
				Name:             raw.Database.Table.Name,
				Keyfields:        keyfields,
				Resultfields:     resultfields,
				ResultTimestamps: raw.Database.Table.ResultTimestamps,
				Logtables:        logtables,
			},
		},
		NJobs:      njobs,
		Custom:     raw.Custom,
		CodeCarbon: raw.CodeCarbon,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseKeyfields(raw map[string]rawKeyfield) ([]Keyfield, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Keyfield, 0, len(names))
	for _, name := range names {
		kf := raw[name]
		typ := kf.Type
		if typ == "" {
			typ = DefaultStringType
		}
		values, err := expandValues(name, kf.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, Keyfield{Name: name, Type: typ, Values: values})
	}
	return out, nil
}

// expandValues turns a keyfield's "values" entry into an ordered domain.
// It accepts either an explicit list, or an interval {start, stop, step}
// with half-open semantics ([start, stop)), step defaulting to 1. Integer
// list entries are widened to int64, the same type an interval yields.
func expandValues(name string, raw any) ([]any, error) {
	if raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []any:
		values := make([]any, len(v))
		for i, item := range v {
			if n, ok := item.(int); ok {
				values[i] = int64(n)
			} else {
				values[i] = item
			}
		}
		return values, nil
	case map[string]any:
		return expandInterval(name, v)
	default:
		return nil, fmt.Errorf("%w: keyfield %q has an unrecognized values shape", ErrInvalidColumn, name)
	}
}

func expandInterval(name string, m map[string]any) ([]any, error) {
	startAny, hasStart := m["start"]
	stopAny, hasStop := m["stop"]
	if !hasStart || !hasStop {
		return nil, fmt.Errorf("%w: keyfield %q interval requires start and stop", ErrInvalidColumn, name)
	}

	start, err := toInt(startAny)
	if err != nil {
		return nil, fmt.Errorf("%w: keyfield %q start: %v", ErrInvalidColumn, name, err)
	}
	stop, err := toInt(stopAny)
	if err != nil {
		return nil, fmt.Errorf("%w: keyfield %q stop: %v", ErrInvalidColumn, name, err)
	}
	step := int64(1)
	if stepAny, ok := m["step"]; ok {
		step, err = toInt(stepAny)
		if err != nil {
			return nil, fmt.Errorf("%w: keyfield %q step: %v", ErrInvalidColumn, name, err)
		}
	}
	if step == 0 {
		return nil, fmt.Errorf("%w: keyfield %q step must be non-zero", ErrInvalidColumn, name)
	}
	if (step > 0 && start >= stop) || (step < 0 && start <= stop) {
		return nil, fmt.Errorf("%w: keyfield %q empty range [%d, %d) step %d", ErrInvalidColumn, name, start, stop, step)
	}

	var values []any
	if step > 0 {
		for i := start; i < stop; i += step {
			values = append(values, i)
		}
	} else {
		for i := start; i > stop; i += step {
			values = append(values, i)
		}
	}
	return values, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func parseResultfields(raw map[string]string) []Resultfield {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Resultfield, 0, len(names))
	for _, name := range names {
		typ := raw[name]
		if typ == "" {
			typ = DefaultStringType
		}
		out = append(out, Resultfield{Name: name, Type: typ})
	}
	return out
}

func parseLogtables(tableName string, raw map[string]map[string]string) ([]Logtable, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Logtable, 0, len(names))
	for _, name := range names {
		cols := raw[name]
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: logtable %q has no columns", ErrInvalidLogtable, name)
		}
		out = append(out, Logtable{Name: name, Columns: cols})
	}
	return out, nil
}
