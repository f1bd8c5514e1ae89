package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
expgrid:
  Database:
    provider: sqlite
    database: experiments
    table:
      name: trig_experiments
      keyfields:
        value:
          type: int
          values:
            start: 1
            stop: 11
        exponent:
          type: int
          values: [1, 2, 3]
      resultfields:
        sin: FLOAT
        cos: FLOAT
      result_timestamps: true
      logtables:
        progress:
          message: LONGTEXT
  n_jobs: 4
  Custom:
    seed: 42
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "expgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Scenario1Shape(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.Database.Provider)
	require.Equal(t, 4, cfg.NJobs)
	require.Len(t, cfg.Database.Table.Keyfields, 2)

	var value, exponent Keyfield
	for _, k := range cfg.Database.Table.Keyfields {
		switch k.Name {
		case "value":
			value = k
		case "exponent":
			exponent = k
		}
	}
	assert.Equal(t, 10, len(value.Values), "interval [1,11) should expand to 10 values")
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, exponent.Values)

	cols := cfg.Database.Table.ResultfieldColumns()
	assert.Contains(t, cols, "sin")
	assert.Contains(t, cols, "sin_timestamp")
	assert.Contains(t, cols, "cos_timestamp")
}

func TestExpandInterval_EmptyRangeIsError(t *testing.T) {
	_, err := expandInterval("x", map[string]any{"start": 5, "stop": 5})
	require.Error(t, err)
}

func TestExpandInterval_DefaultStep(t *testing.T) {
	values, err := expandInterval("x", map[string]any{"start": 0, "stop": 3})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, values)
}

func TestValidate_UnsupportedProvider(t *testing.T) {
	cfg := &Config{
		Database: Database{Provider: "oracle", Database: "d", Table: Table{Name: "t", Keyfields: []Keyfield{{Name: "k"}}}},
		NJobs:    1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestValidate_LogtableMustNestUnderTableName(t *testing.T) {
	cfg := &Config{
		Database: Database{
			Provider: "sqlite",
			Database: "d",
			Table: Table{
				Name:      "t",
				Keyfields: []Keyfield{{Name: "k"}},
				Logtables: []Logtable{{Name: "progress", Columns: map[string]string{"msg": "TEXT"}}},
			},
		},
		NJobs: 1,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "t__progress", cfg.Database.Table.LogtableFullName("progress"))
}

func TestValidate_AggregatesAllProblems(t *testing.T) {
	cfg := &Config{
		Database: Database{Provider: "bogus", Database: "", Table: Table{}},
		NJobs:    0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 3)
}
