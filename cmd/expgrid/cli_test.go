package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillAndShow_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	yaml := `
expgrid:
  Database:
    provider: sqlite
    database: cliexp
    table:
      name: trig
      keyfields:
        x:
          type: int
          values: [1, 2, 3]
`
	configFile := filepath.Join(dir, "expgrid.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(yaml), 0o644))
	configPath = configFile
	t.Cleanup(func() { configPath = "" })

	rootCmd.SetArgs([]string{"schema"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"fill"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"show"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"reset", "--status", "created"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
}
