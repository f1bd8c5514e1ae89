package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fillRowsFile string

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Insert experiment rows, either from the configured keyfield grid or from an explicit rows file",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		var inserted, skipped int
		if fillRowsFile != "" {
			rows, err := readRowsFile(fillRowsFile)
			if err != nil {
				return err
			}
			inserted, skipped, err = e.FillWithRows(cmd.Context(), rows)
			if err != nil {
				return err
			}
		} else {
			inserted, skipped, err = e.FillFromConfig(cmd.Context())
			if err != nil {
				return err
			}
		}

		fmt.Printf("inserted %d rows, skipped %d duplicates\n", inserted, skipped)
		return nil
	},
}

func readRowsFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("expgrid: reading %s: %w", path, err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("expgrid: parsing %s as a JSON array of rows: %w", path, err)
	}
	return rows, nil
}

func init() {
	fillCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	fillCmd.Flags().StringVar(&fillRowsFile, "rows", "", "path to a JSON array of explicit keyfield rows, instead of the full configured grid")
	rootCmd.AddCommand(fillCmd)
}
