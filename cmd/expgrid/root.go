package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "expgrid",
	Short: "Coordinate parametrized experiments over a shared database",
	Long: `expgrid fills an experiment table with parameter combinations, hands
them out to worker processes one at a time, and records each run's
results, logs, and status transitions in the same table.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the expgrid.yaml configuration document")
}
