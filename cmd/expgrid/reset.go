package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expgrid/expgrid/internal/status"
)

var resetStatuses []string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Requeue experiments with the given statuses back to created",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		states := make([]status.Status, len(resetStatuses))
		for i, s := range resetStatuses {
			states[i] = status.Status(s)
		}

		count, err := e.ResetExperiments(cmd.Context(), states...)
		if err != nil {
			return err
		}
		fmt.Printf("reset %d experiments\n", count)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	resetCmd.Flags().StringSliceVar(&resetStatuses, "status", []string{string(status.Error)}, "statuses to requeue; pass \"all\" to requeue every experiment")
	rootCmd.AddCommand(resetCmd)
}
