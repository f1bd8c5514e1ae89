package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var unpauseCmd = &cobra.Command{
	Use:   "unpause <id> -- <command> [args...]",
	Short: "Resume one paused experiment and run the given command for it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("expgrid: invalid experiment id %q: %w", args[0], err)
		}
		runCommand = args[1:]

		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Unpause(cmd.Context(), id, runRoutine); err != nil {
			return err
		}
		fmt.Printf("experiment %d finished\n", id)
		return nil
	},
}

func init() {
	unpauseCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	rootCmd.AddCommand(unpauseCmd)
}
