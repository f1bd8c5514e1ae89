package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the experiment table and its logtables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		fmt.Println("schema ready")
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	rootCmd.AddCommand(schemaCmd)
}
