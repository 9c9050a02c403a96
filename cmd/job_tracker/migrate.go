package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appNeeds{db: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.db.Migrate(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, "Database schema is up to date")
	return nil
}
