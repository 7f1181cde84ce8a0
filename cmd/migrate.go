package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the bills schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "migrate: open store")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		fmt.Println("Migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
