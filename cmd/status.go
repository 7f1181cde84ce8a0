package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when bills were last processed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "status: open store")
		}
		defer st.Close() //nolint:errcheck

		last, err := st.LastProcessedAt(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if last == nil {
			fmt.Println("No bills ingested yet")
			return nil
		}

		fmt.Printf("Last processed: %s\n", last.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
