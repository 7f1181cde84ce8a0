package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/policypulse/billsync/internal/bill"
)

var updateCmd = &cobra.Command{
	Use:   "update <row-id>",
	Short: "Re-fetch one bill and overwrite its stored record",
	Long: `Fetch a bill's current detail record from LegiScan and replace the
stored row identified by <row-id>. This is a full overwrite, separate
from the steady-state ingestion loop, which only inserts and backfills.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rowID := args[0]

		if err := cfg.Validate("update"); err != nil {
			return err
		}

		providerID, err := cmd.Flags().GetInt("provider-id")
		if err != nil || providerID <= 0 {
			return eris.New("update: --provider-id is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "update: open store")
		}
		defer st.Close() //nolint:errcheck

		raw, err := newClient().FetchBill(ctx, providerID)
		if err != nil {
			return eris.Wrapf(err, "update: fetch bill %d", providerID)
		}

		if err := st.UpdateBill(ctx, rowID, bill.Normalize(raw).Bill); err != nil {
			return eris.Wrapf(err, "update: bill %s", rowID)
		}

		fmt.Printf("Updated bill %s\n", rowID)
		return nil
	},
}

func init() {
	updateCmd.Flags().Int("provider-id", 0, "LegiScan bill id to fetch")
	rootCmd.AddCommand(updateCmd)
}
