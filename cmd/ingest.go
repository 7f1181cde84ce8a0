package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/policypulse/billsync/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest bills from LegiScan",
	Long: `Search LegiScan, fetch detail records, and store new bills.

By default the run is incremental: stored jurisdiction+number keys and
provider ids are used to skip redundant detail fetches. Use --full to
process every search result, or --check-existing to re-fetch known
bills and look for new versions. Prints the count of bills ingested.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		opts, err := parseIngestOpts(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest: open store")
		}
		defer st.Close() //nolint:errcheck

		svc := ingest.NewService(newClient(), st)
		count, err := svc.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Println(count)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("min-relevance", 0, "minimum relevance score (0-100)")
	ingestCmd.Flags().String("state", "", "state code (e.g. CA, NY) or ALL")
	ingestCmd.Flags().Bool("raw", true, "use the raw bulk search variant")
	ingestCmd.Flags().Bool("full", false, "process all bills, including ones already stored")
	ingestCmd.Flags().Bool("check-existing", false, "re-fetch known bills to catch new versions")
	ingestCmd.Flags().String("since", "", "only store bills with version_date on or after this date (YYYY-MM-DD)")
	ingestCmd.Flags().Bool("dry-run", false, "search and fetch but write nothing")
	ingestCmd.Flags().Int("limit", 0, "only process N bills (0 = no limit)")
	rootCmd.AddCommand(ingestCmd)
}

// parseIngestOpts extracts ingest.Options from the cobra command flags,
// falling back to configured defaults.
func parseIngestOpts(cmd *cobra.Command) (ingest.Options, error) {
	minRelevance, _ := cmd.Flags().GetInt("min-relevance")
	state, _ := cmd.Flags().GetString("state")
	raw, _ := cmd.Flags().GetBool("raw")
	full, _ := cmd.Flags().GetBool("full")
	checkExisting, _ := cmd.Flags().GetBool("check-existing")
	sinceStr, _ := cmd.Flags().GetString("since")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	limit, _ := cmd.Flags().GetInt("limit")

	if !cmd.Flags().Changed("min-relevance") {
		minRelevance = cfg.Ingest.MinRelevance
	}
	if state == "" {
		state = cfg.Ingest.Jurisdiction
	}

	opts := ingest.Options{
		Query:         cfg.Ingest.Query,
		MinRelevance:  minRelevance,
		Jurisdiction:  state,
		Raw:           raw,
		Incremental:   !full,
		CheckExisting: checkExisting,
		DryRun:        dryRun,
		Limit:         limit,
	}

	if sinceStr != "" {
		since, err := parseSince(sinceStr)
		if err != nil {
			return ingest.Options{}, err
		}
		opts.Since = &since
	}

	return opts, nil
}

// parseSince accepts an ISO date or datetime and returns its date.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "ingest: parse --since %q", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
