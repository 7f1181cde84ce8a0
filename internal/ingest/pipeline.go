// Package ingest orchestrates the bill ingestion pipeline:
// search, change-detection filter, detail fetch, normalize, store.
// Control flow is strictly linear per run and per-record faults during
// fetch or store never abort a batch.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/policypulse/billsync/internal/bill"
	"github.com/policypulse/billsync/internal/legiscan"
	"github.com/policypulse/billsync/internal/store"
)

// Client is the provider surface the pipeline depends on.
type Client interface {
	Search(ctx context.Context, query, state string, minRelevance int, raw bool) ([]legiscan.SearchResult, legiscan.SearchSummary, error)
	FetchBill(ctx context.Context, billID int) (legiscan.RawBill, error)
}

// Options controls a single ingestion run.
type Options struct {
	// Query is the provider search query; defaults to the AI
	// legislation query.
	Query string

	// MinRelevance drops search results below this relevance score.
	MinRelevance int

	// Jurisdiction restricts the search to one region code, or "ALL".
	Jurisdiction string

	// Raw selects the bulk raw search variant (no jurisdiction or
	// bill-number fields on results).
	Raw bool

	// Incremental enables pre-filtering against stored keys and
	// provider ids.
	Incremental bool

	// CheckExisting disables the provider-id skip so already-known
	// records are re-fetched and checked for updates.
	CheckExisting bool

	// Since keeps only bills with a version date on or after this date.
	Since *time.Time

	// DryRun searches and fetches but performs no database writes.
	DryRun bool

	// Limit caps how many search results are processed; 0 means all.
	Limit int
}

// Service sequences one ingestion run end to end. The provider client
// and store are injected at construction.
type Service struct {
	client Client
	store  store.Store
}

// NewService creates an ingestion service.
func NewService(client Client, st store.Store) *Service {
	return &Service{client: client, store: st}
}

// Run executes search -> filter -> fetch -> normalize -> store and
// returns the number of bills ingested (or that would be, under
// DryRun). Bulk search and bulk snapshot-read faults abort the run;
// everything per-record is logged and skipped.
func (s *Service) Run(ctx context.Context, opts Options) (int, error) {
	log := zap.L()

	if opts.Query == "" {
		opts.Query = legiscan.DefaultAIQuery
	}
	if opts.Jurisdiction == "" {
		opts.Jurisdiction = "ALL"
	}
	if opts.DryRun {
		log.Info("dry run: no database writes will be performed")
	}
	log.Info("starting bill ingestion",
		zap.String("jurisdiction", opts.Jurisdiction),
		zap.Int("min_relevance", opts.MinRelevance),
		zap.Bool("incremental", opts.Incremental),
		zap.Bool("raw", opts.Raw),
	)

	known := map[string][]store.KnownVersion{}
	if opts.Incremental {
		var err error
		known, err = s.store.ExistingKeysByJurisdictionAndNumber(ctx)
		if err != nil {
			return 0, err
		}
		last, err := s.store.LastProcessedAt(ctx)
		switch {
		case err != nil:
			log.Warn("could not read last processed timestamp", zap.Error(err))
		case last != nil:
			log.Info("incremental mode", zap.Time("last_processed", *last))
		default:
			log.Info("incremental mode: store is empty, processing all results")
		}
	}

	results, summary, err := s.client.Search(ctx, opts.Query, opts.Jurisdiction, opts.MinRelevance, opts.Raw)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		log.Warn("no bills matched search criteria", zap.Int("provider_total", summary.Count))
		return 0, nil
	}

	if opts.Incremental && len(known) > 0 {
		results = SelectForProcessing(results, known, opts.Raw)
		if len(results) == 0 {
			log.Info("no new bills to process, all search results already stored")
			return 0, nil
		}
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
		log.Info("limited search results", zap.Int("limit", opts.Limit))
	}

	var skip map[int]struct{}
	if opts.Incremental && !opts.CheckExisting {
		ids := make([]int, 0, len(results))
		for _, r := range results {
			if r.BillID != 0 {
				ids = append(ids, r.BillID)
			}
		}
		if len(ids) > 0 {
			skip, err = s.store.ExistingProviderIDs(ctx, ids)
			if err != nil {
				return 0, err
			}
		}
	}

	bills, err := s.fetchAndNormalize(ctx, results, skip)
	if err != nil {
		return 0, err
	}
	if len(bills) == 0 {
		log.Warn("no bills successfully fetched")
		return 0, nil
	}

	if opts.Since != nil {
		before := len(bills)
		kept := bills[:0]
		for _, b := range bills {
			if b.VersionDate != nil && !b.VersionDate.Before(*opts.Since) {
				kept = append(kept, b)
			}
		}
		bills = kept
		log.Info("filtered bills by version date",
			zap.Time("since", *opts.Since),
			zap.Int("kept", len(bills)),
			zap.Int("before", before),
		)
		if len(bills) == 0 {
			log.Info("no bills in the requested date range")
			return 0, nil
		}
	}

	if opts.DryRun {
		log.Info("dry run: would store bills", zap.Int("count", len(bills)))
		return len(bills), nil
	}

	count, err := s.store.Store(ctx, bills)
	if err != nil {
		return 0, err
	}
	log.Info("ingestion complete", zap.Int("ingested", count))
	return count, nil
}

// fetchAndNormalize fetches the detail record for each search result
// and maps it into a canonical Bill, sequentially. Records whose
// provider id is already stored are skipped; fetch failures drop the
// record and continue. Exhausted rate-limit retries are terminal for
// the whole run.
func (s *Service) fetchAndNormalize(ctx context.Context, results []legiscan.SearchResult, skip map[int]struct{}) ([]bill.Bill, error) {
	log := zap.L()
	bills := make([]bill.Bill, 0, len(results))
	skipped := 0

	for i, r := range results {
		if r.BillID == 0 {
			log.Warn("skipping search result without provider id", zap.Int("index", i+1))
			continue
		}
		if _, ok := skip[r.BillID]; ok {
			skipped++
			continue
		}

		log.Debug("fetching bill detail",
			zap.Int("provider_id", r.BillID),
			zap.Int("position", i+1),
			zap.Int("total", len(results)),
			zap.Int("relevance", r.Relevance),
		)
		raw, err := s.client.FetchBill(ctx, r.BillID)
		if err != nil {
			if errors.Is(err, legiscan.ErrRateLimitExceeded) {
				return nil, err
			}
			log.Error("bill fetch failed, skipping record",
				zap.Int("provider_id", r.BillID),
				zap.Error(err),
			)
			continue
		}

		raw.Relevance = r.Relevance
		bills = append(bills, bill.Normalize(raw).Bill)
	}

	if skipped > 0 {
		log.Info("skipped detail fetches for bills already stored", zap.Int("skipped", skipped))
	}
	log.Info("fetched bill details",
		zap.Int("fetched", len(bills)),
		zap.Int("search_results", len(results)),
	)
	return bills, nil
}
