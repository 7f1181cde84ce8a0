package ingest

import (
	"strings"

	"go.uber.org/zap"

	"github.com/policypulse/billsync/internal/legiscan"
	"github.com/policypulse/billsync/internal/store"
)

// SelectForProcessing reduces a search result set to the records that
// need a detail fetch, given a snapshot of already-known
// jurisdiction+number keys.
//
// In raw mode the search results carry no jurisdiction or bill-number
// fields, so identity cannot be determined and every record passes
// through. Otherwise records missing either field are dropped, and the
// rest are retained whether or not their key is known: a known key may
// still hide a new version date that only the detail record reveals.
// Final dedup happens at storage time via the external id.
func SelectForProcessing(results []legiscan.SearchResult, known map[string][]store.KnownVersion, rawMode bool) []legiscan.SearchResult {
	if rawMode {
		return results
	}

	filtered := make([]legiscan.SearchResult, 0, len(results))
	newKeys := 0
	knownKeys := 0

	for _, r := range results {
		state := strings.ToUpper(r.State)
		if state == "" || r.BillNumber == "" {
			continue
		}
		if _, ok := known[state+" "+r.BillNumber]; ok {
			knownKeys++
		} else {
			newKeys++
		}
		filtered = append(filtered, r)
	}

	zap.L().Info("filtered search results",
		zap.Int("new_keys", newKeys),
		zap.Int("known_keys_to_recheck", knownKeys),
		zap.Int("selected", len(filtered)),
		zap.Int("dropped_unkeyable", len(results)-len(filtered)),
	)
	return filtered
}
