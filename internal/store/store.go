package store

import (
	"context"
	"fmt"
	"time"

	"github.com/policypulse/billsync/internal/bill"
)

// KnownVersion is one stored record under a jurisdiction+number key.
// A bill appears once per distinct version date.
type KnownVersion struct {
	ExternalID  string     `json:"external_id"`
	VersionDate *time.Time `json:"version_date,omitempty"`
}

// StorageError wraps a backing-store fault. Per-record operations treat
// it as independently recoverable; bulk snapshot reads do not.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// LastProcessedAt returns the most recent update time across all
	// stored records, or nil when the store is empty. Informational
	// incremental-mode signal only, not a watermark filter.
	LastProcessedAt(ctx context.Context) (*time.Time, error)

	// ExistingKeysByJurisdictionAndNumber returns a bulk snapshot of
	// stored records grouped by "{jurisdiction} {bill_number}".
	ExistingKeysByJurisdictionAndNumber(ctx context.Context) (map[string][]KnownVersion, error)

	// ExistingProviderIDs reports which of the candidate provider ids
	// are already stored. Lookups are chunked to respect request-size
	// limits; a failed chunk is logged and skipped.
	ExistingProviderIDs(ctx context.Context, ids []int) (map[int]struct{}, error)

	// Store persists bills idempotently, one at a time. Existing records
	// (by external_id) get a narrow provider-id/URL backfill and count
	// as skipped; inserts losing the secondary-uniqueness race are
	// reclassified as skips. Returns the count of true new inserts.
	Store(ctx context.Context, bills []bill.Bill) (int, error)

	// UpdateBill performs an explicit full update of an existing record
	// by row id. Not part of the steady-state ingestion loop.
	UpdateBill(ctx context.Context, id string, b bill.Bill) error

	// Migrate brings the schema up to date. Idempotent.
	Migrate(ctx context.Context) error
}
