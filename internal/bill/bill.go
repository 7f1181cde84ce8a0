// Package bill defines the canonical legislative-bill record and the
// normalizer that maps raw provider records into it.
package bill

import "time"

// Chamber identifies the legislative body a bill originates from.
type Chamber string

const (
	ChamberHouse    Chamber = "house"
	ChamberSenate   Chamber = "senate"
	ChamberAssembly Chamber = "assembly"
)

// Bill is the canonical record persisted by the storage layer.
//
// ExternalID is the composite identity key
// "{jurisdiction} {bill_number} {version_date}", falling back to the
// provider's numeric id when any component is missing. ProviderID is a
// secondary dedup key; once stored it is only ever backfilled from
// null, never overwritten.
type Bill struct {
	ID             string     `json:"id,omitempty"`
	ExternalID     string     `json:"external_id"`
	ProviderID     *int       `json:"provider_id,omitempty"`
	Jurisdiction   string     `json:"jurisdiction"`
	SessionYear    int        `json:"session_year"`
	BillNumber     string     `json:"bill_number"`
	Chamber        Chamber    `json:"chamber"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	CanonicalURL   string     `json:"canonical_url,omitempty"`
	ProviderURL    string     `json:"provider_url,omitempty"`
	VersionDate    *time.Time `json:"version_date,omitempty"`
	RelevanceScore int        `json:"relevance_score,omitempty"`

	// Assigned by the storage layer at write time.
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Key returns the jurisdiction+number grouping key used by the
// change-detection pre-filter.
func (b Bill) Key() string {
	return b.Jurisdiction + " " + b.BillNumber
}
