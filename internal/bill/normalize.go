package bill

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/policypulse/billsync/internal/legiscan"
)

// Normalized is the outcome of mapping one raw provider record.
type Normalized struct {
	Bill Bill

	// DegradedIdentity is set when ExternalID fell back to the bare
	// provider id because jurisdiction, bill number, or version date was
	// missing. Downstream dedup quality is reduced; not fatal.
	DegradedIdentity bool

	// ChamberDefaulted is set when neither the body text nor the
	// bill-number prefix resolved a chamber.
	ChamberDefaulted bool
}

const dateLayout = "2006-01-02"

var yearRe = regexp.MustCompile(`(\d{4})`)

// Normalize maps a raw provider record into the canonical Bill.
// It never fails: unparseable dates are treated as absent and identity
// degrades to the provider id when the composite key cannot be built.
func Normalize(raw legiscan.RawBill) Normalized {
	var n Normalized

	jurisdiction := strings.ToUpper(raw.State)

	chamberText := raw.Chamber
	if chamberText == "" {
		chamberText = raw.Body
	}
	chamber, resolved := mapChamber(chamberText, raw.BillNumber)
	if !resolved {
		n.ChamberDefaulted = true
		zap.L().Warn("could not determine chamber, defaulting to house",
			zap.String("body", chamberText),
			zap.String("bill_number", raw.BillNumber),
		)
	}

	year := raw.Year
	if year == 0 {
		if m := yearRe.FindString(raw.Session.SessionTitle); m != "" {
			year, _ = strconv.Atoi(m)
		}
	}
	if year == 0 {
		year = time.Now().Year()
	}

	versionDate := parseDate(raw.StatusDate)
	if versionDate == nil && len(raw.History) > 0 {
		versionDate = parseDate(raw.History[0].Date)
	}

	providerURL := raw.URL
	if providerURL == "" && raw.BillID != 0 {
		providerURL = fmt.Sprintf("https://legiscan.com/%s/bill/%d", jurisdiction, raw.BillID)
	}
	canonicalURL := raw.StateLink
	if canonicalURL == "" {
		canonicalURL = providerURL
	}

	externalID := ""
	if jurisdiction != "" && raw.BillNumber != "" && versionDate != nil {
		externalID = fmt.Sprintf("%s %s %s", jurisdiction, raw.BillNumber, versionDate.Format(dateLayout))
	} else {
		n.DegradedIdentity = true
		if raw.BillID != 0 {
			externalID = strconv.Itoa(raw.BillID)
		}
		zap.L().Warn("cannot construct composite identity key, falling back to provider id",
			zap.Int("provider_id", raw.BillID),
			zap.String("jurisdiction", jurisdiction),
			zap.String("bill_number", raw.BillNumber),
		)
	}

	var providerID *int
	if raw.BillID != 0 {
		id := raw.BillID
		providerID = &id
	}

	n.Bill = Bill{
		ExternalID:     externalID,
		ProviderID:     providerID,
		Jurisdiction:   jurisdiction,
		SessionYear:    year,
		BillNumber:     raw.BillNumber,
		Chamber:        chamber,
		Title:          raw.Title,
		Summary:        raw.Description,
		CanonicalURL:   canonicalURL,
		ProviderURL:    providerURL,
		VersionDate:    versionDate,
		RelevanceScore: raw.Relevance,
	}
	return n
}

// mapChamber resolves the chamber from the explicit body text first,
// then from the bill-number prefix. The explicit field always wins.
func mapChamber(chamberText, billNumber string) (Chamber, bool) {
	upper := strings.ToUpper(chamberText)
	if strings.Contains(upper, "HOUSE") {
		return ChamberHouse, true
	}
	if strings.Contains(upper, "ASSEMBLY") {
		return ChamberAssembly, true
	}
	if strings.Contains(upper, "SENATE") {
		return ChamberSenate, true
	}

	prefix := strings.ToUpper(billNumber)
	switch {
	case strings.HasPrefix(prefix, "H"):
		return ChamberHouse, true
	case strings.HasPrefix(prefix, "S"):
		return ChamberSenate, true
	case strings.HasPrefix(prefix, "A"):
		return ChamberAssembly, true
	}

	return ChamberHouse, false
}

// parseDate parses a provider YYYY-MM-DD date; failures mean absent.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
