package legiscan

// SearchResult is one entry from a bulk search response. Raw-mode
// searches (getSearchRaw) omit State and BillNumber, so a result cannot
// always be keyed without fetching the full record.
type SearchResult struct {
	BillID     int    `json:"bill_id"`
	Relevance  int    `json:"relevance"`
	State      string `json:"state"`
	BillNumber string `json:"bill_number"`
	Title      string `json:"title"`
}

// SearchSummary carries the provider's aggregate search metadata.
type SearchSummary struct {
	Count     int    `json:"count"`
	Page      string `json:"page"`
	Relevancy string `json:"relevancy"`
}

// RawBill is the full provider record returned by getBill.
type RawBill struct {
	BillID      int            `json:"bill_id"`
	State       string         `json:"state"`
	BillNumber  string         `json:"bill_number"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Body        string         `json:"body"`
	Chamber     string         `json:"chamber"`
	Year        int            `json:"year"`
	Session     RawSession     `json:"session"`
	StatusDate  string         `json:"status_date"`
	URL         string         `json:"url"`
	StateLink   string         `json:"state_link"`
	History     []HistoryEvent `json:"history"`

	// Relevance is carried over from the search result that led to this
	// fetch; it is not part of the getBill payload.
	Relevance int `json:"-"`
}

// RawSession describes the legislative session a bill belongs to.
type RawSession struct {
	SessionID    int    `json:"session_id"`
	SessionTitle string `json:"session_title"`
	YearStart    int    `json:"year_start"`
	YearEnd      int    `json:"year_end"`
}

// HistoryEvent is one entry in a bill's action history, oldest first.
type HistoryEvent struct {
	Date   string `json:"date"`
	Action string `json:"action"`
}

// RawText is a bill text document returned by getBillText. Doc is
// base64-encoded by the provider.
type RawText struct {
	DocID    int    `json:"doc_id"`
	BillID   int    `json:"bill_id"`
	Date     string `json:"date"`
	Type     string `json:"type"`
	Mime     string `json:"mime"`
	TextSize int    `json:"text_size"`
	Doc      string `json:"doc"`
}
