package dto

import "time"

// RawDocument is one retrieved upstream document.
type RawDocument struct {
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`

	// Metadata known to the fetcher about the document, e.g. the SEC
	// accession number and filing date taken from the discovery feed.
	FilingID  string `json:"filing_id,omitempty"`
	FiledDate string `json:"filed_date,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
}

// FetchResult is the output of one source fetch.
type FetchResult struct {
	Documents       []RawDocument
	FailedDocuments int
}

// RawTrade holds whatever a source document yields for one trade, as text.
type RawTrade struct {
	FilingID    string `json:"filing_id,omitempty"`
	FilingURL   string `json:"filing_url,omitempty"`
	Ticker      string `json:"ticker"`
	CompanyName string `json:"company_name"`
	TraderName  string `json:"trader_name"`
	TraderTitle string `json:"trader_title"`
	TradeType   string `json:"trade_type"`
	Shares      string `json:"shares"`
	Price       string `json:"price"`
	Value       string `json:"value"`
	TradeDate   string `json:"trade_date"`
	FiledDate   string `json:"filed_date"`
	SourceURL   string `json:"source_url"`
}

// ParseError describes one skipped entry.
type ParseError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ParseResult is the output of parsing one document.
type ParseResult struct {
	Trades []RawTrade `json:"trades"`
	// Skipped counts malformed or out-of-bounds entries.
	Skipped int `json:"skipped"`
	// Filtered counts well-formed entries outside the parser's scope.
	Filtered int          `json:"filtered"`
	Errors   []ParseError `json:"errors,omitempty"`
}

// Skip records a skipped entry.
func (r *ParseResult) Skip(index int, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, ParseError{Index: index, Reason: reason})
}
