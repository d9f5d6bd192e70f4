package dto

import (
	"time"

	"insidertrack/internal/entity"

	"github.com/shopspring/decimal"
)

// CandidateTrade is a normalized, not yet validated trade.
type CandidateTrade struct {
	FilingID       string           `json:"filing_id"`
	NativeFilingID bool             `json:"native_filing_id"`
	Fingerprint    string           `json:"fingerprint"`
	Ticker         string           `json:"ticker"`
	CompanyName    string           `json:"company_name"`
	TraderName     string           `json:"trader_name"`
	TraderTitle    string           `json:"trader_title"`
	TradeType      entity.TradeType `json:"trade_type"`
	Shares         int64            `json:"shares"`
	PricePerShare  decimal.Decimal  `json:"price_per_share"`
	TotalValue     decimal.Decimal  `json:"total_value"`
	// ValueReported is set when TotalValue came from the source rather
	// than being computed from shares and price.
	ValueReported bool       `json:"value_reported"`
	TradeDate     time.Time  `json:"trade_date"`
	FiledDate     *time.Time `json:"filed_date,omitempty"`
	SourceName    string     `json:"source_name"`
	SourceURL     string     `json:"source_url"`
	Confidence    int        `json:"confidence"`
}

// Verdict is the authenticity judgement of the validator.
type Verdict string

const (
	VerdictReal Verdict = "REAL"
	VerdictFake Verdict = "FAKE"
)

// ValidationResult is the output of validating one candidate.
type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	IsReal     bool     `json:"is_real"`
	Verdict    Verdict  `json:"verdict"`
	Confidence int      `json:"confidence"`
	Issues     []string `json:"issues"`
}

// Status maps a validation result to the stored verification status.
func (r ValidationResult) Status() entity.VerificationStatus {
	switch {
	case r.Verdict == VerdictFake:
		return entity.StatusBlocked
	case !r.IsValid:
		return entity.StatusInvalid
	default:
		return entity.StatusVerified
	}
}

// TradeFilter narrows ListRecent queries.
type TradeFilter struct {
	Ticker         string
	TraderName     string
	TradeType      entity.TradeType
	SignalType     entity.SignalType
	SourceName     string
	Status         entity.VerificationStatus
	IncludeBlocked bool
}

// CandidateFromEntity rebuilds the candidate view of a stored trade so it
// can be re-validated.
func CandidateFromEntity(t entity.InsiderTrade) CandidateTrade {
	return CandidateTrade{
		FilingID:      t.FilingID,
		Fingerprint:   t.Fingerprint,
		Ticker:        t.Ticker,
		CompanyName:   t.CompanyName,
		TraderName:    t.TraderName,
		TraderTitle:   t.TraderTitle,
		TradeType:     t.TradeType,
		Shares:        t.Shares,
		PricePerShare: t.PricePerShare,
		TotalValue:    t.TotalValue,
		ValueReported: true,
		TradeDate:     t.TradeDate,
		FiledDate:     t.FiledDate,
		SourceName:    t.SourceName,
		SourceURL:     t.SourceURL,
		Confidence:    t.Confidence,
	}
}
