package dto

import (
	"time"

	"insidertrack/internal/entity"

	"github.com/shopspring/decimal"
)

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RunRequest asks the consumer to run one source. It travels as the
// payload of the run request stream.
type RunRequest struct {
	Source      string     `json:"source" validate:"required"`
	Options     RunOptions `json:"options"`
	RequestedAt time.Time  `json:"requested_at"`
}

// TriggerRunRequest is the body of POST /sources/:source/runs.
type TriggerRunRequest struct {
	Upsert       bool `json:"upsert"`
	MaxDocuments int  `json:"max_documents" validate:"gte=0,lte=500"`
	RecentWindow int  `json:"recent_window" validate:"gte=0,lte=10000"`
}

// ListTradesRequest holds the query parameters of GET /trades.
type ListTradesRequest struct {
	Ticker         string `query:"ticker" validate:"omitempty,max=10"`
	Trader         string `query:"trader"`
	TradeType      string `query:"trade_type" validate:"omitempty,oneof=BUY SELL OPTION_EXERCISE GIFT TRANSFER OTHER"`
	Signal         string `query:"signal" validate:"omitempty,oneof=BUY SELL HOLD"`
	Source         string `query:"source"`
	Status         string `query:"status" validate:"omitempty,oneof=PENDING VERIFIED INVALID BLOCKED"`
	IncludeBlocked bool   `query:"include_blocked"`
	Limit          int    `query:"limit" validate:"gte=0,lte=500"`
	Offset         int    `query:"offset" validate:"gte=0"`
}

// Filter converts the query into a repository filter.
func (r ListTradesRequest) Filter() TradeFilter {
	return TradeFilter{
		Ticker:         r.Ticker,
		TraderName:     r.Trader,
		TradeType:      entity.TradeType(r.TradeType),
		SignalType:     entity.SignalType(r.Signal),
		SourceName:     r.Source,
		Status:         entity.VerificationStatus(r.Status),
		IncludeBlocked: r.IncludeBlocked,
	}
}

// ListRunsRequest holds the query parameters of GET /runs.
type ListRunsRequest struct {
	Source string `query:"source"`
	Limit  int    `query:"limit" validate:"gte=0,lte=500"`
	Offset int    `query:"offset" validate:"gte=0"`
}

// ValidateTradeRequest is a raw trade to be normalized and scored without
// ingesting it.
type ValidateTradeRequest struct {
	Source string   `json:"source" validate:"required"`
	Trade  RawTrade `json:"trade"`
}

// ValidateTradeResponse is the normalized candidate and its verdict.
type ValidateTradeResponse struct {
	Candidate CandidateTrade   `json:"candidate"`
	Result    ValidationResult `json:"result"`
}

// ListResponse wraps a page of items.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// RunResponse is the API view of one recorded ingestion run.
type RunResponse struct {
	RunID         string          `json:"run_id"`
	Source        string          `json:"source"`
	Trigger       string          `json:"trigger"`
	Status        string          `json:"status"`
	Processed     int             `json:"processed"`
	Duplicates    int             `json:"duplicates"`
	Updated       int             `json:"updated"`
	Invalid       int             `json:"invalid"`
	Blocked       int             `json:"blocked"`
	Filtered      int             `json:"filtered"`
	Errors        int             `json:"errors"`
	TotalValueUSD decimal.Decimal `json:"total_value_usd"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
