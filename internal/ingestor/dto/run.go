package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunOptions tunes one ingestion run.
type RunOptions struct {
	// Trigger names the caller: "api", "cli", "scheduler".
	Trigger string `json:"trigger"`
	// Upsert updates an existing record instead of skipping it.
	Upsert bool `json:"upsert"`
	// MaxDocuments caps the documents fetched; 0 keeps the source default.
	MaxDocuments int `json:"max_documents"`
	// RecentWindow overrides the deduplication window; 0 keeps the default.
	RecentWindow int `json:"recent_window"`
}

// RunSummary is the structured outcome of one ingestion run.
type RunSummary struct {
	RunID         string          `json:"run_id"`
	Source        string          `json:"source"`
	Status        string          `json:"status"`
	Documents     int             `json:"documents"`
	Processed     int             `json:"processed"`
	Duplicates    int             `json:"duplicates"`
	Updated       int             `json:"updated"`
	Invalid       int             `json:"invalid"`
	Blocked       int             `json:"blocked"`
	Filtered      int             `json:"filtered"`
	Errors        int             `json:"errors"`
	TotalValueUSD decimal.Decimal `json:"total_value_usd"`
	Error         string          `json:"error,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}

// AuditReport aggregates a re-validation pass over the store.
type AuditReport struct {
	Total                 int64      `json:"total"`
	Sampled               int        `json:"sampled"`
	Valid                 int        `json:"valid"`
	Invalid               int        `json:"invalid"`
	Fake                  int        `json:"fake"`
	ValidRatio            float64    `json:"valid_ratio"`
	InvalidRatio          float64    `json:"invalid_ratio"`
	FakeRatio             float64    `json:"fake_ratio"`
	DuplicateFilingIDs    int64      `json:"duplicate_filing_ids"`
	DuplicateFingerprints int64      `json:"duplicate_fingerprints"`
	StatusChanges         int        `json:"status_changes"`
	NewestRecordAt        *time.Time `json:"newest_record_at,omitempty"`
	FreshnessHours        float64    `json:"freshness_hours"`
	Recommendations       []string   `json:"recommendations"`
	GeneratedAt           time.Time  `json:"generated_at"`
}
