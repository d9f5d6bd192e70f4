package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RunStatus is the outcome of one source pass.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IngestionRun records one execution of a source pass.
type IngestionRun struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RunID         string          `gorm:"uniqueIndex;not null" json:"run_id"`
	SourceName    string          `gorm:"index;not null" json:"source_name"`
	Trigger       string          `json:"trigger"`
	Status        RunStatus       `gorm:"type:varchar(20);not null" json:"status"`
	Processed     int             `json:"processed"`
	Duplicates    int             `json:"duplicates"`
	Updated       int             `json:"updated"`
	Invalid       int             `json:"invalid"`
	Blocked       int             `json:"blocked"`
	Filtered      int             `json:"filtered"`
	Errors        int             `json:"errors"`
	TotalValueUSD decimal.Decimal `gorm:"type:numeric(20,2)" json:"total_value_usd"`
	ErrorMessage  sql.NullString  `json:"error_message"`
	Summary       datatypes.JSON  `gorm:"type:jsonb" json:"summary"`
	StartedAt     time.Time       `gorm:"not null" json:"started_at"`
	CompletedAt   sql.NullTime    `json:"completed_at"`
}

func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
