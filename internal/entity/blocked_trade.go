package entity

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// BlockedTrade is a quarantined candidate that matched a fake-data pattern.
// It never reaches insider_trades and is not served by default read paths.
type BlockedTrade struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	FilingID    string         `gorm:"uniqueIndex;not null" json:"filing_id"`
	SourceName  string         `gorm:"not null" json:"source_name"`
	Ticker      string         `json:"ticker"`
	TraderName  string         `json:"trader_name"`
	CompanyName string         `json:"company_name"`
	Reasons     pq.StringArray `gorm:"type:text[]" json:"reasons"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (BlockedTrade) TableName() string {
	return "blocked_trades"
}
