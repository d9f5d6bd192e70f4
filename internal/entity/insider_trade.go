package entity

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// TradeType is the canonical kind of an insider transaction.
type TradeType string

const (
	TradeTypeBuy            TradeType = "BUY"
	TradeTypeSell           TradeType = "SELL"
	TradeTypeOptionExercise TradeType = "OPTION_EXERCISE"
	TradeTypeGift           TradeType = "GIFT"
	TradeTypeTransfer       TradeType = "TRANSFER"
	TradeTypeOther          TradeType = "OTHER"
)

// SignalType is the downstream filtering signal derived from a TradeType.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal derives the signal from the trade type.
func (t TradeType) Signal() SignalType {
	switch t {
	case TradeTypeBuy:
		return SignalBuy
	case TradeTypeSell:
		return SignalSell
	default:
		return SignalHold
	}
}

// VerificationStatus is the lifecycle status of a stored trade.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "PENDING"
	StatusVerified VerificationStatus = "VERIFIED"
	StatusInvalid  VerificationStatus = "INVALID"
	StatusBlocked  VerificationStatus = "BLOCKED"
)

// InsiderTrade is the canonical, persisted trade record.
type InsiderTrade struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	FilingID           string             `gorm:"uniqueIndex;not null" json:"filing_id"`
	Fingerprint        string             `gorm:"index;not null" json:"fingerprint"`
	Ticker             string             `gorm:"index;not null" json:"ticker"`
	CompanyName        string             `json:"company_name"`
	TraderName         string             `gorm:"not null" json:"trader_name"`
	TraderTitle        string             `json:"trader_title"`
	TradeType          TradeType          `gorm:"type:varchar(20);not null" json:"trade_type"`
	SignalType         SignalType         `gorm:"type:varchar(10);not null" json:"signal_type"`
	Shares             int64              `gorm:"not null" json:"shares"`
	PricePerShare      decimal.Decimal    `gorm:"type:numeric(18,4)" json:"price_per_share"`
	TotalValue         decimal.Decimal    `gorm:"type:numeric(20,2)" json:"total_value"`
	TradeDate          time.Time          `gorm:"type:date;not null" json:"trade_date"`
	FiledDate          *time.Time         `gorm:"type:date" json:"filed_date,omitempty"`
	SourceName         string             `gorm:"not null" json:"source_name"`
	SourceURL          string             `json:"source_url"`
	Confidence         int                `gorm:"not null" json:"confidence"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(10);index;not null" json:"verification_status"`
	VerificationNotes  pq.StringArray     `gorm:"type:text[]" json:"verification_notes"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the InsiderTrade model.
func (InsiderTrade) TableName() string {
	return "insider_trades"
}
