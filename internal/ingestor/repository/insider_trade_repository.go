package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// InsiderTradeRepository is the canonical trade store.
type InsiderTradeRepository interface {
	FindByFilingID(ctx context.Context, filingID string) (*entity.InsiderTrade, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.InsiderTrade, error)
	FindRecentByTicker(ctx context.Context, ticker string, from, to time.Time, limit int) ([]entity.InsiderTrade, error)
	CreateIgnoreConflict(ctx context.Context, trade *entity.InsiderTrade) (bool, error)
	Update(ctx context.Context, filingID string, patch map[string]interface{}) (*entity.InsiderTrade, error)
	UpdateVerification(ctx context.Context, id uint, status entity.VerificationStatus, confidence int, notes []string) error
	ListRecent(ctx context.Context, limit, offset int, filter dto.TradeFilter) ([]entity.InsiderTrade, error)
	Sample(ctx context.Context, limit int) ([]entity.InsiderTrade, error)
	Count(ctx context.Context) (int64, error)
	CountDuplicateFilingIDs(ctx context.Context) (int64, error)
	CountDuplicateFingerprints(ctx context.Context) (int64, error)
	NewestCreatedAt(ctx context.Context) (*time.Time, error)
}

// NewInsiderTradeRepository creates a new instance of InsiderTradeRepository.
func NewInsiderTradeRepository(db *gorm.DB) InsiderTradeRepository {
	return &insiderTradeRepository{db: db}
}

type insiderTradeRepository struct {
	db *gorm.DB
}

func (r *insiderTradeRepository) FindByFilingID(ctx context.Context, filingID string) (*entity.InsiderTrade, error) {
	return r.findOne(ctx, "filing_id = ?", filingID)
}

func (r *insiderTradeRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.InsiderTrade, error) {
	return r.findOne(ctx, "fingerprint = ?", fingerprint)
}

func (r *insiderTradeRepository) findOne(ctx context.Context, query string, arg interface{}) (*entity.InsiderTrade, error) {
	var trade entity.InsiderTrade
	err := r.db.WithContext(ctx).Where(query, arg).Order("id ASC").Take(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// FindRecentByTicker returns at most limit of the most recently stored
// trades of ticker whose trade date lies within [from, to].
func (r *insiderTradeRepository) FindRecentByTicker(ctx context.Context, ticker string, from, to time.Time, limit int) ([]entity.InsiderTrade, error) {
	var trades []entity.InsiderTrade
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND trade_date BETWEEN ? AND ?", ticker, from, to).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// CreateIgnoreConflict inserts trade unless its filing id already exists.
// It reports whether a row was written.
func (r *insiderTradeRepository) CreateIgnoreConflict(ctx context.Context, trade *entity.InsiderTrade) (bool, error) {
	if trade.VerificationNotes == nil {
		trade.VerificationNotes = pq.StringArray{}
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filing_id"}},
		DoNothing: true,
	}).Create(trade)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *insiderTradeRepository) Update(ctx context.Context, filingID string, patch map[string]interface{}) (*entity.InsiderTrade, error) {
	tx := r.db.WithContext(ctx).Model(&entity.InsiderTrade{}).Where("filing_id = ?", filingID).Updates(patch)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByFilingID(ctx, filingID)
}

func (r *insiderTradeRepository) UpdateVerification(ctx context.Context, id uint, status entity.VerificationStatus, confidence int, notes []string) error {
	return r.db.WithContext(ctx).Model(&entity.InsiderTrade{}).Where("id = ?", id).Updates(map[string]interface{}{
		"verification_status": status,
		"confidence":          confidence,
		"verification_notes":  stringArray(notes),
	}).Error
}

// ListRecent pages through trades newest first. BLOCKED records are left
// out unless the filter asks for them.
func (r *insiderTradeRepository) ListRecent(ctx context.Context, limit, offset int, filter dto.TradeFilter) ([]entity.InsiderTrade, error) {
	q := r.db.WithContext(ctx).Model(&entity.InsiderTrade{})

	if filter.Ticker != "" {
		q = q.Where("ticker = ?", strings.ToUpper(filter.Ticker))
	}
	if filter.TraderName != "" {
		q = q.Where("LOWER(trader_name) LIKE ?", "%"+strings.ToLower(filter.TraderName)+"%")
	}
	if filter.TradeType != "" {
		q = q.Where("trade_type = ?", filter.TradeType)
	}
	if filter.SignalType != "" {
		q = q.Where("signal_type = ?", filter.SignalType)
	}
	if filter.SourceName != "" {
		q = q.Where("source_name = ?", filter.SourceName)
	}
	switch {
	case filter.Status != "":
		q = q.Where("verification_status = ?", filter.Status)
	case !filter.IncludeBlocked:
		q = q.Where("verification_status <> ?", entity.StatusBlocked)
	}

	var trades []entity.InsiderTrade
	err := q.Order("trade_date DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&trades).Error
	return trades, err
}

// Sample returns up to limit of the newest trades; limit <= 0 returns all.
func (r *insiderTradeRepository) Sample(ctx context.Context, limit int) ([]entity.InsiderTrade, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trades []entity.InsiderTrade
	err := q.Find(&trades).Error
	return trades, err
}

func (r *insiderTradeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.InsiderTrade{}).Count(&n).Error
	return n, err
}

func (r *insiderTradeRepository) CountDuplicateFilingIDs(ctx context.Context) (int64, error) {
	return r.countDuplicates(ctx, "filing_id")
}

func (r *insiderTradeRepository) CountDuplicateFingerprints(ctx context.Context) (int64, error) {
	return r.countDuplicates(ctx, "fingerprint")
}

// countDuplicates counts values of column held by more than one row.
func (r *insiderTradeRepository) countDuplicates(ctx context.Context, column string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Raw(
		"SELECT COUNT(*) FROM (SELECT " + column + " FROM insider_trades GROUP BY " + column + " HAVING COUNT(*) > 1) AS dup",
	).Scan(&n).Error
	return n, err
}

func (r *insiderTradeRepository) NewestCreatedAt(ctx context.Context) (*time.Time, error) {
	var trade entity.InsiderTrade
	err := r.db.WithContext(ctx).Select("created_at").Order("created_at DESC").Take(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade.CreatedAt, nil
}
