package repository

import (
	"context"

	"insidertrack/internal/entity"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockedTradeRepository stores quarantined fake-pattern candidates.
type BlockedTradeRepository interface {
	CreateIgnoreConflict(ctx context.Context, trade *entity.BlockedTrade) (bool, error)
	List(ctx context.Context, limit, offset int) ([]entity.BlockedTrade, error)
	Count(ctx context.Context) (int64, error)
}

func NewBlockedTradeRepository(db *gorm.DB) BlockedTradeRepository {
	return &blockedTradeRepository{db: db}
}

type blockedTradeRepository struct {
	db *gorm.DB
}

func (r *blockedTradeRepository) CreateIgnoreConflict(ctx context.Context, trade *entity.BlockedTrade) (bool, error) {
	// reasons is NOT NULL; a nil array would be written as NULL.
	if trade.Reasons == nil {
		trade.Reasons = pq.StringArray{}
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

func (r *blockedTradeRepository) List(ctx context.Context, limit, offset int) ([]entity.BlockedTrade, error) {
	var trades []entity.BlockedTrade
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&trades).Error
	return trades, err
}

func (r *blockedTradeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.BlockedTrade{}).Count(&n).Error
	return n, err
}
