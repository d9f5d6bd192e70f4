package repository

import (
	"context"
	"errors"

	"insidertrack/internal/entity"

	"gorm.io/gorm"
)

// IngestionRunRepository keeps the history of source passes.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *entity.IngestionRun) error
	Save(ctx context.Context, run *entity.IngestionRun) error
	FindByRunID(ctx context.Context, runID string) (*entity.IngestionRun, error)
	List(ctx context.Context, source string, limit, offset int) ([]entity.IngestionRun, error)
}

func NewIngestionRunRepository(db *gorm.DB) IngestionRunRepository {
	return &ingestionRunRepository{db: db}
}

type ingestionRunRepository struct {
	db *gorm.DB
}

func (r *ingestionRunRepository) Create(ctx context.Context, run *entity.IngestionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ingestionRunRepository) Save(ctx context.Context, run *entity.IngestionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *ingestionRunRepository) FindByRunID(ctx context.Context, runID string) (*entity.IngestionRun, error) {
	var run entity.IngestionRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *ingestionRunRepository) List(ctx context.Context, source string, limit, offset int) ([]entity.IngestionRun, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if source != "" {
		q = q.Where("source_name = ?", source)
	}
	var runs []entity.IngestionRun
	err := q.Limit(limit).Offset(offset).Find(&runs).Error
	return runs, err
}
