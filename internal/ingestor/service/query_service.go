package service

import (
	"context"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/pkg/logger"
	"insidertrack/pkg/utils"
)

const defaultPageSize = 50

// QueryService serves read access to stored trades and run history.
type QueryService interface {
	ListTrades(ctx context.Context, req dto.ListTradesRequest) (dto.ListResponse[entity.InsiderTrade], error)
	GetTrade(ctx context.Context, filingID string) (*entity.InsiderTrade, error)
	ListRuns(ctx context.Context, req dto.ListRunsRequest) (dto.ListResponse[dto.RunResponse], error)
	GetRun(ctx context.Context, runID string) (*dto.RunResponse, error)
}

// NewQueryService creates a new query service.
func NewQueryService(tradeRepo repository.InsiderTradeRepository, runRepo repository.IngestionRunRepository, log *logger.Logger) QueryService {
	return &queryService{tradeRepo: tradeRepo, runRepo: runRepo, logger: log}
}

type queryService struct {
	tradeRepo repository.InsiderTradeRepository
	runRepo   repository.IngestionRunRepository
	logger    *logger.Logger
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

func (s *queryService) ListTrades(ctx context.Context, req dto.ListTradesRequest) (dto.ListResponse[entity.InsiderTrade], error) {
	limit := pageSize(req.Limit)
	trades, err := s.tradeRepo.ListRecent(ctx, limit, req.Offset, req.Filter())
	if err != nil {
		s.logger.Error("Failed to list trades", logger.ErrorField(err))
		return dto.ListResponse[entity.InsiderTrade]{}, err
	}
	if trades == nil {
		trades = []entity.InsiderTrade{}
	}
	return dto.ListResponse[entity.InsiderTrade]{Items: trades, Limit: limit, Offset: req.Offset}, nil
}

// GetTrade returns the trade with filingID. BLOCKED trades are reported as
// not found, like on the list path.
func (s *queryService) GetTrade(ctx context.Context, filingID string) (*entity.InsiderTrade, error) {
	trade, err := s.tradeRepo.FindByFilingID(ctx, filingID)
	if err != nil {
		return nil, err
	}
	if trade.VerificationStatus == entity.StatusBlocked {
		return nil, repository.ErrNotFound
	}
	return trade, nil
}

func (s *queryService) ListRuns(ctx context.Context, req dto.ListRunsRequest) (dto.ListResponse[dto.RunResponse], error) {
	limit := pageSize(req.Limit)
	runs, err := s.runRepo.List(ctx, req.Source, limit, req.Offset)
	if err != nil {
		s.logger.Error("Failed to list ingestion runs", logger.ErrorField(err), logger.StringField("source", req.Source))
		return dto.ListResponse[dto.RunResponse]{}, err
	}

	items := make([]dto.RunResponse, 0, len(runs))
	for i := range runs {
		items = append(items, mapToRunResponse(&runs[i]))
	}
	return dto.ListResponse[dto.RunResponse]{Items: items, Limit: limit, Offset: req.Offset}, nil
}

func (s *queryService) GetRun(ctx context.Context, runID string) (*dto.RunResponse, error) {
	run, err := s.runRepo.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	resp := mapToRunResponse(run)
	return &resp, nil
}

func mapToRunResponse(run *entity.IngestionRun) dto.RunResponse {
	resp := dto.RunResponse{
		RunID:         run.RunID,
		Source:        run.SourceName,
		Trigger:       run.Trigger,
		Status:        string(run.Status),
		Processed:     run.Processed,
		Duplicates:    run.Duplicates,
		Updated:       run.Updated,
		Invalid:       run.Invalid,
		Blocked:       run.Blocked,
		Filtered:      run.Filtered,
		Errors:        run.Errors,
		TotalValueUSD: run.TotalValueUSD,
		Error:         run.ErrorMessage.String,
		StartedAt:     run.StartedAt,
	}
	if run.CompletedAt.Valid {
		resp.CompletedAt = utils.ToPointer(run.CompletedAt.Time)
	}
	return resp
}
