package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dedup"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/notifier"
	"insidertrack/internal/ingestor/parser"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/internal/ingestor/validator"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"
	"insidertrack/pkg/metrics"
	"insidertrack/pkg/utils"

	"github.com/andres-erbsen/clock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// ErrUnknownSource is returned for a source name missing from the configuration.
var ErrUnknownSource = errors.New("unknown source")

// IngestionService runs source passes: fetch, parse, normalize, validate,
// deduplicate and persist.
type IngestionService interface {
	// RunIngestion runs one pass over source. Record-level and fetch
	// failures are reported in the summary; only configuration problems
	// return an error.
	RunIngestion(ctx context.Context, source string, opts dto.RunOptions) (dto.RunSummary, error)
}

// NewIngestionService creates a new IngestionService. A nil clock uses the
// wall clock.
func NewIngestionService(
	cfg *config.Config,
	fetcher repository.SourceFetcher,
	parsers *parser.Registry,
	norm *normalizer.Normalizer,
	val *validator.Validator,
	deduplicator *dedup.Deduplicator,
	tradeRepo repository.InsiderTradeRepository,
	blockedRepo repository.BlockedTradeRepository,
	runRepo repository.IngestionRunRepository,
	broadcaster notifier.Broadcaster,
	log *logger.Logger,
	clk clock.Clock,
) IngestionService {
	if clk == nil {
		clk = clock.New()
	}
	if broadcaster == nil {
		broadcaster = notifier.Nop
	}
	return &ingestionService{
		cfg:          cfg,
		fetcher:      fetcher,
		parsers:      parsers,
		normalizer:   norm,
		validator:    val,
		deduplicator: deduplicator,
		tradeRepo:    tradeRepo,
		blockedRepo:  blockedRepo,
		runRepo:      runRepo,
		broadcaster:  broadcaster,
		logger:       log,
		clock:        clk,
	}
}

type ingestionService struct {
	cfg          *config.Config
	fetcher      repository.SourceFetcher
	parsers      *parser.Registry
	normalizer   *normalizer.Normalizer
	validator    *validator.Validator
	deduplicator *dedup.Deduplicator
	tradeRepo    repository.InsiderTradeRepository
	blockedRepo  repository.BlockedTradeRepository
	runRepo      repository.IngestionRunRepository
	broadcaster  notifier.Broadcaster
	logger       *logger.Logger
	clock        clock.Clock

	// One pass per source at a time; concurrent callers share its summary.
	group singleflight.Group
}

func (s *ingestionService) RunIngestion(ctx context.Context, sourceName string, opts dto.RunOptions) (dto.RunSummary, error) {
	source, ok := s.cfg.Source(sourceName)
	if !ok {
		return dto.RunSummary{}, fmt.Errorf("%w: %s", ErrUnknownSource, sourceName)
	}
	p, err := s.parsers.Get(source.Kind)
	if err != nil {
		return dto.RunSummary{}, err
	}
	if opts.Upsert {
		source.Upsert = true
	}
	if opts.MaxDocuments > 0 {
		source.MaxDocuments = opts.MaxDocuments
	}

	v, _, shared := s.group.Do(source.Name, func() (interface{}, error) {
		return s.run(ctx, source, p, opts), nil
	})
	summary := v.(dto.RunSummary)
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight ingestion run",
			logger.StringField("source", source.Name),
			logger.StringField("run_id", summary.RunID),
		)
	}
	return summary, nil
}

func (s *ingestionService) run(ctx context.Context, source config.Source, p parser.Parser, opts dto.RunOptions) dto.RunSummary {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	summary := dto.RunSummary{
		RunID:         runID,
		Source:        source.Name,
		Status:        string(entity.RunStatusRunning),
		TotalValueUSD: decimal.Zero,
		StartedAt:     s.clock.Now(),
	}
	s.logger.InfoContext(ctx, "Ingestion run started",
		logger.StringField("source", source.Name),
		logger.StringField("kind", source.Kind),
		logger.StringField("trigger", opts.Trigger),
	)

	run := &entity.IngestionRun{
		RunID:         runID,
		SourceName:    source.Name,
		Trigger:       opts.Trigger,
		Status:        entity.RunStatusRunning,
		TotalValueUSD: decimal.Zero,
		StartedAt:     summary.StartedAt,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record ingestion run", logger.ErrorField(err))
		run = nil
	}

	result, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		kind := dto.FetchErrorKindOf(err)
		if kind == "" {
			kind = dto.FetchNetworkError
		}
		metrics.FetchErrorsTotal.WithLabelValues(source.Name, string(kind)).Inc()
		s.logger.ErrorContext(ctx, "Source fetch failed",
			logger.StringField("source", source.Name),
			logger.StringField("kind", string(kind)),
			logger.ErrorField(err),
		)
		summary.Status = string(entity.RunStatusFailed)
		summary.Error = err.Error()
		summary.ErrorKind = string(kind)
		return s.finish(ctx, run, summary)
	}

	summary.Documents = len(result.Documents)
	summary.Errors += result.FailedDocuments

	for _, doc := range result.Documents {
		if !utils.ShouldContinue(ctx, s.logger) {
			summary.Status = string(entity.RunStatusFailed)
			summary.Error = ctx.Err().Error()
			break
		}

		parsed := p.Parse(doc)
		summary.Filtered += parsed.Filtered
		summary.Errors += parsed.Skipped
		for _, pe := range parsed.Errors {
			s.logger.DebugContext(ctx, "Skipped source entry",
				logger.StringField("url", doc.URL),
				logger.IntField("index", pe.Index),
				logger.StringField("reason", pe.Reason),
			)
		}

		// Records are handled one at a time so a later record sees the
		// committed write of an earlier one with the same key.
		for _, raw := range parsed.Trades {
			s.processTrade(ctx, source, opts, raw, &summary)
		}
	}

	return s.finish(ctx, run, summary)
}

func (s *ingestionService) processTrade(ctx context.Context, source config.Source, opts dto.RunOptions, raw dto.RawTrade, summary *dto.RunSummary) {
	candidate, err := s.normalizer.Normalize(raw, source.Name)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "Discarded unrecoverable trade",
			logger.StringField("source", source.Name),
			logger.StringField("ticker", raw.Ticker),
			logger.StringField("trader", raw.TraderName),
			logger.StringField("reason", err.Error()),
		)
		return
	}

	result := s.validator.Validate(candidate)
	candidate.Confidence = result.Confidence

	switch result.Status() {
	case entity.StatusBlocked:
		s.quarantine(ctx, candidate, result, summary)
	case entity.StatusInvalid:
		s.storeInvalid(ctx, candidate, result, summary)
	default:
		s.storeVerified(ctx, source, opts, candidate, result, summary)
	}
}

// quarantine writes a fake-pattern candidate to blocked_trades. It never
// reaches insider_trades.
func (s *ingestionService) quarantine(ctx context.Context, c dto.CandidateTrade, result dto.ValidationResult, summary *dto.RunSummary) {
	summary.Blocked++
	s.logger.WarnContext(ctx, "Blocked fake trade",
		logger.StringField("filing_id", c.FilingID),
		logger.StringField("reason", fmt.Sprint(result.Issues)),
	)

	payload, err := json.Marshal(c)
	if err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Failed to marshal blocked trade", logger.ErrorField(err))
		return
	}
	blocked := &entity.BlockedTrade{
		FilingID:    c.FilingID,
		SourceName:  c.SourceName,
		Ticker:      c.Ticker,
		TraderName:  c.TraderName,
		CompanyName: c.CompanyName,
		Reasons:     pq.StringArray(result.Issues),
		Payload:     datatypes.JSON(payload),
	}
	if _, err := s.blockedRepo.CreateIgnoreConflict(ctx, blocked); err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Failed to store blocked trade", logger.ErrorField(err), logger.StringField("filing_id", c.FilingID))
	}
}

func (s *ingestionService) storeInvalid(ctx context.Context, c dto.CandidateTrade, result dto.ValidationResult, summary *dto.RunSummary) {
	summary.Invalid++
	s.logger.InfoContext(ctx, "Recording invalid trade",
		logger.StringField("filing_id", c.FilingID),
		logger.IntField("confidence", result.Confidence),
		logger.StringField("reason", fmt.Sprint(result.Issues)),
	)

	trade := newTrade(c, result)
	if _, err := s.tradeRepo.CreateIgnoreConflict(ctx, trade); err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Failed to store invalid trade", logger.ErrorField(err), logger.StringField("filing_id", c.FilingID))
	}
}

func (s *ingestionService) storeVerified(ctx context.Context, source config.Source, opts dto.RunOptions, c dto.CandidateTrade, result dto.ValidationResult, summary *dto.RunSummary) {
	trade := newTrade(c, result)

	found, err := s.deduplicator.FindExisting(ctx, c, opts.RecentWindow)
	if err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Duplicate lookup failed", logger.ErrorField(err), logger.StringField("filing_id", c.FilingID))
		return
	}
	if found != nil {
		// Only a re-ingestion of the same filing may rewrite a record.
		if source.Upsert && found.Strategy == dedup.StrategyFilingID {
			s.update(ctx, found.Trade, trade, summary)
			return
		}
		summary.Duplicates++
		s.logger.DebugContext(ctx, "Skipped duplicate trade",
			logger.StringField("filing_id", c.FilingID),
			logger.StringField("existing_filing_id", found.Trade.FilingID),
			logger.StringField("strategy", string(found.Strategy)),
		)
		return
	}

	created, err := s.tradeRepo.CreateIgnoreConflict(ctx, trade)
	if err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Failed to store trade", logger.ErrorField(err), logger.StringField("filing_id", c.FilingID))
		return
	}
	if !created {
		// Lost a race on the filing id: the same event is already stored.
		summary.Duplicates++
		s.logger.DebugContext(ctx, "Filing id conflict treated as duplicate", logger.StringField("filing_id", c.FilingID))
		return
	}

	s.deduplicator.Remember(trade)
	summary.Processed++
	summary.TotalValueUSD = summary.TotalValueUSD.Add(trade.TotalValue)
	s.notify(ctx, common.EventNewTrade, trade)
}

func (s *ingestionService) update(ctx context.Context, existing, incoming *entity.InsiderTrade, summary *dto.RunSummary) {
	patch := tradePatch(existing, incoming)
	if len(patch) == 0 {
		summary.Duplicates++
		return
	}
	updated, err := s.tradeRepo.Update(ctx, existing.FilingID, patch)
	if err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "Failed to update trade", logger.ErrorField(err), logger.StringField("filing_id", existing.FilingID))
		return
	}
	s.deduplicator.Remember(updated)
	summary.Updated++
	s.logger.InfoContext(ctx, "Updated trade",
		logger.StringField("filing_id", existing.FilingID),
		logger.IntField("fields", len(patch)),
	)
}

func (s *ingestionService) finish(ctx context.Context, run *entity.IngestionRun, summary dto.RunSummary) dto.RunSummary {
	summary.FinishedAt = s.clock.Now()
	if summary.Status == string(entity.RunStatusRunning) {
		summary.Status = string(entity.RunStatusCompleted)
	}

	metrics.RunsTotal.WithLabelValues(summary.Source, summary.Status).Inc()
	metrics.RunDuration.WithLabelValues(summary.Source).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	for outcome, n := range map[string]int{
		"processed": summary.Processed,
		"duplicate": summary.Duplicates,
		"updated":   summary.Updated,
		"invalid":   summary.Invalid,
		"blocked":   summary.Blocked,
		"filtered":  summary.Filtered,
		"error":     summary.Errors,
	} {
		if n > 0 {
			metrics.TradesTotal.WithLabelValues(summary.Source, outcome).Add(float64(n))
		}
	}

	if run != nil {
		s.saveRun(ctx, run, summary)
	}

	s.logger.InfoContext(ctx, "Ingestion run finished",
		logger.StringField("source", summary.Source),
		logger.StringField("status", summary.Status),
		logger.IntField("documents", summary.Documents),
		logger.IntField("processed", summary.Processed),
		logger.IntField("duplicates", summary.Duplicates),
		logger.IntField("updated", summary.Updated),
		logger.IntField("invalid", summary.Invalid),
		logger.IntField("blocked", summary.Blocked),
		logger.IntField("errors", summary.Errors),
		logger.StringField("total_value_usd", summary.TotalValueUSD.StringFixed(2)),
	)
	s.notify(ctx, common.EventRunCompleted, summary)
	return summary
}

func (s *ingestionService) saveRun(ctx context.Context, run *entity.IngestionRun, summary dto.RunSummary) {
	run.Status = entity.RunStatus(summary.Status)
	run.Processed = summary.Processed
	run.Duplicates = summary.Duplicates
	run.Updated = summary.Updated
	run.Invalid = summary.Invalid
	run.Blocked = summary.Blocked
	run.Filtered = summary.Filtered
	run.Errors = summary.Errors
	run.TotalValueUSD = summary.TotalValueUSD
	run.CompletedAt = sql.NullTime{Time: summary.FinishedAt, Valid: true}
	if summary.Error != "" {
		run.ErrorMessage = sql.NullString{String: summary.Error, Valid: true}
	}
	if data, err := json.Marshal(summary); err == nil {
		run.Summary = datatypes.JSON(data)
	}

	// The run may have been cancelled; history is still written.
	if err := s.runRepo.Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save ingestion run", logger.ErrorField(err))
	}
}

func (s *ingestionService) notify(ctx context.Context, eventType string, payload any) {
	if err := s.broadcaster.Notify(ctx, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to broadcast event",
			logger.StringField("event", eventType),
			logger.ErrorField(err),
		)
	}
}

func newTrade(c dto.CandidateTrade, result dto.ValidationResult) *entity.InsiderTrade {
	notes := make(pq.StringArray, 0, len(result.Issues))
	notes = append(notes, result.Issues...)
	return &entity.InsiderTrade{
		FilingID:           c.FilingID,
		Fingerprint:        c.Fingerprint,
		Ticker:             c.Ticker,
		CompanyName:        c.CompanyName,
		TraderName:         c.TraderName,
		TraderTitle:        c.TraderTitle,
		TradeType:          c.TradeType,
		SignalType:         c.TradeType.Signal(),
		Shares:             c.Shares,
		PricePerShare:      c.PricePerShare.Round(4),
		TotalValue:         c.TotalValue.Round(2),
		TradeDate:          c.TradeDate,
		FiledDate:          c.FiledDate,
		SourceName:         c.SourceName,
		SourceURL:          c.SourceURL,
		Confidence:         result.Confidence,
		VerificationStatus: result.Status(),
		VerificationNotes:  notes,
	}
}

// tradePatch returns the columns of existing that differ from incoming.
func tradePatch(existing, incoming *entity.InsiderTrade) map[string]interface{} {
	patch := make(map[string]interface{})
	set := func(column string, changed bool, value interface{}) {
		if changed {
			patch[column] = value
		}
	}

	set("fingerprint", existing.Fingerprint != incoming.Fingerprint, incoming.Fingerprint)
	set("company_name", existing.CompanyName != incoming.CompanyName, incoming.CompanyName)
	set("trader_name", existing.TraderName != incoming.TraderName, incoming.TraderName)
	set("trader_title", existing.TraderTitle != incoming.TraderTitle, incoming.TraderTitle)
	set("trade_type", existing.TradeType != incoming.TradeType, incoming.TradeType)
	set("signal_type", existing.SignalType != incoming.SignalType, incoming.SignalType)
	set("shares", existing.Shares != incoming.Shares, incoming.Shares)
	set("price_per_share", !existing.PricePerShare.Equal(incoming.PricePerShare), incoming.PricePerShare)
	set("total_value", !existing.TotalValue.Equal(incoming.TotalValue), incoming.TotalValue)
	set("trade_date", !sameDay(&existing.TradeDate, &incoming.TradeDate), incoming.TradeDate)
	set("filed_date", !sameDay(existing.FiledDate, incoming.FiledDate), incoming.FiledDate)
	set("source_url", existing.SourceURL != incoming.SourceURL, incoming.SourceURL)

	if existing.Confidence != incoming.Confidence || existing.VerificationStatus != incoming.VerificationStatus {
		patch["confidence"] = incoming.Confidence
		patch["verification_status"] = incoming.VerificationStatus
		patch["verification_notes"] = incoming.VerificationNotes
	}
	return patch
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}
