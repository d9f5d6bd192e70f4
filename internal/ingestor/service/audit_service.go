package service

import (
	"context"
	"fmt"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/internal/ingestor/validator"
	"insidertrack/pkg/logger"

	"github.com/andres-erbsen/clock"
)

const (
	staleAfterHours     = 24.0
	invalidRatioWarning = 0.2
)

// AuditService re-validates stored trades and exposes the validation
// primitive to operational tooling.
type AuditService interface {
	// AuditStore re-scores up to sampleSize of the newest trades. With
	// apply set, records whose status or confidence changed are rewritten,
	// so trades now judged fake become BLOCKED.
	AuditStore(ctx context.Context, sampleSize int, apply bool) (dto.AuditReport, error)
	ValidateTrade(c dto.CandidateTrade) dto.ValidationResult
	// ValidateRaw normalizes raw as if it came from source, then validates it.
	ValidateRaw(raw dto.RawTrade, source string) (dto.ValidateTradeResponse, error)
}

// NewAuditService creates a new AuditService. A nil clock uses the wall clock.
func NewAuditService(tradeRepo repository.InsiderTradeRepository, norm *normalizer.Normalizer, val *validator.Validator, log *logger.Logger, clk clock.Clock) AuditService {
	if clk == nil {
		clk = clock.New()
	}
	return &auditService{
		tradeRepo:  tradeRepo,
		normalizer: norm,
		validator:  val,
		logger:     log,
		clock:      clk,
	}
}

type auditService struct {
	tradeRepo  repository.InsiderTradeRepository
	normalizer *normalizer.Normalizer
	validator  *validator.Validator
	logger     *logger.Logger
	clock      clock.Clock
}

func (s *auditService) ValidateTrade(c dto.CandidateTrade) dto.ValidationResult {
	return s.validator.Validate(c)
}

func (s *auditService) ValidateRaw(raw dto.RawTrade, source string) (dto.ValidateTradeResponse, error) {
	candidate, err := s.normalizer.Normalize(raw, source)
	if err != nil {
		return dto.ValidateTradeResponse{}, err
	}
	result := s.validator.Validate(candidate)
	candidate.Confidence = result.Confidence
	return dto.ValidateTradeResponse{Candidate: candidate, Result: result}, nil
}

func (s *auditService) AuditStore(ctx context.Context, sampleSize int, apply bool) (dto.AuditReport, error) {
	now := s.clock.Now().UTC()
	report := dto.AuditReport{GeneratedAt: now}

	total, err := s.tradeRepo.Count(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count trades: %w", err)
	}
	report.Total = total

	sample, err := s.tradeRepo.Sample(ctx, sampleSize)
	if err != nil {
		return report, fmt.Errorf("failed to sample trades: %w", err)
	}
	report.Sampled = len(sample)

	for i := range sample {
		trade := &sample[i]
		result := s.validator.Validate(dto.CandidateFromEntity(*trade))

		switch {
		case result.Verdict == dto.VerdictFake:
			report.Fake++
		case !result.IsValid:
			report.Invalid++
		default:
			report.Valid++
		}

		status := result.Status()
		if status == trade.VerificationStatus && result.Confidence == trade.Confidence {
			continue
		}
		report.StatusChanges++
		if !apply {
			continue
		}
		if err := s.tradeRepo.UpdateVerification(ctx, trade.ID, status, result.Confidence, result.Issues); err != nil {
			return report, fmt.Errorf("failed to update verification of %s: %w", trade.FilingID, err)
		}
		if status != trade.VerificationStatus {
			s.logger.InfoContext(ctx, "Trade verification status changed",
				logger.StringField("filing_id", trade.FilingID),
				logger.StringField("from", string(trade.VerificationStatus)),
				logger.StringField("to", string(status)),
			)
		}
	}

	if report.Sampled > 0 {
		n := float64(report.Sampled)
		report.ValidRatio = float64(report.Valid) / n
		report.InvalidRatio = float64(report.Invalid) / n
		report.FakeRatio = float64(report.Fake) / n
	}

	if report.DuplicateFilingIDs, err = s.tradeRepo.CountDuplicateFilingIDs(ctx); err != nil {
		return report, fmt.Errorf("failed to count duplicate filing ids: %w", err)
	}
	if report.DuplicateFingerprints, err = s.tradeRepo.CountDuplicateFingerprints(ctx); err != nil {
		return report, fmt.Errorf("failed to count duplicate fingerprints: %w", err)
	}

	newest, err := s.tradeRepo.NewestCreatedAt(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read newest record: %w", err)
	}
	if newest != nil {
		report.NewestRecordAt = newest
		report.FreshnessHours = now.Sub(*newest).Hours()
	}

	report.Recommendations = recommendations(report, apply)

	s.logger.InfoContext(ctx, "Store audit completed",
		logger.Field("total", report.Total),
		logger.IntField("sampled", report.Sampled),
		logger.IntField("valid", report.Valid),
		logger.IntField("invalid", report.Invalid),
		logger.IntField("fake", report.Fake),
		logger.IntField("status_changes", report.StatusChanges),
		logger.Field("apply", apply),
	)
	return report, nil
}

func recommendations(r dto.AuditReport, applied bool) []string {
	var recs []string

	if r.NewestRecordAt == nil {
		return append(recs, "Store is empty: run an ingestion pass for each enabled source")
	}
	if r.Fake > 0 {
		if applied {
			recs = append(recs, fmt.Sprintf("%d sampled trades matched fake-data patterns and were blocked", r.Fake))
		} else {
			recs = append(recs, fmt.Sprintf("%d sampled trades match fake-data patterns: rerun the audit with apply to block them", r.Fake))
		}
	}
	if r.InvalidRatio > invalidRatioWarning {
		recs = append(recs, fmt.Sprintf("%.0f%% of sampled trades are invalid: review source parsers for layout drift", r.InvalidRatio*100))
	}
	if r.DuplicateFilingIDs > 0 {
		recs = append(recs, fmt.Sprintf("%d filing ids are stored more than once: check the unique index on insider_trades.filing_id", r.DuplicateFilingIDs))
	}
	if r.DuplicateFingerprints > 0 {
		recs = append(recs, fmt.Sprintf("%d fingerprints are shared by several trades: review cross-source duplicates", r.DuplicateFingerprints))
	}
	if r.FreshnessHours > staleAfterHours {
		recs = append(recs, fmt.Sprintf("Newest trade is %.0f hours old: check the scheduler and source health", r.FreshnessHours))
	}
	if len(recs) == 0 {
		recs = append(recs, "No action needed")
	}
	return recs
}
