package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"

	"github.com/andres-erbsen/clock"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// TriggerScheduler marks runs requested by the scheduler.
const TriggerScheduler = "scheduler"

// SchedulerService dispatches due source runs and store audits.
type SchedulerService interface {
	Start(ctx context.Context)
	ProcessDue(ctx context.Context)
}

type scheduledJob struct {
	name     string
	schedule cron.Schedule
	next     time.Time
	fire     func(ctx context.Context, now time.Time) error
}

type schedulerService struct {
	cfg         *config.Config
	redisClient redis.Cmdable
	auditSvc    AuditService
	logger      *logger.Logger
	clock       clock.Clock
	jobs        []*scheduledJob
}

// NewSchedulerService creates a new scheduler service. Every enabled source
// with a cron expression gets a run request published to the run request
// stream when due; the audit runs in process on scheduler.audit_cron. A
// malformed cron expression is a configuration error.
func NewSchedulerService(cfg *config.Config, redisClient redis.Cmdable, auditSvc AuditService, log *logger.Logger, clk clock.Clock) (SchedulerService, error) {
	if clk == nil {
		clk = clock.New()
	}
	s := &schedulerService{
		cfg:         cfg,
		redisClient: redisClient,
		auditSvc:    auditSvc,
		logger:      log,
		clock:       clk,
	}

	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	now := clk.Now()
	add := func(name, expr string, fire func(ctx context.Context, now time.Time) error) error {
		schedule, err := cronParser.Parse(expr)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
		}
		s.jobs = append(s.jobs, &scheduledJob{name: name, schedule: schedule, next: schedule.Next(now), fire: fire})
		return nil
	}

	for _, src := range cfg.Sources {
		if !src.Enabled || src.Cron == "" {
			continue
		}
		name := src.Name
		if err := add("source "+name, src.Cron, func(ctx context.Context, now time.Time) error {
			return s.publishRunRequest(ctx, name, now)
		}); err != nil {
			return nil, err
		}
	}
	if cfg.Scheduler.AuditCron != "" && auditSvc != nil {
		if err := add("audit", cfg.Scheduler.AuditCron, s.runAudit); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins the periodic polling loop.
func (s *schedulerService) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.cfg.Scheduler.PollingInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler service started", logger.IntField("jobs", len(s.jobs)))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler service stopping")
			return
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue fires every job whose next execution has passed. A job that
// fails to fire keeps its slot and is retried on the next poll.
func (s *schedulerService) ProcessDue(ctx context.Context) {
	now := s.clock.Now()
	for _, job := range s.jobs {
		if job.next.After(now) {
			continue
		}
		if err := job.fire(ctx, now); err != nil {
			s.logger.Error("Failed to fire scheduled job", logger.StringField("job", job.name), logger.ErrorField(err))
			continue
		}
		job.next = job.schedule.Next(now)
		s.logger.Debug("Scheduled job fired",
			logger.StringField("job", job.name),
			logger.Field("next_execution", job.next),
		)
	}
}

func (s *schedulerService) publishRunRequest(ctx context.Context, source string, now time.Time) error {
	payload, err := json.Marshal(dto.RunRequest{
		Source:      source,
		Options:     dto.RunOptions{Trigger: TriggerScheduler},
		RequestedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamIngestionRunRequest,
		Values: map[string]interface{}{"payload": payload},
		MaxLen: s.cfg.Redis.StreamMaxLen,
		Approx: s.cfg.Redis.StreamMaxLen > 0,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue run request: %w", err)
	}

	s.logger.Info("Run request published", logger.StringField("source", source))
	return nil
}

func (s *schedulerService) runAudit(ctx context.Context, _ time.Time) error {
	auditCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.RunTimeout)
	defer cancel()

	report, err := s.auditSvc.AuditStore(auditCtx, s.cfg.Scheduler.AuditSampleSize, s.cfg.Scheduler.AuditApply)
	if err != nil {
		return err
	}
	for _, rec := range report.Recommendations {
		s.logger.Info("Audit recommendation", logger.StringField("recommendation", rec))
	}
	return nil
}
