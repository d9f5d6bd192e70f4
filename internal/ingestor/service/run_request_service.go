package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RunRequestService consumes queued run requests.
type RunRequestService interface {
	ProcessRequest(ctx context.Context)
	ProcessPending(ctx context.Context)
}

// NewRunRequestService creates a new RunRequestService. Each run is bounded
// by runTimeout.
func NewRunRequestService(redisClient redis.Cmdable, ingestion IngestionService, log *logger.Logger, runTimeout time.Duration) RunRequestService {
	return &runRequestService{
		redisClient: redisClient,
		ingestion:   ingestion,
		logger:      log,
		runTimeout:  runTimeout,
	}
}

type runRequestService struct {
	redisClient redis.Cmdable
	ingestion   IngestionService
	logger      *logger.Logger
	runTimeout  time.Duration
}

// ProcessRequest dequeues and runs a single request.
func (s *runRequestService) ProcessRequest(ctx context.Context) {
	streams, err := s.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamIngestionRunRequest, ">"},
		Count:    1,
		Block:    2 * time.Second, // short block so shutdown is noticed
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		s.logger.Error("Failed to read from stream", logger.ErrorField(err))
		return
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return
	}

	s.handle(ctx, streams[0].Messages[0])
}

// ProcessPending claims requests left unacknowledged for longer than twice
// the run timeout, typically by a consumer that died mid-run, and runs them.
func (s *runRequestService) ProcessPending(ctx context.Context) {
	messages, _, err := s.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   common.RedisStreamIngestionRunRequest,
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		MinIdle:  2 * s.runTimeout,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.Error("Failed to claim pending run requests", logger.ErrorField(err))
		}
		return
	}
	for _, message := range messages {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Reclaimed stale run request", logger.StringField("message_id", message.ID))
		s.handle(ctx, message)
	}
}

func (s *runRequestService) handle(ctx context.Context, message redis.XMessage) {
	defer s.ack(ctx, message.ID)

	payload, ok := message.Values["payload"].(string)
	if !ok {
		s.logger.Error("field 'payload' not found or not a string in stream message", logger.StringField("message_id", message.ID))
		return
	}
	var req dto.RunRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		s.logger.Error("Failed to unmarshal run request", logger.ErrorField(err), logger.StringField("message_id", message.ID))
		return
	}
	if req.Options.Trigger == "" {
		req.Options.Trigger = TriggerScheduler
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	summary, err := s.ingestion.RunIngestion(runCtx, req.Source, req.Options)
	if err != nil {
		s.logger.Error("Run request rejected", logger.ErrorField(err), logger.StringField("source", req.Source))
		return
	}
	s.logger.Info("Run request completed",
		logger.StringField("source", req.Source),
		logger.StringField("run_id", summary.RunID),
		logger.StringField("status", summary.Status),
	)
}

// ack acknowledges a message whatever its outcome; a request is never
// retried automatically because the next scheduled run supersedes it.
func (s *runRequestService) ack(ctx context.Context, id string) {
	if err := s.redisClient.XAck(context.WithoutCancel(ctx), common.RedisStreamIngestionRunRequest, common.RedisStreamGroup, id).Err(); err != nil {
		s.logger.Error("Failed to acknowledge message", logger.ErrorField(err), logger.StringField("message_id", id))
	}
}
