package consumer

import (
	"context"
	"sync"
	"time"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/service"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"
	"insidertrack/pkg/utils"
)

const reclaimInterval = time.Minute

// RedisConsumer drives the run request stream handlers.
type RedisConsumer struct {
	cfg               *config.Config
	runRequestService service.RunRequestService
	logger            *logger.Logger
	stopChan          chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(cfg *config.Config, runRequestService service.RunRequestService, log *logger.Logger) *RedisConsumer {
	return &RedisConsumer{
		cfg:               cfg,
		runRequestService: runRequestService,
		logger:            log,
		stopChan:          make(chan struct{}),
	}
}

// Start begins the consumer's processing loops.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")
	c.RegisterStreamHandler(ctx, c.runRequestService.ProcessRequest, common.RedisStreamIngestionRunRequest)
	c.RegisterTickerHandler(ctx, c.runRequestService.ProcessPending, reclaimInterval, c.cfg.Scheduler.RunTimeout, common.RedisStreamIngestionRunRequest+"-reclaim")
}

// RegisterStreamHandler calls fn in a loop until the consumer stops. fn is
// expected to block briefly on the stream and bound its own work.
func (c *RedisConsumer) RegisterStreamHandler(ctx context.Context, fn func(ctx context.Context), streamName string) {
	c.logger.Info("Registering stream handler", logger.StringField("stream", streamName))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Redis consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.logger.Info("Redis consumer stopping")
				return
			default:
				fn(ctx)
			}
		}
	})
}

// RegisterTickerHandler calls fn every interval, each call bounded by
// timeout. The first call happens one interval after registration.
func (c *RedisConsumer) RegisterTickerHandler(ctx context.Context, fn func(ctx context.Context), interval, timeout time.Duration, name string) {
	log := c.logger.With(logger.StringField("handler", name))
	log.Info("Registering ticker handler", logger.Field("interval", interval), logger.Field("timeout", timeout))

	tick := func() {
		tickCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		fn(tickCtx)
	}

	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Ticker handler stopping due to context cancellation")
				return
			case <-c.stopChan:
				log.Info("Ticker handler stopping")
				return
			case <-ticker.C:
				tick()
			}
		}
	})
}

// Stop gracefully shuts down the consumer and waits for in-flight work.
func (c *RedisConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
