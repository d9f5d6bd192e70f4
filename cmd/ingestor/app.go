package main

import (
	"context"
	"log"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dedup"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/notifier"
	"insidertrack/internal/ingestor/parser"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/internal/ingestor/service"
	"insidertrack/internal/ingestor/validator"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"
	"insidertrack/pkg/metrics"
	"insidertrack/pkg/postgres"
	"insidertrack/pkg/redis"
	"insidertrack/pkg/telegram"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *postgres.DB
	redis  *redis.Client

	ingestion service.IngestionService
	audit     service.AuditService
	query     service.QueryService
}

// loadBase loads the configuration and the logger; every subcommand needs them.
func loadBase() (*config.Config, *logger.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, appLogger
}

// newApp connects to Postgres and, when withRedis is set, to Redis, then
// builds the services. Without Redis, new trades are only sent to
// telegram.
func newApp(ctx context.Context, withRedis bool) *app {
	cfg, appLogger := loadBase()
	a := &app{cfg: cfg, logger: appLogger}

	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	a.db = db

	var broadcasters []notifier.Broadcaster
	if withRedis {
		redisCfg := redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}
		redisClient, err := redis.NewClient(redisCfg)
		if err != nil {
			appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
		}
		if err := redisClient.EnsureGroup(ctx, common.RedisStreamIngestionRunRequest, common.RedisStreamGroup); err != nil {
			appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err))
		}
		a.redis = redisClient
		broadcasters = append(broadcasters, notifier.NewRedisStreamBroadcaster(redisClient.Client, common.RedisStreamTradeEvents, cfg.Redis.StreamMaxLen))
	}
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Timeout)
		if err != nil {
			appLogger.Fatal("Failed to initialize telegram client", logger.ErrorField(err))
		}
		broadcasters = append(broadcasters, notifier.NewTelegramBroadcaster(telegramClient, cfg.Telegram.Timeout))
	}

	metrics.MustRegister()

	tradeRepo := repository.NewInsiderTradeRepository(db.DB)
	blockedRepo := repository.NewBlockedTradeRepository(db.DB)
	runRepo := repository.NewIngestionRunRepository(db.DB)

	norm := normalizer.New(nil)
	val := validator.New(validator.PolicyFromConfig(cfg.Validation), nil)
	deduplicator := dedup.New(tradeRepo, appLogger, dedup.Options{
		RecentWindow:   cfg.Ingestion.RecentWindow,
		ValueTolerance: cfg.Ingestion.FuzzyValueTolerance,
		DayTolerance:   cfg.Ingestion.FuzzyDayTolerance,
		CacheTTL:       cfg.Ingestion.CacheTTL,
	})

	a.ingestion = service.NewIngestionService(
		cfg,
		repository.NewSourceFetcher(cfg, appLogger, nil),
		parser.NewRegistry(),
		norm,
		val,
		deduplicator,
		tradeRepo,
		blockedRepo,
		runRepo,
		notifier.Multi(broadcasters...),
		appLogger,
		nil,
	)
	a.audit = service.NewAuditService(tradeRepo, norm, val, appLogger, nil)
	a.query = service.NewQueryService(tradeRepo, runRepo, appLogger)
	return a
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Failed to close Redis", logger.ErrorField(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}
