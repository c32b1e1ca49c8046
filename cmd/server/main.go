package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rahmatrdn/go-query-insight/internal/aggregator"
	"github.com/rahmatrdn/go-query-insight/internal/analyzer"
	"github.com/rahmatrdn/go-query-insight/internal/analyzer/ai"
	"github.com/rahmatrdn/go-query-insight/internal/collector"
	"github.com/rahmatrdn/go-query-insight/internal/config"
	"github.com/rahmatrdn/go-query-insight/internal/http/handler"
	"github.com/rahmatrdn/go-query-insight/internal/http/middleware"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
	"github.com/rahmatrdn/go-query-insight/internal/scheduler"
	"github.com/rahmatrdn/go-query-insight/internal/usecase"
	"github.com/rahmatrdn/go-query-insight/internal/visibility"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	db, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	rawRepo := sqlite.NewRawQueryRepository(db)
	analysisRepo := sqlite.NewAnalysisRepository(db)
	metricsRepo := sqlite.NewMetricsRepository(db)
	connRepo := sqlite.NewConnectionRepository(db)

	gate := visibility.NewGate(connRepo)
	queryUsecase := usecase.NewQueryUsecase(rawRepo, analysisRepo, metricsRepo, gate)

	provider, err := ai.New(ai.Config{
		Provider: cfg.AIProvider,
		Endpoint: cfg.AIEndpoint,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		Timeout:  cfg.AITimeout,
	})
	if err != nil {
		logger.Fatal("failed to build model provider", zap.Error(err))
	}

	anlz := analyzer.New(rawRepo, analysisRepo, provider, analyzer.Thresholds{
		RowsExamined:    cfg.RowsExaminedThreshold,
		PlannerCost:     cfg.PlannerCostThreshold,
		DurationCeiling: cfg.HardDurationCeilingMs,
	}, logger)

	aggr := aggregator.New(rawRepo, analysisRepo, metricsRepo, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}

	collectOpts := collector.Options{
		BatchSize:         cfg.CollectBatchSize,
		MinMeanDurationMs: cfg.PGMinMeanDurationMs,
		CallTimeout:       cfg.TargetCallTimeout,
	}
	registerJobs(sched, cfg, logger, connRepo, rawRepo, anlz, aggr, collectOpts)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := middleware.JWTAuth(cfg.JWTSecret)
	handler.NewQueryHandler(queryUsecase).Register(app, auth)
	handler.NewJobHandler(sched).Register(app, auth)

	sched.Start()
	logger.Info("scheduler started",
		zap.Duration("collect_interval", cfg.CollectInterval),
		zap.Duration("analyze_interval", cfg.AnalyzeInterval),
		zap.Duration("aggregate_interval", cfg.AggregateInterval))

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			logger.Fatal("http server stopped", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("port", cfg.AppPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler shutdown error", zap.Error(err))
	}
	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}

// registerJobs wires the three background jobs. The collect job resolves
// its target list each cycle so newly added connections are picked up
// without a restart; one unreachable target does not block the others.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	logger *zap.Logger,
	connRepo sqlite.ConnectionRepository,
	rawRepo sqlite.RawQueryRepository,
	anlz *analyzer.Analyzer,
	aggr *aggregator.Aggregator,
	collectOpts collector.Options,
) {
	mustRegister(logger, sched, "collect", cfg.CollectInterval, func(ctx context.Context) (int, error) {
		targets, err := connRepo.FindEnabled(ctx)
		if err != nil {
			return 0, err
		}

		total := 0
		var lastErr error
		for _, target := range targets {
			col, err := collector.New(target, rawRepo, collectOpts, logger.Sugar())
			if err != nil {
				logger.Warn("collector setup failed",
					zap.String("target", target.Host), zap.Error(err))
				lastErr = err
				continue
			}
			stored, skipped, err := col.Collect(ctx)
			_ = col.Close()
			if err != nil {
				logger.Warn("collection cycle failed",
					zap.String("target", target.Host), zap.Error(err))
				lastErr = err
				continue
			}
			logger.Info("collected",
				zap.String("target", target.Host),
				zap.Int("stored", stored),
				zap.Int("skipped", skipped))
			total += stored
		}
		return total, lastErr
	})

	mustRegister(logger, sched, "analyze", cfg.AnalyzeInterval, func(ctx context.Context) (int, error) {
		return anlz.AnalyzePending(ctx, cfg.AnalyzeBatchSize)
	})

	mustRegister(logger, sched, "aggregate", cfg.AggregateInterval, func(ctx context.Context) (int, error) {
		now := time.Now().UTC()
		start := now.AddDate(0, 0, -7).Truncate(24 * time.Hour)
		end := now.Add(24 * time.Hour).Truncate(24 * time.Hour)

		daily, err := aggr.AggregateDaily(ctx, start, end)
		if err != nil {
			return int(daily), err
		}
		byFp, err := aggr.AggregateByFingerprint(ctx)
		return int(daily + byFp), err
	})
}

func mustRegister(logger *zap.Logger, sched *scheduler.Scheduler, name string, interval time.Duration, fn scheduler.JobFunc) {
	if err := sched.Register(name, interval, fn); err != nil {
		logger.Fatal("failed to register job", zap.String("job", name), zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	_ = lvl.Set(level)

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
