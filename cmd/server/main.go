package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solarcrm/internal/cache"
	"solarcrm/internal/config"
	"solarcrm/internal/handler"
	"solarcrm/internal/httpserver"
	"solarcrm/internal/model"
	"solarcrm/internal/mqhandler"
	"solarcrm/internal/pipeline"
	"solarcrm/internal/repository"
	"solarcrm/internal/service/project"
	"solarcrm/internal/service/report"
	"solarcrm/migrations"
	"solarcrm/pkg/circuitbreaker"
	"solarcrm/pkg/db"
	"solarcrm/pkg/logger"
	"solarcrm/pkg/mq"
	"solarcrm/pkg/otel"
	"solarcrm/pkg/outbox"
	redisclient "solarcrm/pkg/redis"
	"solarcrm/pkg/util"
)

func main() {
	env := flag.String("env", envOr("APP_ENV", "local"), "config environment (base.yaml + <env>.yaml)")
	configDir := flag.String("config", envOr("CONFIG_DIR", "config"), "config directory")
	migrate := flag.Bool("migrate", false, "apply database migrations before starting")
	flag.Parse()

	cfg, err := config.Load(*env, *configDir)
	if err != nil {
		// logger 依赖配置中的级别，这里只能用默认级别输出
		logger.NewLogger("info").Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	log.Info("Starting solarcrm pipeline service...",
		zap.String("env", *env),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "solarcrm-pipeline",
		ServiceVersion: "1.0.0",
		Environment:    *env,
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
		SampleRatio:    cfg.Otel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	if *migrate {
		if err := migrations.Apply(context.Background(), dbConn, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Engine
	graph := pipeline.DefaultGraph()
	if err := graph.Validate(); err != nil {
		log.Fatal("Invalid stage graph", zap.Error(err))
	}
	opts, err := cfg.Pipeline.EngineOptions()
	if err != nil {
		log.Fatal("Invalid pipeline config", zap.Error(err))
	}

	outboxRepo := outbox.NewRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn, outboxRepo, log)
	engine := pipeline.NewEngine(graph, projectRepo, opts, log)

	reportCache := cache.NewReportCache(rdb, cfg.Cache.TTL, log)
	var generatorCache report.ReportCache
	if cfg.Cache.Enabled {
		generatorCache = reportCache
	}

	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Retrieval circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	breaker := circuitbreaker.NewCircuitBreaker(breakerCfg)

	reportService := report.NewService(engine, generatorCache, breaker, cfg.Pipeline.QueryTimeout, log)
	projectService := project.NewService(projectRepo, graph, log)
	replayService := outbox.NewReplayService(outboxRepo, log)

	// MQ：outbox dispatcher 发布 project.updated，consumer 负责让报表缓存失效
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		publisher *mq.Publisher
		consumer  *mq.Consumer
		mqChecks  []httpserver.ConnChecker
	)
	if cfg.MQ.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		mqChecks = append(mqChecks, publisher)

		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go dispatcher.Start(ctx)

		log.Info("Initializing MQ consumer for project.updated...",
			zap.String("queue", cfg.Events.Queue),
			zap.String("routing_key", model.RoutingKeyProjectUpdated),
		)
		consumer, err = mq.NewConsumer(cfg.MQ.URL, cfg.Events.Queue, model.RoutingKeyProjectUpdated, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.Error(err))
		}
		defer consumer.Close()
		mqChecks = append(mqChecks, consumer)

		projectUpdatedHandler := mqhandler.NewProjectUpdatedHandler(
			reportCache,
			util.NewDeduper(rdb, cfg.Events.DedupTTL, log),
			util.NewRetryCounter(rdb, cfg.Events.DedupTTL),
			publisher,
			cfg.Events.MaxRetries,
			log,
		)
		consumer.SetHandler(projectUpdatedHandler.Handle)

		go func() {
			log.Info("Starting project.updated consumer...")
			if err := consumer.StartConsuming(); err != nil {
				log.Error("project.updated consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("MQ disabled, report cache relies on TTL expiry only")
	}

	// HTTP Server
	router := httpserver.NewRouter(httpserver.Deps{
		Pipeline:  handler.NewPipelineHandler(reportService, log),
		Projects:  handler.NewProjectHandler(projectService, log),
		Admin:     handler.NewAdminHandler(replayService, log),
		JWTSecret: cfg.JWT.Secret,
		Server:    cfg.Server,
		DB:        dbConn,
		MQ:        mqChecks,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("solarcrm pipeline service is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
		zap.Int("workers", opts.Workers),
		zap.String("window_policy", string(opts.Policy)),
	)

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")

	if consumer != nil {
		log.Info("Stopping MQ consumer...")
		consumer.Stop()
	}
	cancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Shutdown complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
