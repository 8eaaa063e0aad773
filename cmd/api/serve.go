package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/analysis"
	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/events"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/ingest"
	"callcenter-platform/internal/jobs"
	"callcenter-platform/internal/live"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/reporting"
	"callcenter-platform/pkg/aiclient"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/rabbitmq"
	"callcenter-platform/pkg/storage"
	"callcenter-platform/pkg/utils"
)

// analysisSlotTTL bounds how long a crashed worker can hold a call.
const analysisSlotTTL = 30 * time.Minute

func serve(parent context.Context, cfg config.Config, migrate bool) error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.From(rootCtx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, closeDB, err := openDB(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	if migrate {
		if err := migrateAll(rootCtx, db); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			return err
		}
		defer rdb.Close()
	}

	recordings, err := openStorage(rootCtx, cfg)
	if err != nil {
		log.Error("storage init failed", "backend", cfg.Storage.Backend, "err", err)
		return err
	}

	// the connection must outlive rootCtx so draining workers can still ack
	transport, err := openTransport(parent, cfg)
	if err != nil {
		log.Error("queue transport init failed", "backend", cfg.Queue.Backend, "err", err)
		return err
	}
	defer transport.Close()

	hub := events.NewHub(64)
	defer hub.Close()
	if err := metrics.RegisterHub(prometheus.DefaultRegisterer, hub); err != nil {
		return err
	}

	callRepo := calls.NewGormRepo(db)
	roster := agents.NewGormRepo(db)

	var (
		ps     presence.Store = presence.NewMemoryStore(cfg.Presence.TTL)
		locker jobs.Locker    = jobs.NewMemoryLocker()
	)
	if rdb != nil {
		ps = presence.NewRedisStore(rdb, cfg.Presence.TTL)
		locker = jobs.NewRedisLocker(rdb, analysisSlotTTL)
	}

	queue := jobs.NewQueue(transport, jobs.Options{Observer: metrics.Jobs{}, Events: hub})

	ai := aiclient.New(aiclient.Config{
		TranscribeURL:     cfg.AI.TranscribeURL,
		LLMURL:            cfg.AI.LLMURL,
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		TranscribeModel:   cfg.AI.TranscribeModel,
		Timeout:           cfg.AI.Timeout,
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
	})
	pipeline := analysis.NewPipeline(analysis.Deps{
		Calls:       callRepo,
		Recordings:  recordings,
		Transcriber: ai,
		Completer:   ai,
		Locker:      locker,
		Progress:    queue,
		Events:      hub,
	})

	aggregator := live.NewAggregator(roster, ps, callRepo)
	aggregator.Location = cfg.Location()

	h := httpapi.Handlers{
		Ingest: ingest.NewService(ingest.Deps{
			Calls:      callRepo,
			Agents:     roster,
			Recordings: recordings,
			Queue:      queue,
			Events:     hub,
			Audit:      audit.NewService(audit.NewGormRepo(db)),
		}),
		Calls:     callRepo,
		Presence:  ps,
		Live:      aggregator,
		Jobs:      queue,
		Reporting: reporting.NewService(reporting.NewGormRepo(db)),
		Location:  cfg.Location(),
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	registerRoutes(r, h, hub, cfg.CORS.AllowedOrigins, func(ctx context.Context) error {
		return utils.HealthCheck(ctx, sqlDB, 2*time.Second)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- queue.Run(rootCtx, cfg.Queue.Concurrency, pipeline.Handle)
	}()

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// in-flight jobs run to completion; each AI call is bounded by its timeout
	drain := time.NewTimer(workerDrainTimeout(cfg))
	defer drain.Stop()
	select {
	case err := <-workersDone:
		if err != nil {
			log.Error("analysis workers stopped", "err", err)
		}
	case <-drain.C:
		log.Warn("analysis workers did not stop in time")
	}
	return nil
}

// workerDrainTimeout covers a transcription followed by the parallel
// completion round, plus the database writes.
func workerDrainTimeout(cfg config.Config) time.Duration {
	return 2*cfg.AI.Timeout + 30*time.Second
}

func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, func(), error) {
	log := logger.From(ctx)
	if cfg.DB.Driver == "sqlite" {
		db, err := utils.OpenSQLite(cfg.DB.SQLitePath)
		if err != nil {
			log.Error("sqlite init failed", "path", cfg.DB.SQLitePath, "err", err)
			return nil, nil, err
		}
		return db, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}

	sqlDB, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		return nil, nil, err
	}
	db, err := utils.OpenGormPostgres(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		log.Error("gorm init failed", "err", err)
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage.RecordingStore, error) {
	if cfg.Storage.Backend == "minio" {
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			Secure:    cfg.Storage.MinIOSecure,
		})
	}
	return storage.NewLocal(cfg.Storage.LocalDir)
}

func openTransport(ctx context.Context, cfg config.Config) (jobs.Transport, error) {
	if cfg.Queue.Backend != "amqp" {
		return jobs.NewMemoryTransport(), nil
	}
	conn, err := rabbitmq.Dial(ctx, rabbitmq.Config{
		Host: cfg.Queue.AMQPHost,
		Port: cfg.Queue.AMQPPort,
		User: cfg.Queue.AMQPUser,
		Pass: cfg.Queue.AMQPPass,
	})
	if err != nil {
		return nil, err
	}
	t, err := jobs.NewAMQPTransport(conn, cfg.Queue.QueueName, cfg.Queue.Concurrency)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}
