package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/scenehub/scenehub-backend/internal/conf"
	"github.com/scenehub/scenehub-backend/internal/pkg/database"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/pkg/minio"
	"github.com/scenehub/scenehub-backend/internal/pkg/redis"
	"github.com/scenehub/scenehub-backend/internal/pkg/workerpool"
	"github.com/scenehub/scenehub-backend/internal/server"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
	"github.com/scenehub/scenehub-backend/internal/upload/data"
	"github.com/scenehub/scenehub-backend/internal/upload/service"
	"go.uber.org/zap"
)

var configFile = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(config.Log); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	db, err := database.New(config.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if config.Database.AutoMigrate {
		if err := data.Migrate(db); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Redis is optional: without it, progress reads fall back to the
	// database.
	var progressCache biz.ProgressCache
	redisClient, err := redis.New(config.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, progress caching disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		progressCache = data.NewProgressCache(redisClient)
	}

	minioClient, err := minio.NewClient(config.MinIO, log)
	if err != nil {
		log.Fatal("failed to connect to object storage", zap.Error(err))
	}
	if err := minioClient.EnsureBucket(context.Background()); err != nil {
		log.Fatal("failed to ensure bucket", zap.Error(err))
	}
	blobs := data.NewBlobStore(minioClient)

	pool, err := workerpool.New(config.Upload.WorkerPoolSize, log)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	entityRepo := data.NewEntityRepo(db)
	artifactRepo := data.NewArtifactRepo(db)
	sessionRepo := data.NewSessionRepo(db)

	entityUseCase := biz.NewEntityUseCase(entityRepo, log)
	artifactUseCase := biz.NewArtifactUseCase(artifactRepo, entityRepo, blobs, log)
	sessionUseCase := biz.NewSessionUseCase(sessionRepo, entityUseCase, progressCache, config.Upload.Session, log)
	finalizeUseCase := biz.NewFinalizeUseCase(entityUseCase, artifactRepo, log)
	resetUseCase := biz.NewResetUseCase(db, entityUseCase, artifactRepo, sessionRepo, blobs, log)
	reconcilerUseCase := biz.NewReconcilerUseCase(artifactRepo, sessionRepo, pool, log)

	httpServer := server.NewHTTPServer(config, log, server.Services{
		Session:     service.NewSessionService(sessionUseCase, log),
		Artifact:    service.NewArtifactService(artifactUseCase, entityUseCase, log),
		Lifecycle:   service.NewLifecycleService(entityUseCase, finalizeUseCase, resetUseCase, log),
		Maintenance: service.NewMaintenanceService(reconcilerUseCase, blobs, log),
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := biz.NewSweeper(sessionUseCase, reconcilerUseCase, blobs, config.Sweeper, log)
	go sweeper.Run(sweepCtx)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
