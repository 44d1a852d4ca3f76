package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-cam/internal/application"
	"github.com/bryanwahyu/automaton-cam/internal/application/analyses"
	"github.com/bryanwahyu/automaton-cam/internal/config"
	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	mysqlp "github.com/bryanwahyu/automaton-cam/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-cam/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/automaton-cam/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-cam/internal/infra/metrics"
	"github.com/bryanwahyu/automaton-cam/internal/infra/storage"
	"github.com/bryanwahyu/automaton-cam/internal/logging"
	"github.com/bryanwahyu/automaton-cam/internal/middleware"
)

// fileStore is what the service and the health check need from storage
type fileStore interface {
	analysis.FileStore
	middleware.Pinger
}

func openRepository(ctx context.Context, cfg *config.Config) (*sql.DB, *sqlstore.Repository, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		if err := sqlstore.Migrate(ctx, db, mysqlp.Dialect); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("mysql migrate: %w", err)
		}
		return db, mysqlp.NewAnalysisRepository(db), nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := sqlstore.Migrate(ctx, db, postgres.Dialect); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return db, postgres.NewAnalysisRepository(db), nil
	default:
		db, err := sqlite.Connect(ctx, cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open: %w", err)
		}
		return db, sqlite.NewAnalysisRepository(db), nil
	}
}

func openFileStore(ctx context.Context, cfg *config.Config) (fileStore, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
	case "s3":
		return storage.NewS3(ctx, storage.S3Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			Prefix:    cfg.Storage.Prefix,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return storage.NewLocal(cfg.Storage.Path)
	}
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Logging, "cam-api")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := openFileStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s storage init: %w", cfg.Storage.Backend, err)
	}

	rec := metrics.Recorder{}
	pool := analyses.NewPool(context.Background(), cfg.Engine.Workers, cfg.Engine.QueueSize, logger, rec.QueueDepth)
	svc := &analyses.Service{
		Repo:     repo,
		Files:    files,
		Pipeline: analyses.NewPipeline(cfg.Engine.MaxExpandedBytes, cfg.Engine.ParseWorkers),
		Pool:     pool,
		Clock:    application.SystemClock{},
		Log:      logger,
		Metrics:  rec,
		Limits: analyses.Limits{
			MaxUploadBytes:   cfg.Engine.MaxUploadBytes,
			MaxFiles:         cfg.Engine.MaxFiles,
			MaxExpandedBytes: cfg.Engine.MaxExpandedBytes,
		},
		Rules: cfg.Rules,
	}
	if _, err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover unfinished analyses: %w", err)
	}

	opts := httpserver.Options{
		Log: logger,
		Health: map[string]middleware.HealthChecker{
			"database": middleware.PingChecker{Target: repo},
			"storage":  middleware.PingChecker{Target: files},
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxUploadBytes: cfg.Engine.MaxUploadBytes,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(svc, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("storage", cfg.Storage.Backend),
			zap.Int("workers", cfg.Engine.Workers),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			_ = pool.Close()
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// running analyses are cancelled and recorded as failed
	if err := pool.Close(); err != nil {
		logger.Warn("pool shutdown", zap.Error(err))
	}
	return nil
}
