package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joblink/joblink-web/config"
	"github.com/joblink/joblink-web/internal/bootstrap"
	"github.com/joblink/joblink-web/internal/data"
	"github.com/joblink/joblink-web/internal/devseed"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting joblink", bootstrap.StartupFields(&cfg)...)

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	if cfg.IsDev {
		if _, err = devseed.Run(ctx, data.NewRoleRepo(db), cfg.Auth.Roles, devUser(&cfg), logger); err != nil {
			return err
		}
	}

	metrics, err := bootstrap.BuildMetrics(cfg.Observability.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := metrics.Close(); cerr != nil {
			logger.WarnContext(ctx, "close metrics client failed", "error", cerr)
		}
	}()

	auth, err := bootstrap.BuildAuth(ctx, bootstrap.AuthDeps{
		Config:  &cfg,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer auth.Controller.Close()
	if err = auth.Controller.Start(ctx); err != nil {
		return fmt.Errorf("start auth controller: %w", err)
	}

	handler, err := bootstrap.BuildHTTPHandler(&bootstrap.HTTPServerConfig{
		HTTP:   cfg.HTTP,
		Auth:   auth,
		DB:     db,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	return bootstrap.Serve(ctx, cfg.HTTP, handler, logger)
}

// devUser is the mock identity seeded as admin in development.
func devUser(cfg *config.AppConfig) string {
	if cfg.Auth.Mode != config.AuthModeMock {
		return ""
	}
	return cfg.Auth.DevAuth.UserID
}

// initInfrastructure connects shared dependencies used by the service runtime.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	if !cfg.NeedsRedis() {
		return db, nil, nil
	}

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect redis: %w", errors.Join(err, fmt.Errorf("close database: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, redisClient, nil
}
