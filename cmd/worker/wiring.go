package main

import (
	"context"
	"fmt"

	"github.com/quocanhngo/habitnudge/internal/config"
	"github.com/quocanhngo/habitnudge/internal/guard"
	"github.com/quocanhngo/habitnudge/internal/handler"
	"github.com/quocanhngo/habitnudge/internal/repository"
	"github.com/quocanhngo/habitnudge/pkg/notification"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// infra holds the long-lived connections a command opened.
type infra struct {
	db     *gorm.DB
	rdb    *redis.Client
	checks map[string]handler.Check
}

func (in *infra) Close() {
	if in.rdb != nil {
		_ = in.rdb.Close()
	}
	if in.db != nil {
		if sqlDB, err := in.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func openPostgres(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info("✅ Connected to PostgreSQL", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.Name))
	return db, nil
}

func openRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("✅ Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	return rdb, nil
}

// buildInfra opens the store backend and, when the guard needs it, redis.
func buildInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*infra, repository.UserRecordSource, error) {
	in := &infra{checks: map[string]handler.Check{}}

	if cfg.NeedsRedis() {
		rdb, err := openRedis(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		in.rdb = rdb
		in.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	switch cfg.Store.Backend {
	case config.StoreRedis:
		return in, repository.NewRedisRepository(in.rdb, cfg.Store.RedisPrefix), nil
	default:
		db, err := openPostgres(cfg, log)
		if err != nil {
			in.Close()
			return nil, nil, err
		}
		in.db = db
		in.checks["postgres"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		return in, repository.NewKVRepository(db, cfg.Store.Table), nil
	}
}

func buildGuard(cfg *config.Config, in *infra) guard.Guard {
	if !cfg.Guard.Enabled || in == nil || in.rdb == nil {
		return guard.Noop{}
	}
	return guard.NewRedisGuard(in.rdb, cfg.Guard.Prefix, cfg.Guard.TTL)
}

// buildProvider returns the configured push provider. Dry runs never send,
// so FCM skips credential loading.
func buildProvider(ctx context.Context, cfg *config.Config) (notification.Provider, error) {
	switch cfg.Push.Provider {
	case config.ProviderFCM:
		if cfg.Push.DryRun {
			return &notification.FCMProvider{}, nil
		}
		return notification.NewFCMProvider(ctx, cfg.Firebase.CredentialsFile)
	default:
		return notification.NewExpoProvider(notification.ExpoConfig{
			URL:         cfg.Expo.URL,
			AccessToken: cfg.Expo.AccessToken,
			Timeout:     cfg.Push.ChunkTimeout,
		}), nil
	}
}

func buildDispatcher(provider notification.Provider, cfg *config.Config, log *zap.Logger) *notification.Dispatcher {
	return notification.NewDispatcher(provider, log.With(zap.String("component", "dispatcher")), notification.DispatcherConfig{
		BatchSize:     cfg.Push.BatchSize,
		ChunkTimeout:  cfg.Push.ChunkTimeout,
		Concurrency:   cfg.Push.Concurrency,
		RatePerSecond: cfg.Push.RatePerSec,
		DryRun:        cfg.Push.DryRun,
	})
}
