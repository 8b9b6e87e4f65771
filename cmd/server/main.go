package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bk-med/kanban/internal/cache"
	"github.com/bk-med/kanban/internal/config"
	"github.com/bk-med/kanban/internal/database"
	"github.com/bk-med/kanban/internal/logging"
	"github.com/bk-med/kanban/internal/server"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		logrus.WithError(err).Fatal("Failed to load environment file")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.Log)

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(pool.DB); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Database ready")

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = cache.NewRedisClient(cache.CacheConfigFrom(cfg))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Keep going on a failed ping: the cache degrades through its breaker
		// and the worker keeps polling until Redis comes back.
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).WithField("addr", cfg.GetRedisAddr()).Warn("Redis unreachable at startup")
		}
		cancel()
		defer rdb.Close()
	}

	srv, err := server.New(cfg, pool.DB, rdb, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build server")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := pool.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close database pool")
	}
	logger.Info("Server stopped")
}
