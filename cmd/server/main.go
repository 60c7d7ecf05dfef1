package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/donagest/donation-tracker/internal/adapter/handler"
	"github.com/donagest/donation-tracker/internal/adapter/storage"
	"github.com/donagest/donation-tracker/internal/config"
	"github.com/donagest/donation-tracker/internal/core/service"
	"github.com/donagest/donation-tracker/pkg/logger"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping mysql", zap.Error(err))
	}
	log.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	if err := mysqlAdapter.Migrate(ctx); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	contributionService := service.NewContributionService(
		mysqlAdapter, redisAdapter, logger.Named(log, "contributions"), cfg.Cache.SnapshotTTL)
	distributionService := service.NewDistributionService(
		mysqlAdapter, redisAdapter, logger.Named(log, "distributions"))

	httpHandler := handler.NewHTTPHandler(contributionService, distributionService, logger.Named(log, "http"))
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/contributions", httpHandler.CreateContribution)
	mux.HandleFunc("/api/contributions/status", httpHandler.AdvanceStatus)
	mux.HandleFunc("/api/distributions", httpHandler.CreateDistribution)
	mux.HandleFunc("/api/tracking", httpHandler.Track)
	mux.HandleFunc("/api/items", httpHandler.ListItems)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	rdb.Close()
	db.Close()
	log.Info("connections closed")
}
