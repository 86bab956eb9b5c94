package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tradepipeline/internal/application/service/lineage"
	"tradepipeline/internal/config"
	"tradepipeline/internal/infrastructure/broker"
	"tradepipeline/internal/infrastructure/records"
	infrahttp "tradepipeline/internal/interfaces/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_DSN is required")
	}

	repo, err := records.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init records repo: %v", err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("failed to prepare records schema: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var consumer *broker.Consumer
	if cfg.RabbitMQ.Enabled() {
		consumer, err = broker.NewConsumer(cfg.RabbitMQ, repo, logger)
		if err != nil {
			logger.Fatalf("failed to init consumer: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("failed to start consumer: %v", err)
		}
	} else {
		logger.Warn("RABBITMQ_URL is empty, serving stored records only")
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewLineageHandler(lineage.NewService(repo, repo), redisClient, cacheTTL, nil)

	addr := cfg.HTTP.Addr(cfg.Collector.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down collector")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(shutdownCtx); err != nil {
			logger.Errorf("consumer shutdown error: %v", err)
		}
	}
	logger.Info("collector stopped")
}
