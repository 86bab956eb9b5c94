package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepipeline/internal/application/service/intake"
	"tradepipeline/internal/application/service/pricing"
	"tradepipeline/internal/application/service/risk"
	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/application/service/valuation"
	"tradepipeline/internal/config"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/infrastructure/broker"
	"tradepipeline/internal/infrastructure/chaos"
	"tradepipeline/internal/infrastructure/recordlog"
	"tradepipeline/internal/infrastructure/stageclient"
	"tradepipeline/internal/infrastructure/tradestore"
	infrahttp "tradepipeline/internal/interfaces/http"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type deps struct {
	cfg     *config.Config
	logger  *logrus.Logger
	faults  *chaos.Engine
	store   *tradestore.Store
	metrics *infrahttp.Metrics
	redis   *redis.Client
	rabbit  *amqp.Connection
}

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

	d := &deps{
		cfg:     cfg,
		logger:  logger,
		faults:  chaos.NewEngine(cfg.Faults.Seed),
		store:   tradestore.NewStore(),
		metrics: infrahttp.NewMetrics(),
	}

	if cfg.Redis.Enabled() {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer d.redis.Close()
	}

	if cfg.RabbitMQ.Enabled() {
		d.rabbit, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatalf("connect rabbitmq: %v", err)
		}
		defer d.rabbit.Close()
	}

	stages := cfg.Stages()
	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range stages {
		handler, closeSink, err := d.buildStage(stage)
		if err != nil {
			logger.Fatalf("failed to init %s: %v", stage.Service(), err)
		}
		defer closeSink()

		addr := cfg.HTTP.Addr(cfg.Ports.For(stage))
		server := &http.Server{
			Addr:    addr,
			Handler: handler,
		}
		log := logger.WithFields(logrus.Fields{"service": stage.Service(), "addr": addr})

		g.Go(func() error {
			log.Info("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", stage.Service(), err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Errorf("server shutdown error: %v", err)
			}
			return nil
		})
	}

	logger.WithFields(logrus.Fields{
		"stages":      len(stages),
		"log_dir":     cfg.Log.Dir,
		"base_prices": config.TableString(cfg.Pricing.BasePrices),
		"base_costs":  config.TableString(cfg.Valuation.Costs),
		"fault_seed":  cfg.Faults.Seed,
	}).Info("pipeline started")

	if err := g.Wait(); err != nil {
		logger.Errorf("pipeline stopped with error: %v", err)
	}
	logger.Info("server stopped")
}

// buildStage wires one stage: its record sink, its downstream client and its
// router. The returned func releases the sink.
func (d *deps) buildStage(stage pipeline.Stage) (http.Handler, func(), error) {
	service := stage.Service()
	file, err := recordlog.OpenFile(d.cfg.Log.Dir, service)
	if err != nil {
		return nil, nil, err
	}

	var hooks []logrus.Hook
	var publisher *broker.Publisher
	if d.redis != nil {
		hooks = append(hooks, recordlog.NewRedisHook(d.redis, service))
	}
	if d.rabbit != nil {
		publisher, err = broker.NewPublisher(d.rabbit, d.cfg.RabbitMQ.Exchange, service)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		hooks = append(hooks, publisher)
	}
	closeSink := func() {
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				d.logger.WithError(err).WithField("service", service).Warn("close record publisher")
			}
		}
		file.Close()
	}

	sink := recordlog.New(service, io.MultiWriter(file, os.Stdout), hooks...)
	log := stagelog.NewRecorder(stage, sink)
	timeout := d.cfg.Downstream.Timeout

	switch stage {
	case pipeline.StageIntake:
		client := stageclient.NewPricingClient(d.cfg.Downstream.PricingURL, timeout)
		return infrahttp.NewIntakeHandler(intake.NewService(d.store, client, log), d.metrics), closeSink, nil
	case pipeline.StagePricing:
		client := stageclient.NewValuationClient(d.cfg.Downstream.ValuationURL, timeout)
		svc := pricing.NewService(pricing.Config{
			BasePrices:           d.cfg.Pricing.BasePrices,
			DefaultPrice:         d.cfg.Pricing.DefaultPrice,
			Perturbation:         d.cfg.Pricing.Perturbation,
			TimeoutProbability:   d.cfg.Faults.PricingTimeout,
			MalformedProbability: d.cfg.Faults.PricingMalformed,
			TimeoutDelay:         d.cfg.Faults.PricingTimeoutDelay,
			LatencyMin:           d.cfg.Pricing.LatencyMin,
			LatencyMax:           d.cfg.Pricing.LatencyMax,
		}, d.faults, client, log)
		return infrahttp.NewPricingHandler(svc, d.metrics), closeSink, nil
	case pipeline.StageValuation:
		client := stageclient.NewRiskClient(d.cfg.Downstream.RiskURL, timeout)
		svc := valuation.NewService(valuation.Config{
			Costs:                    d.cfg.Valuation.Costs,
			DefaultCost:              d.cfg.Valuation.DefaultCost,
			InconsistencyProbability: d.cfg.Faults.ValuationInconsistency,
		}, d.faults, client, log)
		return infrahttp.NewValuationHandler(svc, d.metrics), closeSink, nil
	case pipeline.StageRisk:
		return infrahttp.NewRiskHandler(risk.NewService(log), d.metrics), closeSink, nil
	}
	closeSink()
	return nil, nil, fmt.Errorf("unknown stage %q", stage)
}
