package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/bordereau-flow/internal/config"
	"github.com/kursadbilgin/bordereau-flow/internal/handler"
	infraredis "github.com/kursadbilgin/bordereau-flow/internal/infra/redis"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/provider"
	"github.com/kursadbilgin/bordereau-flow/internal/queue"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
	"github.com/kursadbilgin/bordereau-flow/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	rateWindow      = time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.ValidateRelay(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("bordereau-flow relay stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := infraredis.Connect(ctx, cfg.RedisURL, "bordereau-flow-relay")
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RelayRateLimit, rateWindow)
	if err != nil {
		return err
	}

	client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	consumer := queue.NewRabbitMQConsumer(client, cfg.RelayConcurrency, logger)
	defer consumer.Close() //nolint:errcheck

	webhook, err := provider.NewWebhookProvider(cfg.NotifyWebhookURL)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	relay, err := service.NewRelayService(consumer, webhook, limiter, cfg.RelayConcurrency, metrics, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, map[string]handler.ReadinessCheck{"redis": handler.RedisCheck(rdb)})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bordereau-flow relay started",
			zap.Int("concurrency", cfg.RelayConcurrency),
			zap.Int("ratePerSecond", cfg.RelayRateLimit),
		)
		err := relay.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
