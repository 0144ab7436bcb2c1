package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/bordereau-flow/internal/config"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/handler"
	"github.com/kursadbilgin/bordereau-flow/internal/infra/postgresql"
	"github.com/kursadbilgin/bordereau-flow/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/bordereau-flow/internal/infra/redis"
	"github.com/kursadbilgin/bordereau-flow/internal/lease"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/provider"
	"github.com/kursadbilgin/bordereau-flow/internal/queue"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
	"github.com/kursadbilgin/bordereau-flow/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	batches     repository.BatchRepository
	documents   repository.DocumentRepository
	users       repository.UserRepository
	assignments repository.AssignmentRepository
	payments    repository.PaymentOrderRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("bordereau-flow api stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}

	st, closeStore, err := openStore(cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := bootstrapAdmin(ctx, st.users, cfg.BootstrapAdminID); err != nil {
		return err
	}

	var leaser lease.Leaser
	if cfg.RedisURL != "" {
		rdb, err := infraredis.Connect(ctx, cfg.RedisURL, "bordereau-flow-api")
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		redisLeaser, err := infraredis.NewRedisLeaser(rdb, "bordereau-flow:lease:")
		if err != nil {
			return err
		}
		leaser = redisLeaser
		checks["redis"] = handler.RedisCheck(rdb)
	}

	notifier, closeNotifier, err := openNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	metrics := observability.NewMetrics()

	engine, err := service.NewBatchEngine(st.batches, cfg.TransitionMaxAttempts, metrics, logger)
	if err != nil {
		return err
	}
	reconciler, err := service.NewReconciler(engine, metrics, logger)
	if err != nil {
		return err
	}
	balancer, err := service.NewBalancer(st.batches, st.documents, st.users, reconciler, notifier, cfg.DefaultCapacity, metrics, logger)
	if err != nil {
		return err
	}
	batches, err := service.NewBatchService(st.batches, st.documents, st.assignments, st.payments, reconciler, logger)
	if err != nil {
		return err
	}
	documents, err := service.NewDocumentService(st.batches, st.documents, reconciler, logger)
	if err != nil {
		return err
	}
	staff, err := service.NewStaffService(st.users, logger)
	if err != nil {
		return err
	}
	monitor, err := service.NewSLAMonitor(st.batches, st.users, notifier, cfg.SweepBatchLimit, metrics, logger)
	if err != nil {
		return err
	}
	sweeper, err := service.NewSweeper(st.batches, reconciler, leaser,
		time.Duration(cfg.SweepIntervalSeconds)*time.Second, cfg.SweepBatchLimit, metrics, logger)
	if err != nil {
		return err
	}
	if cfg.SLAEscalation {
		sweeper.SetEscalator(monitor)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, checks)

	err = handler.RegisterRoutes(app, handler.Services{
		Batches:     batches,
		Transitions: engine,
		Reconciler:  reconciler,
		Assignments: balancer,
		Documents:   documents,
		Staff:       staff,
		SLA:         monitor,
	}, st.users)
	if err != nil {
		return err
	}

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bordereau-flow api started",
			zap.Int("port", cfg.APIPort),
			zap.String("store", cfg.StoreDriver),
			zap.String("notifier", cfg.NotifyDriver),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func openStore(cfg *config.Config, checks map[string]handler.ReadinessCheck) (*stores, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := repository.NewMemoryStore()
		return &stores{
			batches:     mem.Batches(),
			documents:   mem.Documents(),
			users:       mem.Users(),
			assignments: mem.Assignments(),
			payments:    mem.PaymentOrders(),
		}, func() {}, nil
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	checks["postgres"] = handler.SQLCheck(sqlDB)

	return &stores{
		batches:     repository.NewGormBatchRepo(db),
		documents:   repository.NewGormDocumentRepo(db),
		users:       repository.NewGormUserRepo(db),
		assignments: repository.NewGormAssignmentRepo(db),
		payments:    repository.NewGormPaymentOrderRepo(db),
	}, func() { _ = sqlDB.Close() }, nil
}

func openNotifier(cfg *config.Config, logger *zap.Logger) (service.Notifier, func(), error) {
	switch cfg.NotifyDriver {
	case config.NotifyDriverRabbitMQ:
		client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher := queue.NewRabbitMQPublisher(client)
		return queue.NewNotifier(publisher), func() { _ = publisher.Close() }, nil
	case config.NotifyDriverWebhook:
		webhook, err := provider.NewWebhookProvider(cfg.NotifyWebhookURL)
		if err != nil {
			return nil, nil, err
		}
		return provider.NewNotifier(webhook), func() {}, nil
	default:
		return service.NewLogNotifier(logger), func() {}, nil
	}
}

func bootstrapAdmin(ctx context.Context, users repository.UserRepository, id string) error {
	admin := &domain.Handler{
		ID:       id,
		FullName: "Bootstrap Administrator",
		Role:     domain.RoleAdministrator,
		Active:   true,
	}
	if err := users.Upsert(ctx, admin); err != nil {
		return fmt.Errorf("failed to bootstrap administrator: %w", err)
	}
	return nil
}
