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
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridepay/internal/app"
	"ridepay/internal/config"
	"ridepay/internal/events"
	"ridepay/internal/gateway"
	"ridepay/internal/handler"
	"ridepay/internal/logger"
	"ridepay/internal/middleware"
	internalRedis "ridepay/internal/redis"
	"ridepay/internal/repository"
	"ridepay/internal/repository/postgres"
	"ridepay/internal/secret"
	"ridepay/internal/service"
	"ridepay/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients are instrumented.
	nrApp := app.NewNewRelic(cfg.NewRelic, zl)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return err
	}
	defer db.Close()
	zl.Info("connected to postgres", zap.String("db", cfg.Database.DBName))

	if cfg.Database.Migrate {
		if err := app.RunMigrations(ctx, db, migrations.FS, zl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	cipher, err := secret.NewCipher(cfg.Payment.EncryptionKey)
	if err != nil {
		return err
	}

	dispatcher := events.NewDispatcher(events.Options{
		Workers:     cfg.Events.Workers,
		Buffer:      cfg.Events.Buffer,
		MaxAttempts: cfg.Events.MaxAttempts,
		Logger:      zl.Named("events"),
		NewRelic:    nrApp,
	})

	server, driverService, closeSinks := wireServer(db, redisClient, nrApp, dispatcher, cipher, cfg, zl)
	defer closeSinks()

	// The geo index is a cache of Postgres; a failed rebuild only degrades
	// the redis backend until the next location updates arrive.
	if err := driverService.SyncIndex(ctx); err != nil {
		zl.Warn("driver geo index not rebuilt", zap.Error(err))
	}

	dispatcher.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	// In-flight handlers have returned; drain the signals they emitted.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		zl.Warn("event queue not drained", zap.Error(err))
	}

	zl.Info("server exited")
	return nil
}

// wireServer wires all dependencies and returns the HTTP server, the driver
// service (for the startup index sync) and a func closing external sinks.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	dispatcher *events.Dispatcher,
	cipher *secret.Cipher,
	cfg *config.Config,
	zl *zap.Logger,
) (*http.Server, *service.DriverService, func()) {
	// Repositories.
	userRepo := postgres.NewUserRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	methodRepo := postgres.NewPaymentMethodRepository(db)
	settlement := postgres.NewSettlementStore(db)

	// Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient, userRepo, zl.Named("geo_index"))
	lockStore := internalRedis.NewLockStore(redisClient)

	var locator repository.DriverLocator = postgres.NewDriverLocator(db)
	if cfg.Rides.GeoBackend == config.GeoBackendRedis {
		locator = locationStore
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.Gateway.BaseURL,
		PublicKey:       cfg.Gateway.PublicKey,
		PrivateKey:      cfg.Gateway.PrivateKey,
		IntegritySecret: cfg.Gateway.IntegritySecret,
		Currency:        cfg.Gateway.Currency,
		Timeout:         cfg.Gateway.Timeout,
	}, nil)

	// Services.
	paymentSourceService := service.NewPaymentSourceService(userRepo, methodRepo, gw, cipher, lockStore, service.PaymentSourceConfig{
		Sandbox:         cfg.Payment.Sandbox,
		FallbackRiderID: cfg.Payment.FallbackRiderID,
	}, zl.Named("payment_source"))
	rideService := service.NewRideService(userRepo, rideRepo, settlement, locator, paymentSourceService, gw, dispatcher, service.RideConfig{
		FinishClaimLease: cfg.Rides.FinishClaimLease,
	}, zl.Named("ride"))
	driverService := service.NewDriverService(userRepo, locationStore, zl.Named("driver"))
	notificationService := service.NewNotificationService(service.NewLogSender(zl.Named("notification")))
	receiptService := service.NewReceiptService(notificationService, zl.Named("receipt"))

	// Signal subscribers.
	dispatcher.Subscribe(events.RideCreated, "payment_source.ensure", paymentSourceService.HandleRideCreated)
	dispatcher.Subscribe(events.RideCreated, "notification.driver_assigned", notificationService.HandleRideCreated)
	dispatcher.Subscribe(events.RideFinished, "notification.payment", notificationService.HandleRideFinished)
	dispatcher.Subscribe(events.RideFinished, "receipt.generate", receiptService.HandleRideFinished)

	closeSinks := func() {}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Events.KafkaBrokers), cfg.Events.TopicPrefix)
		dispatcher.Subscribe(events.RideCreated, "kafka", sink.Handle)
		dispatcher.Subscribe(events.RideFinished, "kafka", sink.Handle)
		closeSinks = func() {
			if err := sink.Close(); err != nil {
				zl.Warn("kafka writer not closed cleanly", zap.Error(err))
			}
		}
		zl.Info("publishing ride signals to kafka", zap.Strings("brokers", cfg.Events.KafkaBrokers))
	}

	router := app.NewRouter(app.RouterDeps{
		RideHandler:          handler.NewRideHandler(rideService),
		PaymentSourceHandler: handler.NewPaymentSourceHandler(paymentSourceService),
		DriverHandler:        handler.NewDriverHandler(driverService),
		IdempotencyStore:     middleware.NewRedisResponseStore(redisClient),
		NewRelicApp:          nrApp,
		Logger:               zl.Named("http"),
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, driverService, closeSinks
}
