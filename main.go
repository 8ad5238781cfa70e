package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"lifecycle-service/handlers"
	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/cart"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/consul"
	"lifecycle-service/internal/notify"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/payments"
	"lifecycle-service/internal/prefs"
	"lifecycle-service/internal/products"
	"lifecycle-service/internal/scheduler"
	"lifecycle-service/internal/stores/cache"
	"lifecycle-service/internal/stores/email"
	"lifecycle-service/internal/stores/kafka"
	"lifecycle-service/internal/stores/postgres"
	"lifecycle-service/pkg/shutdown"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	setupSlog(cfg.App.LogLevel, cfg.App.Name)

	if err := run(cfg); err != nil {
		slog.Error("service exited with error", slog.String("Error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	// Storage
	db, err := postgres.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		return err
	}
	slog.Info("postgres connected, migrations applied")

	eventCache, err := cache.NewConf(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting redis: %w", err)
	}
	defer eventCache.Close()

	producer, err := kafka.NewConf(cfg.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("connecting kafka: %w", err)
	}
	defer producer.Close()

	// Domain configuration
	cartConf, err := cart.NewConf(db)
	if err != nil {
		return err
	}
	orderConf, err := orders.NewConf(db, cartConf)
	if err != nil {
		return err
	}
	productConf, err := products.NewConf(db)
	if err != nil {
		return err
	}
	prefConf, err := prefs.NewConf(db)
	if err != nil {
		return err
	}

	// Notification pipeline
	eventBus := bus.New(cfg.Notify.QueueSize)

	sender, err := email.NewConf(cfg.SMTP)
	if err != nil {
		return err
	}
	dispatcher, err := notify.NewDispatcher(cfg.Notify, prefConf, notify.TextRenderer{}, sender)
	if err != nil {
		return err
	}
	eventBus.Start(ctx, cfg.Notify.Workers, dispatcher.Handle)
	defer eventBus.Stop()

	paymentConf, err := payments.NewConf(cfg.Stripe, orderConf, eventCache, producer, eventBus)
	if err != nil {
		return err
	}

	// Catalog events feed the same dispatcher.
	catalogConsumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup,
		kafka.TopicPriceDropped, kafka.TopicProductRestock)
	if err != nil {
		return fmt.Errorf("creating catalog consumer: %w", err)
	}
	defer catalogConsumer.Close()
	go catalogConsumer.Run(ctx, notify.NewCatalogConsumer(eventBus).Handle)

	// Scheduled jobs
	jobs, err := scheduler.NewJobs(cfg.Scheduler, orderConf, cartConf, productConf, eventBus)
	if err != nil {
		return err
	}
	sched := scheduler.New()
	jobs.RegisterAll(sched)
	sched.Start(ctx)

	// HTTP
	authKeys, err := loadAuthKeys()
	if err != nil {
		return err
	}
	api := handlers.API(cfg.App.EndpointPrefix, authKeys, orderConf, paymentConf,
		cartConf, productConf, prefConf, eventBus)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	if cfg.Consul.Address != "" {
		client, err := consul.NewClient(cfg.Consul.Address)
		if err != nil {
			return err
		}
		if err := consul.RegisterService(client, cfg.Consul.ServiceName, cfg.Consul.ServiceHost, cfg.HTTP.Port); err != nil {
			return err
		}
		slog.Info("registered with consul", slog.String("Service", cfg.Consul.ServiceName))
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.Int("Port", cfg.HTTP.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	sched.Wait()
	return nil
}

func setupSlog(level, service string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", service))
	slog.SetDefault(logger)
}

func loadAuthKeys() (*auth.Keys, error) {
	path := os.Getenv("AUTH_PUBLIC_KEY_PATH")
	if path == "" {
		path = "pubkey.pem"
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading auth public key: %w", err)
	}
	return auth.NewKeys(pem)
}
