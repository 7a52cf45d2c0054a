package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/archive"
	"orderflow/internal/cache"
	"orderflow/internal/config"
	"orderflow/internal/database"
	"orderflow/internal/events"
	"orderflow/internal/handler"
	"orderflow/internal/inventory"
	"orderflow/internal/repository"
	"orderflow/internal/router"
	"orderflow/internal/service"
	"orderflow/internal/telemetry"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting orderflow API server")

	// Application lifecycle ends on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	orderCache, err := newCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer orderCache.Close()

	publisher := newPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	archiver, err := newArchiver(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)

	ledger := inventory.NewLedger(productRepo, inventory.Policy{AllowOversell: cfg.Inventory.AllowOversell}, logger)
	if cfg.Inventory.AllowOversell {
		logger.Warn().Msg("oversell allowed: stock will be clamped at zero instead of rejecting orders")
	}

	// Initialize services
	productService := service.NewProductService(productRepo, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Orders:    orderRepo,
		Products:  productRepo,
		Ledger:    ledger,
		Cache:     orderCache,
		Publisher: publisher,
		Archiver:  archiver,
	}, cfg.Order.DefaultCurrency, logger)

	// Initialize HTTP handlers and router
	mux := router.New(router.Config{
		Products: handler.NewProductHandler(productService, logger),
		Orders:   handler.NewOrderHandler(orderService, logger),
		Database: pool,
		APIKey:   cfg.Auth.APIKey,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
		return nil
	})

	return g.Wait()
}

// newCache builds the order read cache selected by configuration.
func newCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (cache.Cache, error) {
	switch cfg.Driver {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL, "orderflow:", cfg.TTL)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("using redis order cache")
		return c, nil
	case "none":
		logger.Info().Msg("order cache disabled")
		return cache.NewNop(), nil
	default:
		logger.Info().Int("capacity", cfg.Capacity).Dur("ttl", cfg.TTL).Msg("using in-memory order cache")
		return cache.NewLRUCache(cfg.Capacity, cfg.TTL), nil
	}
}

// newPublisher returns a Kafka publisher when brokers are configured.
func newPublisher(cfg config.KafkaConfig, logger zerolog.Logger) events.Publisher {
	if !cfg.Enabled() {
		logger.Info().Msg("no kafka brokers configured, lifecycle events disabled")
		return events.NewNopPublisher()
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("publishing lifecycle events to kafka")
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, logger)
}

// newArchiver writes deleted-order snapshots to S3 when enabled, falling
// back to the local archive directory.
func newArchiver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (archive.Archiver, error) {
	fileArchiver, err := archive.NewFileArchiver(cfg.Archive.Dir, logger)
	if err != nil {
		return nil, err
	}

	if !cfg.S3.Enabled {
		logger.Info().Str("dir", cfg.Archive.Dir).Msg("using local file system for order archive (S3 disabled)")
		return fileArchiver, nil
	}

	s3Archiver, err := archive.NewS3Archiver(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix, logger)
	if err != nil {
		logger.Warn().
			Err(err).
			Msg("failed to initialise S3 archiver, falling back to local file system only")
		return fileArchiver, nil
	}

	return archive.NewFallbackArchiver(s3Archiver, fileArchiver, logger), nil
}
