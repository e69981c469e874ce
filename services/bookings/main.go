package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/buildhub/pkg/cache"
	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
	mw "github.com/diagnosis/buildhub/pkg/middleware"
	"github.com/diagnosis/buildhub/services/bookings/internal/handlers"
	"github.com/diagnosis/buildhub/services/bookings/internal/outbox"
	"github.com/diagnosis/buildhub/services/bookings/internal/repository"
	"github.com/diagnosis/buildhub/services/bookings/internal/service"
)

const (
	catalogCacheTTL     = 5 * time.Minute
	idempotencyInterval = time.Hour
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(pool); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// The catalog reads straight from Postgres when Redis is down
	var catalogCache service.Cache
	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, catalog cache disabled", "error", err)
	} else {
		defer rdb.Close()
		catalogCache = cache.NewJSON(rdb, "catalog", catalogCacheTTL)
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "bookings")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	bookingRepo := repository.NewBookingRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	// Initialize services
	var bookingOpts []service.Option
	if cfg.Bookings.RejectPastDates {
		bookingOpts = append(bookingOpts, service.RejectPastDates())
	}
	bookingService := service.NewBookingService(bookingRepo, catalogRepo, bookingOpts...)
	catalogService := service.NewCatalogService(catalogRepo, catalogCache)
	relay := outbox.NewRelay(outbox.NewPostgresStore(pool), eventBus, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	h := handlers.New(bookingService, catalogService, cfg.Auth.JWTSecret).WithRoleSource(database.NewRoleStore(pool))

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Recover)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics("bookings"))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Services.BookingsPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bookings service", "port", cfg.Services.BookingsPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		return service.RunIdempotencyJanitor(gctx, idempotencyRepo, idempotencyInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down bookings service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Bookings service error", "error", err)
		os.Exit(1)
	}
}
