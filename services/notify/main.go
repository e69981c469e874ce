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

	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
	mw "github.com/diagnosis/buildhub/pkg/middleware"
	"github.com/diagnosis/buildhub/services/notify/internal/consumer"
	"github.com/diagnosis/buildhub/services/notify/internal/handlers"
	"github.com/diagnosis/buildhub/services/notify/internal/hub"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Roles are read from the auth schema; the auth service owns migrations.
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	liveHub := hub.New()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	if err := consumer.New(liveHub).Subscribe(eventBus); err != nil {
		logger.Error("Failed to subscribe to events", "error", err)
		os.Exit(1)
	}

	h := handlers.New(liveHub, cfg.Auth.JWTSecret, cfg.Services.CORSOrigins).
		WithRoleSource(database.NewRoleStore(pool))

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Recover)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics("notify"))
	h.Routes(r)

	// No write timeout: WebSocket connections are long lived and the
	// pumps set their own deadlines.
	srv := &http.Server{
		Addr:        ":" + cfg.Services.NotifyPort,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting notify service", "port", cfg.Services.NotifyPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		liveHub.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
