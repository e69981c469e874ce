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
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/logger"
	mw "github.com/diagnosis/buildhub/pkg/middleware"
	"github.com/diagnosis/buildhub/services/gateway/internal/handlers"
	"github.com/diagnosis/buildhub/services/gateway/internal/proxy"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authProxy := proxy.NewServiceProxy("auth", cfg.Services.AuthURL)
	bookingsProxy := proxy.NewServiceProxy("bookings", cfg.Services.BookingsURL)
	wsProxy, err := proxy.NewWebSocketProxy(cfg.Services.NotifyURL, "/ws")
	if err != nil {
		logger.Error("Invalid notify service URL", "error", err)
		os.Exit(1)
	}

	h := handlers.New(authProxy, bookingsProxy, wsProxy, cfg.Auth.JWTSecret)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Recover)
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Services.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Use(mw.Metrics("gateway"))
	h.Routes(r)

	// No write timeout so proxied WebSocket connections survive; upstream
	// calls are bounded by the proxy client timeout.
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gateway service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gateway service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}
