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
	"github.com/diagnosis/buildhub/services/auth/internal/handlers"
	"github.com/diagnosis/buildhub/services/auth/internal/mailer"
	"github.com/diagnosis/buildhub/services/auth/internal/repository"
	"github.com/diagnosis/buildhub/services/auth/internal/service"
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

	// Redis backs the rate limiter; without it requests are not limited
	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, auth rate limiting disabled", "error", err)
	} else {
		defer rdb.Close()
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "auth")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	codeRepo := repository.NewCodeRepository(pool)

	// Initialize services
	mail := mailer.New(cfg.Email)
	authService := service.NewAuthService(userRepo, codeRepo, mail, eventBus, cfg.Auth)
	passwordService := service.NewPasswordService(userRepo, codeRepo, mail, cfg.Auth)

	h := handlers.New(authService, passwordService, cfg).WithRoleSource(database.NewRoleStore(pool))

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Recover)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics("auth"))
	h.Routes(r, rdb)

	srv := &http.Server{
		Addr:         ":" + cfg.Services.AuthPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting auth service", "port", cfg.Services.AuthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}
