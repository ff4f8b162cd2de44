package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/bootstrap"
	"github.com/bryanwahyu/safeguard/internal/config"
	"github.com/bryanwahyu/safeguard/internal/infra/httpserver"
	"github.com/bryanwahyu/safeguard/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	app, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Deps{})
	if err != nil {
		return err
	}
	defer app.Close()

	checkers := map[string]middleware.HealthChecker{}
	if app.DB != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: app.DB}
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
		defer limiter.Close()
	}

	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(app.Orchestrator, app.AuditSource, httpserver.Options{
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Limiter:        limiter,
		Checkers:       checkers,
		Logger:         logger.Named("http"),
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr), zap.String("database", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx2)
}
