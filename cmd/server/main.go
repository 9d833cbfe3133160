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

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/cruxstack/email-verifier-go/internal/api"
	"github.com/cruxstack/email-verifier-go/internal/config"
	"github.com/cruxstack/email-verifier-go/internal/logging"
	"github.com/cruxstack/email-verifier-go/internal/maintenance"
	"github.com/cruxstack/email-verifier-go/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal("server exited", "error", err)
	}
}

func run() error {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(os.Stderr, cfg.AppLogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.NewService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer svc.Close()

	sweeper := maintenance.NewSweeper(svc, maintenance.WithSchedule(cfg.AppCacheSweepSchedule))
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	defer func() { <-sweeper.Stop().Done() }()

	server := &http.Server{
		Addr:              cfg.AppHTTPAddr,
		Handler:           api.NewRouter(api.NewHandlers(svc), cfg.AppHTTPCorsOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
