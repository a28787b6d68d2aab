package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/server"
	"github.com/aabbtree77/headless/internal/settings"
	"github.com/aabbtree77/headless/internal/store"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", envOrDefault("HEADLESS_CONFIG", "config.toml"), "path to config.toml or config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stderr, cfg.Log.Format, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("headlessd stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("headlessd stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil && !errors.Is(err, store.ErrNoChange) {
		return err
	}

	activated, err := settings.Activate(ctx, store.NewOptionRepo(db))
	if err != nil {
		return fmt.Errorf("activate settings: %w", err)
	}
	if activated {
		logger.Info("headless mode activated with default settings",
			"settings_url", settingsURL(cfg),
		)
	}

	logger.Info("headlessd booting",
		"addr", cfg.Addr,
		"driver", cfg.Storage.Driver,
		"on_missing_settings", cfg.Gate.OnMissingSettings,
		"preview_bypass", cfg.Bypass.PreviewToken != "",
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(db, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received; draining server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func settingsURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return cfg.Routes.AdminPrefix + "/settings"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + cfg.Routes.AdminPrefix + "/settings"
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
