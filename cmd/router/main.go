package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/acd/internal/banner"
	"github.com/sebas/acd/internal/logger"
	"github.com/sebas/acd/internal/router/app"
	"github.com/sebas/acd/internal/router/config"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("ACD Call Router", []banner.ConfigLine{
		{Label: "ARI", Value: fmt.Sprintf("%s:%d (app %s)", cfg.ARIHost, cfg.ARIPort, cfg.AppName)},
		{Label: "Store", Value: fmt.Sprintf("%s:%d/%d", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)},
		{Label: "Admin API", Value: cfg.APIAddr},
		{Label: "Wrap-up", Value: cfg.WrapUp.String()},
		{Label: "Log level", Value: cfg.LogLevel},
	})

	// Create router
	router, err := app.NewRouter(cfg)
	if err != nil {
		slog.Error("Failed to create call router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	run(router)
}

func run(router *app.Router) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A dead event socket means the media server can no longer be
	// controlled; exit and let the supervisor restart the process.
	fatal := make(chan error, 1)
	go func() {
		if err := router.Start(ctx); err != nil {
			fatal <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
		cancel()
		time.Sleep(1 * time.Second)
	case err := <-fatal:
		slog.Error("Router stopped", "error", err)
		router.Close()
		os.Exit(1)
	}
}
