// Command childbot runs seller bots without the root bot or the HTTP API.
// With a token argument it runs only that bot; otherwise every active bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zenyx/internal/bootstrap"
	"zenyx/internal/config"
	"zenyx/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, "zenyx-childbot")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal("Failed to open store", zap.Error(err))
	}
	services := bootstrap.NewServices(cfg, backend.KV, log)

	if token := tokenArg(); token != "" {
		h, err := services.Registry.Start(ctx, token)
		if err != nil {
			cancel()
			log.Fatal("Failed to start bot", zap.Error(err))
		}
		log.Info("Bot started", zap.String("username", h.Username))
	} else {
		n := services.Registry.StartAll(ctx)
		log.Info("Child bots started", zap.Int("count", n))
	}
	if n, err := services.Checkout.ResumePending(ctx); err != nil {
		log.Warn("Failed to resume pending payments", zap.Error(err))
	} else if n > 0 {
		log.Info("Payment watchers resumed", zap.Int("count", n))
	}
	cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	services.Registry.StopAll()
	services.Checkout.Watcher().Stop()
	if err := backend.KV.Close(); err != nil {
		log.Warn("Failed to close store", zap.Error(err))
	}
}

func tokenArg() string {
	for _, arg := range os.Args[1:] {
		if !strings.HasPrefix(arg, "-") {
			return strings.TrimSpace(arg)
		}
	}
	return ""
}
