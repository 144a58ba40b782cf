package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/bootstrap"
	"zenyx/internal/bot"
	"zenyx/internal/config"
	cronpkg "zenyx/internal/cron"
	"zenyx/internal/handler"
	"zenyx/internal/handler/api"
	"zenyx/internal/middleware"
	"zenyx/internal/pkg/logger"
	"zenyx/internal/router"
)

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, "zenyx")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if hasArg("--migrate") {
		if err := runMigrate(cfg, log); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		return
	}

	// --- Store ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := bootstrap.OpenStore(startCtx, cfg, log)
	if err != nil {
		cancelStart()
		log.Fatal("Failed to open store", zap.Error(err))
	}
	services := bootstrap.NewServices(cfg, backend.KV, log)

	// --- Root bot ---
	botDeps := bot.Deps{
		Users:    services.Users,
		Bots:     services.Bots,
		States:   services.States,
		Payments: services.Payments,
		Fleet:    services.Registry,
		Wallet:   services.Wallet,
	}
	rootBot, err := bot.New(cfg, botDeps, log)
	if err != nil {
		cancelStart()
		log.Fatal("Failed to create bot", zap.Error(err))
	}
	services.Wallet.SetNotifier(rootBot.Messenger())
	stats := func(ctx context.Context) (*bot.Stats, error) {
		return bot.CollectStats(ctx, botDeps)
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, api.Deps{
		Users:    services.Users,
		Bots:     services.Bots,
		Payments: services.Payments,
		Fleet:    services.Registry,
		Checkout: services.Checkout,
		Wallet:   services.Wallet,
		Stats:    stats,
	}, router.Options{
		APIKey:    cfg.API.Key,
		Deduper:   middleware.NewDeduper(backend.Redis, cfg.Store.Prefix, 10*time.Minute),
		Webhook:   rootBot.WebhookHandler(),
		PushinPay: handler.NewPushinPayHandler(services.Checkout, services.Bots, services.Payments, log),
	}, log)

	// --- Child bots ---
	started := services.Registry.StartAll(startCtx)
	cancelStart()
	log.Info("Child bots started", zap.Int("count", started))

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cronpkg.Jobs{
		Codes:    services.Linking,
		Payments: services.Checkout,
		VIP:      services.Wallet,
		Fleet:    services.Registry,
		Store:    backend.Sweeper,
		Stats:    stats,
		Notifier: rootBot.Messenger(),
		AdminIDs: cfg.Bot.AdminIDs,
	}, log)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Info("Starting Zenyx server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			log.Info("Server stopped", zap.Error(err))
		}
	}()

	go rootBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	rootBot.Stop()
	services.Registry.StopAll()

	<-scheduler.Stop().Done()
	services.Checkout.Watcher().Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := backend.KV.Close(); err != nil {
		log.Warn("Failed to close store", zap.Error(err))
	}
	log.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runMigrate(cfg *config.Config, log *zap.Logger) error {
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	log.Info("Schema migration completed")
	return nil
}
