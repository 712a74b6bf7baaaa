package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"signal-trader/internal/api"
	"signal-trader/internal/bot"
	"signal-trader/internal/engine"
	"signal-trader/internal/events"
	"signal-trader/internal/executor"
	"signal-trader/internal/position"
	"signal-trader/internal/reconcile"
	"signal-trader/pkg/config"
	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
	"signal-trader/pkg/venue/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MAIN] config load failed: %v", err)
	}
	log.Printf("[MAIN] starting signal-trader on :%s (testnet=%v)", cfg.Port, cfg.BinanceTestnet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	go events.LogSink(ctx, bus)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[MAIN] database init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[MAIN] database migrations failed: %v", err)
	}

	if err := bot.Seed(ctx, database, cfg.BotsConfigPath); err != nil {
		log.Fatalf("[MAIN] bot seed failed: %v", err)
	}

	client := binance.New(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	client.StartTimeSync(ctx)

	exec := executor.New(client)
	if cfg.DefaultSideEffect != "" {
		exec.DefaultSideEffect = venue.SideEffect(cfg.DefaultSideEffect)
	}
	positions := position.NewManager(database, exec, bus)
	if cfg.CloseAllRate > 0 {
		positions.CloseAllLimiter = rate.NewLimiter(rate.Limit(cfg.CloseAllRate), 1)
	}

	eng := engine.New(database, client, positions, bus)

	reconciler := reconcile.New(database, client, bus, cfg.ReconcileInterval, cfg.ReconcileGrace)
	go reconciler.Run(ctx)

	server := api.NewServer(eng, database, bus, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + cfg.Port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[MAIN] received %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("[MAIN] http server stopped: %v", err)
	}

	cancel()
	// Give in-flight requests and the reconciler a moment to wind down.
	time.Sleep(500 * time.Millisecond)
	log.Println("[MAIN] shutdown complete")
}
