package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wager-escrow-go/internal/common"
	"wager-escrow-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting match resolution engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Resolver.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start resolver", zap.Error(err))
	}

	go services.Sweeper.Run(ctx, cfg.Resolver.SweeperInterval)

	zap.L().Info("Engine running",
		zap.Int("game_types", len(services.Intervals)),
		zap.Duration("sweeper_interval", cfg.Resolver.SweeperInterval))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		services.Resolver.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Resolver stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
