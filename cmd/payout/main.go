package main

import (
	"context"
	"flag"
	"time"

	"wager-escrow-go/internal/common"
	"wager-escrow-go/internal/config"

	"go.uber.org/zap"
)

// Manual settlement: retry one match's payout or run a full recovery sweep.
func main() {
	matchId := flag.String("match", "", "Match id to settle (empty = sweep everything pending)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *matchId != "" {
		if err := services.Payouts.Payout(ctx, *matchId); err != nil {
			zap.L().Fatal("Failed to settle match",
				zap.String("match_id", *matchId),
				zap.Error(err))
		}
		zap.L().Info("Match settled", zap.String("match_id", *matchId))
		return
	}

	zap.L().Info("Running payout recovery sweep")
	services.Sweeper.Sweep(ctx)
}
