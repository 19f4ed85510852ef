package main

import (
	"context"
	"flag"
	"time"

	"wager-escrow-go/internal/common"
	"wager-escrow-go/internal/config"
	"wager-escrow-go/internal/models"

	"go.uber.org/zap"
)

// One-shot resolution pass, mostly for operators debugging a stuck match.
func main() {
	gameType := flag.String("game", "", "Game type to check now (empty = all configured games)")
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

	var games []models.GameType
	if *gameType != "" {
		games = []models.GameType{models.GameType(*gameType)}
	} else {
		games = services.Registry.GameTypes()
	}

	for _, gt := range games {
		zap.L().Info("Running resolution pass", zap.String("game_type", string(gt)))
		if err := services.Resolver.CheckNow(ctx, gt); err != nil {
			zap.L().Error("Resolution pass failed",
				zap.String("game_type", string(gt)),
				zap.Error(err))
		}
	}
	services.Resolver.Stop()
}
