package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wager-escrow-go/internal/models"
)

func Load() (*models.Config, error) {
	matchTimeout, err := getEnvDuration("RESOLVER_MATCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	staleAfter, err := getEnvDuration("RESOLVER_STALE_AFTER", 48*time.Hour)
	if err != nil {
		return nil, err
	}

	sweeperInterval, err := getEnvDuration("PAYOUT_SWEEPER_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "matches.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Resolver: models.ResolverConfig{
			GamesFile:        getEnvString("GAMES_FILE", "games.yaml"),
			MatchTimeout:     matchTimeout,
			StaleAfter:       staleAfter,
			SweeperInterval:  sweeperInterval,
			MaxBackoffFactor: getEnvInt("RESOLVER_MAX_BACKOFF_FACTOR", 10),
		},
		Escrow: models.EscrowConfig{
			Asset:          getEnvString("ESCROW_ASSET", "USDC-base-mainnet"),
			EscrowWalletId: getEnvString("ESCROW_WALLET_ID", ""),
			FeeRate:        getEnvString("PLATFORM_FEE_RATE", "0.05"),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "wager-escrow"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
