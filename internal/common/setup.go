package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"wager-escrow-go/internal/database"
	"wager-escrow-go/internal/escrow"
	"wager-escrow-go/internal/formance"
	"wager-escrow-go/internal/lifecycle"
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/payout"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/resolver"
	"wager-escrow-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services bundles the wired engine components the commands run against.
// Store is the backend every component reads and writes through; it is the
// relational service, optionally with balance bookkeeping routed to Formance.
type Services struct {
	DbService *database.Service
	Store     store.MatchStore
	Escrow    escrow.Client
	Registry  *provider.Registry
	Intervals map[models.GameType]time.Duration
	Lifecycle *lifecycle.Manager
	Payouts   *payout.Orchestrator
	Resolver  *resolver.Resolver
	Sweeper   *payout.Sweeper
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		dbService.Close()
		return nil, err
	}

	escrowClient, err := escrow.NewPrimeClient(creds, cfg.Escrow)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	games, err := LoadGameConfig(cfg.Resolver.GamesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	registry, intervals, err := BuildRegistry(games)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Game providers configured", zap.Int("count", len(games)))

	feeRate, err := decimal.NewFromString(cfg.Escrow.FeeRate)
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("invalid fee rate %q: %w", cfg.Escrow.FeeRate, err)
	}

	var matchStore store.MatchStore = dbService
	if cfg.Formance.StackURL != "" {
		symbol := strings.Split(cfg.Escrow.Asset, "-")[0]
		ledgerSvc, err := formance.NewService(ctx, cfg.Formance, symbol)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		matchStore = store.WithLedger(dbService, ledgerSvc)
		zap.L().Info("Balance bookkeeping delegated to Formance ledger",
			zap.String("ledger", cfg.Formance.LedgerName))
	}

	manager := lifecycle.NewManager(matchStore, registry)
	orchestrator := payout.NewOrchestrator(matchStore, escrowClient, feeRate)

	return &Services{
		DbService: dbService,
		Store:     matchStore,
		Escrow:    escrowClient,
		Registry:  registry,
		Intervals: intervals,
		Lifecycle: manager,
		Payouts:   orchestrator,
		Resolver:  resolver.New(matchStore, registry, manager, orchestrator, cfg.Resolver, intervals),
		Sweeper:   payout.NewSweeper(matchStore, orchestrator, cfg.Resolver.StaleAfter),
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like listing open matches.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
