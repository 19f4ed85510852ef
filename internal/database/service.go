package database

import (
	"context"
	"database/sql"
	"fmt"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.MatchStore.
var _ store.MatchStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Match store initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an existing connection. Used by tests with an
// in-memory database.
func NewServiceWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		wallet_address TEXT UNIQUE,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		game_type TEXT NOT NULL,
		status TEXT NOT NULL,
		creator_id TEXT NOT NULL REFERENCES users(id),
		joiner_id TEXT REFERENCES users(id),
		wager TEXT NOT NULL,
		winner TEXT,
		creator_escrow_tx TEXT NOT NULL,
		joiner_escrow_tx TEXT,
		payout_tx_hash TEXT,
		creator_fields TEXT NOT NULL,
		joiner_fields TEXT,
		creator_before TEXT,
		creator_after TEXT,
		joiner_before TEXT,
		joiner_after TEXT,
		check_attempts INTEGER NOT NULL DEFAULT 0,
		next_check_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_matches_status_game ON matches(status, game_type);
	CREATE INDEX IF NOT EXISTS idx_matches_creator ON matches(creator_id);

	CREATE TABLE IF NOT EXISTS match_status_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL REFERENCES matches(id),
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		winner TEXT,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_recorded_at ON match_status_history(recorded_at);

	CREATE TABLE IF NOT EXISTS balance_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		external_tx_id TEXT NOT NULL UNIQUE,
		reference TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_user ON balance_ledger(user_id, created_at);

	CREATE TABLE IF NOT EXISTS payout_intents (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL UNIQUE REFERENCES matches(id),
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		payee_a TEXT NOT NULL,
		payee_b TEXT,
		amount TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		tx_ref TEXT,
		created_at TIMESTAMP NOT NULL,
		settled_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_intents_state ON payout_intents(state);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
