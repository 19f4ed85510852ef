package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Resolver ResolverConfig
	Escrow   EscrowConfig
	Formance FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ResolverConfig holds resolution scheduler settings.
type ResolverConfig struct {
	GamesFile        string        // per-game poll intervals and provider endpoints
	MatchTimeout     time.Duration // per-match adapter call budget
	StaleAfter       time.Duration // warn about matches unresolved this long
	SweeperInterval  time.Duration // payout reconciliation pass
	MaxBackoffFactor int           // backoff cap as a multiple of the poll interval
}

// EscrowConfig holds escrow wallet settings for the Prime-backed transfer
// client.
type EscrowConfig struct {
	Asset          string // e.g. USDC-base-mainnet
	EscrowWalletId string // Prime wallet holding the pot
	FeeRate        string // platform fee rate, decimal string
}

// FormanceConfig holds the optional external ledger connection. When
// StackURL is empty the relational store keeps the books itself.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// GameConfig is one entry from games.yaml: where a game's authoritative data
// lives and how often its PLAYING matches are re-checked. PollInterval is a
// duration string ("30s", "5m").
type GameConfig struct {
	Game         GameType `yaml:"game"`
	PollInterval string   `yaml:"poll_interval"`
	BaseURL      string   `yaml:"base_url"`
	APIKeyEnv    string   `yaml:"api_key_env"` // env var name holding the key
}
