package store

import (
	"context"

	"wager-escrow-go/internal/models"

	"github.com/shopspring/decimal"
)

// WithLedger returns a MatchStore that keeps match state in base but routes
// balance bookkeeping to ledger. Selected at wiring time when an external
// ledger backend is configured.
func WithLedger(base MatchStore, ledger BalanceLedger) MatchStore {
	return &ledgerOverride{MatchStore: base, ledger: ledger}
}

type ledgerOverride struct {
	MatchStore
	ledger BalanceLedger
}

func (s *ledgerOverride) CreditBalance(ctx context.Context, userId string, amount decimal.Decimal, externalTxId, reference string) error {
	return s.ledger.CreditBalance(ctx, userId, amount, externalTxId, reference)
}

func (s *ledgerOverride) GetBalanceEntries(ctx context.Context, userId string, limit int) ([]models.BalanceEntry, error) {
	return s.ledger.GetBalanceEntries(ctx, userId, limit)
}
