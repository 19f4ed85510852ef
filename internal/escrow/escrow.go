package escrow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Typed failure kinds surfaced to callers at deposit/payout time.
var (
	ErrCancelledByUser   = errors.New("transfer cancelled by user")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotConnected      = errors.New("wallet not connected")
	ErrDepositNotFound   = errors.New("deposit not found in escrow wallet")
)

// Transfer is one confirmed movement of funds seen on the escrow wallet.
type Transfer struct {
	TxRef          string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Client is the contract the engine holds against the wallet/chain layer.
// Payouts are idempotent on the supplied key: re-submitting with the same key
// must not move funds twice, and FindTransfer makes a previously submitted
// payout discoverable after a crash.
type Client interface {
	// VerifyDeposit confirms that the referenced transfer landed in the
	// escrow wallet with at least the expected amount.
	VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) error

	// Payout sends amount to the payee address and returns the transaction
	// reference.
	Payout(ctx context.Context, payeeAddress string, amount decimal.Decimal, idempotencyKey string) (string, error)

	// SplitPayout sends half of amount to each payee and returns both
	// transaction references.
	SplitPayout(ctx context.Context, payeeA, payeeB string, amount decimal.Decimal, idempotencyKey string) ([]string, error)

	// FindTransfer looks for an outbound transfer previously submitted with
	// the idempotency key. Used by crash recovery before any retry.
	FindTransfer(ctx context.Context, idempotencyKey string) (*Transfer, bool, error)
}
