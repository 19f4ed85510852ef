package store

import (
	"context"
	"errors"
	"time"

	"wager-escrow-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchNotJoinable     = errors.New("match is not joinable")
	ErrSelfJoin             = errors.New("cannot join your own match")
	ErrInvalidWager         = errors.New("wager must be positive")
	ErrNotPlaying           = errors.New("match is not in playing state")
	ErrMatchNotFinished     = errors.New("match is not finished")
	ErrNotCancellable       = errors.New("match can no longer be cancelled")
	ErrWalletMissing        = errors.New("participant has no bound wallet")
	ErrWalletBound          = errors.New("wallet address is already bound")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// JoinParams carries everything AttachJoiner needs to move a match from
// WAITING to PLAYING in one atomic write.
type JoinParams struct {
	MatchId       string
	JoinerId      string
	JoinerFields  []byte
	JoinerEscrow  string
	CreatorBefore *models.Snapshot // nil for head-to-head games
	JoinerBefore  *models.Snapshot
	StartedAt     time.Time
}

// BalanceLedger is the balance bookkeeping portion of MatchStore, split out
// so an external ledger can keep the books while match state stays local.
type BalanceLedger interface {
	// CreditBalance records a credit against the user's balance. The
	// external transaction id is the idempotency key: crediting it twice
	// fails with ErrDuplicateTransaction before any balance change.
	CreditBalance(ctx context.Context, userId string, amount decimal.Decimal, externalTxId, reference string) error
	GetBalanceEntries(ctx context.Context, userId string, limit int) ([]models.BalanceEntry, error)
}

// MatchStore defines the transactional contract the engine depends on.
// Status transitions and the payout hash are compare-and-swap writes: a
// caller that loses a race observes the same result as a no-op.
type MatchStore interface {
	BalanceLedger

	// --- Users ---
	GetOrCreateUser(ctx context.Context, username string) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	// BindWallet sets the wallet on first escrow participation; rebinding the
	// same address is a no-op, a different address fails with ErrWalletBound.
	BindWallet(ctx context.Context, userId, walletAddress string) error

	// --- Matches ---
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, matchId string) (*models.Match, error)
	ListOpenMatches(ctx context.Context, gt models.GameType) ([]models.Match, error)
	// ListDuePlayingMatches returns PLAYING matches of the game type whose
	// next_check_at is at or before now.
	ListDuePlayingMatches(ctx context.Context, gt models.GameType, now time.Time) ([]models.Match, error)
	ListUnpaidFinished(ctx context.Context) ([]models.Match, error)

	// AttachJoiner is the WAITING -> PLAYING transition (conditional write).
	AttachJoiner(ctx context.Context, params JoinParams) error
	// FinishMatch is the PLAYING -> FINISHED transition. A match already
	// FINISHED is a no-op (first writer wins); any other state fails with
	// ErrNotPlaying.
	FinishMatch(ctx context.Context, matchId string, winner models.Winner, finishedAt time.Time) error
	// CancelMatch is the WAITING -> CANCELLED transition.
	CancelMatch(ctx context.Context, matchId string) error
	// SetPayoutTx sets payout_tx_hash iff it is still unset. Returns false
	// without error when another writer already set it.
	SetPayoutTx(ctx context.Context, matchId, txHash string) (bool, error)

	UpdateAfterSnapshots(ctx context.Context, matchId string, creatorAfter, joinerAfter *models.Snapshot) error
	UpdateCheckState(ctx context.Context, matchId string, attempts int, nextCheckAt time.Time) error

	// --- Status history ---
	ListStatusChangesSince(ctx context.Context, since time.Time) ([]models.StatusChange, error)

	// --- Payout intents ---
	// CreatePayoutIntent fails with ErrDuplicateTransaction when an intent
	// already exists for the match.
	CreatePayoutIntent(ctx context.Context, intent *models.PayoutIntent) error
	GetPayoutIntent(ctx context.Context, matchId string) (*models.PayoutIntent, error)
	SettlePayoutIntent(ctx context.Context, intentId, txRef string, settledAt time.Time) error
	ListPendingIntents(ctx context.Context) ([]models.PayoutIntent, error)

	// --- Lifecycle ---
	Close()
}
