// Package payout moves escrowed funds exactly once per match. Every transfer
// is preceded by a persisted intent carrying an idempotency key, so a crash
// between transfer and bookkeeping is reconciled against the chain instead of
// paying twice.
package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wager-escrow-go/internal/escrow"
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Orchestrator settles finished matches and refunds cancelled ones.
type Orchestrator struct {
	store   store.MatchStore
	client  escrow.Client
	feeRate decimal.Decimal
}

func NewOrchestrator(st store.MatchStore, client escrow.Client, feeRate decimal.Decimal) *Orchestrator {
	return &Orchestrator{store: st, client: client, feeRate: feeRate}
}

// Payout settles a finished match. It is safe to call any number of times:
// a non-empty payout_tx_hash short-circuits, and the transfer itself is
// guarded by the intent's idempotency key.
func (o *Orchestrator) Payout(ctx context.Context, matchId string) error {
	match, err := o.store.GetMatch(ctx, matchId)
	if err != nil {
		return err
	}
	if match.PayoutTxHash != "" {
		return nil
	}
	if match.Status != models.StatusFinished {
		return store.ErrMatchNotFinished
	}

	creator, err := o.store.GetUserById(ctx, match.CreatorId)
	if err != nil {
		return err
	}
	joiner, err := o.store.GetUserById(ctx, match.JoinerId)
	if err != nil {
		return err
	}

	amount := match.Pot().Mul(decimal.NewFromInt(1).Sub(o.feeRate))

	intent := &models.PayoutIntent{
		Id:             uuid.New().String(),
		MatchId:        match.Id,
		Kind:           models.IntentPayout,
		State:          models.IntentPending,
		Amount:         amount,
		IdempotencyKey: "payout-" + match.Id,
		CreatedAt:      time.Now().UTC(),
	}
	switch match.Winner {
	case models.WinnerCreator:
		if !creator.HasWallet() {
			return store.ErrWalletMissing
		}
		intent.PayeeA = creator.WalletAddress
	case models.WinnerJoiner:
		if !joiner.HasWallet() {
			return store.ErrWalletMissing
		}
		intent.PayeeA = joiner.WalletAddress
	case models.WinnerDraw:
		if !creator.HasWallet() || !joiner.HasWallet() {
			return store.ErrWalletMissing
		}
		intent.PayeeA = creator.WalletAddress
		intent.PayeeB = joiner.WalletAddress
	default:
		return fmt.Errorf("finished match %s has no winner", match.Id)
	}

	intent, err = o.ensureIntent(ctx, intent)
	if err != nil {
		return err
	}

	txRef, err := o.execute(ctx, intent)
	if err != nil {
		return err
	}

	return o.settle(ctx, match, intent, txRef)
}

// Refund returns the creator's locked deposit after a cancellation. No fee
// is taken.
func (o *Orchestrator) Refund(ctx context.Context, matchId string) error {
	match, err := o.store.GetMatch(ctx, matchId)
	if err != nil {
		return err
	}
	if match.PayoutTxHash != "" {
		return nil
	}
	if match.Status != models.StatusCancelled {
		return fmt.Errorf("match %s is not cancelled", match.Id)
	}

	creator, err := o.store.GetUserById(ctx, match.CreatorId)
	if err != nil {
		return err
	}
	if !creator.HasWallet() {
		return store.ErrWalletMissing
	}

	intent := &models.PayoutIntent{
		Id:             uuid.New().String(),
		MatchId:        match.Id,
		Kind:           models.IntentRefund,
		State:          models.IntentPending,
		PayeeA:         creator.WalletAddress,
		Amount:         match.SideStake(),
		IdempotencyKey: "refund-" + match.Id,
		CreatedAt:      time.Now().UTC(),
	}
	intent, err = o.ensureIntent(ctx, intent)
	if err != nil {
		return err
	}

	txRef, err := o.execute(ctx, intent)
	if err != nil {
		return err
	}
	return o.settle(ctx, match, intent, txRef)
}

// ensureIntent persists the intent or adopts the one a previous attempt
// already wrote.
func (o *Orchestrator) ensureIntent(ctx context.Context, intent *models.PayoutIntent) (*models.PayoutIntent, error) {
	existing, err := o.store.GetPayoutIntent(ctx, intent.MatchId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := o.store.CreatePayoutIntent(ctx, intent); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return o.store.GetPayoutIntent(ctx, intent.MatchId)
		}
		return nil, err
	}
	return intent, nil
}

// execute performs the transfer unless the chain shows it already happened.
func (o *Orchestrator) execute(ctx context.Context, intent *models.PayoutIntent) (string, error) {
	if intent.State == models.IntentSettled {
		return intent.TxRef, nil
	}

	if intent.PayeeB != "" {
		return o.executeSplit(ctx, intent)
	}

	transfer, found, err := o.client.FindTransfer(ctx, intent.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("failed to reconcile intent %s: %w", intent.Id, err)
	}
	if found {
		zap.L().Info("Transfer already on chain, skipping resend",
			zap.String("match_id", intent.MatchId),
			zap.String("tx_ref", transfer.TxRef))
		return transfer.TxRef, nil
	}

	txRef, err := o.client.Payout(ctx, intent.PayeeA, intent.Amount, intent.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("payout failed for match %s: %w", intent.MatchId, err)
	}
	return txRef, nil
}

// executeSplit handles the two-payee draw case. Split legs go out under
// derived keys, so reconciliation looks each leg up under its own key. When
// only one leg landed before a crash, the resend replays both and the
// transfer layer's per-leg idempotency drops the duplicate.
func (o *Orchestrator) executeSplit(ctx context.Context, intent *models.PayoutIntent) (string, error) {
	legA, foundA, err := o.client.FindTransfer(ctx, intent.IdempotencyKey+"-a")
	if err != nil {
		return "", fmt.Errorf("failed to reconcile intent %s: %w", intent.Id, err)
	}
	legB, foundB, err := o.client.FindTransfer(ctx, intent.IdempotencyKey+"-b")
	if err != nil {
		return "", fmt.Errorf("failed to reconcile intent %s: %w", intent.Id, err)
	}
	if foundA && foundB {
		zap.L().Info("Split transfer already on chain, skipping resend",
			zap.String("match_id", intent.MatchId),
			zap.String("tx_refs", legA.TxRef+"+"+legB.TxRef))
		return legA.TxRef + "+" + legB.TxRef, nil
	}

	refs, err := o.client.SplitPayout(ctx, intent.PayeeA, intent.PayeeB, intent.Amount, intent.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("split payout failed for match %s: %w", intent.MatchId, err)
	}
	return strings.Join(refs, "+"), nil
}

// settle records the transaction hash, marks the intent settled and credits
// the payees' tracked balances. Each step is idempotent, so re-running after
// a partial failure converges.
func (o *Orchestrator) settle(ctx context.Context, match *models.Match, intent *models.PayoutIntent, txRef string) error {
	set, err := o.store.SetPayoutTx(ctx, match.Id, txRef)
	if err != nil {
		return err
	}
	if !set {
		zap.L().Debug("Payout hash already recorded", zap.String("match_id", match.Id))
	}

	if err := o.store.SettlePayoutIntent(ctx, intent.Id, txRef, time.Now().UTC()); err != nil {
		return err
	}

	if err := o.credit(ctx, match, intent, txRef); err != nil {
		return err
	}

	zap.L().Info("Match settled",
		zap.String("match_id", match.Id),
		zap.String("kind", string(intent.Kind)),
		zap.String("amount", intent.Amount.String()),
		zap.String("tx_ref", txRef))
	return nil
}

func (o *Orchestrator) credit(ctx context.Context, match *models.Match, intent *models.PayoutIntent, txRef string) error {
	type leg struct {
		userId string
		amount decimal.Decimal
		txId   string
	}
	var legs []leg

	switch {
	case intent.Kind == models.IntentRefund:
		legs = []leg{{match.CreatorId, intent.Amount, txRef}}
	case match.Winner == models.WinnerCreator:
		legs = []leg{{match.CreatorId, intent.Amount, txRef}}
	case match.Winner == models.WinnerJoiner:
		legs = []leg{{match.JoinerId, intent.Amount, txRef}}
	case match.Winner == models.WinnerDraw:
		half := intent.Amount.Div(decimal.NewFromInt(2))
		legs = []leg{
			{match.CreatorId, half, txRef + "-creator"},
			{match.JoinerId, half, txRef + "-joiner"},
		}
	}

	reference := fmt.Sprintf("%s for match %s", intent.Kind, match.Id)
	for _, l := range legs {
		err := o.store.CreditBalance(ctx, l.userId, l.amount, l.txId, reference)
		if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
			return err
		}
	}
	return nil
}
