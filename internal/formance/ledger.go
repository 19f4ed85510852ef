package formance

import (
	"context"
	"fmt"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// numscriptBalanceCredit moves a settled payout from the escrow payouts
// account onto the user's account. All metadata is set inside the script via
// set_tx_meta() so the transaction is fully self-describing.
const numscriptBalanceCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $external_tx_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @escrow:payouts allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "balance_credit")
set_tx_meta("external_tx_id", $external_tx_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

// CreditBalance posts one credit transaction. The external transaction id is
// the Formance reference, so a duplicate credit is rejected by the ledger
// itself and surfaces as ErrDuplicateTransaction.
func (s *Service) CreditBalance(ctx context.Context, userId string, amount decimal.Decimal, externalTxId, reference string) error {
	if externalTxId == "" {
		return fmt.Errorf("external transaction id is required")
	}

	fAsset := formanceAsset(s.asset)
	smallAmt := amount.Shift(int32(precisionFor(s.asset))).BigInt().String()

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(externalTxId),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptBalanceCredit,
				Vars: map[string]string{
					"asset":          fAsset,
					"amount":         smallAmt,
					"user_id":        userId,
					"external_tx_id": externalTxId,
					"reference":      reference,
					"amount_human":   amount.String(),
				},
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Warn("Duplicate balance credit detected, skipping",
				zap.String("external_tx_id", externalTxId))
			return fmt.Errorf("%w: external_tx_id %s already credited", store.ErrDuplicateTransaction, externalTxId)
		}
		return fmt.Errorf("error recording balance credit: %w", err)
	}

	zap.L().Info("Balance credited in Formance",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("external_tx_id", externalTxId))
	return nil
}

// GetBalanceEntries lists the most recent credits onto the user's account.
func (s *Service) GetBalanceEntries(ctx context.Context, userId string, limit int) ([]models.BalanceEntry, error) {
	pageSize := int64(limit)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{"destination": "users:" + userId},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}

	var entries []models.BalanceEntry
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		ref := ""
		if tx.Reference != nil {
			ref = *tx.Reference
		}
		entries = append(entries, models.BalanceEntry{
			Id:           ref,
			UserId:       userId,
			Amount:       entryAmount(tx, s.asset),
			ExternalTxId: tx.Metadata["external_tx_id"],
			Reference:    tx.Metadata["reference"],
			CreatedAt:    tx.Timestamp,
		})
	}
	return entries, nil
}

// entryAmount prefers the human-readable metadata amount and falls back to
// the first posting.
func entryAmount(tx shared.V2Transaction, asset string) decimal.Decimal {
	if human := tx.Metadata["amount_human"]; human != "" {
		if amt, err := decimal.NewFromString(human); err == nil {
			return amt
		}
	}
	if len(tx.Postings) > 0 {
		return bigIntToDecimal(tx.Postings[0].Amount, asset)
	}
	return decimal.Zero
}

func strPtr(s string) *string { return &s }
