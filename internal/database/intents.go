package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePayoutIntent persists the intent to move funds before any transfer is
// attempted. One intent per match: a second insert fails with
// ErrDuplicateTransaction and the caller reconciles against the existing one.
func (s *Service) CreatePayoutIntent(ctx context.Context, intent *models.PayoutIntent) error {
	_, err := s.db.ExecContext(ctx, queryInsertIntent,
		intent.Id, intent.MatchId, string(intent.Kind),
		intent.PayeeA, nullable(intent.PayeeB), intent.Amount.String(),
		intent.IdempotencyKey, intent.CreatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: intent for match %s already exists", store.ErrDuplicateTransaction, intent.MatchId)
		}
		return fmt.Errorf("failed to insert payout intent: %w", err)
	}

	zap.L().Info("Payout intent recorded",
		zap.String("intent_id", intent.Id),
		zap.String("match_id", intent.MatchId),
		zap.String("kind", string(intent.Kind)),
		zap.String("amount", intent.Amount.String()),
		zap.String("idempotency_key", intent.IdempotencyKey))
	return nil
}

func (s *Service) GetPayoutIntent(ctx context.Context, matchId string) (*models.PayoutIntent, error) {
	row := s.db.QueryRowContext(ctx, queryGetIntent, matchId)
	intent, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return intent, err
}

func (s *Service) SettlePayoutIntent(ctx context.Context, intentId, txRef string, settledAt time.Time) error {
	result, err := s.db.ExecContext(ctx, querySettleIntent, txRef, settledAt.UTC(), intentId)
	if err != nil {
		return fmt.Errorf("failed to settle intent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Already settled; settlement is idempotent.
		zap.L().Debug("Intent already settled", zap.String("intent_id", intentId))
	}
	return nil
}

func (s *Service) ListPendingIntents(ctx context.Context) ([]models.PayoutIntent, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingIntents)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var intents []models.PayoutIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent rows: %w", err)
	}
	return intents, nil
}

func scanIntent(row rowScanner) (*models.PayoutIntent, error) {
	var intent models.PayoutIntent
	var kind, state, amountStr string
	var payeeB, txRef sql.NullString
	var settledAt sql.NullTime

	err := row.Scan(&intent.Id, &intent.MatchId, &kind, &state,
		&intent.PayeeA, &payeeB, &amountStr, &intent.IdempotencyKey,
		&txRef, &intent.CreatedAt, &settledAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payout intent: %w", err)
	}

	intent.Kind = models.PayoutIntentKind(kind)
	intent.State = models.PayoutIntentState(state)
	intent.PayeeB = payeeB.String
	intent.TxRef = txRef.String
	if settledAt.Valid {
		intent.SettledAt = settledAt.Time
	}

	intent.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent amount '%s': %w", amountStr, err)
	}
	return &intent, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
