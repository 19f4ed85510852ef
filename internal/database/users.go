package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetOrCreateUser resolves a username to a user, creating the row on first
// participation.
func (s *Service) GetOrCreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryInsertUser, uuid.New().String(), username, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		zap.L().Info("Created user", zap.String("username", username))
	}

	return s.getUserByUsername(ctx, username)
}

func (s *Service) getUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, queryGetUserByUsername, username)
	return scanUser(row)
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, queryGetUserById, userId)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	return user, err
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var wallet sql.NullString
	var balanceStr string

	err := row.Scan(&user.Id, &user.Username, &wallet, &balanceStr, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.WalletAddress = wallet.String
	user.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return &user, nil
}

// BindWallet binds a wallet address to the user on first escrow
// participation. The conditional update makes the binding immutable:
// rebinding the same address is a no-op, a different one fails.
func (s *Service) BindWallet(ctx context.Context, userId, walletAddress string) error {
	if walletAddress == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, queryBindWallet, walletAddress, time.Now().UTC(), userId, walletAddress)
	if err != nil {
		// A UNIQUE violation on wallet_address means the wallet belongs to
		// another user.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrWalletBound
		}
		return fmt.Errorf("failed to bind wallet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetUserById(ctx, userId); err != nil {
			return err
		}
		return store.ErrWalletBound
	}
	return nil
}

// CreditBalance appends an immutable ledger entry and updates the user's
// running balance in one transaction. The external transaction id is the
// idempotency key: crediting the same payout twice fails with
// ErrDuplicateTransaction before any balance change.
func (s *Service) CreditBalance(ctx context.Context, userId string, amount decimal.Decimal, externalTxId, reference string) error {
	if externalTxId == "" {
		return fmt.Errorf("external transaction id is required")
	}

	var existingId string
	err := s.db.QueryRowContext(ctx, queryCheckLedgerDuplicate, externalTxId).Scan(&existingId)
	if err == nil {
		zap.L().Warn("Duplicate balance credit detected, skipping",
			zap.String("external_tx_id", externalTxId),
			zap.String("existing_entry_id", existingId))
		return fmt.Errorf("%w: external_tx_id %s already credited", store.ErrDuplicateTransaction, externalTxId)
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for duplicate credit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balanceStr string
	if err := tx.QueryRowContext(ctx, queryGetBalanceForUpdate, userId).Scan(&balanceStr); err != nil {
		if err == sql.ErrNoRows {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to get current balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New().String(), userId, amount.String(), externalTxId, reference, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: external_tx_id %s already credited", store.ErrDuplicateTransaction, externalTxId)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	newBalance := balance.Add(amount)
	if _, err := tx.ExecContext(ctx, queryUpdateBalance, newBalance.String(), now, userId); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Balance credited",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("old_balance", balance.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("external_tx_id", externalTxId))

	return nil
}

func (s *Service) GetBalanceEntries(ctx context.Context, userId string, limit int) ([]models.BalanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLedgerEntries, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var entries []models.BalanceEntry
	for rows.Next() {
		var e models.BalanceEntry
		var amountStr string
		var reference sql.NullString
		if err := rows.Scan(&e.Id, &e.UserId, &amountStr, &e.ExternalTxId, &reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reference = reference.String
		e.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}
