package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.Wager.LessThanOrEqual(decimal.Zero) {
		return store.ErrInvalidWager
	}

	_, err := s.db.ExecContext(ctx, queryInsertMatch,
		m.Id, string(m.GameType), string(models.StatusWaiting), m.CreatorId,
		m.Wager.String(), m.CreatorEscrowTx, string(m.CreatorFields),
		m.CreatedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	if err := s.recordStatusChange(ctx, s.db, m.Id, "", models.StatusWaiting, ""); err != nil {
		zap.L().Warn("Failed to record status history", zap.String("match_id", m.Id), zap.Error(err))
	}
	return nil
}

func (s *Service) GetMatch(ctx context.Context, matchId string) (*models.Match, error) {
	row := s.db.QueryRowContext(ctx, queryGetMatch, matchId)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrMatchNotFound
	}
	return m, err
}

func (s *Service) ListOpenMatches(ctx context.Context, gt models.GameType) ([]models.Match, error) {
	return s.listMatches(ctx, queryListOpenMatches, string(gt))
}

func (s *Service) ListDuePlayingMatches(ctx context.Context, gt models.GameType, now time.Time) ([]models.Match, error) {
	return s.listMatches(ctx, queryListDuePlaying, string(gt), now.UTC())
}

func (s *Service) ListUnpaidFinished(ctx context.Context) ([]models.Match, error) {
	return s.listMatches(ctx, queryListUnpaidFinished)
}

// AttachJoiner is the WAITING -> PLAYING transition. The conditional update
// guarantees at most one joiner even when two join calls race.
func (s *Service) AttachJoiner(ctx context.Context, params store.JoinParams) error {
	creatorBefore, err := encodeSnapshot(params.CreatorBefore)
	if err != nil {
		return err
	}
	joinerBefore, err := encodeSnapshot(params.JoinerBefore)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryAttachJoiner,
		params.JoinerId, string(params.JoinerFields), params.JoinerEscrow,
		creatorBefore, joinerBefore,
		params.StartedAt.UTC(), params.StartedAt.UTC(), params.MatchId)
	if err != nil {
		return fmt.Errorf("failed to attach joiner: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return s.transitionConflict(ctx, params.MatchId, store.ErrMatchNotJoinable)
	}

	if err := s.recordStatusChange(ctx, tx, params.MatchId, models.StatusWaiting, models.StatusPlaying, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishMatch is the PLAYING -> FINISHED transition. First writer wins: a
// match already FINISHED is a no-op regardless of the winner argument.
func (s *Service) FinishMatch(ctx context.Context, matchId string, winner models.Winner, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryFinishMatch, string(winner), finishedAt.UTC(), matchId)
	if err != nil {
		return fmt.Errorf("failed to finish match: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		status, err := s.matchStatus(ctx, matchId)
		if err != nil {
			return err
		}
		if status == models.StatusFinished {
			return nil // idempotent
		}
		return store.ErrNotPlaying
	}

	if err := s.recordStatusChange(ctx, tx, matchId, models.StatusPlaying, models.StatusFinished, winner); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Match finished",
		zap.String("match_id", matchId),
		zap.String("winner", string(winner)))
	return nil
}

// CancelMatch is the WAITING -> CANCELLED transition.
func (s *Service) CancelMatch(ctx context.Context, matchId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCancelMatch, matchId)
	if err != nil {
		return fmt.Errorf("failed to cancel match: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return s.transitionConflict(ctx, matchId, store.ErrNotCancellable)
	}

	if err := s.recordStatusChange(ctx, tx, matchId, models.StatusWaiting, models.StatusCancelled, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPayoutTx sets the payout hash iff still unset. The conditional write is
// the structural guard against double payout; false means another writer won.
func (s *Service) SetPayoutTx(ctx context.Context, matchId, txHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, querySetPayoutTx, txHash, matchId)
	if err != nil {
		return false, fmt.Errorf("failed to set payout tx: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.matchStatus(ctx, matchId); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Service) UpdateAfterSnapshots(ctx context.Context, matchId string, creatorAfter, joinerAfter *models.Snapshot) error {
	ca, err := encodeSnapshot(creatorAfter)
	if err != nil {
		return err
	}
	ja, err := encodeSnapshot(joinerAfter)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, queryUpdateAfterSnapshots, ca, ja, matchId); err != nil {
		return fmt.Errorf("failed to update snapshots: %w", err)
	}
	return nil
}

func (s *Service) UpdateCheckState(ctx context.Context, matchId string, attempts int, nextCheckAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryUpdateCheckState, attempts, nextCheckAt.UTC(), matchId); err != nil {
		return fmt.Errorf("failed to update check state: %w", err)
	}
	return nil
}

func (s *Service) ListStatusChangesSince(ctx context.Context, since time.Time) ([]models.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, queryListStatusChanges, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list status changes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var changes []models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		var winner sql.NullString
		var from, to string
		if err := rows.Scan(&c.Id, &c.MatchId, &from, &to, &winner, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		c.FromStatus = models.MatchStatus(from)
		c.ToStatus = models.MatchStatus(to)
		c.Winner = models.Winner(winner.String)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status change rows: %w", err)
	}
	return changes, nil
}

// execer covers *sql.DB and *sql.Tx so history rows can join the
// transition's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) recordStatusChange(ctx context.Context, ex execer, matchId string, from, to models.MatchStatus, winner models.Winner) error {
	_, err := ex.ExecContext(ctx, queryInsertStatusChange,
		matchId, string(from), string(to), string(winner), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}

func (s *Service) matchStatus(ctx context.Context, matchId string) (models.MatchStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, queryGetMatchStatus, matchId).Scan(&status)
	if err == sql.ErrNoRows {
		return "", store.ErrMatchNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read match status: %w", err)
	}
	return models.MatchStatus(status), nil
}

// transitionConflict maps a lost conditional write to the right sentinel.
func (s *Service) transitionConflict(ctx context.Context, matchId string, conflict error) error {
	if _, err := s.matchStatus(ctx, matchId); err != nil {
		return err
	}
	return conflict
}

func (s *Service) listMatches(ctx context.Context, query string, args ...any) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	var m models.Match
	var gameType, status, wagerStr, creatorFields string
	var joinerId, winner, joinerEscrow, payoutTx, joinerFields sql.NullString
	var creatorBefore, creatorAfter, joinerBefore, joinerAfter sql.NullString
	var nextCheckAt, startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&m.Id, &gameType, &status, &m.CreatorId, &joinerId, &wagerStr, &winner,
		&m.CreatorEscrowTx, &joinerEscrow, &payoutTx,
		&creatorFields, &joinerFields,
		&creatorBefore, &creatorAfter, &joinerBefore, &joinerAfter,
		&m.CheckAttempts, &nextCheckAt, &m.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	m.GameType = models.GameType(gameType)
	m.Status = models.MatchStatus(status)
	m.JoinerId = joinerId.String
	m.Winner = models.Winner(winner.String)
	m.JoinerEscrowTx = joinerEscrow.String
	m.PayoutTxHash = payoutTx.String
	m.CreatorFields = json.RawMessage(creatorFields)
	if joinerFields.Valid {
		m.JoinerFields = json.RawMessage(joinerFields.String)
	}
	if nextCheckAt.Valid {
		m.NextCheckAt = nextCheckAt.Time
	}
	if startedAt.Valid {
		m.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		m.FinishedAt = finishedAt.Time
	}

	m.Wager, err = decimal.NewFromString(wagerStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wager '%s': %w", wagerStr, err)
	}

	if m.CreatorBefore, err = decodeSnapshot(creatorBefore); err != nil {
		return nil, err
	}
	if m.CreatorAfter, err = decodeSnapshot(creatorAfter); err != nil {
		return nil, err
	}
	if m.JoinerBefore, err = decodeSnapshot(joinerBefore); err != nil {
		return nil, err
	}
	if m.JoinerAfter, err = decodeSnapshot(joinerAfter); err != nil {
		return nil, err
	}

	return &m, nil
}

func encodeSnapshot(snap *models.Snapshot) (any, error) {
	if snap == nil {
		return nil, nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(raw), nil
}

func decodeSnapshot(col sql.NullString) (*models.Snapshot, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(col.String), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
