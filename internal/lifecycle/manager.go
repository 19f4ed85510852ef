// Package lifecycle drives the match state machine: WAITING on create,
// PLAYING on join, FINISHED or CANCELLED as terminal states. All transitions
// go through conditional store writes, so concurrent callers race safely.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrEscrowRefMissing = errors.New("escrow transaction reference is required")

// Manager owns match creation, joining, finishing and cancellation.
type Manager struct {
	store    store.MatchStore
	registry *provider.Registry
}

func NewManager(st store.MatchStore, registry *provider.Registry) *Manager {
	return &Manager{store: st, registry: registry}
}

// CreateParams describes a new wager. EscrowTxRef must reference a deposit
// the caller has already verified against the escrow wallet.
type CreateParams struct {
	Username      string
	WalletAddress string
	GameType      models.GameType
	Wager         decimal.Decimal
	Fields        models.GameFields
	EscrowTxRef   string
}

func (m *Manager) CreateMatch(ctx context.Context, params CreateParams) (*models.Match, error) {
	if !params.Wager.IsPositive() {
		return nil, store.ErrInvalidWager
	}
	if params.EscrowTxRef == "" {
		return nil, ErrEscrowRefMissing
	}

	adapter, err := m.registry.Lookup(params.GameType)
	if err != nil {
		return nil, err
	}
	identity, err := adapter.ValidateIdentity(ctx, params.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to validate creator identity: %w", err)
	}

	user, err := m.store.GetOrCreateUser(ctx, params.Username)
	if err != nil {
		return nil, err
	}
	if err := m.store.BindWallet(ctx, user.Id, params.WalletAddress); err != nil {
		return nil, err
	}

	fields, err := models.EncodeGameFields(params.Fields)
	if err != nil {
		return nil, err
	}

	match := &models.Match{
		Id:              uuid.New().String(),
		GameType:        params.GameType,
		Status:          models.StatusWaiting,
		CreatorId:       user.Id,
		Wager:           params.Wager,
		CreatorEscrowTx: params.EscrowTxRef,
		CreatorFields:   fields,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	zap.L().Info("Match created",
		zap.String("match_id", match.Id),
		zap.String("game_type", string(match.GameType)),
		zap.String("creator_id", user.Id),
		zap.String("creator_identity", identity.PlayerId),
		zap.String("wager", match.Wager.String()))
	return match, nil
}

// JoinParams describes the second side of a wager.
type JoinParams struct {
	MatchId       string
	Username      string
	WalletAddress string
	Fields        models.GameFields
	EscrowTxRef   string
}

// JoinMatch attaches the joiner and moves the match to PLAYING. For
// snapshot-diff games it captures both sides' before snapshots first, so the
// whole observation window starts at the same instant the match does.
func (m *Manager) JoinMatch(ctx context.Context, params JoinParams) (*models.Match, error) {
	if params.EscrowTxRef == "" {
		return nil, ErrEscrowRefMissing
	}

	match, err := m.store.GetMatch(ctx, params.MatchId)
	if err != nil {
		return nil, err
	}
	if match.Status != models.StatusWaiting {
		return nil, store.ErrMatchNotJoinable
	}

	adapter, err := m.registry.Lookup(match.GameType)
	if err != nil {
		return nil, err
	}
	if _, err := adapter.ValidateIdentity(ctx, params.Fields); err != nil {
		return nil, fmt.Errorf("failed to validate joiner identity: %w", err)
	}

	joiner, err := m.store.GetOrCreateUser(ctx, params.Username)
	if err != nil {
		return nil, err
	}
	if joiner.Id == match.CreatorId {
		return nil, store.ErrSelfJoin
	}
	if err := m.store.BindWallet(ctx, joiner.Id, params.WalletAddress); err != nil {
		return nil, err
	}

	joinerFields, err := models.EncodeGameFields(params.Fields)
	if err != nil {
		return nil, err
	}

	join := store.JoinParams{
		MatchId:      match.Id,
		JoinerId:     joiner.Id,
		JoinerFields: joinerFields,
		JoinerEscrow: params.EscrowTxRef,
		StartedAt:    time.Now().UTC(),
	}

	if match.GameType.UsesSnapshots() {
		snapshotter, ok := adapter.(provider.SnapshotAdapter)
		if !ok {
			return nil, fmt.Errorf("adapter for %s does not capture snapshots", match.GameType)
		}
		creatorFields, err := models.DecodeGameFields(match.GameType, match.CreatorFields)
		if err != nil {
			return nil, err
		}
		if join.CreatorBefore, err = snapshotter.CaptureSnapshot(ctx, creatorFields); err != nil {
			return nil, fmt.Errorf("failed to capture creator snapshot: %w", err)
		}
		if join.JoinerBefore, err = snapshotter.CaptureSnapshot(ctx, params.Fields); err != nil {
			return nil, fmt.Errorf("failed to capture joiner snapshot: %w", err)
		}
	}

	if err := m.store.AttachJoiner(ctx, join); err != nil {
		return nil, err
	}

	zap.L().Info("Match joined",
		zap.String("match_id", match.Id),
		zap.String("game_type", string(match.GameType)),
		zap.String("joiner_id", joiner.Id))
	return m.store.GetMatch(ctx, match.Id)
}

// FinishMatch records the winner and moves the match to FINISHED. A match
// another checker already finished is treated as done.
func (m *Manager) FinishMatch(ctx context.Context, matchId string, winner models.Winner) error {
	return m.store.FinishMatch(ctx, matchId, winner, time.Now().UTC())
}

// CancelMatch voids a WAITING match. Only the creator may cancel; the refund
// of the locked deposit is driven off the recorded status change.
func (m *Manager) CancelMatch(ctx context.Context, matchId, username string) (*models.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return nil, err
	}
	creator, err := m.store.GetUserById(ctx, match.CreatorId)
	if err != nil {
		return nil, err
	}
	if creator.Username != username {
		return nil, store.ErrNotCancellable
	}

	if err := m.store.CancelMatch(ctx, matchId); err != nil {
		return nil, err
	}
	zap.L().Info("Match cancelled",
		zap.String("match_id", matchId),
		zap.String("creator_id", match.CreatorId))
	return m.store.GetMatch(ctx, matchId)
}

// ListOpenMatches returns WAITING matches of a game type, oldest first.
func (m *Manager) ListOpenMatches(ctx context.Context, gt models.GameType) ([]models.Match, error) {
	return m.store.ListOpenMatches(ctx, gt)
}
