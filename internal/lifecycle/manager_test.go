package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"wager-escrow-go/internal/database"
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type fakeAdapter struct {
	game          models.GameType
	rejectHandles map[string]bool
	snapshot      *models.Snapshot
	captures      int
}

func (f *fakeAdapter) GameType() models.GameType { return f.game }

func (f *fakeAdapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	handle := handleOf(fields)
	if f.rejectHandles[handle] {
		return nil, provider.ErrIdentityNotFound
	}
	return &provider.Identity{PlayerId: "id-" + handle, DisplayName: handle}, nil
}

func (f *fakeAdapter) CaptureSnapshot(ctx context.Context, fields models.GameFields) (*models.Snapshot, error) {
	f.captures++
	snap := *f.snapshot
	snap.PlayerId = "id-" + handleOf(fields)
	return &snap, nil
}

func handleOf(fields models.GameFields) string {
	switch v := fields.(type) {
	case models.ChessFields:
		return v.Username
	case models.TrackerFields:
		return v.Handle
	}
	return ""
}

func setupManager(t *testing.T, adapters ...provider.Adapter) (*Manager, *database.Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	dbService := database.NewServiceWithDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	registry := provider.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}

	cleanup := func() { db.Close() }
	return NewManager(dbService, registry), dbService, cleanup
}

func chessCreate() CreateParams {
	return CreateParams{
		Username:      "alice",
		WalletAddress: "0xaaa",
		GameType:      models.GameChess,
		Wager:         decimal.NewFromInt(10),
		Fields:        models.ChessFields{Username: "magnus"},
		EscrowTxRef:   "deposit-1",
	}
}

func TestCreateMatch(t *testing.T) {
	manager, dbService, cleanup := setupManager(t, &fakeAdapter{game: models.GameChess})
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, chessCreate())
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	if match.Status != models.StatusWaiting {
		t.Errorf("Expected status WAITING, got %s", match.Status)
	}

	creator, err := dbService.GetUserById(ctx, match.CreatorId)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if creator.Username != "alice" {
		t.Errorf("Expected creator alice, got %s", creator.Username)
	}
	if creator.WalletAddress != "0xaaa" {
		t.Errorf("Expected wallet bound on create, got %q", creator.WalletAddress)
	}
}

func TestCreateMatch_Validation(t *testing.T) {
	manager, _, cleanup := setupManager(t, &fakeAdapter{
		game:          models.GameChess,
		rejectHandles: map[string]bool{"typo": true},
	})
	defer cleanup()
	ctx := context.Background()

	params := chessCreate()
	params.Wager = decimal.Zero
	if _, err := manager.CreateMatch(ctx, params); !errors.Is(err, store.ErrInvalidWager) {
		t.Errorf("Expected ErrInvalidWager, got %v", err)
	}

	params = chessCreate()
	params.EscrowTxRef = ""
	if _, err := manager.CreateMatch(ctx, params); !errors.Is(err, ErrEscrowRefMissing) {
		t.Errorf("Expected ErrEscrowRefMissing, got %v", err)
	}

	params = chessCreate()
	params.Fields = models.ChessFields{Username: "typo"}
	if _, err := manager.CreateMatch(ctx, params); !errors.Is(err, provider.ErrIdentityNotFound) {
		t.Errorf("Expected ErrIdentityNotFound, got %v", err)
	}
}

func TestJoinMatch(t *testing.T) {
	manager, _, cleanup := setupManager(t, &fakeAdapter{game: models.GameChess})
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, chessCreate())
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	joined, err := manager.JoinMatch(ctx, JoinParams{
		MatchId:       match.Id,
		Username:      "bob",
		WalletAddress: "0xbbb",
		Fields:        models.ChessFields{Username: "hikaru"},
		EscrowTxRef:   "deposit-2",
	})
	if err != nil {
		t.Fatalf("JoinMatch failed: %v", err)
	}
	if joined.Status != models.StatusPlaying {
		t.Errorf("Expected status PLAYING, got %s", joined.Status)
	}
	if joined.StartedAt.IsZero() {
		t.Error("Expected startedAt set on join")
	}
}

func TestJoinMatch_SelfJoin(t *testing.T) {
	manager, _, cleanup := setupManager(t, &fakeAdapter{game: models.GameChess})
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, chessCreate())
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	_, err = manager.JoinMatch(ctx, JoinParams{
		MatchId:       match.Id,
		Username:      "alice",
		WalletAddress: "0xaaa",
		Fields:        models.ChessFields{Username: "magnus2"},
		EscrowTxRef:   "deposit-2",
	})
	if !errors.Is(err, store.ErrSelfJoin) {
		t.Errorf("Expected ErrSelfJoin, got %v", err)
	}
}

func TestJoinMatch_NotJoinable(t *testing.T) {
	manager, dbService, cleanup := setupManager(t, &fakeAdapter{game: models.GameChess})
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, chessCreate())
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	if err := dbService.CancelMatch(ctx, match.Id); err != nil {
		t.Fatalf("CancelMatch failed: %v", err)
	}

	_, err = manager.JoinMatch(ctx, JoinParams{
		MatchId:       match.Id,
		Username:      "bob",
		WalletAddress: "0xbbb",
		Fields:        models.ChessFields{Username: "hikaru"},
		EscrowTxRef:   "deposit-2",
	})
	if !errors.Is(err, store.ErrMatchNotJoinable) {
		t.Errorf("Expected ErrMatchNotJoinable, got %v", err)
	}
}

func TestJoinMatch_CapturesBothBeforeSnapshots(t *testing.T) {
	adapter := &fakeAdapter{
		game: models.GamePUBG,
		snapshot: &models.Snapshot{
			CapturedAtEpochMs: 1700000000000,
			Stats:             map[string]int64{models.StatMatches: 50, models.StatWins: 12},
		},
	}
	manager, _, cleanup := setupManager(t, adapter)
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, CreateParams{
		Username:      "alice",
		WalletAddress: "0xaaa",
		GameType:      models.GamePUBG,
		Wager:         decimal.NewFromInt(25),
		Fields:        models.TrackerFields{Platform: "steam", Handle: "alice-pubg"},
		EscrowTxRef:   "deposit-1",
	})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	joined, err := manager.JoinMatch(ctx, JoinParams{
		MatchId:       match.Id,
		Username:      "bob",
		WalletAddress: "0xbbb",
		Fields:        models.TrackerFields{Platform: "steam", Handle: "bob-pubg"},
		EscrowTxRef:   "deposit-2",
	})
	if err != nil {
		t.Fatalf("JoinMatch failed: %v", err)
	}

	if adapter.captures != 2 {
		t.Errorf("Expected 2 snapshot captures, got %d", adapter.captures)
	}
	if joined.CreatorBefore == nil || joined.JoinerBefore == nil {
		t.Fatal("Expected both before snapshots persisted")
	}
	if joined.CreatorBefore.Stat(models.StatWins) != 12 {
		t.Errorf("Expected creator before wins 12, got %d", joined.CreatorBefore.Stat(models.StatWins))
	}
}

func TestCancelMatch_CreatorOnly(t *testing.T) {
	manager, _, cleanup := setupManager(t, &fakeAdapter{game: models.GameChess})
	defer cleanup()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, chessCreate())
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	if _, err := manager.CancelMatch(ctx, match.Id, "mallory"); !errors.Is(err, store.ErrNotCancellable) {
		t.Errorf("Expected ErrNotCancellable for non-creator, got %v", err)
	}

	cancelled, err := manager.CancelMatch(ctx, match.Id, "alice")
	if err != nil {
		t.Fatalf("CancelMatch failed: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("Expected status CANCELLED, got %s", cancelled.Status)
	}
}
