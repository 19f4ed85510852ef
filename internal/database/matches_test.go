package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	// A file-backed database: in-memory DSNs give every pool connection its
	// own database (":memory:") or table-level locks ("cache=shared"), so any
	// code path that reads through a second connection while a transaction is
	// open cannot work against them.
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service := NewServiceWithDB(db)
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func newTestMatch(t *testing.T, service *Service, gt models.GameType) *models.Match {
	t.Helper()
	ctx := context.Background()

	creator, err := service.GetOrCreateUser(ctx, "creator")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	match := &models.Match{
		Id:              "match-" + string(gt) + "-" + time.Now().Format("150405.000000000"),
		GameType:        gt,
		Status:          models.StatusWaiting,
		CreatorId:       creator.Id,
		Wager:           decimal.NewFromInt(10),
		CreatorEscrowTx: "deposit-1",
		CreatorFields:   []byte(`{"username":"magnus"}`),
		CreatedAt:       time.Now().UTC(),
	}
	if err := service.CreateMatch(ctx, match); err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	return match
}

func joinTestMatch(t *testing.T, service *Service, match *models.Match) {
	t.Helper()
	ctx := context.Background()

	joiner, err := service.GetOrCreateUser(ctx, "joiner")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	err = service.AttachJoiner(ctx, store.JoinParams{
		MatchId:      match.Id,
		JoinerId:     joiner.Id,
		JoinerFields: []byte(`{"username":"hikaru"}`),
		JoinerEscrow: "deposit-2",
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("AttachJoiner failed: %v", err)
	}
}

func TestCreateMatch_RejectsNonPositiveWager(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	match := &models.Match{
		Id:        "m1",
		GameType:  models.GameChess,
		Status:    models.StatusWaiting,
		CreatorId: "u1",
		Wager:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	err := service.CreateMatch(context.Background(), match)
	if !errors.Is(err, store.ErrInvalidWager) {
		t.Errorf("Expected ErrInvalidWager, got %v", err)
	}
}

func TestAttachJoiner_MovesMatchToPlaying(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)

	got, err := service.GetMatch(ctx, match.Id)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if got.Status != models.StatusPlaying {
		t.Errorf("Expected status PLAYING, got %s", got.Status)
	}
	if got.JoinerId == "" {
		t.Error("Expected joiner to be attached")
	}
	if got.StartedAt.IsZero() {
		t.Error("Expected startedAt to be set")
	}
}

func TestAttachJoiner_FailsOncePlaying(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)

	err := service.AttachJoiner(ctx, store.JoinParams{
		MatchId:      match.Id,
		JoinerId:     "someone-else",
		JoinerFields: []byte(`{"username":"fabiano"}`),
		JoinerEscrow: "deposit-3",
		StartedAt:    time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrMatchNotJoinable) {
		t.Errorf("Expected ErrMatchNotJoinable, got %v", err)
	}
}

func TestAttachJoiner_UnknownMatch(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	err := service.AttachJoiner(context.Background(), store.JoinParams{
		MatchId:   "nope",
		JoinerId:  "u2",
		StartedAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrMatchNotFound) {
		t.Errorf("Expected ErrMatchNotFound, got %v", err)
	}
}

func TestFinishMatch_FirstWriterWins(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)

	if err := service.FinishMatch(ctx, match.Id, models.WinnerCreator, time.Now().UTC()); err != nil {
		t.Fatalf("First FinishMatch failed: %v", err)
	}

	// A second finish with a different winner is a no-op, not an overwrite.
	if err := service.FinishMatch(ctx, match.Id, models.WinnerJoiner, time.Now().UTC()); err != nil {
		t.Fatalf("Second FinishMatch should be a no-op, got: %v", err)
	}

	got, err := service.GetMatch(ctx, match.Id)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if got.Winner != models.WinnerCreator {
		t.Errorf("Expected winner CREATOR to stick, got %s", got.Winner)
	}
	if got.Status != models.StatusFinished {
		t.Errorf("Expected status FINISHED, got %s", got.Status)
	}
}

func TestFinishMatch_RequiresPlaying(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	match := newTestMatch(t, service, models.GameChess)

	err := service.FinishMatch(context.Background(), match.Id, models.WinnerCreator, time.Now().UTC())
	if !errors.Is(err, store.ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying for WAITING match, got %v", err)
	}
}

func TestCancelMatch_OnlyFromWaiting(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	if err := service.CancelMatch(ctx, match.Id); err != nil {
		t.Fatalf("CancelMatch failed: %v", err)
	}

	got, _ := service.GetMatch(ctx, match.Id)
	if got.Status != models.StatusCancelled {
		t.Errorf("Expected status CANCELLED, got %s", got.Status)
	}

	playing := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, playing)
	err := service.CancelMatch(ctx, playing.Id)
	if !errors.Is(err, store.ErrNotCancellable) {
		t.Errorf("Expected ErrNotCancellable for PLAYING match, got %v", err)
	}
}

func TestSetPayoutTx_SetOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)
	if err := service.FinishMatch(ctx, match.Id, models.WinnerCreator, time.Now().UTC()); err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	set, err := service.SetPayoutTx(ctx, match.Id, "tx-first")
	if err != nil {
		t.Fatalf("SetPayoutTx failed: %v", err)
	}
	if !set {
		t.Fatal("Expected first SetPayoutTx to win")
	}

	set, err = service.SetPayoutTx(ctx, match.Id, "tx-second")
	if err != nil {
		t.Fatalf("Second SetPayoutTx failed: %v", err)
	}
	if set {
		t.Error("Expected second SetPayoutTx to lose")
	}

	got, _ := service.GetMatch(ctx, match.Id)
	if got.PayoutTxHash != "tx-first" {
		t.Errorf("Expected first hash to persist, got %s", got.PayoutTxHash)
	}
}

func TestListDuePlayingMatches_HonorsNextCheckAt(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)

	due, err := service.ListDuePlayingMatches(ctx, models.GameChess, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("ListDuePlayingMatches failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected 1 due match, got %d", len(due))
	}

	// Push the next check into the future; the match drops out.
	future := time.Now().UTC().Add(time.Hour)
	if err := service.UpdateCheckState(ctx, match.Id, 3, future); err != nil {
		t.Fatalf("UpdateCheckState failed: %v", err)
	}
	due, err = service.ListDuePlayingMatches(ctx, models.GameChess, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListDuePlayingMatches failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected 0 due matches, got %d", len(due))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GamePUBG)
	joiner, _ := service.GetOrCreateUser(ctx, "joiner")
	before := &models.Snapshot{
		PlayerId:          "p1",
		CapturedAtEpochMs: 1700000000000,
		Stats:             map[string]int64{models.StatMatches: 100, models.StatWins: 40},
	}
	err := service.AttachJoiner(ctx, store.JoinParams{
		MatchId:       match.Id,
		JoinerId:      joiner.Id,
		JoinerFields:  []byte(`{"platform":"steam","handle":"shroud"}`),
		JoinerEscrow:  "deposit-2",
		CreatorBefore: before,
		JoinerBefore:  before,
		StartedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("AttachJoiner failed: %v", err)
	}

	after := &models.Snapshot{
		PlayerId:          "p1",
		CapturedAtEpochMs: 1700000100000,
		Stats:             map[string]int64{models.StatMatches: 102, models.StatWins: 41},
	}
	if err := service.UpdateAfterSnapshots(ctx, match.Id, after, after); err != nil {
		t.Fatalf("UpdateAfterSnapshots failed: %v", err)
	}

	got, err := service.GetMatch(ctx, match.Id)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if got.CreatorBefore.Stat(models.StatMatches) != 100 {
		t.Errorf("Expected before matches 100, got %d", got.CreatorBefore.Stat(models.StatMatches))
	}
	if got.JoinerAfter.Stat(models.StatWins) != 41 {
		t.Errorf("Expected after wins 41, got %d", got.JoinerAfter.Stat(models.StatWins))
	}
}

func TestStatusHistory_RecordsTransitions(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	match := newTestMatch(t, service, models.GameChess)
	joinTestMatch(t, service, match)
	if err := service.FinishMatch(ctx, match.Id, models.WinnerJoiner, time.Now().UTC()); err != nil {
		t.Fatalf("FinishMatch failed: %v", err)
	}

	changes, err := service.ListStatusChangesSince(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStatusChangesSince failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 recorded transitions, got %d", len(changes))
	}
	last := changes[len(changes)-1]
	if last.ToStatus != models.StatusFinished || last.Winner != models.WinnerJoiner {
		t.Errorf("Unexpected final transition: %+v", last)
	}
}
