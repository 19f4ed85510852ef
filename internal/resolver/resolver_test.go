package resolver

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wager-escrow-go/internal/database"
	"wager-escrow-go/internal/escrow"
	"wager-escrow-go/internal/lifecycle"
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/payout"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type fakeChessAdapter struct {
	record *provider.HeadToHeadRecord
	err    error
	since  int64
}

func (f *fakeChessAdapter) GameType() models.GameType { return models.GameChess }

func (f *fakeChessAdapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	return &provider.Identity{PlayerId: "p"}, nil
}

func (f *fakeChessAdapter) FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*provider.HeadToHeadRecord, error) {
	f.since = sinceEpochMs
	return f.record, f.err
}

type fakeEscrow struct{}

func (fakeEscrow) VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) error {
	return nil
}
func (fakeEscrow) Payout(ctx context.Context, payee string, amount decimal.Decimal, key string) (string, error) {
	return "tx-" + key, nil
}
func (fakeEscrow) SplitPayout(ctx context.Context, payeeA, payeeB string, amount decimal.Decimal, key string) ([]string, error) {
	return []string{"tx-" + key + "-a", "tx-" + key + "-b"}, nil
}
func (fakeEscrow) FindTransfer(ctx context.Context, key string) (*escrow.Transfer, bool, error) {
	return nil, false, nil
}

func setupResolver(t *testing.T, adapter provider.Adapter) (*Resolver, *database.Service, func()) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	dbService := database.NewServiceWithDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	registry := provider.NewRegistry()
	registry.Register(adapter)

	manager := lifecycle.NewManager(dbService, registry)
	orchestrator := payout.NewOrchestrator(dbService, fakeEscrow{}, decimal.NewFromFloat(0.05))

	cfg := models.ResolverConfig{
		MatchTimeout:     5 * time.Second,
		StaleAfter:       48 * time.Hour,
		MaxBackoffFactor: 10,
	}
	intervals := map[models.GameType]time.Duration{models.GameChess: time.Minute}

	r := New(dbService, registry, manager, orchestrator, cfg, intervals)
	return r, dbService, func() { db.Close() }
}

func playingChessMatch(t *testing.T, dbService *database.Service) *models.Match {
	t.Helper()
	ctx := context.Background()

	creator, _ := dbService.GetOrCreateUser(ctx, "alice")
	joiner, _ := dbService.GetOrCreateUser(ctx, "bob")
	if err := dbService.BindWallet(ctx, creator.Id, "0xaaa"); err != nil {
		t.Fatalf("BindWallet failed: %v", err)
	}
	if err := dbService.BindWallet(ctx, joiner.Id, "0xbbb"); err != nil {
		t.Fatalf("BindWallet failed: %v", err)
	}

	match := &models.Match{
		Id:              "m1",
		GameType:        models.GameChess,
		Status:          models.StatusWaiting,
		CreatorId:       creator.Id,
		Wager:           decimal.NewFromInt(10),
		CreatorEscrowTx: "deposit-1",
		CreatorFields:   []byte(`{"username":"magnus"}`),
		CreatedAt:       time.Now().UTC(),
	}
	if err := dbService.CreateMatch(ctx, match); err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	err := dbService.AttachJoiner(ctx, store.JoinParams{
		MatchId:      match.Id,
		JoinerId:     joiner.Id,
		JoinerFields: []byte(`{"username":"hikaru"}`),
		JoinerEscrow: "deposit-2",
		StartedAt:    time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("AttachJoiner failed: %v", err)
	}
	return match
}

func TestCheckNow_FinishesAndPaysDeterminedMatch(t *testing.T) {
	adapter := &fakeChessAdapter{
		record: &provider.HeadToHeadRecord{RecordId: "g1", WinnerA: true},
	}
	r, dbService, cleanup := setupResolver(t, adapter)
	defer cleanup()
	ctx := context.Background()

	match := playingChessMatch(t, dbService)
	if err := r.CheckNow(ctx, models.GameChess); err != nil {
		t.Fatalf("CheckNow failed: %v", err)
	}
	r.Stop()

	got, err := dbService.GetMatch(ctx, match.Id)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if got.Status != models.StatusFinished {
		t.Errorf("Expected status FINISHED, got %s", got.Status)
	}
	if got.Winner != models.WinnerCreator {
		t.Errorf("Expected winner CREATOR, got %s", got.Winner)
	}
	if got.PayoutTxHash == "" {
		t.Error("Expected payout to follow finish")
	}
}

func TestCheckNow_UndeterminedLeavesMatchPlaying(t *testing.T) {
	adapter := &fakeChessAdapter{record: nil} // no game played yet
	r, dbService, cleanup := setupResolver(t, adapter)
	defer cleanup()
	ctx := context.Background()

	match := playingChessMatch(t, dbService)
	if err := r.CheckNow(ctx, models.GameChess); err != nil {
		t.Fatalf("CheckNow failed: %v", err)
	}
	r.Stop()

	got, _ := dbService.GetMatch(ctx, match.Id)
	if got.Status != models.StatusPlaying {
		t.Errorf("Expected match to stay PLAYING, got %s", got.Status)
	}
	if got.CheckAttempts != 0 {
		t.Errorf("Expected attempts reset on undetermined, got %d", got.CheckAttempts)
	}
	if !got.NextCheckAt.After(time.Now().UTC().Add(30 * time.Second)) {
		t.Errorf("Expected next check roughly one interval out, got %s", got.NextCheckAt)
	}
}

func TestCheckNow_BacksOffOnAdapterFailure(t *testing.T) {
	adapter := &fakeChessAdapter{err: provider.ErrTransient}
	r, dbService, cleanup := setupResolver(t, adapter)
	defer cleanup()
	ctx := context.Background()

	match := playingChessMatch(t, dbService)
	if err := r.CheckNow(ctx, models.GameChess); err != nil {
		t.Fatalf("CheckNow failed: %v", err)
	}
	r.Stop()

	got, _ := dbService.GetMatch(ctx, match.Id)
	if got.Status != models.StatusPlaying {
		t.Errorf("Expected match to stay PLAYING, got %s", got.Status)
	}
	if got.CheckAttempts != 1 {
		t.Errorf("Expected 1 failed attempt recorded, got %d", got.CheckAttempts)
	}
	// First failure doubles the interval.
	if !got.NextCheckAt.After(time.Now().UTC().Add(90 * time.Second)) {
		t.Errorf("Expected backed-off next check, got %s", got.NextCheckAt)
	}
}

func TestCheckNow_LookupWindowOpensAtCreation(t *testing.T) {
	adapter := &fakeChessAdapter{
		record: &provider.HeadToHeadRecord{RecordId: "g1", WinnerA: true},
	}
	r, dbService, cleanup := setupResolver(t, adapter)
	defer cleanup()
	ctx := context.Background()

	creator, _ := dbService.GetOrCreateUser(ctx, "alice")
	joiner, _ := dbService.GetOrCreateUser(ctx, "bob")
	if err := dbService.BindWallet(ctx, creator.Id, "0xaaa"); err != nil {
		t.Fatalf("BindWallet failed: %v", err)
	}
	if err := dbService.BindWallet(ctx, joiner.Id, "0xbbb"); err != nil {
		t.Fatalf("BindWallet failed: %v", err)
	}

	created := time.Now().UTC().Add(-2 * time.Hour)
	started := time.Now().UTC().Add(-time.Hour)
	match := &models.Match{
		Id:              "m-window",
		GameType:        models.GameChess,
		Status:          models.StatusWaiting,
		CreatorId:       creator.Id,
		Wager:           decimal.NewFromInt(10),
		CreatorEscrowTx: "deposit-1",
		CreatorFields:   []byte(`{"username":"magnus"}`),
		CreatedAt:       created,
	}
	if err := dbService.CreateMatch(ctx, match); err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	err := dbService.AttachJoiner(ctx, store.JoinParams{
		MatchId:      match.Id,
		JoinerId:     joiner.Id,
		JoinerFields: []byte(`{"username":"hikaru"}`),
		JoinerEscrow: "deposit-2",
		StartedAt:    started,
	})
	if err != nil {
		t.Fatalf("AttachJoiner failed: %v", err)
	}

	if err := r.CheckNow(ctx, models.GameChess); err != nil {
		t.Fatalf("CheckNow failed: %v", err)
	}
	r.Stop()

	// A game played after create but before join must not be excluded.
	if adapter.since == 0 || adapter.since >= started.UnixMilli() {
		t.Errorf("Expected lookup window to open at creation (%d), got %d",
			created.UnixMilli(), adapter.since)
	}
}

func TestCheckNow_ConcurrentChecksFinishOnce(t *testing.T) {
	adapter := &fakeChessAdapter{
		record: &provider.HeadToHeadRecord{RecordId: "g1", WinnerA: false},
	}
	r, dbService, cleanup := setupResolver(t, adapter)
	defer cleanup()
	ctx := context.Background()

	match := playingChessMatch(t, dbService)
	for i := 0; i < 3; i++ {
		if err := r.CheckNow(ctx, models.GameChess); err != nil {
			t.Fatalf("CheckNow %d failed: %v", i, err)
		}
	}
	r.Stop()

	got, _ := dbService.GetMatch(ctx, match.Id)
	if got.Winner != models.WinnerJoiner {
		t.Errorf("Expected winner JOINER, got %s", got.Winner)
	}

	changes, err := dbService.ListStatusChangesSince(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStatusChangesSince failed: %v", err)
	}
	finishes := 0
	for _, c := range changes {
		if c.ToStatus == models.StatusFinished {
			finishes++
		}
	}
	if finishes != 1 {
		t.Errorf("Expected exactly 1 FINISHED transition, got %d", finishes)
	}
}
