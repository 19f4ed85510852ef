package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GameType identifies the external game a match is wagered on. It selects the
// provider adapter and the resolution strategy.
type GameType string

const (
	GameChess        GameType = "CHESS"
	GameLOL          GameType = "LOL"
	GameValorant     GameType = "VALORANT"
	GamePUBG         GameType = "PUBG_PC"
	GameCSGO         GameType = "CSGO"
	GameBrawlStars   GameType = "BRAWL_STARS"
	GameClanWar      GameType = "CLAN_WAR"
	GameFortnite     GameType = "FORTNITE"
	GameRocketLeague GameType = "ROCKET_LEAGUE"
)

// AllGameTypes lists every supported game type in a stable order.
var AllGameTypes = []GameType{
	GameChess, GameLOL, GameValorant, GamePUBG, GameCSGO,
	GameBrawlStars, GameClanWar, GameFortnite, GameRocketLeague,
}

// MatchStatus is the match state machine:
// WAITING -> PLAYING -> FINISHED, with CANCELLED reachable only from WAITING.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "WAITING"
	StatusPlaying   MatchStatus = "PLAYING"
	StatusFinished  MatchStatus = "FINISHED"
	StatusCancelled MatchStatus = "CANCELLED"
)

// Winner records which side a finished match paid out to.
// Empty string means not yet decided (status != FINISHED).
type Winner string

const (
	WinnerCreator Winner = "CREATOR"
	WinnerJoiner  Winner = "JOINER"
	WinnerDraw    Winner = "DRAW"
)

// Outcome is the result of one resolution attempt. Undetermined means "not
// resolvable yet, re-poll later" and is not an error.
type Outcome int

const (
	OutcomeUndetermined Outcome = iota
	OutcomeCreator
	OutcomeJoiner
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreator:
		return "CREATOR"
	case OutcomeJoiner:
		return "JOINER"
	case OutcomeDraw:
		return "DRAW"
	default:
		return "UNDETERMINED"
	}
}

// Winner converts a determined outcome into the persisted winner value.
// Calling it on OutcomeUndetermined is a programming error; it returns "".
func (o Outcome) Winner() Winner {
	switch o {
	case OutcomeCreator:
		return WinnerCreator
	case OutcomeJoiner:
		return WinnerJoiner
	case OutcomeDraw:
		return WinnerDraw
	}
	return ""
}

// Snapshot is one side's stat capture for snapshot-diff games. Stats are
// always diffed against the same side's earlier snapshot, never across
// players.
type Snapshot struct {
	PlayerId          string           `json:"player_id"`
	CapturedAtEpochMs int64            `json:"captured_at_epoch_ms"`
	Stats             map[string]int64 `json:"stats"`
}

// Stat returns the named stat or zero when absent.
func (s *Snapshot) Stat(key string) int64 {
	if s == nil || s.Stats == nil {
		return 0
	}
	return s.Stats[key]
}

// Well-known snapshot stat keys shared by adapters and winner rules.
const (
	StatMatches = "matches"
	StatWins    = "wins"
	StatKills   = "kills"
	StatDamage  = "damage"
	StatGoals   = "goals"
	StatSaves   = "saves"
	StatAssists = "assists"
	StatMVPs    = "mvps"
)

// Match is the central aggregate: two parties, one escrowed pot, one outcome.
type Match struct {
	Id       string
	GameType GameType
	Status   MatchStatus

	CreatorId string
	JoinerId  string // empty until joined

	// Wager is the stake each side commits. For CLAN_WAR it holds the total
	// pool with each side contributing half.
	Wager  decimal.Decimal
	Winner Winner // set iff Status == FINISHED

	// Escrow transaction references proving funds were locked.
	CreatorEscrowTx string
	JoinerEscrowTx  string

	// PayoutTxHash is the sole payout idempotency guard: non-empty means
	// already paid, do nothing.
	PayoutTxHash string

	// Per-side in-game identity, decoded per GameType at the store boundary.
	CreatorFields json.RawMessage
	JoinerFields  json.RawMessage

	// Snapshot-diff games: before captured at join, after captured by the
	// resolver.
	CreatorBefore *Snapshot
	CreatorAfter  *Snapshot
	JoinerBefore  *Snapshot
	JoinerAfter   *Snapshot

	// Resolver backoff state, persisted so restarts keep the schedule.
	CheckAttempts int
	NextCheckAt   time.Time

	CreatedAt  time.Time
	StartedAt  time.Time // zero until joined
	FinishedAt time.Time // zero until finished
}

// Pot returns the total escrowed amount for the match.
func (m *Match) Pot() decimal.Decimal {
	if m.GameType == GameClanWar {
		return m.Wager
	}
	return m.Wager.Mul(decimal.NewFromInt(2))
}

// SideStake returns the deposit one side locks in escrow.
func (m *Match) SideStake() decimal.Decimal {
	return SideStake(m.GameType, m.Wager)
}

// SideStake is the per-side deposit for a wager of the given game type. Clan
// wars wager a shared pool; each clan funds half.
func SideStake(gt GameType, wager decimal.Decimal) decimal.Decimal {
	if gt == GameClanWar {
		return wager.Div(decimal.NewFromInt(2))
	}
	return wager
}

// StatusChange is one persisted state transition, used for restart-safe
// transition detection instead of in-process memory.
type StatusChange struct {
	Id         int64
	MatchId    string
	FromStatus MatchStatus
	ToStatus   MatchStatus
	Winner     Winner
	RecordedAt time.Time
}

// PayoutIntentState marks how far a payout (or refund) has progressed.
type PayoutIntentState string

const (
	IntentPending PayoutIntentState = "pending"
	IntentSettled PayoutIntentState = "settled"
)

// PayoutIntentKind distinguishes winner payouts from cancellation refunds.
type PayoutIntentKind string

const (
	IntentPayout PayoutIntentKind = "payout"
	IntentRefund PayoutIntentKind = "refund"
)

// PayoutIntent is persisted before any on-chain transfer so a crash between
// transfer and settlement can be reconciled against the chain instead of
// retried blindly.
type PayoutIntent struct {
	Id             string
	MatchId        string
	Kind           PayoutIntentKind
	State          PayoutIntentState
	PayeeA         string // wallet address
	PayeeB         string // second wallet address for DRAW splits, else empty
	Amount         decimal.Decimal
	IdempotencyKey string
	TxRef          string // set when settled
	CreatedAt      time.Time
	SettledAt      time.Time
}
