package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPot(t *testing.T) {
	chess := &Match{GameType: GameChess, Wager: decimal.NewFromInt(10)}
	if !chess.Pot().Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected pot 20, got %s", chess.Pot().String())
	}

	// Clan war wagers the total pool, each side funds half.
	clanWar := &Match{GameType: GameClanWar, Wager: decimal.NewFromInt(10)}
	if !clanWar.Pot().Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected clan war pot 10, got %s", clanWar.Pot().String())
	}
}

func TestSideStake(t *testing.T) {
	if got := SideStake(GameChess, decimal.NewFromInt(10)); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected chess side stake 10, got %s", got.String())
	}
	if got := SideStake(GameClanWar, decimal.NewFromInt(10)); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected clan war side stake 5, got %s", got.String())
	}

	clanWar := &Match{GameType: GameClanWar, Wager: decimal.NewFromInt(10)}
	if !clanWar.SideStake().Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected clan war match side stake 5, got %s", clanWar.SideStake().String())
	}
}

func TestGameFieldsRoundTrip(t *testing.T) {
	raw, err := EncodeGameFields(RiotFields{GameName: "Faker", TagLine: "KR1", Region: "asia"})
	if err != nil {
		t.Fatalf("EncodeGameFields failed: %v", err)
	}

	decoded, err := DecodeGameFields(GameLOL, raw)
	if err != nil {
		t.Fatalf("DecodeGameFields failed: %v", err)
	}
	fields, ok := decoded.(RiotFields)
	if !ok {
		t.Fatalf("Expected RiotFields, got %T", decoded)
	}
	if fields.GameName != "Faker" || fields.TagLine != "KR1" {
		t.Errorf("Unexpected fields: %+v", fields)
	}
}

func TestDecodeGameFields_Validation(t *testing.T) {
	if _, err := DecodeGameFields(GameChess, nil); err == nil {
		t.Error("Expected error for missing fields")
	}
	if _, err := DecodeGameFields(GameChess, []byte(`{"username":""}`)); err == nil {
		t.Error("Expected error for empty username")
	}
	if _, err := DecodeGameFields(GamePUBG, []byte(`{"platform":"steam"}`)); err == nil {
		t.Error("Expected error for missing handle")
	}
	if _, err := DecodeGameFields(GameType("PONG"), []byte(`{}`)); err == nil {
		t.Error("Expected error for unknown game type")
	}
}

func TestOutcomeWinner(t *testing.T) {
	cases := map[Outcome]Winner{
		OutcomeCreator:      WinnerCreator,
		OutcomeJoiner:       WinnerJoiner,
		OutcomeDraw:         WinnerDraw,
		OutcomeUndetermined: "",
	}
	for outcome, want := range cases {
		if got := outcome.Winner(); got != want {
			t.Errorf("Outcome %s: expected winner %q, got %q", outcome, want, got)
		}
	}
}
