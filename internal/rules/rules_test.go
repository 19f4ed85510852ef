package rules

import (
	"testing"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

func TestDecideHeadToHead(t *testing.T) {
	tests := []struct {
		name   string
		record *provider.HeadToHeadRecord
		want   models.Outcome
	}{
		{"no record yet", nil, models.OutcomeUndetermined},
		{"creator won", &provider.HeadToHeadRecord{WinnerA: true}, models.OutcomeCreator},
		{"joiner won", &provider.HeadToHeadRecord{WinnerA: false}, models.OutcomeJoiner},
		{"explicit draw", &provider.HeadToHeadRecord{Draw: true}, models.OutcomeDraw},
		{"same team", &provider.HeadToHeadRecord{SameTeam: true, WinnerA: true}, models.OutcomeDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideHeadToHead(tt.record); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecideClanWar(t *testing.T) {
	tests := []struct {
		name   string
		record *provider.HeadToHeadRecord
		want   models.Outcome
	}{
		{"no war yet", nil, models.OutcomeUndetermined},
		{"creator more stars", &provider.HeadToHeadRecord{StarsA: 30, StarsB: 28}, models.OutcomeCreator},
		{"joiner more stars", &provider.HeadToHeadRecord{StarsA: 12, StarsB: 20}, models.OutcomeJoiner},
		{"stars tied destruction decides", &provider.HeadToHeadRecord{StarsA: 25, StarsB: 25, DestructionA: 88.5, DestructionB: 91.2}, models.OutcomeJoiner},
		{"everything tied", &provider.HeadToHeadRecord{StarsA: 25, StarsB: 25, DestructionA: 90.0, DestructionB: 90.0}, models.OutcomeDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideClanWar(tt.record); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecideSnapshotDiff(t *testing.T) {
	tests := []struct {
		name            string
		creator, joiner Diff
		want            models.Outcome
	}{
		{"neither side played", Diff{}, Diff{}, models.OutcomeUndetermined},
		{"only creator played", Diff{Matches: 3, Wins: 2}, Diff{}, models.OutcomeUndetermined},
		{"more wins", Diff{Matches: 5, Wins: 3}, Diff{Matches: 5, Wins: 1}, models.OutcomeCreator},
		{"wins tied kills decide", Diff{Matches: 5, Wins: 1, Kills: 12}, Diff{Matches: 4, Wins: 1, Kills: 20}, models.OutcomeJoiner},
		{"wins and kills tied damage decides", Diff{Matches: 2, Wins: 0, Kills: 4, Damage: 900}, Diff{Matches: 2, Wins: 0, Kills: 4, Damage: 650}, models.OutcomeCreator},
		{"played but no scoring deltas", Diff{Matches: 1}, Diff{Matches: 2}, models.OutcomeUndetermined},
		{"equal non-zero deltas draw", Diff{Matches: 3, Wins: 1, Kills: 8, Damage: 500}, Diff{Matches: 3, Wins: 1, Kills: 8, Damage: 500}, models.OutcomeDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideSnapshotDiff(tt.creator, tt.joiner); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecideRocketLeague(t *testing.T) {
	tests := []struct {
		name            string
		creator, joiner Diff
		want            models.Outcome
	}{
		{"not played yet", Diff{Goals: 5}, Diff{Matches: 1}, models.OutcomeUndetermined},
		{"wins decide", Diff{Matches: 4, Wins: 3}, Diff{Matches: 4, Wins: 2}, models.OutcomeCreator},
		{"mvps break win tie", Diff{Matches: 4, Wins: 2, MVPs: 1}, Diff{Matches: 4, Wins: 2, MVPs: 3}, models.OutcomeJoiner},
		{
			"weighted total breaks mvp tie",
			Diff{Matches: 3, Wins: 1, MVPs: 1, Goals: 4, Saves: 2, Assists: 1},
			Diff{Matches: 3, Wins: 1, MVPs: 1, Goals: 2, Saves: 1, Assists: 0},
			models.OutcomeCreator,
		},
		{
			"goals break weighted tie",
			Diff{Matches: 2, Wins: 1, Goals: 3, Saves: 0, Assists: 2},
			Diff{Matches: 2, Wins: 1, Goals: 4, Saves: 1, Assists: 0},
			models.OutcomeJoiner,
		},
		{"full tie draws", Diff{Matches: 1, Wins: 1, Goals: 2}, Diff{Matches: 1, Wins: 1, Goals: 2}, models.OutcomeDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideRocketLeague(tt.creator, tt.joiner); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

// Re-evaluating with identical inputs must never flip the answer.
func TestRulesAreDeterministic(t *testing.T) {
	record := &provider.HeadToHeadRecord{WinnerA: true}
	creator := Diff{Matches: 5, Wins: 2, Kills: 10, Damage: 1200}
	joiner := Diff{Matches: 5, Wins: 2, Kills: 10, Damage: 1100}

	for i := 0; i < 50; i++ {
		if got := DecideHeadToHead(record); got != models.OutcomeCreator {
			t.Fatalf("head-to-head flipped to %s on iteration %d", got, i)
		}
		if got := DecideSnapshotDiff(creator, joiner); got != models.OutcomeCreator {
			t.Fatalf("snapshot diff flipped to %s on iteration %d", got, i)
		}
	}
}

func TestComputeDiff(t *testing.T) {
	before := &models.Snapshot{Stats: map[string]int64{
		models.StatMatches: 100, models.StatWins: 40, models.StatKills: 800,
	}}
	after := &models.Snapshot{Stats: map[string]int64{
		models.StatMatches: 103, models.StatWins: 42, models.StatKills: 815,
	}}

	diff := ComputeDiff(before, after)
	if diff.Matches != 3 || diff.Wins != 2 || diff.Kills != 15 {
		t.Errorf("unexpected diff: %+v", diff)
	}
	if diff.Damage != 0 {
		t.Errorf("absent stat should diff to zero, got %d", diff.Damage)
	}
}
