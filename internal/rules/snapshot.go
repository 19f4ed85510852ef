package rules

import (
	"wager-escrow-go/internal/models"
)

// Diff is one side's stat deltas between the before and after snapshots.
type Diff struct {
	Matches int64
	Wins    int64
	Kills   int64
	Damage  int64
	Goals   int64
	Saves   int64
	Assists int64
	MVPs    int64
}

// ComputeDiff subtracts a side's before snapshot from its after snapshot.
// Snapshots are only ever compared within the same side.
func ComputeDiff(before, after *models.Snapshot) Diff {
	delta := func(key string) int64 {
		return after.Stat(key) - before.Stat(key)
	}
	return Diff{
		Matches: delta(models.StatMatches),
		Wins:    delta(models.StatWins),
		Kills:   delta(models.StatKills),
		Damage:  delta(models.StatDamage),
		Goals:   delta(models.StatGoals),
		Saves:   delta(models.StatSaves),
		Assists: delta(models.StatAssists),
		MVPs:    delta(models.StatMVPs),
	}
}

// DecideSnapshotDiff settles win-count games (PUBG, CS:GO, Fortnite):
// wins, then kills, then damage. Not resolvable until both sides played at
// least one match since their before snapshot.
func DecideSnapshotDiff(creator, joiner Diff) models.Outcome {
	if creator.Matches <= 0 || joiner.Matches <= 0 {
		return models.OutcomeUndetermined
	}
	if outcome := compare(creator.Wins, joiner.Wins); outcome != models.OutcomeDraw {
		return outcome
	}
	if outcome := compare(creator.Kills, joiner.Kills); outcome != models.OutcomeDraw {
		return outcome
	}
	if outcome := compare(creator.Damage, joiner.Damage); outcome != models.OutcomeDraw {
		return outcome
	}
	if allZero(creator) && allZero(joiner) {
		return models.OutcomeUndetermined
	}
	return models.OutcomeDraw
}

// DecideRocketLeague settles Rocket League on wins, then MVPs, then a
// weighted total, then goals. The same matches-played gate applies.
func DecideRocketLeague(creator, joiner Diff) models.Outcome {
	if creator.Matches <= 0 || joiner.Matches <= 0 {
		return models.OutcomeUndetermined
	}
	if outcome := compare(creator.Wins, joiner.Wins); outcome != models.OutcomeDraw {
		return outcome
	}
	if outcome := compare(creator.MVPs, joiner.MVPs); outcome != models.OutcomeDraw {
		return outcome
	}
	if outcome := compare(weightedTotal(creator), weightedTotal(joiner)); outcome != models.OutcomeDraw {
		return outcome
	}
	if outcome := compare(creator.Goals, joiner.Goals); outcome != models.OutcomeDraw {
		return outcome
	}
	return models.OutcomeDraw
}

func weightedTotal(d Diff) int64 {
	return d.Wins*10 + d.Goals + d.Saves + d.Assists + d.MVPs*5
}

func compare(a, b int64) models.Outcome {
	switch {
	case a > b:
		return models.OutcomeCreator
	case b > a:
		return models.OutcomeJoiner
	}
	return models.OutcomeDraw
}

func allZero(d Diff) bool {
	return d.Wins == 0 && d.Kills == 0 && d.Damage == 0
}
