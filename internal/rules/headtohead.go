// Package rules holds the pure winner rules. Every function here is
// deterministic over its inputs: no clock, no network, no store.
package rules

import (
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

// DecideHeadToHead turns one record containing both players into an outcome.
// Both players on the same team cannot settle the wager, so it draws.
func DecideHeadToHead(record *provider.HeadToHeadRecord) models.Outcome {
	if record == nil {
		return models.OutcomeUndetermined
	}
	if record.SameTeam || record.Draw {
		return models.OutcomeDraw
	}
	if record.WinnerA {
		return models.OutcomeCreator
	}
	return models.OutcomeJoiner
}
