package rules

import (
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

// DecideClanWar settles a clan war on stars, then destruction percentage.
// Equal on both counts is a draw.
func DecideClanWar(record *provider.HeadToHeadRecord) models.Outcome {
	if record == nil {
		return models.OutcomeUndetermined
	}
	switch {
	case record.StarsA > record.StarsB:
		return models.OutcomeCreator
	case record.StarsB > record.StarsA:
		return models.OutcomeJoiner
	case record.DestructionA > record.DestructionB:
		return models.OutcomeCreator
	case record.DestructionB > record.DestructionA:
		return models.OutcomeJoiner
	}
	return models.OutcomeDraw
}
