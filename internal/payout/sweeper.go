package payout

import (
	"context"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/store"

	"go.uber.org/zap"
)

// Sweeper re-drives settlements that stalled between a crash and their
// bookkeeping: pending intents, finished matches with no payout hash, and
// cancellations that never got their refund.
type Sweeper struct {
	store        store.MatchStore
	orchestrator *Orchestrator
	lookback     time.Duration
}

func NewSweeper(st store.MatchStore, orchestrator *Orchestrator, lookback time.Duration) *Sweeper {
	return &Sweeper{store: st, orchestrator: orchestrator, lookback: lookback}
}

// Run sweeps once at startup and then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one recovery pass. Failures are logged and retried on the
// next pass rather than aborting the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepPendingIntents(ctx)
	s.sweepUnpaidFinished(ctx)
	s.sweepMissedRefunds(ctx)
}

func (s *Sweeper) sweepPendingIntents(ctx context.Context) {
	intents, err := s.store.ListPendingIntents(ctx)
	if err != nil {
		zap.L().Error("Failed to list pending intents", zap.Error(err))
		return
	}
	for _, intent := range intents {
		var err error
		if intent.Kind == models.IntentRefund {
			err = s.orchestrator.Refund(ctx, intent.MatchId)
		} else {
			err = s.orchestrator.Payout(ctx, intent.MatchId)
		}
		if err != nil {
			zap.L().Error("Failed to re-drive pending intent",
				zap.String("match_id", intent.MatchId),
				zap.String("kind", string(intent.Kind)),
				zap.Error(err))
		}
	}
}

func (s *Sweeper) sweepUnpaidFinished(ctx context.Context) {
	matches, err := s.store.ListUnpaidFinished(ctx)
	if err != nil {
		zap.L().Error("Failed to list unpaid finished matches", zap.Error(err))
		return
	}
	for _, match := range matches {
		if err := s.orchestrator.Payout(ctx, match.Id); err != nil {
			zap.L().Error("Failed to pay finished match",
				zap.String("match_id", match.Id),
				zap.Error(err))
		}
	}
}

// sweepMissedRefunds covers the gap between a recorded cancellation and the
// refund intent being written.
func (s *Sweeper) sweepMissedRefunds(ctx context.Context) {
	changes, err := s.store.ListStatusChangesSince(ctx, time.Now().UTC().Add(-s.lookback))
	if err != nil {
		zap.L().Error("Failed to list status changes", zap.Error(err))
		return
	}
	for _, change := range changes {
		if change.ToStatus != models.StatusCancelled {
			continue
		}
		match, err := s.store.GetMatch(ctx, change.MatchId)
		if err != nil {
			zap.L().Error("Failed to load cancelled match",
				zap.String("match_id", change.MatchId),
				zap.Error(err))
			continue
		}
		if match.PayoutTxHash != "" {
			continue
		}
		if err := s.orchestrator.Refund(ctx, match.Id); err != nil {
			zap.L().Error("Failed to refund cancelled match",
				zap.String("match_id", match.Id),
				zap.Error(err))
		}
	}
}
