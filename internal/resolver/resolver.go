// Package resolver periodically checks PLAYING matches against their game's
// authoritative data source and finishes the ones with a determined outcome.
// Resolution is idempotent: the winner rules are pure and the finish/payout
// writes are conditional, so overlapping checks of the same match are safe.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"wager-escrow-go/internal/lifecycle"
	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/payout"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/rules"
	"wager-escrow-go/internal/store"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Resolver schedules one recurring job per registered game type.
type Resolver struct {
	store     store.MatchStore
	registry  *provider.Registry
	lifecycle *lifecycle.Manager
	payouts   *payout.Orchestrator

	cfg       models.ResolverConfig
	intervals map[models.GameType]time.Duration

	scheduler gocron.Scheduler
	wg        sync.WaitGroup
}

func New(
	st store.MatchStore,
	registry *provider.Registry,
	lm *lifecycle.Manager,
	orchestrator *payout.Orchestrator,
	cfg models.ResolverConfig,
	intervals map[models.GameType]time.Duration,
) *Resolver {
	return &Resolver{
		store:     st,
		registry:  registry,
		lifecycle: lm,
		payouts:   orchestrator,
		cfg:       cfg,
		intervals: intervals,
	}
}

// Start registers a duration job per game type and begins polling. Only
// games with both an adapter and a configured interval get a job.
func (r *Resolver) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	r.scheduler = scheduler

	for _, gt := range r.registry.GameTypes() {
		interval, ok := r.intervals[gt]
		if !ok {
			zap.L().Warn("No poll interval configured, skipping game type",
				zap.String("game_type", string(gt)))
			continue
		}

		gameType := gt
		_, err := scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				if err := r.CheckNow(ctx, gameType); err != nil {
					zap.L().Error("Resolution pass failed",
						zap.String("game_type", string(gameType)),
						zap.Error(err))
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", gt, err)
		}
		zap.L().Info("Resolution job scheduled",
			zap.String("game_type", string(gt)),
			zap.Duration("interval", interval))
	}

	scheduler.Start()
	return nil
}

// Stop shuts the scheduler down and waits for in-flight match checks.
func (r *Resolver) Stop() {
	if r.scheduler != nil {
		if err := r.scheduler.Shutdown(); err != nil {
			zap.L().Warn("Scheduler shutdown failed", zap.Error(err))
		}
	}
	r.wg.Wait()
}

// CheckNow runs one resolution pass for a game type. Due matches are checked
// concurrently, each under its own timeout.
func (r *Resolver) CheckNow(ctx context.Context, gt models.GameType) error {
	adapter, err := r.registry.Lookup(gt)
	if err != nil {
		return err
	}

	matches, err := r.store.ListDuePlayingMatches(ctx, gt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to list due matches: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}

	zap.L().Debug("Checking playing matches",
		zap.String("game_type", string(gt)),
		zap.Int("count", len(matches)))

	for i := range matches {
		match := matches[i]
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, r.cfg.MatchTimeout)
			defer cancel()
			r.checkMatch(checkCtx, adapter, &match)
		}()
	}
	return nil
}

// checkMatch runs one adapter round trip and either finishes the match,
// reschedules it, or backs it off after a failure.
func (r *Resolver) checkMatch(ctx context.Context, adapter provider.Adapter, match *models.Match) {
	r.warnIfStale(match)

	outcome, err := r.resolve(ctx, adapter, match)
	if err != nil {
		r.backoff(ctx, match, err)
		return
	}

	// A usable answer, even "not yet", resets the backoff.
	if outcome == models.OutcomeUndetermined {
		r.reschedule(ctx, match, 0)
		return
	}

	if err := r.lifecycle.FinishMatch(ctx, match.Id, outcome.Winner()); err != nil {
		if errors.Is(err, store.ErrNotPlaying) {
			return
		}
		zap.L().Error("Failed to finish match",
			zap.String("match_id", match.Id),
			zap.Error(err))
		return
	}
	if err := r.payouts.Payout(ctx, match.Id); err != nil {
		// The sweeper picks unpaid finished matches back up.
		zap.L().Error("Payout failed after finish",
			zap.String("match_id", match.Id),
			zap.Error(err))
	}
}

func (r *Resolver) resolve(ctx context.Context, adapter provider.Adapter, match *models.Match) (models.Outcome, error) {
	creatorFields, err := models.DecodeGameFields(match.GameType, match.CreatorFields)
	if err != nil {
		return models.OutcomeUndetermined, err
	}
	joinerFields, err := models.DecodeGameFields(match.GameType, match.JoinerFields)
	if err != nil {
		return models.OutcomeUndetermined, err
	}

	if match.GameType.UsesSnapshots() {
		snapshotter, ok := adapter.(provider.SnapshotAdapter)
		if !ok {
			return models.OutcomeUndetermined, fmt.Errorf("adapter for %s does not capture snapshots", match.GameType)
		}
		return r.resolveSnapshots(ctx, snapshotter, match, creatorFields, joinerFields)
	}

	h2h, ok := adapter.(provider.HeadToHeadAdapter)
	if !ok {
		return models.OutcomeUndetermined, fmt.Errorf("adapter for %s does not resolve head-to-head", match.GameType)
	}
	// The lookup window opens at match creation, so a game played between
	// create and join still counts.
	record, err := h2h.FindHeadToHead(ctx, creatorFields, joinerFields, match.CreatedAt.UnixMilli())
	if err != nil {
		return models.OutcomeUndetermined, err
	}
	if match.GameType == models.GameClanWar {
		return rules.DecideClanWar(record), nil
	}
	return rules.DecideHeadToHead(record), nil
}

func (r *Resolver) resolveSnapshots(
	ctx context.Context,
	adapter provider.SnapshotAdapter,
	match *models.Match,
	creatorFields, joinerFields models.GameFields,
) (models.Outcome, error) {
	creatorAfter, err := adapter.CaptureSnapshot(ctx, creatorFields)
	if err != nil {
		return models.OutcomeUndetermined, err
	}
	joinerAfter, err := adapter.CaptureSnapshot(ctx, joinerFields)
	if err != nil {
		return models.OutcomeUndetermined, err
	}
	if err := r.store.UpdateAfterSnapshots(ctx, match.Id, creatorAfter, joinerAfter); err != nil {
		return models.OutcomeUndetermined, err
	}

	creatorDiff := rules.ComputeDiff(match.CreatorBefore, creatorAfter)
	joinerDiff := rules.ComputeDiff(match.JoinerBefore, joinerAfter)
	if match.GameType == models.GameRocketLeague {
		return rules.DecideRocketLeague(creatorDiff, joinerDiff), nil
	}
	return rules.DecideSnapshotDiff(creatorDiff, joinerDiff), nil
}

// backoff pushes the next check out exponentially, capped at a multiple of
// the game's poll interval.
func (r *Resolver) backoff(ctx context.Context, match *models.Match, cause error) {
	attempts := match.CheckAttempts + 1
	zap.L().Warn("Match check failed, backing off",
		zap.String("match_id", match.Id),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	r.reschedule(ctx, match, attempts)
}

func (r *Resolver) reschedule(ctx context.Context, match *models.Match, attempts int) {
	interval := r.intervals[match.GameType]
	delay := interval
	if attempts > 0 {
		delay = time.Duration(float64(interval) * math.Pow(2, float64(attempts)))
		if limit := interval * time.Duration(r.cfg.MaxBackoffFactor); delay > limit {
			delay = limit
		}
	}
	next := time.Now().UTC().Add(delay)
	if err := r.store.UpdateCheckState(ctx, match.Id, attempts, next); err != nil {
		zap.L().Error("Failed to persist check state",
			zap.String("match_id", match.Id),
			zap.Error(err))
	}
}

func (r *Resolver) warnIfStale(match *models.Match) {
	if r.cfg.StaleAfter <= 0 || match.StartedAt.IsZero() {
		return
	}
	if age := time.Since(match.StartedAt); age > r.cfg.StaleAfter {
		zap.L().Warn("Match has been unresolved for a long time",
			zap.String("match_id", match.Id),
			zap.String("game_type", string(match.GameType)),
			zap.Duration("age", age))
	}
}
