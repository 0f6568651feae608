package service

import (
	"context"

	"github.com/quocanhngo/habitnudge/internal/engine"
	"go.uber.org/zap"
)

// EngineFollowup is the name of the habit-lapse engine in logs and guard keys.
const EngineFollowup = "followup"

// FollowupService sends re-engagement messages to users whose streak broke
// or who have been inactive for a qualifying number of days.
type FollowupService struct {
	pipeline
}

func NewFollowupService(deps Deps) *FollowupService {
	return &FollowupService{pipeline: pipeline{Deps: deps.withDefaults(), name: EngineFollowup}}
}

// Name implements scheduler.Job.
func (s *FollowupService) Name() string { return EngineFollowup }

// Run executes one follow-up pass against today's date in the configured zone.
func (s *FollowupService) Run(ctx context.Context) (*RunSummary, error) {
	sum, log, now := s.begin()
	today := engine.DateOf(now)
	log.Info("habit follow-up run started", zap.String("today", today.String()))

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		log.Error("snapshot read failed", zap.Error(err))
		return nil, err
	}
	sum.Scanned = snap.Scanned()
	sum.Malformed = len(snap.Skipped)
	for _, key := range snap.Skipped {
		log.Warn("skipping malformed record", zap.String("user", key))
	}

	var cands []candidate
	for _, rec := range snap.Records {
		if rec.PushToken == "" {
			continue
		}
		if !rec.NotificationsEnabled {
			sum.OptedOut++
			continue
		}

		streak, err := engine.AnalyzeStreakStrings(rec.CompletedDates)
		if err != nil {
			sum.Malformed++
			log.Warn("skipping record with malformed completion dates", zap.String("user", rec.ID), zap.Error(err))
			continue
		}

		decision, days := engine.DecideFollowup(streak, today)
		if decision.Kind == engine.KindNone {
			continue
		}
		log.Debug("follow-up due",
			zap.String("user", rec.ID),
			zap.Stringer("last", streak.LastDate),
			zap.Int("streak", streak.Length),
			zap.Int("days_since_last", days),
			zap.String("push_type", string(decision.Category)),
		)
		cands = append(cands, candidate{rec: rec, decision: decision})
	}
	sum.Eligible = len(cands)

	if err := s.deliver(ctx, log, sum, today, cands); err != nil {
		return nil, err
	}
	s.finish(log, sum)
	return sum, nil
}
