package service

import (
	"context"

	"github.com/quocanhngo/habitnudge/internal/engine"
	"go.uber.org/zap"
)

// EngineDaily is the name of the daily reminder engine in logs and guard keys.
const EngineDaily = "daily"

// DailyReminderService notifies users whose reminder time falls inside the
// window that ends now. It does not look at notificationsEnabled.
type DailyReminderService struct {
	pipeline
	matcher engine.WindowMatcher
}

func NewDailyReminderService(deps Deps, windowMinutes int) *DailyReminderService {
	return &DailyReminderService{
		pipeline: pipeline{Deps: deps.withDefaults(), name: EngineDaily},
		matcher:  engine.NewWindowMatcher(windowMinutes),
	}
}

// Name implements scheduler.Job.
func (s *DailyReminderService) Name() string { return EngineDaily }

// Run executes one daily reminder pass. Only setup and snapshot failures are
// returned; per-user and per-chunk problems are logged and counted.
func (s *DailyReminderService) Run(ctx context.Context) (*RunSummary, error) {
	sum, log, now := s.begin()
	hhmm := engine.ClockString(now)
	log.Info("daily reminder run started", zap.String("now", hhmm), zap.Int("window_minutes", s.matcher.Width))

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
		if rec.ReminderTime == "" || rec.PushToken == "" {
			continue
		}
		if _, err := engine.ParseClock(rec.ReminderTime); err != nil {
			sum.Malformed++
			log.Warn("skipping record with malformed reminder time",
				zap.String("user", rec.ID), zap.String("reminder_time", rec.ReminderTime))
			continue
		}

		diff, due := s.matcher.Diff(hhmm, rec.ReminderTime)
		if !due {
			continue
		}
		log.Debug("user inside reminder window",
			zap.String("user", rec.ID),
			zap.String("reminder_time", rec.ReminderTime),
			zap.Int("diff_minutes", diff),
		)
		cands = append(cands, candidate{rec: rec, decision: engine.DailyReminder})
	}
	sum.Eligible = len(cands)

	if err := s.deliver(ctx, log, sum, engine.DateOf(now), cands); err != nil {
		return nil, err
	}
	s.finish(log, sum)
	return sum, nil
}
