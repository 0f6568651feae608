package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/habitnudge/internal/engine"
	"github.com/quocanhngo/habitnudge/internal/guard"
	"github.com/quocanhngo/habitnudge/internal/message"
	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/quocanhngo/habitnudge/internal/repository"
	"github.com/quocanhngo/habitnudge/pkg/notification"
	"go.uber.org/zap"
)

// ErrSnapshotRead wraps any failure to read the user snapshot. It aborts the run.
var ErrSnapshotRead = errors.New("read snapshot")

const defaultSnapshotTimeout = 30 * time.Second

// Dispatcher hands rendered messages to the delivery provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []notification.Message) notification.Report
}

// Deps are the collaborators shared by both engines.
type Deps struct {
	Source          repository.UserRecordSource
	Dispatcher      Dispatcher
	Renderer        *message.Renderer
	Guard           guard.Guard
	Log             *zap.Logger
	Location        *time.Location
	SnapshotTimeout time.Duration
	Now             func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Renderer == nil {
		d.Renderer = message.NewRenderer()
	}
	if d.Guard == nil {
		d.Guard = guard.Noop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.SnapshotTimeout <= 0 {
		d.SnapshotTimeout = defaultSnapshotTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// RunSummary describes the outcome of one engine run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Engine     string    `json:"engine"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Scanned    int `json:"scanned"`
	Malformed  int `json:"malformed"`
	Eligible   int `json:"eligible"`
	OptedOut   int `json:"opted_out"`
	Suppressed int `json:"suppressed"`

	Requested     int            `json:"requested"`
	InvalidTokens int            `json:"invalid_tokens"`
	Chunks        int            `json:"chunks"`
	FailedChunks  int            `json:"failed_chunks"`
	Accepted      int            `json:"accepted"`
	TicketErrors  int            `json:"ticket_errors"`
	ByCategory    map[string]int `json:"by_category,omitempty"`
}

// candidate is a user the engine decided to notify.
type candidate struct {
	rec      model.UserRecord
	decision engine.Decision
}

// pipeline is the scan → classify → render → dispatch shape both engines share.
type pipeline struct {
	Deps
	name string
}

func (p *pipeline) begin() (*RunSummary, *zap.Logger, time.Time) {
	now := p.Now().In(p.Location)
	sum := &RunSummary{
		RunID:     uuid.NewString(),
		Engine:    p.name,
		StartedAt: now,
	}
	log := p.Log.With(zap.String("engine", p.name), zap.String("run_id", sum.RunID))
	return sum, log, now
}

func (p *pipeline) readSnapshot(ctx context.Context) (*repository.Snapshot, error) {
	readCtx, cancel := context.WithTimeout(ctx, p.SnapshotTimeout)
	defer cancel()

	snap, err := p.Source.ListAllUserRecords(readCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotRead, err)
	}
	return snap, nil
}

// deliver renders, guards and dispatches the candidates, filling in sum.
// A missing template aborts before anything is sent.
func (p *pipeline) deliver(ctx context.Context, log *zap.Logger, sum *RunSummary, day engine.Date, cands []candidate) error {
	msgs := make([]notification.Message, 0, len(cands))
	for _, c := range cands {
		msg, err := p.Renderer.Render(c.decision, c.rec.PushToken)
		if err != nil {
			return fmt.Errorf("render %s for %s: %w", c.decision.Kind, c.rec.ID, err)
		}
		msg.Ref = c.rec.ID

		ok, err := p.Guard.Claim(ctx, p.name, c.rec.ID, day)
		if err != nil {
			// The guard is best effort; a broken watermark must not block delivery.
			log.Warn("delivery guard unavailable, sending anyway", zap.String("user", c.rec.ID), zap.Error(err))
			ok = true
		}
		if !ok {
			sum.Suppressed++
			log.Debug("already notified today", zap.String("user", c.rec.ID))
			continue
		}

		if c.decision.Kind == engine.KindLapse {
			if sum.ByCategory == nil {
				sum.ByCategory = make(map[string]int)
			}
			sum.ByCategory[string(c.decision.Category)]++
		}
		msgs = append(msgs, msg)
	}

	log.Info("messages to send", zap.Int("count", len(msgs)))
	if len(msgs) == 0 {
		return nil
	}

	rep := p.Dispatcher.Dispatch(ctx, msgs)
	sum.Requested = rep.Requested
	sum.InvalidTokens = rep.InvalidTokens
	sum.Chunks = rep.Chunks
	sum.FailedChunks = rep.FailedChunks
	sum.Accepted = rep.Accepted()
	sum.TicketErrors = len(rep.Tickets) - sum.Accepted

	// Messages that never reached the provider give their slot back so the
	// next run can retry them, including those dropped for a bad token.
	unsent := append([]notification.Message(nil), rep.Invalid...)
	for _, ce := range rep.Errors {
		unsent = append(unsent, ce.Messages...)
	}
	unsent = append(unsent, rep.NotSent...)
	released := make(map[string]bool, len(unsent))
	for _, m := range unsent {
		if m.Ref == "" || released[m.Ref] {
			continue
		}
		released[m.Ref] = true
		if err := p.Guard.Release(context.WithoutCancel(ctx), p.name, m.Ref, day); err != nil {
			log.Warn("release delivery guard failed", zap.String("user", m.Ref), zap.Error(err))
		}
	}
	return nil
}

func (p *pipeline) finish(log *zap.Logger, sum *RunSummary) {
	sum.FinishedAt = p.Now().In(p.Location)
	log.Info("run finished",
		zap.Int("scanned", sum.Scanned),
		zap.Int("malformed", sum.Malformed),
		zap.Int("eligible", sum.Eligible),
		zap.Int("opted_out", sum.OptedOut),
		zap.Int("suppressed", sum.Suppressed),
		zap.Int("invalid_tokens", sum.InvalidTokens),
		zap.Int("chunks", sum.Chunks),
		zap.Int("failed_chunks", sum.FailedChunks),
		zap.Int("accepted", sum.Accepted),
		zap.Int("ticket_errors", sum.TicketErrors),
		zap.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)),
	)
}
