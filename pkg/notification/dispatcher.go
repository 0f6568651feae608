package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultChunkTimeout = 15 * time.Second
	DefaultConcurrency  = 1
)

// DispatcherConfig tunes chunking and submission.
type DispatcherConfig struct {
	// BatchSize caps chunk size below the provider limit; 0 uses the provider limit.
	BatchSize    int
	ChunkTimeout time.Duration
	Concurrency  int
	// RatePerSecond paces chunk submissions; 0 disables pacing.
	RatePerSecond float64
	// DryRun validates and chunks but never calls the provider.
	DryRun bool
}

// ChunkError records a chunk that failed as a whole.
type ChunkError struct {
	Index    int
	Size     int
	Err      error
	Messages []Message
}

// Report summarizes one Dispatch call.
type Report struct {
	Requested     int
	InvalidTokens int

	// Invalid holds the messages dropped for a bad token.
	Invalid []Message

	Chunks       int
	ChunkSizes   []int // size of every chunk in submission order
	FailedChunks int

	// Skipped counts chunks never started because the run was cancelled.
	Skipped int
	NotSent []Message
	Tickets []Ticket
	Errors  []ChunkError
}

// Accepted counts tickets the provider acknowledged with status ok.
func (r Report) Accepted() int {
	n := 0
	for _, t := range r.Tickets {
		if t.Status == TicketOK {
			n++
		}
	}
	return n
}

// Dispatcher validates, chunks and submits messages to a Provider.
type Dispatcher struct {
	provider Provider
	log      *zap.Logger
	cfg      DispatcherConfig
	limiter  *rate.Limiter
}

// NewDispatcher builds a dispatcher for provider.
func NewDispatcher(provider Provider, log *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	limit := provider.MaxBatchSize()
	if cfg.BatchSize <= 0 || cfg.BatchSize > limit {
		cfg.BatchSize = limit
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	d := &Dispatcher{provider: provider, log: log, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return d
}

// Chunk splits msgs into consecutive slices of at most size elements.
func Chunk(msgs []Message, size int) [][]Message {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		chunks = append(chunks, msgs[start:end])
	}
	return chunks
}

type chunkResult struct {
	started bool
	tickets []Ticket
	err     error
}

// Dispatch submits msgs and never fails the caller: invalid tokens are
// dropped, and a failing chunk is recorded without stopping the others.
// Once ctx is cancelled no new chunk starts; chunks already in flight finish
// under their own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []Message) Report {
	rep := Report{Requested: len(msgs)}

	valid := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.To == "" || !d.provider.ValidToken(m.To) {
			rep.InvalidTokens++
			rep.Invalid = append(rep.Invalid, m)
			d.log.Warn("dropping message with invalid push token",
				zap.String("provider", d.provider.Name()),
				zap.String("token", m.To),
				zap.String("tag", m.Tag()),
			)
			continue
		}
		valid = append(valid, m)
	}

	chunks := Chunk(valid, d.cfg.BatchSize)
	rep.Chunks = len(chunks)
	for _, c := range chunks {
		rep.ChunkSizes = append(rep.ChunkSizes, len(c))
	}
	if len(chunks) == 0 {
		return rep
	}

	results := make([]chunkResult, len(chunks))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			// The slot may have been freed after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			tickets, err := d.submit(ctx, i, chunk)
			mu.Lock()
			results[i] = chunkResult{started: true, tickets: tickets, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		switch {
		case !res.started:
			rep.Skipped++
			rep.NotSent = append(rep.NotSent, chunks[i]...)
		case res.err != nil:
			rep.FailedChunks++
			rep.Errors = append(rep.Errors, ChunkError{Index: i, Size: len(chunks[i]), Err: res.err, Messages: chunks[i]})
		default:
			rep.Tickets = append(rep.Tickets, res.tickets...)
		}
	}
	return rep
}

func (d *Dispatcher) submit(ctx context.Context, idx int, chunk []Message) ([]Ticket, error) {
	if d.cfg.DryRun {
		tickets := make([]Ticket, len(chunk))
		for i, m := range chunk {
			tickets[i] = Ticket{To: m.To, Status: TicketOK, Message: "dry-run"}
			d.log.Info("dry-run message",
				zap.String("to", m.To),
				zap.String("title", m.Title),
				zap.String("tag", m.Tag()),
				zap.String("push_type", m.Data["pushType"]),
			)
		}
		return tickets, nil
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ChunkTimeout)
	defer cancel()

	start := time.Now()
	tickets, err := d.provider.Send(sendCtx, chunk)
	if err != nil {
		d.log.Error("chunk submission failed",
			zap.String("provider", d.provider.Name()),
			zap.Int("chunk", idx),
			zap.Int("size", len(chunk)),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	failed := 0
	for _, t := range tickets {
		if t.Status != TicketOK {
			failed++
			d.log.Warn("push ticket error",
				zap.String("provider", d.provider.Name()),
				zap.String("to", t.To),
				zap.String("message", t.Message),
			)
		}
	}
	d.log.Info("chunk submitted",
		zap.String("provider", d.provider.Name()),
		zap.Int("chunk", idx),
		zap.Int("size", len(chunk)),
		zap.Int("ticket_errors", failed),
		zap.Duration("took", time.Since(start)),
	)
	return tickets, nil
}
