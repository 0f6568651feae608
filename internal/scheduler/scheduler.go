package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quocanhngo/habitnudge/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one engine the scheduler can trigger.
type Job interface {
	Name() string
	Run(ctx context.Context) (*service.RunSummary, error)
}

// Status is what the scheduler remembers about a job's most recent run.
type Status struct {
	Engine      string              `json:"engine"`
	Spec        string              `json:"spec"`
	Next        time.Time           `json:"next,omitempty"`
	LastAttempt time.Time           `json:"last_attempt,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	LastRun     *service.RunSummary `json:"last_run,omitempty"`
}

type entry struct {
	// running serializes cron ticks with manual triggers.
	running sync.Mutex
	id      cron.EntryID
	spec    string
	job     Job
	status  Status
}

// Scheduler runs engines on cron specs. A run still in progress when its next
// tick fires causes that tick to be skipped, so one engine never overlaps itself.
type Scheduler struct {
	log        *zap.Logger
	c          *cron.Cron
	runTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
	stopped bool
	// runs counts every job run in progress, cron-fired or manual.
	runs sync.WaitGroup
}

// New returns a scheduler evaluating specs in loc. runTimeout bounds a
// single job run; zero means no bound beyond the parent context.
func New(loc *time.Location, runTimeout time.Duration, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log.Sugar()}
	return &Scheduler{
		log:        log,
		runTimeout: runTimeout,
		ctx:        context.Background(),
		entries:    make(map[string]*entry),
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Add registers job under spec. Standard five-field specs and descriptors
// such as "@every 1m" are accepted.
func (s *Scheduler) Add(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}
	e := &entry{spec: spec, job: job, status: Status{Engine: name, Spec: spec}}
	id, err := s.c.AddFunc(spec, func() { s.Trigger(name) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	e.id = id
	s.entries[name] = e
	s.log.Info("job scheduled", zap.String("engine", name), zap.String("spec", spec))
	return nil
}

// Start begins firing jobs. Runs use ctx, so cancelling it stops new chunks
// from being submitted by any run in progress.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.c.Start()
	s.log.Info("scheduler started", zap.String("tz", s.c.Location().String()))
}

// Stop prevents new ticks and triggers and returns a context done once every
// running job, including manually triggered ones, has finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("scheduler stopping")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.c.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.runs.Wait()
		cancel()
	}()
	return ctx
}

// Trigger runs the named job now on the calling goroutine and records the
// result. It is a no-op while the same job is already running or after Stop.
func (s *Scheduler) Trigger(name string) {
	s.mu.Lock()
	e, ok := s.entries[name]
	ctx := s.ctx
	stopped := s.stopped
	if ok && !stopped {
		s.runs.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		s.log.Warn("trigger for unknown job", zap.String("engine", name))
		return
	}
	if stopped {
		s.log.Info("scheduler stopped, ignoring trigger", zap.String("engine", name))
		return
	}
	defer s.runs.Done()
	if !e.running.TryLock() {
		s.log.Info("run already in progress, skipping", zap.String("engine", name))
		return
	}
	defer e.running.Unlock()

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	started := time.Now()
	sum, err := e.job.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.status.LastAttempt = started
	if err != nil {
		e.status.LastError = err.Error()
		s.log.Error("job failed", zap.String("engine", name), zap.Error(err))
		return
	}
	e.status.LastError = ""
	e.status.LastRun = sum
}

// LastRuns returns the status of every scheduled job ordered by name.
func (s *Scheduler) LastRuns() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.status
		st.Next = s.c.Entry(e.id).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Engine < out[j].Engine })
	return out
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
