package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quocanhngo/habitnudge/internal/engine"
	"github.com/quocanhngo/habitnudge/internal/guard"
	"github.com/quocanhngo/habitnudge/internal/message"
	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/quocanhngo/habitnudge/internal/repository"
	"github.com/quocanhngo/habitnudge/pkg/notification"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingProvider accepts every message and remembers each chunk.
type recordingProvider struct {
	mu        sync.Mutex
	chunks    [][]notification.Message
	fail      bool
	failFirst int // fail this many calls before succeeding
}

func (p *recordingProvider) Name() string      { return "recording" }
func (p *recordingProvider) MaxBatchSize() int { return notification.ExpoMaxBatchSize }
func (p *recordingProvider) ValidToken(tok string) bool {
	return notification.IsExpoPushToken(tok)
}

func (p *recordingProvider) Send(_ context.Context, msgs []notification.Message) ([]notification.Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, append([]notification.Message(nil), msgs...))
	if p.fail || len(p.chunks) <= p.failFirst {
		return nil, errors.New("provider down")
	}
	out := make([]notification.Ticket, len(msgs))
	for i, m := range msgs {
		out[i] = notification.Ticket{To: m.To, Status: notification.TicketOK}
	}
	return out, nil
}

func (p *recordingProvider) sent() []notification.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []notification.Message
	for _, c := range p.chunks {
		all = append(all, c...)
	}
	return all
}

func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2024, time.January, 10, hour, minute, 0, 0, time.UTC) }
}

func newDeps(t *testing.T, src repository.UserRecordSource, p *recordingProvider, now func() time.Time) Deps {
	t.Helper()
	return Deps{
		Source:     src,
		Dispatcher: notification.NewDispatcher(p, zap.NewNop(), notification.DispatcherConfig{}),
		Renderer:   message.NewRenderer(),
		Log:        zap.NewNop(),
		Location:   time.UTC,
		Now:        now,
	}
}

func staticSource(t *testing.T, recs ...model.UserRecord) *repository.StaticSource {
	t.Helper()
	src, err := repository.NewStaticSource(recs...)
	require.NoError(t, err)
	return src
}

func TestDailyReminder_FiresInsideWindow(t *testing.T) {
	src := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: true,
	})

	p := &recordingProvider{}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(8, 3)), 5).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Eligible)
	assert.Equal(t, 1, sum.Accepted)
	require.Len(t, p.chunks, 1)
	msg := p.chunks[0][0]
	assert.Equal(t, "ExponentPushToken[u1]", msg.To)
	assert.Equal(t, message.TagDailyReminder, msg.Data["type"])
	assert.Equal(t, "default", msg.Sound)
}

func TestDailyReminder_SkipsOutsideWindow(t *testing.T) {
	src := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: true,
	})

	p := &recordingProvider{}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(8, 6)), 5).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.Eligible)
	assert.Empty(t, p.chunks, "no provider call when nothing is due")
}

func TestDailyReminder_WrapsAroundMidnight(t *testing.T) {
	src := staticSource(t, model.UserRecord{
		ID: "late", PushToken: "ExponentPushToken[late]", ReminderTime: "23:59", NotificationsEnabled: true,
	})

	p := &recordingProvider{}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(0, 2)), 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Eligible)
}

func TestDailyReminder_IgnoresOptOutFlag(t *testing.T) {
	src := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: false,
	})

	p := &recordingProvider{}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(8, 0)), 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Accepted)
}

func TestDailyReminder_SkipsIncompleteAndMalformedRows(t *testing.T) {
	src := staticSource(t,
		model.UserRecord{ID: "no-time", PushToken: "ExponentPushToken[a]", NotificationsEnabled: true},
		model.UserRecord{ID: "no-token", ReminderTime: "08:00", NotificationsEnabled: true},
		model.UserRecord{ID: "bad-time", PushToken: "ExponentPushToken[b]", ReminderTime: "8h", NotificationsEnabled: true},
		model.UserRecord{ID: "ok", PushToken: "ExponentPushToken[c]", ReminderTime: "08:01", NotificationsEnabled: true},
	)
	src.Entries = append(src.Entries, model.KVEntry{Key: "broken", Value: []byte("{")})

	p := &recordingProvider{}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(8, 2)), 5).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Scanned)
	assert.Equal(t, 2, sum.Malformed)
	assert.Equal(t, 1, sum.Eligible)
	require.Len(t, p.sent(), 1)
	assert.Equal(t, "ExponentPushToken[c]", p.sent()[0].To)
}

func TestFollowup_NoDay7WithFlagAbsent(t *testing.T) {
	src := &repository.StaticSource{Entries: []model.KVEntry{{
		Key:   "u7",
		Value: []byte(`{"pushToken":"ExponentPushToken[u7]","completedDates":["2024-01-01","2024-01-02","2024-01-03"]}`),
	}}}

	p := &recordingProvider{}
	sum, err := NewFollowupService(newDeps(t, src, p, fixedClock(9, 0))).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, p.chunks, 1)
	require.Len(t, p.chunks[0], 1)
	msg := p.chunks[0][0]
	assert.Equal(t, message.TagHabitFollowup, msg.Data["type"])
	assert.Equal(t, string(engine.NoDay7), msg.Data["pushType"])
	assert.Equal(t, map[string]int{string(engine.NoDay7): 1}, sum.ByCategory)
}

func TestFollowup_ClassifiesEveryCategory(t *testing.T) {
	src := staticSource(t,
		model.UserRecord{ID: "broke", PushToken: "ExponentPushToken[broke]", NotificationsEnabled: true,
			CompletedDates: []string{"2024-01-07", "2024-01-08", "2024-01-09"}},
		model.UserRecord{ID: "day3", PushToken: "ExponentPushToken[day3]", NotificationsEnabled: true,
			CompletedDates: []string{"2024-01-07"}},
		model.UserRecord{ID: "day14", PushToken: "ExponentPushToken[day14]", NotificationsEnabled: true,
			CompletedDates: []string{"2023-12-27"}},
		model.UserRecord{ID: "active", PushToken: "ExponentPushToken[active]", NotificationsEnabled: true,
			CompletedDates: []string{"2024-01-10"}},
		model.UserRecord{ID: "short", PushToken: "ExponentPushToken[short]", NotificationsEnabled: true,
			CompletedDates: []string{"2024-01-09"}},
		model.UserRecord{ID: "never", PushToken: "ExponentPushToken[never]", NotificationsEnabled: true},
	)

	p := &recordingProvider{}
	sum, err := NewFollowupService(newDeps(t, src, p, fixedClock(9, 0))).Run(context.Background())
	require.NoError(t, err)

	got := map[string]string{}
	for _, m := range p.sent() {
		got[m.To] = m.Data["pushType"]
	}
	assert.Equal(t, map[string]string{
		"ExponentPushToken[broke]": string(engine.BrokeStreak),
		"ExponentPushToken[day3]":  string(engine.NoDay3),
		"ExponentPushToken[day14]": string(engine.NoDayMultipleOf7),
	}, got)
	assert.Equal(t, 3, sum.Eligible)
	assert.Equal(t, 3, sum.Accepted)
}

func TestFollowup_HonoursOptOutAndSkipsMalformed(t *testing.T) {
	src := staticSource(t,
		model.UserRecord{ID: "opted", PushToken: "ExponentPushToken[opted]", NotificationsEnabled: false,
			CompletedDates: []string{"2024-01-03"}},
		model.UserRecord{ID: "bad", PushToken: "ExponentPushToken[bad]", NotificationsEnabled: true,
			CompletedDates: []string{"yesterday"}},
	)

	p := &recordingProvider{}
	sum, err := NewFollowupService(newDeps(t, src, p, fixedClock(9, 0))).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.OptedOut)
	assert.Equal(t, 1, sum.Malformed)
	assert.Zero(t, sum.Eligible)
	assert.Empty(t, p.chunks)
}

func TestRun_SnapshotFailureAborts(t *testing.T) {
	src := &repository.StaticSource{Err: errors.New("connection refused")}
	p := &recordingProvider{}

	_, err := NewFollowupService(newDeps(t, src, p, fixedClock(9, 0))).Run(context.Background())
	require.ErrorIs(t, err, ErrSnapshotRead)

	_, err = NewDailyReminderService(newDeps(t, src, p, fixedClock(9, 0)), 5).Run(context.Background())
	require.ErrorIs(t, err, ErrSnapshotRead)
	assert.Empty(t, p.chunks)
}

func TestRun_ChunkFailureIsReportedNotReturned(t *testing.T) {
	src := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: true,
	})

	p := &recordingProvider{fail: true}
	sum, err := NewDailyReminderService(newDeps(t, src, p, fixedClock(8, 0)), 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedChunks)
	assert.Zero(t, sum.Accepted)
}

func TestRun_GuardSuppressesSecondRunAndReleasesFailedChunks(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: true,
	})

	down := &recordingProvider{fail: true}
	deps := newDeps(t, src, down, fixedClock(8, 1))
	deps.Guard = guard.NewRedisGuard(rdb, "sent:", time.Hour)

	sum, err := NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedChunks)
	assert.False(t, mr.Exists("sent:daily:2024-01-10:u1"), "failed chunk gives the slot back")

	up := &recordingProvider{}
	deps = newDeps(t, src, up, fixedClock(8, 2))
	deps.Guard = guard.NewRedisGuard(rdb, "sent:", time.Hour)

	sum, err = NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Accepted)

	sum, err = NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Suppressed)
	assert.Zero(t, sum.Requested)
	assert.Len(t, up.sent(), 1, "second run inside the same window sends nothing")
}

func TestRun_GuardReleasesSlotOfInvalidToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bad := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "garbage", ReminderTime: "08:00", NotificationsEnabled: true,
	})
	p := &recordingProvider{}
	deps := newDeps(t, bad, p, fixedClock(8, 1))
	deps.Guard = guard.NewRedisGuard(rdb, "sent:", time.Hour)

	sum, err := NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.InvalidTokens)
	assert.False(t, mr.Exists("sent:daily:2024-01-10:u1"), "dropped message gives the slot back")

	fixed := staticSource(t, model.UserRecord{
		ID: "u1", PushToken: "ExponentPushToken[u1]", ReminderTime: "08:00", NotificationsEnabled: true,
	})
	deps = newDeps(t, fixed, p, fixedClock(8, 3))
	deps.Guard = guard.NewRedisGuard(rdb, "sent:", time.Hour)

	sum, err = NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Suppressed)
	assert.Equal(t, 1, sum.Accepted)
}

func TestRun_GuardReleasesOnlyUsersInFailedChunk(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// Two accounts on one device.
	src := staticSource(t,
		model.UserRecord{ID: "u1", PushToken: "ExponentPushToken[shared]", ReminderTime: "08:00", NotificationsEnabled: true},
		model.UserRecord{ID: "u2", PushToken: "ExponentPushToken[shared]", ReminderTime: "08:00", NotificationsEnabled: true},
	)
	p := &recordingProvider{failFirst: 1}
	deps := newDeps(t, src, p, fixedClock(8, 1))
	deps.Dispatcher = notification.NewDispatcher(p, zap.NewNop(), notification.DispatcherConfig{BatchSize: 1})
	deps.Guard = guard.NewRedisGuard(rdb, "sent:", time.Hour)

	sum, err := NewDailyReminderService(deps, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Chunks)
	assert.Equal(t, 1, sum.FailedChunks)

	assert.False(t, mr.Exists("sent:daily:2024-01-10:u1"), "failed user is released")
	assert.True(t, mr.Exists("sent:daily:2024-01-10:u2"), "delivered user keeps its slot")
}
