package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffMinutes_AlwaysInRange(t *testing.T) {
	for now := 0; now < MinutesPerDay; now += 7 {
		for target := 0; target < MinutesPerDay; target += 11 {
			d := DiffMinutes(now, target)
			assert.GreaterOrEqual(t, d, 0)
			assert.Less(t, d, MinutesPerDay)
		}
	}
}

func TestWindowMatcher_WrapsAroundMidnight(t *testing.T) {
	m := NewWindowMatcher(DefaultWindowMinutes)

	diff, due := m.Diff("00:02", "23:59")
	assert.Equal(t, 3, diff)
	assert.True(t, due)
}

func TestWindowMatcher_Edges(t *testing.T) {
	m := NewWindowMatcher(5)

	cases := []struct {
		now, target string
		want        bool
	}{
		{"08:00", "08:00", true},
		{"08:03", "08:00", true},
		{"08:04", "08:00", true},
		{"08:05", "08:00", false},
		{"08:06", "08:00", false},
		{"07:59", "08:00", false},
		{"8:01", "08:00", true},
		{"08:01:30", "08:00", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, m.Due(c.now, c.target), "now=%s target=%s", c.now, c.target)
	}
}

func TestWindowMatcher_MalformedIsNeverDue(t *testing.T) {
	m := NewWindowMatcher(5)
	for _, bad := range []string{"", "8", "25:00", "08:60", "ab:cd", "08:0", "008:00", "08-00",
		"08:+3", "+8:00", "-0:00", " 8:00x", "08:00:zz", "08:00:99", "08:00:5", "08:00:+5", "08:00:00:00"} {
		assert.False(t, m.Due("08:00", bad), bad)
		assert.False(t, m.Due(bad, "08:00"), bad)
	}
}

func TestParseClock_Seconds(t *testing.T) {
	m, err := ParseClock("08:03:59")
	require.NoError(t, err)
	assert.Equal(t, 8*60+3, m)

	m, err = ParseClock("8:03")
	require.NoError(t, err)
	assert.Equal(t, 8*60+3, m)

	_, err = ParseClock("08:03:60")
	assert.ErrorIs(t, err, ErrMalformedClock)
}

func TestNewWindowMatcher_DefaultsWidth(t *testing.T) {
	assert.Equal(t, DefaultWindowMinutes, NewWindowMatcher(0).Width)
	assert.Equal(t, 10, NewWindowMatcher(10).Width)
}

func TestClockString(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	ts := time.Date(2024, 3, 9, 7, 5, 59, 0, loc)
	assert.Equal(t, "07:05", ClockString(ts))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{2024, time.February, 29}, d)
	assert.Equal(t, "2024-02-29", d.String())

	for _, bad := range []string{"", "2024-2-1", "2023-02-29", "01/02/2024", "2024-01-01T10:00:00Z"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrMalformedDate, bad)
	}
}

func TestDaysBetween_AcrossDST(t *testing.T) {
	// 2024-03-10 is the US spring-forward day; day math must ignore it.
	assert.Equal(t, 1, DaysBetween(Date{2024, 3, 9}, Date{2024, 3, 10}))
	assert.Equal(t, 2, DaysBetween(Date{2024, 3, 9}, Date{2024, 3, 11}))
	assert.Equal(t, 366, DaysBetween(Date{2024, 1, 1}, Date{2025, 1, 1}))
	assert.Equal(t, -1, DaysBetween(Date{2024, 1, 2}, Date{2024, 1, 1}))
}

func TestAnalyzeStreak(t *testing.T) {
	cases := []struct {
		name     string
		in       []string
		wantLast string
		wantLen  int
	}{
		{"consecutive", []string{"2024-01-01", "2024-01-02", "2024-01-03"}, "2024-01-03", 3},
		{"gap breaks chain", []string{"2024-01-01", "2024-01-05"}, "2024-01-05", 1},
		{"single", []string{"2024-06-30"}, "2024-06-30", 1},
		{"month boundary", []string{"2024-01-30", "2024-01-31", "2024-02-01"}, "2024-02-01", 3},
		{"older run ignored", []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-10", "2024-01-11"}, "2024-01-11", 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := AnalyzeStreakStrings(c.in)
			require.NoError(t, err)
			require.True(t, s.HasLast)
			assert.Equal(t, c.wantLast, s.LastDate.String())
			assert.Equal(t, c.wantLen, s.Length)
		})
	}
}

func TestAnalyzeStreak_Empty(t *testing.T) {
	s, err := AnalyzeStreakStrings(nil)
	require.NoError(t, err)
	assert.False(t, s.HasLast)
	assert.Equal(t, 0, s.Length)
	assert.True(t, s.LastDate.IsZero())
}

func TestAnalyzeStreak_MalformedFails(t *testing.T) {
	_, err := AnalyzeStreakStrings([]string{"2024-01-01", "yesterday"})
	assert.ErrorIs(t, err, ErrMalformedDate)
}

func TestAnalyzeStreak_OrderAndDuplicatesDoNotMatter(t *testing.T) {
	base := []string{"2024-01-01", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06"}
	want, err := AnalyzeStreakStrings(base)
	require.NoError(t, err)
	require.Equal(t, 4, want.Length)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		in := append([]string{}, base...)
		for j := 0; j < rng.Intn(6); j++ {
			in = append(in, base[rng.Intn(len(base))])
		}
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })

		got, err := AnalyzeStreakStrings(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %v", in)
	}
}

func TestClassifyLapse(t *testing.T) {
	cases := []struct {
		days, streak int
		want         Category
		ok           bool
	}{
		{1, 3, BrokeStreak, true},
		{1, 10, BrokeStreak, true},
		{1, 2, "", false},
		{2, 5, "", false},
		{3, 1, NoDay3, true},
		{3, 9, NoDay3, true},
		{7, 1, NoDay7, true},
		{14, 1, NoDayMultipleOf7, true},
		{21, 4, NoDayMultipleOf7, true},
		{15, 1, "", false},
		{0, 5, "", false},
		{-2, 5, "", false},
	}
	for _, c := range cases {
		got, ok := ClassifyLapse(c.days, c.streak)
		assert.Equal(t, c.ok, ok, "(%d,%d)", c.days, c.streak)
		assert.Equal(t, c.want, got, "(%d,%d)", c.days, c.streak)
	}
}

func TestDecideFollowup(t *testing.T) {
	today := Date{2024, time.January, 10}

	s, err := AnalyzeStreakStrings([]string{"2024-01-01", "2024-01-02", "2024-01-03"})
	require.NoError(t, err)
	d, days := DecideFollowup(s, today)
	assert.Equal(t, 7, days)
	assert.Equal(t, Decision{Kind: KindLapse, Category: NoDay7}, d)

	d, _ = DecideFollowup(StreakSummary{}, today)
	assert.Equal(t, None, d)

	future := StreakSummary{LastDate: Date{2024, time.January, 11}, HasLast: true, Length: 1}
	d, days = DecideFollowup(future, today)
	assert.Equal(t, -1, days)
	assert.Equal(t, KindNone, d.Kind)
}
