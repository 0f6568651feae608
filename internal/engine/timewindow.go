package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MinutesPerDay is the modulus used for wrap-around clock arithmetic.
	MinutesPerDay = 24 * 60

	// DefaultWindowMinutes is the daily reminder tolerance window.
	// It must stay wider than the scheduler cadence plus its jitter.
	DefaultWindowMinutes = 5
)

// ErrMalformedClock is returned for reminder times that are not "HH:MM".
var ErrMalformedClock = errors.New("malformed clock time")

// ParseClock converts "HH:MM" (or "H:MM", with an optional ":SS" suffix) into
// minutes since midnight. Every field must be plain ASCII digits.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, s)
	}
	h, ok := clockField(parts[0], 1, 23)
	if !ok {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrMalformedClock, s)
	}
	m, ok := clockField(parts[1], 2, 59)
	if !ok {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrMalformedClock, s)
	}
	if len(parts) == 3 {
		if _, ok := clockField(parts[2], 2, 59); !ok {
			return 0, fmt.Errorf("%w: invalid second in %q", ErrMalformedClock, s)
		}
	}
	return h*60 + m, nil
}

// clockField parses a field of minLen to 2 ASCII digits no greater than limit.
func clockField(f string, minLen, limit int) (int, bool) {
	if len(f) < minLen || len(f) > 2 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, n <= limit
}

// ClockString formats t as "HH:MM" in t's location.
func ClockString(t time.Time) string {
	return t.Format("15:04")
}

// DiffMinutes returns (now - target) modulo one day, always in [0, 1440).
// 00:02 against a 23:59 target yields 3.
func DiffMinutes(now, target int) int {
	diff := (now - target) % MinutesPerDay
	if diff < 0 {
		diff += MinutesPerDay
	}
	return diff
}

// WindowMatcher decides whether a reminder time falls inside the trailing
// window that ends at "now".
type WindowMatcher struct {
	Width int
}

// NewWindowMatcher returns a matcher of the given width, falling back to
// DefaultWindowMinutes for non-positive values.
func NewWindowMatcher(width int) WindowMatcher {
	if width <= 0 {
		width = DefaultWindowMinutes
	}
	return WindowMatcher{Width: width}
}

// Due reports whether target is within (now-Width, now], i.e. 0 <= diff < Width.
// Malformed input is never due.
func (w WindowMatcher) Due(now, target string) bool {
	_, ok := w.Diff(now, target)
	return ok
}

// Diff returns the wrap-around difference and whether it falls inside the window.
func (w WindowMatcher) Diff(now, target string) (int, bool) {
	n, err := ParseClock(now)
	if err != nil {
		return 0, false
	}
	t, err := ParseClock(target)
	if err != nil {
		return 0, false
	}
	diff := DiffMinutes(n, t)
	return diff, diff >= 0 && diff < w.Width
}
