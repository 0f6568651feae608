package engine

// Category identifies why a re-engagement message is sent.
type Category string

const (
	BrokeStreak      Category = "BROKE_3_STREAK"
	NoDay3           Category = "NO_DAY_3"
	NoDay7           Category = "NO_DAY_7"
	NoDayMultipleOf7 Category = "NO_DAY_MULTIPLE_7"
)

// Categories lists every follow-up category in classification order.
var Categories = []Category{BrokeStreak, NoDay3, NoDay7, NoDayMultipleOf7}

// MinBrokenStreak is the shortest run that earns a BrokeStreak follow-up.
const MinBrokenStreak = 3

// Kind is the outcome class of a per-user decision.
type Kind int

const (
	KindNone Kind = iota
	KindDailyReminder
	KindLapse
)

func (k Kind) String() string {
	switch k {
	case KindDailyReminder:
		return "daily_reminder"
	case KindLapse:
		return "lapse"
	default:
		return "none"
	}
}

// Decision is what one engine concluded for one user on one run.
type Decision struct {
	Kind     Kind
	Category Category // set only when Kind == KindLapse
}

// None is the empty decision.
var None = Decision{Kind: KindNone}

// DailyReminder is the decision for a user whose reminder window is open.
var DailyReminder = Decision{Kind: KindDailyReminder}

// ClassifyLapse maps days since the last completion and the streak that
// ended there to a follow-up category. First matching rule wins.
func ClassifyLapse(daysSinceLast, streakLength int) (Category, bool) {
	switch {
	case daysSinceLast <= 0:
		return "", false
	case daysSinceLast == 1 && streakLength >= MinBrokenStreak:
		return BrokeStreak, true
	case daysSinceLast == 3:
		return NoDay3, true
	case daysSinceLast == 7:
		return NoDay7, true
	case daysSinceLast >= 14 && daysSinceLast%7 == 0:
		return NoDayMultipleOf7, true
	}
	return "", false
}

// DecideFollowup combines a streak summary with today's date.
// It also returns the day gap it used so callers can log it.
func DecideFollowup(s StreakSummary, today Date) (Decision, int) {
	if !s.HasLast {
		return None, 0
	}
	days := DaysBetween(s.LastDate, today)
	cat, ok := ClassifyLapse(days, s.Length)
	if !ok {
		return None, days
	}
	return Decision{Kind: KindLapse, Category: cat}, days
}
