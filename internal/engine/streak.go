package engine

import "sort"

// StreakSummary is derived from a user's completion dates on every run.
type StreakSummary struct {
	LastDate Date
	HasLast  bool
	// Length counts consecutive days ending at LastDate; at least 1 when HasLast.
	Length int
}

// AnalyzeStreak finds the most recent completion and the length of the
// consecutive-day run that ends on it. Order and duplicates do not matter.
func AnalyzeStreak(dates []Date) StreakSummary {
	if len(dates) == 0 {
		return StreakSummary{}
	}

	seen := make(map[Date]struct{}, len(dates))
	uniq := make([]Date, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, d)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Before(uniq[j]) })

	last := uniq[len(uniq)-1]
	streak := 1
	prev := last
	for i := len(uniq) - 2; i >= 0; i-- {
		if DaysBetween(uniq[i], prev) != 1 {
			break
		}
		streak++
		prev = uniq[i]
	}

	return StreakSummary{LastDate: last, HasLast: true, Length: streak}
}

// AnalyzeStreakStrings parses "YYYY-MM-DD" strings and analyzes them.
// A single malformed entry fails the whole set.
func AnalyzeStreakStrings(ss []string) (StreakSummary, error) {
	dates := make([]Date, 0, len(ss))
	for _, s := range ss {
		d, err := ParseDate(s)
		if err != nil {
			return StreakSummary{}, err
		}
		dates = append(dates, d)
	}
	return AnalyzeStreak(dates), nil
}
