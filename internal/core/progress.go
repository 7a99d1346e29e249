package core

import "time"

// ProgressUpdate describes one earned activity's effect on UserProgress
type ProgressUpdate struct {
	Points      int
	At          time.Time
	Badge       string
	Category    string
	PerfectQuiz *bool // nil when the activity had no quiz
}

// ApplyActivity folds an earned activity into progress: points, streak, activity count,
// quiz streak, badges and categories. Spends never go through here.
func ApplyActivity(p *UserProgress, u ProgressUpdate, loc *time.Location) {
	today := startOfDay(u.At, loc)

	p.CurrentStreak = nextStreak(p.CurrentStreak, p.LastActivityDate, today)
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	p.LastActivityDate = &today
	p.TotalPoints += u.Points
	p.TotalActivities++

	if u.PerfectQuiz != nil {
		if *u.PerfectQuiz {
			p.PerfectScoreStreak++
		} else {
			p.PerfectScoreStreak = 0
		}
	}
	if u.Badge != "" && !p.HasBadge(u.Badge) {
		p.Badges = append(p.Badges, u.Badge)
	}
	if u.Category != "" && !p.HasCompletedCategory(u.Category) {
		p.CompletedCategories = append(p.CompletedCategories, u.Category)
	}
}

// nextStreak computes the streak after an activity on today.
// Same day keeps the streak, the next day extends it, any longer gap restarts at 1.
func nextStreak(current int, last *time.Time, today time.Time) int {
	if last == nil {
		return 1
	}
	switch d := daysBetween(*last, today); {
	case d <= 0:
		// same day (or a clock that moved backwards)
		if current == 0 {
			return 1
		}
		return current
	case d == 1:
		return current + 1
	default:
		return 1
	}
}

// daysBetween counts calendar days from a to b using their civil dates
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// startOfDay normalizes t to midnight in loc
func startOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	inTZ := t.In(loc)
	year, month, day := inTZ.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
