package tracking

import (
	"database/sql"
	"time"
)

// StreakState mirrors the streak counters of a user profile.
type StreakState struct {
	CurrentDays       int
	LongestDays       int
	TotalDaysLogged   int
	LastUserMessageAt sql.NullTime
}

// Advance applies one user message at now. Within the same local day the
// counters are unchanged; the next day extends the streak; any larger gap
// restarts it at 1. It reports whether the counters moved.
func (s *StreakState) Advance(now time.Time, loc *time.Location) bool {
	today := LocalDate(now, loc)

	if !s.LastUserMessageAt.Valid {
		s.CurrentDays = 1
		s.bump(now)
		return true
	}

	gap, err := DaysBetween(LocalDate(s.LastUserMessageAt.Time, loc), today)
	if err != nil {
		gap = 2
	}

	switch {
	case gap < 0:
		// Out-of-order message; the newer timestamp stays.
		return false
	case gap == 0:
		s.LastUserMessageAt = sql.NullTime{Time: now, Valid: true}
		return false
	case gap == 1:
		s.CurrentDays++
	default:
		s.CurrentDays = 1
	}
	s.bump(now)
	return true
}

func (s *StreakState) bump(now time.Time) {
	if s.CurrentDays > s.LongestDays {
		s.LongestDays = s.CurrentDays
	}
	s.TotalDaysLogged++
	s.LastUserMessageAt = sql.NullTime{Time: now, Valid: true}
}
