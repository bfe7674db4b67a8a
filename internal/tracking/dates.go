package tracking

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DateLayout is the format of every local date key.
const DateLayout = "2006-01-02"

// LocalDate returns the calendar date of the instant t in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// AddDays shifts a date key by n calendar days.
func AddDays(date string, n int) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", goerr.Wrap(err, "invalid date", goerr.V("date", date))
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b string) (int, error) {
	da, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid date", goerr.V("date", a))
	}
	db, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid date", goerr.V("date", b))
	}
	// Both are UTC midnights, so the difference is a whole number of days.
	return int(db.Sub(da).Hours() / 24), nil
}
