package shared

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod indicates a malformed settlement period string.
var ErrInvalidPeriod = errors.New("invalid period, expected YYYY-MM")

// Period identifies one calendar month settlement run.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM period string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// String renders the period back to YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Range returns the half-open interval [monthStart, nextMonthStart) in loc.
// The same boundary is used by preview and commit so both see identical
// delivery sets.
func (p Period) Range(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	next := p.Next()
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start, time.Date(next.Year, next.Month, 1, 0, 0, 0, 0, loc)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Period{Year: start.Year(), Month: start.Month()}
}
