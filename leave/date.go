package leave

import (
	"context"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date (the ledger never cares about clocks)
// =============================================================================

type Date struct {
	Time time.Time
}

// NewDate builds a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a wall-clock time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// WEEKEND DEFINITION
// =============================================================================

// Weekend is the set of non-working weekdays. The zero value is unusable;
// use DefaultWeekend unless the deployment says otherwise.
type Weekend map[time.Weekday]bool

// DefaultWeekend is Saturday and Sunday.
func DefaultWeekend() Weekend {
	return Weekend{time.Saturday: true, time.Sunday: true}
}

// Contains reports whether the date falls on a weekend day.
func (w Weekend) Contains(d Date) bool { return w[d.Weekday()] }

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holiday is a non-working date supplied by the calendar collaborator.
type Holiday struct {
	ID       string
	Date     Date
	Name     string
	Year     int
	Optional bool
}

// HolidaySet supports O(1) date membership checks.
type HolidaySet map[Date]bool

// NewHolidaySet indexes holidays by date. Optional holidays still count as
// working days and are excluded from the set.
func NewHolidaySet(holidays []Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		if h.Optional {
			continue
		}
		set[h.Date] = true
	}
	return set
}

// HolidayCalendar supplies the non-working dates for a range. It is an
// external collaborator; the sqlite store ships an implementation.
type HolidayCalendar interface {
	HolidaysInRange(ctx context.Context, from, to Date) ([]Holiday, error)
}
