// Package clock supplies "today" to code that computes overdue and days-until values,
// so the answer depends on an injected clock instead of the wall clock.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Used in tests and one-shot sweeps.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

// Today returns midnight of the clock's current calendar day.
func Today(c Clock) time.Time {
	return Midnight(c.Now())
}

// Midnight drops the time of day, keeping t's calendar date and location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween counts calendar days from a to b; negative when b is before a.
// Each date is read in its own location so a due date stored in UTC and a local
// "today" still compare by calendar day.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
