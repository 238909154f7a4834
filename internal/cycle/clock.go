// Package cycle implements the deferral rules that decide when a goal edit
// takes effect: immediately, or at the next commitment-cycle boundary.
package cycle

import "time"

// Clock provides the current time. Always injected; decision logic never
// reads the system clock directly, so tests stay deterministic.
type Clock interface {
	Now() time.Time
}

// WallClock is the production Clock backed by time.Now.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// Calendar performs timezone-aware day arithmetic. Weekdays are numbered
// 1 (Sunday) through 7 (Saturday).
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location { return c.loc }

// StartOfDay returns local midnight of t's day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// NextMidnight returns local midnight of the day after t.
func (c Calendar) NextMidnight(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, c.loc)
}

// Weekday returns t's weekday numbered 1 (Sunday) through 7 (Saturday).
func (c Calendar) Weekday(t time.Time) int {
	return int(t.In(c.loc).Weekday()) + 1
}

// MinuteOfDay returns minutes elapsed since t's local midnight.
func (c Calendar) MinuteOfDay(t time.Time) int {
	lt := t.In(c.loc)
	return lt.Hour()*60 + lt.Minute()
}

// DayKey returns t's local day as YYYY-MM-DD, the format persisted metrics
// are keyed by.
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// NextWeekdayMidnight returns local midnight of the next occurrence of the
// anchor weekday strictly after t's day. If t already falls on the anchor
// weekday the result is a full week out: an edit made on the anchor day
// waits for the next cycle instead of landing at the midnight just passed.
func (c Calendar) NextWeekdayMidnight(t time.Time, anchorWeekday int) time.Time {
	lt := t.In(c.loc)
	days := (anchorWeekday - c.Weekday(t) + 7) % 7
	if days == 0 {
		days = 7
	}
	return time.Date(lt.Year(), lt.Month(), lt.Day()+days, 0, 0, 0, 0, c.loc)
}
