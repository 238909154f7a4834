// Package unlock registers the recurring daily unlock window with the OS
// scheduling capability and reacts to its triggers.
package unlock

// Identifier naming has gone through two schemas. The current one registers
// a single canonical name; an earlier one registered seven weekday-indexed
// names. Registrations from the old schema can still be live with the OS
// after an upgrade, so trigger matching accepts the whole generation set.
const (
	CanonicalName = "daily_unlock"
	WeekdayPrefix = "daily_unlock_"
)

const minutesPerDay = 1440

// GenerationSet returns every identifier that has ever named the daily
// unlock window: the canonical name plus the seven weekday-indexed names.
func GenerationSet() []string {
	set := make([]string, 0, 8)
	set = append(set, CanonicalName)
	for weekday := 1; weekday <= 7; weekday++ {
		set = append(set, weekdayName(weekday))
	}
	return set
}

func weekdayName(weekday int) string {
	return WeekdayPrefix + string(rune('0'+weekday))
}

// Matches reports whether a triggered identifier names the daily unlock
// window under any schema generation.
func Matches(triggered string) bool {
	if triggered == CanonicalName {
		return true
	}
	for weekday := 1; weekday <= 7; weekday++ {
		if triggered == weekdayName(weekday) {
			return true
		}
	}
	return false
}

// Window is a repeating daily time window handed to the scheduling
// capability.
type Window struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// StartMinuteOfDay returns the window start as a minute of day.
func (w Window) StartMinuteOfDay() int {
	return w.StartHour*60 + w.StartMinute
}
