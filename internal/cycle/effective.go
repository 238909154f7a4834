package cycle

import (
	"time"

	"github.com/msageha/steplock/internal/model"
)

// EffectiveAt computes when an edit with the given intent may take effect.
// Harder and neutral edits commit immediately. Easier edits defer to the
// next cycle boundary so the current commitment period cannot be weakened
// mid-flight:
//
//   - daily cycle: local midnight of the day after now
//   - weekly cycle: local midnight of the next occurrence of the anchor
//     weekday, where "next" never means today
//
// Pure: the result depends only on the arguments.
func EffectiveAt(intent model.Intent, now time.Time, cal Calendar, anchor model.AnchorPolicy) time.Time {
	switch intent {
	case model.IntentHarder, model.IntentNeutral:
		return now
	case model.IntentEasier:
	}
	if anchor.Cycle == model.CycleWeekly {
		return cal.NextWeekdayMidnight(now, anchor.Weekday)
	}
	return cal.NextMidnight(now)
}
