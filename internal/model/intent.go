package model

import "fmt"

// Intent classifies a goal-configuration edit relative to the active
// configuration. The enum is closed: every switch over Intent handles all
// three values explicitly so a new value fails loudly at review time.
type Intent string

const (
	IntentEasier  Intent = "easier"
	IntentHarder  Intent = "harder"
	IntentNeutral Intent = "neutral"
)

var validIntents = map[Intent]bool{
	IntentEasier:  true,
	IntentHarder:  true,
	IntentNeutral: true,
}

func ValidateIntent(i Intent) error {
	if !validIntents[i] {
		return fmt.Errorf("unknown intent %q", i)
	}
	return nil
}

// Deferred reports whether an edit with this intent is held back until a
// cycle boundary. Only easier edits defer; harder and neutral edits commit
// immediately so tightening a commitment is never delayed.
func (i Intent) Deferred() bool {
	switch i {
	case IntentEasier:
		return true
	case IntentHarder, IntentNeutral:
		return false
	}
	return false
}
