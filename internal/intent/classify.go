// Package intent classifies goal-configuration edits as easier, harder, or
// neutral relative to the active configuration.
package intent

import "github.com/msageha/steplock/internal/model"

// signal is the outcome of comparing one goal dimension.
type signal struct {
	easier bool
	harder bool
}

func (s signal) merge(o signal) signal {
	return signal{easier: s.easier || o.easier, harder: s.harder || o.harder}
}

// Classify compares two goal configurations and reports whether the edit
// weakens, tightens, or preserves the gate. Pure and order independent:
// dimensions contribute independent signals and the aggregation is a
// commutative OR.
//
// If any dimension moves easier the whole edit is Easier, even when other
// dimensions move harder in the same edit. A weakened commitment must not
// slip through by being bundled with a tightened one.
func Classify(original, proposed model.GoalConfig) model.Intent {
	var s signal
	s = s.merge(quantSignal(original.Steps, proposed.Steps))
	s = s.merge(quantSignal(original.Energy, proposed.Energy))
	s = s.merge(exercisesSignal(original.Exercises, proposed.Exercises))
	s = s.merge(timeSignal(original.Unlock, proposed.Unlock))

	if s.easier {
		return model.IntentEasier
	}
	if s.harder {
		return model.IntentHarder
	}
	return model.IntentNeutral
}

// quantSignal compares a quantitative target. A lower target, or disabling
// the goal outright, weakens the gate; a higher target or newly enabled
// goal tightens it.
func quantSignal(orig, prop model.QuantGoal) signal {
	switch {
	case orig.Enabled && prop.Enabled:
		return targetSignal(orig.Target, prop.Target)
	case orig.Enabled && !prop.Enabled:
		return signal{easier: true}
	case !orig.Enabled && prop.Enabled:
		return signal{harder: true}
	}
	return signal{}
}

func targetSignal(origTarget, propTarget int) signal {
	return signal{
		easier: propTarget < origTarget,
		harder: propTarget > origTarget,
	}
}

// exercisesSignal matches sub-goals by stable ID across the two
// configurations. Slice order carries no meaning.
func exercisesSignal(orig, prop []model.ExerciseGoal) signal {
	origByID := indexByID(orig)
	propByID := indexByID(prop)

	var s signal
	for id, o := range origByID {
		if !o.Enabled {
			continue
		}
		p, ok := propByID[id]
		if !ok || !p.Enabled {
			// An enabled sub-goal was dropped or switched off.
			s = s.merge(signal{easier: true})
			continue
		}
		s = s.merge(targetSignal(o.TargetMinutes, p.TargetMinutes))
	}
	for id, p := range propByID {
		if !p.Enabled {
			continue
		}
		if o, ok := origByID[id]; !ok || !o.Enabled {
			// A sub-goal is enabled that was not enabled before.
			s = s.merge(signal{harder: true})
		}
	}
	return s
}

// timeSignal compares the daily unlock threshold. An earlier unlock minute
// weakens the gate (shields drop sooner); a later one tightens it.
func timeSignal(orig, prop model.TimeGoal) signal {
	switch {
	case orig.Enabled && prop.Enabled:
		return signal{
			easier: prop.MinuteOfDay < orig.MinuteOfDay,
			harder: prop.MinuteOfDay > orig.MinuteOfDay,
		}
	case orig.Enabled && !prop.Enabled:
		return signal{easier: true}
	case !orig.Enabled && prop.Enabled:
		return signal{harder: true}
	}
	return signal{}
}

func indexByID(goals []model.ExerciseGoal) map[string]model.ExerciseGoal {
	m := make(map[string]model.ExerciseGoal, len(goals))
	for _, g := range goals {
		m[g.ID] = g
	}
	return m
}
