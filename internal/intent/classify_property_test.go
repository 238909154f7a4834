// Package intent_test holds property-based checks for the classifier's
// structural invariants: determinism, order independence, and the
// easier-dominates priority rule.
package intent_test

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/msageha/steplock/internal/intent"
	"github.com/msageha/steplock/internal/model"
)

var exerciseIDs = []string{"walking", "running", "cycling", "yoga", "swimming", "rowing"}

func genQuant(maxTarget int) gopter.Gen {
	return gopter.CombineGens(gen.Bool(), gen.IntRange(0, maxTarget)).Map(
		func(vs []interface{}) model.QuantGoal {
			return model.QuantGoal{Enabled: vs[0].(bool), Target: vs[1].(int)}
		})
}

// genExercises picks a subset of a fixed ID pool so generated configurations
// never contain duplicate sub-goal identities.
func genExercises() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 63),
		gen.SliceOfN(len(exerciseIDs), gen.Bool()),
		gen.SliceOfN(len(exerciseIDs), gen.IntRange(0, 120)),
	).Map(func(vs []interface{}) []model.ExerciseGoal {
		mask := vs[0].(int)
		enabled := vs[1].([]bool)
		minutes := vs[2].([]int)

		var out []model.ExerciseGoal
		for i, id := range exerciseIDs {
			if mask&(1<<i) == 0 {
				continue
			}
			out = append(out, model.ExerciseGoal{
				ID: id, Name: id, Enabled: enabled[i], TargetMinutes: minutes[i],
			})
		}
		return out
	})
}

func genConfig() gopter.Gen {
	return gopter.CombineGens(
		genQuant(20000),
		genQuant(1500),
		genExercises(),
		gen.Bool(),
		gen.IntRange(0, 1439),
	).Map(func(vs []interface{}) model.GoalConfig {
		return model.GoalConfig{
			Steps:     vs[0].(model.QuantGoal),
			Energy:    vs[1].(model.QuantGoal),
			Exercises: vs[2].([]model.ExerciseGoal),
			Unlock:    model.TimeGoal{Enabled: vs[3].(bool), MinuteOfDay: vs[4].(int)},
		}
	})
}

func shuffledExercises(cfg model.GoalConfig, seed int64) model.GoalConfig {
	out := cfg
	out.Exercises = append([]model.ExerciseGoal(nil), cfg.Exercises...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out.Exercises), func(i, j int) {
		out.Exercises[i], out.Exercises[j] = out.Exercises[j], out.Exercises[i]
	})
	return out
}

func TestClassifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identical configurations classify neutral", prop.ForAll(
		func(cfg model.GoalConfig) bool {
			return intent.Classify(cfg, cfg) == model.IntentNeutral
		},
		genConfig(),
	))

	properties.Property("classification is deterministic", prop.ForAll(
		func(original, proposed model.GoalConfig) bool {
			return intent.Classify(original, proposed) == intent.Classify(original, proposed)
		},
		genConfig(),
		genConfig(),
	))

	properties.Property("sub-goal order never affects classification", prop.ForAll(
		func(original, proposed model.GoalConfig, seed int64) bool {
			want := intent.Classify(original, proposed)
			got := intent.Classify(
				shuffledExercises(original, seed),
				shuffledExercises(proposed, seed+1),
			)
			return got == want
		},
		genConfig(),
		genConfig(),
		gen.Int64(),
	))

	properties.Property("an easier signal dominates any harder signals", prop.ForAll(
		func(original, proposed model.GoalConfig, target int) bool {
			// Force one easier signal on the steps dimension; every other
			// dimension stays arbitrary.
			original.Steps = model.QuantGoal{Enabled: true, Target: target + 1}
			proposed.Steps = model.QuantGoal{Enabled: true, Target: target}
			return intent.Classify(original, proposed) == model.IntentEasier
		},
		genConfig(),
		genConfig(),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
