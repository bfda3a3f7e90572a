// Package goals derives daily calorie and macro targets from physical inputs.
package goals

import (
	"fmt"
	"time"

	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

// Split is the share of calories assigned to each macro. Shares sum to 1.
type Split struct {
	Protein float64
	Carbs   float64
	Fat     float64
}

var splits = map[model.GoalDirection]Split{
	model.GoalCut:      {Protein: 0.35, Carbs: 0.40, Fat: 0.25},
	model.GoalMaintain: {Protein: 0.30, Carbs: 0.40, Fat: 0.30},
	model.GoalBulk:     {Protein: 0.25, Carbs: 0.50, Fat: 0.25},
}

var calorieFactors = map[model.GoalDirection]float64{
	model.GoalCut:      0.80,
	model.GoalMaintain: 1.00,
	model.GoalBulk:     1.10,
}

// BMR uses the Mifflin-St Jeor equation.
func BMR(weightKg, heightCm float64, age int, sex model.BiologicalSex) float64 {
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	if sex == model.SexFemale {
		return base - 161
	}
	return base + 5
}

func TDEE(bmr float64, level model.ActivityLevel) (float64, error) {
	m, ok := level.Multiplier()
	if !ok {
		return 0, fmt.Errorf("unknown activity level %q", level)
	}
	return bmr * m, nil
}

// TargetCalories scales TDEE by the direction's deficit or surplus.
func TargetCalories(tdee float64, direction model.GoalDirection) (float64, error) {
	f, ok := calorieFactors[direction]
	if !ok {
		return 0, fmt.Errorf("unknown goal direction %q", direction)
	}
	return tdee * f, nil
}

// MacroTargets splits calories into grams for the given direction.
func MacroTargets(calories float64, direction model.GoalDirection) (model.Macros, error) {
	s, ok := splits[direction]
	if !ok {
		return model.Macros{}, fmt.Errorf("unknown goal direction %q", direction)
	}
	return model.Macros{
		Calories: calories,
		ProteinG: calories * s.Protein / model.KcalPerGramProtein,
		CarbsG:   calories * s.Carbs / model.KcalPerGramCarbs,
		FatG:     calories * s.Fat / model.KcalPerGramFat,
	}, nil
}

type PlanInput struct {
	Scope         string
	WeightKg      float64
	HeightCm      float64
	Age           int
	Sex           model.BiologicalSex
	ActivityLevel model.ActivityLevel
	Direction     model.GoalDirection
}

// Plan computes a complete goal set and runs it through goal validation.
func Plan(in PlanInput, now time.Time) (model.NutritionGoals, error) {
	if in.WeightKg <= 0 || in.HeightCm <= 0 || in.Age <= 0 {
		return model.NutritionGoals{}, model.NewValidationError("physical_inputs", model.RuleNotPositive,
			"weight, height and age must be > 0")
	}
	if in.Sex != model.SexMale && in.Sex != model.SexFemale {
		return model.NutritionGoals{}, model.NewValidationError("sex", model.RuleInvalidEnum, "must be one of male female")
	}
	bmr := BMR(in.WeightKg, in.HeightCm, in.Age, in.Sex)
	tdee, err := TDEE(bmr, in.ActivityLevel)
	if err != nil {
		return model.NutritionGoals{}, model.NewValidationError("activity_level", model.RuleInvalidEnum, err.Error())
	}
	calories, err := TargetCalories(tdee, in.Direction)
	if err != nil {
		return model.NutritionGoals{}, model.NewValidationError("direction", model.RuleInvalidEnum, err.Error())
	}
	macros, err := MacroTargets(calories, in.Direction)
	if err != nil {
		return model.NutritionGoals{}, err
	}

	scope := in.Scope
	if scope == "" {
		scope = model.DefaultGoalScope
	}
	weight, height, age := in.WeightKg, in.HeightCm, in.Age
	g := model.NutritionGoals{
		Scope:         scope,
		Calories:      macros.Calories,
		ProteinG:      macros.ProteinG,
		CarbsG:        macros.CarbsG,
		FatG:          macros.FatG,
		ActivityLevel: in.ActivityLevel,
		Direction:     in.Direction,
		BMR:           bmr,
		TDEE:          tdee,
		WeightKg:      &weight,
		HeightCm:      &height,
		Age:           &age,
		Sex:           in.Sex,
		UpdatedAt:     now,
	}
	if err := validate.Goals(g); err != nil {
		return model.NutritionGoals{}, err
	}
	return g, nil
}
