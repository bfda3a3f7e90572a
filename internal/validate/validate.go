// Package validate checks domain invariants before anything is written.
// Every function is side-effect free and reports the first violated rule as a
// *model.ValidationError.
package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/saadjs/kcal-core/internal/model"
)

const (
	MaxNameLength = 100

	// Calorie tolerances differ on purpose per entity.
	FoodCalorieTolerance   = 0.15
	GoalCalorieTolerance   = 0.05
	SearchCalorieTolerance = 0.20

	MinBMR = 800.0

	compositeEpsilon = 1e-6
)

// Ceilings bounds the stated calories and macro grams of a food.
type Ceilings struct {
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

var (
	// LogCeilings apply to every FoodLog write.
	LogCeilings = Ceilings{Calories: 10000, ProteinG: 1000, CarbsG: 1000, FatG: 1000}
	// CreationCeilings are the tighter bounds of the food-creation path.
	CreationCeilings = Ceilings{Calories: 10000, ProteinG: 300, CarbsG: 500, FatG: 150}
)

var validate = validator.New()

type check struct {
	field string
	value any
	tag   string
}

var tagRules = map[string]model.Rule{
	"required": model.RuleRequired,
	"max":      model.RuleTooLong,
	"gte":      model.RuleNegative,
	"lte":      model.RuleAboveCeiling,
	"gt":       model.RuleNotPositive,
	"min":      model.RuleBelowFloor,
	"oneof":    model.RuleInvalidEnum,
}

func run(checks []check) error {
	for _, c := range checks {
		err := validate.Var(c.value, c.tag)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return fmt.Errorf("validate %s: %w", c.field, err)
		}
		fe := verrs[0]
		rule, ok := tagRules[fe.Tag()]
		if !ok {
			rule = model.Rule(fe.Tag())
		}
		return model.NewValidationError(c.field, rule, describe(rule, fe.Param()))
	}
	return nil
}

func describe(rule model.Rule, param string) string {
	switch rule {
	case model.RuleRequired:
		return "is required"
	case model.RuleTooLong:
		return fmt.Sprintf("must be at most %s characters", param)
	case model.RuleNegative:
		return "must be >= 0"
	case model.RuleAboveCeiling:
		return fmt.Sprintf("must be <= %s", param)
	case model.RuleNotPositive:
		return "must be > 0"
	case model.RuleBelowFloor:
		return fmt.Sprintf("must be >= %s", param)
	case model.RuleInvalidEnum:
		return fmt.Sprintf("must be one of %s", param)
	default:
		return "is invalid"
	}
}

func nameChecks(field, name string) []check {
	return []check{{field: field, value: strings.TrimSpace(name), tag: fmt.Sprintf("required,max=%d", MaxNameLength)}}
}

func macroChecks(m model.Macros, c Ceilings) []check {
	return []check{
		{field: "calories", value: m.Calories, tag: fmt.Sprintf("gte=0,lte=%g", c.Calories)},
		{field: "protein_g", value: m.ProteinG, tag: fmt.Sprintf("gte=0,lte=%g", c.ProteinG)},
		{field: "carbs_g", value: m.CarbsG, tag: fmt.Sprintf("gte=0,lte=%g", c.CarbsG)},
		{field: "fat_g", value: m.FatG, tag: fmt.Sprintf("gte=0,lte=%g", c.FatG)},
	}
}

// MacrosConsistent reports whether macro-derived calories are within tolerance
// of the stated calories. Zero stated calories are always consistent.
func MacrosConsistent(m model.Macros, tolerance float64) bool {
	if m.Calories <= 0 {
		return true
	}
	return math.Abs(m.DerivedCalories()-m.Calories)/m.Calories <= tolerance
}

func consistency(m model.Macros, tolerance float64) error {
	if MacrosConsistent(m, tolerance) {
		return nil
	}
	return model.NewValidationError("calories", model.RuleMacroMismatch, fmt.Sprintf(
		"macros imply %.0f kcal, more than %.0f%% away from stated %.0f kcal",
		m.DerivedCalories(), tolerance*100, m.Calories))
}

var mealTag = "oneof=" + strings.Join(func() []string {
	out := make([]string, 0, len(model.MealCategories))
	for _, c := range model.MealCategories {
		out = append(out, string(c))
	}
	return out
}(), " ")

func FoodLog(f model.FoodLog) error {
	if f.LoggedAt.IsZero() {
		return model.NewValidationError("logged_at", model.RuleRequired, "is required")
	}
	checks := nameChecks("name", f.Name)
	checks = append(checks, macroChecks(f.Macros(), LogCeilings)...)
	checks = append(checks,
		check{field: "meal", value: string(f.Meal), tag: "required," + mealTag},
		check{field: "serving_size", value: f.ServingSize, tag: "gte=0"},
	)
	if err := run(checks); err != nil {
		return err
	}
	return consistency(f.Macros(), FoodCalorieTolerance)
}

func CustomFood(f model.CustomFood) error {
	checks := nameChecks("name", f.Name)
	checks = append(checks, macroChecks(f.Macros(), CreationCeilings)...)
	checks = append(checks, check{field: "serving_size", value: f.ServingSize, tag: "gt=0"})
	if err := run(checks); err != nil {
		return err
	}
	if err := consistency(f.Macros(), FoodCalorieTolerance); err != nil {
		return err
	}
	if !f.IsComposite {
		return nil
	}
	if len(f.Ingredients) == 0 {
		return model.NewValidationError("ingredients", model.RuleCompositeEmpty, "a composite food needs at least one ingredient")
	}
	for i, ing := range f.Ingredients {
		prefix := fmt.Sprintf("ingredients[%d].", i)
		ingChecks := nameChecks(prefix+"name", ing.Name)
		ingChecks = append(ingChecks, check{field: prefix + "quantity", value: ing.Quantity, tag: "gte=0"})
		for _, c := range macroChecks(ing.Macros(), LogCeilings) {
			c.field = prefix + c.field
			ingChecks = append(ingChecks, c)
		}
		if err := run(ingChecks); err != nil {
			return err
		}
	}
	if !sameMacros(f.Macros(), f.IngredientTotals()) {
		return model.NewValidationError("ingredients", model.RuleCompositeMismatch, "food macros must equal the sum of its ingredients")
	}
	return nil
}

func Goals(g model.NutritionGoals) error {
	checks := []check{
		{field: "scope", value: strings.TrimSpace(g.Scope), tag: "required"},
		{field: "calories", value: g.Calories, tag: "gt=0"},
		{field: "protein_g", value: g.ProteinG, tag: "gte=0"},
		{field: "carbs_g", value: g.CarbsG, tag: "gte=0"},
		{field: "fat_g", value: g.FatG, tag: "gte=0"},
		{field: "bmr", value: g.BMR, tag: fmt.Sprintf("min=%g", MinBMR)},
		{field: "tdee", value: g.TDEE, tag: "gte=0"},
		{field: "activity_level", value: string(g.ActivityLevel), tag: "required,oneof=sedentary lightly_active moderately_active very_active extra_active"},
		{field: "direction", value: string(g.Direction), tag: "required,oneof=cut maintain bulk"},
	}
	if g.Sex != "" {
		checks = append(checks, check{field: "sex", value: string(g.Sex), tag: "oneof=male female"})
	}
	if g.WeightKg != nil {
		checks = append(checks, check{field: "weight_kg", value: *g.WeightKg, tag: "gt=0"})
	}
	if g.HeightCm != nil {
		checks = append(checks, check{field: "height_cm", value: *g.HeightCm, tag: "gt=0"})
	}
	if g.Age != nil {
		checks = append(checks, check{field: "age", value: *g.Age, tag: "gt=0"})
	}
	if err := run(checks); err != nil {
		return err
	}
	return consistency(g.Macros(), GoalCalorieTolerance)
}

// SearchResult checks an external result. Callers treat a failure as
// "unverified" rather than rejecting the result.
func SearchResult(r model.FoodSearchResult) error {
	checks := nameChecks("name", r.Name)
	checks = append(checks, macroChecks(r.Macros(), LogCeilings)...)
	if err := run(checks); err != nil {
		return err
	}
	return consistency(r.Macros(), SearchCalorieTolerance)
}

func sameMacros(a, b model.Macros) bool {
	return near(a.Calories, b.Calories) && near(a.ProteinG, b.ProteinG) &&
		near(a.CarbsG, b.CarbsG) && near(a.FatG, b.FatG)
}

func near(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= compositeEpsilon*scale
}
