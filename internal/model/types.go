package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MealCategory string

const (
	MealBreakfast MealCategory = "breakfast"
	MealLunch     MealCategory = "lunch"
	MealDinner    MealCategory = "dinner"
	MealSnacks    MealCategory = "snacks"
)

// MealCategories lists the categories in display order.
var MealCategories = []MealCategory{MealBreakfast, MealLunch, MealDinner, MealSnacks}

// DisplayOrder returns the position of the category in the day view.
// Unknown categories sort last.
func (m MealCategory) DisplayOrder() int {
	for i, c := range MealCategories {
		if c == m {
			return i
		}
	}
	return len(MealCategories)
}

func (m MealCategory) Valid() bool {
	return m.DisplayOrder() < len(MealCategories)
}

func ParseMealCategory(value string) (MealCategory, error) {
	m := MealCategory(strings.ToLower(strings.TrimSpace(value)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown meal category %q (use breakfast, lunch, dinner or snacks)", value)
	}
	return m, nil
}

// Macros is the calorie and macronutrient tuple shared by every entity.
type Macros struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

const (
	KcalPerGramProtein = 4.0
	KcalPerGramCarbs   = 4.0
	KcalPerGramFat     = 9.0
)

func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		ProteinG: m.ProteinG + o.ProteinG,
		CarbsG:   m.CarbsG + o.CarbsG,
		FatG:     m.FatG + o.FatG,
	}
}

func (m Macros) Sub(o Macros) Macros {
	return Macros{
		Calories: m.Calories - o.Calories,
		ProteinG: m.ProteinG - o.ProteinG,
		CarbsG:   m.CarbsG - o.CarbsG,
		FatG:     m.FatG - o.FatG,
	}
}

// DerivedCalories reconstructs calories from the macro grams.
func (m Macros) DerivedCalories() float64 {
	return m.ProteinG*KcalPerGramProtein + m.CarbsG*KcalPerGramCarbs + m.FatG*KcalPerGramFat
}

// FoodLog is one meal entry. LoggedAt is the wall-clock instant the food was
// eaten; it is never normalized to a day.
type FoodLog struct {
	ID           uuid.UUID    `json:"id"`
	LoggedAt     time.Time    `json:"logged_at"`
	Name         string       `json:"name"`
	Calories     float64      `json:"calories"`
	ProteinG     float64      `json:"protein_g"`
	CarbsG       float64      `json:"carbs_g"`
	FatG         float64      `json:"fat_g"`
	Meal         MealCategory `json:"meal"`
	ServingSize  float64      `json:"serving_size"`
	ServingUnit  string       `json:"serving_unit"`
	Barcode      string       `json:"barcode,omitempty"`
	CustomFoodID *uuid.UUID   `json:"custom_food_id,omitempty"`
}

func (f FoodLog) Macros() Macros {
	return Macros{Calories: f.Calories, ProteinG: f.ProteinG, CarbsG: f.CarbsG, FatG: f.FatG}
}

// SortFoodLogs orders logs the way a day view groups them: meal category in
// display order, then chronologically within the category.
func SortFoodLogs(logs []FoodLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		oi, oj := logs[i].Meal.DisplayOrder(), logs[j].Meal.DisplayOrder()
		if oi != oj {
			return oi < oj
		}
		return logs[i].LoggedAt.Before(logs[j].LoggedAt)
	})
}

type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

func (i Ingredient) Macros() Macros {
	return Macros{Calories: i.Calories, ProteinG: i.ProteinG, CarbsG: i.CarbsG, FatG: i.FatG}
}

// CustomFood is a reusable user-authored food. A composite food's macros are
// the sum of its ingredients.
type CustomFood struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Calories    float64      `json:"calories"`
	ProteinG    float64      `json:"protein_g"`
	CarbsG      float64      `json:"carbs_g"`
	FatG        float64      `json:"fat_g"`
	ServingSize float64      `json:"serving_size"`
	ServingUnit string       `json:"serving_unit"`
	IsComposite bool         `json:"is_composite"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (c CustomFood) Macros() Macros {
	return Macros{Calories: c.Calories, ProteinG: c.ProteinG, CarbsG: c.CarbsG, FatG: c.FatG}
}

func (c CustomFood) IngredientTotals() Macros {
	var total Macros
	for _, ing := range c.Ingredients {
		total = total.Add(ing.Macros())
	}
	return total
}

// ApplyIngredientTotals marks the food composite and overwrites its per-serving
// macros with the ingredient sums.
func (c *CustomFood) ApplyIngredientTotals() {
	total := c.IngredientTotals()
	c.IsComposite = true
	c.Calories = total.Calories
	c.ProteinG = total.ProteinG
	c.CarbsG = total.CarbsG
	c.FatG = total.FatG
}

type ActivityLevel string

const (
	ActivitySedentary        ActivityLevel = "sedentary"
	ActivityLightlyActive    ActivityLevel = "lightly_active"
	ActivityModeratelyActive ActivityLevel = "moderately_active"
	ActivityVeryActive       ActivityLevel = "very_active"
	ActivityExtraActive      ActivityLevel = "extra_active"
)

var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:        1.2,
	ActivityLightlyActive:    1.375,
	ActivityModeratelyActive: 1.55,
	ActivityVeryActive:       1.725,
	ActivityExtraActive:      1.9,
}

// Multiplier returns the TDEE multiplier and whether the level is known.
func (a ActivityLevel) Multiplier() (float64, bool) {
	m, ok := activityMultipliers[a]
	return m, ok
}

func ParseActivityLevel(value string) (ActivityLevel, error) {
	a := ActivityLevel(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := a.Multiplier(); !ok {
		return "", fmt.Errorf("unknown activity level %q", value)
	}
	return a, nil
}

type GoalDirection string

const (
	GoalCut      GoalDirection = "cut"
	GoalMaintain GoalDirection = "maintain"
	GoalBulk     GoalDirection = "bulk"
)

func ParseGoalDirection(value string) (GoalDirection, error) {
	switch d := GoalDirection(strings.ToLower(strings.TrimSpace(value))); d {
	case GoalCut, GoalMaintain, GoalBulk:
		return d, nil
	default:
		return "", fmt.Errorf("unknown goal direction %q (use cut, maintain or bulk)", value)
	}
}

type BiologicalSex string

const (
	SexMale   BiologicalSex = "male"
	SexFemale BiologicalSex = "female"
)

func ParseBiologicalSex(value string) (BiologicalSex, error) {
	switch s := BiologicalSex(strings.ToLower(strings.TrimSpace(value))); s {
	case SexMale, SexFemale:
		return s, nil
	default:
		return "", fmt.Errorf("unknown biological sex %q (use male or female)", value)
	}
}

// DefaultGoalScope is the scope used when a single user owns the device.
const DefaultGoalScope = "default"

// NutritionGoals is the single active target set for a scope.
type NutritionGoals struct {
	Scope         string        `json:"scope"`
	Calories      float64       `json:"calories"`
	ProteinG      float64       `json:"protein_g"`
	CarbsG        float64       `json:"carbs_g"`
	FatG          float64       `json:"fat_g"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	Direction     GoalDirection `json:"direction"`
	BMR           float64       `json:"bmr"`
	TDEE          float64       `json:"tdee"`
	WeightKg      *float64      `json:"weight_kg,omitempty"`
	HeightCm      *float64      `json:"height_cm,omitempty"`
	Age           *int          `json:"age,omitempty"`
	Sex           BiologicalSex `json:"sex,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (g NutritionGoals) Macros() Macros {
	return Macros{Calories: g.Calories, ProteinG: g.ProteinG, CarbsG: g.CarbsG, FatG: g.FatG}
}

// FoodSearchResult is the normalized shape returned by external nutrition
// databases for both name search and barcode lookup.
type FoodSearchResult struct {
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
	ServingSize float64 `json:"serving_size"`
	ServingUnit string  `json:"serving_unit"`
	Source      string  `json:"source"`
	SourceRef   string  `json:"source_ref,omitempty"`
	Barcode     string  `json:"barcode,omitempty"`
	Verified    bool    `json:"verified"`
}

func (r FoodSearchResult) Macros() Macros {
	return Macros{Calories: r.Calories, ProteinG: r.ProteinG, CarbsG: r.CarbsG, FatG: r.FatG}
}

// Key identifies a single result across providers.
func (r FoodSearchResult) Key() string {
	ref := r.SourceRef
	if ref == "" {
		ref = strings.ToLower(strings.TrimSpace(r.Name + "|" + r.Brand))
	}
	return r.Source + ":" + ref
}

// ToFoodLog converts a looked-up food into an unsaved log entry.
func (r FoodSearchResult) ToFoodLog(meal MealCategory, at time.Time) FoodLog {
	return FoodLog{
		LoggedAt:    at,
		Name:        r.Name,
		Calories:    r.Calories,
		ProteinG:    r.ProteinG,
		CarbsG:      r.CarbsG,
		FatG:        r.FatG,
		Meal:        meal,
		ServingSize: r.ServingSize,
		ServingUnit: r.ServingUnit,
		Barcode:     r.Barcode,
	}
}
