package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadjs/kcal-core/internal/model"
)

func TestTotalsAddSubtract(t *testing.T) {
	t.Parallel()
	a := model.FoodLog{Calories: 300, ProteinG: 10, CarbsG: 50, FatG: 5}
	b := model.FoodLog{Calories: 200, ProteinG: 20, CarbsG: 10, FatG: 8}

	totals := model.TotalsOf([]model.FoodLog{a, b})
	assert.Equal(t, 500.0, totals.Calories)
	assert.Equal(t, 2, totals.Entries)

	totals.Subtract(a)
	assert.Equal(t, model.TotalsOf([]model.FoodLog{b}), totals)
}

func TestTotalsProgressAndRemaining(t *testing.T) {
	t.Parallel()
	totals := model.TotalsOf([]model.FoodLog{{Calories: 1000, ProteinG: 75, CarbsG: 100, FatG: 30}})
	g := model.NutritionGoals{Calories: 2000, ProteinG: 150, CarbsG: 200}

	p := totals.Progress(g)
	assert.InDelta(t, 0.5, p.Calories, 1e-9)
	assert.InDelta(t, 0.5, p.ProteinG, 1e-9)
	assert.InDelta(t, 0.5, p.CarbsG, 1e-9)
	assert.Equal(t, 0.0, p.FatG)

	r := totals.Remaining(g)
	assert.Equal(t, 1000.0, r.Calories)
	assert.Equal(t, -30.0, r.FatG)
}

func TestSortFoodLogsByMealThenTime(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local)
	logs := []model.FoodLog{
		{Name: "late snack", Meal: model.MealSnacks, LoggedAt: day.Add(22 * time.Hour)},
		{Name: "dinner", Meal: model.MealDinner, LoggedAt: day.Add(19 * time.Hour)},
		{Name: "early snack", Meal: model.MealSnacks, LoggedAt: day.Add(6 * time.Hour)},
		{Name: "coffee", Meal: model.MealBreakfast, LoggedAt: day.Add(9 * time.Hour)},
		{Name: "eggs", Meal: model.MealBreakfast, LoggedAt: day.Add(7 * time.Hour)},
	}
	model.SortFoodLogs(logs)

	names := make([]string, 0, len(logs))
	for _, l := range logs {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"eggs", "coffee", "dinner", "early snack", "late snack"}, names)
}

func TestParseEnums(t *testing.T) {
	t.Parallel()
	m, err := model.ParseMealCategory(" Lunch ")
	require.NoError(t, err)
	assert.Equal(t, model.MealLunch, m)
	_, err = model.ParseMealCategory("brunch")
	require.Error(t, err)

	a, err := model.ParseActivityLevel("very_active")
	require.NoError(t, err)
	mult, ok := a.Multiplier()
	require.True(t, ok)
	assert.Equal(t, 1.725, mult)

	_, err = model.ParseGoalDirection("shred")
	require.Error(t, err)
}

func TestSearchResultKey(t *testing.T) {
	t.Parallel()
	withRef := model.FoodSearchResult{Source: "usda", SourceRef: "123", Name: "Apple"}
	assert.Equal(t, "usda:123", withRef.Key())

	noRef := model.FoodSearchResult{Source: "openfoodfacts", Name: "Greek Yogurt", Brand: "Fage"}
	assert.Equal(t, "openfoodfacts:greek yogurt|fage", noRef.Key())
}
