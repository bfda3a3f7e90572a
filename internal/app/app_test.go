package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadjs/kcal-core/internal/config"
	"github.com/saadjs/kcal-core/internal/goals"
	"github.com/saadjs/kcal-core/internal/health"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/portability"
)

var testLoc = time.FixedZone("UTC-5", -5*60*60)

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, testLoc)

type stubProvider struct {
	results []model.FoodSearchResult
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) SearchFoods(context.Context, string, int) ([]model.FoodSearchResult, error) {
	return p.results, nil
}

func (p stubProvider) LookupBarcode(_ context.Context, code string) (model.FoodSearchResult, error) {
	for _, r := range p.results {
		if r.Barcode == code {
			return r, nil
		}
	}
	return model.FoodSearchResult{}, model.ErrNotFound
}

type stubHealth struct {
	metrics health.PhysicalMetrics
	err     error
}

func (h stubHealth) WriteNutritionSample(context.Context, health.Sample) error { return h.err }

func (h stubHealth) FetchPhysicalMetrics(context.Context) (health.PhysicalMetrics, error) {
	return h.metrics, h.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "kcal.db")},
		Cache:    config.CacheConfig{MaxItems: 20, TTL: time.Hour},
		Sync:     config.SyncConfig{RetentionDays: 365},
		Lookup:   config.LookupConfig{Limit: 5, Timeout: time.Second},
		Goals:    config.GoalsConfig{Scope: "default"},
		Log:      config.LogConfig{Level: "error", Format: "console"},
	}
}

func openTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{
		WithLocation(testLoc),
		WithClock(func() time.Time { return fixedNow }),
		WithProviders(stubProvider{results: []model.FoodSearchResult{
			{Name: "Protein Bar", Calories: 200, ProteinG: 20, CarbsG: 20, FatG: 6, ServingSize: 60, ServingUnit: "g", Source: "stub", SourceRef: "1", Barcode: "0123456789012"},
		}}),
	}, opts...)
	a, err := Open(context.Background(), cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestDayInTheLife(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	weight, height, age := 80.0, 180.0, 30
	a := openTestApp(t, testConfig(t), WithHealth(stubHealth{metrics: health.PhysicalMetrics{
		WeightKg: &weight, HeightCm: &height, Age: &age, Sex: model.SexMale,
	}}))

	g, err := a.SetupGoals(ctx, goals.PlanInput{
		ActivityLevel: model.ActivityModeratelyActive,
		Direction:     model.GoalCut,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1780, g.BMR, 0.1)
	assert.InDelta(t, 2759, g.TDEE, 0.1)
	assert.Equal(t, "default", g.Scope)

	report, err := a.LoadFoodLogs(ctx, fixedNow)
	require.NoError(t, err)
	assert.Empty(t, report.Logs)
	require.NotNil(t, report.Goals)

	_, err = a.LogFood(ctx, model.FoodLog{
		LoggedAt: time.Date(2026, 2, 20, 19, 30, 0, 0, testLoc), Name: "Chicken bowl", Meal: model.MealDinner,
		Calories: 550, ProteinG: 45, CarbsG: 40, FatG: 18, ServingSize: 1, ServingUnit: "bowl",
	})
	require.NoError(t, err)

	oats, err := a.CreateCustomFood(ctx, model.CustomFood{
		Name: "Overnight oats", ServingSize: 1, ServingUnit: "jar",
		Ingredients: []model.Ingredient{
			{Name: "Oats", Quantity: 50, Unit: "g", Calories: 190, ProteinG: 7, CarbsG: 33, FatG: 3.5},
			{Name: "Yogurt", Quantity: 100, Unit: "g", Calories: 60, ProteinG: 10, CarbsG: 4, FatG: 0.5},
		},
	})
	require.NoError(t, err)
	assert.True(t, oats.IsComposite)
	assert.Equal(t, 250.0, oats.Calories)

	_, err = a.LogCustomFood(ctx, oats.ID, model.MealBreakfast, time.Date(2026, 2, 20, 8, 0, 0, 0, testLoc), 2)
	require.NoError(t, err)

	bar, err := a.LookupBarcode(ctx, "0123456789012")
	require.NoError(t, err)
	_, err = a.LogFood(ctx, bar.ToFoodLog(model.MealSnacks, time.Date(2026, 2, 20, 15, 0, 0, 0, testLoc)))
	require.NoError(t, err)

	report, err = a.LoadFoodLogs(ctx, fixedNow)
	require.NoError(t, err)
	require.Len(t, report.Logs, 3)
	assert.Equal(t, model.MealBreakfast, report.Logs[0].Meal)
	assert.Equal(t, model.MealDinner, report.Logs[1].Meal)
	assert.Equal(t, model.MealSnacks, report.Logs[2].Meal)
	assert.InDelta(t, 500+550+200, report.Totals.Calories, 1e-9)
	require.NotNil(t, report.Progress)
	assert.InDelta(t, report.Totals.Calories/g.Calories, report.Progress.Calories, 1e-9)

	found, err := a.SearchCustomFoods(ctx, "OATS")
	require.NoError(t, err)
	require.Len(t, found, 1)

	results, err := a.SearchFoods(ctx, "protein bar")
	require.NoError(t, err)
	require.Len(t, results, 1)

	stats, err := a.StorageStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FoodLogs)
	assert.Equal(t, 1, stats.CustomFoods)
	assert.Positive(t, stats.CacheItems)
}

func TestSetupGoalsWithoutHealthNeedsInputs(t *testing.T) {
	t.Parallel()
	a := openTestApp(t, testConfig(t), WithHealth(stubHealth{err: model.ErrHealthService}))

	_, err := a.SetupGoals(context.Background(), goals.PlanInput{
		ActivityLevel: model.ActivitySedentary, Direction: model.GoalMaintain,
	})
	require.ErrorIs(t, err, model.ErrInvalidData)

	g, err := a.SetupGoals(context.Background(), goals.PlanInput{
		WeightKg: 65, HeightCm: 165, Age: 25, Sex: model.SexFemale,
		ActivityLevel: model.ActivitySedentary, Direction: model.GoalMaintain,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1395.25, g.BMR, 0.1)
}

func TestHealthOutageDoesNotAffectLogging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := openTestApp(t, testConfig(t), WithHealth(stubHealth{err: errors.New("offline")}))

	_, err := a.LogFood(ctx, model.FoodLog{
		Name: "Apple", Meal: model.MealSnacks, Calories: 95, ProteinG: 0.5, CarbsG: 25, FatG: 0.3,
		ServingSize: 1, ServingUnit: "medium",
	})
	require.NoError(t, err)

	report, err := a.LoadFoodLogs(ctx, fixedNow)
	require.NoError(t, err)
	assert.Len(t, report.Logs, 1)
}

func TestExportImportBetweenApps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openTestApp(t, testConfig(t))
	_, err := src.LogFood(ctx, model.FoodLog{
		Name: "Eggs", Meal: model.MealBreakfast, Calories: 140, ProteinG: 12, CarbsG: 1, FatG: 10,
		ServingSize: 2, ServingUnit: "egg",
	})
	require.NoError(t, err)

	payload, err := src.ExportData(ctx, portability.ExportOptions{})
	require.NoError(t, err)

	dst := openTestApp(t, testConfig(t))
	report, err := dst.ImportData(ctx, payload, portability.ImportOptions{Strategy: portability.StrategyOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	day, err := dst.LoadFoodLogs(ctx, fixedNow)
	require.NoError(t, err)
	require.Len(t, day.Logs, 1)
	assert.Equal(t, "Eggs", day.Logs[0].Name)
}

func TestExportWindowFromConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Sync.ExportWindowDays = 7
	a := openTestApp(t, cfg)

	for _, at := range []time.Time{fixedNow.AddDate(0, 0, -30), fixedNow.AddDate(0, 0, -7), fixedNow} {
		_, err := a.LogFood(ctx, model.FoodLog{
			LoggedAt: at, Name: "Rice", Meal: model.MealLunch, Calories: 200, ProteinG: 4, CarbsG: 45, FatG: 0.5,
			ServingSize: 150, ServingUnit: "g",
		})
		require.NoError(t, err)
	}

	p, err := a.ExportData(ctx, portability.ExportOptions{})
	require.NoError(t, err)
	assert.Len(t, p.FoodLogs, 2)
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Sync.RetentionDays = 30
	a := openTestApp(t, cfg)

	for _, at := range []time.Time{fixedNow.AddDate(0, 0, -31), fixedNow.AddDate(0, 0, -29)} {
		_, err := a.LogFood(ctx, model.FoodLog{
			LoggedAt: at, Name: "Toast", Meal: model.MealBreakfast, Calories: 80, ProteinG: 3, CarbsG: 15, FatG: 1,
			ServingSize: 1, ServingUnit: "slice",
		})
		require.NoError(t, err)
	}

	report, err := a.CleanupOldData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Deleted)
}

func TestLogCustomFoodRejectsZeroServings(t *testing.T) {
	t.Parallel()
	a := openTestApp(t, testConfig(t))
	_, err := a.LogCustomFood(context.Background(), uuid.New(), model.MealLunch, fixedNow, 0)
	require.ErrorIs(t, err, model.ErrInvalidData)
}
