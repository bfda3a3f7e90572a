package observed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadjs/kcal-core/internal/db"
	"github.com/saadjs/kcal-core/internal/health"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/store"
)

var testLoc = time.FixedZone("UTC-5", -5*60*60)

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, testLoc)
}

// fakeGateway wraps a real store and can fail or hold writes.
type fakeGateway struct {
	*store.Store

	failWrites  atomic.Bool
	saves       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	gates       map[string]chan struct{}
	// afterGet, when set, runs after every GetFoodLog read.
	afterGet func()
}

var errDiskFull = &model.PersistenceError{Op: "write", Err: errors.New("disk full")}

func (g *fakeGateway) enter(name string) func() {
	n := g.inFlight.Add(1)
	for {
		m := g.maxInFlight.Load()
		if n <= m || g.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if gate, ok := g.gates[name]; ok {
		<-gate
	}
	return func() { g.inFlight.Add(-1) }
}

func (g *fakeGateway) SaveFoodLog(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	g.saves.Add(1)
	defer g.enter(f.Name)()
	if g.failWrites.Load() {
		return model.FoodLog{}, errDiskFull
	}
	return g.Store.SaveFoodLog(ctx, f)
}

func (g *fakeGateway) GetFoodLog(ctx context.Context, id uuid.UUID) (model.FoodLog, error) {
	f, err := g.Store.GetFoodLog(ctx, id)
	if g.afterGet != nil {
		g.afterGet()
	}
	return f, err
}

// pauseFirstGet makes the first GetFoodLog call block after its read until
// the returned resume func is called. reached is closed once it blocks.
func (g *fakeGateway) pauseFirstGet() (reached <-chan struct{}, resume func()) {
	hit, gate := make(chan struct{}), make(chan struct{})
	var first atomic.Bool
	g.afterGet = func() {
		if first.CompareAndSwap(false, true) {
			close(hit)
			<-gate
		}
	}
	return hit, func() { close(gate) }
}

func (g *fakeGateway) UpdateFoodLog(ctx context.Context, f model.FoodLog) error {
	if g.failWrites.Load() {
		return errDiskFull
	}
	return g.Store.UpdateFoodLog(ctx, f)
}

func (g *fakeGateway) DeleteFoodLog(ctx context.Context, id uuid.UUID) error {
	if g.failWrites.Load() {
		return errDiskFull
	}
	return g.Store.DeleteFoodLog(ctx, id)
}

func (g *fakeGateway) SaveGoals(ctx context.Context, goals model.NutritionGoals) (model.NutritionGoals, error) {
	if g.failWrites.Load() {
		return model.NutritionGoals{}, errDiskFull
	}
	return g.Store.SaveGoals(ctx, goals)
}

type healthFunc func(ctx context.Context, s health.Sample) error

func (f healthFunc) WriteNutritionSample(ctx context.Context, s health.Sample) error {
	return f(ctx, s)
}

func newGateway(t *testing.T) *fakeGateway {
	t.Helper()
	sqldb, err := db.OpenMigrated(context.Background(), filepath.Join(t.TempDir(), "kcal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	return &fakeGateway{Store: store.New(sqldb, store.WithLocation(testLoc)), gates: map[string]chan struct{}{}}
}

func meal(name string, m model.MealCategory, ts time.Time, kcal float64) model.FoodLog {
	return model.FoodLog{
		LoggedAt: ts, Name: name, Meal: m,
		Calories: kcal, ProteinG: kcal / 16, CarbsG: kcal / 8, FatG: kcal / 36,
		ServingSize: 1, ServingUnit: "serving",
	}
}

func requireConsistent(t *testing.T, v View) {
	t.Helper()
	want := model.TotalsOf(v.Logs)
	assert.InDelta(t, want.Calories, v.Totals.Calories, 1e-9)
	assert.InDelta(t, want.ProteinG, v.Totals.ProteinG, 1e-9)
	assert.InDelta(t, want.CarbsG, v.Totals.CarbsG, 1e-9)
	assert.InDelta(t, want.FatG, v.Totals.FatG, 1e-9)
	assert.Equal(t, len(v.Logs), v.Totals.Entries)
}

func TestLogFailureRestoresSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)

	_, err := c.Log(ctx, meal("Toast", model.MealBreakfast, at(10, 8), 300))
	require.NoError(t, err)
	_, err = c.Load(ctx, at(10, 12))
	require.NoError(t, err)
	before := c.Day(at(10, 0)).View()

	gw.failWrites.Store(true)
	_, err = c.Log(ctx, meal("Pasta", model.MealDinner, at(10, 19), 700))
	require.ErrorIs(t, err, model.ErrPersistence)

	after := c.Day(at(10, 0)).View()
	assert.Equal(t, before, after)
	last := c.Day(at(10, 0)).LastMutation()
	assert.Equal(t, StateReverted, last.State)
	assert.Equal(t, KindLog, last.Kind)
	assert.ErrorIs(t, last.Err, model.ErrPersistence)
}

func TestTotalsMatchEntriesAfterEveryStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)
	_, err := c.Load(ctx, at(10, 0))
	require.NoError(t, err)
	day := c.Day(at(10, 0))

	var ids []uuid.UUID
	steps := []struct {
		fail   bool
		delete int // index into ids, -1 to log instead
		kcal   float64
	}{
		{delete: -1, kcal: 320},
		{delete: -1, kcal: 480},
		{fail: true, delete: -1, kcal: 900},
		{delete: 0},
		{delete: -1, kcal: 160},
		{fail: true, delete: 1},
		{delete: -1, kcal: 640},
		{delete: 1},
	}
	for i, step := range steps {
		gw.failWrites.Store(step.fail)
		if step.delete < 0 {
			saved, err := c.Log(ctx, meal("Meal", model.MealLunch, at(10, 6+i), step.kcal))
			if step.fail {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				ids = append(ids, saved.ID)
			}
		} else {
			err := c.Delete(ctx, ids[step.delete])
			if step.fail {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		}
		requireConsistent(t, day.View())
	}

	gw.failWrites.Store(false)
	durable, err := gw.FetchFoodLogs(ctx, at(10, 0))
	require.NoError(t, err)
	v := day.View()
	require.Len(t, v.Logs, len(durable))
	assert.InDelta(t, model.TotalsOf(durable).Calories, v.Totals.Calories, 1e-9)
	assert.InDelta(t, 160+640, v.Totals.Calories, 1e-9)
}

func TestUpdateMovesEntryBetweenDays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)
	_, err := c.Load(ctx, at(10, 0))
	require.NoError(t, err)
	_, err = c.Load(ctx, at(11, 0))
	require.NoError(t, err)

	saved, err := c.Log(ctx, meal("Curry", model.MealDinner, at(10, 20), 600))
	require.NoError(t, err)

	moved := saved
	moved.LoggedAt = at(11, 20)
	moved.Calories = 640
	moved.ProteinG = 40
	_, err = c.Update(ctx, moved)
	require.NoError(t, err)

	assert.Empty(t, c.Day(at(10, 0)).View().Logs)
	next := c.Day(at(11, 0)).View()
	require.Len(t, next.Logs, 1)
	assert.Equal(t, 640.0, next.Totals.Calories)

	gw.failWrites.Store(true)
	back := moved
	back.LoggedAt = at(10, 21)
	_, err = c.Update(ctx, back)
	require.Error(t, err)
	assert.Empty(t, c.Day(at(10, 0)).View().Logs)
	assert.Equal(t, next, c.Day(at(11, 0)).View())
	requireConsistent(t, c.Day(at(10, 0)).View())
}

func TestMutationsOnOneDayAreSingleFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	gate := make(chan struct{})
	gw.gates["slow"] = gate
	c := New(gw)
	_, err := c.Load(ctx, at(10, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Log(ctx, meal("slow", model.MealSnacks, at(10, 10+i), 100))
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return gw.saves.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, gw.saves.Load())

	close(gate)
	wg.Wait()
	assert.EqualValues(t, 2, gw.saves.Load())
	assert.EqualValues(t, 1, gw.maxInFlight.Load())
	v := c.Day(at(10, 0)).View()
	assert.Len(t, v.Logs, 2)
	requireConsistent(t, v)
}

func TestDifferentDaysProceedIndependently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	gate := make(chan struct{})
	gw.gates["slow"] = gate
	c := New(gw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Log(ctx, meal("slow", model.MealLunch, at(10, 12), 100))
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return gw.saves.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.Log(ctx, meal("fast", model.MealLunch, at(11, 12), 100))
	require.NoError(t, err)

	close(gate)
	<-done
}

func TestHealthFailureDoesNotRevert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	var calls atomic.Int32
	c := New(gw, WithHealth(healthFunc(func(context.Context, health.Sample) error {
		calls.Add(1)
		return model.ErrHealthService
	})))
	_, err := c.Load(ctx, at(10, 0))
	require.NoError(t, err)

	saved, err := c.Log(ctx, meal("Salad", model.MealLunch, at(10, 13), 350))
	require.NoError(t, err)
	c.Wait()

	assert.EqualValues(t, 1, calls.Load())
	v := c.Day(at(10, 0)).View()
	require.Len(t, v.Logs, 1)
	assert.Equal(t, saved.ID, v.Logs[0].ID)
	assert.Equal(t, StateCommitted, c.Day(at(10, 0)).LastMutation().State)
}

func TestDeleteSendsRetraction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	var (
		mu      sync.Mutex
		samples []health.Sample
	)
	c := New(gw, WithHealth(healthFunc(func(_ context.Context, s health.Sample) error {
		mu.Lock()
		defer mu.Unlock()
		samples = append(samples, s)
		return nil
	})))

	saved, err := c.Log(ctx, meal("Soup", model.MealDinner, at(10, 19), 250))
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, saved.ID))
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, samples, 2)
	deleted := 0
	for _, s := range samples {
		assert.Equal(t, saved.ID, s.LogID)
		if s.Deleted {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)
}

func TestCancelledBeforeStoreCall(t *testing.T) {
	t.Parallel()
	gw := newGateway(t)
	c := New(gw)
	_, err := c.Load(context.Background(), at(10, 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Log(ctx, meal("Toast", model.MealBreakfast, at(10, 8), 300))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gw.saves.Load())
	assert.Empty(t, c.Day(at(10, 0)).View().Logs)
}

func TestDeleteMissingEntry(t *testing.T) {
	t.Parallel()
	c := New(newGateway(t))
	err := c.Delete(context.Background(), uuid.New())
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateGoalsRevertsOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)

	goals := model.NutritionGoals{
		Scope: "default", Calories: 2000, ProteinG: 150, CarbsG: 200, FatG: 67,
		ActivityLevel: model.ActivitySedentary, Direction: model.GoalMaintain, BMR: 1600, TDEE: 1920,
	}
	_, err := c.UpdateGoals(ctx, goals)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, c.LastGoalsMutation("default").State)

	gw.failWrites.Store(true)
	bigger := goals
	bigger.Calories = 2500
	bigger.CarbsG = 325
	_, err = c.UpdateGoals(ctx, bigger)
	require.Error(t, err)

	current := c.Goals("default")
	require.NotNil(t, current)
	assert.Equal(t, 2000.0, current.Calories)
	assert.Equal(t, StateReverted, c.LastGoalsMutation("default").State)

	loaded, err := c.LoadGoals(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, loaded.Calories)
}

func TestInvalidTransitionPanics(t *testing.T) {
	t.Parallel()
	m := Mutation{State: StateCommitted}
	assert.Panics(t, func() { m.advance(StateApplying) })
}

func TestDeleteFollowsEntryMovedConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)
	for _, d := range []int{10, 11} {
		_, err := c.Load(ctx, at(d, 0))
		require.NoError(t, err)
	}
	saved, err := c.Log(ctx, meal("Burrito", model.MealLunch, at(10, 12), 400))
	require.NoError(t, err)

	reached, resume := gw.pauseFirstGet()
	done := make(chan error, 1)
	go func() { done <- c.Delete(ctx, saved.ID) }()
	<-reached

	moved := saved
	moved.LoggedAt = at(11, 12)
	_, err = c.Update(ctx, moved)
	require.NoError(t, err)

	resume()
	require.NoError(t, <-done)

	for _, d := range []int{10, 11} {
		v := c.Day(at(d, 0)).View()
		assert.Empty(t, v.Logs, "day %d", d)
		assert.Zero(t, v.Totals.Calories, "day %d", d)
		requireConsistent(t, v)
	}
	durable, err := gw.FetchFoodLogs(ctx, at(11, 0))
	require.NoError(t, err)
	assert.Empty(t, durable)
}

func TestConcurrentMovesLeaveOneCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)
	for _, d := range []int{10, 11, 12} {
		_, err := c.Load(ctx, at(d, 0))
		require.NoError(t, err)
	}
	saved, err := c.Log(ctx, meal("Burrito", model.MealLunch, at(10, 12), 400))
	require.NoError(t, err)

	reached, resume := gw.pauseFirstGet()
	toTwelve := saved
	toTwelve.LoggedAt = at(12, 12)
	done := make(chan error, 1)
	go func() {
		_, err := c.Update(ctx, toTwelve)
		done <- err
	}()
	<-reached

	toEleven := saved
	toEleven.LoggedAt = at(11, 12)
	_, err = c.Update(ctx, toEleven)
	require.NoError(t, err)

	resume()
	require.NoError(t, <-done)

	assert.Empty(t, c.Day(at(10, 0)).View().Logs)
	assert.Empty(t, c.Day(at(11, 0)).View().Logs)
	last := c.Day(at(12, 0)).View()
	require.Len(t, last.Logs, 1)
	assert.Equal(t, saved.ID, last.Logs[0].ID)
	assert.InDelta(t, 400, last.Totals.Calories, 1e-9)
}

func TestOnlyLoadedDaysAreTracked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newGateway(t)
	c := New(gw)
	_, err := c.Load(ctx, at(10, 0))
	require.NoError(t, err)

	saved, err := c.Log(ctx, meal("Toast", model.MealBreakfast, at(12, 8), 300))
	require.NoError(t, err)
	moved := saved
	moved.LoggedAt = at(13, 8)
	_, err = c.Update(ctx, moved)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, saved.ID))

	undated := saved
	undated.LoggedAt = time.Time{}
	_, err = c.Update(ctx, undated)
	require.ErrorIs(t, err, model.ErrInvalidData)
	_, err = c.Log(ctx, undated)
	require.ErrorIs(t, err, model.ErrInvalidData)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.days, 1)
	assert.Contains(t, c.days, "2026-03-10")
}
