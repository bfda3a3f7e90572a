// Package observed owns the in-memory view of each calendar day (its food
// logs and running totals) and the active goals. Mutations are applied to the
// view first, then written through the gateway, and rolled back to the
// pre-mutation snapshot when the write fails.
package observed

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/saadjs/kcal-core/internal/health"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

const healthTimeout = 10 * time.Second

// Gateway is the durable side of the coordinator. *store.Store implements it.
type Gateway interface {
	DayWindow(at time.Time) (time.Time, time.Time)
	FetchFoodLogs(ctx context.Context, day time.Time) ([]model.FoodLog, error)
	GetFoodLog(ctx context.Context, id uuid.UUID) (model.FoodLog, error)
	SaveFoodLog(ctx context.Context, f model.FoodLog) (model.FoodLog, error)
	UpdateFoodLog(ctx context.Context, f model.FoodLog) error
	DeleteFoodLog(ctx context.Context, id uuid.UUID) error
	FetchGoals(ctx context.Context, scope string) (*model.NutritionGoals, error)
	SaveGoals(ctx context.Context, g model.NutritionGoals) (model.NutritionGoals, error)
}

// Day is the observed collection of one local calendar day.
type Day struct {
	key   string
	start time.Time

	// flight admits one mutation or load at a time; waiters queue on it.
	flight *semaphore.Weighted

	// refs counts mutations holding the day; guarded by Coordinator.mu.
	refs int

	mu     sync.RWMutex
	loaded bool
	logs   []model.FoodLog
	totals model.DailyNutritionTotals
	last   Mutation
}

// View is a copy of a day's observed state.
type View struct {
	Day    time.Time                  `json:"day"`
	Logs   []model.FoodLog            `json:"logs"`
	Totals model.DailyNutritionTotals `json:"totals"`
}

func (d *Day) Key() string { return d.key }

func (d *Day) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return View{Day: d.start, Logs: slices.Clone(d.logs), Totals: d.totals}
}

func (d *Day) LastMutation() Mutation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

type Coordinator struct {
	gw     Gateway
	health health.Writer
	log    *zap.Logger
	now    func() time.Time

	mu sync.Mutex
	// days holds loaded days plus days pinned by an in-flight operation.
	days  map[string]*Day
	goals map[string]*goalsState

	pending sync.WaitGroup
}

type Option func(*Coordinator)

func WithHealth(w health.Writer) Option {
	return func(c *Coordinator) { c.health = w }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(gw Gateway, opts ...Option) *Coordinator {
	c := &Coordinator{
		gw:     gw,
		health: health.Noop{},
		log:    zap.NewNop(),
		now:    time.Now,
		days:   make(map[string]*Day),
		goals:  make(map[string]*goalsState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) dayKey(at time.Time) (string, time.Time) {
	start, _ := c.gw.DayWindow(at)
	return start.Format(time.DateOnly), start
}

func newDay(key string, start time.Time) *Day {
	return &Day{key: key, start: start, flight: semaphore.NewWeighted(1), last: Mutation{State: StateIdle}}
}

// Day returns the collection for the local day containing at. A day that was
// never loaded is returned empty and is not tracked.
func (c *Coordinator) Day(at time.Time) *Day {
	key, start := c.dayKey(at)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.days[key]; ok {
		return d
	}
	return newDay(key, start)
}

// pin returns the tracked day containing at and holds it in the map until
// unpin.
func (c *Coordinator) pin(at time.Time) *Day {
	key, start := c.dayKey(at)
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.days[key]
	if !ok {
		d = newDay(key, start)
		c.days[key] = d
	}
	d.refs++
	return d
}

// unpin drops days that are neither loaded nor held by another operation.
func (c *Coordinator) unpin(days ...*Day) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range days {
		d.refs--
		if d.refs > 0 {
			continue
		}
		d.mu.RLock()
		loaded := d.loaded
		d.mu.RUnlock()
		if !loaded && c.days[d.key] == d {
			delete(c.days, d.key)
		}
	}
}

// hold pins the days and takes their single-flight slots.
func (c *Coordinator) hold(ctx context.Context, at ...time.Time) ([]*Day, func(), error) {
	days := make([]*Day, len(at))
	for i, t := range at {
		days[i] = c.pin(t)
	}
	release, err := acquire(ctx, days...)
	if err != nil {
		c.unpin(days...)
		return nil, nil, err
	}
	return days, func() {
		release()
		c.unpin(days...)
	}, nil
}

// holdEntry holds the day that currently stores id, plus the days at. The
// entry is re-read under the slots so a concurrent move to another day is
// never missed.
func (c *Coordinator) holdEntry(ctx context.Context, id uuid.UUID, at ...time.Time) (model.FoodLog, []*Day, func(), error) {
	for {
		current, err := c.gw.GetFoodLog(ctx, id)
		if err != nil {
			return model.FoodLog{}, nil, nil, err
		}
		days, release, err := c.hold(ctx, append([]time.Time{current.LoggedAt}, at...)...)
		if err != nil {
			return model.FoodLog{}, nil, nil, err
		}
		latest, err := c.gw.GetFoodLog(ctx, id)
		if err != nil {
			release()
			return model.FoodLog{}, nil, nil, err
		}
		if key, _ := c.dayKey(latest.LoggedAt); key == days[0].key {
			return latest, days, release, nil
		}
		release()
	}
}

// Wait blocks until every background health write has finished.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// acquire takes the single-flight slot of every day in a fixed order.
func acquire(ctx context.Context, days ...*Day) (func(), error) {
	uniq := make([]*Day, 0, len(days))
	for _, d := range days {
		if !slices.Contains(uniq, d) {
			uniq = append(uniq, d)
		}
	}
	slices.SortFunc(uniq, func(a, b *Day) int { return strings.Compare(a.key, b.key) })

	held := make([]*Day, 0, len(uniq))
	release := func() {
		for _, d := range held {
			d.flight.Release(1)
		}
	}
	for _, d := range uniq {
		if err := d.flight.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, d)
	}
	// Cancellation is honoured up to the durable call.
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// Load replaces the observed state of the day containing at with the
// durable state.
func (c *Coordinator) Load(ctx context.Context, at time.Time) (View, error) {
	days, release, err := c.hold(ctx, at)
	if err != nil {
		return View{}, err
	}
	defer release()
	d := days[0]

	logs, err := c.gw.FetchFoodLogs(ctx, d.start)
	if err != nil {
		return View{}, err
	}
	d.mu.Lock()
	d.logs = logs
	d.totals = model.TotalsOf(logs)
	d.loaded = true
	d.mu.Unlock()
	return d.View(), nil
}

type applied struct {
	day  *Day
	snap snapshot
}

// begin snapshots each loaded day and marks a new mutation as applying.
// Days that were never loaded have no observed state to update.
func (c *Coordinator) begin(kind Kind, id uuid.UUID, days ...*Day) []applied {
	var out []applied
	for _, d := range days {
		if slices.ContainsFunc(out, func(a applied) bool { return a.day == d }) {
			continue
		}
		d.mu.Lock()
		d.last = Mutation{Kind: kind, ID: id, State: StateIdle, At: c.now()}
		d.last.advance(StateApplying)
		out = append(out, applied{day: d, snap: d.takeSnapshot()})
		d.mu.Unlock()
	}
	return out
}

func (c *Coordinator) commit(changes []applied) {
	for _, a := range changes {
		a.day.mu.Lock()
		a.day.last.advance(StateCommitted)
		a.day.mu.Unlock()
	}
}

func (c *Coordinator) revert(changes []applied, err error) {
	for _, a := range changes {
		a.day.mu.Lock()
		a.day.restore(a.snap)
		a.day.last.Err = err
		a.day.last.advance(StateReverted)
		kind, id := a.day.last.Kind, a.day.last.ID
		a.day.mu.Unlock()
		c.log.Warn("mutation reverted",
			zap.String("day", a.day.key),
			zap.String("kind", string(kind)),
			zap.Stringer("id", id),
			zap.Error(err))
	}
}

// Log adds f to its day immediately and persists it. On failure the day is
// restored to exactly its previous state.
func (c *Coordinator) Log(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Name = strings.TrimSpace(f.Name)
	if err := validate.FoodLog(f); err != nil {
		return model.FoodLog{}, err
	}
	days, release, err := c.hold(ctx, f.LoggedAt)
	if err != nil {
		return model.FoodLog{}, err
	}
	defer release()
	d := days[0]

	changes := c.begin(KindLog, f.ID, d)
	d.mu.Lock()
	if d.loaded {
		d.add(f)
	}
	d.mu.Unlock()

	saved, err := c.gw.SaveFoodLog(context.WithoutCancel(ctx), f)
	if err != nil {
		c.revert(changes, err)
		return model.FoodLog{}, err
	}
	c.commit(changes)
	c.log.Debug("food logged", zap.String("day", d.key), zap.Stringer("id", saved.ID))
	c.exportSample(ctx, health.SampleOf(saved))
	return saved, nil
}

// Update replaces an existing entry. When the timestamp moves the entry to
// another day both days are updated under their single-flight slots.
func (c *Coordinator) Update(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	if f.ID == uuid.Nil {
		return model.FoodLog{}, model.NewValidationError("id", model.RuleRequired, "is required")
	}
	f.Name = strings.TrimSpace(f.Name)
	if err := validate.FoodLog(f); err != nil {
		return model.FoodLog{}, err
	}
	_, days, release, err := c.holdEntry(ctx, f.ID, f.LoggedAt)
	if err != nil {
		return model.FoodLog{}, err
	}
	defer release()
	from, to := days[0], days[1]

	changes := c.begin(KindUpdate, f.ID, from, to)
	for _, a := range changes {
		a.day.mu.Lock()
		if a.day.loaded {
			a.day.remove(f.ID)
			if a.day == to {
				a.day.add(f)
			}
		}
		a.day.mu.Unlock()
	}

	if err := c.gw.UpdateFoodLog(context.WithoutCancel(ctx), f); err != nil {
		c.revert(changes, err)
		return model.FoodLog{}, err
	}
	c.commit(changes)
	c.exportSample(ctx, health.SampleOf(f))
	return f, nil
}

// Delete removes the entry from its day and from the store.
func (c *Coordinator) Delete(ctx context.Context, id uuid.UUID) error {
	current, days, release, err := c.holdEntry(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	d := days[0]

	changes := c.begin(KindDelete, id, d)
	d.mu.Lock()
	if d.loaded {
		d.remove(id)
	}
	d.mu.Unlock()

	if err := c.gw.DeleteFoodLog(context.WithoutCancel(ctx), id); err != nil {
		c.revert(changes, err)
		return err
	}
	c.commit(changes)
	sample := health.SampleOf(current)
	sample.Deleted = true
	c.exportSample(ctx, sample)
	return nil
}

// exportSample writes to the health service in the background. Failures are
// logged and never reach the caller.
func (c *Coordinator) exportSample(ctx context.Context, s health.Sample) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthTimeout)
		defer cancel()
		if err := c.health.WriteNutritionSample(hctx, s); err != nil {
			c.log.Warn("health sample write failed", zap.Stringer("log_id", s.LogID), zap.Error(err))
		}
	}()
}
