// Package app wires the nutrition core together and exposes the operations
// the presentation layer calls.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saadjs/kcal-core/internal/cache"
	"github.com/saadjs/kcal-core/internal/config"
	"github.com/saadjs/kcal-core/internal/db"
	"github.com/saadjs/kcal-core/internal/goals"
	"github.com/saadjs/kcal-core/internal/health"
	"github.com/saadjs/kcal-core/internal/lookup"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/observed"
	"github.com/saadjs/kcal-core/internal/portability"
	"github.com/saadjs/kcal-core/internal/provider/openfoodfacts"
	"github.com/saadjs/kcal-core/internal/provider/upcitemdb"
	"github.com/saadjs/kcal-core/internal/provider/usda"
	"github.com/saadjs/kcal-core/internal/store"
)

// HealthService is both sides of the platform health collaborator.
type HealthService interface {
	health.Writer
	health.MetricsSource
}

type App struct {
	cfg *config.Config
	log *zap.Logger
	now func() time.Time

	db       *sql.DB
	store    *store.Store
	cache    *cache.Cache
	lookup   *lookup.Service
	sync     *portability.Manager
	observed *observed.Coordinator
	health   HealthService
}

type options struct {
	providers []lookup.Provider
	health    HealthService
	loc       *time.Location
	now       func() time.Time
}

type Option func(*options)

// WithProviders replaces the providers built from configuration.
func WithProviders(p ...lookup.Provider) Option {
	return func(o *options) { o.providers = p }
}

func WithHealth(h HealthService) Option {
	return func(o *options) { o.health = h }
}

func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open opens (and migrates) the database and builds every component.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := options{loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	path, err := ResolveDBPath(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	sqldb, err := db.OpenMigrated(ctx, path)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cfg.Cache.MaxItems, cfg.Cache.TTL, cache.WithClock(o.now), cache.WithLogger(log.Named("cache")))
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	if o.providers == nil {
		o.providers = buildProviders(cfg.Lookup, log)
	}
	if o.health == nil {
		o.health = buildHealth(cfg.Health)
	}

	st := store.New(sqldb,
		store.WithLocation(o.loc),
		store.WithClock(o.now),
		store.WithLogger(log.Named("store")))

	a := &App{
		cfg:    cfg,
		log:    log,
		now:    o.now,
		db:     sqldb,
		store:  st,
		cache:  c,
		health: o.health,
		lookup: lookup.New(c, o.providers, lookup.Options{
			Limit:   cfg.Lookup.Limit,
			Timeout: cfg.Lookup.Timeout,
		}, log.Named("lookup")),
		sync: portability.New(st, c,
			portability.WithClock(o.now),
			portability.WithLogger(log.Named("sync"))),
		observed: observed.New(st,
			observed.WithHealth(o.health),
			observed.WithClock(o.now),
			observed.WithLogger(log.Named("observed"))),
	}
	log.Debug("opened database", zap.String("path", path))
	return a, nil
}

func buildProviders(cfg config.LookupConfig, log *zap.Logger) []lookup.Provider {
	client := &http.Client{Timeout: cfg.Timeout}
	var out []lookup.Provider
	for _, name := range cfg.ProviderNames() {
		switch name {
		case openfoodfacts.Name:
			out = append(out, &openfoodfacts.Client{HTTPClient: client})
		case usda.Name:
			if strings.TrimSpace(cfg.USDAAPIKey) == "" {
				log.Debug("skipping usda provider without api key")
				continue
			}
			out = append(out, &usda.Client{APIKey: cfg.USDAAPIKey, HTTPClient: client})
		case upcitemdb.Name:
			out = append(out, &upcitemdb.Client{APIKey: cfg.UPCItemDBAPIKey, HTTPClient: client})
		}
	}
	return out
}

func buildHealth(cfg config.HealthConfig) HealthService {
	if !cfg.Enabled {
		return health.Noop{}
	}
	return &health.Client{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Close waits for background health writes and closes the database.
func (a *App) Close() error {
	a.observed.Wait()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Location() *time.Location { return a.store.Location() }

func (a *App) scope() string { return a.cfg.Goals.Scope }

// LogFood records a meal. The day view, when loaded, shows it immediately.
func (a *App) LogFood(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	if f.LoggedAt.IsZero() {
		f.LoggedAt = a.now()
	}
	return a.observed.Log(ctx, f)
}

func (a *App) UpdateFood(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	return a.observed.Update(ctx, f)
}

func (a *App) DeleteFood(ctx context.Context, id uuid.UUID) error {
	return a.observed.Delete(ctx, id)
}

func (a *App) GetFood(ctx context.Context, id uuid.UUID) (model.FoodLog, error) {
	return a.store.GetFoodLog(ctx, id)
}

// DayReport is a day's entries with totals and, when goals exist, progress.
type DayReport struct {
	observed.View
	Goals     *model.NutritionGoals    `json:"goals,omitempty"`
	Progress  *model.NutritionProgress `json:"progress,omitempty"`
	Remaining *model.Macros            `json:"remaining,omitempty"`
}

func (a *App) LoadFoodLogs(ctx context.Context, day time.Time) (DayReport, error) {
	view, err := a.observed.Load(ctx, day)
	if err != nil {
		return DayReport{}, err
	}
	report := DayReport{View: view}
	g, err := a.observed.LoadGoals(ctx, a.scope())
	if err != nil {
		return DayReport{}, err
	}
	if g != nil {
		progress := view.Totals.Progress(*g)
		remaining := view.Totals.Remaining(*g)
		report.Goals, report.Progress, report.Remaining = g, &progress, &remaining
	}
	return report, nil
}

// FoodLogsBetween returns the entries of the local days from through to.
func (a *App) FoodLogsBetween(ctx context.Context, from, to time.Time) ([]model.FoodLog, error) {
	return a.store.FetchFoodLogsRange(ctx, from, to)
}

// LoadGoals returns the configured scope's goals, or nil when none are set.
func (a *App) LoadGoals(ctx context.Context) (*model.NutritionGoals, error) {
	return a.observed.LoadGoals(ctx, a.scope())
}

func (a *App) UpdateGoals(ctx context.Context, g model.NutritionGoals) (model.NutritionGoals, error) {
	if strings.TrimSpace(g.Scope) == "" {
		g.Scope = a.scope()
	}
	g.UpdatedAt = a.now()
	return a.observed.UpdateGoals(ctx, g)
}

// SetupGoals plans goals from physical inputs. Inputs left at zero are taken
// from the health service when it knows them.
func (a *App) SetupGoals(ctx context.Context, in goals.PlanInput) (model.NutritionGoals, error) {
	if in.WeightKg == 0 || in.HeightCm == 0 || in.Age == 0 || in.Sex == "" {
		m, err := a.health.FetchPhysicalMetrics(ctx)
		if err != nil {
			a.log.Warn("physical metrics unavailable", zap.Error(err))
		} else {
			fillPlanInput(&in, m)
		}
	}
	if in.Scope == "" {
		in.Scope = a.scope()
	}
	g, err := goals.Plan(in, a.now())
	if err != nil {
		return model.NutritionGoals{}, err
	}
	return a.observed.UpdateGoals(ctx, g)
}

func fillPlanInput(in *goals.PlanInput, m health.PhysicalMetrics) {
	if in.WeightKg == 0 && m.WeightKg != nil {
		in.WeightKg = *m.WeightKg
	}
	if in.HeightCm == 0 && m.HeightCm != nil {
		in.HeightCm = *m.HeightCm
	}
	if in.Age == 0 && m.Age != nil {
		in.Age = *m.Age
	}
	if in.Sex == "" {
		in.Sex = m.Sex
	}
}

// CreateCustomFood saves a food. Foods with ingredients are composite and
// take their macros from the ingredient sums.
func (a *App) CreateCustomFood(ctx context.Context, f model.CustomFood) (model.CustomFood, error) {
	if len(f.Ingredients) > 0 || f.IsComposite {
		f.ApplyIngredientTotals()
	}
	return a.store.SaveCustomFood(ctx, f)
}

func (a *App) UpdateCustomFood(ctx context.Context, f model.CustomFood) (model.CustomFood, error) {
	if len(f.Ingredients) > 0 || f.IsComposite {
		f.ApplyIngredientTotals()
	}
	return a.store.UpdateCustomFood(ctx, f)
}

func (a *App) SearchCustomFoods(ctx context.Context, query string) ([]model.CustomFood, error) {
	return a.store.SearchCustomFoods(ctx, query)
}

func (a *App) GetCustomFood(ctx context.Context, id uuid.UUID) (model.CustomFood, error) {
	return a.store.GetCustomFood(ctx, id)
}

func (a *App) DeleteCustomFood(ctx context.Context, id uuid.UUID) error {
	return a.store.DeleteCustomFood(ctx, id)
}

// LogCustomFood logs servings of a saved food, keeping a reference to it.
func (a *App) LogCustomFood(ctx context.Context, id uuid.UUID, meal model.MealCategory, at time.Time, servings float64) (model.FoodLog, error) {
	if servings <= 0 {
		return model.FoodLog{}, model.NewValidationError("servings", model.RuleNotPositive, "must be greater than zero")
	}
	food, err := a.store.GetCustomFood(ctx, id)
	if err != nil {
		return model.FoodLog{}, err
	}
	ref := food.ID
	return a.LogFood(ctx, model.FoodLog{
		LoggedAt:     at,
		Name:         food.Name,
		Calories:     food.Calories * servings,
		ProteinG:     food.ProteinG * servings,
		CarbsG:       food.CarbsG * servings,
		FatG:         food.FatG * servings,
		Meal:         meal,
		ServingSize:  food.ServingSize * servings,
		ServingUnit:  food.ServingUnit,
		CustomFoodID: &ref,
	})
}

func (a *App) SearchFoods(ctx context.Context, query string) ([]model.FoodSearchResult, error) {
	return a.lookup.Search(ctx, query)
}

func (a *App) LookupBarcode(ctx context.Context, code string) (model.FoodSearchResult, error) {
	return a.lookup.Barcode(ctx, code)
}

// ExportData exports everything, limiting food logs to the configured
// window when one is set and opts does not name its own.
func (a *App) ExportData(ctx context.Context, opts portability.ExportOptions) (*portability.Payload, error) {
	if opts.Since.IsZero() && a.cfg.Sync.ExportWindowDays > 0 {
		opts.Since, _ = a.store.DayWindow(a.now().AddDate(0, 0, -a.cfg.Sync.ExportWindowDays))
	}
	return a.sync.Export(ctx, opts)
}

func (a *App) ImportData(ctx context.Context, p *portability.Payload, opts portability.ImportOptions) (portability.ImportReport, error) {
	return a.sync.Import(ctx, p, opts)
}

// CleanupOldData applies the configured retention horizon.
func (a *App) CleanupOldData(ctx context.Context) (portability.CleanupReport, error) {
	return a.sync.CleanupOldData(ctx, a.cfg.Sync.Retention())
}

func (a *App) StorageStatistics(ctx context.Context) (portability.Statistics, error) {
	return a.sync.StorageStatistics(ctx)
}

func (a *App) ClearExpiredCache() int { return a.cache.ClearExpired() }

func (a *App) ClearCache() { a.cache.ClearAll() }
