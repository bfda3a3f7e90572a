// Package portability moves data in and out of the store in bulk: export,
// import with a merge strategy, retention cleanup and storage statistics.
package portability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saadjs/kcal-core/internal/cache"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/store"
	"github.com/saadjs/kcal-core/internal/validate"
)

const (
	Format        = "kcal-core-export"
	SchemaVersion = 1

	metaLastExport  = "last_export_at"
	metaLastImport  = "last_import_at"
	metaLastCleanup = "last_cleanup_at"
)

// ErrConflict is returned by the fail strategy when a payload record shares
// an identifier with an existing one.
var ErrConflict = errors.New("import conflict")

var errDryRun = errors.New("dry run")

// Payload is the versioned export document.
type Payload struct {
	Format        string                 `json:"format"`
	SchemaVersion int                    `json:"schema_version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Since         *time.Time             `json:"since,omitempty"`
	CustomFoods   []model.CustomFood     `json:"custom_foods"`
	Goals         []model.NutritionGoals `json:"goals"`
	FoodLogs      []model.FoodLog        `json:"food_logs"`
}

type Strategy string

const (
	StrategyOverwrite Strategy = "overwrite"
	// StrategySkip keeps the existing record when identifiers match.
	StrategySkip Strategy = "skip"
	StrategyFail Strategy = "fail"
)

func ParseStrategy(value string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(value))); s {
	case "":
		return StrategyOverwrite, nil
	case StrategyOverwrite, StrategySkip, StrategyFail:
		return s, nil
	default:
		return "", model.NewValidationError("strategy", model.RuleInvalidEnum, fmt.Sprintf("unknown import strategy %q (use overwrite, skip or fail)", value))
	}
}

type ExportOptions struct {
	// Since limits exported food logs to entries at or after it. Zero exports all.
	Since time.Time
}

type ImportOptions struct {
	Strategy Strategy
	DryRun   bool
}

type ImportReport struct {
	Inserted  int  `json:"inserted"`
	Updated   int  `json:"updated"`
	Skipped   int  `json:"skipped"`
	Conflicts int  `json:"conflicts"`
	DryRun    bool `json:"dry_run"`
}

type CleanupReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

type Statistics struct {
	CustomFoods   int         `json:"custom_foods"`
	FoodLogs      int         `json:"food_logs"`
	GoalScopes    int         `json:"goal_scopes"`
	CacheItems    int         `json:"cache_items"`
	Cache         cache.Stats `json:"cache"`
	DatabaseBytes int64       `json:"database_bytes"`
	TotalBytes    int64       `json:"total_bytes"`
	LastExportAt  *time.Time  `json:"last_export_at,omitempty"`
	LastImportAt  *time.Time  `json:"last_import_at,omitempty"`
	LastCleanupAt *time.Time  `json:"last_cleanup_at,omitempty"`
	SchemaVersion int         `json:"schema_version"`
}

// CacheStats is the read-only view of the result cache used for statistics.
type CacheStats interface {
	Stats() cache.Stats
}

type Manager struct {
	store *store.Store
	cache CacheStats
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func New(st *store.Store, c CacheStats, opts ...Option) *Manager {
	m := &Manager{store: st, cache: c, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Export reads every custom food and goal set, plus the food logs in the
// requested window, into a payload.
func (m *Manager) Export(ctx context.Context, opts ExportOptions) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Payload{Format: Format, SchemaVersion: SchemaVersion, ExportedAt: m.now()}
	if !opts.Since.IsZero() {
		since := opts.Since
		p.Since = &since
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		foods, err := m.store.ListCustomFoods(gctx)
		if err != nil {
			return fmt.Errorf("export custom foods: %w", err)
		}
		p.CustomFoods = foods
		return nil
	})
	g.Go(func() error {
		goals, err := m.store.ListGoals(gctx)
		if err != nil {
			return fmt.Errorf("export goals: %w", err)
		}
		p.Goals = goals
		return nil
	})
	g.Go(func() error {
		logs, err := m.store.ListFoodLogs(gctx, opts.Since)
		if err != nil {
			return fmt.Errorf("export food logs: %w", err)
		}
		p.FoodLogs = logs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	normalizeEmpty(p)

	if err := m.store.SetMeta(ctx, metaLastExport, p.ExportedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	m.log.Info("exported data",
		zap.Int("custom_foods", len(p.CustomFoods)),
		zap.Int("goals", len(p.Goals)),
		zap.Int("food_logs", len(p.FoodLogs)))
	return p, nil
}

func normalizeEmpty(p *Payload) {
	if p.CustomFoods == nil {
		p.CustomFoods = []model.CustomFood{}
	}
	if p.Goals == nil {
		p.Goals = []model.NutritionGoals{}
	}
	if p.FoodLogs == nil {
		p.FoodLogs = []model.FoodLog{}
	}
}

func Encode(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode export payload: %w", err)
	}
	return nil
}

// Decode parses and checks a payload. Anything that is not a supported
// export document is reported as ErrSyncPayloadIncompatible.
func Decode(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode export payload: %w: %w", model.ErrSyncPayloadIncompatible, err)
	}
	if err := Check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func Check(p *Payload) error {
	if p == nil {
		return fmt.Errorf("empty payload: %w", model.ErrSyncPayloadIncompatible)
	}
	if p.Format != Format {
		return fmt.Errorf("payload format %q, want %q: %w", p.Format, Format, model.ErrSyncPayloadIncompatible)
	}
	if p.SchemaVersion != SchemaVersion {
		return fmt.Errorf("payload schema version %d, want %d: %w", p.SchemaVersion, SchemaVersion, model.ErrSyncPayloadIncompatible)
	}
	return nil
}

func precheck(p *Payload) error {
	for i, f := range p.CustomFoods {
		if f.ID == uuid.Nil {
			return fmt.Errorf("custom food %d: %w", i, model.NewValidationError("id", model.RuleRequired, "is required"))
		}
		if err := validate.CustomFood(f); err != nil {
			return fmt.Errorf("custom food %s: %w", f.ID, err)
		}
	}
	for _, g := range p.Goals {
		if err := validate.Goals(g); err != nil {
			return fmt.Errorf("goals %q: %w", g.Scope, err)
		}
	}
	for i, f := range p.FoodLogs {
		if f.ID == uuid.Nil {
			return fmt.Errorf("food log %d: %w", i, model.NewValidationError("id", model.RuleRequired, "is required"))
		}
		if err := validate.FoodLog(f); err != nil {
			return fmt.Errorf("food log %s: %w", f.ID, err)
		}
	}
	return nil
}

// Import applies the payload in one transaction. Either every record is
// applied or none is. Records absent from the payload are never touched.
func (m *Manager) Import(ctx context.Context, p *Payload, opts ImportOptions) (ImportReport, error) {
	report := ImportReport{DryRun: opts.DryRun}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := Check(p); err != nil {
		return report, err
	}
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return report, err
	}
	if err := precheck(p); err != nil {
		return report, fmt.Errorf("import: %w", err)
	}

	// The write runs to completion once started.
	ctx = context.WithoutCancel(ctx)
	err = m.store.InTx(ctx, func(tx *store.Store) error {
		report = ImportReport{DryRun: opts.DryRun}
		decide := func(exists bool) (write bool) {
			switch {
			case !exists:
				report.Inserted++
				return true
			case strategy == StrategySkip:
				report.Skipped++
				return false
			case strategy == StrategyFail:
				report.Conflicts++
				return false
			default:
				report.Updated++
				return true
			}
		}

		for _, f := range p.CustomFoods {
			exists, err := tx.CustomFoodExists(ctx, f.ID)
			if err != nil {
				return err
			}
			if !decide(exists) {
				continue
			}
			if err := tx.UpsertCustomFood(ctx, f); err != nil {
				return fmt.Errorf("import custom food %s: %w", f.ID, err)
			}
		}
		for _, g := range p.Goals {
			exists, err := tx.GoalsExist(ctx, strings.TrimSpace(g.Scope))
			if err != nil {
				return err
			}
			if !decide(exists) {
				continue
			}
			if _, err := tx.SaveGoals(ctx, g); err != nil {
				return fmt.Errorf("import goals %q: %w", g.Scope, err)
			}
		}
		for _, f := range p.FoodLogs {
			exists, err := tx.FoodLogExists(ctx, f.ID)
			if err != nil {
				return err
			}
			if !decide(exists) {
				continue
			}
			if err := tx.UpsertFoodLog(ctx, f); err != nil {
				return fmt.Errorf("import food log %s: %w", f.ID, err)
			}
		}

		if report.Conflicts > 0 {
			return fmt.Errorf("%d records already exist: %w", report.Conflicts, ErrConflict)
		}
		if opts.DryRun {
			return errDryRun
		}
		return tx.SetMeta(ctx, metaLastImport, m.now().UTC().Format(time.RFC3339Nano))
	})
	if errors.Is(err, errDryRun) {
		return report, nil
	}
	if err != nil {
		return report, err
	}
	m.log.Info("imported data",
		zap.String("strategy", string(strategy)),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// CleanupOldData deletes food logs from before local midnight of the day
// that is retention ago. Custom foods and goals are never removed.
func (m *Manager) CleanupOldData(ctx context.Context, retention time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if retention <= 0 {
		return CleanupReport{}, model.NewValidationError("retention", model.RuleNotPositive, "must be greater than zero")
	}
	cutoff, _ := m.store.DayWindow(m.now().Add(-retention))
	report := CleanupReport{Cutoff: cutoff}

	ctx = context.WithoutCancel(ctx)
	err := m.store.InTx(ctx, func(tx *store.Store) error {
		n, err := tx.DeleteFoodLogsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		report.Deleted = n
		return tx.SetMeta(ctx, metaLastCleanup, m.now().UTC().Format(time.RFC3339Nano))
	})
	if err != nil {
		return CleanupReport{}, fmt.Errorf("cleanup old data: %w", err)
	}
	m.log.Info("cleaned up food logs", zap.Time("cutoff", cutoff), zap.Int64("deleted", report.Deleted))
	return report, nil
}

// StorageStatistics aggregates store counts with the result cache.
func (m *Manager) StorageStatistics(ctx context.Context) (Statistics, error) {
	var (
		st  Statistics
		err error
	)
	if st.CustomFoods, err = m.store.CountCustomFoods(ctx); err != nil {
		return Statistics{}, err
	}
	if st.FoodLogs, err = m.store.CountFoodLogs(ctx); err != nil {
		return Statistics{}, err
	}
	goals, err := m.store.ListGoals(ctx)
	if err != nil {
		return Statistics{}, err
	}
	st.GoalScopes = len(goals)
	if st.DatabaseBytes, err = m.store.ApproximateSize(ctx); err != nil {
		return Statistics{}, err
	}
	if m.cache != nil {
		st.Cache = m.cache.Stats()
		st.CacheItems = st.Cache.Items
	}
	st.TotalBytes = st.DatabaseBytes + st.Cache.TotalBytes
	st.SchemaVersion = SchemaVersion

	for key, dst := range map[string]**time.Time{
		metaLastExport:  &st.LastExportAt,
		metaLastImport:  &st.LastImportAt,
		metaLastCleanup: &st.LastCleanupAt,
	} {
		value, ok, err := m.store.Meta(ctx, key)
		if err != nil {
			return Statistics{}, err
		}
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			m.log.Warn("unreadable sync timestamp", zap.String("key", key), zap.String("value", value))
			continue
		}
		*dst = &ts
	}
	return st, nil
}
