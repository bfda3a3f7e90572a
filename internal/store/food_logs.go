package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

const foodLogsTable = "food_logs"

var foodLogColumns = []string{
	"id", "logged_at", "name", "calories", "protein_g", "carbs_g", "fat_g",
	"meal_category", "serving_size", "serving_unit", "barcode", "custom_food_id",
}

// mealOrder sorts rows by the fixed display order of meal categories.
var mealOrder = func() string {
	var b strings.Builder
	b.WriteString("CASE meal_category")
	for i, c := range model.MealCategories {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", c, i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(model.MealCategories))
	return b.String()
}()

func foodLogValues(f model.FoodLog) []any {
	var customID any
	if f.CustomFoodID != nil {
		customID = f.CustomFoodID.String()
	}
	return []any{
		f.ID.String(), toNanos(f.LoggedAt), strings.TrimSpace(f.Name),
		f.Calories, f.ProteinG, f.CarbsG, f.FatG,
		string(f.Meal), f.ServingSize, f.ServingUnit, f.Barcode, customID,
	}
}

// SaveFoodLog validates and inserts a new entry. A nil ID is assigned.
func (s *Store) SaveFoodLog(ctx context.Context, f model.FoodLog) (model.FoodLog, error) {
	if err := validate.FoodLog(f); err != nil {
		return model.FoodLog{}, err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Name = strings.TrimSpace(f.Name)
	if _, err := s.exec(ctx, "save food log", builder.Insert(foodLogsTable).
		Columns(foodLogColumns...).
		Values(foodLogValues(f)...)); err != nil {
		return model.FoodLog{}, err
	}
	s.log.Debug("food log saved", zap.Stringer("id", f.ID), zap.String("meal", string(f.Meal)))
	return f, nil
}

// UpdateFoodLog replaces every field of an existing entry.
func (s *Store) UpdateFoodLog(ctx context.Context, f model.FoodLog) error {
	if err := validate.FoodLog(f); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		return model.NewValidationError("id", model.RuleRequired, "is required")
	}
	values := foodLogValues(f)
	set := make(map[string]any, len(foodLogColumns)-1)
	for i, col := range foodLogColumns[1:] {
		set[col] = values[i+1]
	}
	n, err := s.exec(ctx, "update food log", builder.Update(foodLogsTable).
		SetMap(set).
		Where(sq.Eq{"id": f.ID.String()}))
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("food log", f.ID)
	}
	return nil
}

// UpsertFoodLog writes the entry exactly as given, replacing any row with the same ID.
func (s *Store) UpsertFoodLog(ctx context.Context, f model.FoodLog) error {
	if err := validate.FoodLog(f); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		return model.NewValidationError("id", model.RuleRequired, "is required")
	}
	_, err := s.exec(ctx, "upsert food log", builder.Insert(foodLogsTable).
		Columns(foodLogColumns...).
		Values(foodLogValues(f)...).
		Suffix(upsertSuffix(foodLogColumns)))
	return err
}

func (s *Store) DeleteFoodLog(ctx context.Context, id uuid.UUID) error {
	n, err := s.exec(ctx, "delete food log", builder.Delete(foodLogsTable).Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("food log", id)
	}
	return nil
}

func (s *Store) GetFoodLog(ctx context.Context, id uuid.UUID) (model.FoodLog, error) {
	logs, err := s.queryFoodLogs(ctx, "get food log", builder.Select(foodLogColumns...).
		From(foodLogsTable).
		Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return model.FoodLog{}, err
	}
	if len(logs) == 0 {
		return model.FoodLog{}, notFound("food log", id)
	}
	return logs[0], nil
}

func (s *Store) FoodLogExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.exists(ctx, foodLogsTable, "id", id.String())
}

// FetchFoodLogs returns the entries of the local calendar day containing
// day, grouped by meal category display order and chronological within a
// category.
func (s *Store) FetchFoodLogs(ctx context.Context, day time.Time) ([]model.FoodLog, error) {
	start, end := s.DayWindow(day)
	return s.queryFoodLogs(ctx, "fetch food logs", builder.Select(foodLogColumns...).
		From(foodLogsTable).
		Where(sq.GtOrEq{"logged_at": toNanos(start)}).
		Where(sq.Lt{"logged_at": toNanos(end)}).
		OrderBy(mealOrder+" ASC", "logged_at ASC", "id ASC"))
}

// FetchFoodLogsRange returns entries from the start of from's day up to, but
// excluding, the start of the day after to. Results are chronological.
func (s *Store) FetchFoodLogsRange(ctx context.Context, from, to time.Time) ([]model.FoodLog, error) {
	start, _ := s.DayWindow(from)
	_, end := s.DayWindow(to)
	if !end.After(start) {
		return nil, fmt.Errorf("range end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return s.queryFoodLogs(ctx, "fetch food log range", builder.Select(foodLogColumns...).
		From(foodLogsTable).
		Where(sq.GtOrEq{"logged_at": toNanos(start)}).
		Where(sq.Lt{"logged_at": toNanos(end)}).
		OrderBy("logged_at ASC", "id ASC"))
}

// ListFoodLogs returns every entry at or after since, or all entries when since is zero.
func (s *Store) ListFoodLogs(ctx context.Context, since time.Time) ([]model.FoodLog, error) {
	b := builder.Select(foodLogColumns...).From(foodLogsTable).OrderBy("logged_at ASC", "id ASC")
	if !since.IsZero() {
		b = b.Where(sq.GtOrEq{"logged_at": toNanos(since)})
	}
	return s.queryFoodLogs(ctx, "list food logs", b)
}

// DeleteFoodLogsBefore removes entries logged strictly before cutoff.
func (s *Store) DeleteFoodLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "delete old food logs", builder.Delete(foodLogsTable).
		Where(sq.Lt{"logged_at": toNanos(cutoff)}))
}

func (s *Store) CountFoodLogs(ctx context.Context) (int, error) {
	return s.count(ctx, foodLogsTable)
}

func (s *Store) queryFoodLogs(ctx context.Context, op string, b sq.SelectBuilder) ([]model.FoodLog, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	out := make([]model.FoodLog, 0)
	for rows.Next() {
		var (
			f        model.FoodLog
			loggedAt int64
			meal     string
			customID uuid.NullUUID
		)
		if err := rows.Scan(&f.ID, &loggedAt, &f.Name, &f.Calories, &f.ProteinG, &f.CarbsG, &f.FatG,
			&meal, &f.ServingSize, &f.ServingUnit, &f.Barcode, &customID); err != nil {
			return nil, persistErr(op, err)
		}
		f.LoggedAt = s.fromNanos(loggedAt)
		f.Meal = model.MealCategory(meal)
		if customID.Valid {
			id := customID.UUID
			f.CustomFoodID = &id
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func upsertSuffix(columns []string) string {
	sets := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	return "ON CONFLICT(" + columns[0] + ") DO UPDATE SET " + strings.Join(sets, ", ")
}
