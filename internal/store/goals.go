package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

const goalsTable = "nutrition_goals"

var goalColumns = []string{
	"scope", "calories", "protein_g", "carbs_g", "fat_g", "activity_level", "direction",
	"bmr", "tdee", "weight_kg", "height_cm", "age", "sex", "updated_at",
}

// SaveGoals validates and stores the single active goal set of g.Scope,
// replacing any previous one. A zero UpdatedAt is set to now.
func (s *Store) SaveGoals(ctx context.Context, g model.NutritionGoals) (model.NutritionGoals, error) {
	g.Scope = strings.TrimSpace(g.Scope)
	if err := validate.Goals(g); err != nil {
		return model.NutritionGoals{}, err
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = s.now()
	}
	var age any
	if g.Age != nil {
		age = *g.Age
	}
	if _, err := s.exec(ctx, "save goals", builder.Insert(goalsTable).
		Columns(goalColumns...).
		Values(g.Scope, g.Calories, g.ProteinG, g.CarbsG, g.FatG, string(g.ActivityLevel), string(g.Direction),
			g.BMR, g.TDEE, nullFloat(g.WeightKg), nullFloat(g.HeightCm), age, string(g.Sex), toNanos(g.UpdatedAt)).
		Suffix(upsertSuffix(goalColumns))); err != nil {
		return model.NutritionGoals{}, err
	}
	return g, nil
}

// FetchGoals returns the goal set of scope, or nil when none was saved yet.
func (s *Store) FetchGoals(ctx context.Context, scope string) (*model.NutritionGoals, error) {
	goals, err := s.queryGoals(ctx, "fetch goals", builder.Select(goalColumns...).
		From(goalsTable).
		Where(sq.Eq{"scope": scope}))
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, nil
	}
	return &goals[0], nil
}

func (s *Store) ListGoals(ctx context.Context) ([]model.NutritionGoals, error) {
	return s.queryGoals(ctx, "list goals", builder.Select(goalColumns...).From(goalsTable).OrderBy("scope ASC"))
}

func (s *Store) GoalsExist(ctx context.Context, scope string) (bool, error) {
	return s.exists(ctx, goalsTable, "scope", scope)
}

func (s *Store) DeleteGoals(ctx context.Context, scope string) error {
	n, err := s.exec(ctx, "delete goals", builder.Delete(goalsTable).Where(sq.Eq{"scope": scope}))
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("goals", scope)
	}
	return nil
}

func (s *Store) queryGoals(ctx context.Context, op string, b sq.SelectBuilder) ([]model.NutritionGoals, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	out := make([]model.NutritionGoals, 0)
	for rows.Next() {
		var (
			g              model.NutritionGoals
			activity, dir  string
			sex            string
			weight, height sql.NullFloat64
			age            sql.NullInt64
			updatedAt      int64
		)
		if err := rows.Scan(&g.Scope, &g.Calories, &g.ProteinG, &g.CarbsG, &g.FatG, &activity, &dir,
			&g.BMR, &g.TDEE, &weight, &height, &age, &sex, &updatedAt); err != nil {
			return nil, persistErr(op, err)
		}
		g.ActivityLevel = model.ActivityLevel(activity)
		g.Direction = model.GoalDirection(dir)
		g.Sex = model.BiologicalSex(sex)
		if weight.Valid {
			g.WeightKg = &weight.Float64
		}
		if height.Valid {
			g.HeightCm = &height.Float64
		}
		if age.Valid {
			a := int(age.Int64)
			g.Age = &a
		}
		g.UpdatedAt = s.fromNanos(updatedAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
