package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

const customFoodsTable = "custom_foods"

var customFoodColumns = []string{
	"id", "name", "calories", "protein_g", "carbs_g", "fat_g",
	"serving_size", "serving_unit", "is_composite", "ingredients_json",
	"created_at", "updated_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func customFoodValues(f model.CustomFood) ([]any, error) {
	ingredients := ""
	if len(f.Ingredients) > 0 {
		raw, err := json.Marshal(f.Ingredients)
		if err != nil {
			return nil, fmt.Errorf("encode ingredients: %w", err)
		}
		ingredients = string(raw)
	}
	return []any{
		f.ID.String(), strings.TrimSpace(f.Name), f.Calories, f.ProteinG, f.CarbsG, f.FatG,
		f.ServingSize, f.ServingUnit, f.IsComposite, ingredients,
		toNanos(f.CreatedAt), toNanos(f.UpdatedAt),
	}, nil
}

// SaveCustomFood validates and inserts a food. A nil ID is assigned and
// missing timestamps are set to now.
func (s *Store) SaveCustomFood(ctx context.Context, f model.CustomFood) (model.CustomFood, error) {
	if err := validate.CustomFood(f); err != nil {
		return model.CustomFood{}, err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := s.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}
	f.Name = strings.TrimSpace(f.Name)
	values, err := customFoodValues(f)
	if err != nil {
		return model.CustomFood{}, err
	}
	if _, err := s.exec(ctx, "save custom food", builder.Insert(customFoodsTable).
		Columns(customFoodColumns...).
		Values(values...)); err != nil {
		return model.CustomFood{}, err
	}
	return f, nil
}

// UpdateCustomFood replaces an existing food and bumps UpdatedAt. CreatedAt is kept.
func (s *Store) UpdateCustomFood(ctx context.Context, f model.CustomFood) (model.CustomFood, error) {
	if err := validate.CustomFood(f); err != nil {
		return model.CustomFood{}, err
	}
	f.UpdatedAt = s.now()
	values, err := customFoodValues(f)
	if err != nil {
		return model.CustomFood{}, err
	}
	set := map[string]any{}
	for i, col := range customFoodColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		set[col] = values[i]
	}
	n, err := s.exec(ctx, "update custom food", builder.Update(customFoodsTable).
		SetMap(set).
		Where(sq.Eq{"id": f.ID.String()}))
	if err != nil {
		return model.CustomFood{}, err
	}
	if n == 0 {
		return model.CustomFood{}, notFound("custom food", f.ID)
	}
	return s.GetCustomFood(ctx, f.ID)
}

// UpsertCustomFood writes the food exactly as given, timestamps included.
func (s *Store) UpsertCustomFood(ctx context.Context, f model.CustomFood) error {
	if err := validate.CustomFood(f); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		return model.NewValidationError("id", model.RuleRequired, "is required")
	}
	values, err := customFoodValues(f)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, "upsert custom food", builder.Insert(customFoodsTable).
		Columns(customFoodColumns...).
		Values(values...).
		Suffix(upsertSuffix(customFoodColumns)))
	return err
}

// DeleteCustomFood removes the food. Food logs that reference it keep their
// copy of the nutrition values and the dangling identifier.
func (s *Store) DeleteCustomFood(ctx context.Context, id uuid.UUID) error {
	n, err := s.exec(ctx, "delete custom food", builder.Delete(customFoodsTable).Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("custom food", id)
	}
	return nil
}

func (s *Store) GetCustomFood(ctx context.Context, id uuid.UUID) (model.CustomFood, error) {
	foods, err := s.queryCustomFoods(ctx, "get custom food", builder.Select(customFoodColumns...).
		From(customFoodsTable).
		Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return model.CustomFood{}, err
	}
	if len(foods) == 0 {
		return model.CustomFood{}, notFound("custom food", id)
	}
	return foods[0], nil
}

func (s *Store) CustomFoodExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.exists(ctx, customFoodsTable, "id", id.String())
}

func (s *Store) ListCustomFoods(ctx context.Context) ([]model.CustomFood, error) {
	return s.SearchCustomFoods(ctx, "")
}

// SearchCustomFoods matches name substrings case-insensitively. An empty or
// blank query returns every food.
func (s *Store) SearchCustomFoods(ctx context.Context, query string) ([]model.CustomFood, error) {
	b := builder.Select(customFoodColumns...).
		From(customFoodsTable).
		OrderBy("name COLLATE NOCASE ASC", "id ASC")
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		b = b.Where(sq.Expr(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(q)+"%"))
	}
	return s.queryCustomFoods(ctx, "search custom foods", b)
}

func (s *Store) CountCustomFoods(ctx context.Context) (int, error) {
	return s.count(ctx, customFoodsTable)
}

func (s *Store) queryCustomFoods(ctx context.Context, op string, b sq.SelectBuilder) ([]model.CustomFood, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	out := make([]model.CustomFood, 0)
	for rows.Next() {
		var (
			f                    model.CustomFood
			ingredients          string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Calories, &f.ProteinG, &f.CarbsG, &f.FatG,
			&f.ServingSize, &f.ServingUnit, &f.IsComposite, &ingredients, &createdAt, &updatedAt); err != nil {
			return nil, persistErr(op, err)
		}
		if ingredients != "" {
			if err := json.Unmarshal([]byte(ingredients), &f.Ingredients); err != nil {
				return nil, persistErr(op, fmt.Errorf("decode ingredients of %s: %w", f.ID, err))
			}
		}
		f.CreatedAt = s.fromNanos(createdAt)
		f.UpdatedAt = s.fromNanos(updatedAt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}
