package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// Timestamps are stored as INTEGER unix nanoseconds so range predicates stay
// numeric and independent of the driver's DATETIME formatting.
var migrations = []migration{
	{
		version: 1,
		name:    "food_logs_and_custom_foods",
		sql: `
CREATE TABLE IF NOT EXISTS custom_foods (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  calories REAL NOT NULL CHECK(calories >= 0),
  protein_g REAL NOT NULL CHECK(protein_g >= 0),
  carbs_g REAL NOT NULL CHECK(carbs_g >= 0),
  fat_g REAL NOT NULL CHECK(fat_g >= 0),
  serving_size REAL NOT NULL CHECK(serving_size > 0),
  serving_unit TEXT NOT NULL DEFAULT '',
  is_composite INTEGER NOT NULL DEFAULT 0,
  ingredients_json TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custom_foods_name ON custom_foods(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS food_logs (
  id TEXT PRIMARY KEY,
  logged_at INTEGER NOT NULL,
  name TEXT NOT NULL,
  calories REAL NOT NULL CHECK(calories >= 0),
  protein_g REAL NOT NULL CHECK(protein_g >= 0),
  carbs_g REAL NOT NULL CHECK(carbs_g >= 0),
  fat_g REAL NOT NULL CHECK(fat_g >= 0),
  meal_category TEXT NOT NULL CHECK(meal_category IN ('breakfast', 'lunch', 'dinner', 'snacks')),
  serving_size REAL NOT NULL DEFAULT 0,
  serving_unit TEXT NOT NULL DEFAULT '',
  barcode TEXT NOT NULL DEFAULT '',
  custom_food_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_food_logs_logged_at ON food_logs(logged_at);
`,
	},
	{
		version: 2,
		name:    "nutrition_goals",
		sql: `
CREATE TABLE IF NOT EXISTS nutrition_goals (
  scope TEXT PRIMARY KEY,
  calories REAL NOT NULL CHECK(calories > 0),
  protein_g REAL NOT NULL CHECK(protein_g >= 0),
  carbs_g REAL NOT NULL CHECK(carbs_g >= 0),
  fat_g REAL NOT NULL CHECK(fat_g >= 0),
  activity_level TEXT NOT NULL,
  direction TEXT NOT NULL,
  bmr REAL NOT NULL,
  tdee REAL NOT NULL,
  weight_kg REAL,
  height_cm REAL,
  age INTEGER,
  sex TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL
);
`,
	},
	{
		version: 3,
		name:    "sync_state",
		sql: `
CREATE TABLE IF NOT EXISTS sync_state (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`,
	},
}

// SchemaVersion is the newest migration this build knows about.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}
		if err := applyOne(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration version %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration version %d: %w", m.version, err)
	}
	return nil
}

// AppliedVersion returns the highest recorded migration, or 0 on a fresh file.
func AppliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}
