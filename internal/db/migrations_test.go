package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadjs/kcal-core/internal/db"
)

func TestApplyMigrationsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "kcal.db")
	sqldb, err := db.Open(ctx, dbPath)
	require.NoError(t, err)
	defer sqldb.Close()

	require.NoError(t, db.ApplyMigrations(ctx, sqldb), "first apply")
	require.NoError(t, db.ApplyMigrations(ctx, sqldb), "second apply")

	var migrationCount int
	require.NoError(t, sqldb.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&migrationCount))
	assert.Equal(t, db.SchemaVersion(), migrationCount)

	version, err := db.AppliedVersion(ctx, sqldb)
	require.NoError(t, err)
	assert.Equal(t, db.SchemaVersion(), version)

	for _, table := range []string{"food_logs", "custom_foods", "nutrition_goals", "sync_state"} {
		var n int
		require.NoError(t, sqldb.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, "expected %s table to exist", table)
	}

	var idx int
	require.NoError(t, sqldb.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'index' AND name = 'idx_food_logs_logged_at'`).Scan(&idx))
	assert.Equal(t, 1, idx)

	var ingredientsCol int
	require.NoError(t, sqldb.QueryRow(`SELECT COUNT(1) FROM pragma_table_info('custom_foods') WHERE name = 'ingredients_json'`).Scan(&ingredientsCol))
	assert.Equal(t, 1, ingredientsCol)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestMealCategoryCheckConstraint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sqldb, err := db.OpenMigrated(ctx, filepath.Join(t.TempDir(), "kcal.db"))
	require.NoError(t, err)
	defer sqldb.Close()

	_, err = sqldb.Exec(`INSERT INTO food_logs(id, logged_at, name, calories, protein_g, carbs_g, fat_g, meal_category)
VALUES('x', 0, 'n', 0, 0, 0, 0, 'brunch')`)
	require.Error(t, err)
}
