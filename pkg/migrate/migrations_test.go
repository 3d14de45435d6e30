package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matches %s", pattern)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestOrdersMigrationCarriesSyncStateAndDedupConstraints(t *testing.T) {
	content := readMigration(t, "*_create_users_and_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"pos_external_id VARCHAR(255)",
		"loyalty_attempts INTEGER NOT NULL DEFAULT 0",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_order_status_transitions ON order_status_transitions (order_id, event_key)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_events_order_type ON ledger_events (order_id, type)",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMenuMigrationIndexesExternalIDs(t *testing.T) {
	content := readMigration(t, "*_create_menu_tables.sql")

	checks := []string{
		"ux_menu_categories_external_id",
		"ux_menu_items_external_id",
		"ux_item_variants_external_id",
		"ux_modifiers_external_id",
		"ux_item_prices ON item_prices (variant_id, city_id, fulfillment_type)",
		"CHECK (fulfillment_type IN ('delivery', 'pickup'))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()

	path, err := migrate.CreateSQLMigration(dir, "Add Loyalty Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_loyalty_index.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}
