package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saakshy/saakshy-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Migrations(), "*_"+suffix+".sql")
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration embedded", suffix)
	data, err := fs.ReadFile(migrate.Migrations(), matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestLedgerEventsMigrationEnforcesChainIndex(t *testing.T) {
	content := readMigration(t, "create_ledger_events")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS ledger_events",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_events_record_seq ON ledger_events (record_id, seq)",
		"prev_hash char(64) NOT NULL",
		"BEFORE UPDATE OR DELETE ON ledger_events",
		"DROP TABLE IF EXISTS ledger_events",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOutboxMigrationCreatesBothTables(t *testing.T) {
	content := readMigration(t, "create_outbox")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"WHERE published_at IS NULL",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestEmbeddedMigrationsMatchSourceTree(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Migrations()))
	require.NoError(t, migrate.Validate(os.DirFS("migrations")))

	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))
}

func TestValidateReportsEveryBadFile(t *testing.T) {
	const ok = "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	bad := fstest.MapFS{
		"20250101000000_ok.sql":          {Data: []byte(ok)},
		"20250101000000_same_version.sql": {Data: []byte(ok)},
		"2025_short.sql":                 {Data: []byte(ok)},
		"20250102000000_no_down.sql":     {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"20250103000000_open_block.sql":  {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		"README.md":                      {Data: []byte("ignored")},
	}
	err := migrate.Validate(bad)
	require.Error(t, err)
	for _, name := range []string{"same_version", "2025_short", "no_down", "open_block"} {
		assert.Contains(t, err.Error(), name)
	}
	assert.NotContains(t, err.Error(), "README")
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Ledger Audit!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_ledger_audit.sql"), path)
	assert.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}
