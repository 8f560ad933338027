package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/db"
	"github.com/tcgmatcher/d1sync/internal/metrics"
)

// seedStore materializes a small snapshot store the way the loader would:
// three tables plus their lookup indexes.
func seedStore(t *testing.T, dir string, skuCount int) string {
	t.Helper()
	path := filepath.Join(dir, "tcg_data.db")
	gdb := openSQLite(t, path)

	require.NoError(t, gdb.Exec(
		"CREATE TABLE groups (group_id INTEGER PRIMARY KEY, name TEXT, abbr TEXT, is_current INTEGER)").Error)
	require.NoError(t, gdb.Exec(
		"CREATE TABLE products (product_id INTEGER PRIMARY KEY, group_id INTEGER, collector_number TEXT, name TEXT)").Error)
	require.NoError(t, gdb.Exec(
		"CREATE TABLE skus (sku_id INTEGER PRIMARY KEY, product_id INTEGER, printing_id INTEGER, condition_id INTEGER, language_id INTEGER)").Error)
	require.NoError(t, gdb.Exec("CREATE INDEX idx_groups_abbr ON groups(abbr)").Error)
	require.NoError(t, gdb.Exec("CREATE INDEX idx_products_lookup ON products(group_id, collector_number)").Error)
	require.NoError(t, gdb.Exec("CREATE INDEX idx_skus_lookup ON skus(product_id, printing_id, condition_id, language_id)").Error)

	require.NoError(t, gdb.Exec("INSERT INTO groups VALUES (1, 'Alpha', 'AL', 1), (2, 'Urza''s Saga', 'US', 0)").Error)
	require.NoError(t, gdb.Exec("INSERT INTO products VALUES (10, 1, '001', 'Black Lotus'), (11, 2, '042', NULL)").Error)
	for i := 1; i <= skuCount; i++ {
		require.NoError(t, gdb.Exec(fmt.Sprintf("INSERT INTO skus VALUES (%d, 10, 1, 1, 1)", i)).Error)
	}
	return path
}

func openStoreConnector(t *testing.T, path string) *db.Connector {
	t.Helper()
	conn, err := db.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, storePath string, cfg *config.Config) *DumpWriter {
	t.Helper()
	return NewDumpWriter(openStoreConnector(t, storePath), cfg, zap.NewNop(), metrics.NewMetricsStore())
}

func dumpTestConfig(dumpDir string, skuChunk int) *config.Config {
	return &config.Config{
		DumpDir:          dumpDir,
		SKUChunkSize:     skuChunk,
		ProductChunkSize: 50_000,
	}
}

// applyFiles plays the generated plan against a target database the way the
// sequencer would, one file at a time in order.
func applyFiles(t *testing.T, target *gorm.DB, files []DumpFile) {
	t.Helper()
	for _, file := range files {
		content, err := os.ReadFile(file.Path)
		require.NoError(t, err, "reading %s", file.Name)
		require.NoError(t, target.Exec(string(content)).Error, "applying %s", file.Name)
	}
}

func TestWritePlanFileSequence(t *testing.T) {
	dir := t.TempDir()
	storePath := seedStore(t, dir, 5)
	cfg := dumpTestConfig(dir, 2)

	files, rows, err := newTestWriter(t, storePath, cfg).WritePlan(Tables(cfg))
	require.NoError(t, err)

	// 5 SKUs at chunk size 2: setup + ceil(5/2)=3 chunks + merge.
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	assert.Equal(t, []string{
		"dump_schema.sql",
		"dump_groups.sql",
		"dump_products.sql",
		"dump_skus_setup.sql",
		"dump_skus_0.sql",
		"dump_skus_1.sql",
		"dump_skus_2.sql",
		"dump_skus_merge.sql",
	}, names)

	assert.EqualValues(t, 2, rows["groups"])
	assert.EqualValues(t, 2, rows["products"])
	assert.EqualValues(t, 5, rows["skus"])

	for _, f := range files {
		assert.Positive(t, f.Bytes, "file %s must not be empty", f.Name)
	}
}

func TestWritePlanChunkCount(t *testing.T) {
	testCases := []struct {
		name       string
		skuCount   int
		chunkSize  int
		wantChunks int
	}{
		{"Exact Multiple", 6, 2, 3},
		{"With Remainder", 7, 2, 4},
		{"Single Chunk Boundary", 2, 2, 0}, // fits in one file, no chunking
		{"Just Over Boundary", 3, 2, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			storePath := seedStore(t, dir, tc.skuCount)
			cfg := dumpTestConfig(dir, tc.chunkSize)

			files, _, err := newTestWriter(t, storePath, cfg).WritePlan(Tables(cfg))
			require.NoError(t, err)

			chunks := 0
			for _, f := range files {
				if f.Table == "skus" && f.Kind == FileChunk {
					chunks++
				}
			}
			assert.Equal(t, tc.wantChunks, chunks)
		})
	}
}

func TestApplyPlanEndToEnd(t *testing.T) {
	dir := t.TempDir()
	storePath := seedStore(t, dir, 5)
	cfg := dumpTestConfig(dir, 2)

	files, _, err := newTestWriter(t, storePath, cfg).WritePlan(Tables(cfg))
	require.NoError(t, err)

	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))
	applyFiles(t, target, files)

	var skus, groups int64
	require.NoError(t, target.Raw("SELECT COUNT(*) FROM skus").Scan(&skus).Error)
	require.NoError(t, target.Raw("SELECT COUNT(*) FROM groups").Scan(&groups).Error)
	assert.EqualValues(t, 5, skus, "union of chunk slices must equal the source table")
	assert.EqualValues(t, 2, groups)

	var name string
	require.NoError(t, target.Raw("SELECT name FROM groups WHERE group_id = 2").Scan(&name).Error)
	assert.Equal(t, "Urza's Saga", name, "quote escaping must survive the round trip")

	// No staging leftovers outside the transactional window.
	var staging int64
	require.NoError(t, target.Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE name LIKE 'staging_%'").Scan(&staging).Error)
	assert.Zero(t, staging)
}

func TestApplyPlanTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	storePath := seedStore(t, dir, 5)
	cfg := dumpTestConfig(dir, 2)

	files, _, err := newTestWriter(t, storePath, cfg).WritePlan(Tables(cfg))
	require.NoError(t, err)

	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))
	applyFiles(t, target, files)

	var first []map[string]interface{}
	require.NoError(t, target.Raw("SELECT * FROM skus ORDER BY sku_id").Scan(&first).Error)

	applyFiles(t, target, files)

	var second []map[string]interface{}
	require.NoError(t, target.Raw("SELECT * FROM skus ORDER BY sku_id").Scan(&second).Error)
	assert.Equal(t, first, second)

	var skus int64
	require.NoError(t, target.Raw("SELECT COUNT(*) FROM skus").Scan(&skus).Error)
	assert.EqualValues(t, 5, skus)
}

func TestWritePlanEmptyTable(t *testing.T) {
	dir := t.TempDir()
	storePath := seedStore(t, dir, 0)
	cfg := dumpTestConfig(dir, 2)

	files, rows, err := newTestWriter(t, storePath, cfg).WritePlan(Tables(cfg))
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows["skus"])

	// Applying a plan with an empty table must not error and must not
	// delete anything from a previously populated target.
	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))
	applyFiles(t, target, files)

	// Re-run only the skus merge against a populated target; the schema
	// file would recreate the table and mask the delete guard.
	require.NoError(t, target.Exec("INSERT INTO skus VALUES (99, 10, 1, 1, 1)").Error)
	for _, f := range files {
		if f.Table == "skus" {
			applyFiles(t, target, []DumpFile{f})
		}
	}

	var skus int64
	require.NoError(t, target.Raw("SELECT COUNT(*) FROM skus").Scan(&skus).Error)
	assert.EqualValues(t, 1, skus, "empty staging must not cascade into deletes")
}

func TestWritePlanMissingTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tcg_data.db")
	gdb := openSQLite(t, path)
	require.NoError(t, gdb.Exec("CREATE TABLE groups (group_id INTEGER PRIMARY KEY, name TEXT, abbr TEXT, is_current INTEGER)").Error)

	cfg := dumpTestConfig(dir, 2)
	_, _, err := newTestWriter(t, path, cfg).WritePlan(Tables(cfg))
	require.Error(t, err)

	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}
