package sync

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRewriteSchemaStatement(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"Create Table",
			"CREATE TABLE groups (group_id INTEGER, name TEXT)",
			"DROP TABLE IF EXISTS groups;\nCREATE TABLE groups (group_id INTEGER, name TEXT);",
		},
		{
			"Create Table If Not Exists",
			"CREATE TABLE IF NOT EXISTS groups (group_id INTEGER)",
			"DROP TABLE IF EXISTS groups;\nCREATE TABLE groups (group_id INTEGER);",
		},
		{
			"Quoted Table Name",
			`CREATE TABLE "groups" (group_id INTEGER)`,
			"DROP TABLE IF EXISTS groups;\nCREATE TABLE \"groups\" (group_id INTEGER);",
		},
		{
			"No Space Before Paren",
			"CREATE TABLE groups(group_id INTEGER)",
			"DROP TABLE IF EXISTS groups;\nCREATE TABLE groups(group_id INTEGER);",
		},
		{
			"Create Index",
			"CREATE INDEX idx_groups_abbr ON groups(abbr)",
			"DROP INDEX IF EXISTS idx_groups_abbr;\nCREATE INDEX idx_groups_abbr ON groups(abbr);",
		},
		{
			"Create Unique Index",
			"CREATE UNIQUE INDEX idx_skus_key ON skus(sku_id)",
			"DROP INDEX IF EXISTS idx_skus_key;\nCREATE UNIQUE INDEX idx_skus_key ON skus(sku_id);",
		},
		{
			"Index With If Not Exists",
			"CREATE INDEX IF NOT EXISTS idx_groups_abbr ON groups(abbr)",
			"DROP INDEX IF EXISTS idx_groups_abbr;\nCREATE INDEX idx_groups_abbr ON groups(abbr);",
		},
		{
			"Trailing Semicolon Preserved",
			"CREATE TABLE groups (group_id INTEGER);",
			"DROP TABLE IF EXISTS groups;\nCREATE TABLE groups (group_id INTEGER);",
		},
		{
			"Unrecognized Statement Passes Through",
			"CREATE VIEW v AS SELECT 1",
			"CREATE VIEW v AS SELECT 1;",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, rewriteSchemaStatement(tc.input))
		})
	}
}

func TestBuildScript(t *testing.T) {
	dir := t.TempDir()
	storePath := seedStore(t, dir, 1)

	emitter := NewSchemaEmitter(openStoreConnector(t, storePath), zap.NewNop())
	script, err := emitter.BuildScript()
	require.NoError(t, err)

	assert.NotContains(t, script, "IF NOT EXISTS CREATE")
	assert.NotContains(t, script, " IF NOT EXISTS (")

	// Every CREATE must be preceded by its guarded DROP.
	assert.Contains(t, script, "DROP TABLE IF EXISTS groups;\nCREATE TABLE groups")
	assert.Contains(t, script, "DROP INDEX IF EXISTS idx_skus_lookup;\nCREATE INDEX idx_skus_lookup")

	// Tables come before indexes so recreated indexes find their table.
	assert.Less(t,
		strings.Index(script, "CREATE TABLE skus"),
		strings.Index(script, "CREATE INDEX idx_groups_abbr"))
}

func TestBuildScriptEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.db")
	gdb := openSQLite(t, path)
	// Force file creation without leaving any schema object behind.
	require.NoError(t, gdb.Exec("CREATE TABLE tmp (x)").Error)
	require.NoError(t, gdb.Exec("DROP TABLE tmp").Error)

	emitter := NewSchemaEmitter(openStoreConnector(t, path), zap.NewNop())
	_, err := emitter.BuildScript()

	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}
