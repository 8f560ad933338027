package sync

import (
	"fmt"
	"strings"
)

const warningPrefix = "d1sync"

func stagingTableName(table string) string {
	return "staging_" + table
}

// BuildMergeSQL generates the reconciliation script between a populated
// staging table and the live table: dedupe staged rows by key, update only
// rows whose values actually differ, insert new rows, and delete removed
// rows behind the empty-staging guard. The diff predicates use IS NOT so a
// column transitioning to or from NULL still counts as changed.
func BuildMergeSQL(tableName, keyColumn string, columns []string) string {
	stagingTable := stagingTableName(tableName)
	stagingDedup := stagingTable + "_dedup"
	nonKeyColumns := make([]string, 0, len(columns))
	for _, column := range columns {
		if column != keyColumn {
			nonKeyColumns = append(nonKeyColumns, column)
		}
	}

	// First-inserted-row-wins: MIN(rowid) follows the physical insertion
	// order of the staging phase, so overlapping chunk boundaries resolve
	// deterministically.
	dedupeSQL := fmt.Sprintf(`-- Dedupe staging rows by key (keep first rowid)
DROP TABLE IF EXISTS %[1]s;
CREATE TABLE %[1]s AS
SELECT s.*
FROM %[2]s AS s
WHERE s.rowid = (
  SELECT MIN(rowid)
  FROM %[2]s AS s2
  WHERE s2.%[3]s = s.%[3]s
);
DROP TABLE %[2]s;
ALTER TABLE %[1]s RENAME TO %[2]s;
`, stagingDedup, stagingTable, keyColumn)

	updateSQL := ""
	if len(nonKeyColumns) > 0 {
		assignments := make([]string, 0, len(nonKeyColumns))
		predicates := make([]string, 0, len(nonKeyColumns))
		for _, column := range nonKeyColumns {
			assignments = append(assignments, fmt.Sprintf(
				"%s = (SELECT %s FROM %s WHERE %s.%s = %s.%s)",
				column, column, stagingTable, stagingTable, keyColumn, tableName, keyColumn))
			predicates = append(predicates, fmt.Sprintf(
				"%s.%s IS NOT (SELECT %s FROM %s WHERE %s.%s = %s.%s)",
				tableName, column, column, stagingTable, stagingTable, keyColumn, tableName, keyColumn))
		}
		updateSQL = fmt.Sprintf(`-- Merge changed rows
UPDATE %s
SET %s
WHERE EXISTS (
  SELECT 1
  FROM %s
  WHERE %s.%s = %s.%s
    AND (
      %s
    )
);
`, tableName,
			strings.Join(assignments, ",\n    "),
			stagingTable,
			stagingTable, keyColumn, tableName, keyColumn,
			strings.Join(predicates, " OR\n      "))
	}

	// An empty snapshot is suspicious but must never cascade into wiping
	// the target table: warn, and gate the delete on non-empty staging.
	warningSQL := fmt.Sprintf(
		"-- Warn if staging is empty to avoid destructive deletes\n"+
			"SELECT '%s: WARNING empty staging for %s, skipping deletes'\n"+
			"WHERE (SELECT COUNT(*) FROM %s) = 0;\n",
		warningPrefix, tableName, stagingTable)

	deleteSQL := fmt.Sprintf(`-- Delete removed rows (guarded on non-empty staging)
DELETE FROM %[1]s
WHERE (SELECT COUNT(*) FROM %[2]s) > 0
  AND %[3]s NOT IN (SELECT %[3]s FROM %[2]s);
`, tableName, stagingTable, keyColumn)

	return fmt.Sprintf(`%s%s-- Insert new rows
INSERT INTO %[3]s
SELECT * FROM %[4]s
WHERE %[5]s NOT IN (SELECT %[5]s FROM %[3]s);

%[6]s%[7]s
`, dedupeSQL, updateSQL, tableName, stagingTable, keyColumn, warningSQL, deleteSQL)
}
