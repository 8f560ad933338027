package sync

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/db"
)

// SchemaEmitter rewrites the local store's DDL into an idempotent script for
// the remote target: every CREATE is preceded by the matching DROP ... IF
// EXISTS, and "IF NOT EXISTS" qualifiers are stripped (D1 rejects them in
// this position). Dropping then recreating leaves the object briefly absent,
// which is acceptable because the replacement lands in the same script.
type SchemaEmitter struct {
	store  *db.Connector
	logger *zap.Logger
}

func NewSchemaEmitter(store *db.Connector, logger *zap.Logger) *SchemaEmitter {
	return &SchemaEmitter{store: store, logger: logger.Named("schema-emitter")}
}

var (
	reCreateTable = regexp.MustCompile(`(?i)^CREATE TABLE\s+"?(\w+)"?\s*\(`)
	reCreateIndex = regexp.MustCompile(`(?i)^CREATE (?:UNIQUE )?INDEX\s+"?(\w+)"?\s`)
)

type schemaObject struct {
	Name string
	SQL  string
}

// BuildScript reads every table and index definition from sqlite_master and
// returns the rewritten schema script. Tables come before indexes so the
// re-created indexes always find their table.
func (e *SchemaEmitter) BuildScript() (string, error) {
	var objects []schemaObject
	err := e.store.DB.Raw(
		`SELECT name AS Name, sql AS SQL FROM sqlite_master
		 WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		 ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END, name`,
	).Scan(&objects).Error
	if err != nil {
		return "", &SchemaError{Object: "sqlite_master", Err: err}
	}
	if len(objects) == 0 {
		return "", &SchemaError{Object: e.store.Path, Err: fmt.Errorf("local store contains no schema objects")}
	}

	var b strings.Builder
	for _, obj := range objects {
		stmt := rewriteSchemaStatement(obj.SQL)
		b.WriteString(stmt)
		b.WriteString("\n")
	}

	e.logger.Info("Schema script built", zap.Int("objects", len(objects)))
	return b.String(), nil
}

// rewriteSchemaStatement strips IF NOT EXISTS and prefixes the statement
// with the matching guarded DROP. Statements that are neither CREATE TABLE
// nor CREATE INDEX pass through untouched.
func rewriteSchemaStatement(stmt string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(stmt), " IF NOT EXISTS", "")
	if !strings.HasSuffix(clean, ";") {
		clean += ";"
	}

	if m := reCreateTable.FindStringSubmatch(clean); m != nil {
		return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n%s", m[1], clean)
	}
	if m := reCreateIndex.FindStringSubmatch(clean); m != nil {
		return fmt.Sprintf("DROP INDEX IF EXISTS %s;\n%s", m[1], clean)
	}
	return clean
}
