package utils

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// QuoteIdentifier quotes an identifier for the SQLite dialect shared by the
// local snapshot store and the remote D1 target. Double quotes are escaped
// by doubling.
func QuoteIdentifier(name string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
}

// UnquoteIdentifier removes surrounding quotes from an identifier and
// unescapes the quote character within the name. SQLite accepts double
// quotes, backticks, and square brackets; unquoted input is returned as-is.
func UnquoteIdentifier(quotedName string) string {
	name := strings.TrimSpace(quotedName)
	if len(name) < 2 {
		return name
	}

	first, last := name[0], name[len(name)-1]
	switch {
	case first == '"' && last == '"':
		return strings.ReplaceAll(name[1:len(name)-1], "\"\"", "\"")
	case first == '`' && last == '`':
		return strings.ReplaceAll(name[1:len(name)-1], "``", "`")
	case first == '[' && last == ']':
		return name[1 : len(name)-1]
	default:
		return name
	}
}

// SQLLiteral renders a scanned column value as a SQLite literal, matching
// the encoding sqlite3's ".mode insert" output uses: NULL for nil, numerics
// verbatim, strings single-quoted with '' escaping, blobs as X'..' hex.
func SQLLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		// SQLite has no NaN or Infinity literal.
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return fmt.Sprintf("X'%s'", hex.EncodeToString(val))
	case time.Time:
		return fmt.Sprintf("'%s'", val.UTC().Format("2006-01-02 15:04:05"))
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(val, "'", "''"))
	default:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(fmt.Sprint(val), "'", "''"))
	}
}
