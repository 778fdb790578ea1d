package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

var limitClause = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// ApplyLimit caps an unbounded statement at maxRows. Statements that already
// carry a LIMIT clause are returned unchanged, even when that limit exceeds
// maxRows: an explicit limit is intent, only the unbounded case is protected.
func ApplyLimit(sqlText string, maxRows int) string {
	if maxRows <= 0 {
		return sqlText
	}
	if limitClause.MatchString(sqlText) {
		return sqlText
	}
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows)
}
