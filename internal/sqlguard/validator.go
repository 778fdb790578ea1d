// Package sqlguard is the deterministic gate between generated SQL and the
// database: a fail-closed validator for destructive or injection-shaped
// statements and an idempotent row limiter. It protects against careless
// model output, not against an adversary holding database credentials.
package sqlguard

import (
	"regexp"
	"strings"
)

var (
	dangerousKeywords = regexp.MustCompile(`(?i)\b(?:drop|delete|truncate|alter|create|insert|update|grant|revoke)\b`)

	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i);\s*drop`),
		regexp.MustCompile(`(?i);\s*delete`),
		regexp.MustCompile(`--`),
		regexp.MustCompile(`/\*`),
		regexp.MustCompile(`\*/`),
		regexp.MustCompile(`(?i)\bxp_`),
		regexp.MustCompile(`(?i)\bsp_`),
		regexp.MustCompile(`(?i)\bexec\s*\(`),
	}

	singleLineComment = regexp.MustCompile(`(?m)--.*$`)
	blockComment      = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Validate reports whether the statement is safe to execute. It runs against
// the raw text, before sanitization, so comment markers themselves are
// grounds for rejection rather than something to silently strip.
func Validate(sqlText string) (bool, string) {
	upper := strings.ToUpper(sqlText)

	if match := dangerousKeywords.FindString(upper); match != "" {
		return false, "dangerous keyword detected: " + strings.ToUpper(match)
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(sqlText) {
			return false, "potential SQL injection pattern detected"
		}
	}
	if !strings.HasPrefix(strings.TrimSpace(upper), "SELECT") {
		return false, "only SELECT queries are allowed"
	}
	return true, "ok"
}

// Sanitize strips comments and collapses whitespace.
func Sanitize(sqlText string) string {
	sqlText = singleLineComment.ReplaceAllString(sqlText, "")
	sqlText = blockComment.ReplaceAllString(sqlText, "")
	return strings.Join(strings.Fields(sqlText), " ")
}
