package nl2sql

import (
	"context"
	"strings"
)

type Request struct {
	Question   string `json:"question"`
	SchemaText string `json:"schema_text"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// StreamTranslator additionally surfaces generation tokens as they arrive.
// onToken receives each raw token and the text accumulated so far; the
// returned Result carries the cleaned final SQL.
type StreamTranslator interface {
	Translator
	TranslateStream(ctx context.Context, req Request, onToken func(token, accumulated string)) (Result, error)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a PostgreSQL expert. Convert the question into a single SELECT query.\n\n")
	if schemaText := strings.TrimSpace(req.SchemaText); schemaText != "" {
		b.WriteString("Database schema:\n")
		b.WriteString(schemaText)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n\nRules:\n- SELECT statements only.\n- Use only tables and columns from the schema.\n- Output ONLY SQL, no markdown, no explanation.")
	return b.String()
}

// cleanSQL strips markdown fencing, surrounding whitespace, and a trailing
// semicolon from model output.
func cleanSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
}
