package nl2sql

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OllamaTranslator generates SQL through a local Ollama server. Streaming
// responses arrive as one JSON object per line with a terminal done marker.
type OllamaTranslator struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func NewOllamaTranslator(cfg OllamaConfig) (*OllamaTranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "sqlcoder:15b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaTranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (t *OllamaTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	resp, err := t.generate(ctx, req, false)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read generate response body: %w", err)
	}
	var chunk ollamaChunk
	if err := json.Unmarshal(rawRespBody, &chunk); err != nil {
		return Result{}, fmt.Errorf("decode generate response: %w", err)
	}
	if chunk.Error != "" {
		return Result{}, fmt.Errorf("ollama generate failed: %s", chunk.Error)
	}
	return t.finish(chunk.Response)
}

func (t *OllamaTranslator) TranslateStream(ctx context.Context, req Request, onToken func(token, accumulated string)) (Result, error) {
	resp, err := t.generate(ctx, req, true)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return Result{}, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return Result{}, fmt.Errorf("ollama generate failed: %s", chunk.Error)
		}
		if chunk.Response != "" {
			accumulated.WriteString(chunk.Response)
			if onToken != nil {
				onToken(chunk.Response, accumulated.String())
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read generate stream: %w", err)
	}
	return t.finish(accumulated.String())
}

func (t *OllamaTranslator) generate(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload := map[string]any{
		"model":  t.model,
		"prompt": buildPrompt(req),
		"stream": stream,
		"options": map[string]any{
			"temperature": t.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request generation: %w", err)
	}
	if resp.StatusCode >= 400 {
		rawRespBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("generation failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}
	return resp, nil
}

func (t *OllamaTranslator) finish(raw string) (Result, error) {
	sql := cleanSQL(raw)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sql,
		Provider: "ollama",
		Model:    t.model,
	}, nil
}

// HealthCheck verifies the Ollama server is reachable.
func (t *OllamaTranslator) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build tags request: %w", err)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request tags: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama unhealthy status=%d", resp.StatusCode)
	}
	return nil
}
