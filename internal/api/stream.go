package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/askdb/askdb/internal/pipeline"
)

// handleAskStream resolves a question over Server-Sent Events. Stage progress,
// generation tokens, the final SQL, and the complete response each arrive as
// their own event; terminal failures arrive as an error event since headers
// are already flushed.
func handleAskStream(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	if _, err := deps.Runner.Run(r.Context(), request.Question, sink); err != nil {
		if r.Context().Err() != nil {
			return
		}
		_, code, retryable := classifyRunError(err)
		_ = sink.writeEvent("error", map[string]any{
			"error_code": code,
			"message":    err.Error(),
			"retryable":  retryable,
		})
	}
}

type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Emit(_ context.Context, event pipeline.Event) error {
	switch e := event.(type) {
	case pipeline.ProgressEvent:
		return s.writeEvent("progress", e)
	case pipeline.SQLTokenEvent:
		return s.writeEvent("sql_token", e)
	case pipeline.SQLCompleteEvent:
		return s.writeEvent("sql_complete", e)
	case pipeline.CompleteEvent:
		return s.writeEvent("complete", e.Response)
	default:
		return fmt.Errorf("unknown event type %T", event)
	}
}

func (s *sseSink) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}
