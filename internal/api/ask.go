package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/askdb/askdb/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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

	resp, err := deps.Runner.Run(r.Context(), request.Question, nil)
	if err != nil {
		status, code, retryable := classifyRunError(err)
		writeError(r.Context(), w, status, code, err.Error(), retryable, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func classifyRunError(err error) (status int, code string, retryable bool) {
	var unsafeErr *pipeline.UnsafeQueryError
	var timeoutErr *pipeline.TimeoutError
	var unavailableErr *pipeline.UnavailableError
	var executionErr *pipeline.ExecutionError
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, "QUESTION_REQUIRED", false
	case errors.As(err, &unsafeErr):
		return http.StatusBadRequest, "UNSAFE_QUERY", false
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, "STAGE_TIMEOUT", true
	case errors.As(err, &unavailableErr):
		return http.StatusBadGateway, "DEPENDENCY_UNAVAILABLE", true
	case errors.As(err, &executionErr):
		return http.StatusBadRequest, "QUERY_EXECUTION_FAILED", false
	case errors.Is(err, context.Canceled):
		return 499, "CLIENT_CLOSED_REQUEST", false
	default:
		return http.StatusInternalServerError, "INTERNAL", true
	}
}
