package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/pipeline"
)

func TestAskStreamEmitsEvents(t *testing.T) {
	runner := &fakeRunner{
		events: []pipeline.Event{
			pipeline.ProgressEvent{Stage: pipeline.StageCacheCheck, Message: "checking semantic cache"},
			pipeline.SQLTokenEvent{Token: "SELECT ", Accumulated: "SELECT "},
			pipeline.SQLCompleteEvent{SQL: "SELECT 1"},
			pipeline.CompleteEvent{Response: pipeline.Response{SQL: "SELECT 1", Results: pipeline.Results{RowCount: 1}}},
		},
	}
	handler := NewHandler(testConfig(), Dependencies{Runner: runner})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask/stream", strings.NewReader(`{"question":"list students"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"event: progress\n",
		"event: sql_token\n",
		"event: sql_complete\n",
		"event: complete\n",
		`"stage":"cache_check"`,
		`"sql":"SELECT 1"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestAskStreamEmitsErrorEvent(t *testing.T) {
	runner := &fakeRunner{
		events: []pipeline.Event{
			pipeline.ProgressEvent{Stage: pipeline.StageGenerate, Message: "generating SQL"},
		},
		err: &pipeline.UnsafeQueryError{Reason: "dangerous keyword detected: drop"},
	}
	handler := NewHandler(testConfig(), Dependencies{Runner: runner})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask/stream", strings.NewReader(`{"question":"drop everything"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, "event: error\n") {
		t.Fatalf("body missing error event:\n%s", body)
	}
	if !strings.Contains(body, "UNSAFE_QUERY") {
		t.Fatalf("body missing error code:\n%s", body)
	}
}

func TestAskStreamInvalidJSON(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Runner: &fakeRunner{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/ask/stream", strings.NewReader(`not json`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
