package pipeline

import "context"

type Stage string

const (
	StageCacheCheck   Stage = "cache_check"
	StageSchemaSelect Stage = "schema_select"
	StageGenerate     Stage = "generate"
	StageValidate     Stage = "validate"
	StageExecute      Stage = "execute"
	StageCacheStore   Stage = "cache_store"
)

// Event is the sum type delivered to a Sink while a question resolves.
// Consumers type-switch on the concrete variants.
type Event interface {
	event()
}

type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

type SQLTokenEvent struct {
	Token       string `json:"token"`
	Accumulated string `json:"accumulated"`
}

type SQLCompleteEvent struct {
	SQL string `json:"sql"`
}

type CompleteEvent struct {
	Response Response `json:"response"`
}

func (ProgressEvent) event()    {}
func (SQLTokenEvent) event()    {}
func (SQLCompleteEvent) event() {}
func (CompleteEvent) event()    {}

// Sink receives pipeline events in order. An Emit error aborts the run;
// sinks signal a disconnected consumer that way.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards all events. The aggregated (non-streaming) path uses it.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

type Results struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

type Response struct {
	RequestID            string  `json:"request_id"`
	SQL                  string  `json:"sql"`
	Results              Results `json:"results"`
	Cached               bool    `json:"cached"`
	CacheType            string  `json:"cache_type,omitempty"`
	Similarity           float64 `json:"similarity,omitempty"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}
