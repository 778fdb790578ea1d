// Package pipeline orchestrates question resolution: cache check, schema
// narrowing, SQL generation, safety validation, execution, and cache store.
// Progress flows to a Sink so the aggregated and streaming transports share
// one code path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/cache"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/narrow"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlguard"
)

type questionCache interface {
	Lookup(ctx context.Context, question string) (cache.Hit, bool)
	Store(ctx context.Context, question, sqlText string, results executor.Result, cost time.Duration) error
}

type tableNarrower interface {
	RelevantTables(ctx context.Context, question string) ([]schema.Table, error)
}

type Options struct {
	Cache           questionCache
	Narrower        tableNarrower
	Translator      nl2sql.Translator
	Executor        executor.Executor
	Logger          *slog.Logger
	MaxRows         int
	GenerateTimeout time.Duration
	QueryTimeout    time.Duration
}

type Pipeline struct {
	cache           questionCache
	narrower        tableNarrower
	translator      nl2sql.Translator
	executor        executor.Executor
	logger          *slog.Logger
	maxRows         int
	generateTimeout time.Duration
	queryTimeout    time.Duration
}

func New(opts Options) (*Pipeline, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Narrower == nil {
		return nil, fmt.Errorf("narrower is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		cache:           opts.Cache,
		narrower:        opts.Narrower,
		translator:      opts.Translator,
		executor:        opts.Executor,
		logger:          logger,
		maxRows:         opts.MaxRows,
		generateTimeout: opts.GenerateTimeout,
		queryTimeout:    opts.QueryTimeout,
	}, nil
}

// Run resolves a question to SQL and results, emitting events to sink along
// the way. A cache hit short-circuits generation and execution. Cache store
// failures are logged and swallowed: a served answer is never failed
// retroactively.
func (p *Pipeline) Run(ctx context.Context, question string, sink Sink) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		observability.ObservePipelineOutcome("empty_question")
		return Response{}, ErrEmptyQuestion
	}
	if sink == nil {
		sink = NopSink{}
	}
	requestID := uuid.NewString()
	logger := p.logger.With(slog.String("request_id", requestID))

	if err := emitProgress(ctx, sink, StageCacheCheck, "checking semantic cache"); err != nil {
		return Response{}, err
	}
	stageStart := time.Now()
	hit, ok := p.cache.Lookup(ctx, question)
	observability.ObserveStageDuration(string(StageCacheCheck), time.Since(stageStart))
	if ok {
		resp := Response{
			RequestID: requestID,
			SQL:       hit.SQL,
			Results: Results{
				Columns:  hit.Results.Columns,
				Rows:     hit.Results.Rows,
				RowCount: hit.Results.RowCount,
			},
			Cached:               true,
			CacheType:            hit.Match,
			Similarity:           hit.Similarity,
			ExecutionTimeSeconds: hit.Results.Duration.Seconds(),
		}
		if err := sink.Emit(ctx, SQLCompleteEvent{SQL: hit.SQL}); err != nil {
			return Response{}, err
		}
		if err := sink.Emit(ctx, CompleteEvent{Response: resp}); err != nil {
			return Response{}, err
		}
		logger.InfoContext(ctx, "cache hit",
			slog.String("match", hit.Match),
			slog.Float64("similarity", hit.Similarity))
		observability.ObservePipelineOutcome("cache_hit")
		return resp, nil
	}

	resolveStart := time.Now()

	if err := emitProgress(ctx, sink, StageSchemaSelect, "selecting relevant tables"); err != nil {
		return Response{}, err
	}
	stageStart = time.Now()
	tables, err := p.narrower.RelevantTables(ctx, question)
	observability.ObserveStageDuration(string(StageSchemaSelect), time.Since(stageStart))
	if err != nil {
		observability.ObservePipelineOutcome("unavailable")
		return Response{}, &UnavailableError{Stage: StageSchemaSelect, Err: err}
	}
	schemaText := narrow.SchemaText(tables)

	if err := emitProgress(ctx, sink, StageGenerate, "generating SQL"); err != nil {
		return Response{}, err
	}
	stageStart = time.Now()
	generated, err := p.generate(ctx, question, schemaText, sink)
	observability.ObserveStageDuration(string(StageGenerate), time.Since(stageStart))
	if err != nil {
		if emitErr := ctx.Err(); emitErr != nil {
			return Response{}, emitErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			observability.ObservePipelineOutcome("timeout")
			return Response{}, &TimeoutError{Stage: StageGenerate}
		}
		observability.ObservePipelineOutcome("unavailable")
		return Response{}, &UnavailableError{Stage: StageGenerate, Err: err}
	}

	if err := sink.Emit(ctx, SQLCompleteEvent{SQL: generated.SQL}); err != nil {
		return Response{}, err
	}

	if err := emitProgress(ctx, sink, StageValidate, "validating SQL"); err != nil {
		return Response{}, err
	}
	if safe, reason := sqlguard.Validate(generated.SQL); !safe {
		logger.WarnContext(ctx, "generated SQL rejected",
			slog.String("reason", reason),
			slog.String("sql", generated.SQL))
		observability.ObservePipelineOutcome("unsafe")
		return Response{}, &UnsafeQueryError{Reason: reason}
	}
	finalSQL := sqlguard.ApplyLimit(sqlguard.Sanitize(generated.SQL), p.maxRows)

	if err := emitProgress(ctx, sink, StageExecute, "executing query"); err != nil {
		return Response{}, err
	}
	stageStart = time.Now()
	result, err := p.execute(ctx, finalSQL)
	observability.ObserveStageDuration(string(StageExecute), time.Since(stageStart))
	if err != nil {
		if emitErr := ctx.Err(); emitErr != nil {
			return Response{}, emitErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			observability.ObservePipelineOutcome("timeout")
			return Response{}, &TimeoutError{Stage: StageExecute}
		}
		observability.ObservePipelineOutcome("execution_error")
		return Response{}, &ExecutionError{Err: err}
	}
	resolveCost := time.Since(resolveStart)

	if err := emitProgress(ctx, sink, StageCacheStore, "storing in cache"); err != nil {
		return Response{}, err
	}
	stageStart = time.Now()
	if err := p.cache.Store(ctx, question, finalSQL, result, resolveCost); err != nil {
		logger.WarnContext(ctx, "cache store failed", slog.Any("error", err))
	}
	observability.ObserveStageDuration(string(StageCacheStore), time.Since(stageStart))

	resp := Response{
		RequestID: requestID,
		SQL:       finalSQL,
		Results: Results{
			Columns:  result.Columns,
			Rows:     result.Rows,
			RowCount: result.RowCount,
		},
		ExecutionTimeSeconds: result.Duration.Seconds(),
	}
	if err := sink.Emit(ctx, CompleteEvent{Response: resp}); err != nil {
		return Response{}, err
	}
	logger.InfoContext(ctx, "question resolved",
		slog.String("provider", generated.Provider),
		slog.Int("row_count", result.RowCount),
		slog.Duration("cost", resolveCost))
	observability.ObservePipelineOutcome("ok")
	return resp, nil
}

func (p *Pipeline) generate(ctx context.Context, question, schemaText string, sink Sink) (nl2sql.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if p.generateTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, p.generateTimeout)
		defer cancelTimeout()
	}
	req := nl2sql.Request{Question: question, SchemaText: schemaText}

	if streamer, ok := p.translator.(nl2sql.StreamTranslator); ok {
		var emitErr error
		result, err := streamer.TranslateStream(ctx, req, func(token, accumulated string) {
			if emitErr != nil {
				return
			}
			if emitErr = sink.Emit(ctx, SQLTokenEvent{Token: token, Accumulated: accumulated}); emitErr != nil {
				cancel()
			}
		})
		if emitErr != nil {
			return nl2sql.Result{}, emitErr
		}
		return result, err
	}
	return p.translator.Translate(ctx, req)
}

func (p *Pipeline) execute(ctx context.Context, sqlText string) (executor.Result, error) {
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}
	return p.executor.Execute(ctx, sqlText)
}

func emitProgress(ctx context.Context, sink Sink, stage Stage, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return sink.Emit(ctx, ProgressEvent{Stage: stage, Message: message})
}
