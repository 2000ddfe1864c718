// Package loader drives compiled chunks of input documents into the datastore.
package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jsonload/jsonload/internal/concurrency"
	"github.com/jsonload/jsonload/internal/progress"
	"github.com/jsonload/jsonload/pkg/logger"
	"github.com/jsonload/jsonload/pkg/telemetry"
	"github.com/jsonload/jsonload/pkg/upsert"
)

const (
	DefaultChunkSize   = 100
	DefaultConcurrency = 4
	DefaultMaxLineSize = 64 * 1024 * 1024
)

// Pipeline reads newline delimited documents, groups them into chunks and commits up
// to a fixed number of chunks at once.
type Pipeline struct {
	compiler    *upsert.Compiler
	executor    *Executor
	chunkSize   int
	concurrency int
	maxLineSize int
	reporter    progress.Reporter
	logger      logger.Logger
}

type PipelineOption func(*Pipeline)

func WithChunkSize(n int) PipelineOption {
	return func(p *Pipeline) {
		p.chunkSize = n
	}
}

func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		p.concurrency = n
	}
}

// WithMaxLineSize sets the longest accepted input line, in bytes.
func WithMaxLineSize(n int) PipelineOption {
	return func(p *Pipeline) {
		p.maxLineSize = n
	}
}

func WithReporter(r progress.Reporter) PipelineOption {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

func WithLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func NewPipeline(compiler *upsert.Compiler, executor *Executor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		compiler:    compiler,
		executor:    executor,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
		maxLineSize: DefaultMaxLineSize,
		reporter:    progress.Noop{},
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads every document of r. It stops dispatching chunks after the first failure,
// waits for the chunks already running and returns that failure. The progress
// reporter is finished before Run returns.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Totals, error) {
	if p.chunkSize <= 0 || p.concurrency <= 0 {
		return Totals{}, fmt.Errorf("chunk size and concurrency must be positive")
	}

	stats := NewStats(p.reporter)
	defer p.reporter.Finish()

	pool := concurrency.NewPool(p.concurrency)
	var failed atomic.Bool

	dispatch := func(lines []upsert.Line) {
		pool.Go(func() error {
			// Chunks queued behind a failure are dropped.
			if failed.Load() {
				return nil
			}
			if err := p.processChunk(ctx, stats, lines); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, p.maxLineSize)), p.maxLineSize)

	index := 0
	lines := make([]upsert.Line, 0, p.chunkSize)
	for !failed.Load() && ctx.Err() == nil && scanner.Scan() {
		lines = append(lines, upsert.Line{Index: index, Text: scanner.Text()})
		index++

		if len(lines) == p.chunkSize {
			dispatch(lines)
			lines = make([]upsert.Line, 0, p.chunkSize)
		}
	}

	readErr := scanner.Err()
	if readErr == nil && len(lines) > 0 && !failed.Load() && ctx.Err() == nil {
		dispatch(lines)
	}

	if err := pool.Wait(); err != nil {
		return stats.Totals(), err
	}

	if readErr != nil {
		if errors.Is(readErr, bufio.ErrTooLong) {
			return stats.Totals(), fmt.Errorf("reading document %d: line longer than %d bytes: %w", index, p.maxLineSize, readErr)
		}
		return stats.Totals(), fmt.Errorf("reading document %d: %w", index, readErr)
	}

	if err := ctx.Err(); err != nil {
		return stats.Totals(), err
	}

	totals := stats.Totals()
	p.logger.Info("load complete",
		zap.Uint64("txns", totals.Txns),
		zap.Uint64("docs", totals.Docs),
		zap.Uint64("nquads", totals.NQuads),
		zap.Uint64("aborts", totals.Aborts),
	)
	return totals, nil
}

func (p *Pipeline) processChunk(ctx context.Context, stats *Stats, lines []upsert.Line) error {
	ctx, span := tracer.Start(ctx, "loader.processChunk")
	defer span.End()
	span.SetAttributes(
		attribute.Int("first_document", lines[0].Index),
		attribute.Int("docs", len(lines)),
	)

	chunk, err := p.compiler.CompileChunk(lines)
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}

	p.logger.DebugWithContext(ctx, "compiled chunk",
		zap.Int("first_document", chunk.First),
		zap.Int("docs", chunk.Docs),
		zap.Int("mutations", len(chunk.Mutations)),
		zap.String("query", chunk.Query),
	)

	aborts, err := p.executor.Commit(ctx, chunk)
	if err != nil {
		stats.RecordAborts(aborts)
		telemetry.TraceError(span, err)
		return err
	}

	stats.Record(chunk.Docs, chunk.NQuads, aborts, len(chunk.Mutations) > 0)
	return nil
}
