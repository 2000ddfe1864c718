package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jsonload/jsonload/pkg/logger"
	"github.com/jsonload/jsonload/pkg/storage"
	"github.com/jsonload/jsonload/pkg/telemetry"
	"github.com/jsonload/jsonload/pkg/upsert"
)

var tracer = otel.Tracer("jsonload/internal/loader")

const (
	DefaultMinRetryWait = 500 * time.Millisecond
	DefaultMaxRetryWait = 1500 * time.Millisecond
)

// RetryPolicy controls how transient failures are retried. Waits are drawn uniformly
// from [MinWait, MaxWait]. MaxAttempts caps the number of retries; zero retries
// forever.
type RetryPolicy struct {
	MinWait     time.Duration
	MaxWait     time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy retries forever with waits between 500ms and 1500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MinWait: DefaultMinRetryWait,
		MaxWait: DefaultMaxRetryWait,
	}
}

// newBackOff builds a constant-mean backoff whose randomization window spans
// [MinWait, MaxWait].
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	mean := (p.MinWait + p.MaxWait) / 2

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = mean
	b.MaxInterval = p.MaxWait
	b.Multiplier = 1
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	if mean > 0 {
		b.RandomizationFactor = float64(p.MaxWait-p.MinWait) / float64(p.MaxWait+p.MinWait)
	}
	b.Reset()

	var policy backoff.BackOff = b
	if p.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(p.MaxAttempts))
	}
	return backoff.WithContext(policy, ctx)
}

// Executor commits compiled chunks, retrying the whole request on transient errors.
type Executor struct {
	upserter storage.Upserter
	logger   logger.Logger
	limiter  *rate.Limiter
	retry    RetryPolicy
}

type ExecutorOption func(*Executor)

func WithExecutorLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithRateLimit caps the number of commit attempts per second. Zero means unlimited.
func WithRateLimit(perSecond float64) ExecutorOption {
	return func(e *Executor) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		e.retry = p
	}
}

func NewExecutor(upserter storage.Upserter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		upserter: upserter,
		logger:   logger.NewNoopLogger(),
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit submits the chunk's query and mutations as one transaction and returns the
// number of aborted attempts. Chunks without mutations are not submitted.
func (e *Executor) Commit(ctx context.Context, chunk *upsert.Chunk) (uint64, error) {
	if len(chunk.Mutations) == 0 {
		return 0, nil
	}

	var aborts uint64
	attempt := 0

	op := func() error {
		attempt++

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		ctx, span := tracer.Start(ctx, "loader.Commit")
		defer span.End()
		span.SetAttributes(
			attribute.Int("first_document", chunk.First),
			attribute.Int("docs", chunk.Docs),
			attribute.Int("attempt", attempt),
		)

		start := time.Now()
		err := e.upserter.Upsert(ctx, chunk.Query, chunk.Mutations)
		telemetry.TransactionDurationHistogram.Observe(float64(time.Since(start).Milliseconds()))
		if err == nil {
			return nil
		}

		telemetry.TraceError(span, err)
		if storage.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		aborts++
		telemetry.AbortsCounter.WithLabelValues(abortReason(err)).Inc()
		e.logger.WarnWithContext(ctx, "transaction aborted, retrying",
			zap.Int("first_document", chunk.First),
			zap.Uint64("aborts", aborts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, e.retry.newBackOff(ctx), notify); err != nil {
		if storage.IsTransient(err) {
			return aborts, fmt.Errorf("committing chunk starting at document %d: giving up after %d retries: %w", chunk.First, aborts, err)
		}
		return aborts, fmt.Errorf("committing chunk starting at document %d: %w", chunk.First, err)
	}

	return aborts, nil
}

func abortReason(err error) string {
	if errors.Is(err, storage.ErrTransactionThrottled) {
		return "throttled"
	}
	return "conflict"
}
