package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jsonload/jsonload/pkg/logger"
	"github.com/jsonload/jsonload/pkg/storage"
	"github.com/jsonload/jsonload/pkg/storage/mocks"
	"github.com/jsonload/jsonload/pkg/upsert"
)

var noWait = RetryPolicy{}

func testChunk() *upsert.Chunk {
	return &upsert.Chunk{
		Query: "{\nv_3_1 as var(func: eq(<name>, \"Alice\"), first: 1)\n}",
		Mutations: []storage.Mutation{
			{SetJSON: []byte(`[{"name":"Alice","uid":"uid(v_3_1)"}]`), Cond: "@if(eq(len(v_3_1), 0))"},
			{SetJSON: []byte(`[{"age":30,"uid":"uid(v_3_1)"}]`)},
		},
		Docs:   1,
		NQuads: 2,
		First:  3,
	}
}

func TestCommitSucceedsOnFirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)
	chunk := testChunk()

	upserter.EXPECT().Upsert(gomock.Any(), chunk.Query, chunk.Mutations).Return(nil)

	aborts, err := NewExecutor(upserter, WithRetryPolicy(noWait)).Commit(context.Background(), chunk)
	require.NoError(t, err)
	require.Zero(t, aborts)
}

func TestCommitRetriesWholeRequestOnTransientErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)
	chunk := testChunk()

	gomock.InOrder(
		upserter.EXPECT().Upsert(gomock.Any(), chunk.Query, chunk.Mutations).Return(storage.ErrTransactionConflict),
		upserter.EXPECT().Upsert(gomock.Any(), chunk.Query, chunk.Mutations).Return(storage.ErrTransactionThrottled),
		upserter.EXPECT().Upsert(gomock.Any(), chunk.Query, chunk.Mutations).Return(storage.ErrTransactionConflict),
		upserter.EXPECT().Upsert(gomock.Any(), chunk.Query, chunk.Mutations).Return(nil),
	)

	log, logs := logger.NewObserverLogger("debug")
	aborts, err := NewExecutor(upserter,
		WithRetryPolicy(noWait),
		WithExecutorLogger(log),
	).Commit(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, uint64(3), aborts)
	require.Equal(t, 3, logs.FilterMessage("transaction aborted, retrying").Len())
}

func TestCommitReturnsFatalErrorsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)
	chunk := testChunk()
	fatal := errors.New("schema violation")

	upserter.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(fatal).Times(1)

	aborts, err := NewExecutor(upserter, WithRetryPolicy(noWait)).Commit(context.Background(), chunk)
	require.ErrorIs(t, err, fatal)
	require.ErrorContains(t, err, "committing chunk starting at document 3")
	require.Zero(t, aborts)
}

func TestCommitGivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)

	upserter.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(storage.ErrTransactionConflict).Times(3)

	aborts, err := NewExecutor(upserter, WithRetryPolicy(RetryPolicy{MaxAttempts: 2})).Commit(context.Background(), testChunk())
	require.ErrorIs(t, err, storage.ErrTransactionConflict)
	require.ErrorContains(t, err, "giving up after 2 retries")
	require.Equal(t, uint64(2), aborts)
}

func TestCommitSkipsChunksWithoutMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)

	aborts, err := NewExecutor(upserter).Commit(context.Background(), &upsert.Chunk{Docs: 2})
	require.NoError(t, err)
	require.Zero(t, aborts)
}

func TestCommitStopsWaitingWhenContextIsCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upserter.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, []storage.Mutation) error {
			cancel()
			return storage.ErrTransactionConflict
		})

	policy := RetryPolicy{MinWait: time.Hour, MaxWait: time.Hour}
	aborts, err := NewExecutor(upserter, WithRetryPolicy(policy)).Commit(ctx, testChunk())
	require.ErrorIs(t, err, context.Canceled)
	require.LessOrEqual(t, aborts, uint64(1))
}

func TestCommitHonorsRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	upserter := mocks.NewMockUpserter(ctrl)
	upserter.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	executor := NewExecutor(upserter, WithRetryPolicy(noWait), WithRateLimit(0.001))

	_, err := executor.Commit(context.Background(), testChunk())
	require.NoError(t, err)

	// The single token is spent, so the next attempt cannot start before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = executor.Commit(ctx, testChunk())
	require.ErrorContains(t, err, "committing chunk starting at document 3")
}

func TestRetryPolicyWaitsWithinWindow(t *testing.T) {
	b := DefaultRetryPolicy().newBackOff(context.Background())

	for range 200 {
		wait := b.NextBackOff()
		require.GreaterOrEqual(t, wait, DefaultMinRetryWait)
		require.LessOrEqual(t, wait, DefaultMaxRetryWait)
	}
}

func TestRetryPolicyWithEqualBounds(t *testing.T) {
	b := RetryPolicy{MinWait: 10 * time.Millisecond, MaxWait: 10 * time.Millisecond}.newBackOff(context.Background())
	require.Equal(t, 10*time.Millisecond, b.NextBackOff())
}
