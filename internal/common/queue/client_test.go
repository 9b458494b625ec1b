package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, mode Mode) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q, err := NewRedisQueue(rdb, Config{Name: "oracle:jobs", Mode: mode, VisibilityTimeout: time.Minute}, logger.NewTestLogger(t))
	require.NoError(t, err)
	return q, mr
}

// ==========================
// Simple mode
// ==========================

func TestRedisQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t, ModeSimple)
	ctx := context.Background()

	jobs := []*models.Job{
		{UserID: "u1", Message: "first"},
		{UserID: "u2", Message: "second"},
		{UserID: "u1", Message: "third"},
	}
	for _, j := range jobs {
		require.NoError(t, q.Enqueue(ctx, j))
	}

	for _, want := range jobs {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRedisQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t, ModeSimple)

	job, err := q.Dequeue(context.Background())
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRedisQueue_WireFormat(t *testing.T) {
	q, mr := newTestQueue(t, ModeSimple)

	require.NoError(t, q.Enqueue(context.Background(), &models.Job{UserID: "u1", Message: "Pull a card"}))

	items, err := mr.List("oracle:jobs")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"userId":"u1","message":"Pull a card"}`, items[0])
}

func TestRedisQueue_EnqueueRejectsBlankJob(t *testing.T) {
	q, mr := newTestQueue(t, ModeSimple)

	err := q.Enqueue(context.Background(), &models.Job{UserID: " ", Message: "hi"})
	assert.ErrorIs(t, err, ErrMalformedJob)
	assert.False(t, mr.Exists("oracle:jobs"))
}

func TestRedisQueue_MalformedPayloadDropped(t *testing.T) {
	q, mr := newTestQueue(t, ModeSimple)
	ctx := context.Background()

	_, err := mr.Push("oracle:jobs", `{"user":"u1"}`)
	require.NoError(t, err)
	_, err = mr.Push("oracle:jobs", `{"userId":"u2","message":"next"}`)
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrMalformedJob)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", job.UserID)
}

func TestRedisQueue_Unavailable(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	q, err := NewRedisQueue(rdb, Config{Name: "oracle:jobs"}, logger.NewNoOpLogger())
	require.NoError(t, err)

	mock.ExpectRPush("oracle:jobs", `{"userId":"u1","message":"hi"}`).SetErr(errors.New("connection refused"))
	err = q.Enqueue(context.Background(), &models.Job{UserID: "u1", Message: "hi"})
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	mock.ExpectLPop("oracle:jobs").SetErr(errors.New("connection refused"))
	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisQueue_RejectsUnknownMode(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	_, err := NewRedisQueue(rdb, Config{Name: "oracle:jobs", Mode: "fanout"}, logger.NewNoOpLogger())
	assert.Error(t, err)
}

// ==========================
// Reliable mode
// ==========================

func TestRedisQueue_ReliableClaimAndAck(t *testing.T) {
	q, mr := newTestQueue(t, ModeReliable)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &models.Job{UserID: "u1", Message: "hi"}))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", d.Job.UserID)

	processing, err := mr.List("oracle:jobs:processing")
	require.NoError(t, err)
	assert.Len(t, processing, 1)

	queued, inFlight, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queued)
	assert.Equal(t, int64(1), inFlight)

	require.NoError(t, d.Ack(ctx))
	assert.False(t, mr.Exists("oracle:jobs:processing"))
	assert.False(t, mr.Exists("oracle:jobs:processing:deadlines"))
	assert.False(t, mr.Exists("oracle:jobs:processing:claims"))
}

func TestRedisQueue_RequeueStale(t *testing.T) {
	q, mr := newTestQueue(t, ModeReliable)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &models.Job{UserID: "u1", Message: "abandoned"}))
	require.NoError(t, q.Enqueue(ctx, &models.Job{UserID: "u2", Message: "waiting"}))

	_, err := q.Receive(ctx)
	require.NoError(t, err)

	moved, err := q.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved, "deadline has not passed yet")

	q.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	moved, err = q.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	items, err := mr.List("oracle:jobs")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.JSONEq(t, `{"userId":"u1","message":"abandoned"}`, items[0], "requeued job goes back to the head")

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abandoned", d.Job.Message)
}

func TestRedisQueue_RequeueStaleIdenticalPayloads(t *testing.T) {
	q, mr := newTestQueue(t, ModeReliable)
	ctx := context.Background()

	job := &models.Job{UserID: "u1", Message: "hi"}
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Enqueue(ctx, job))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)

	members, err := mr.ZMembers("oracle:jobs:processing:deadlines")
	require.NoError(t, err)
	assert.Len(t, members, 2, "each claim gets its own deadline")

	// The second holder never acks.
	require.NoError(t, first.Ack(ctx))

	q.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	moved, err := q.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	assert.False(t, mr.Exists("oracle:jobs:processing"))
	assert.False(t, mr.Exists("oracle:jobs:processing:deadlines"))
	assert.False(t, mr.Exists("oracle:jobs:processing:claims"))

	items, err := mr.List("oracle:jobs")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"userId":"u1","message":"hi"}`, items[0])
}

func TestRedisQueue_ReliableMalformedIsDropped(t *testing.T) {
	q, mr := newTestQueue(t, ModeReliable)

	_, err := mr.Push("oracle:jobs", `not json`)
	require.NoError(t, err)

	_, err = q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrMalformedJob)
	assert.False(t, mr.Exists("oracle:jobs:processing"))
}

func TestRedisQueue_SimpleModeIgnoresRequeue(t *testing.T) {
	q, _ := newTestQueue(t, ModeSimple)
	moved, err := q.RequeueStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, moved)
}
