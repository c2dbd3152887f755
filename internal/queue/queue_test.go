package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobConstructors(t *testing.T) {
	sid := uuid.New()

	tl := NewGenerateTimelineJob(sid, 30)
	assert.Equal(t, JobGenerateTimeline, tl.Type)
	assert.Equal(t, sid, tl.SessionID)
	require.NotNil(t, tl.DurationSec)
	assert.Equal(t, 30, *tl.DurationSec)
	assert.Nil(t, tl.SceneIndex)

	scene := NewGenerateSceneJob(sid, 2)
	require.NotNil(t, scene.SceneIndex)
	assert.Equal(t, 2, *scene.SceneIndex)
	assert.NotEqual(t, uuid.Nil, scene.ID)

	assert.Equal(t, JobComposeImage, NewComposeImageJob(sid, 0).Type)
	assert.Equal(t, JobGenerateAll, NewGenerateAllJob(sid).Type)
	assert.Equal(t, JobMerge, NewMergeJob(sid).Type)
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()
	sid := uuid.New()

	require.NoError(t, q.Enqueue(ctx, NewGenerateSceneJob(sid, 0)))
	require.NoError(t, q.Enqueue(ctx, NewGenerateSceneJob(sid, 1)))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 0, *first.SceneIndex)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, *second.SceneIndex)
}

func TestMemoryQueueTimeoutReturnsNil(t *testing.T) {
	q := NewMemory(1)

	job, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemory(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewMergeJob(uuid.New())))
	assert.ErrorIs(t, q.Enqueue(ctx, NewMergeJob(uuid.New())), ErrQueueFull)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), NewMergeJob(uuid.New())), ErrQueueClosed)
}

func TestMemoryQueueContextCancel(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	q, err := NewRedis(url, "test-"+uuid.NewString())
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()

	job := NewGenerateTimelineJob(uuid.New(), 15)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 15, *got.DurationSec)

	empty, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRedisQueuePurgesOnConnect(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	instance := "test-" + uuid.NewString()
	ctx := context.Background()

	first, err := NewRedis(url, instance)
	require.NoError(t, err)
	require.NoError(t, first.Enqueue(ctx, NewMergeJob(uuid.New())))
	require.NoError(t, first.Close())

	other, err := NewRedis(url, "test-"+uuid.NewString())
	require.NoError(t, err)
	defer other.Close()
	n, err := other.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	restarted, err := NewRedis(url, instance)
	require.NoError(t, err)
	defer restarted.Close()
	n, err = restarted.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInstanceKey(t *testing.T) {
	assert.Equal(t, "queue:gigi_jobs:api-1", InstanceKey("api-1"))
	assert.NotEqual(t, InstanceKey("a"), InstanceKey("b"))
}
