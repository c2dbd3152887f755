package queue

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1024

// MemoryQueue is the in-process queue used when no REDIS_URL is configured.
// Jobs do not survive a restart, which matches the in-memory session store.
type MemoryQueue struct {
	jobs      chan *Job
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemory(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryQueue{
		jobs:   make(chan *Job, capacity),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()

	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
