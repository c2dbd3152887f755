package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

type RedisQueue struct {
	client *redis.Client
	name   string
}

var _ Queue = (*RedisQueue)(nil)

// NewRedis connects to the list owned by instanceID. Jobs left there by a
// previous run refer to sessions that died with it, so they are dropped.
func NewRedis(redisURL, instanceID string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := NewRedisWithClient(client, InstanceKey(instanceID))
	dropped, err := q.Purge(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if dropped > 0 {
		log.Warn().Int64("jobs", dropped).Str("queue", q.name).Msg("dropped jobs left by a previous run")
	}
	return q, nil
}

// NewRedisWithClient wraps an existing client reading the list called name.
func NewRedisWithClient(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, q.name, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeJob([]byte(result[1]))
}

// Purge deletes every pending job and returns how many there were.
func (q *RedisQueue) Purge(ctx context.Context) (int64, error) {
	pipe := q.client.TxPipeline()
	n := pipe.LLen(ctx, q.name)
	pipe.Del(ctx, q.name)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	return n.Val(), nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
