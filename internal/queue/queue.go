// Package queue publishes job messages to the Redis list that survey workers
// consume. This service is publish-only: workers BRPOP the other end, so the
// list behaves as a FIFO channel with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Queue is the job publishing interface.
type Queue interface {
	Publish(ctx context.Context, job models.JobMessage) error
	Ping(ctx context.Context) error
}

// RedisQueue implements Queue over a Redis list using go-redis/v9.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a RedisQueue from a Redis URL and list key.
func NewRedisQueue(redisURL, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts), key: key}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Publish pushes one job message onto the list. Callers publish exactly once
// per run id; the queue itself does no deduplication.
func (q *RedisQueue) Publish(ctx context.Context, job models.JobMessage) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
