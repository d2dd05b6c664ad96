package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"moxie/internal/logging"
)

const (
	defaultQueueKey    = "moxie_reports"
	retrySuffix        = ":retry"
	dlqSuffix          = ":dlq"
	retryCounterSuffix = ":retry-count:"
	maxRetryAttempts   = 3
	retryCounterTTL    = 24 * time.Hour
	brPopBlock         = 5 * time.Second
	errorBackoff       = time.Second
)

// Handler processes one job payload. A returned error schedules a retry.
type Handler func(payload []byte) error

// RedisQueue implements a job queue on Redis lists with a retry list and a dead-letter list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a Redis-backed queue on key; an empty key uses the default queue.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Key returns the main list key.
func (q *RedisQueue) Key() string { return q.key }

func (q *RedisQueue) retryKey() string { return q.key + retrySuffix }

func (q *RedisQueue) dlqKey() string { return q.key + dlqSuffix }

// Enqueue pushes a payload onto the main list.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.key, err)
	}
	return nil
}

// Consume uses BRPOP to deliver jobs to the handler until the context is canceled.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	logger := logging.Component("queue")

	for {
		payload, err := q.next(ctx)
		if err != nil {
			logger.Warnf("redis consumer exiting: %v", err)
			return err
		}
		if payload == nil {
			continue
		}
		q.run(ctx, handler, payload, "worker 0")
	}
}

// ConsumeConcurrent uses BRPOP to feed jobs to a pool of workerCount goroutines.
func (q *RedisQueue) ConsumeConcurrent(ctx context.Context, workerCount, bufferSize int, handler Handler) error {
	logger := logging.Component("queue")

	jobs := make(chan []byte, bufferSize)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			name := fmt.Sprintf("worker %d", workerID)
			for payload := range jobs {
				q.run(ctx, handler, payload, name)
			}
			logger.Infof("%s: exiting", name)
		}(i)
	}

	logger.Infof("started %d concurrent workers for queue %s", workerCount, q.key)

	shutdown := func(err error) error {
		close(jobs)
		wg.Wait()
		return err
	}

	for {
		payload, err := q.next(ctx)
		if err != nil {
			logger.Warnf("redis consumer exiting: %v", err)
			return shutdown(err)
		}
		if payload == nil {
			continue
		}

		select {
		case jobs <- payload:
		case <-ctx.Done():
			return shutdown(ctx.Err())
		}
	}
}

// next blocks for the next payload, preferring the retry list. It returns
// (nil, nil) on timeouts and, after a pause, on transient errors. Once ctx is
// canceled it returns the context error.
func (q *RedisQueue) next(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result, err := q.client.BRPop(ctx, brPopBlock, q.retryKey(), q.key).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logging.Component("queue").Warnf("redis BRPOP error: %v", err)
		select {
		case <-time.After(errorBackoff):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (q *RedisQueue) run(ctx context.Context, handler Handler, payload []byte, worker string) {
	logger := logging.Component("queue")

	if err := handler(payload); err != nil {
		logger.Warnf("%s: handler error, scheduling retry: %v", worker, err)
		if err := q.handleRetry(ctx, payload); err != nil {
			logger.Errorf("%s: retry handling failed: %v", worker, err)
		}
		return
	}
	_ = q.clearRetryCounter(ctx, payload)
}

func (q *RedisQueue) handleRetry(ctx context.Context, payload []byte) error {
	attempt, err := q.incrementRetryCounter(ctx, payload)
	if err != nil {
		return err
	}
	if attempt > maxRetryAttempts {
		logging.Component("queue").Warnf("moving job to DLQ after %d attempts", attempt-1)
		if err := q.client.LPush(ctx, q.dlqKey(), payload).Err(); err != nil {
			return fmt.Errorf("push to %s: %w", q.dlqKey(), err)
		}
		return q.clearRetryCounter(ctx, payload)
	}
	if err := q.client.LPush(ctx, q.retryKey(), payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", q.retryKey(), err)
	}
	return nil
}

func (q *RedisQueue) incrementRetryCounter(ctx context.Context, payload []byte) (int64, error) {
	key := retryCounterKey(q.key, payload)
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = q.client.Expire(ctx, key, retryCounterTTL).Err()
	return count, nil
}

func (q *RedisQueue) clearRetryCounter(ctx context.Context, payload []byte) error {
	return q.client.Del(ctx, retryCounterKey(q.key, payload)).Err()
}

func retryCounterKey(queue string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s%s%s", queue, retryCounterSuffix, hex.EncodeToString(sum[:]))
}
