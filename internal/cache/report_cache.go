// Package cache keeps rendered report JSON in Redis so viewers can fetch it without hitting Postgres.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "moxie:report:"

// ErrMiss is returned when no report is cached for an upload.
var ErrMiss = errors.New("report not cached")

// ReportCache stores report JSON keyed by upload id.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache creates a cache whose entries expire after ttl (0 keeps them forever).
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Key returns the Redis key used for an upload.
func Key(uploadID uuid.UUID) string {
	return keyPrefix + uploadID.String()
}

// Put stores the JSON for an upload, replacing any previous value.
func (c *ReportCache) Put(ctx context.Context, uploadID uuid.UUID, reportJSON []byte) error {
	if err := c.client.Set(ctx, Key(uploadID), reportJSON, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache report %s: %w", uploadID, err)
	}
	return nil
}

// Get returns the cached JSON for an upload or ErrMiss.
func (c *ReportCache) Get(ctx context.Context, uploadID uuid.UUID) ([]byte, error) {
	data, err := c.client.Get(ctx, Key(uploadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cached report %s: %w", uploadID, err)
	}
	return data, nil
}
