package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "recordCache:"

type recordCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRecordCache(rdb *redis.Client, ttl time.Duration) ports.RecordCache {
	return &recordCache{rdb, ttl}
}

func (c *recordCache) Get(ctx context.Context, key string) (*domain.VersionedRecord, error) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached record %s: %v", key, err)
	}

	var record domain.VersionedRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, fmt.Errorf("malformed cached record %s: %v", key, err)
	}
	return &record, nil
}

func (c *recordCache) Set(ctx context.Context, key string, record domain.VersionedRecord) error {
	val, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %v", key, err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache record %s: %v", key, err)
	}
	return nil
}

func (c *recordCache) Close() {
	// nolint:all
	c.rdb.Close()
}
