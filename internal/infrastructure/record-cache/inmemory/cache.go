package inmemorycache

import (
	"context"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type recordCache struct {
	lru *expirable.LRU[string, domain.VersionedRecord]
}

// NewRecordCache returns a size bounded cache whose entries expire after ttl.
// A zero ttl disables expiration.
func NewRecordCache(size int, ttl time.Duration) ports.RecordCache {
	return &recordCache{
		lru: expirable.NewLRU[string, domain.VersionedRecord](size, nil, ttl),
	}
}

func (c *recordCache) Get(_ context.Context, key string) (*domain.VersionedRecord, error) {
	record, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (c *recordCache) Set(_ context.Context, key string, record domain.VersionedRecord) error {
	c.lru.Add(key, record)
	return nil
}

func (c *recordCache) Close() {
	c.lru.Purge()
}
