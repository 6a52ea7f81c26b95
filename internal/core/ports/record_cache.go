package ports

import (
	"context"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

// RecordCache caches the answers of a VersionedObjectStore. Keys are opaque
// strings built by the caller.
type RecordCache interface {
	// Get returns nil, nil on cache miss.
	Get(ctx context.Context, key string) (*domain.VersionedRecord, error)
	Set(ctx context.Context, key string, record domain.VersionedRecord) error
	Close()
}
