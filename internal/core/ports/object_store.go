package ports

import (
	"context"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

// VersionedObjectStore is the read-only view of the ledger object store the
// reconstruction engine consumes. Get returns nil, nil when no record of the
// object is effective at or before the given checkpoint.
type VersionedObjectStore interface {
	Get(
		ctx context.Context, id domain.ObjectID, owner *domain.ObjectID,
		atOrBefore domain.Checkpoint,
	) (*domain.VersionedRecord, error)
}

// BatchObjectStore is implemented by stores able to resolve many objects in
// a single roundtrip.
type BatchObjectStore interface {
	VersionedObjectStore
	GetMany(
		ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
		atOrBefore domain.Checkpoint,
	) (map[domain.ObjectID]*domain.VersionedRecord, error)
}

// CheckpointSource tells the highest checkpoint the store has data for.
type CheckpointSource interface {
	LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error)
}

// GenerationSource tells the current content generation of the store. Any
// answer of the store may change when the generation does.
type GenerationSource interface {
	Generation(ctx context.Context) (uint64, error)
}
