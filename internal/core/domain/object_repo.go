package domain

import "context"

// ObjectStats summarizes the content of an object repository.
type ObjectStats struct {
	TotalRecords  int
	TotalObjects  int
	MaxCheckpoint Checkpoint
	MaxVersion    uint64
}

type ObjectRepository interface {
	// Add stores the given records. Adding an already stored (id, version)
	// pair is a no-op.
	Add(ctx context.Context, records ...VersionedRecord) error
	// Get returns the most recent version of the object whose effective
	// checkpoint is <= atOrBefore, or nil if there is none. When owner is not
	// nil, only records owned by it are considered.
	Get(
		ctx context.Context, id ObjectID, owner *ObjectID, atOrBefore Checkpoint,
	) (*VersionedRecord, error)
	// GetMany is the batch version of Get. Objects not found are omitted
	// from the returned map.
	GetMany(
		ctx context.Context, ids []ObjectID, owner *ObjectID, atOrBefore Checkpoint,
	) (map[ObjectID]*VersionedRecord, error)
	// LatestCheckpoint returns the highest effective checkpoint stored.
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	// Generation changes every time Add stores at least one new record. It is
	// bumped only once the new records are readable.
	Generation(ctx context.Context) (uint64, error)
	// Stats returns a summary of the records owned by the given object, or of
	// all records if owner is nil.
	Stats(ctx context.Context, owner *ObjectID) (*ObjectStats, error)
	Close()
}
