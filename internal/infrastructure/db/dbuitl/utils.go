package dbutil

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

// ToInt64 converts a version or checkpoint to the signed integer SQL backends
// store. Values above math.MaxInt64 cannot be stored.
func ToInt64(name string, value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds the maximum storable value", name, value)
	}
	return int64(value), nil
}

// ClampCheckpoint maps an upper bound checkpoint to the SQL range. Every
// stored checkpoint is <= math.MaxInt64, so clamping preserves the result.
func ClampCheckpoint(checkpoint domain.Checkpoint) int64 {
	if uint64(checkpoint) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(checkpoint)
}

func NullOwner(owner *domain.ObjectID) sql.NullString {
	if owner == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: owner.String(), Valid: true}
}

func ParseOwner(owner sql.NullString) (*domain.ObjectID, error) {
	if !owner.Valid || len(owner.String) <= 0 {
		return nil, nil
	}
	id, err := domain.ParseObjectID(owner.String)
	if err != nil {
		return nil, fmt.Errorf("invalid owner: %w", err)
	}
	return &id, nil
}

// ToRecord builds a domain record out of the columns of an object_record row.
func ToRecord(
	objectID string, version, checkpoint int64, owner sql.NullString,
	typeTag string, payload []byte,
) (*domain.VersionedRecord, error) {
	id, err := domain.ParseObjectID(objectID)
	if err != nil {
		return nil, fmt.Errorf("invalid object id: %w", err)
	}
	ownerID, err := ParseOwner(owner)
	if err != nil {
		return nil, err
	}
	return &domain.VersionedRecord{
		ID:                  id,
		Version:             uint64(version),
		EffectiveCheckpoint: domain.Checkpoint(checkpoint),
		Owner:               ownerID,
		TypeTag:             typeTag,
		Payload:             payload,
	}, nil
}

func ObjectIDs(ids []domain.ObjectID) []string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return strs
}
