package inmemorydb

import (
	"context"
	"sort"
	"sync"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

type objectRepository struct {
	lock       *sync.RWMutex
	generation uint64
	// versions are kept sorted by ascending version.
	objects map[domain.ObjectID][]domain.VersionedRecord
}

func NewObjectRepository(config ...interface{}) (domain.ObjectRepository, error) {
	return &objectRepository{
		lock:    &sync.RWMutex{},
		objects: make(map[domain.ObjectID][]domain.VersionedRecord),
	}, nil
}

func (r *objectRepository) Add(_ context.Context, records ...domain.VersionedRecord) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	added := false
	for _, record := range records {
		versions := r.objects[record.ID]
		i := sort.Search(len(versions), func(i int) bool {
			return versions[i].Version >= record.Version
		})
		if i < len(versions) && versions[i].Version == record.Version {
			continue
		}
		versions = append(versions, domain.VersionedRecord{})
		copy(versions[i+1:], versions[i:])
		versions[i] = cloneRecord(record)
		r.objects[record.ID] = versions
		added = true
	}
	if added {
		r.generation++
	}
	return nil
}

func (r *objectRepository) Get(
	_ context.Context, id domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.get(id, owner, atOrBefore), nil
}

func (r *objectRepository) GetMany(
	_ context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	records := make(map[domain.ObjectID]*domain.VersionedRecord, len(ids))
	for _, id := range ids {
		if record := r.get(id, owner, atOrBefore); record != nil {
			records[id] = record
		}
	}
	return records, nil
}

func (r *objectRepository) LatestCheckpoint(_ context.Context) (domain.Checkpoint, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var latest domain.Checkpoint
	for _, versions := range r.objects {
		// checkpoints are non-decreasing in version.
		if cp := versions[len(versions)-1].EffectiveCheckpoint; cp > latest {
			latest = cp
		}
	}
	return latest, nil
}

func (r *objectRepository) Generation(_ context.Context) (uint64, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.generation, nil
}

func (r *objectRepository) Stats(
	_ context.Context, owner *domain.ObjectID,
) (*domain.ObjectStats, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	stats := &domain.ObjectStats{}
	for _, versions := range r.objects {
		found := false
		for _, record := range versions {
			if !record.OwnedBy(owner) {
				continue
			}
			found = true
			stats.TotalRecords++
			if record.EffectiveCheckpoint > stats.MaxCheckpoint {
				stats.MaxCheckpoint = record.EffectiveCheckpoint
			}
			if record.Version > stats.MaxVersion {
				stats.MaxVersion = record.Version
			}
		}
		if found {
			stats.TotalObjects++
		}
	}
	return stats, nil
}

func (r *objectRepository) Close() {}

func (r *objectRepository) get(
	id domain.ObjectID, owner *domain.ObjectID, atOrBefore domain.Checkpoint,
) *domain.VersionedRecord {
	versions := r.objects[id]
	for i := len(versions) - 1; i >= 0; i-- {
		record := versions[i]
		if record.EffectiveCheckpoint > atOrBefore || !record.OwnedBy(owner) {
			continue
		}
		clone := cloneRecord(record)
		return &clone
	}
	return nil
}

func cloneRecord(record domain.VersionedRecord) domain.VersionedRecord {
	clone := record
	if record.Owner != nil {
		owner := *record.Owner
		clone.Owner = &owner
	}
	clone.Payload = append([]byte(nil), record.Payload...)
	return clone
}
