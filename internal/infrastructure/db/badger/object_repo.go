package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	objectStoreDir = "objects"
	generationKey  = "generation"
)

type objectRepository struct {
	store *badgerhold.Store
}

type generationDTO struct {
	Value uint64
}

type objectRecordDTO struct {
	ObjectID   string `badgerhold:"index"`
	Version    uint64
	Checkpoint uint64
	Owner      string `badgerhold:"index"`
	TypeTag    string
	Payload    []byte
}

func NewObjectRepository(config ...interface{}) (domain.ObjectRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, objectStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %s", err)
	}

	return &objectRepository{store}, nil
}

func (r *objectRepository) Add(ctx context.Context, records ...domain.VersionedRecord) error {
	added := false
	for _, record := range records {
		dto := toObjectRecordDTO(record)
		key := recordKey(record.ID, record.Version)

		err := r.store.Insert(key, dto)
		if errors.Is(err, badger.ErrConflict) {
			attempts := 1
			for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
				time.Sleep(100 * time.Millisecond)
				err = r.store.Insert(key, dto)
				attempts++
			}
		}
		if errors.Is(err, badgerhold.ErrKeyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to add record %s: %w", key, err)
		}
		added = true
	}

	if !added {
		return nil
	}
	return r.bumpGeneration()
}

func (r *objectRepository) bumpGeneration() error {
	var err error
	for range maxRetries {
		err = func() error {
			tx := r.store.Badger().NewTransaction(true)
			defer tx.Discard()

			var dto generationDTO
			if err := r.store.TxGet(tx, generationKey, &dto); err != nil &&
				!errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
			dto.Value++
			if err := r.store.TxUpsert(tx, generationKey, dto); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		break
	}
	return fmt.Errorf("failed to bump store generation: %w", err)
}

func (r *objectRepository) Generation(ctx context.Context) (uint64, error) {
	var dto generationDTO
	if err := r.store.Get(generationKey, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get store generation: %w", err)
	}
	return dto.Value, nil
}

func (r *objectRepository) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	query := badgerhold.Where("ObjectID").Eq(id.String()).Index("ObjectID").
		And("Checkpoint").Le(uint64(atOrBefore))
	if owner != nil {
		query = query.And("Owner").Eq(owner.String())
	}

	var dtos []objectRecordDTO
	if err := r.store.Find(&dtos, query.SortBy("Version").Reverse().Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	if len(dtos) == 0 {
		return nil, nil
	}

	return dtos[0].toRecord()
}

func (r *objectRepository) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	records := make(map[domain.ObjectID]*domain.VersionedRecord, len(ids))
	for _, id := range ids {
		record, err := r.Get(ctx, id, owner, atOrBefore)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records[id] = record
		}
	}
	return records, nil
}

func (r *objectRepository) LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	var dtos []objectRecordDTO
	query := (&badgerhold.Query{}).SortBy("Checkpoint").Reverse().Limit(1)
	if err := r.store.Find(&dtos, query); err != nil {
		return 0, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	if len(dtos) == 0 {
		return 0, nil
	}
	return domain.Checkpoint(dtos[0].Checkpoint), nil
}

func (r *objectRepository) Stats(
	ctx context.Context, owner *domain.ObjectID,
) (*domain.ObjectStats, error) {
	query := &badgerhold.Query{}
	if owner != nil {
		query = badgerhold.Where("Owner").Eq(owner.String()).Index("Owner")
	}

	stats := &domain.ObjectStats{}
	objects := make(map[string]struct{})
	err := r.store.ForEach(query, func(dto *objectRecordDTO) error {
		stats.TotalRecords++
		objects[dto.ObjectID] = struct{}{}
		if checkpoint := domain.Checkpoint(dto.Checkpoint); checkpoint > stats.MaxCheckpoint {
			stats.MaxCheckpoint = checkpoint
		}
		if dto.Version > stats.MaxVersion {
			stats.MaxVersion = dto.Version
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	stats.TotalObjects = len(objects)

	return stats, nil
}

func (r *objectRepository) Close() {
	// nolint:all
	r.store.Close()
}

// recordKey sorts the versions of an object in ascending order.
func recordKey(id domain.ObjectID, version uint64) string {
	return fmt.Sprintf("%s:%020d", id, version)
}

func toObjectRecordDTO(record domain.VersionedRecord) objectRecordDTO {
	owner := ""
	if record.Owner != nil {
		owner = record.Owner.String()
	}
	return objectRecordDTO{
		ObjectID:   record.ID.String(),
		Version:    record.Version,
		Checkpoint: uint64(record.EffectiveCheckpoint),
		Owner:      owner,
		TypeTag:    record.TypeTag,
		Payload:    record.Payload,
	}
}

func (d objectRecordDTO) toRecord() (*domain.VersionedRecord, error) {
	id, err := domain.ParseObjectID(d.ObjectID)
	if err != nil {
		return nil, err
	}
	var owner *domain.ObjectID
	if d.Owner != "" {
		o, err := domain.ParseObjectID(d.Owner)
		if err != nil {
			return nil, err
		}
		owner = &o
	}
	return &domain.VersionedRecord{
		ID:                  id,
		Version:             d.Version,
		EffectiveCheckpoint: domain.Checkpoint(d.Checkpoint),
		Owner:               owner,
		TypeTag:             d.TypeTag,
		Payload:             d.Payload,
	}, nil
}
