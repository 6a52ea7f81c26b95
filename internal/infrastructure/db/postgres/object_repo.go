package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	dbutil "github.com/arkade-os/bvsnap/internal/infrastructure/db/dbuitl"
	"github.com/arkade-os/bvsnap/internal/infrastructure/db/postgres/sqlc/queries"
)

type objectRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewObjectRepository(config ...interface{}) (domain.ObjectRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open object repository: invalid config, expected db at 0",
		)
	}

	return &objectRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *objectRepository) Close() {
	// nolint:all
	r.db.Close()
}

func (r *objectRepository) Add(ctx context.Context, records ...domain.VersionedRecord) error {
	if len(records) <= 0 {
		return nil
	}

	params := make([]queries.InsertObjectRecordParams, 0, len(records))
	for _, record := range records {
		version, err := dbutil.ToInt64("version", record.Version)
		if err != nil {
			return err
		}
		checkpoint, err := dbutil.ToInt64("checkpoint", uint64(record.EffectiveCheckpoint))
		if err != nil {
			return err
		}
		params = append(params, queries.InsertObjectRecordParams{
			ObjectID:   record.ID.String(),
			Version:    version,
			Checkpoint: checkpoint,
			Owner:      dbutil.NullOwner(record.Owner),
			TypeTag:    record.TypeTag,
			Payload:    record.Payload,
		})
	}

	txBody := func(querierWithTx *queries.Queries) error {
		var inserted int64
		for _, p := range params {
			rows, err := querierWithTx.InsertObjectRecord(ctx, p)
			if err != nil {
				return fmt.Errorf("failed to insert record %s: %w", p.ObjectID, err)
			}
			inserted += rows
		}
		if inserted <= 0 {
			return nil
		}
		if err := querierWithTx.BumpObjectGeneration(ctx); err != nil {
			return fmt.Errorf("failed to bump store generation: %w", err)
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *objectRepository) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	row, err := r.querier.SelectObjectRecordAt(ctx, queries.SelectObjectRecordAtParams{
		ObjectID:   id.String(),
		Checkpoint: dbutil.ClampCheckpoint(atOrBefore),
		Owner:      dbutil.NullOwner(owner),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}

	return dbutil.ToRecord(
		row.ObjectID, row.Version, row.Checkpoint, row.Owner, row.TypeTag, row.Payload,
	)
}

func (r *objectRepository) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	records := make(map[domain.ObjectID]*domain.VersionedRecord, len(ids))
	if len(ids) <= 0 {
		return records, nil
	}

	rows, err := r.querier.SelectObjectRecordsAt(ctx, queries.SelectObjectRecordsAtParams{
		Ids:        dbutil.ObjectIDs(ids),
		Checkpoint: dbutil.ClampCheckpoint(atOrBefore),
		Owner:      dbutil.NullOwner(owner),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get objects: %w", err)
	}

	for _, row := range rows {
		record, err := dbutil.ToRecord(
			row.ObjectID, row.Version, row.Checkpoint, row.Owner, row.TypeTag, row.Payload,
		)
		if err != nil {
			return nil, err
		}
		records[record.ID] = record
	}
	return records, nil
}

func (r *objectRepository) LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	checkpoint, err := r.querier.SelectLatestCheckpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	return domain.Checkpoint(checkpoint), nil
}

func (r *objectRepository) Generation(ctx context.Context) (uint64, error) {
	generation, err := r.querier.SelectObjectGeneration(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get store generation: %w", err)
	}
	return uint64(generation), nil
}

func (r *objectRepository) Stats(
	ctx context.Context, owner *domain.ObjectID,
) (*domain.ObjectStats, error) {
	row, err := r.querier.SelectObjectStats(ctx, dbutil.NullOwner(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return &domain.ObjectStats{
		TotalRecords:  int(row.TotalRecords),
		TotalObjects:  int(row.TotalObjects),
		MaxCheckpoint: domain.Checkpoint(row.MaxCheckpoint),
		MaxVersion:    uint64(row.MaxVersion),
	}, nil
}
