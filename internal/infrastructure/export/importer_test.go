package export_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	inmemorydb "github.com/arkade-os/bvsnap/internal/infrastructure/db/inmemory"
	"github.com/arkade-os/bvsnap/internal/infrastructure/export"
	"github.com/stretchr/testify/require"
)

const (
	poolID    = "0x50997b5f1f6401674d3d881a61e09a71776ee19cd8b83114a0a21b3a82f130b5"
	bidsID    = "0x090a8eae3204c76e36eebf3440cbde577e062953391760c37c363530fc1de246"
	asksID    = "0x5f8f0e3a2728a161e529ecacdfdface88b2fa669279aa699afd5d6b462c68466"
	sliceID   = "0x78ae96c365c7fe786570d680be2a1d4364319397835ed726d47083c99d5d64ae"
	poolType  = "0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809::pool::PoolInner<0x2::sui::SUI, 0xdba3::usdc::USDC>"
	sliceType = "0x2::dynamic_field::Field<u64, 0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809::big_vector::Slice<0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809::order::Order>>"
)

var (
	poolLine = `{"object_id":"` + poolID + `","type":"` + poolType + `","version":"120","checkpoint":"1000","owner_type":"ObjectOwner","owner_address":"0xe05dafb5133bcffb8d59f4e12465dc0e9faeaa05e3e342a08fe135800e3e4407","object_json":{"id":{"id":"` + poolID + `"},"book":{"bids":{"id":{"id":"` + bidsID + `"},"depth":0,"length":"1","max_slice_size":"64","max_fan_out":"64","root_id":"0","last_id":"1"},"asks":{"id":{"id":"` + asksID + `"},"depth":"0","length":"0","max_slice_size":"64","max_fan_out":"64","root_id":"0","last_id":"0"}}}}`
	sliceLine = `{"object_id":"` + sliceID + `","object_type":"` + sliceType + `","version":118,"checkpoint":990,"initial_shared_version":null,"owner_type":"ObjectOwner","owner_address":"` + bidsID + `","object_json":{"id":{"id":"` + sliceID + `"},"name":"0","value":{"prev":"0","next":"0","keys":["9223372036854775808"],"vals":[{"quantity":"10"}]}}}`
)

func TestImportJSONL(t *testing.T) {
	ctx := context.Background()
	repo, err := inmemorydb.NewObjectRepository()
	require.NoError(t, err)

	importer, err := export.NewImporter(repo, export.WithBatchSize(1))
	require.NoError(t, err)

	input := strings.Join([]string{poolLine, "", "   ", sliceLine, ""}, "\n")
	stats, err := importer.Import(ctx, strings.NewReader(input), export.FormatJSONL)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalRecords)
	require.Equal(t, 2, stats.BigVectors)
	require.Equal(t, domain.Checkpoint(1000), stats.MaxCheckpoint)
	require.Equal(t, uint64(120), stats.MaxVersion)
	require.Equal(t, 1, stats.RecordsByOwner[bidsID])

	pool := mustParseID(t, poolID)
	bids := mustParseID(t, bidsID)
	slice := mustParseID(t, sliceID)

	record, err := repo.Get(ctx, slice, &bids, 990)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, uint64(118), record.Version)
	require.Equal(t, sliceType, record.TypeTag)
	require.Contains(t, string(record.Payload), `"keys":["9223372036854775808"]`)

	root, err := repo.Get(ctx, bids, &pool, 1000)
	require.NoError(t, err)
	require.NotNil(t, root)
	require.Equal(t, uint64(120), root.Version)
	require.Equal(t, domain.Checkpoint(1000), root.EffectiveCheckpoint)
	require.Equal(
		t,
		"0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809::big_vector::BigVector",
		root.TypeTag,
	)
	require.Contains(t, string(root.Payload), `"root_id":"0"`)

	root, err = repo.Get(ctx, bids, nil, 999)
	require.NoError(t, err)
	require.Nil(t, root)
}

func TestImportJSONArray(t *testing.T) {
	ctx := context.Background()
	repo, err := inmemorydb.NewObjectRepository()
	require.NoError(t, err)

	importer, err := export.NewImporter(repo, export.WithBigVectorExtraction(false))
	require.NoError(t, err)

	input := "\n  [" + poolLine + ",\n" + sliceLine + "]\n"
	stats, err := importer.Import(ctx, strings.NewReader(input), export.FormatAuto)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalRecords)
	require.Zero(t, stats.BigVectors)

	repoStats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, repoStats.TotalRecords)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	jsonlPath := filepath.Join(dir, "pool.jsonl")
	err := os.WriteFile(jsonlPath, []byte(poolLine+"\n"+sliceLine+"\n"), 0600)
	require.NoError(t, err)

	repo, err := inmemorydb.NewObjectRepository()
	require.NoError(t, err)
	importer, err := export.NewImporter(repo)
	require.NoError(t, err)

	stats, err := importer.ImportFile(ctx, jsonlPath)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalRecords)

	// Importing twice is idempotent.
	_, err = importer.ImportFile(ctx, jsonlPath)
	require.NoError(t, err)
	repoStats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 4, repoStats.TotalRecords)

	_, err = importer.ImportFile(ctx, filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		input       string
		format      export.Format
		expectedErr string
	}{
		{
			name:        "malformed line",
			input:       poolLine + "\n\n{not json}\n",
			format:      export.FormatJSONL,
			expectedErr: "line 3",
		},
		{
			name:        "invalid object id",
			input:       `{"object_id":"0xzz","type":"t","version":1,"object_json":{}}`,
			format:      export.FormatJSONL,
			expectedErr: "line 1",
		},
		{
			name:        "missing object json",
			input:       `{"object_id":"0x1","type":"t","version":1}`,
			format:      export.FormatJSONL,
			expectedErr: "missing object_json",
		},
		{
			name:        "invalid version",
			input:       `{"object_id":"0x1","type":"t","version":"-1","object_json":{}}`,
			format:      export.FormatJSONL,
			expectedErr: "invalid u64",
		},
		{
			name:        "not an array",
			input:       `{"object_id":"0x1"}`,
			format:      export.FormatJSON,
			expectedErr: "expected array",
		},
		{
			name:        "malformed array entry",
			input:       "[" + poolLine + ",42]",
			format:      export.FormatJSON,
			expectedErr: "object 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := inmemorydb.NewObjectRepository()
			require.NoError(t, err)
			importer, err := export.NewImporter(repo)
			require.NoError(t, err)

			_, err = importer.Import(ctx, strings.NewReader(tt.input), tt.format)
			require.ErrorContains(t, err, tt.expectedErr)
		})
	}

	_, err := export.NewImporter(nil)
	require.Error(t, err)
}

func TestExportedObjectToRecord(t *testing.T) {
	obj := export.ExportedObject{
		ObjectID:   "0x5",
		ObjectType: "0x2::coin::Coin<0x2::sui::SUI>",
		ObjectJSON: []byte(`"{\"balance\":\"1000\"}"`),
	}
	record, err := obj.ToRecord()
	require.NoError(t, err)
	require.Equal(t, `{"balance":"1000"}`, string(record.Payload))
	require.Equal(t, obj.ObjectType, record.TypeTag)
	require.Nil(t, record.Owner)
}

func TestFormatFromPath(t *testing.T) {
	require.Equal(t, export.FormatJSONL, export.FormatFromPath("a/b.jsonl"))
	require.Equal(t, export.FormatJSONL, export.FormatFromPath("b.NDJSON"))
	require.Equal(t, export.FormatJSON, export.FormatFromPath("b.json"))
	require.Equal(t, export.FormatAuto, export.FormatFromPath("b.txt"))
}

func TestExtractBigVectors(t *testing.T) {
	pool := mustParseID(t, poolID)
	record := domain.VersionedRecord{
		ID:                  pool,
		Version:             7,
		EffectiveCheckpoint: 70,
		TypeTag:             "custom",
		Payload: []byte(`{"vectors":[{"id":"` + bidsID + `","depth":1,"length":3,"root_id":2}],` +
			`"other":{"depth":1}}`),
	}

	roots, err := export.ExtractBigVectors(record)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, mustParseID(t, bidsID), roots[0].ID)
	require.Equal(t, uint64(7), roots[0].Version)
	require.Equal(t, domain.Checkpoint(70), roots[0].EffectiveCheckpoint)
	require.Equal(t, "0x2::big_vector::BigVector", roots[0].TypeTag)
	require.Equal(t, pool, *roots[0].Owner)

	record.Payload = []byte(`{"plain":"object"}`)
	roots, err = export.ExtractBigVectors(record)
	require.NoError(t, err)
	require.Empty(t, roots)

	record.Payload = []byte(`{"broken"`)
	_, err = export.ExtractBigVectors(record)
	require.Error(t, err)
}

func mustParseID(t *testing.T, s string) domain.ObjectID {
	id, err := domain.ParseObjectID(s)
	require.NoError(t, err)
	return id
}
