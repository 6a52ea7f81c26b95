package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBatchSize = 500
	maxLineSize      = 64 * 1024 * 1024
)

type Importer struct {
	repo              domain.ObjectRepository
	batchSize         int
	extractBigVectors bool
}

type ImporterOption func(*Importer)

func WithBatchSize(size int) ImporterOption {
	return func(i *Importer) {
		if size > 0 {
			i.batchSize = size
		}
	}
}

// WithBigVectorExtraction toggles the synthesis of root records for the
// BigVectors embedded in imported objects. Enabled by default.
func WithBigVectorExtraction(enabled bool) ImporterOption {
	return func(i *Importer) {
		i.extractBigVectors = enabled
	}
}

func NewImporter(repo domain.ObjectRepository, opts ...ImporterOption) (*Importer, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing object repository")
	}
	importer := &Importer{
		repo:              repo,
		batchSize:         defaultBatchSize,
		extractBigVectors: true,
	}
	for _, opt := range opts {
		opt(importer)
	}
	return importer, nil
}

func (i *Importer) ImportFile(ctx context.Context, path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %w", path, err)
	}
	// nolint:all
	defer f.Close()

	stats, err := i.Import(ctx, f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"file":           path,
		"records":        stats.TotalRecords,
		"bigvectors":     stats.BigVectors,
		"max_checkpoint": stats.MaxCheckpoint,
	}).Info("imported export")
	return stats, nil
}

// Import stores every object of the export. Records are flushed to the
// repository in batches.
func (i *Importer) Import(ctx context.Context, r io.Reader, format Format) (*Stats, error) {
	stats := newStats()
	batch := make([]domain.VersionedRecord, 0, i.batchSize)

	flush := func() error {
		if len(batch) <= 0 {
			return nil
		}
		if err := i.repo.Add(ctx, batch...); err != nil {
			return fmt.Errorf("failed to store records: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	err := Decode(r, format, func(obj ExportedObject) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := obj.ToRecord()
		if err != nil {
			return err
		}
		stats.add(*record)
		batch = append(batch, *record)

		if i.extractBigVectors {
			roots, err := ExtractBigVectors(*record)
			if err != nil {
				return err
			}
			for _, root := range roots {
				stats.BigVectors++
				batch = append(batch, root)
			}
		}

		if len(batch) >= i.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return stats, nil
}

// Decode streams the objects of an export to fn. A malformed entry stops the
// decoding with an error carrying its line (JSONL) or index (JSON) number.
func Decode(r io.Reader, format Format, fn func(ExportedObject) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	if format == FormatAuto {
		format = sniffFormat(br)
	}

	if format == FormatJSON {
		return decodeJSON(br, fn)
	}
	return decodeJSONL(br, fn)
}

func decodeJSON(r io.Reader, fn func(ExportedObject) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json export: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("invalid json export: expected array")
	}

	for index := 0; dec.More(); index++ {
		var obj ExportedObject
		if err := dec.Decode(&obj); err != nil {
			return fmt.Errorf("object %d: %w", index, err)
		}
		if err := fn(obj); err != nil {
			return fmt.Errorf("object %d (%s): %w", index, obj.ObjectID, err)
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("invalid json export: %w", err)
	}
	return nil
}

func decodeJSONL(r io.Reader, fn func(ExportedObject) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		buf := scanner.Bytes()
		if len(bytes.TrimSpace(buf)) == 0 {
			continue
		}

		var obj ExportedObject
		if err := json.Unmarshal(buf, &obj); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(obj); err != nil {
			return fmt.Errorf("line %d (%s): %w", line, obj.ObjectID, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}
