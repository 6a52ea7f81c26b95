package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

type Format uint8

const (
	FormatAuto Format = iota
	FormatJSON
	FormatJSONL
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONL:
		return "jsonl"
	default:
		return "auto"
	}
}

// FormatFromPath guesses the export format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// sniffFormat looks at the first non blank byte: an array is a JSON export,
// anything else is treated as one object per line.
func sniffFormat(r *bufio.Reader) Format {
	for n := 1; n <= r.Size(); n++ {
		buf, _ := r.Peek(n)
		if len(buf) < n {
			break
		}
		switch buf[n-1] {
		case ' ', '\t', '\r', '\n', 0xef, 0xbb, 0xbf:
			continue
		case '[':
			return FormatJSON
		default:
			return FormatJSONL
		}
	}
	return FormatJSONL
}

// ExportedObject is one line of a ledger object export.
type ExportedObject struct {
	ObjectID             string          `json:"object_id"`
	Type                 string          `json:"type"`
	ObjectType           string          `json:"object_type"`
	Version              flexUint64      `json:"version"`
	ObjectJSON           json.RawMessage `json:"object_json"`
	InitialSharedVersion *flexUint64     `json:"initial_shared_version"`
	OwnerType            string          `json:"owner_type"`
	OwnerAddress         string          `json:"owner_address"`
	Checkpoint           flexUint64      `json:"checkpoint"`
}

func (o ExportedObject) TypeTag() string {
	if o.Type != "" {
		return o.Type
	}
	return o.ObjectType
}

// ToRecord converts the exported object into a versioned record, the payload
// being the raw object json.
func (o ExportedObject) ToRecord() (*domain.VersionedRecord, error) {
	id, err := domain.ParseObjectID(o.ObjectID)
	if err != nil {
		return nil, err
	}

	var owner *domain.ObjectID
	if o.OwnerAddress != "" {
		ownerID, err := domain.ParseObjectID(o.OwnerAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid owner address: %w", err)
		}
		owner = &ownerID
	}

	payload := []byte(o.ObjectJSON)
	if len(payload) == 0 {
		return nil, fmt.Errorf("missing object_json")
	}
	// Some exports double encode the object json as a string.
	if payload[0] == '"' {
		var str string
		if err := json.Unmarshal(payload, &str); err != nil {
			return nil, fmt.Errorf("invalid object_json: %w", err)
		}
		payload = []byte(str)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("invalid object_json")
	}

	return &domain.VersionedRecord{
		ID:                  id,
		Version:             uint64(o.Version),
		EffectiveCheckpoint: domain.Checkpoint(o.Checkpoint),
		Owner:               owner,
		TypeTag:             o.TypeTag(),
		Payload:             payload,
	}, nil
}

// flexUint64 accepts both JSON numbers and decimal strings.
type flexUint64 uint64

func (v *flexUint64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	str := strings.Trim(string(data), "\"")
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s", string(data))
	}
	*v = flexUint64(n)
	return nil
}
