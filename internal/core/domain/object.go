package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const ObjectIDLength = 32

// ObjectID is the fixed-length content-addressed handle of a ledger object.
type ObjectID [ObjectIDLength]byte

// ParseObjectID parses a hex encoded object id. The 0x prefix is optional and
// short ids (ie. 0x2) are left-padded with zeros.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID

	str := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(str) == 0 {
		return id, fmt.Errorf("missing object id")
	}
	if len(str) > ObjectIDLength*2 {
		return id, fmt.Errorf("invalid object id %s: too long", s)
	}
	if len(str)%2 != 0 {
		str = "0" + str
	}
	buf, err := hex.DecodeString(str)
	if err != nil {
		return id, fmt.Errorf("invalid object id %s: %s", s, err)
	}

	copy(id[ObjectIDLength-len(buf):], buf)
	return id, nil
}

func (id ObjectID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Checkpoint is the monotonically increasing logical timestamp of a global
// ledger state.
type Checkpoint uint64

// VersionedRecord is one version of a ledger object as observed at the
// checkpoint in which that version became effective.
// For a given ID, records are totally ordered by Version and
// EffectiveCheckpoint is non-decreasing in Version.
type VersionedRecord struct {
	ID                  ObjectID
	Version             uint64
	EffectiveCheckpoint Checkpoint
	Owner               *ObjectID
	TypeTag             string
	Payload             []byte
}

// OwnedBy returns whether the record is owned by the given object. A nil
// owner filter matches every record.
func (r VersionedRecord) OwnedBy(owner *ObjectID) bool {
	if owner == nil {
		return true
	}
	return r.Owner != nil && *r.Owner == *owner
}
