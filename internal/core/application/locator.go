package application

import (
	"encoding/binary"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"golang.org/x/crypto/blake2b"
)

// childObjectIdScope is the hashing intent scope of dynamic field ids.
const childObjectIdScope = 0xf0

// bcs encoding of the u64 type tag.
var u64TypeTag = []byte{0x02}

// NodeLocator maps the name of a BigVector slice to the id of the object
// holding it.
type NodeLocator interface {
	Locate(handle domain.ObjectID, key uint64) domain.ObjectID
}

// SuiDynamicFieldLocator derives slice ids the way Sui derives the id of a
// dynamic field with a u64 name attached to the BigVector UID.
type SuiDynamicFieldLocator struct{}

func (SuiDynamicFieldLocator) Locate(handle domain.ObjectID, key uint64) domain.ObjectID {
	keyBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(keyBytes, key)
	keyLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(keyLen, uint64(len(keyBytes)))

	// nolint:errcheck
	hasher, _ := blake2b.New256(nil)
	hasher.Write([]byte{childObjectIdScope})
	hasher.Write(handle[:])
	hasher.Write(keyLen)
	hasher.Write(keyBytes)
	hasher.Write(u64TypeTag)

	var id domain.ObjectID
	copy(id[:], hasher.Sum(nil))
	return id
}
