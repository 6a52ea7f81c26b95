package export

import (
	"fmt"
	"strings"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/tidwall/gjson"
)

const bigVectorType = "big_vector::BigVector"

// ExtractBigVectors finds the BigVector headers embedded in the json of the
// given record and returns one root record for each of them. Roots are owned
// by the containing object and inherit its version and checkpoint, so that
// the vector can be reconstructed at any checkpoint the container is known.
func ExtractBigVectors(record domain.VersionedRecord) ([]domain.VersionedRecord, error) {
	if !gjson.ValidBytes(record.Payload) {
		return nil, fmt.Errorf("invalid json payload for %s", record.ID)
	}

	typeTag := bigVectorTypeTag(record.TypeTag)
	roots := make([]domain.VersionedRecord, 0)
	var visitErr error

	var visit func(value gjson.Result)
	visit = func(value gjson.Result) {
		if visitErr != nil {
			return
		}
		if value.IsObject() {
			if handle, ok := bigVectorHandle(value); ok {
				id, err := domain.ParseObjectID(handle)
				if err != nil {
					visitErr = fmt.Errorf("invalid BigVector id %s: %w", handle, err)
					return
				}
				if id == record.ID {
					return
				}
				owner := record.ID
				roots = append(roots, domain.VersionedRecord{
					ID:                  id,
					Version:             record.Version,
					EffectiveCheckpoint: record.EffectiveCheckpoint,
					Owner:               &owner,
					TypeTag:             typeTag,
					Payload:             []byte(value.Raw),
				})
				return
			}
		}
		if value.IsObject() || value.IsArray() {
			value.ForEach(func(_, child gjson.Result) bool {
				visit(child)
				return visitErr == nil
			})
		}
	}
	visit(gjson.ParseBytes(record.Payload))

	if visitErr != nil {
		return nil, visitErr
	}
	return roots, nil
}

// bigVectorHandle returns the id of the object if it looks like a BigVector
// header, ie. it carries depth, length and root_id.
func bigVectorHandle(value gjson.Result) (string, bool) {
	for _, field := range []string{"depth", "length", "root_id"} {
		if !value.Get(field).Exists() {
			return "", false
		}
	}

	if id := value.Get("id.id"); id.Type == gjson.String {
		return id.String(), true
	}
	if id := value.Get("id"); id.Type == gjson.String {
		return id.String(), true
	}
	return "", false
}

// bigVectorTypeTag keeps the package of the container type.
func bigVectorTypeTag(containerType string) string {
	pkg := "0x2"
	if i := strings.Index(containerType, "::"); i > 0 {
		pkg = containerType[:i]
	}
	return pkg + "::" + bigVectorType
}
