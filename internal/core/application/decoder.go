package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

type DecodeErrorKind uint8

const (
	MalformedPayload DecodeErrorKind = iota
	UnexpectedTypeTag
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedPayload:
		return "malformed payload"
	case UnexpectedTypeTag:
		return "unexpected type tag"
	default:
		return "unknown"
	}
}

type DecodeError struct {
	Kind    DecodeErrorKind
	ID      domain.ObjectID
	TypeTag string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to decode %s: %s (type %s)", e.ID, e.Kind, e.TypeTag)
	}
	return fmt.Sprintf(
		"failed to decode %s: %s (type %s): %s", e.ID, e.Kind, e.TypeTag, e.Err,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type NodeKind uint8

const (
	NodeKindRoot NodeKind = iota
	NodeKindInner
	NodeKindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindRoot:
		return "root"
	case NodeKindInner:
		return "inner"
	case NodeKindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// ItemDecoder decodes a single leaf item from its JSON representation.
type ItemDecoder[T any] func(raw json.RawMessage) (T, error)

// DecodeRawItem keeps leaf items as they are found in the node payload.
func DecodeRawItem(raw json.RawMessage) (json.RawMessage, error) {
	return raw, nil
}

// NodeDecoder turns versioned records into typed BigVector nodes. It is
// stateless and safe for concurrent use.
type NodeDecoder[T any] struct {
	decodeItem ItemDecoder[T]
}

func NewNodeDecoder[T any](decodeItem ItemDecoder[T]) *NodeDecoder[T] {
	return &NodeDecoder[T]{decodeItem}
}

func (d *NodeDecoder[T]) DecodeRoot(record domain.VersionedRecord) (domain.RootMeta, error) {
	if !typeTagMatches(record.TypeTag, NodeKindRoot) {
		return domain.RootMeta{}, newDecodeError(UnexpectedTypeTag, record, nil)
	}

	var payload rootPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return domain.RootMeta{}, newDecodeError(MalformedPayload, record, err)
	}
	if payload.Depth == nil || payload.RootID == nil || payload.Length == nil {
		return domain.RootMeta{}, newDecodeError(
			MalformedPayload, record, fmt.Errorf("missing depth, root_id or length"),
		)
	}
	if *payload.Depth > 255 {
		return domain.RootMeta{}, newDecodeError(
			MalformedPayload, record, fmt.Errorf("depth %d out of range", *payload.Depth),
		)
	}

	return domain.RootMeta{
		Depth:        uint8(*payload.Depth),
		RootKey:      uint64(*payload.RootID),
		Length:       uint64(*payload.Length),
		MaxSliceSize: uint64(payload.MaxSliceSize),
		MaxFanOut:    uint64(payload.MaxFanOut),
	}, nil
}

// DecodeInner decodes an inner node. If the payload does not carry the node
// name, key is used instead.
func (d *NodeDecoder[T]) DecodeInner(
	record domain.VersionedRecord, key uint64,
) (*domain.InnerNode, error) {
	if !typeTagMatches(record.TypeTag, NodeKindInner) {
		return nil, newDecodeError(UnexpectedTypeTag, record, nil)
	}

	name, slice, err := parseSlice(record.Payload, key)
	if err != nil {
		return nil, newDecodeError(MalformedPayload, record, err)
	}

	var rawVals []json.RawMessage
	if err := json.Unmarshal(slice.Vals, &rawVals); err != nil {
		return nil, newDecodeError(MalformedPayload, record, fmt.Errorf("invalid vals: %s", err))
	}
	vals := make([]uint64, 0, len(rawVals))
	for i, raw := range rawVals {
		var val jsonUint64
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, newDecodeError(
				MalformedPayload, record, fmt.Errorf("invalid child key at index %d: %s", i, err),
			)
		}
		vals = append(vals, uint64(val))
	}

	owner := domain.ObjectID{}
	if record.Owner != nil {
		owner = *record.Owner
	}

	return &domain.InnerNode{
		Owner: owner,
		Name:  name,
		Keys:  slice.Keys,
		Vals:  vals,
	}, nil
}

// DecodeLeaf decodes a leaf node with the given declared capacity. If the
// payload does not carry the node name, key is used instead.
func (d *NodeDecoder[T]) DecodeLeaf(
	record domain.VersionedRecord, key, capacity uint64,
) (*domain.LeafNode[T], error) {
	if !typeTagMatches(record.TypeTag, NodeKindLeaf) {
		return nil, newDecodeError(UnexpectedTypeTag, record, nil)
	}

	name, slice, err := parseSlice(record.Payload, key)
	if err != nil {
		return nil, newDecodeError(MalformedPayload, record, err)
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(slice.Vals, &rawItems); err != nil {
		return nil, newDecodeError(MalformedPayload, record, fmt.Errorf("invalid vals: %s", err))
	}
	items := make([]T, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := d.decodeItem(raw)
		if err != nil {
			return nil, newDecodeError(
				MalformedPayload, record, fmt.Errorf("invalid item at index %d: %s", i, err),
			)
		}
		items = append(items, item)
	}

	owner := domain.ObjectID{}
	if record.Owner != nil {
		owner = *record.Owner
	}

	return &domain.LeafNode[T]{
		Owner:    owner,
		Name:     name,
		Keys:     slice.Keys,
		Items:    items,
		Capacity: capacity,
		Prev:     uint64(slice.Prev),
		Next:     uint64(slice.Next),
	}, nil
}

func newDecodeError(
	kind DecodeErrorKind, record domain.VersionedRecord, err error,
) *DecodeError {
	return &DecodeError{
		Kind:    kind,
		ID:      record.ID,
		TypeTag: record.TypeTag,
		Err:     err,
	}
}

// typeTagMatches tells whether a Move type tag belongs to the family expected
// for the given kind. Exports flatten slices to Field<u64, vector<...>>, in
// that case the payload shape decides. Records with no type tag are accepted.
func typeTagMatches(typeTag string, kind NodeKind) bool {
	if typeTag == "" {
		return true
	}

	switch kind {
	case NodeKindRoot:
		return strings.Contains(typeTag, "big_vector::BigVector")
	case NodeKindInner:
		if isFlattenedSliceTag(typeTag) {
			return true
		}
		return strings.Contains(typeTag, "big_vector::Slice<u64>")
	case NodeKindLeaf:
		if isFlattenedSliceTag(typeTag) {
			return true
		}
		return strings.Contains(typeTag, "big_vector::Slice<") &&
			!strings.Contains(typeTag, "big_vector::Slice<u64>")
	default:
		return false
	}
}

func isFlattenedSliceTag(typeTag string) bool {
	tag := strings.ReplaceAll(typeTag, " ", "")
	return strings.Contains(tag, "dynamic_field::Field<u64,vector<")
}

type rootPayload struct {
	Depth        *jsonUint64 `json:"depth"`
	Length       *jsonUint64 `json:"length"`
	RootID       *jsonUint64 `json:"root_id"`
	MaxSliceSize jsonUint64  `json:"max_slice_size"`
	MaxFanOut    jsonUint64  `json:"max_fan_out"`
}

type fieldPayload struct {
	Name  *jsonUint64     `json:"name"`
	Value json.RawMessage `json:"value"`
}

type slicePayload struct {
	Prev jsonUint64        `json:"prev"`
	Next jsonUint64        `json:"next"`
	Keys []domain.SliceKey `json:"keys"`
	Vals json.RawMessage   `json:"vals"`
}

// parseSlice accepts both the dynamic field wrapper and the bare slice.
func parseSlice(payload []byte, key uint64) (uint64, *slicePayload, error) {
	var field fieldPayload
	if err := json.Unmarshal(payload, &field); err != nil {
		return 0, nil, err
	}

	name := key
	body := json.RawMessage(payload)
	if len(field.Value) > 0 && !bytes.Equal(field.Value, []byte("null")) {
		body = field.Value
		if field.Name != nil {
			name = uint64(*field.Name)
		}
	}

	var slice slicePayload
	if err := json.Unmarshal(body, &slice); err != nil {
		return 0, nil, err
	}
	if len(slice.Vals) == 0 || bytes.Equal(slice.Vals, []byte("null")) {
		return 0, nil, fmt.Errorf("missing vals")
	}
	return name, &slice, nil
}

// jsonUint64 accepts both JSON numbers and decimal strings, the latter being
// how Sui renders u64 values.
type jsonUint64 uint64

func (v *jsonUint64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	str := strings.Trim(string(data), "\"")
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s", string(data))
	}
	*v = jsonUint64(n)
	return nil
}
