package domain

import (
	"fmt"
	"math/big"
)

// RootMeta is the header of a BigVector. Depth 0 means the vector has a single
// leaf named RootKey, depth d means RootKey names an inner node and d inner
// levels must be descended before reaching the leaves.
type RootMeta struct {
	Depth   uint8
	RootKey uint64
	Length  uint64
	// MaxSliceSize is the declared capacity of every leaf, 0 if unknown.
	MaxSliceSize uint64
	// MaxFanOut is the declared capacity of every inner node, 0 if unknown.
	MaxFanOut uint64
}

// IsEmpty returns whether the metadata describes a vector with no items.
func (m RootMeta) IsEmpty() bool {
	return m.Depth == 0 && m.Length == 0
}

// BigVector is a logically ordered sequence sharded into a shallow tree of
// independently versioned slices owned by Handle.
type BigVector struct {
	Handle ObjectID
	Meta   RootMeta
}

// SliceKey is the 128-bit key slices are sorted by.
type SliceKey struct {
	Hi uint64
	Lo uint64
}

func ParseSliceKey(s string) (SliceKey, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return SliceKey{}, fmt.Errorf("invalid slice key %q", s)
	}
	lo := new(big.Int).And(n, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(n, 64)
	return SliceKey{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}

func (k SliceKey) Cmp(other SliceKey) int {
	switch {
	case k.Hi < other.Hi:
		return -1
	case k.Hi > other.Hi:
		return 1
	case k.Lo < other.Lo:
		return -1
	case k.Lo > other.Lo:
		return 1
	}
	return 0
}

// Rsh64 returns the upper 64 bits of the key.
func (k SliceKey) Rsh64() uint64 {
	return k.Hi
}

// Bit returns the i-th bit of the key, 0 being the least significant.
func (k SliceKey) Bit(i uint) uint64 {
	if i >= 64 {
		return (k.Hi >> (i - 64)) & 1
	}
	return (k.Lo >> i) & 1
}

func (k SliceKey) String() string {
	if k.Hi == 0 {
		return fmt.Sprintf("%d", k.Lo)
	}
	n := new(big.Int).SetUint64(k.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(k.Lo))
	return n.String()
}

func (k SliceKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SliceKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSliceKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Node is a tree node of a BigVector: either an *InnerNode or a *LeafNode[T].
// Which one a key refers to is determined by the depth at which it is reached.
type Node[T any] interface {
	NodeName() uint64
	isNode()
}

// InnerNode holds, in document order, the keys of its children.
type InnerNode struct {
	Owner ObjectID
	Name  uint64
	Keys  []SliceKey
	Vals  []uint64
}

func (n *InnerNode) NodeName() uint64 { return n.Name }
func (*InnerNode) isNode()            {}

// LeafNode holds a bounded batch of items of the vector.
type LeafNode[T any] struct {
	Owner    ObjectID
	Name     uint64
	Keys     []SliceKey
	Items    []T
	Capacity uint64
	Prev     uint64
	Next     uint64
}

func (n *LeafNode[T]) NodeName() uint64 { return n.Name }
func (*LeafNode[T]) isNode()            {}

// Overflows returns whether the leaf holds more items than its declared
// capacity.
func (n *LeafNode[T]) Overflows() bool {
	return n.Capacity > 0 && uint64(len(n.Items)) > n.Capacity
}
