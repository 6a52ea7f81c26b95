package application

import "github.com/arkade-os/bvsnap/internal/core/domain"

// documentOrder walks the vals of the collected inner nodes depth-first and
// returns the keys of the resolved leaves in document order, along with the
// keys reachable from the root that could not be resolved at their expected
// kind. Each inner node is expanded and each leaf emitted at most once, so
// that corrupted trees sharing children still produce a bounded output.
func documentOrder[T any](set *NodeSet[T]) (leaves []uint64, missing []uint64) {
	leaves = make([]uint64, 0, len(set.Leaves))
	missing = make([]uint64, 0)
	if set.Empty {
		return
	}

	leafDepth := int(set.Meta.Depth)
	expanded := make(map[uint64]struct{})
	emitted := make(map[uint64]struct{})
	missed := make(map[uint64]struct{})

	addMissing := func(key uint64) {
		if _, ok := missed[key]; ok {
			return
		}
		missed[key] = struct{}{}
		missing = append(missing, key)
	}

	var visit func(key uint64, depth int)
	visit = func(key uint64, depth int) {
		if depth == leafDepth {
			if _, ok := emitted[key]; ok {
				return
			}
			emitted[key] = struct{}{}
			if _, ok := set.Leaves[key]; !ok {
				addMissing(key)
				return
			}
			leaves = append(leaves, key)
			return
		}

		if _, ok := expanded[key]; ok {
			return
		}
		expanded[key] = struct{}{}
		inner, ok := set.Inners[key]
		if !ok {
			addMissing(key)
			return
		}
		for _, child := range inner.Vals {
			visit(child, depth+1)
		}
	}
	visit(set.Meta.RootKey, 0)

	return leaves, missing
}

// assemble concatenates the items of the resolved leaves in document order.
// Unresolved keys contribute nothing.
func assemble[T any](set *NodeSet[T]) ([]T, []*domain.LeafNode[T]) {
	keys, _ := documentOrder(set)

	size := 0
	leaves := make([]*domain.LeafNode[T], 0, len(keys))
	for _, key := range keys {
		leaf := set.Leaves[key]
		leaves = append(leaves, leaf)
		size += len(leaf.Items)
	}

	items := make([]T, 0, size)
	for _, leaf := range leaves {
		items = append(items, leaf.Items...)
	}
	return items, leaves
}
