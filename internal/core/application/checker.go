package application

import (
	"fmt"
	"sort"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

// checkConsistency validates the collected node set and builds the report.
// It never fails: every violation is recorded as a finding.
func checkConsistency[T any](
	set *NodeSet[T], maxStaleness domain.Checkpoint,
) domain.ReconstructionReport {
	leafKeys, missing := documentOrder(set)
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	report := domain.ReconstructionReport{
		TargetCheckpoint: set.Target,
		ResolvedNodes:    len(set.Inners) + len(set.Leaves),
		MissingKeys:      missing,
		Status:           domain.StatusComplete,
		Findings:         make([]domain.Finding, 0),
	}

	if len(missing) > 0 {
		report.Status = domain.StatusPartial
		report.Misses = make(map[uint64]domain.MissReason, len(missing))
		for _, key := range missing {
			reason, ok := set.Misses[key]
			if !ok {
				// Resolved, but not at the kind expected at the depth it is
				// referenced from.
				reason = domain.MissIdentityMismatch
			}
			report.Misses[key] = reason
		}
	}

	report.Findings = append(report.Findings, duplicateReferences(set)...)

	if report.IsComplete() && !set.Empty {
		total := uint64(0)
		for _, key := range leafKeys {
			total += uint64(len(set.Leaves[key].Items))
		}
		if total != set.Meta.Length {
			report.Findings = append(report.Findings, domain.Finding{
				Kind: domain.FindingLengthMismatch,
				Key:  set.Meta.RootKey,
				Detail: fmt.Sprintf(
					"root declares %d items, leaves hold %d", set.Meta.Length, total,
				),
			})
		}
	}

	report.Findings = append(report.Findings, capacityFindings(set)...)
	report.Findings = append(report.Findings, keyOrderFindings(set, leafKeys)...)

	oldest := set.RootCheckpoint
	for _, checkpoint := range set.Effective {
		if checkpoint < oldest {
			oldest = checkpoint
		}
	}
	if oldest < set.Target {
		report.MaxNodeStaleness = set.Target - oldest
	}
	if maxStaleness > 0 && report.MaxNodeStaleness > maxStaleness {
		report.Findings = append(report.Findings, domain.Finding{
			Kind: domain.FindingStalenessExceeded,
			Key:  set.Meta.RootKey,
			Detail: fmt.Sprintf(
				"node staleness %d exceeds tolerance %d", report.MaxNodeStaleness, maxStaleness,
			),
		})
	}

	return report
}

// duplicateReferences reports every key referenced more than once across the
// whole set, the root reference included. The outcome does not depend on the
// order nodes were fetched in.
func duplicateReferences[T any](set *NodeSet[T]) []domain.Finding {
	refs := make(map[uint64]int)
	parents := make(map[uint64][]uint64)
	if !set.Empty {
		refs[set.Meta.RootKey]++
	}

	for _, name := range sortedKeys(set.Inners) {
		for _, child := range set.Inners[name].Vals {
			refs[child]++
			parents[child] = append(parents[child], name)
		}
	}

	duplicated := make([]uint64, 0)
	for key, count := range refs {
		if count > 1 {
			duplicated = append(duplicated, key)
		}
	}
	sort.Slice(duplicated, func(i, j int) bool { return duplicated[i] < duplicated[j] })

	findings := make([]domain.Finding, 0, len(duplicated))
	for _, key := range duplicated {
		findings = append(findings, domain.Finding{
			Kind:    domain.FindingStructuralCorruption,
			Key:     key,
			Parents: uniqueSorted(parents[key]),
			Detail:  fmt.Sprintf("key %d referenced %d times", key, refs[key]),
		})
	}
	return findings
}

func capacityFindings[T any](set *NodeSet[T]) []domain.Finding {
	findings := make([]domain.Finding, 0)

	for _, name := range sortedKeys(set.Leaves) {
		leaf := set.Leaves[name]
		if leaf.Overflows() {
			findings = append(findings, domain.Finding{
				Kind: domain.FindingCapacityExceeded,
				Key:  name,
				Detail: fmt.Sprintf(
					"leaf holds %d items, capacity is %d", len(leaf.Items), leaf.Capacity,
				),
			})
		}
	}

	if set.Meta.MaxFanOut == 0 {
		return findings
	}
	for _, name := range sortedKeys(set.Inners) {
		inner := set.Inners[name]
		if uint64(len(inner.Vals)) > set.Meta.MaxFanOut {
			findings = append(findings, domain.Finding{
				Kind: domain.FindingFanOutExceeded,
				Key:  name,
				Detail: fmt.Sprintf(
					"inner node has %d children, max fan out is %d",
					len(inner.Vals), set.Meta.MaxFanOut,
				),
			})
		}
	}
	return findings
}

// keyOrderFindings checks that slice keys are strictly ascending within every
// node and across leaves taken in document order.
func keyOrderFindings[T any](set *NodeSet[T], leafKeys []uint64) []domain.Finding {
	findings := make([]domain.Finding, 0)

	for _, name := range sortedKeys(set.Inners) {
		if i := firstUnordered(set.Inners[name].Keys); i >= 0 {
			findings = append(findings, domain.Finding{
				Kind:   domain.FindingKeyOrderViolation,
				Key:    name,
				Detail: fmt.Sprintf("inner node keys not ascending at index %d", i),
			})
		}
	}
	for _, name := range sortedKeys(set.Leaves) {
		if i := firstUnordered(set.Leaves[name].Keys); i >= 0 {
			findings = append(findings, domain.Finding{
				Kind:   domain.FindingKeyOrderViolation,
				Key:    name,
				Detail: fmt.Sprintf("leaf keys not ascending at index %d", i),
			})
		}
	}

	var prev *domain.LeafNode[T]
	for _, name := range leafKeys {
		leaf := set.Leaves[name]
		if len(leaf.Keys) == 0 {
			continue
		}
		if prev != nil && prev.Keys[len(prev.Keys)-1].Cmp(leaf.Keys[0]) >= 0 {
			findings = append(findings, domain.Finding{
				Kind: domain.FindingKeyOrderViolation,
				Key:  name,
				Detail: fmt.Sprintf(
					"first key %s of leaf does not follow last key %s of leaf %d",
					leaf.Keys[0], prev.Keys[len(prev.Keys)-1], prev.Name,
				),
			})
		}
		prev = leaf
	}
	return findings
}

func firstUnordered(keys []domain.SliceKey) int {
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Cmp(keys[i]) >= 0 {
			return i
		}
	}
	return -1
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func uniqueSorted(list []uint64) []uint64 {
	if len(list) == 0 {
		return nil
	}
	sorted := append([]uint64(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	unique := sorted[:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	return unique
}
