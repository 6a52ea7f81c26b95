package domain

import "sort"

type Status uint8

const (
	StatusComplete Status = iota
	StatusPartial
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type FindingKind string

const (
	// FindingStructuralCorruption is raised when a key is referenced by more
	// than one parent. The assembled sequence must not be trusted.
	FindingStructuralCorruption FindingKind = "STRUCTURAL_CORRUPTION"
	// FindingLengthMismatch is raised when a complete reconstruction holds a
	// different number of items than the root metadata declares.
	FindingLengthMismatch FindingKind = "LENGTH_MISMATCH"
	FindingCapacityExceeded  FindingKind = "CAPACITY_EXCEEDED"
	FindingFanOutExceeded    FindingKind = "FAN_OUT_EXCEEDED"
	FindingKeyOrderViolation FindingKind = "KEY_ORDER_VIOLATION"
	FindingStalenessExceeded FindingKind = "STALENESS_EXCEEDED"
)

// IsFatal returns whether a finding of this kind makes the sequence unusable.
func (k FindingKind) IsFatal() bool {
	return k == FindingStructuralCorruption
}

type Finding struct {
	Kind    FindingKind `json:"kind"`
	Key     uint64      `json:"key"`
	Parents []uint64    `json:"parents,omitempty"`
	Detail  string      `json:"detail"`
}

// MissReason tells why a referenced key could not be resolved.
type MissReason string

const (
	MissNotFound         MissReason = "NOT_FOUND"
	MissFetchFailed      MissReason = "FETCH_FAILED"
	MissDecodeFailed     MissReason = "DECODE_FAILED"
	MissIdentityMismatch MissReason = "IDENTITY_MISMATCH"
)

type ReconstructionReport struct {
	TargetCheckpoint Checkpoint `json:"target_checkpoint"`
	ResolvedNodes    int        `json:"resolved_nodes"`
	// MissingKeys is sorted ascending and holds no duplicates.
	MissingKeys      []uint64              `json:"missing_keys"`
	MaxNodeStaleness Checkpoint            `json:"max_node_staleness"`
	Status           Status                `json:"status"`
	Findings         []Finding             `json:"findings,omitempty"`
	Misses           map[uint64]MissReason `json:"misses,omitempty"`
}

func (r ReconstructionReport) IsComplete() bool {
	return r.Status == StatusComplete
}

func (r ReconstructionReport) IsMissing(key uint64) bool {
	i := sort.Search(len(r.MissingKeys), func(i int) bool { return r.MissingKeys[i] >= key })
	return i < len(r.MissingKeys) && r.MissingKeys[i] == key
}

func (r ReconstructionReport) HasFinding(kind FindingKind) bool {
	for _, f := range r.Findings {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func (r ReconstructionReport) FindingsOf(kind FindingKind) []Finding {
	findings := make([]Finding, 0)
	for _, f := range r.Findings {
		if f.Kind == kind {
			findings = append(findings, f)
		}
	}
	return findings
}

// Trusted returns whether the assembled sequence can be used, ie. no fatal
// finding was recorded. A partial result may still be trusted.
func (r ReconstructionReport) Trusted() bool {
	for _, f := range r.Findings {
		if f.Kind.IsFatal() {
			return false
		}
	}
	return true
}
