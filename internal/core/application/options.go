package application

import (
	"fmt"

	"github.com/arkade-os/bvsnap/internal/core/domain"
)

const (
	defaultConcurrency = 8
	defaultBatchSize   = 50
)

// CorruptionPolicy tells the reconstructor what to do when a key is
// referenced by more than one parent.
type CorruptionPolicy uint8

const (
	// CorruptionPolicyReject makes Reconstruct fail with STRUCTURAL_CORRUPTION.
	CorruptionPolicyReject CorruptionPolicy = iota
	// CorruptionPolicyAnnotate returns the best-effort sequence and leaves the
	// finding in the report for the caller to inspect.
	CorruptionPolicyAnnotate
)

func (p CorruptionPolicy) String() string {
	switch p {
	case CorruptionPolicyReject:
		return "reject"
	case CorruptionPolicyAnnotate:
		return "annotate"
	default:
		return "unknown"
	}
}

func ParseCorruptionPolicy(s string) (CorruptionPolicy, error) {
	switch s {
	case "", "reject":
		return CorruptionPolicyReject, nil
	case "annotate":
		return CorruptionPolicyAnnotate, nil
	default:
		return 0, fmt.Errorf("unknown corruption policy %s", s)
	}
}

type Options struct {
	// Concurrency bounds the number of in-flight store lookups per level.
	Concurrency int
	// BatchSize is the number of ids per GetMany call when the store supports
	// batching, 0 disables batching.
	BatchSize int
	// MaxNodes bounds the number of nodes fetched by a single reconstruction,
	// 0 means unbounded.
	MaxNodes int
	// MaxStaleness, if not 0, is the max tolerated node staleness.
	MaxStaleness     domain.Checkpoint
	CorruptionPolicy CorruptionPolicy
	Locator          NodeLocator
}

type Option func(*Options)

func WithConcurrency(concurrency int) Option {
	return func(o *Options) {
		o.Concurrency = concurrency
	}
}

func WithBatchSize(size int) Option {
	return func(o *Options) {
		o.BatchSize = size
	}
}

func WithMaxNodes(maxNodes int) Option {
	return func(o *Options) {
		o.MaxNodes = maxNodes
	}
}

func WithMaxStaleness(staleness domain.Checkpoint) Option {
	return func(o *Options) {
		o.MaxStaleness = staleness
	}
}

func WithCorruptionPolicy(policy CorruptionPolicy) Option {
	return func(o *Options) {
		o.CorruptionPolicy = policy
	}
}

func WithNodeLocator(locator NodeLocator) Option {
	return func(o *Options) {
		o.Locator = locator
	}
}

func newOptions(opts ...Option) Options {
	o := Options{
		Concurrency:      defaultConcurrency,
		BatchSize:        defaultBatchSize,
		CorruptionPolicy: CorruptionPolicyReject,
		Locator:          SuiDynamicFieldLocator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.BatchSize < 0 {
		o.BatchSize = 0
	}
	if o.Locator == nil {
		o.Locator = SuiDynamicFieldLocator{}
	}
	return o
}
