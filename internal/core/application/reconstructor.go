package application

import (
	"context"
	"fmt"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	bverrors "github.com/arkade-os/bvsnap/pkg/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/arkade-os/bvsnap"

// Result is the outcome of a reconstruction: the best-effort sequence, the
// leaves it was assembled from (in document order) and the diagnostic report.
type Result[T any] struct {
	Handle domain.ObjectID
	Meta   domain.RootMeta
	Items  []T
	Leaves []*domain.LeafNode[T]
	Report domain.ReconstructionReport
}

type Reconstructor[T any] interface {
	// Reconstruct materializes the BigVector identified by handle as it was at
	// the given checkpoint. Node level failures are recorded in the report,
	// only root level failures, exhausted resources or, depending on the
	// corruption policy, a structurally corrupted tree make the call fail.
	Reconstruct(
		ctx context.Context, handle domain.ObjectID, target domain.Checkpoint,
	) (*Result[T], error)
}

type reconstructor[T any] struct {
	walker  *treeWalker[T]
	opts    Options
	metrics *reconstructionMetrics
	tracer  trace.Tracer
}

func NewReconstructor[T any](
	store ports.VersionedObjectStore, decodeItem ItemDecoder[T], opts ...Option,
) (Reconstructor[T], error) {
	if store == nil {
		return nil, fmt.Errorf("missing object store")
	}
	if decodeItem == nil {
		return nil, fmt.Errorf("missing item decoder")
	}

	options := newOptions(opts...)
	metrics, err := newReconstructionMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %s", err)
	}

	return &reconstructor[T]{
		walker:  newTreeWalker(store, NewNodeDecoder(decodeItem), options),
		opts:    options,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
	}, nil
}

// Reconstruct is a one-shot shortcut for NewReconstructor + Reconstruct.
func Reconstruct[T any](
	ctx context.Context, store ports.VersionedObjectStore, handle domain.ObjectID,
	target domain.Checkpoint, decodeItem ItemDecoder[T], opts ...Option,
) (*Result[T], error) {
	svc, err := NewReconstructor(store, decodeItem, opts...)
	if err != nil {
		return nil, err
	}
	return svc.Reconstruct(ctx, handle, target)
}

func (r *reconstructor[T]) Reconstruct(
	ctx context.Context, handle domain.ObjectID, target domain.Checkpoint,
) (*Result[T], error) {
	if handle.IsZero() {
		return nil, bverrors.INVALID_REQUEST.New("missing bigvector handle").
			WithMetadata(bverrors.InvalidRequestMetadata{Field: "handle", Value: handle.String()})
	}

	requestID := uuid.NewString()
	logger := log.WithFields(log.Fields{
		"request_id": requestID,
		"handle":     handle.String(),
		"checkpoint": uint64(target),
	})

	ctx, span := r.tracer.Start(ctx, "bvsnap.reconstruct", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.String("handle", handle.String()),
		attribute.Int64("checkpoint", int64(target)),
	))
	defer span.End()

	start := time.Now()
	logger.Debug("reconstructing bigvector")

	set, err := r.walker.walk(ctx, handle, target)
	if err != nil {
		r.metrics.recordFailure(ctx, err, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if typedErr, ok := err.(bverrors.Error); ok {
			typedErr.Log().WithField("request_id", requestID).Warn("reconstruction failed")
		} else {
			logger.WithError(err).Warn("reconstruction failed")
		}
		return nil, err
	}

	report := checkConsistency(set, r.opts.MaxStaleness)
	items, leaves := assemble(set)

	r.metrics.recordReport(ctx, report, set.Fetches, time.Since(start))
	span.SetAttributes(
		attribute.String("status", report.Status.String()),
		attribute.Int("resolved_nodes", report.ResolvedNodes),
		attribute.Int("missing_keys", len(report.MissingKeys)),
		attribute.Int64("max_node_staleness", int64(report.MaxNodeStaleness)),
	)

	logger = logger.WithFields(log.Fields{
		"status":         report.Status.String(),
		"items":          len(items),
		"resolved_nodes": report.ResolvedNodes,
		"missing_keys":   len(report.MissingKeys),
		"staleness":      uint64(report.MaxNodeStaleness),
		"findings":       len(report.Findings),
		"elapsed":        time.Since(start).String(),
	})

	if !report.Trusted() && r.opts.CorruptionPolicy == CorruptionPolicyReject {
		corrupted := make([]uint64, 0)
		for _, f := range report.FindingsOf(domain.FindingStructuralCorruption) {
			corrupted = append(corrupted, f.Key)
		}
		err := bverrors.STRUCTURAL_CORRUPTION.New(
			"bigvector %s at checkpoint %d has keys referenced more than once: %v",
			handle, target, corrupted,
		).WithMetadata(bverrors.StructuralCorruptionMetadata{
			Handle:     handle.String(),
			Checkpoint: uint64(target),
			Keys:       corrupted,
		})
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("rejected structurally corrupted bigvector")
		return nil, err
	}

	if report.IsComplete() && len(report.Findings) == 0 {
		logger.Debug("reconstructed bigvector")
	} else {
		logger.Info("reconstructed bigvector with findings")
	}

	return &Result[T]{
		Handle: handle,
		Meta:   set.Meta,
		Items:  items,
		Leaves: leaves,
		Report: report,
	}, nil
}

type reconstructionMetrics struct {
	reconstructions metric.Int64Counter
	missingKeys     metric.Int64Counter
	nodeFetches     metric.Int64Counter
	duration        metric.Float64Histogram
	staleness       metric.Int64Histogram
}

func newReconstructionMetrics() (*reconstructionMetrics, error) {
	meter := otel.Meter(instrumentationName)

	reconstructions, err := meter.Int64Counter(
		"bvsnap.reconstructions",
		metric.WithDescription("Number of reconstructions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	missingKeys, err := meter.Int64Counter(
		"bvsnap.missing_keys",
		metric.WithDescription("Number of keys that could not be resolved"),
	)
	if err != nil {
		return nil, err
	}
	nodeFetches, err := meter.Int64Counter(
		"bvsnap.node_fetches",
		metric.WithDescription("Number of node lookups issued to the object store"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"bvsnap.reconstruction.duration",
		metric.WithDescription("Duration of a reconstruction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	staleness, err := meter.Int64Histogram(
		"bvsnap.node_staleness",
		metric.WithDescription("Max node staleness of a reconstruction, in checkpoints"),
	)
	if err != nil {
		return nil, err
	}

	return &reconstructionMetrics{
		reconstructions, missingKeys, nodeFetches, duration, staleness,
	}, nil
}

func (m *reconstructionMetrics) recordReport(
	ctx context.Context, report domain.ReconstructionReport, fetches int,
	elapsed time.Duration,
) {
	outcome := report.Status.String()
	if !report.Trusted() {
		outcome = "corrupted"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.reconstructions.Add(ctx, 1, attrs)
	m.missingKeys.Add(ctx, int64(len(report.MissingKeys)))
	m.nodeFetches.Add(ctx, int64(fetches))
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.staleness.Record(ctx, int64(report.MaxNodeStaleness))
}

func (m *reconstructionMetrics) recordFailure(
	ctx context.Context, err error, elapsed time.Duration,
) {
	outcome := "failed"
	if typedErr, ok := err.(bverrors.Error); ok {
		outcome = typedErr.CodeName()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.reconstructions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
