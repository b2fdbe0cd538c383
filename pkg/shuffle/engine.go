// Package shuffle implements the pipelined all-to-all shuffle engine: every
// worker splits its local batches into per-destination row selections,
// ships the non-local selections over the collective transport while
// receiving from every other worker concurrently, and returns everything
// addressed to it as one record. Workers may bring differing numbers of
// local batches; the expected receive count is derived from an allreduce
// over each worker's local batch count rather than assumed fixed.
package shuffle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/arrowshuffle/shuffle/pkg/codec"
	"github.com/arrowshuffle/shuffle/pkg/collective"
	"github.com/arrowshuffle/shuffle/pkg/metrics"
	"github.com/arrowshuffle/shuffle/pkg/queue"
	"github.com/arrowshuffle/shuffle/pkg/rowselect"
	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// archiveTag is the point-to-point tag every shuffle archive travels under.
// It must not collide with collective.TagSchema/TagAllreduce/TagBarrier.
const archiveTag = collective.TagApplicationBase

// OffsetLists maps a destination worker ID to the row indices, within the
// batch being shuffled, destined for that worker. OffsetLists[id] (the
// caller's own worker ID) never crosses the network — Shuffle routes it via
// direct in-memory selection.
type OffsetLists [][]int64

// Engine runs shuffle rounds against one collective.Group.
type Engine struct {
	group  collective.Group
	alloc  memory.Allocator
	budget ThreadBudget
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithThreadBudget overrides the serializer/deserializer pool sizing that
// would otherwise be derived from runtime.GOMAXPROCS.
func WithThreadBudget(b ThreadBudget) Option {
	return func(e *Engine) { e.budget = b }
}

// New builds an Engine bound to group, allocating decoded records with
// alloc.
func New(group collective.Group, alloc memory.Allocator, opts ...Option) *Engine {
	e := &Engine{
		group:  group,
		alloc:  alloc,
		budget: NewThreadBudget(group.LocalPeerCount()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Group returns the collective group this engine was built with, so
// callers (e.g. the partitioned drivers) can query WorkerCount() without
// threading it through separately.
func (e *Engine) Group() collective.Group {
	return e.group
}

type serializedFragment struct {
	dst  int
	data []byte
}

// Shuffle runs one round of the pipeline over a worker's local batches.
// batches and offsets must have the same length M; offsets[b] gives, per
// destination worker, the row indices within batches[b] to route there.
// Workers are free to bring differing values of M, including zero — schema
// is passed explicitly rather than derived from a local batch so a worker
// with no local rows this round can still decode what it receives.
//
// The returned record is owned by the caller and must be Release()d. It
// blocks until every worker in the group has entered and left the round
// (the pipeline ends with a barrier), so it is safe to call Shuffle again
// immediately afterward with a new set of batches.
func (e *Engine) Shuffle(ctx context.Context, schema *arrow.Schema, batches []arrow.Record, offsets []OffsetLists) (arrow.Record, error) {
	start := time.Now()
	id := e.group.WorkerID()
	n := e.group.WorkerCount()
	workerLabel := strconv.Itoa(id)

	roundID := uuid.NewString()
	ctx = collective.WithRoundID(ctx, roundID)
	log := slog.Default().With("component", "shuffle", "worker_id", id, "round_id", roundID)

	if len(batches) != len(offsets) {
		return nil, fmt.Errorf("shuffle: %d batches but %d offset lists", len(batches), len(offsets))
	}
	for b, offs := range offsets {
		if len(offs) != n {
			return nil, fmt.Errorf("shuffle: batch %d offsets has %d entries, want %d (worker count)", b, len(offs), n)
		}
	}

	var localRows int64
	for _, batch := range batches {
		localRows += batch.NumRows()
	}
	log.Debug("shuffle round starting", "batches", len(batches), "rows", localRows)

	destinations := make([]int, 0, n-1)
	for dst := 0; dst < n; dst++ {
		if dst != id {
			destinations = append(destinations, dst)
		}
	}
	for _, offs := range offsets {
		for dst := 0; dst < n; dst++ {
			metrics.RowsRouted.WithLabelValues(workerLabel, strconv.Itoa(dst)).Add(float64(len(offs[dst])))
		}
	}

	// Every peer sends exactly M*(N-1) archives (one per local batch, per
	// remote destination, even when the offset list for that destination is
	// empty). The receive count is therefore the grand total of M across the
	// group minus this worker's own M, computed once via allreduce so the
	// receiver knows when to stop probing without an end-of-stream sentinel.
	localM := int64(len(batches))
	mSums, err := e.group.AllreduceSum(ctx, []int64{localM})
	if err != nil {
		return nil, fmt.Errorf("%w: batch count allreduce: %v", shuffleerr.ErrTransportFailed, err)
	}
	archivesWanted := int(mSums[0] - localM)
	if archivesWanted < 0 {
		archivesWanted = 0
	}

	g, gctx := errgroup.WithContext(ctx)

	sendQ := queue.New[serializedFragment](2*e.budget.Serialize, e.budget.Serialize)
	var nextBatch atomic.Int64
	for w := 0; w < e.budget.Serialize; w++ {
		g.Go(func() error {
			defer sendQ.Done()
			for {
				b := nextBatch.Add(1) - 1
				if int(b) >= len(batches) {
					return nil
				}
				for _, dst := range destinations {
					data, err := codec.EncodeRows(batches[b], offsets[b][dst])
					if err != nil {
						return fmt.Errorf("shuffle: encode rows for batch %d, worker %d: %w", b, dst, err)
					}
					if err := sendQ.PushContext(gctx, serializedFragment{dst: dst, data: data}); err != nil {
						return err
					}
				}
			}
		})
	}

	g.Go(func() error {
		for frag := range sendQ.Items() {
			if err := e.group.Send(gctx, frag.dst, archiveTag, frag.data); err != nil {
				return fmt.Errorf("%w: send archive to worker %d: %v", shuffleerr.ErrTransportFailed, frag.dst, err)
			}
			metrics.ArchivesSent.WithLabelValues(workerLabel).Inc()
		}
		return nil
	})

	loopbacks := make([]arrow.Record, 0, len(batches))
	for b := range batches {
		rec, err := rowselect.Select(e.alloc, batches[b], offsets[b][id])
		if err != nil {
			for _, prior := range loopbacks {
				prior.Release()
			}
			return nil, fmt.Errorf("shuffle: loopback select for batch %d: %w", b, err)
		}
		loopbacks = append(loopbacks, rec)
	}

	recvQ := queue.New[[]byte](2*e.budget.Deserialize, 1)
	g.Go(func() error {
		defer recvQ.Done()
		remaining := archivesWanted
		for remaining > 0 {
			src, tag, err := e.group.Probe(gctx)
			if err != nil {
				return fmt.Errorf("%w: probe: %v", shuffleerr.ErrTransportFailed, err)
			}
			if tag != archiveTag {
				// Probe only ever surfaces application-lane traffic (see
				// collective.router) — collective control messages
				// (schema/allreduce/barrier) live on a separate lane this
				// loop never touches, so consuming this here can't steal a
				// message a concurrent Barrier or AllreduceSum call is
				// waiting on. Nothing besides archiveTag is in use today;
				// this just keeps the loop correct if that changes.
				if _, err := e.group.Recv(gctx, src, tag); err != nil {
					return fmt.Errorf("%w: drain stray message from worker %d: %v", shuffleerr.ErrTransportFailed, src, err)
				}
				continue
			}
			data, err := e.group.Recv(gctx, src, tag)
			if err != nil {
				return fmt.Errorf("%w: recv archive from worker %d: %v", shuffleerr.ErrTransportFailed, src, err)
			}
			metrics.ArchivesReceived.WithLabelValues(workerLabel).Inc()
			if err := recvQ.PushContext(gctx, data); err != nil {
				return err
			}
			remaining--
		}
		return nil
	})

	decodedQ := queue.New[arrow.Record](2*e.budget.Deserialize, e.budget.Deserialize)
	for w := 0; w < e.budget.Deserialize; w++ {
		g.Go(func() error {
			defer decodedQ.Done()
			for data := range recvQ.Items() {
				rec, err := codec.DecodeRows(data, schema, e.alloc)
				if err != nil {
					return err
				}
				if err := decodedQ.PushContext(gctx, rec); err != nil {
					rec.Release()
					return err
				}
			}
			return nil
		})
	}

	received := make([]arrow.Record, 0, archivesWanted+len(loopbacks))
	received = append(received, loopbacks...)
	for rec := range decodedQ.Items() {
		received = append(received, rec)
	}

	releaseAll := func() {
		for _, rec := range received {
			rec.Release()
		}
	}

	if err := g.Wait(); err != nil {
		releaseAll()
		return nil, err
	}

	if err := e.group.Barrier(ctx); err != nil {
		releaseAll()
		return nil, fmt.Errorf("%w: post-shuffle barrier: %v", shuffleerr.ErrTransportFailed, err)
	}

	out, err := concatRecords(e.alloc, schema, received)
	releaseAll()
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	observer := metrics.ShuffleLatency.WithLabelValues(workerLabel)
	if exemplarObserver, ok := observer.(prometheus.ExemplarObserver); ok {
		exemplarObserver.ObserveWithExemplar(elapsed, prometheus.Labels{"round_id": roundID})
	} else {
		observer.Observe(elapsed)
	}
	log.Debug("shuffle round complete", "rows_owned", out.NumRows(), "elapsed_seconds", elapsed)
	return out, nil
}
