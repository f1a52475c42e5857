// Package worker implements the async worker of spec.md §4.6 (C6): a
// single dedicated goroutine owning one MPMC descriptor queue and a
// reference to one fabric.Array, draining batches, coalescing them by
// (idx, rel) into contiguous groups, and batch-committing the results.
//
// Grounded on original_source/core/headers/APCCpuWorker.hpp for the
// drain/sort/partition/compute/commit loop shape, and on
// joeycumines-go-utilpkg/eventloop's CAS-gated running-state idiom
// (loop.go/state.go) for Start/Stop idempotency.
package worker

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
	"github.com/Nirab123456/LCIM-BitTheorium/queue/mpmcdesc"
)

// Layout selects the worker's commit-phase storage strategy.
type Layout uint8

const (
	// LayoutAoS commits each cell with a single atomic store (spec.md
	// §4.6 step 5c).
	LayoutAoS Layout = iota
	// LayoutSoA splits the compute phase's value/metadata into separate
	// scratch slices before committing, matching the source's vectorizable
	// batch-compute path (worker/soa.go).
	LayoutSoA
)

const (
	drainMax           = 1024
	idleSleep          = time.Millisecond
	streamingThreshold = 512 // spec.md §4.6 step 5c: commit sets >= 512 are logged as streaming commits
)

// state values for the CAS-gated run flag, mirroring eventloop's
// StateAwake/StateRunning/StateTerminated shape but collapsed to the two
// states this worker actually needs.
const (
	stateStopped uint32 = iota
	stateRunning
)

// Worker is the whandle of spec.md §6: one dedicated goroutine draining a
// bounded MPMC queue against one fabric.Array.
type Worker struct {
	arr    *fabric.Array
	q      *mpmcdesc.Queue
	layout Layout
	logger zerolog.Logger

	maintenanceInterval time.Duration

	state   uint32
	batchID uint64

	group  *errgroup.Group
	cancel context.CancelFunc
}

// options accumulates Option values before the queue (which needs the
// high-water callback at construction) is built.
type options struct {
	layout              Layout
	logger              zerolog.Logger
	highWater           mpmcdesc.HighWaterFunc
	maintenanceInterval time.Duration
}

// Option configures a Worker at construction.
type Option func(*options)

// WithLayout selects the commit-phase storage strategy (default LayoutAoS).
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithLogger overrides the worker's logger (default the zerolog global).
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHighWater installs a queue high-water callback (spec.md §4.5).
func WithHighWater(cb mpmcdesc.HighWaterFunc) Option {
	return func(o *options) { o.highWater = cb }
}

// WithMaintenanceInterval runs fabric.Array.RecomputeRelationIndex on a
// second goroutine, supervised alongside the main loop, every interval
// (spec.md §9: "periodic recomputation is an optional maintenance hook,
// not a correctness requirement"). Zero (the default) disables it; arr
// must have had InitEpoch called for the hook to do anything.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(o *options) { o.maintenanceInterval = interval }
}

// New constructs a Worker bound to arr, with a queue of the given capacity
// (rounded to the next power of two by mpmcdesc.New).
func New(arr *fabric.Array, queueCapacity int, opts ...Option) *Worker {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker{
		arr:                 arr,
		q:                   mpmcdesc.New(queueCapacity, o.highWater),
		layout:              o.layout,
		logger:              o.logger,
		maintenanceInterval: o.maintenanceInterval,
	}
}

// Submit attempts a non-blocking enqueue. Returns false if the queue is
// full (spec.md §7 "Queue full": surfaced, caller decides).
func (w *Worker) Submit(d descriptor.Descriptor) bool {
	return w.q.Push(d)
}

// SubmitBlocking spins with short sleeps until Submit succeeds or timeout
// elapses (negative means indefinite).
func (w *Worker) SubmitBlocking(d descriptor.Descriptor, timeout time.Duration) bool {
	return w.q.PushBlocking(d, timeout)
}

// Start launches the worker's dedicated goroutine, plus the relation-index
// maintenance goroutine if WithMaintenanceInterval was set, both supervised
// by a single errgroup.Group and both reading one shared context. Neither
// goroutine returns an error or recovers a panic; they exit only when Stop
// cancels the shared context, and Stop then joins both, so no maintenance
// loop is left orphaned. Idempotent: a
// second call while already running is a no-op, per spec.md §4.6's
// flag-gated CAS.
func (w *Worker) Start() {
	if !atomic.CompareAndSwapUint32(&w.state, stateStopped, stateRunning) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	w.group = g

	g.Go(func() error {
		w.run(gctx)
		return nil
	})
	if w.maintenanceInterval > 0 {
		g.Go(func() error {
			w.maintain(gctx)
			return nil
		})
	}
}

// Stop cancels the shared context and waits for both supervised goroutines
// to exit. Any descriptors still queued at that point are discarded, per
// spec.md §5 ("Cancellation and timeouts"). Idempotent.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.state, stateRunning, stateStopped) {
		return
	}
	w.cancel()
	_ = w.group.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for ctx.Err() == nil {
		batch := w.q.DrainBatch(drainMax)
		if len(batch) == 0 {
			time.Sleep(idleSleep)
			continue
		}
		id := atomic.AddUint64(&w.batchID, 1)
		w.processBatch(id, batch)
	}
}

// maintain periodically recomputes the relation index for dirty regions
// (spec.md §9). It never touches the descriptor queue or the commit path,
// so it cannot itself introduce lock-free hot-path contention beyond the
// per-region atomic loads RecomputeRelationIndex already performs.
func (w *Worker) maintain(ctx context.Context) {
	ticker := time.NewTicker(w.maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.arr.RecomputeRelationIndex()
		}
	}
}

// processBatch realizes spec.md §4.6 steps 2-6: stable-sort by (idx, rel,
// op), partition into contiguous-index groups sharing a relation, then
// compute and commit each group.
func (w *Worker) processBatch(batchID uint64, batch []descriptor.Descriptor) {
	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if a.Idx != b.Idx {
			return a.Idx < b.Idx
		}
		if a.Rel != b.Rel {
			return a.Rel < b.Rel
		}
		return a.Op < b.Op
	})

	for i := range batch {
		batch[i].BatchID = batchID
	}

	w.logger.Debug().Uint64("batch_id", batchID).Int("size", len(batch)).Msg("drained batch")

	for _, group := range partitionGroups(batch) {
		w.processGroup(batchID, group)
	}
}

// group is a maximal sub-range of batch sharing a relation with
// contiguous indices, per spec.md §4.6 step 4.
type group []descriptor.Descriptor

func partitionGroups(batch []descriptor.Descriptor) []group {
	var groups []group
	start := 0
	for i := 1; i <= len(batch); i++ {
		if i < len(batch) &&
			batch[i].Rel == batch[start].Rel &&
			batch[i].Idx == batch[i-1].Idx+1 {
			continue
		}
		groups = append(groups, group(batch[start:i]))
		start = i
	}
	return groups
}

// processGroup drives one coalesced group through reserve (optional),
// compute, and commit, per spec.md §4.6 step 5.
func (w *Worker) processGroup(batchID uint64, g group) {
	if len(g) == 0 {
		return
	}

	for i := range g {
		if g[i].Has(descriptor.FlagReserveBeforeCompute) {
			old := w.arr.Load(g[i].Idx)
			// Reservation misses are tolerated (spec.md §7): the unconditional
			// commit below still publishes the final value regardless.
			w.arr.Reserve(g[i].Idx, old, uint16(batchID), g[i].Rel)
		}
	}

	plan := w.compute(g)
	w.commit(batchID, plan)

	// partitionGroups groups purely on (Idx-contiguity, Rel): a group may
	// legally mix OpEpochBump with other ops, so every descriptor is checked
	// individually rather than just g[0].
	for _, d := range g {
		if d.Op != descriptor.OpEpochBump {
			continue
		}
		region := epochRegion(d)
		if w.arr.BumpRegion(region) {
			w.logger.Debug().Int("region", region).Msg("epoch bumped")
		}
	}
}

// commitEntry is one (index, new word, skip-notify) pair produced by the
// compute phase, ready for the commit phase.
type commitEntry struct {
	idx        uint32
	word       uint64
	skipNotify bool
}

// compute realizes spec.md §4.6 step 5b for SET and APPLY_GRAD; EPOCH_BUMP
// descriptors carry no cell mutation and are handled by processGroup after
// commit. computeAoS/computeSoA each skip EPOCH_BUMP per descriptor rather
// than assuming a group is uniform in Op, since partitionGroups only
// guarantees contiguous Idx and matching Rel. For LayoutSoA groups this
// delegates to the split value/metadata scratch path in soa.go; the
// commit-pair shape is identical either way.
func (w *Worker) compute(g group) []commitEntry {
	if w.layout == LayoutSoA {
		return computeSoA(w.arr, g)
	}
	return computeAoS(w.arr, g)
}

func computeAoS(arr *fabric.Array, g group) []commitEntry {
	out := make([]commitEntry, 0, len(g))
	var grad []int32
	var gradOK bool
	if g[0].Op == descriptor.OpApplyGrad {
		grad, gradOK = descriptor.LookupGradient(g[0].Arg)
	}

	for i, d := range g {
		if d.Op == descriptor.OpEpochBump {
			continue
		}
		old := arr.Load(d.Idx)
		var value uint32
		switch d.Op {
		case descriptor.OpApplyGrad:
			if !gradOK || i >= len(grad) {
				continue
			}
			value = uint32(grad[i])
		case descriptor.OpAdd:
			value = cell.UnpackValue32(old) + uint32(d.Arg)
		default: // OpSet, OpBatchSet resolve a new word directly from Arg
			value = uint32(d.Arg)
		}

		word := publishedWord(arr.Mode(), old, value, d.StateHint, d.Rel, d.BatchID)
		out = append(out, commitEntry{idx: d.Idx, word: word, skipNotify: d.Has(descriptor.FlagSkipNotify)})
	}
	return out
}

// publishedWord builds the final committed word for a compute result,
// advancing the clock to even (committed) parity per invariant 1. Under
// ModeValue32, the committed clock is stamped from the batch's low 16 bits
// rather than incremented from old, per spec.md §4.6: "Batch IDs occupy the
// low 16 bits of the cell's clk16 on commit under MODE_VALUE32, giving
// readers a coarse ordering signal." ModeClk48 has no such stamping — its
// 48-bit clock is wide enough to just increment, per spec.md §4.4.
func publishedWord(mode cell.Mode, old uint64, value uint32, stateHint uint8, rel uint8, batchID uint64) uint64 {
	st := cell.State(stateHint)
	switch mode {
	case cell.ModeClk48:
		clk := cell.UnpackClk48(old) + 2
		if !cell.IsCommittedClk48(clk) {
			clk++
		}
		return cell.PackClk48(clk, st, rel)
	default:
		clk16 := uint16(batchID) &^ 1 // force even: committed clock parity (invariant 1)
		return cell.PackValue32(value, clk16, st, rel)
	}
}

// commit realizes spec.md §4.6 step 5c. Go exposes no non-temporal store
// intrinsic, so commit sets of 512 or more are only logged as streaming
// commits; every set, whatever its size, is committed with the same
// per-cell Store, which notifies waiters (StoreSilent, with no notify, for
// entries whose descriptor carries FlagSkipNotify).
func (w *Worker) commit(batchID uint64, plan []commitEntry) {
	if len(plan) == 0 {
		return
	}
	streaming := len(plan) >= streamingThreshold
	if streaming {
		w.logger.Debug().Uint64("batch_id", batchID).Int("count", len(plan)).Msg("streaming commit")
	}
	for _, e := range plan {
		if e.skipNotify {
			w.arr.StoreSilent(e.idx, e.word)
			continue
		}
		w.arr.Store(e.idx, e.word)
	}
}

// epochRegion extracts the target region index an EPOCH_BUMP descriptor
// carries in Arg (spec.md §4.8).
func epochRegion(d descriptor.Descriptor) int { return int(d.Arg) }
