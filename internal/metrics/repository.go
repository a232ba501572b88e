package metrics

import (
	"sync"
	"time"
)

// TransactionEvent names a point in a transaction's life that metrics can
// timestamp. The set mirrors the phases the original tags transactions
// with as they move through the scheduler and worker (module/scheduler_components/worker.h).
type TransactionEvent int

const (
	EnterScheduler TransactionEvent = iota
	Accepted
	LocksAcquired
	Dispatched
	Executed
	Committed
	Aborted
	numTransactionEvents
)

// TxnEventSample is one recorded occurrence of a TransactionEvent.
type TxnEventSample struct {
	TimeNs    int64
	Replica   uint32
	Partition uint32
	TxnID     uint64
	Event     TransactionEvent
}

// ResolverRunSample is one recorded deadlock-resolver pass.
type ResolverRunSample struct {
	TimeNs            int64
	Replica           uint32
	Partition         uint32
	RuntimeNs         int64
	UnstableGraphSz   int
	StableGraphSz     int
	DeadlocksResolved int
}

// DeadlockSample is one recorded resolved deadlock within a pass.
type DeadlockSample struct {
	TimeNs       int64
	Replica      uint32
	Partition    uint32
	NumVertices  int
	EdgesRemoved [][2]uint64
	EdgesAdded   [][2]uint64
}

// Repository accumulates samples for one thread (scheduler, worker, or
// resolver goroutine), the way the original keeps a thread_local
// repository; callers merge them on read. Every method takes an internal
// mutex, so concurrent calls on one Repository are also safe.
type Repository struct {
	mu sync.Mutex

	replica, partition uint32

	eventSampler *Sampler
	events       []TxnEventSample

	runSampler *Sampler
	runs       []ResolverRunSample

	deadlockSampler *Sampler
	deadlocks       []DeadlockSample
}

// NewRepository creates a repository tagging every sample with replica
// and partition, sampling at sampleRate out of 256.
func NewRepository(sampleRate int, replica, partition uint32) *Repository {
	return &Repository{
		replica:         replica,
		partition:       partition,
		eventSampler:    NewSampler(sampleRate, int(numTransactionEvents)),
		runSampler:      NewSampler(sampleRate, 1),
		deadlockSampler: NewSampler(sampleRate, 1),
	}
}

// RecordTxnEvent timestamps event for txnID if the sampler admits it.
func (r *Repository) RecordTxnEvent(txnID uint64, event TransactionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.eventSampler.IsChosen(int(event)) {
		return
	}
	r.events = append(r.events, TxnEventSample{
		TimeNs:    time.Now().UnixNano(),
		Replica:   r.replica,
		Partition: r.partition,
		TxnID:     txnID,
		Event:     event,
	})
}

// RecordRun implements scheduler.DeadlockResolverMetrics.
func (r *Repository) RecordRun(runtimeNs int64, unstableGraphSz, stableGraphSz, deadlocksResolved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.runSampler.IsChosen(0) {
		return
	}
	r.runs = append(r.runs, ResolverRunSample{
		TimeNs:            time.Now().UnixNano(),
		Replica:           r.replica,
		Partition:         r.partition,
		RuntimeNs:         runtimeNs,
		UnstableGraphSz:   unstableGraphSz,
		StableGraphSz:     stableGraphSz,
		DeadlocksResolved: deadlocksResolved,
	})
	resolverRunDuration.Observe(float64(runtimeNs) / 1e6)
	deadlocksResolvedTotal.Add(float64(deadlocksResolved))
}

// RecordDeadlock implements scheduler.DeadlockResolverMetrics.
func (r *Repository) RecordDeadlock(numVertices int, edgesRemoved, edgesAdded [][2]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deadlockSampler.IsChosen(0) {
		return
	}
	r.deadlocks = append(r.deadlocks, DeadlockSample{
		TimeNs:       time.Now().UnixNano(),
		Replica:      r.replica,
		Partition:    r.partition,
		NumVertices:  numVertices,
		EdgesRemoved: edgesRemoved,
		EdgesAdded:   edgesAdded,
	})
	deadlockSizeHistogram.Observe(float64(numVertices))
}

// Reset returns and clears every sample collected so far.
func (r *Repository) Reset() ([]TxnEventSample, []ResolverRunSample, []DeadlockSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events, runs, deadlocks := r.events, r.runs, r.deadlocks
	r.events, r.runs, r.deadlocks = nil, nil, nil
	return events, runs, deadlocks
}
