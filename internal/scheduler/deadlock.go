package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/pingcap-incubator/ddrslog/log"
)

// componentType is the stability classification assigned to a node while
// forming strongly connected components on the auxiliary transpose graph.
type componentType int

const (
	unassigned componentType = iota
	stable
	unstable
)

// snapshotTxn is one node of the resolver's private copy of the wait-for
// graph. It is taken once per pass under the lock manager's mutex and
// never written back to directly; only the final, deadlock-free
// waitedBy/numWaitingFor are copied back.
type snapshotTxn struct {
	id            TxnId
	isComplete    bool
	numWaitingFor int32
	waitedBy      []TxnId
}

// auxNode tracks the resolver's working state for one txn during a single
// pass: its edges on the transpose graph, whether it has been visited by
// the topological-order DFS, and its eventual SCC stability.
type auxNode struct {
	id         TxnId
	isComplete bool
	redges     []TxnId
	visited    bool
	comp       componentType
}

// DeadlockResolverMetrics receives the per-pass and per-deadlock records
// named in §6. A nil recorder is valid; Record calls are then no-ops.
type DeadlockResolverMetrics interface {
	RecordRun(runtimeNs int64, unstableGraphSz, stableGraphSz, deadlocksResolved int)
	RecordDeadlock(numVertices int, edgesRemoved, edgesAdded [][2]TxnId)
}

// DeadlockResolver periodically snapshots the lock manager's wait-for
// graph and deterministically rewrites any stable cycle it finds into a
// path, so that at least one member of the cycle becomes ready (§4.4).
//
// It is safe to mutate the live graph from a stale snapshot only for
// nodes in a *stable* SCC (every member complete): a complete txn will
// never call AcquireLocks again, so its numWaitingFor and the prefix of
// its waitedBy can only be further modified by ReleaseLocks of one of its
// predecessors (a decrement) or by growth of waitedBy's tail (a new
// successor appending). Overwriting the snapshotted prefix and the scalar
// counter therefore can't race with any concurrent mutation.
type DeadlockResolver struct {
	lm       *LockManager
	interval time.Duration
	metrics  DeadlockResolverMetrics

	startOnce sync.Once
	started   chan struct{} // closed once Start's goroutine is actually running
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	// Ready fires once per resolved pass that produced newly-ready
	// transactions, mirroring the original's in-process signal socket.
	// It is buffered so a slow scheduler never blocks the resolver.
	Ready chan struct{}

	// per-pass scratch state, cleared at the start of every Run.
	snapshot  map[TxnId]*snapshotTxn
	auxGraph  map[TxnId]*auxNode
	topoOrder []TxnId
	scc       []TxnId
}

// NewDeadlockResolver creates a resolver over lm that will run every
// interval once started. metrics may be nil.
func NewDeadlockResolver(lm *LockManager, interval time.Duration, metrics DeadlockResolverMetrics) *DeadlockResolver {
	return &DeadlockResolver{
		lm:       lm,
		interval: interval,
		metrics:  metrics,
		started:  make(chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		Ready:    make(chan struct{}, 1),
	}
}

// Start runs the resolver loop in its own goroutine until Stop is called.
// Calling Start more than once has no additional effect.
func (r *DeadlockResolver) Start() {
	r.startOnce.Do(func() {
		go func() {
			close(r.started)
			defer close(r.doneCh)
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			for {
				select {
				case <-r.stopCh:
					return
				case <-ticker.C:
					r.RunOnce()
				}
			}
		}()
	})
}

// Stop signals the loop to exit and waits for it to do so. Calling Stop
// without a prior Start is a no-op: there is no goroutine to wait for.
func (r *DeadlockResolver) Stop() {
	select {
	case <-r.started:
	default:
		return
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// RunOnce performs a single snapshot/resolve/apply-back pass. It is
// exported so tests and callers needing deterministic timing can drive the
// resolver without a ticker.
func (r *DeadlockResolver) RunOnce() {
	start := time.Now()

	r.takeSnapshot()

	r.topoOrder = r.topoOrder[:0]
	r.auxGraph = make(map[TxnId]*auxNode, len(r.snapshot))
	for _, txn := range r.snapshot {
		node := r.getOrCreateAuxNode(txn.id, txn.isComplete)
		if !node.visited {
			node.visited = true
			r.findTopoOrderAndTranspose(txn)
		}
	}
	reverse(r.topoOrder)

	var toBeUpdated []TxnId
	var readyTxns []TxnId
	var deadlocksResolved int
	unstableSz, stableSz := 0, 0

	for _, id := range r.topoOrder {
		node, ok := r.auxGraph[id]
		if !ok {
			log.Fatalf("deadlock resolver: topological order contains unknown txn %d", id)
		}
		if node.comp != unassigned {
			continue
		}

		r.scc = r.scc[:0]
		isStable := r.formStronglyConnectedComponent(node)
		if !isStable {
			unstableSz += len(r.scc)
			for _, member := range r.scc {
				r.auxGraph[member].comp = unstable
			}
			continue
		}

		stableSz += len(r.scc)
		if len(r.scc) > 1 {
			ready, edgesRemoved, edgesAdded := r.resolveDeadlock()
			if ready != 0 {
				readyTxns = append(readyTxns, ready)
			}
			toBeUpdated = append(toBeUpdated, r.scc...)
			deadlocksResolved++
			if r.metrics != nil {
				r.metrics.RecordDeadlock(len(r.scc), edgesRemoved, edgesAdded)
			}
		}
	}

	if len(toBeUpdated) > 0 {
		r.applyBack(toBeUpdated, readyTxns)
	}

	if r.metrics != nil {
		r.metrics.RecordRun(time.Since(start).Nanoseconds(), unstableSz, stableSz, deadlocksResolved)
	}
}

func (r *DeadlockResolver) takeSnapshot() {
	r.lm.muTxnInfo.Lock()
	defer r.lm.muTxnInfo.Unlock()

	r.snapshot = make(map[TxnId]*snapshotTxn, len(r.lm.txnInfo))
	for id, ti := range r.lm.txnInfo {
		waitedBy := make([]TxnId, len(ti.waitedBy))
		copy(waitedBy, ti.waitedBy)
		r.snapshot[id] = &snapshotTxn{
			id:            id,
			isComplete:    ti.isComplete(),
			numWaitingFor: ti.numWaitingFor,
			waitedBy:      waitedBy,
		}
	}
}

func (r *DeadlockResolver) getOrCreateAuxNode(id TxnId, isComplete bool) *auxNode {
	if n, ok := r.auxGraph[id]; ok {
		return n
	}
	n := &auxNode{id: id, isComplete: isComplete}
	r.auxGraph[id] = n
	return n
}

// findTopoOrderAndTranspose walks txn's waitedBy edges to build the
// transpose graph (redges) and appends to topoOrder in post-order; the
// caller reverses topoOrder once the whole snapshot has been walked.
func (r *DeadlockResolver) findTopoOrderAndTranspose(txn *snapshotTxn) {
	for _, successor := range txn.waitedBy {
		if successor == sentinelTxnId {
			continue
		}
		neighbor, ok := r.snapshot[successor]
		if !ok {
			log.Fatalf("deadlock resolver: corrupted graph, unknown txn %d", successor)
		}
		node := r.getOrCreateAuxNode(neighbor.id, neighbor.isComplete)
		node.redges = append(node.redges, txn.id)
		if !node.visited {
			node.visited = true
			r.findTopoOrderAndTranspose(neighbor)
		}
	}
	r.topoOrder = append(r.topoOrder, txn.id)
}

// formStronglyConnectedComponent runs DFS on the transpose graph starting
// at node, collecting every reachable member into r.scc. It returns true
// iff every member is complete and no already-unstable neighbor was
// reached — i.e. the component is safe to resolve from a stale snapshot.
func (r *DeadlockResolver) formStronglyConnectedComponent(node *auxNode) bool {
	r.scc = append(r.scc, node.id)
	node.comp = stable // optimistic; may be downgraded below or by the caller

	isStable := node.isComplete
	for _, id := range node.redges {
		neighbor, ok := r.auxGraph[id]
		if !ok {
			log.Fatalf("deadlock resolver: corrupted auxiliary graph, unknown node %d", id)
		}
		switch neighbor.comp {
		case unassigned:
			if !r.formStronglyConnectedComponent(neighbor) {
				isStable = false
			}
		case unstable:
			isStable = false
		}
	}
	return isStable
}

// resolveDeadlock rewrites a stable SCC of size >= 2 into a deterministic
// path: sort members ascending and, scanning from the largest down,
// redirect each member's first in-SCC successor slot to the next member
// in the path, sentinel-removing every other in-SCC edge. It returns the
// txn that becomes ready (0 if none) and the edges touched, for metrics.
func (r *DeadlockResolver) resolveDeadlock() (TxnId, [][2]TxnId, [][2]TxnId) {
	sort.Slice(r.scc, func(i, j int) bool { return r.scc[i] < r.scc[j] })

	var edgesRemoved, edgesAdded [][2]TxnId

	for i := len(r.scc) - 1; i >= 0; i-- {
		txn := r.snapshot[r.scc[i]]
		if !txn.isComplete {
			log.Fatalf("deadlock resolver: SCC contains incomplete txn %d", txn.id)
		}

		// The top of the new path (the first element processed) adds no
		// new edge; every in-SCC edge it owns is simply removed.
		newEdgeAdded := i == len(r.scc)-1

		for j, successor := range txn.waitedBy {
			if !inSCC(r.scc, successor) {
				continue
			}
			waitingTxn, ok := r.snapshot[successor]
			if !ok {
				log.Fatalf("deadlock resolver: SCC references unknown txn %d", successor)
			}
			if !newEdgeAdded {
				next := r.scc[i+1]
				txn.waitedBy[j] = next
				r.snapshot[next].numWaitingFor++
				edgesAdded = append(edgesAdded, [2]TxnId{txn.id, next})
				newEdgeAdded = true
			} else {
				txn.waitedBy[j] = sentinelTxnId
			}
			waitingTxn.numWaitingFor--
			edgesRemoved = append(edgesRemoved, [2]TxnId{txn.id, successor})
		}

		if !newEdgeAdded {
			log.Fatalf("deadlock resolver: no slot found to add new edge for txn %d", txn.id)
		}
	}

	head := r.snapshot[r.scc[0]]
	if head.isReady() {
		return head.id, edgesRemoved, edgesAdded
	}
	return 0, edgesRemoved, edgesAdded
}

func (t *snapshotTxn) isReady() bool {
	return t.isComplete && t.numWaitingFor == 0
}

func inSCC(scc []TxnId, id TxnId) bool {
	i := sort.Search(len(scc), func(i int) bool { return scc[i] >= id })
	return i < len(scc) && scc[i] == id
}

// applyBack writes the resolved members' prefix of waitedBy and their
// numWaitingFor back into the live table, then publishes readyTxns.
func (r *DeadlockResolver) applyBack(members []TxnId, readyTxns []TxnId) {
	r.lm.muTxnInfo.Lock()
	for _, id := range members {
		snap := r.snapshot[id]
		live, ok := r.lm.txnInfo[id]
		if !ok {
			log.Fatalf("deadlock resolver: resolved txn %d vanished from the live table", id)
		}
		// The live waitedBy may have grown past the snapshot length since
		// the snapshot was taken (new successors only append); only the
		// snapshotted prefix is ever touched.
		copy(live.waitedBy[:len(snap.waitedBy)], snap.waitedBy)
		live.numWaitingFor = snap.numWaitingFor
	}
	r.lm.muTxnInfo.Unlock()

	if len(readyTxns) == 0 {
		return
	}
	r.lm.muReady.Lock()
	r.lm.readyTxns = append(r.lm.readyTxns, readyTxns...)
	r.lm.muReady.Unlock()

	select {
	case r.Ready <- struct{}{}:
	default:
	}
}

func reverse(ids []TxnId) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
