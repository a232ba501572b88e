package scheduler

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/pingcap-incubator/ddrslog/log"
)

const numLockTableShards = 16

// lockTableShard guards one slice of the key-replica space. The lock table
// is written only during AcquireLocks; sharding it lets multiple scheduler
// threads call AcquireLocks concurrently as long as each key-replica is
// only ever touched by one of them at a time (§5).
type lockTableShard struct {
	mu    sync.Mutex
	tails map[KeyReplica]*LockQueueTail
}

func shardIndex(keyReplica KeyReplica) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(keyReplica))
	return int(h.Sum32() % numLockTableShards)
}

// LockManager is the DDR lock manager (§4.3): it maintains the
// transaction wait-for graph, accepts transactions incrementally via
// AcceptTransaction/AcquireLocks (which may arrive in either order for the
// same TxnId), and reports newly-ready transactions on ReleaseLocks.
type LockManager struct {
	// muTxnInfo guards txnInfo, matching mut_txn_info_ in the original:
	// held by Accept, AcquireLocks, ReleaseLocks, and both phases of the
	// deadlock resolver's pass. Critical sections here are always short —
	// never held across a worker call.
	muTxnInfo sync.Mutex
	txnInfo   map[TxnId]*txnInfo

	shards [numLockTableShards]lockTableShard

	// muReady guards readyTxns, matching mut_ready_txns_. It is written by
	// the deadlock resolver (ReleaseLocks returns its ready list directly
	// to its caller instead) and drained by GetReadyTxns.
	muReady   sync.Mutex
	readyTxns []TxnId
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	lm := &LockManager{
		txnInfo: make(map[TxnId]*txnInfo),
	}
	for i := range lm.shards {
		lm.shards[i].tails = make(map[KeyReplica]*LockQueueTail)
	}
	return lm
}

// getOrCreateTxnInfo implements the try-emplace-on-arrival rule: whichever
// of Accept/AcquireLocks arrives first for a TxnId constructs the record.
// Callers must hold muTxnInfo.
func (lm *LockManager) getOrCreateTxnInfo(id TxnId) *txnInfo {
	if ti, ok := lm.txnInfo[id]; ok {
		return ti
	}
	ti := newTxnInfo(id)
	lm.txnInfo[id] = ti
	return ti
}

// AcceptTransaction registers the number of lock-only fragments expected
// for h and returns whether the transaction is already ready (normally
// only possible once AcquireLocks has also run for every fragment).
func (lm *LockManager) AcceptTransaction(h *Txn) bool {
	if len(h.KeysInPartition) == 0 {
		log.Fatalf("empty transaction reached the lock manager: txn %d", h.txn.ID)
	}

	lm.muTxnInfo.Lock()
	defer lm.muTxnInfo.Unlock()

	ti := lm.getOrCreateTxnInfo(h.txn.ID)
	if h.IsRemaster() {
		// A remaster txn acquires locks under both its old and new
		// master, i.e. two lock-only fragments.
		ti.unarrivedLockRequests += 2
	} else {
		ti.unarrivedLockRequests += int32(len(h.KeysInPartition))
	}
	return ti.isReady()
}

type lockRequest struct {
	keyReplica KeyReplica
	mode       LockMode
}

func (lm *LockManager) locksToRequest(h *Txn) []lockRequest {
	txn := h.Transaction()
	if h.IsRemaster() {
		kv := h.KeysInPartition[0]
		master := txn.MasterMetadata[kv.Key].Master
		if txn.Remaster.IsNewMasterLockOnly {
			master = txn.Remaster.NewMaster
		}
		return []lockRequest{{keyReplica: MakeKeyReplica(kv.Key, master), mode: WriteLock}}
	}

	reqs := make([]lockRequest, 0, len(h.KeysInPartition))
	for _, kv := range h.KeysInPartition {
		master := txn.MasterMetadata[kv.Key].Master
		reqs = append(reqs, lockRequest{keyReplica: MakeKeyReplica(kv.Key, master), mode: kv.Mode})
	}
	return reqs
}

// AcquireLocks computes h's lock set from the local partition's keys
// (§4.3), records the resulting wait-for edges, and reports whether h is
// ready to run.
func (lm *LockManager) AcquireLocks(h *Txn) AcquireLocksResult {
	if len(h.KeysInPartition) == 0 {
		log.Fatalf("empty transaction reached the lock manager: txn %d", h.txn.ID)
	}

	reqs := lm.locksToRequest(h)

	var blocking []TxnId
	for _, req := range reqs {
		shard := &lm.shards[shardIndex(req.keyReplica)]
		shard.mu.Lock()
		tail, ok := shard.tails[req.keyReplica]
		if !ok {
			tail = &LockQueueTail{}
			shard.tails[req.keyReplica] = tail
		}
		switch req.mode {
		case ReadLock:
			if b, has := tail.AcquireRead(h.txn.ID); has {
				blocking = append(blocking, b)
			}
		case WriteLock:
			blocking = append(blocking, tail.AcquireWrite(h.txn.ID)...)
		}
		shard.mu.Unlock()
	}

	blocking = dedupSortTxnIds(blocking)

	lm.muTxnInfo.Lock()
	defer lm.muTxnInfo.Unlock()

	ti := lm.getOrCreateTxnInfo(h.txn.ID)
	ti.unarrivedLockRequests -= int32(len(reqs))

	for _, b := range blocking {
		if b == h.txn.ID {
			continue
		}
		// A blocker that has already released its locks has left the
		// table; its edge is already discharged, so there's nothing left
		// to record (§7.3, transient condition).
		bInfo, ok := lm.txnInfo[b]
		if !ok {
			continue
		}
		// Duplicate appends are intentional: a multi-home successor may
		// be recorded against the same blocker once per fragment that
		// observed it. ReleaseLocks decrements numWaitingFor once per
		// waitedBy entry, so the accounting stays balanced as long as
		// every append here has a matching decrement there.
		ti.numWaitingFor++
		bInfo.waitedBy = append(bInfo.waitedBy, h.txn.ID)
	}

	if ti.isReady() {
		return Acquired
	}
	return Waiting
}

// AcceptTxnAndAcquireLocks is a convenience wrapper: Accept then Acquire.
func (lm *LockManager) AcceptTxnAndAcquireLocks(h *Txn) AcquireLocksResult {
	lm.AcceptTransaction(h)
	return lm.AcquireLocks(h)
}

// ReleaseLocks discharges id's record and returns the successors that
// became ready as a result. Releasing a transaction that is not ready is
// an invariant violation and aborts the process. id is the bare TxnId
// (not a derived Txn view) because release never needs to recompute the
// transaction's lock set.
func (lm *LockManager) ReleaseLocks(id TxnId) []TxnId {
	lm.muTxnInfo.Lock()
	defer lm.muTxnInfo.Unlock()

	ti, ok := lm.txnInfo[id]
	if !ok {
		return nil
	}
	if !ti.isReady() {
		log.Fatalf("releasing unready txn %d is forbidden", id)
	}

	var newlyReady []TxnId
	for _, blockedID := range ti.waitedBy {
		if blockedID == sentinelTxnId {
			continue
		}
		blocked, ok := lm.txnInfo[blockedID]
		if !ok {
			log.Errorf("blocked txn %d does not exist", blockedID)
			continue
		}
		blocked.numWaitingFor--
		if blocked.isReady() {
			// waitedBy may contain duplicates for this successor; it only
			// becomes ready once its last recorded dependency here is
			// accounted for, which is exactly when numWaitingFor reaches 0.
			newlyReady = append(newlyReady, blockedID)
		}
	}
	delete(lm.txnInfo, id)
	return newlyReady
}

// GetReadyTxns drains the list of transactions the deadlock resolver has
// pushed since the last call.
func (lm *LockManager) GetReadyTxns() []TxnId {
	lm.muReady.Lock()
	defer lm.muReady.Unlock()
	ret := lm.readyTxns
	lm.readyTxns = nil
	return ret
}

// Stats is the lock manager's introspection snapshot, equivalent to the
// original's DDRLockManager::GetStats dump.
type Stats struct {
	// NumTxns is the size of the txn_info table.
	NumTxns int
	// WaitingTxns lists, at level >= 1, every txn that is not yet ready
	// together with how many predecessors it is still waiting for.
	WaitingTxns map[TxnId]int32
}

// GetStats reports the current size of the txn_info table and, at
// level >= 1, the per-txn waiting counts. Level 0 omits WaitingTxns
// entirely to avoid the allocation on the hot path.
func (lm *LockManager) GetStats(level int) Stats {
	lm.muTxnInfo.Lock()
	defer lm.muTxnInfo.Unlock()

	stats := Stats{NumTxns: len(lm.txnInfo)}
	if level < 1 {
		return stats
	}
	stats.WaitingTxns = make(map[TxnId]int32, len(lm.txnInfo))
	for id, ti := range lm.txnInfo {
		if !ti.isReady() {
			stats.WaitingTxns[id] = ti.numWaitingFor
		}
	}
	return stats
}

func dedupSortTxnIds(ids []TxnId) []TxnId {
	if len(ids) == 0 {
		return ids
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
