package scheduler

// txnInfo is the lock manager's record for one TxnId (§3). It is created
// by whichever of Accept or AcquireLocks arrives first (try-emplace) and
// destroyed by ReleaseLocks once the transaction is ready and has run.
type txnInfo struct {
	id TxnId

	// unarrivedLockRequests counts lock-only fragments not yet seen. A
	// normal single-home transaction starts with len(keysInPartition);
	// a remaster transaction always starts with exactly 2 (one fragment
	// locking the old master, one locking the new master).
	unarrivedLockRequests int32

	// numWaitingFor counts distinct (duplicate-counted) predecessors in
	// the wait-for graph.
	numWaitingFor int32

	// waitedBy lists successors; it may contain duplicates (a multi-home
	// successor can appear once per fragment that names this txn as a
	// blocker) and sentinelTxnId entries marking a removed edge.
	waitedBy []TxnId
}

func newTxnInfo(id TxnId) *txnInfo {
	return &txnInfo{id: id}
}

// isComplete reports whether every fragment of this transaction has
// arrived.
func (t *txnInfo) isComplete() bool {
	return t.unarrivedLockRequests == 0
}

// isReady reports the readiness fixed point: complete and with no
// outstanding predecessors.
func (t *txnInfo) isReady() bool {
	return t.isComplete() && t.numWaitingFor == 0
}
