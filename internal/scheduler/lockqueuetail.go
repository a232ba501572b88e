package scheduler

// LockQueueTail is the compressed per-key-replica lock queue: instead of a
// full FIFO of waiters, it keeps only the most recent write holder and the
// read holders that followed it. A new writer depends only on
// predecessors since the last write — the standard reader/writer
// ordering — so once a writer arrives, earlier readers are already fully
// represented by the wait-for edges emitted at the time they acquired
// their read lock; the tail only needs the latest writer to serialize
// whoever comes next.
type LockQueueTail struct {
	writeHolder *TxnId
	readHolders []TxnId
}

// AcquireRead appends txn to the readers and returns the current write
// holder, if any, as txn's dependency.
func (t *LockQueueTail) AcquireRead(txn TxnId) (TxnId, bool) {
	t.readHolders = append(t.readHolders, txn)
	if t.writeHolder == nil {
		return 0, false
	}
	return *t.writeHolder, true
}

// AcquireWrite returns txn's dependencies: the current readers if any
// (which are then cleared), otherwise the current write holder if any. It
// sets the write holder to txn.
func (t *LockQueueTail) AcquireWrite(txn TxnId) []TxnId {
	var deps []TxnId
	if len(t.readHolders) == 0 {
		if t.writeHolder != nil {
			deps = append(deps, *t.writeHolder)
		}
	} else {
		deps = append(deps, t.readHolders...)
		t.readHolders = nil
	}
	t.writeHolder = &txn
	return deps
}
