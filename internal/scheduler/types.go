// Package scheduler implements the per-partition core described in the
// design: a gap-intolerant ordered log per replica (AsyncLog), a
// compressed per-key lock queue (LockQueueTail), a Dependency-Driven
// Resolution lock manager that tracks a wait-for graph instead of queues
// (LockManager), and a background resolver that breaks deadlocks found in
// a stale snapshot of that graph (DeadlockResolver).
package scheduler

import "strconv"

// Key is an opaque identifier for a piece of data. Its byte representation
// is what partitioning and hashing operate on.
type Key = string

// KeyReplica is the lock-table index unit: a key paired with the replica
// that currently masters it. The same key under two different masters is
// two distinct locks, which is what makes remastering safe to model as
// plain lock acquisition.
type KeyReplica = string

// TxnId uniquely identifies a transaction. All lock-only fragments of a
// multi-home transaction share the same TxnId.
type TxnId = uint64

// sentinelTxnId marks a removed waited-by edge without shifting the slice:
// the deadlock resolver rewrites waitedBy in place and copies back only the
// snapshotted prefix, so every slot must keep its position.
const sentinelTxnId TxnId = 0

// LockMode is the kind of access a transaction requests on a key.
type LockMode int

const (
	ReadLock LockMode = iota
	WriteLock
)

// AcquireLocksResult is the outcome of AcquireLocks.
type AcquireLocksResult int

const (
	// Acquired means the transaction is ready to run: every fragment has
	// arrived and no recorded predecessor is still outstanding.
	Acquired AcquireLocksResult = iota
	// Waiting means at least one fragment is still unarrived or at least
	// one requested lock has an outstanding blocker.
	Waiting
	// Abort is defined for API completeness. The lock manager never
	// produces it itself; it exists so that callers implementing
	// remaster-conflict policy can reuse this type instead of inventing
	// their own.
	Abort
)

// MakeKeyReplica builds the lock-table index for key under master.
func MakeKeyReplica(key Key, master uint32) KeyReplica {
	return key + ":" + strconv.FormatUint(uint64(master), 10)
}
