package scheduler

import (
	"sort"

	"github.com/pingcap-incubator/ddrslog/internal/config"
)

// TransactionType mirrors internal.type from §6: a transaction is either
// wholly local to one replica, or one of the lock-only fragments/home
// shard of a multi-home transaction.
type TransactionType int

const (
	SingleHome TransactionType = iota
	MultiHomeOrLockOnly
)

// Metadata is the per-key master-replica bookkeeping carried in a
// transaction's master_metadata map.
type Metadata struct {
	Master  uint32
	Counter uint32
}

// RemasterInfo is present only on remaster transactions, mutually
// exclusive with a normal read/write set procedure.
type RemasterInfo struct {
	NewMaster           uint32
	IsNewMasterLockOnly bool
}

// Transaction is the subset of the wire transaction record (§6) the core
// reads. Envelope/protobuf plumbing lives outside this module; by the time
// a Transaction reaches the scheduler it has already been decoded.
type Transaction struct {
	ID   TxnId
	Type TransactionType
	Home int32

	MasterMetadata map[Key]Metadata

	// ReadSet and WriteSet map key to opaque value. A key present in both
	// is treated as WRITE only (§4.3).
	ReadSet  map[Key]string
	WriteSet map[Key]string

	// Remaster is non-nil exactly for remaster transactions.
	Remaster *RemasterInfo
}

// KeyAndMode pairs a key with the lock mode a transaction requests on it.
type KeyAndMode struct {
	Key  Key
	Mode LockMode
}

// Txn is the TxnHolder-equivalent derived view of a Transaction: the
// lock-manager contracts (AcceptTransaction, AcquireLocks) are defined in
// terms of this precomputed view, not the raw read/write sets, so it is
// computed once per transaction on arrival (common/txn_holder.cpp).
type Txn struct {
	txn *Transaction

	// KeysInPartition holds only the keys of txn that fall in the local
	// partition, each tagged with its effective lock mode.
	KeysInPartition []KeyAndMode

	// ActivePartitions are the partitions touched by txn's write set,
	// deduplicated and sorted.
	ActivePartitions []uint32

	// InvolvedReplicas are every replica named in txn's master metadata
	// (plus, for a remaster's new master), deduplicated and sorted.
	InvolvedReplicas []uint32

	// ReplicaID is the master replica shared by every key's metadata in a
	// single-home or lock-only transaction (they're guaranteed equal).
	ReplicaID uint32
}

// Transaction returns the wrapped wire record.
func (h *Txn) Transaction() *Transaction { return h.txn }

// IsRemaster reports whether h wraps a remaster transaction.
func (h *Txn) IsRemaster() bool { return h.txn.Remaster != nil }

// NewTxn computes the derived view of txn under the local partition
// described by cfg. It returns ErrEmptyMasterMetadata if txn carries no
// master metadata at all — per the Open Question in spec.md §9, this
// reimplementation hard-errors instead of defaulting to replica 0.
func NewTxn(cfg *config.Config, txn *Transaction) (*Txn, error) {
	if len(txn.MasterMetadata) == 0 {
		return nil, ErrEmptyMasterMetadata
	}

	h := &Txn{txn: txn}

	var involvedPartitions []uint32
	for key := range txn.ReadSet {
		involvedPartitions = append(involvedPartitions, cfg.PartitionOf(key))
		if _, isWrite := txn.WriteSet[key]; cfg.KeyIsInLocalPartition(key) && !isWrite {
			h.KeysInPartition = append(h.KeysInPartition, KeyAndMode{Key: key, Mode: ReadLock})
		}
	}
	for key := range txn.WriteSet {
		p := cfg.PartitionOf(key)
		involvedPartitions = append(involvedPartitions, p)
		h.ActivePartitions = append(h.ActivePartitions, p)
		if cfg.KeyIsInLocalPartition(key) {
			h.KeysInPartition = append(h.KeysInPartition, KeyAndMode{Key: key, Mode: WriteLock})
		}
	}
	_ = involvedPartitions // only num_involved_partitions is used upstream; not needed by the core

	for _, md := range txn.MasterMetadata {
		h.InvolvedReplicas = append(h.InvolvedReplicas, md.Master)
	}
	if txn.Remaster != nil {
		h.InvolvedReplicas = append(h.InvolvedReplicas, txn.Remaster.NewMaster)
	}

	h.ActivePartitions = dedupSortUint32(h.ActivePartitions)
	h.InvolvedReplicas = dedupSortUint32(h.InvolvedReplicas)

	// All metadata entries carry the same master for single-home and
	// lock-only transactions, so any one of them identifies the replica
	// this transaction/fragment belongs to.
	for _, md := range txn.MasterMetadata {
		h.ReplicaID = md.Master
		break
	}

	// Keep KeysInPartition in a stable order so AcquireLocks requests
	// locks deterministically (§5: "does not affect correctness but keeps
	// blocking sets deterministic").
	sort.Slice(h.KeysInPartition, func(i, j int) bool {
		return h.KeysInPartition[i].Key < h.KeysInPartition[j].Key
	})

	return h, nil
}

func dedupSortUint32(s []uint32) []uint32 {
	if len(s) == 0 {
		return s
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
