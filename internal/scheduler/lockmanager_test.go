package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap-incubator/ddrslog/internal/config"
)

func singlePartitionConfig() *config.Config {
	return config.NewTestConfig()
}

func writeTxn(cfg *config.Config, id TxnId, key Key) *Txn {
	txn := &Transaction{
		ID:             id,
		Type:           SingleHome,
		MasterMetadata: map[Key]Metadata{key: {Master: 0}},
		WriteSet:       map[Key]string{key: "v"},
	}
	h, err := NewTxn(cfg, txn)
	if err != nil {
		panic(err)
	}
	return h
}

func readTxn(cfg *config.Config, id TxnId, key Key) *Txn {
	txn := &Transaction{
		ID:             id,
		Type:           SingleHome,
		MasterMetadata: map[Key]Metadata{key: {Master: 0}},
		ReadSet:        map[Key]string{key: "v"},
	}
	h, err := NewTxn(cfg, txn)
	if err != nil {
		panic(err)
	}
	return h
}

// S1 — simple conflict: T1{W:x}, T2{W:x}, same master.
func TestLockManager_S1_SimpleConflict(t *testing.T) {
	cfg := singlePartitionConfig()
	lm := NewLockManager()

	t1 := writeTxn(cfg, 1, "x")
	t2 := writeTxn(cfg, 2, "x")

	assert.Equal(t, Acquired, lm.AcceptTxnAndAcquireLocks(t1))
	assert.Equal(t, Waiting, lm.AcceptTxnAndAcquireLocks(t2))

	lm.muTxnInfo.Lock()
	assert.EqualValues(t, 1, lm.txnInfo[2].numWaitingFor)
	lm.muTxnInfo.Unlock()

	ready := lm.ReleaseLocks(1)
	assert.Equal(t, []TxnId{2}, ready)
}

// S2 — read-share: T1{R:x}, T2{R:x}, T3{W:x}.
func TestLockManager_S2_ReadShare(t *testing.T) {
	cfg := singlePartitionConfig()
	lm := NewLockManager()

	t1 := readTxn(cfg, 1, "x")
	t2 := readTxn(cfg, 2, "x")
	t3 := writeTxn(cfg, 3, "x")

	assert.Equal(t, Acquired, lm.AcceptTxnAndAcquireLocks(t1))
	assert.Equal(t, Acquired, lm.AcceptTxnAndAcquireLocks(t2))
	assert.Equal(t, Waiting, lm.AcceptTxnAndAcquireLocks(t3))

	lm.muTxnInfo.Lock()
	assert.EqualValues(t, 2, lm.txnInfo[3].numWaitingFor)
	lm.muTxnInfo.Unlock()

	assert.Empty(t, lm.ReleaseLocks(1))
	assert.Equal(t, []TxnId{3}, lm.ReleaseLocks(2))
}

// S3 — late accept: AcquireLocks arrives before AcceptTransaction.
func TestLockManager_S3_LateAccept(t *testing.T) {
	cfg := singlePartitionConfig()
	lm := NewLockManager()

	t1 := writeTxn(cfg, 1, "x")

	result := lm.AcquireLocks(t1)
	assert.Equal(t, Waiting, result, "still missing its Accept")

	// AcceptTransaction arriving second brings unarrivedLockRequests back
	// to 0; with no blockers recorded, the transaction is now ready.
	assert.True(t, lm.AcceptTransaction(t1))
}

// S6 — remaster: two lock-only fragments, old master then new master.
func TestLockManager_S6_Remaster(t *testing.T) {
	cfg := singlePartitionConfig()
	lm := NewLockManager()

	const remasterID TxnId = 42
	oldMasterFragment := &Transaction{
		ID:             remasterID,
		Type:           MultiHomeOrLockOnly,
		MasterMetadata: map[Key]Metadata{"k": {Master: 0}},
		WriteSet:       map[Key]string{"k": ""},
		Remaster:       &RemasterInfo{NewMaster: 3, IsNewMasterLockOnly: false},
	}
	newMasterFragment := &Transaction{
		ID:             remasterID,
		Type:           MultiHomeOrLockOnly,
		MasterMetadata: map[Key]Metadata{"k": {Master: 0}},
		WriteSet:       map[Key]string{"k": ""},
		Remaster:       &RemasterInfo{NewMaster: 3, IsNewMasterLockOnly: true},
	}

	hOld, err := NewTxn(cfg, oldMasterFragment)
	require.NoError(t, err)
	hNew, err := NewTxn(cfg, newMasterFragment)
	require.NoError(t, err)

	assert.False(t, lm.AcceptTransaction(hOld), "expects 2 fragments, only Accept seen so far")

	res := lm.AcquireLocks(hOld)
	assert.Equal(t, Waiting, res, "one of two fragments arrived")

	res = lm.AcquireLocks(hNew)
	assert.Equal(t, Acquired, res, "both fragments arrived with no blockers")
}
