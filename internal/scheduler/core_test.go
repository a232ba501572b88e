package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap-incubator/ddrslog/internal/config"
)

type recordingExecutor struct {
	mu       sync.Mutex
	executed []TxnId
	done     chan struct{}
}

func newRecordingExecutor(want int) *recordingExecutor {
	return &recordingExecutor{done: make(chan struct{}, want)}
}

func (e *recordingExecutor) Execute(txn *Transaction) {
	e.mu.Lock()
	e.executed = append(e.executed, txn.ID)
	e.mu.Unlock()
	e.done <- struct{}{}
}

func TestCore_ConflictingTxnsExecuteInLockOrder(t *testing.T) {
	cfg := config.NewTestConfig()
	exec := newRecordingExecutor(2)
	core := NewCore(cfg, exec, nil)
	core.Start()
	defer core.Stop()

	require.NoError(t, core.Submit(0, 0, wireTxn(1, "x", WriteLock)))
	require.NoError(t, core.Submit(0, 1, wireTxn(2, "x", WriteLock)))
	core.ProcessReplica(0)

	for i := 0; i < 2; i++ {
		select {
		case <-exec.done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for transactions to execute")
		}
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, []TxnId{1, 2}, exec.executed, "T2 only runs once T1 releases x")
}

func TestCore_StatsReportsTableSize(t *testing.T) {
	cfg := config.NewTestConfig()
	exec := newRecordingExecutor(1)
	core := NewCore(cfg, exec, nil)
	core.Start()
	defer core.Stop()

	require.NoError(t, core.Submit(0, 0, wireTxn(1, "x", WriteLock)))
	core.ProcessReplica(0)

	select {
	case <-exec.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution")
	}

	// Execute signals done before the worker calls Complete, so the
	// release can land a moment after the signal.
	assert.Eventually(t, func() bool {
		return core.Stats(0).NumTxns == 0
	}, time.Second, time.Millisecond, "T1 released its own locks after executing")
}
