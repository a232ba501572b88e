package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepository_RecordTxnEventAtFullSampleRate(t *testing.T) {
	r := NewRepository(256, 1, 0)
	r.RecordTxnEvent(42, Dispatched)
	r.RecordTxnEvent(43, Committed)

	events, _, _ := r.Reset()
	if assert.Len(t, events, 2) {
		assert.Equal(t, uint64(42), events[0].TxnID)
		assert.Equal(t, Dispatched, events[0].Event)
		assert.EqualValues(t, 1, events[0].Replica)
	}
}

func TestRepository_RecordRunAndRecordDeadlock(t *testing.T) {
	r := NewRepository(256, 0, 2)
	r.RecordRun(1500, 3, 5, 1)
	r.RecordDeadlock(2, [][2]uint64{{1, 2}}, [][2]uint64{{2, 1}})

	events, runs, deadlocks := r.Reset()
	assert.Empty(t, events)
	if assert.Len(t, runs, 1) {
		assert.EqualValues(t, 1500, runs[0].RuntimeNs)
		assert.Equal(t, 3, runs[0].UnstableGraphSz)
		assert.Equal(t, 5, runs[0].StableGraphSz)
	}
	if assert.Len(t, deadlocks, 1) {
		assert.Equal(t, 2, deadlocks[0].NumVertices)
		assert.Equal(t, [][2]uint64{{1, 2}}, deadlocks[0].EdgesRemoved)
	}
}

func TestRepository_ZeroSampleRateRecordsNothing(t *testing.T) {
	r := NewRepository(0, 0, 0)
	r.RecordTxnEvent(1, EnterScheduler)
	r.RecordRun(100, 0, 0, 0)
	r.RecordDeadlock(2, nil, nil)

	events, runs, deadlocks := r.Reset()
	assert.Empty(t, events)
	assert.Empty(t, runs)
	assert.Empty(t, deadlocks)
}

func TestRepository_ResetClears(t *testing.T) {
	r := NewRepository(256, 0, 0)
	r.RecordTxnEvent(1, EnterScheduler)
	_, _, _ = r.Reset()
	_, _, _ = r.Reset()
	events, _, _ := r.Reset()
	assert.Empty(t, events)
}
