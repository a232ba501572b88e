package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncLog_DrainsInOrderDespiteOutOfOrderInsert(t *testing.T) {
	l := NewAsyncLog(0)

	require.NoError(t, l.Insert(3, "c"))
	require.NoError(t, l.Insert(1, "a"))
	require.NoError(t, l.Insert(2, "b"))
	assert.False(t, l.HasNext(), "position 0 hasn't arrived yet")

	require.NoError(t, l.Insert(0, "z"))
	assert.True(t, l.HasNext())

	wantOrder := []interface{}{"z", "a", "b", "c"}
	for i, want := range wantOrder {
		pos, item, err := l.Next()
		require.NoError(t, err)
		assert.Equal(t, uint32(i), pos)
		assert.Equal(t, want, item)
	}
	assert.False(t, l.HasNext())
}

func TestAsyncLog_LateInsertIsIgnored(t *testing.T) {
	l := NewAsyncLog(0)
	require.NoError(t, l.Insert(0, "z"))
	_, _, err := l.Next()
	require.NoError(t, err)

	// position 0 already consumed; a late re-delivery is a no-op, not an
	// error.
	assert.NoError(t, l.Insert(0, "stale"))
	assert.False(t, l.HasNext())
}

func TestAsyncLog_DuplicatePendingInsertErrors(t *testing.T) {
	l := NewAsyncLog(5)
	require.NoError(t, l.Insert(7, "first"))
	err := l.Insert(7, "second")
	assert.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestAsyncLog_NextWithoutHasNextErrors(t *testing.T) {
	l := NewAsyncLog(0)
	_, _, err := l.Next()
	assert.ErrorIs(t, err, ErrNoNext)
}

func TestAsyncLog_PeekDoesNotAdvance(t *testing.T) {
	l := NewAsyncLog(0)
	require.NoError(t, l.Insert(0, "z"))
	assert.Equal(t, "z", l.Peek())
	assert.Equal(t, "z", l.Peek())
	_, item, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, "z", item)
}
