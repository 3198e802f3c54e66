package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueue(t *testing.T) {
	rq := NewRingQueue[int](2)
	assert.True(t, rq.IsEmpty())

	_, err := rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(3), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// wraps around the backing array
	require.NoError(t, rq.Enqueue(3))
	assert.Equal(t, 2, rq.Len())

	for _, want := range []int{2, 3} {
		v, err = rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	assert.True(t, rq.IsEmpty())
}
