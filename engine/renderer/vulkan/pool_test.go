package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockPoolSerializesQueueCalls(t *testing.T) {
	pool := NewVulkanLockPool()

	var wg sync.WaitGroup
	var inside, maxInside int
	var mu sync.Mutex
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error {
				mu.Lock()
				inside++
				maxInside = max(maxInside, inside)
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestLockPoolDistinctQueuesDoNotBlock(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")

	err := pool.SafeQueueCall(0, func() error {
		// A different family must be lockable while family 0 is held.
		return pool.SafeQueueCall(1, func() error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, pool.SafeCall(SwapchainManagement, func() error {
		return pool.SafeCall(ImageManagement, func() error { return nil })
	}))
}
