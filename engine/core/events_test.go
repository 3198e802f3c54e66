package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSystem(t *testing.T) {
	EventSystemShutdown()
	require.True(t, EventSystemInitialize())
	t.Cleanup(EventSystemShutdown)
	assert.False(t, EventSystemInitialize(), "second initialize is a no-op")

	var got []EventContext
	onResize := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, data)
		return true
	}
	listener := &struct{ name string }{"system"}

	t.Run("register and fire", func(t *testing.T) {
		require.NoError(t, EventRegister(EVENT_CODE_RESIZED, listener, onResize))
		assert.ErrorIs(t, EventRegister(EVENT_CODE_RESIZED, listener, onResize), ErrDuplicateListener)

		var ctx EventContext
		ctx.Data.U32[0], ctx.Data.U32[1] = 1920, 1080
		assert.True(t, EventFire(EVENT_CODE_RESIZED, nil, ctx))
		require.Len(t, got, 1)
		assert.Equal(t, EVENT_CODE_RESIZED, got[0].Type)
		assert.Equal(t, uint32(1920), got[0].Data.U32[0])
	})

	t.Run("unhandled code", func(t *testing.T) {
		assert.False(t, EventFire(EVENT_CODE_GRAPH_CHANGED, nil, EventContext{}))
	})

	t.Run("unregister", func(t *testing.T) {
		require.NoError(t, EventUnregister(EVENT_CODE_RESIZED, listener, onResize))
		assert.ErrorIs(t, EventUnregister(EVENT_CODE_RESIZED, listener, onResize), ErrListenerNotFound)
		assert.False(t, EventFire(EVENT_CODE_RESIZED, nil, EventContext{}))
	})

	t.Run("invalid code", func(t *testing.T) {
		assert.ErrorIs(t, EventRegister(SystemEventCode(MAX_MESSAGE_CODES), listener, onResize), ErrInvalidEventCode)
	})
}

func TestEventRegisterBeforeInitialize(t *testing.T) {
	EventSystemShutdown()
	err := EventRegister(EVENT_CODE_APPLICATION_QUIT, nil, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false })
	assert.ErrorIs(t, err, ErrEventSystemNotReady)
}
