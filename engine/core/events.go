package core

import (
	"reflect"
	"sync"
)

type EventContext struct {
	Type SystemEventCode
	Data struct {
		U32 [4]uint32
		U64 [2]uint64
		C   [2]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// The render graph description on disk changed.
	/* Context usage:
	 * string path = data.C[0];
	 */
	EVENT_CODE_GRAPH_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// State structure.
type eventSystemState struct {
	mu sync.RWMutex
	// Lookup table for event codes.
	registered map[SystemEventCode][]registeredEvent
}

var eventState *eventSystemState

var eventMu sync.Mutex

// EventSystemInitialize sets up the event system. Calling it again is a no-op
// and returns false.
func EventSystemInitialize() bool {
	eventMu.Lock()
	defer eventMu.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
	return true
}

// EventSystemShutdown drops every registration.
func EventSystemShutdown() {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventState = nil
}

func currentEventState() *eventSystemState {
	eventMu.Lock()
	defer eventMu.Unlock()
	return eventState
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) error {
	state := currentEventState()
	if state == nil {
		return ErrEventSystemNotReady
	}
	if code <= 0 || code >= MAX_MESSAGE_CODES {
		return ErrInvalidEventCode
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	for _, e := range state.registered[code] {
		if e.listener == listener && sameCallback(e.callback, onEvent) {
			return ErrDuplicateListener
		}
	}
	state.registered[code] = append(state.registered[code], registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return nil
}

/**
 * Unregister from listening for when events are sent with the provided code.
 */
func EventUnregister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) error {
	state := currentEventState()
	if state == nil {
		return ErrEventSystemNotReady
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	events := state.registered[code]
	for i, e := range events {
		if e.listener == listener && sameCallback(e.callback, onEvent) {
			state.registered[code] = append(events[:i:i], events[i+1:]...)
			return nil
		}
	}
	return ErrListenerNotFound
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * Returns true if handled.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	state := currentEventState()
	if state == nil {
		return false
	}
	state.mu.RLock()
	events := append([]registeredEvent(nil), state.registered[code]...)
	state.mu.RUnlock()

	context.Type = code
	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// Funcs are not comparable; compare their code pointers.
func sameCallback(a, b FnOnEvent) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
