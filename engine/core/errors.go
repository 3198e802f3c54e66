package core

import (
	"errors"
)

var (
	ErrSwapchainBooting    = errors.New("swapchain resized or recreated, booting")
	ErrEventSystemNotReady = errors.New("event system is not initialized")
	ErrDuplicateListener   = errors.New("listener already registered for event code")
	ErrListenerNotFound    = errors.New("listener not registered for event code")
	ErrInvalidEventCode    = errors.New("event code out of range")
)
