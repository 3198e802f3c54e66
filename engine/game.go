package engine

import (
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
	"github.com/spaghettifunk/framegraph/engine/systems"
)

// Game is what an application plugs into the engine. Every hook is
// optional.
type Game struct {
	ApplicationConfig *ApplicationConfig
	// Description is used when ApplicationConfig.GraphPath is empty.
	Description   *rendergraph.Description
	SystemManager *systems.SystemManager
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnRender      Render
	FnOnResize    OnResize
	FnShutdown    Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render runs before the frame's graph traversal.
type Render func(frame uint64, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
