package renderer

import (
	"context"

	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

// RendererBackend is a render graph backend that also owns the presentation
// engine: it hands out the next external image and presents it once the
// graph has rendered into it.
type RendererBackend interface {
	rendergraph.Backend

	// AcquireNextImage returns the rotating index of the external image to
	// render into and the signal raised once it is available. It returns
	// core.ErrSwapchainBooting when the presentation engine was recreated.
	AcquireNextImage(ctx context.Context, frameCounter uint64) (uint32, rendergraph.Signal, error)
	Present(ctx context.Context, rotatingIndex uint32, rendered rendergraph.Signal) error
	// Wait blocks until the work behind a signal returned by Submit is done.
	Wait(ctx context.Context, signal rendergraph.Signal) error
	Resized(width, height uint32) error
	WaitIdle(ctx context.Context) error
	Shutdown() error
}
