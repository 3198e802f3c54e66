package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/containers"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var ErrGraphSystemNotInitialized = errors.New("render graph system is not initialized")

// GraphLoader reads a graph description from disk.
type GraphLoader func(path string) (*rendergraph.Description, error)

type RenderGraphSystemConfig struct {
	// FramesInFlight bounds how many submitted frames may be pending on the
	// device before DrawFrame waits for the oldest.
	FramesInFlight uint32
	// ResizeSettleFrames is how many frames are drawn at the old size after
	// the last resize event before the backend is told about it.
	ResizeSettleFrames uint8
}

// RenderGraphSystem drives a render graph frame by frame. It owns the frame
// counter and the rotating index, rebuilds on resize and on description
// changes, and keeps the completion signals of frames still in flight.
type RenderGraphSystem struct {
	config  RenderGraphSystemConfig
	backend renderer.RendererBackend
	graph   *rendergraph.Graph
	loader  GraphLoader

	inFlight      *containers.RingQueue[rendergraph.Signal]
	frameCounter  uint64
	rotatingIndex uint32
	initialized   bool

	// Set from event callbacks, consumed at the start of a frame.
	mu                sync.Mutex
	pendingGraph      string
	resizing          bool
	framesSinceResize uint8
	width, height     uint32

	rebuilds int
}

func NewRenderGraphSystem(config RenderGraphSystemConfig, backend renderer.RendererBackend, desc *rendergraph.Description) (*RenderGraphSystem, error) {
	if backend == nil {
		return nil, rendergraph.ErrNoBackend
	}
	if config.FramesInFlight == 0 {
		config.FramesInFlight = 1
	}
	return &RenderGraphSystem{
		config:   config,
		backend:  backend,
		graph:    rendergraph.NewGraph(desc, backend),
		inFlight: containers.NewRingQueue[rendergraph.Signal](int(config.FramesInFlight)),
	}, nil
}

// SetLoader sets how descriptions named by GRAPH_CHANGED events are read.
func (s *RenderGraphSystem) SetLoader(loader GraphLoader) {
	s.loader = loader
}

func (s *RenderGraphSystem) Graph() *rendergraph.Graph { return s.graph }

func (s *RenderGraphSystem) Plan() *rendergraph.Plan { return s.graph.Plan() }

func (s *RenderGraphSystem) FrameCounter() uint64 { return s.frameCounter }

func (s *RenderGraphSystem) Rebuilds() int { return s.rebuilds }

// Initialize builds the graph and starts listening for resize and
// description change events.
func (s *RenderGraphSystem) Initialize() error {
	if err := s.graph.Build(); err != nil {
		return err
	}
	if err := core.EventRegister(core.EVENT_CODE_RESIZED, s, s.onResized); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) {
		return err
	}
	if err := core.EventRegister(core.EVENT_CODE_GRAPH_CHANGED, s, s.onGraphChanged); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) {
		return err
	}
	s.initialized = true
	return nil
}

func (s *RenderGraphSystem) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = data.Data.U32[0], data.Data.U32[1]
	s.resizing = true
	s.framesSinceResize = 0
	return false
}

func (s *RenderGraphSystem) onGraphChanged(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingGraph = data.Data.C[0]
	return false
}

// DrawFrame acquires the next external image, traverses the graph into it
// and presents it. A frame that hits a recreated presentation engine is
// skipped after the graph is rebuilt.
func (s *RenderGraphSystem) DrawFrame(ctx context.Context) error {
	if !s.initialized {
		return ErrGraphSystemNotInitialized
	}
	if err := s.applyPending(ctx); err != nil {
		return err
	}

	if s.inFlight.IsFull() {
		oldest, err := s.inFlight.Dequeue()
		if err != nil {
			return err
		}
		if err := s.backend.Wait(ctx, oldest); err != nil {
			return fmt.Errorf("wait for frame: %w", err)
		}
	}

	rotatingIndex, acquired, err := s.backend.AcquireNextImage(ctx, s.frameCounter)
	if errors.Is(err, core.ErrSwapchainBooting) {
		return s.rebuild(ctx, "presentation engine recreated")
	}
	if err != nil {
		return fmt.Errorf("acquire image: %w", err)
	}

	signal, err := s.graph.Traverse(ctx, s.frameCounter, rotatingIndex, acquired)
	if err != nil {
		return err
	}
	if err := s.inFlight.Enqueue(signal); err != nil {
		return err
	}

	s.rotatingIndex = rotatingIndex
	s.frameCounter++

	if err := s.backend.Present(ctx, rotatingIndex, signal); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			return s.rebuild(ctx, "presentation engine out of date")
		}
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

func (s *RenderGraphSystem) applyPending(ctx context.Context) error {
	s.mu.Lock()
	path := s.pendingGraph
	s.pendingGraph = ""
	var resize bool
	var width, height uint32
	if s.resizing {
		s.framesSinceResize++
		if s.framesSinceResize >= s.config.ResizeSettleFrames {
			resize = true
			width, height = s.width, s.height
			s.resizing = false
			s.framesSinceResize = 0
		}
	}
	s.mu.Unlock()

	if path != "" {
		if err := s.reload(ctx, path); err != nil {
			return err
		}
	}
	if resize {
		core.LogInfo("resizing render graph targets to %dx%d", width, height)
		if err := s.backend.Resized(width, height); err != nil {
			return err
		}
	}
	return nil
}

// reload swaps in the description at path. A description that does not
// compile is logged and the running plan is kept.
func (s *RenderGraphSystem) reload(ctx context.Context, path string) error {
	if s.loader == nil {
		core.LogWarn("graph description %s changed but no loader is set", path)
		return nil
	}
	desc, err := s.loader(path)
	if err != nil {
		core.LogError("reload %s: %s", path, err)
		return nil
	}
	if err := s.graph.Validate(desc); err != nil {
		core.LogError("reload %s: %s", path, err)
		return nil
	}
	s.graph.SetDescription(desc)
	return s.rebuild(ctx, "description "+path+" changed")
}

// rebuild waits for the device to go idle, forgets the in-flight signals and
// builds the graph again.
func (s *RenderGraphSystem) rebuild(ctx context.Context, reason string) error {
	core.LogDebug("rebuilding render graph: %s", reason)
	if err := s.backend.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	for !s.inFlight.IsEmpty() {
		if _, err := s.inFlight.Dequeue(); err != nil {
			return err
		}
	}
	if err := s.graph.Build(); err != nil {
		return err
	}
	s.rebuilds++
	return nil
}

func (s *RenderGraphSystem) Shutdown() error {
	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := core.EventUnregister(core.EVENT_CODE_RESIZED, s, s.onResized); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) && !errors.Is(err, core.ErrListenerNotFound) {
		return err
	}
	if err := core.EventUnregister(core.EVENT_CODE_GRAPH_CHANGED, s, s.onGraphChanged); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) && !errors.Is(err, core.ErrListenerNotFound) {
		return err
	}
	return s.backend.WaitIdle(context.Background())
}
