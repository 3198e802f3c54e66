package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
	"github.com/spaghettifunk/framegraph/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

var (
	ErrNoGraph        = errors.New("no graph description: set a graph path or a description")
	ErrNotInitialized = errors.New("engine is not initialized")
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   atomic.Bool
	backend       renderer.RendererBackend
	pump          MessagePump
	graphWatcher  *assets.GraphWatcher
	systemManager *systems.SystemManager
	width         uint32
	height        uint32
	clock         *core.Clock
	lastTime      float64
}

func New(g *Game, backend renderer.RendererBackend) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	config := g.ApplicationConfig
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		backend:      backend,
		clock:        core.NewClock(),
		width:        config.Width,
		height:       config.Height,
	}
	if pump, ok := backend.(MessagePump); ok {
		e.pump = pump
	}

	gw, err := assets.NewGraphWatcher(config.GraphVariables(), time.Duration(config.WatchDebounceMS)*time.Millisecond)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	desc := g.Description
	if config.GraphPath != "" {
		if desc, err = gw.Load(config.GraphPath); err != nil {
			_ = gw.Close()
			return nil, err
		}
	}
	if desc == nil {
		_ = gw.Close()
		return nil, ErrNoGraph
	}

	sm, err := systems.NewSystemManager(systems.RenderGraphSystemConfig{
		FramesInFlight:     config.FramesInFlight,
		ResizeSettleFrames: config.ResizeSettleFrames,
	}, backend, desc, gw.Load)
	if err != nil {
		_ = gw.Close()
		core.LogError("%s", err)
		return nil, err
	}

	e.graphWatcher = gw
	e.systemManager = sm
	g.SystemManager = sm
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if !core.EventSystemInitialize() {
		core.LogWarn("event system already initialized")
	}

	// The engine listens before the systems so a zero size suspends the
	// loop before the graph system sees it.
	if err := core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent); err != nil {
		return err
	}
	if err := core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized); err != nil {
		return err
	}

	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	config := e.gameInstance.ApplicationConfig
	if config.Watch && config.GraphPath != "" {
		if err := e.graphWatcher.Watch(config.GraphPath); err != nil {
			return err
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.isRunning.Store(true)
	e.currentStage = EngineStageInitialized
	return nil
}

// Run draws frames until the context is cancelled, the application quit
// event fires or the configured frame limit is reached.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	config := e.gameInstance.ApplicationConfig
	rgs := e.systemManager.RenderGraph()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var targetFrameSeconds float64
	if config.TargetFPS > 0 {
		targetFrameSeconds = 1.0 / config.TargetFPS
	}
	lastReport := e.lastTime

	for e.isRunning.Load() {
		if ctx.Err() != nil {
			break
		}
		// Window events, resizes included, are delivered before the frame.
		if e.pump != nil && !e.pump.PumpMessages() {
			core.LogInfo("window closed")
			break
		}
		if config.FrameLimit > 0 && rgs.FrameCounter() >= config.FrameLimit {
			core.LogInfo("frame limit of %d reached", config.FrameLimit)
			break
		}

		if e.isSuspended.Load() {
			if !sleepContext(ctx, 10*time.Millisecond) {
				break
			}
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(rgs.FrameCounter(), delta); err != nil {
				core.LogError("game render failed, shutting down: %s", err)
				return err
			}
		}

		if err := rgs.DrawFrame(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("draw frame %d: %w", rgs.FrameCounter(), err)
		}

		frameElapsed := time.Since(frameStart).Seconds()
		core.MetricsUpdate(frameElapsed)

		if remaining := targetFrameSeconds - frameElapsed; remaining > 0 {
			if !sleepContext(ctx, time.Duration(remaining*float64(time.Second))) {
				break
			}
		}

		if currentTime-lastReport >= 1.0 {
			fps, frameMS := core.MetricsFrame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, frameMS)
			lastReport = currentTime
		}
		e.lastTime = currentTime
	}

	e.clock.Stop()
	core.LogInfo("stopped after %d frames", rgs.FrameCounter())
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if err := core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) && !errors.Is(err, core.ErrListenerNotFound) {
		errs = append(errs, err)
	}
	if err := core.EventUnregister(core.EVENT_CODE_RESIZED, e, e.onResized); err != nil && !errors.Is(err, core.ErrEventSystemNotReady) && !errors.Is(err, core.ErrListenerNotFound) {
		errs = append(errs, err)
	}
	errs = append(errs,
		e.systemManager.Shutdown(),
		e.graphWatcher.Close(),
		e.backend.Shutdown(),
	)
	core.EventSystemShutdown()
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// Plan returns the plan the engine is currently drawing with.
func (e *Engine) Plan() *rendergraph.Plan {
	return e.systemManager.RenderGraph().Plan()
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return true
	}
	e.width, e.height = width, height
	core.LogDebug("framebuffer resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("framebuffer minimized, suspending application")
		e.isSuspended.Store(true)
		return true
	}
	if e.isSuspended.Load() {
		core.LogInfo("framebuffer restored, resuming application")
		e.isSuspended.Store(false)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
