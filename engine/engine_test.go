package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

func chainDescription(t *testing.T) *rendergraph.Description {
	t.Helper()
	d := rendergraph.NewDescription()
	d.SetExternalResourceName("backbuffer")
	require.NoError(t, d.AddPass("world", "scene"))
	require.NoError(t, d.AddSubresourceUsage("scene", "color", rendergraph.Write, rendergraph.WithFormat(rendergraph.FormatRGBA16Float)))
	require.NoError(t, d.AddPass("graphics", "blit"))
	require.NoError(t, d.AddSubresourceUsage("blit", "color", rendergraph.Read))
	require.NoError(t, d.AddSubresourceUsage("blit", "backbuffer", rendergraph.Write))
	return d
}

func newEngine(t *testing.T, config *ApplicationConfig, g *Game) (*Engine, *headless.HeadlessRenderer) {
	t.Helper()
	core.EventSystemShutdown()
	g.ApplicationConfig = config
	backend := headless.New(headless.DefaultConfig())
	e, err := New(g, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() {
		if e.Stage() != EngineStageUninitialized {
			assert.NoError(t, e.Shutdown())
		}
	})
	return e, backend
}

func TestEngineRunsToFrameLimit(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.FrameLimit = 6

	var updates, renders int
	var resized [2]uint32
	g := &Game{
		Description: chainDescription(t),
		FnUpdate:    func(float64) error { updates++; return nil },
		FnRender:    func(uint64, float64) error { renders++; return nil },
		FnOnResize:  func(w, h uint32) error { resized = [2]uint32{w, h}; return nil },
	}
	e, backend := newEngine(t, cfg, g)
	assert.Equal(t, [2]uint32{1280, 720}, resized)
	assert.Same(t, e.systemManager, g.SystemManager)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 6, updates)
	assert.Equal(t, 6, renders)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1, 2}, backend.Presented())
	_, ok := e.Plan().Pass("blit")
	assert.True(t, ok)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageUninitialized, e.Stage())
}

func TestEngineStopsOnQuit(t *testing.T) {
	cfg := DefaultApplicationConfig()
	g := &Game{Description: chainDescription(t)}
	g.FnRender = func(frame uint64, _ float64) error {
		if frame == 2 {
			core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	}
	e, backend := newEngine(t, cfg, g)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, backend.Presented(), 3)
}

func TestEngineStopsOnCancel(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.TargetFPS = 1000
	e, _ := newEngine(t, cfg, &Game{Description: chainDescription(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.systemManager.RenderGraph().FrameCounter())
}

func TestEngineSuspendsWhenMinimized(t *testing.T) {
	cfg := DefaultApplicationConfig()
	e, backend := newEngine(t, cfg, &Game{Description: chainDescription(t)})

	var ctx core.EventContext
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
	assert.True(t, e.isSuspended.Load())

	runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(runCtx))
	assert.Empty(t, backend.Presented())

	ctx.Data.U32[0], ctx.Data.U32[1] = 800, 600
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
	assert.False(t, e.isSuspended.Load())
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
}

func TestEngineLoadsGraphFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
external = "backbuffer"

[[pass]]
type = "graphics"
name = "blit"

  [[pass.usage]]
  resource = "backbuffer"
  access = "write"
`), 0o644))

	cfg := DefaultApplicationConfig()
	cfg.GraphPath = path
	cfg.Watch = true
	cfg.FrameLimit = 2
	e, _ := newEngine(t, cfg, &Game{})
	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, e.graphWatcher.Graphs(), 1)
}

func TestEngineErrors(t *testing.T) {
	backend := headless.New(headless.DefaultConfig())

	_, err := New(&Game{}, backend)
	assert.ErrorIs(t, err, ErrNoGraph)

	cfg := DefaultApplicationConfig()
	cfg.Width = 0
	_, err = New(&Game{ApplicationConfig: cfg}, backend)
	assert.ErrorIs(t, err, ErrInvalidApplicationConfig)

	e, err := New(&Game{Description: chainDescription(t)}, backend)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), ErrNotInitialized)
	require.NoError(t, e.Shutdown())
}

// windowBackend delivers a resize on the second pump and closes on the
// fourth, the way the glfw window does through its callbacks.
type windowBackend struct {
	*headless.HeadlessRenderer
	pumps int
}

func (w *windowBackend) PumpMessages() bool {
	w.pumps++
	if w.pumps == 2 {
		var ctx core.EventContext
		ctx.Data.U32[0], ctx.Data.U32[1] = 1024, 768
		core.EventFire(core.EVENT_CODE_RESIZED, w, ctx)
	}
	return w.pumps < 4
}

func TestEnginePumpsWindowMessages(t *testing.T) {
	core.EventSystemShutdown()
	backend := &windowBackend{HeadlessRenderer: headless.New(headless.DefaultConfig())}
	g := &Game{ApplicationConfig: DefaultApplicationConfig(), Description: chainDescription(t)}
	var resized [2]uint32
	g.FnOnResize = func(w, h uint32) error { resized = [2]uint32{w, h}; return nil }

	e, err := New(g, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { assert.NoError(t, e.Shutdown()) })

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 4, backend.pumps)
	assert.Len(t, backend.Presented(), 3)
	assert.Equal(t, [2]uint32{1024, 768}, resized)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, [2]uint32{1024, 768}, [2]uint32{w, h})
}
