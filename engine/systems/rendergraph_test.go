package systems

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type countingBackend struct {
	*headless.HeadlessRenderer
	waits     int
	waitIdles int
}

func (b *countingBackend) Wait(ctx context.Context, signal rendergraph.Signal) error {
	b.waits++
	return b.HeadlessRenderer.Wait(ctx, signal)
}

func (b *countingBackend) WaitIdle(ctx context.Context) error {
	b.waitIdles++
	return b.HeadlessRenderer.WaitIdle(ctx)
}

func forwardDescription(t *testing.T, withUI bool) *rendergraph.Description {
	t.Helper()
	d := rendergraph.NewDescription()
	d.SetExternalResourceName("backbuffer")
	require.NoError(t, d.AddPass("world", "forward"))
	require.NoError(t, d.AddSubresourceUsage("forward", "depth", rendergraph.Write, rendergraph.WithFormat(rendergraph.FormatD32Float)))
	require.NoError(t, d.AddSubresourceUsage("forward", "backbuffer", rendergraph.Write))
	if withUI {
		require.NoError(t, d.AddPass("ui", "overlay"))
		require.NoError(t, d.AddSubresourceUsage("overlay", "backbuffer", rendergraph.ReadWrite))
	}
	return d
}

func newSystem(t *testing.T, config RenderGraphSystemConfig) (*RenderGraphSystem, *countingBackend) {
	t.Helper()
	core.EventSystemShutdown()
	require.True(t, core.EventSystemInitialize())
	t.Cleanup(core.EventSystemShutdown)

	backend := &countingBackend{HeadlessRenderer: headless.New(headless.DefaultConfig())}
	s, err := NewRenderGraphSystem(config, backend, forwardDescription(t, false))
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	t.Cleanup(func() { assert.NoError(t, s.Shutdown()) })
	return s, backend
}

func TestRenderGraphSystemNotInitialized(t *testing.T) {
	backend := headless.New(headless.DefaultConfig())
	s, err := NewRenderGraphSystem(RenderGraphSystemConfig{}, backend, forwardDescription(t, false))
	require.NoError(t, err)
	assert.ErrorIs(t, s.DrawFrame(context.Background()), ErrGraphSystemNotInitialized)

	_, err = NewRenderGraphSystem(RenderGraphSystemConfig{}, nil, nil)
	assert.ErrorIs(t, err, rendergraph.ErrNoBackend)
}

func TestRenderGraphSystemDrawFrames(t *testing.T) {
	s, backend := newSystem(t, RenderGraphSystemConfig{FramesInFlight: 2})

	for range 5 {
		require.NoError(t, s.DrawFrame(context.Background()))
	}
	assert.Equal(t, uint64(5), s.FrameCounter())
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, backend.Presented())
	assert.Equal(t, 3, backend.waits, "the oldest frame is waited on once the ring is full")
	assert.Equal(t, 2, s.inFlight.Len())

	trace, ok := backend.LastTrace()
	require.True(t, ok)
	assert.Equal(t, rendergraph.Frame{Counter: 4, RotatingIndex: 1}, trace.Frame)
	assert.Equal(t, headless.ImageAvailable{Index: 1}, trace.Wait)
}

func TestRenderGraphSystemResize(t *testing.T) {
	s, backend := newSystem(t, RenderGraphSystemConfig{FramesInFlight: 2, ResizeSettleFrames: 2})
	require.NoError(t, s.DrawFrame(context.Background()))

	var ctx core.EventContext
	ctx.Data.U32[0], ctx.Data.U32[1] = 800, 600
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)

	// First frame after the event still draws at the old size.
	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Equal(t, uint64(2), s.FrameCounter())
	assert.Zero(t, s.Rebuilds())

	// Second frame hands the size to the backend, which reports the
	// swapchain as booting: the graph is rebuilt and the frame skipped.
	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Equal(t, uint64(2), s.FrameCounter())
	assert.Equal(t, 1, s.Rebuilds())
	assert.Equal(t, 1, backend.waitIdles)
	assert.Zero(t, s.inFlight.Len())

	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Equal(t, []uint32{0, 1, 0}, backend.Presented())
}

func TestRenderGraphSystemReload(t *testing.T) {
	s, _ := newSystem(t, RenderGraphSystemConfig{FramesInFlight: 2})

	descs := map[string]*rendergraph.Description{
		"forward_ui.toml": forwardDescription(t, true),
	}
	s.SetLoader(func(path string) (*rendergraph.Description, error) {
		if d, ok := descs[path]; ok {
			return d, nil
		}
		return nil, errors.New("no such file")
	})

	fire := func(path string) {
		var ctx core.EventContext
		ctx.Data.C[0] = path
		core.EventFire(core.EVENT_CODE_GRAPH_CHANGED, nil, ctx)
	}

	require.NoError(t, s.DrawFrame(context.Background()))
	_, ok := s.Plan().Pass("overlay")
	assert.False(t, ok)

	fire("forward_ui.toml")
	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Equal(t, 1, s.Rebuilds())
	_, ok = s.Plan().Pass("overlay")
	assert.True(t, ok)

	// A load failure or a description that does not compile keeps the
	// running plan.
	plan := s.Plan()
	fire("missing.toml")
	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Same(t, plan, s.Plan())

	broken := rendergraph.NewDescription()
	broken.SetExternalResourceName("backbuffer")
	require.NoError(t, broken.AddPass("world", "orphan"))
	require.NoError(t, broken.AddSubresourceUsage("orphan", "color", rendergraph.Read))
	descs["broken.toml"] = broken
	fire("broken.toml")
	require.NoError(t, s.DrawFrame(context.Background()))
	assert.Same(t, plan, s.Plan())
	assert.Equal(t, 1, s.Rebuilds())
}

func TestSystemManager(t *testing.T) {
	core.EventSystemShutdown()
	require.True(t, core.EventSystemInitialize())
	t.Cleanup(core.EventSystemShutdown)

	sm, err := NewSystemManager(RenderGraphSystemConfig{FramesInFlight: 2}, headless.New(headless.DefaultConfig()), forwardDescription(t, false), nil)
	require.NoError(t, err)
	require.NoError(t, sm.Initialize())
	require.NoError(t, sm.RenderGraph().DrawFrame(context.Background()))
	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, sm.RenderGraph().DrawFrame(context.Background()), ErrGraphSystemNotInitialized)
}
