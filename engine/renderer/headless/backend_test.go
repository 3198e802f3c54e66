package headless

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

func ssaoDescription(t *testing.T) *rendergraph.Description {
	t.Helper()
	d := rendergraph.NewDescription()
	d.SetExternalResourceName("backbuffer")
	require.NoError(t, d.AddPass("world", "gbuffer"))
	require.NoError(t, d.AddPass("compute", "ssao"))
	require.NoError(t, d.AddPass("graphics", "lighting"))

	require.NoError(t, d.AddSubresourceUsage("gbuffer", "albedo", rendergraph.Write, rendergraph.WithFormat(rendergraph.FormatRGBA8Unorm)))
	require.NoError(t, d.AddSubresourceUsage("gbuffer", "depth", rendergraph.Write, rendergraph.WithFormat(rendergraph.FormatD32Float)))
	require.NoError(t, d.AddSubresourceUsage("ssao", "depth", rendergraph.Read))
	require.NoError(t, d.AddSubresourceUsage("ssao", "ao", rendergraph.Write,
		rendergraph.WithFormat(rendergraph.FormatR8Unorm), rendergraph.WithMultiplicity(2)))
	require.NoError(t, d.AddSubresourceUsage("lighting", "albedo", rendergraph.Read))
	require.NoError(t, d.AddSubresourceUsage("lighting", "ao", rendergraph.Read))
	require.NoError(t, d.AddSubresourceUsage("lighting", "backbuffer", rendergraph.Write))
	return d
}

func buildGraph(t *testing.T, config Config) (*HeadlessRenderer, *rendergraph.Graph) {
	t.Helper()
	backend := New(config)
	g := rendergraph.NewGraph(ssaoDescription(t), backend)
	require.NoError(t, g.Build())
	return backend, g
}

func TestHeadlessCreatesObjects(t *testing.T) {
	config := DefaultConfig()
	config.AsyncCompute = true
	backend, g := buildGraph(t, config)
	plan := g.Plan()

	images := backend.Images()
	require.Len(t, images, int(plan.InstanceCount))
	assert.Len(t, backend.Views(), int(plan.ViewCount))
	assert.Len(t, backend.PassObjects(), int(plan.PassObjectCount))

	var external int
	for _, img := range images {
		assert.NotEqual(t, uuid.Nil, img.ID)
		if img.External {
			external++
			assert.Equal(t, "backbuffer", img.Resource)
			assert.Equal(t, rendergraph.FormatBGRA8Unorm, img.Format)
		}
	}
	assert.Equal(t, 3, external)

	ssao := passOf(t, plan, "ssao")
	assert.Equal(t, rendergraph.QueueDomain(1), ssao.Domain)
	before, _ := backend.Barriers(ssao.Handle)
	require.NotEmpty(t, before)
	for _, b := range before {
		assert.Equal(t, rendergraph.BarrierAcquire, b.Kind, "ssao %s", b.ResourceName)
	}
}

func TestHeadlessPassObjectBindings(t *testing.T) {
	backend, g := buildGraph(t, DefaultConfig())
	plan := g.Plan()
	objects := backend.PassObjects()

	for counter := range uint64(6) {
		for rot := range uint32(3) {
			frame := rendergraph.Frame{Counter: counter, RotatingIndex: rot}
			for _, lvl := range plan.Levels {
				for i := lvl.Begin; i < lvl.End; i++ {
					cp := &plan.Passes[i]
					obj := objects[cp.ObjectIndex(frame)]
					assert.Equal(t, cp.Name, obj.Pass)
					require.Len(t, obj.Bindings, len(cp.Usages))
					for k := range cp.Usages {
						instance, view := plan.UsageInstance(&cp.Usages[k], frame)
						assert.Equal(t, instance, obj.Bindings[k].Instance, "%s/%s frame %+v", cp.Name, cp.Usages[k].ResourceName, frame)
						assert.Equal(t, view, obj.Bindings[k].View)
					}
				}
			}
		}
	}
}

func TestHeadlessTrace(t *testing.T) {
	backend, g := buildGraph(t, DefaultConfig())
	backend.RegisterPassFunc("graphics", func(ctx context.Context, rec *Recorder, inst rendergraph.PassInstance) error {
		rec.Emit("draw fullscreen triangle")
		return nil
	})

	ctx := context.Background()
	rot, available, err := backend.AcquireNextImage(ctx, 0)
	require.NoError(t, err)
	signal, err := g.Traverse(ctx, 0, rot, available)
	require.NoError(t, err)
	assert.Equal(t, Fence{Frame: 0}, signal)
	require.NoError(t, backend.Present(ctx, rot, signal))
	require.NoError(t, backend.Wait(ctx, signal))

	trace, ok := backend.LastTrace()
	require.True(t, ok)
	assert.Equal(t, ImageAvailable{Index: 0}, trace.Wait)

	var begun []string
	var draws int
	open := ""
	for _, cmd := range trace.Commands {
		switch cmd.Op {
		case OpBeginPass:
			assert.Empty(t, open, "passes do not nest")
			open = cmd.Pass
			begun = append(begun, cmd.Pass)
		case OpEndPass:
			assert.Equal(t, open, cmd.Pass)
			open = ""
		case OpCommand:
			assert.Equal(t, "lighting", cmd.Pass)
			assert.Equal(t, "draw fullscreen triangle", cmd.Text)
			draws++
		}
	}
	assert.Equal(t, []string{"gbuffer", "ssao", "lighting"}, begun)
	assert.Equal(t, 1, draws)
	assert.Equal(t, []uint32{0}, backend.Presented())
}

func TestHeadlessTraceDepth(t *testing.T) {
	config := DefaultConfig()
	config.TraceDepth = 2
	backend, g := buildGraph(t, config)

	for counter := range uint64(5) {
		_, err := g.Traverse(context.Background(), counter, uint32(counter%3), nil)
		require.NoError(t, err)
	}
	trace, ok := backend.LastTrace()
	require.True(t, ok)
	assert.Equal(t, uint64(4), trace.Frame.Counter)
	assert.Equal(t, 2, backend.traces.Len())
}

func TestHeadlessSwapchain(t *testing.T) {
	backend := New(DefaultConfig())
	ctx := context.Background()

	var got []uint32
	for frame := range uint64(4) {
		rot, _, err := backend.AcquireNextImage(ctx, frame)
		require.NoError(t, err)
		got = append(got, rot)
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, got)

	require.NoError(t, backend.Resized(640, 480))
	_, _, err := backend.AcquireNextImage(ctx, 4)
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	rot, _, err := backend.AcquireNextImage(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rot)
}

func TestHeadlessSignals(t *testing.T) {
	backend, _ := buildGraph(t, DefaultConfig())
	_, err := backend.Submit(context.Background(), rendergraph.Frame{}, "semaphore")
	assert.ErrorIs(t, err, ErrUnknownSignal)
	assert.ErrorIs(t, backend.Wait(context.Background(), 42), ErrUnknownSignal)
}

func passOf(t *testing.T, plan *rendergraph.Plan, name string) *rendergraph.CompiledPass {
	t.Helper()
	cp, ok := plan.Pass(name)
	require.True(t, ok, name)
	return cp
}
