package testbed

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	frames  uint64
	width   uint32
	height  uint32
}

// NewTestGame creates a game that draws the deferred sample frame. The
// description is built in code when the config names no graph file.
func NewTestGame(config *engine.ApplicationConfig) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}
	if config.GraphPath == "" {
		d, err := DeferredDescription(config.FramesInFlight)
		if err != nil {
			return nil, err
		}
		tg.Description = d
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing %s", g.ApplicationConfig.Name)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(frame uint64, deltaTime float64) error {
	g.state().frames = frame
	if frame > 0 && frame%120 == 0 {
		core.LogDebug("frame %d after %.2fs", frame, g.state().elapsed)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down after %d frames", g.state().frames)
	return nil
}

// DeferredDescription is the frame in graphs/deferred.toml.
func DeferredDescription(framesInFlight uint32) (*rendergraph.Description, error) {
	type usage struct {
		pass, resource string
		access         rendergraph.AccessIntent
		opts           []rendergraph.UsageOption
	}
	d := rendergraph.NewDescription()
	d.SetExternalResourceName("backbuffer")

	passes := [][2]string{
		{"world", "depth_prepass"},
		{"world", "gbuffer"},
		{"compute", "ssao"},
		{"graphics", "lighting"},
		{"skybox", "sky"},
		{"compute", "taa"},
		{"graphics", "tonemap"},
		{"ui", "overlay"},
		{"copy", "capture"},
	}
	for _, p := range passes {
		if err := d.AddPass(p[0], p[1]); err != nil {
			return nil, err
		}
	}

	usages := []usage{
		{"depth_prepass", "depth", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatD32Float)}},
		{"gbuffer", "depth", rendergraph.Read, []rendergraph.UsageOption{rendergraph.WithRole(rendergraph.RoleDepthAttachment)}},
		{"gbuffer", "albedo", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatRGBA8Unorm)}},
		{"gbuffer", "normal", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatRGBA16Float)}},
		{"ssao", "depth", rendergraph.Read, nil},
		{"ssao", "normal", rendergraph.Read, nil},
		{"ssao", "ao", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatR8Unorm)}},
		{"lighting", "albedo", rendergraph.Read, nil},
		{"lighting", "normal", rendergraph.Read, nil},
		{"lighting", "ao", rendergraph.Read, nil},
		{"lighting", "hdr", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatRGBA16Float)}},
		{"sky", "depth", rendergraph.Read, []rendergraph.UsageOption{rendergraph.WithRole(rendergraph.RoleDepthAttachment)}},
		{"sky", "hdr", rendergraph.ReadWrite, nil},
		{"taa", "hdr", rendergraph.Read, nil},
		{"taa", "history", rendergraph.ReadWrite, []rendergraph.UsageOption{
			rendergraph.WithFormat(rendergraph.FormatRGBA16Float),
			rendergraph.WithMultiplicity(framesInFlight),
		}},
		{"tonemap", "history", rendergraph.Read, nil},
		{"tonemap", "backbuffer", rendergraph.Write, nil},
		{"overlay", "backbuffer", rendergraph.ReadWrite, nil},
		{"capture", "history", rendergraph.Read, nil},
		{"capture", "capture", rendergraph.Write, []rendergraph.UsageOption{rendergraph.WithFormat(rendergraph.FormatRGBA16Float)}},
	}
	for _, u := range usages {
		if err := d.AddSubresourceUsage(u.pass, u.resource, u.access, u.opts...); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", u.pass, u.resource, err)
		}
	}
	return d, nil
}

// RegisterHeadlessPasses gives the headless backend something to record for
// every pass type of the sample frame.
func RegisterHeadlessPasses(h *headless.HeadlessRenderer) {
	draw := func(what string) headless.PassFunc {
		return func(ctx context.Context, rec *headless.Recorder, inst rendergraph.PassInstance) error {
			rec.Emit("%s with %d bindings", what, len(rec.Object().Bindings))
			return nil
		}
	}
	h.RegisterPassFunc("world", draw("draw opaque meshes"))
	h.RegisterPassFunc("skybox", draw("draw skybox cube"))
	h.RegisterPassFunc("graphics", draw("draw fullscreen triangle"))
	h.RegisterPassFunc("compute", draw("dispatch 160x90x1"))
	h.RegisterPassFunc("ui", draw("draw ui quads"))
	h.RegisterPassFunc("copy", draw("copy image"))
}
