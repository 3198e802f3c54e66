package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/framegraph/engine/renderer/wgpu"
)

// NewBackend creates the backend named by the config. The vulkan backend
// opens a window and presents to its surface.
func NewBackend(config *ApplicationConfig) (renderer.RendererBackend, error) {
	kind, err := renderer.ParseRendererType(config.Backend)
	if err != nil {
		return nil, err
	}

	switch kind {
	case renderer.Headless:
		cfg := headless.DefaultConfig()
		cfg.SwapchainImages = config.SwapchainImages
		cfg.Width, cfg.Height = config.Width, config.Height
		cfg.AsyncCompute = config.AsyncCompute
		cfg.AsyncCopy = config.AsyncCopy
		return headless.New(cfg), nil

	case renderer.WebGPU:
		// Offscreen: the targets are plain textures on the no-op device.
		open, err := (&noop.Adapter{}).Open(0, gputypes.Limits{})
		if err != nil {
			return nil, err
		}
		cfg := wgpu.DefaultConfig()
		cfg.TargetImages = config.SwapchainImages
		cfg.Width, cfg.Height = config.Width, config.Height
		return wgpu.FromHAL(open, cfg)

	case renderer.Vulkan:
		b, err := newWindowedBackend(config)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", renderer.ErrUnsupportedRenderer, kind, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", renderer.ErrUnsupportedRenderer, kind)
}
