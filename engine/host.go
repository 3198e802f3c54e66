package engine

import (
	"errors"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/platform"
	"github.com/spaghettifunk/framegraph/engine/renderer/vulkan"
)

// MessagePump is implemented by backends that own a window. The engine
// pumps it once per frame and stops when it returns false.
type MessagePump interface {
	PumpMessages() bool
}

// WindowedBackend is the vulkan backend presenting to a glfw window.
type WindowedBackend struct {
	*vulkan.VulkanRenderer

	platform *platform.Platform
	context  *vulkan.VulkanContext
}

func newWindowedBackend(config *ApplicationConfig) (*WindowedBackend, error) {
	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	if err := p.Startup(config.Name, 100, 100, config.Width, config.Height); err != nil {
		return nil, err
	}

	context, err := vulkan.ContextCreate(p, vulkan.InstanceConfig{
		ApplicationName: config.Name,
		Validation:      config.Validation,
	})
	if err != nil {
		_ = p.Shutdown()
		return nil, err
	}

	vr, err := vulkan.New(context, vulkan.Config{
		FramesInFlight: config.FramesInFlight,
		Swapchain: vulkan.SwapchainConfig{
			Width:      context.FramebufferWidth,
			Height:     context.FramebufferHeight,
			ImageCount: config.SwapchainImages,
			VSync:      config.TargetFPS == 0,
		},
		Requirements: vulkan.DefaultDeviceRequirements(),
	})
	if err != nil {
		vulkan.DeviceDestroy(context)
		context.ContextDestroy()
		_ = p.Shutdown()
		return nil, err
	}

	core.LogInfo("vulkan backend presenting to a %dx%d window", context.FramebufferWidth, context.FramebufferHeight)
	return &WindowedBackend{VulkanRenderer: vr, platform: p, context: context}, nil
}

func (b *WindowedBackend) PumpMessages() bool {
	return b.platform.PumpMessages()
}

// Shutdown tears down the device, then the instance, then the window.
func (b *WindowedBackend) Shutdown() error {
	err := b.VulkanRenderer.Shutdown()
	b.context.ContextDestroy()
	return errors.Join(err, b.platform.Shutdown())
}
