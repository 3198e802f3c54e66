package engine

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
)

var ErrInvalidApplicationConfig = errors.New("invalid application config")

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Graph description file, .toml or .hcl.
	GraphPath string `toml:"graph"`
	// Backend kind: headless, vulkan or wgpu.
	Backend string `toml:"backend"`
	// Framebuffer size the graph's targets are created with.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Number of images in the external ring.
	SwapchainImages uint32 `toml:"swapchain_images"`
	FramesInFlight  uint32 `toml:"frames_in_flight"`
	// Stop after this many frames; 0 runs until quit.
	FrameLimit uint64 `toml:"frame_limit"`
	// Target frame rate; 0 does not limit.
	TargetFPS float64 `toml:"target_fps"`
	// Rebuild the graph when the description file changes.
	Watch           bool   `toml:"watch"`
	WatchDebounceMS uint32 `toml:"watch_debounce_ms"`
	// Frames to keep drawing at the old size after a resize.
	ResizeSettleFrames uint8 `toml:"resize_settle_frames"`
	AsyncCompute       bool  `toml:"async_compute"`
	AsyncCopy          bool  `toml:"async_copy"`
	// Enables the vulkan validation layer.
	Validation bool `toml:"validation"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:               "framegraph",
		LogLevel:           "info",
		Backend:            "headless",
		Width:              1280,
		Height:             720,
		SwapchainImages:    3,
		FramesInFlight:     2,
		WatchDebounceMS:    100,
		ResizeSettleFrames: 30,
	}
}

// LoadApplicationConfig reads a TOML config over the defaults.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()
	if err := loaders.LoadApplicationConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *ApplicationConfig) Validate() error {
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidApplicationConfig, c.LogLevel)
	}
	if _, err := renderer.ParseRendererType(c.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidApplicationConfig, err)
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: framebuffer size %dx%d", ErrInvalidApplicationConfig, c.Width, c.Height)
	}
	if c.SwapchainImages == 0 || c.FramesInFlight == 0 {
		return fmt.Errorf("%w: swapchain images and frames in flight must be at least 1", ErrInvalidApplicationConfig)
	}
	if c.TargetFPS < 0 {
		return fmt.Errorf("%w: negative target fps", ErrInvalidApplicationConfig)
	}
	return nil
}

// GraphVariables are the values HCL graph descriptions may reference.
func (c *ApplicationConfig) GraphVariables() loaders.Variables {
	return loaders.Variables{
		FramesInFlight:  c.FramesInFlight,
		SwapchainImages: c.SwapchainImages,
	}
}
