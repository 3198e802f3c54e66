package renderer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedRenderer = errors.New("unsupported renderer backend")

type RendererType uint8

const (
	Headless RendererType = iota
	Vulkan
	WebGPU
)

func (t RendererType) String() string {
	switch t {
	case Headless:
		return "headless"
	case Vulkan:
		return "vulkan"
	case WebGPU:
		return "wgpu"
	default:
		return fmt.Sprintf("renderer(%d)", uint8(t))
	}
}

func ParseRendererType(s string) (RendererType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "headless", "null":
		return Headless, nil
	case "vulkan", "vk":
		return Vulkan, nil
	case "wgpu", "webgpu":
		return WebGPU, nil
	}
	return Headless, fmt.Errorf("%w: %q", ErrUnsupportedRenderer, s)
}
