package platform

import (
	"errors"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

var ErrVulkanUnsupported = errors.New("glfw: no vulkan loader found")

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the window the vulkan backend presents to and translates
// its events into engine events.
type Platform struct {
	Window *glfw.Window
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return ErrVulkanUnsupported
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetCloseCallback(closeCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages dispatches pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) RequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, err
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	width, height := p.Window.GetFramebufferSize()
	return clampSize(width), clampSize(height)
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}
}

func closeCallback(w *glfw.Window) {
	fireQuit()
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	fireResized(width, height)
}

func fireQuit() bool {
	return core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
}

// fireResized forwards a framebuffer size to the resize listeners. A
// minimized window reports 0x0.
func fireResized(width, height int) bool {
	var context core.EventContext
	context.Data.U32[0], context.Data.U32[1] = clampSize(width), clampSize(height)
	return core.EventFire(core.EVENT_CODE_RESIZED, nil, context)
}

func clampSize(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
