package vulkan

import (
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windowStub struct {
	procAddr   unsafe.Pointer
	extensions []string
	surfaces   int
}

func (w *windowStub) InstanceProcAddr() unsafe.Pointer  { return w.procAddr }
func (w *windowStub) RequiredExtensionNames() []string  { return w.extensions }
func (w *windowStub) FramebufferSize() (uint32, uint32) { return 640, 480 }
func (w *windowStub) CreateSurface(vk.Instance) (vk.Surface, error) {
	w.surfaces++
	return vk.NullSurface, nil
}

func TestContextCreateWithoutLoader(t *testing.T) {
	window := &windowStub{extensions: []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}}
	context, err := ContextCreate(window, InstanceConfig{ApplicationName: "test"})
	assert.ErrorIs(t, err, ErrNoInstanceProcAddr)
	assert.Nil(t, context)
	assert.Zero(t, window.surfaces)
}

func TestRequiredExtensions(t *testing.T) {
	platform := []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}

	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}, requiredExtensions(platform, "linux", false))

	got := requiredExtensions(platform, "linux", true)
	assert.Equal(t, vk.ExtDebugReportExtensionName, got[len(got)-1])

	got = requiredExtensions([]string{"VK_EXT_metal_surface"}, "darwin", false)
	assert.Contains(t, got, "VK_KHR_portability_enumeration")
	assert.Equal(t, "VK_KHR_surface", got[0])
}

func TestCheckLayers(t *testing.T) {
	require.NoError(t, checkLayers([]string{validationLayerName}, []string{"VK_LAYER_MESA_overlay", validationLayerName}))
	assert.ErrorIs(t, checkLayers([]string{validationLayerName}, nil), ErrMissingValidationLayer)
}

func TestDebugCallbackNeverAborts(t *testing.T) {
	for _, flags := range []vk.DebugReportFlags{
		vk.DebugReportFlags(vk.DebugReportErrorBit),
		vk.DebugReportFlags(vk.DebugReportWarningBit),
		vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit),
		vk.DebugReportFlags(vk.DebugReportInformationBit),
	} {
		got := dbgCallbackFunc(flags, vk.DebugReportObjectType(0), 0, 0, 1, "layer", "message", nil)
		assert.Equal(t, vk.Bool32(vk.False), got)
	}
}

func TestContextDestroyWithoutInstance(t *testing.T) {
	context := &VulkanContext{}
	assert.NotPanics(t, context.ContextDestroy)
}
