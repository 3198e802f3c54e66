package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

var (
	ErrNoInstanceProcAddr     = errors.New("vkGetInstanceProcAddr is not available")
	ErrMissingValidationLayer = errors.New("required validation layer is missing")
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// SurfaceSource is the window host the instance and the surface are created
// for.
type SurfaceSource interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredExtensionNames() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (uint32, uint32)
}

type InstanceConfig struct {
	ApplicationName string
	// Enables the validation layer and the debug report callback.
	Validation bool
}

// ContextCreate loads the loader through source, creates the instance and
// the surface and returns a context ready for New.
func ContextCreate(source SurfaceSource, config InstanceConfig) (*VulkanContext, error) {
	procAddr := source.InstanceProcAddr()
	if procAddr == nil {
		core.LogError("GetInstanceProcAddress is nil")
		return nil, ErrNoInstanceProcAddr
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
		Locks:     NewVulkanLockPool(),
	}
	context.FramebufferWidth, context.FramebufferHeight = source.FramebufferSize()

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		PEngineName:        VulkanSafeString("framegraph"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	extensions := requiredExtensions(source.RequiredExtensionNames(), runtime.GOOS, config.Validation)
	for _, name := range extensions {
		core.LogDebug("required extension: %s", name)
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if config.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := instanceLayers()
		if err != nil {
			return nil, err
		}
		layers = []string{validationLayerName}
		if err := checkLayers(layers, available); err != nil {
			core.LogError("%s", err)
			return nil, err
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, context.Allocator, &context.Instance)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError("%s", err)
		context.ContextDestroy()
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
			core.LogError("%s", err)
			context.ContextDestroy()
			return nil, err
		}
		context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := source.CreateSurface(context.Instance)
	if err != nil {
		core.LogError("Vulkan surface creation failed: %s", err)
		context.ContextDestroy()
		return nil, err
	}
	context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	return context, nil
}

// ContextDestroy releases what ContextCreate created. The device and the
// swapchain must already be gone.
func (vc *VulkanContext) ContextDestroy() {
	if vc.Instance == nil {
		return
	}
	if vc.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}
	if vc.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugCallback, vc.Allocator)
		vc.debugCallback = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vc.Instance, vc.Allocator)
	vc.Instance = nil
}

func requiredExtensions(platform []string, goos string, validation bool) []string {
	// Generic surface extension.
	extensions := []string{"VK_KHR_surface"}
	for _, name := range platform {
		if name != "VK_KHR_surface" {
			extensions = append(extensions, name)
		}
	}
	if goos == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	return extensions
}

func instanceLayers() ([]string, error) {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	properties := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, properties)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := range properties {
		properties[i].Deref()
		end := FindFirstZeroInByteArray(properties[i].LayerName[:])
		names = append(names, vk.ToString(properties[i].LayerName[:end+1]))
	}
	return names, nil
}

func checkLayers(required, available []string) error {
	for _, name := range required {
		core.LogInfo("Searching for layer: %s...", name)
		found := false
		for _, have := range available {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrMissingValidationLayer, name)
		}
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
