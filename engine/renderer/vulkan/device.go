package vulkan

import (
	"runtime"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	ComputeQueueIndex  uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	ComputeQueue  vk.Queue
	TransferQueue vk.Queue

	// Used for one-off work such as initial layout transitions.
	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func DefaultDeviceRequirements() VulkanPhysicalDeviceRequirements {
	return VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		Compute:              true,
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
}

// DeviceCreate selects a physical device, creates the logical device with
// one queue per distinct family and the graphics command pool.
func DeviceCreate(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	context.Device = &VulkanDevice{}
	if err := SelectPhysicalDevice(context, &requirements); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	device := context.Device

	// NOTE: Do not create additional queues for shared indices.
	var indices []uint32
	for _, index := range []uint32{device.GraphicsQueueIndex, device.PresentQueueIndex, device.ComputeQueueIndex, device.TransferQueueIndex} {
		found := false
		for _, seen := range indices {
			found = found || seen == index
		}
		if !found {
			indices = append(indices, index)
		}
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if deviceHasExtension(device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if err := resultError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice)); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Logical device created.")

	// Get queues.
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, device.PresentQueueIndex, 0, &device.PresentQueue)
	vk.GetDeviceQueue(device.LogicalDevice, device.ComputeQueueIndex, 0, &device.ComputeQueue)
	vk.GetDeviceQueue(device.LogicalDevice, device.TransferQueueIndex, 0, &device.TransferQueue)
	core.LogInfo("Queues obtained.")

	pool, err := CommandPoolCreate(context, device.GraphicsQueueIndex)
	if err != nil {
		return err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

// CommandPoolCreate creates a pool whose buffers can be reset one by one.
func CommandPoolCreate(context *VulkanContext, queueFamily uint32) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return pool, nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	// Unset queues
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.ComputeQueue = nil
	device.TransferQueue = nil

	core.LogInfo("Destroying command pools...")
	if device.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = nil
	}

	// Destroy logical device
	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()

	// Surface formats
	if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil)); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats)); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil)); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes)); err != nil {
			return err
		}
	}
	return nil
}

func SelectPhysicalDevice(context *VulkanContext, requirements *VulkanPhysicalDeviceRequirements) error {
	var physicalDeviceCount uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return ErrNoSuitableDevice
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		var queueInfo VulkanPhysicalDeviceQueueFamilyInfo
		var support VulkanSwapchainSupportInfo
		if !PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, requirements, &queueInfo, &support) {
			continue
		}

		name := string(properties.DeviceName[:FindFirstZeroInByteArray(properties.DeviceName[:])])
		core.LogInfo("Selected device: '%s'.", name)
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		device := context.Device
		device.PhysicalDevice = physicalDevice
		device.SwapchainSupport = support
		device.GraphicsQueueIndex = uint32(queueInfo.GraphicsFamilyIndex)
		device.PresentQueueIndex = uint32(queueInfo.PresentFamilyIndex)
		device.ComputeQueueIndex = device.GraphicsQueueIndex
		device.TransferQueueIndex = device.GraphicsQueueIndex
		if queueInfo.ComputeFamilyIndex >= 0 {
			device.ComputeQueueIndex = uint32(queueInfo.ComputeFamilyIndex)
		}
		if queueInfo.TransferFamilyIndex >= 0 {
			device.TransferQueueIndex = uint32(queueInfo.TransferFamilyIndex)
		}
		// Keep a copy of properties, features and memory info for later use.
		device.Properties = properties
		device.Features = features
		device.Memory = memory

		core.LogInfo("Physical device selected.")
		return nil
	}

	core.LogError("No physical devices were found which meet the requirements.")
	return ErrNoSuitableDevice
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	*outQueueInfo = VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		ComputeFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Prefer dedicated compute and transfer families: the lowest score wins.
	minComputeScore, minTransferScore := 255, 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		score := 0

		if flags&vk.QueueGraphicsBit != 0 {
			if outQueueInfo.GraphicsFamilyIndex < 0 {
				outQueueInfo.GraphicsFamilyIndex = int32(i)
			}
			score++
		}
		if flags&vk.QueueComputeBit != 0 && score < minComputeScore {
			minComputeScore = score
			outQueueInfo.ComputeFamilyIndex = int32(i)
		}
		if flags&vk.QueueComputeBit != 0 {
			score++
		}
		if flags&vk.QueueTransferBit != 0 && score < minTransferScore {
			minTransferScore = score
			outQueueInfo.TransferFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		// Prefer presenting from the graphics family.
		if supportsPresent == vk.True && (outQueueInfo.PresentFamilyIndex < 0 || int32(i) == outQueueInfo.GraphicsFamilyIndex) {
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", outQueueInfo.PresentFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", outQueueInfo.ComputeFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", outQueueInfo.TransferFamilyIndex)

	if (requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && outQueueInfo.PresentFamilyIndex < 0) ||
		(requirements.Compute && outQueueInfo.ComputeFamilyIndex < 0) ||
		(requirements.Transfer && outQueueInfo.TransferFamilyIndex < 0) {
		core.LogInfo("Device does not meet queue requirements, skipping.")
		return false
	}

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		core.LogWarn("Swapchain support query failed: %s", err)
		return false
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	for _, name := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return false
		}
	}
	return true
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		ext := available[i].ExtensionName[:]
		if string(ext[:FindFirstZeroInByteArray(ext)]) == strings.TrimRight(name, end) {
			return true
		}
	}
	return false
}
