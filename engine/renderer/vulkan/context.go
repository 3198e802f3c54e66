package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// VulkanContext holds the objects shared by every part of the backend.
// ContextCreate fills the instance and the surface; New owns the rest.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32
	// Current generation of framebuffer size. If it does not match
	// FramebufferSizeLastGeneration, the swapchain must be recreated.
	FramebufferSizeGeneration uint64
	// The generation of the framebuffer when it was last created.
	FramebufferSizeLastGeneration uint64

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	Locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		flags := memoryProperties.MemoryTypes[i].PropertyFlags
		if typeFilter&(1<<i) != 0 && flags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	err := fmt.Errorf("no memory type matches filter %#x with flags %#x", typeFilter, uint32(propertyFlags))
	core.LogWarn("%s", err)
	return 0, err
}
