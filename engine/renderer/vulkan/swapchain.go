package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	fmath "github.com/spaghettifunk/framegraph/engine/math"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

type SwapchainConfig struct {
	Width, Height   uint32
	ImageCount      uint32
	PreferredFormat vk.Format
	VSync           bool
}

func SwapchainCreate(context *VulkanContext, config SwapchainConfig) (*VulkanSwapchain, error) {
	return createSwapchain(context, config, nil)
}

// SwapchainRecreate replaces the swapchain, handing the old one to the
// driver so in-flight presentation can finish.
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, config SwapchainConfig) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	sc, err := createSwapchain(context, config, vs.Handle)
	vs.SwapchainDestroy(context)
	return sc, err
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	if vs.Handle != nil {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
	vs.Images = nil
}

// SwapchainAcquireNextImageIndex returns core.ErrSwapchainBooting when the
// swapchain is out of date and must be recreated.
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, vk.NullFence, &imageIndex)

	switch {
	case result == vk.ErrorOutOfDate:
		context.FramebufferSizeGeneration++
		return 0, core.ErrSwapchainBooting
	case result != vk.Success && result != vk.Suboptimal:
		err := resultError("vkAcquireNextImageKHR", result)
		core.LogError("%s", err)
		return 0, err
	}
	return imageIndex, nil
}

func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, presentQueue vk.Queue, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) error {
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
	}

	result := vk.QueuePresent(presentQueue, &presentInfo)
	switch {
	case result == vk.ErrorOutOfDate, result == vk.Suboptimal:
		// Out of date, suboptimal or resized: the next frame rebuilds.
		context.FramebufferSizeGeneration++
		return core.ErrSwapchainBooting
	case result != vk.Success:
		err := resultError("vkQueuePresentKHR", result)
		core.LogError("%s", err)
		return err
	}
	return nil
}

func createSwapchain(context *VulkanContext, config SwapchainConfig, old vk.Swapchain) (*VulkanSwapchain, error) {
	support := &context.Device.SwapchainSupport
	if support.FormatCount == 0 {
		return nil, ErrNoSurfaceFormat
	}
	swapchain := &VulkanSwapchain{
		ImageFormat: support.Formats[0],
		Extent:      vk.Extent2D{Width: config.Width, Height: config.Height},
	}

	// Choose a swap surface format.
	preferred := config.PreferredFormat
	if preferred == vk.FormatUndefined {
		preferred = vk.FormatB8g8r8a8Unorm
	}
	for _, format := range support.Formats[:support.FormatCount] {
		if format.Format == preferred && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !config.VSync {
		for _, mode := range support.PresentModes[:support.PresentModeCount] {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	// Swapchain extent
	capabilities := support.Capabilities
	capabilities.Deref()
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchain.Extent = capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	lo, hi := capabilities.MinImageExtent, capabilities.MaxImageExtent
	swapchain.Extent.Width = fmath.Clamp(swapchain.Extent.Width, lo.Width, hi.Width)
	swapchain.Extent.Height = fmath.Clamp(swapchain.Extent.Height, lo.Height, hi.Height)

	imageCount := config.ImageCount
	if imageCount == 0 {
		imageCount = capabilities.MinImageCount + 1
	}
	imageCount = max(imageCount, capabilities.MinImageCount)
	if capabilities.MaxImageCount > 0 {
		imageCount = min(imageCount, capabilities.MaxImageCount)
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    presentMode,
		Clipped:        vk.True,
		OldSwapchain:   old,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			context.Device.GraphicsQueueIndex,
			context.Device.PresentQueueIndex,
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if err := resultError("vkCreateSwapchainKHR", vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchain.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	// Images
	if err := resultError("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	if err := resultError("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	context.FramebufferWidth = swapchain.Extent.Width
	context.FramebufferHeight = swapchain.Extent.Height
	context.FramebufferSizeLastGeneration = context.FramebufferSizeGeneration

	core.LogInfo("Swapchain created: %d images %dx%d.", swapchain.ImageCount, swapchain.Extent.Width, swapchain.Extent.Height)
	return swapchain, nil
}
