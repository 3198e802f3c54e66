package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Width  uint32
	Height uint32
	Format vk.Format
	// Owned is false for swapchain images, which are destroyed with the
	// swapchain.
	Owned bool
}

type ImageConfig struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	MutableFormat bool
	MemoryFlags   vk.MemoryPropertyFlags
}

// ImageCreate creates a 2D optimal-tiling image and binds fresh memory to it.
func ImageCreate(context *VulkanContext, config ImageConfig) (*VulkanImage, error) {
	image := &VulkanImage{
		Width:  config.Width,
		Height: config.Height,
		Format: config.Format,
		Owned:  true,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    config.Format,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         config.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if config.MutableFormat {
		imageCreateInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit)
	}

	if err := resultError("vkCreateImage", vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &image.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, config.MemoryFlags)
	if err != nil {
		image.Destroy(context)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &image.Memory)); err != nil {
		core.LogError("%s", err)
		image.Destroy(context)
		return nil, err
	}

	// TODO: configurable memory offset for suballocation.
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0)); err != nil {
		core.LogError("%s", err)
		image.Destroy(context)
		return nil, err
	}
	return image, nil
}

// ImageViewCreate creates a 2D view of an image with the given format and
// aspect.
func ImageViewCreate(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := resultError("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return view, nil
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	if !vi.Owned {
		return
	}
	if vi.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}
