package vulkan

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type Config struct {
	FramesInFlight uint32
	Swapchain      SwapchainConfig
	Requirements   VulkanPhysicalDeviceRequirements
}

// VulkanPassObject binds, for one pass-object index, the image and view each
// usage of the pass refers to.
type VulkanPassObject struct {
	Pass   *rendergraph.CompiledPass
	Images []vk.Image
	Views  []vk.ImageView
}

// PassFunc records the content of a pass between its barriers. Callbacks
// are keyed by pass type.
type PassFunc func(ctx context.Context, commandBuffer *VulkanCommandBuffer, object *VulkanPassObject) error

// ImageAvailable is returned by AcquireNextImage and waited on by Submit.
type ImageAvailable struct {
	Semaphore vk.Semaphore
}

// FrameSignal is returned by Submit. Present waits on its semaphore and the
// frame driver waits on its fence before reusing the frame slot.
type FrameSignal struct {
	Fence          *VulkanFence
	RenderComplete vk.Semaphore
}

type frameSlot struct {
	imageAvailable vk.Semaphore
	renderComplete vk.Semaphore
	inFlight       *VulkanFence
	// One pool and primary buffer per dependency level, so levels can be
	// recorded concurrently.
	pools   []vk.CommandPool
	buffers []*VulkanCommandBuffer
}

type VulkanRenderer struct {
	context *VulkanContext
	config  Config

	mu      sync.Mutex
	plan    *rendergraph.Plan
	images  []*VulkanImage
	views   []vk.ImageView
	objects []VulkanPassObject
	before  map[rendergraph.PassHandle][]barrierTemplate
	after   map[rendergraph.PassHandle][]barrierTemplate
	frames  []frameSlot
	passFns map[string]PassFunc
}

// New creates the device, the swapchain and the per-frame synchronization
// objects on top of the instance and surface held by context.
func New(context *VulkanContext, config Config) (*VulkanRenderer, error) {
	if config.FramesInFlight == 0 {
		config.FramesInFlight = 2
	}
	if context.Locks == nil {
		context.Locks = NewVulkanLockPool()
	}
	if config.Swapchain.Width == 0 {
		config.Swapchain.Width, config.Swapchain.Height = context.FramebufferWidth, context.FramebufferHeight
	}

	vr := &VulkanRenderer{
		context: context,
		config:  config,
		before:  map[rendergraph.PassHandle][]barrierTemplate{},
		after:   map[rendergraph.PassHandle][]barrierTemplate{},
		passFns: map[string]PassFunc{},
	}

	if err := DeviceCreate(context, config.Requirements); err != nil {
		core.LogError("Failed to create device!")
		return nil, err
	}

	sc, err := SwapchainCreate(context, config.Swapchain)
	if err != nil {
		return nil, err
	}
	context.Swapchain = sc

	vr.frames = make([]frameSlot, config.FramesInFlight)
	for i := range vr.frames {
		frame := &vr.frames[i]
		if frame.imageAvailable, err = semaphoreCreate(context); err != nil {
			return nil, err
		}
		if frame.renderComplete, err = semaphoreCreate(context); err != nil {
			return nil, err
		}
		// Create the fence in a signaled state, indicating that the first
		// frame has already been "rendered".
		if frame.inFlight, err = NewFence(context, true); err != nil {
			return nil, err
		}
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return vr, nil
}

func semaphoreCreate(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return semaphore, nil
}

// RegisterPassFunc sets the callback used to record passes of a type.
func (vr *VulkanRenderer) RegisterPassFunc(passType string, fn PassFunc) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.passFns[passType] = fn
}

// QueueDomain puts every pass on the graphics family. Frames are submitted
// as one batch on one queue, so the plan never carries ownership transfers.
func (vr *VulkanRenderer) QueueDomain(class rendergraph.PassClass) rendergraph.QueueDomain {
	return rendergraph.QueueDomain(vr.context.Device.GraphicsQueueIndex)
}

func (vr *VulkanRenderer) ExternalResource() rendergraph.ExternalResourceInfo {
	sc := vr.context.Swapchain
	format, err := FormatFromVulkan(sc.ImageFormat.Format)
	if err != nil {
		core.LogError("swapchain format: %s", err)
	}
	return rendergraph.ExternalResourceInfo{Format: format, InstanceCount: sc.ImageCount}
}

func (vr *VulkanRenderer) CreateResources(plan *rendergraph.Plan) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()

	vr.destroyResources()
	vr.plan = plan
	vr.images = make([]*VulkanImage, plan.InstanceCount)
	vr.views = make([]vk.ImageView, plan.ViewCount)
	vr.before = map[rendergraph.PassHandle][]barrierTemplate{}
	vr.after = map[rendergraph.PassHandle][]barrierTemplate{}

	sc := vr.context.Swapchain
	for _, cr := range plan.Resources {
		if cr.External {
			for i := range cr.Multiplicity {
				vr.images[cr.InstanceBegin+i] = &VulkanImage{
					Handle: sc.Images[i],
					Width:  sc.Extent.Width,
					Height: sc.Extent.Height,
					Format: sc.ImageFormat.Format,
				}
			}
			continue
		}
		format, err := VulkanFormat(cr.Format)
		if err != nil {
			return fmt.Errorf("resource %q: %w", cr.Name, err)
		}
		for i := range cr.Multiplicity {
			image, err := ImageCreate(vr.context, ImageConfig{
				Width:         vr.context.FramebufferWidth,
				Height:        vr.context.FramebufferHeight,
				Format:        format,
				Usage:         ImageUsage(cr.Usage),
				MutableFormat: cr.MutableFormat,
				MemoryFlags:   vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			})
			if err != nil {
				return fmt.Errorf("resource %q instance %d: %w", cr.Name, i, err)
			}
			vr.images[cr.InstanceBegin+i] = image
		}
	}

	for _, cr := range plan.Resources {
		for _, vg := range cr.Views {
			format, err := VulkanFormat(vg.Key.Format)
			if err != nil {
				return fmt.Errorf("resource %q view: %w", cr.Name, err)
			}
			for i := range cr.Multiplicity {
				view, err := ImageViewCreate(vr.context, vr.images[cr.InstanceBegin+i].Handle, format, AspectFlags(vg.Key.Aspect))
				if err != nil {
					return fmt.Errorf("resource %q view %d: %w", cr.Name, vg.ViewBegin+i, err)
				}
				vr.views[vg.ViewBegin+i] = view
			}
		}
	}

	if err := vr.transitionInitialLayouts(plan); err != nil {
		return err
	}
	core.LogDebug("vulkan: %d images, %d views created", len(vr.images), len(vr.views))
	return nil
}

// transitionInitialLayouts moves every fresh instance from the undefined
// layout into the state its first barrier of a frame expects.
func (vr *VulkanRenderer) transitionInitialLayouts(plan *rendergraph.Plan) error {
	var barriers []vk.ImageMemoryBarrier
	for _, cr := range plan.Resources {
		layout := ImageLayout(cr.InitialState.Layout)
		if layout == vk.ImageLayoutUndefined {
			continue
		}
		for i := range cr.Multiplicity {
			barriers = append(barriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				OldLayout:           vk.ImageLayoutUndefined,
				NewLayout:           layout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               vr.images[cr.InstanceBegin+i].Handle,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask: AspectFlags(cr.Aspect),
					LevelCount: 1,
					LayerCount: 1,
				},
			})
		}
	}
	if len(barriers) == 0 {
		return nil
	}

	device := vr.context.Device
	cb, err := AllocateAndBeginSingleUse(vr.context, device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	barrierBatch{
		srcStage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		images:   barriers,
	}.record(cb)
	return cb.EndSingleUse(vr.context, device.GraphicsCommandPool, device.GraphicsQueue, device.GraphicsQueueIndex)
}

func (vr *VulkanRenderer) CreatePassObjects(plan *rendergraph.Plan) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()

	vr.objects = make([]VulkanPassObject, plan.PassObjectCount)
	for i := range plan.Passes {
		cp := &plan.Passes[i]
		if !cp.Recordable() {
			continue
		}
		for j := range cp.OwnPeriod * cp.RotatingCount {
			frame := rendergraph.Frame{Counter: uint64(j % cp.OwnPeriod), RotatingIndex: j / cp.OwnPeriod}
			obj := VulkanPassObject{Pass: cp}
			for k := range cp.Usages {
				instance, view := plan.UsageInstance(&cp.Usages[k], frame)
				obj.Images = append(obj.Images, vr.images[instance].Handle)
				obj.Views = append(obj.Views, vr.views[view])
			}
			vr.objects[cp.FrameSpanBegin+j] = obj
		}
	}

	vr.destroyCommandBuffers()
	for s := range vr.frames {
		frame := &vr.frames[s]
		for range plan.Levels {
			pool, err := CommandPoolCreate(vr.context, vr.context.Device.GraphicsQueueIndex)
			if err != nil {
				return err
			}
			cb, err := NewVulkanCommandBuffer(vr.context, pool, true)
			if err != nil {
				vk.DestroyCommandPool(vr.context.Device.LogicalDevice, pool, vr.context.Allocator)
				return err
			}
			frame.pools = append(frame.pools, pool)
			frame.buffers = append(frame.buffers, cb)
		}
	}
	core.LogDebug("vulkan: %d pass objects, %d command buffers per frame", len(vr.objects), len(plan.Levels))
	return nil
}

func (vr *VulkanRenderer) AddBeforeBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.before[pass.Handle] = append(vr.before[pass.Handle], newBarrierTemplate(barrier, vr.imageHandle))
	return nil
}

func (vr *VulkanRenderer) AddAfterBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.after[pass.Handle] = append(vr.after[pass.Handle], newBarrierTemplate(barrier, vr.imageHandle))
	return nil
}

func (vr *VulkanRenderer) imageHandle(instance uint32) vk.Image {
	return vr.images[instance].Handle
}

func (vr *VulkanRenderer) slot(counter uint64) *frameSlot {
	return &vr.frames[counter%uint64(len(vr.frames))]
}

func (vr *VulkanRenderer) RecordLevel(ctx context.Context, rec rendergraph.LevelRecording) error {
	vr.mu.Lock()
	passFns := maps.Clone(vr.passFns)
	objects := vr.objects
	before, after := vr.before, vr.after
	cb := vr.slot(rec.Frame.Counter).buffers[rec.Index]
	vr.mu.Unlock()

	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(true, false); err != nil {
		return err
	}
	for _, inst := range rec.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := inst.Pass
		batchBarriers(before[cp.Handle], rec.Frame).record(cb)
		if fn, ok := passFns[cp.Type]; ok {
			if err := fn(ctx, cb, &objects[inst.ObjectIndex]); err != nil {
				return fmt.Errorf("pass %q: %w", cp.Name, err)
			}
		}
		batchBarriers(after[cp.Handle], rec.Frame).record(cb)
	}
	return cb.End()
}

func (vr *VulkanRenderer) Submit(ctx context.Context, frame rendergraph.Frame, wait rendergraph.Signal) (rendergraph.Signal, error) {
	vr.mu.Lock()
	slot := vr.slot(frame.Counter)
	vr.mu.Unlock()

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.renderComplete},
	}
	handles := make([]vk.CommandBuffer, 0, len(slot.buffers))
	for _, cb := range slot.buffers {
		handles = append(handles, cb.Handle)
	}
	submitInfo.CommandBufferCount = uint32(len(handles))
	submitInfo.PCommandBuffers = handles

	switch w := wait.(type) {
	case nil:
	case ImageAvailable:
		// Color attachment writes wait until the image is available.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{w.Semaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	default:
		return nil, fmt.Errorf("wait on %T: %w", wait, ErrUnknownSignal)
	}

	if err := slot.inFlight.Reset(vr.context); err != nil {
		return nil, err
	}
	device := vr.context.Device
	err := vr.context.Locks.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, slot.inFlight.Handle))
	})
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	for _, cb := range slot.buffers {
		cb.UpdateSubmitted()
	}
	return FrameSignal{Fence: slot.inFlight, RenderComplete: slot.renderComplete}, nil
}

func (vr *VulkanRenderer) AcquireNextImage(ctx context.Context, frameCounter uint64) (uint32, rendergraph.Signal, error) {
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		return 0, nil, core.ErrSwapchainBooting
	}
	slot := vr.slot(frameCounter)
	// The slot's semaphore may still be pending from the frame that used
	// it last.
	if err := slot.inFlight.Wait(vr.context, math.MaxUint64); err != nil {
		return 0, nil, err
	}
	index, err := vr.context.Swapchain.SwapchainAcquireNextImageIndex(vr.context, math.MaxUint64, slot.imageAvailable)
	if err != nil {
		return 0, nil, err
	}
	return index, ImageAvailable{Semaphore: slot.imageAvailable}, nil
}

func (vr *VulkanRenderer) Present(ctx context.Context, rotatingIndex uint32, rendered rendergraph.Signal) error {
	signal, ok := rendered.(FrameSignal)
	if !ok {
		return fmt.Errorf("present after %T: %w", rendered, ErrUnknownSignal)
	}
	device := vr.context.Device
	return vr.context.Locks.SafeQueueCall(device.PresentQueueIndex, func() error {
		return vr.context.Swapchain.SwapchainPresent(vr.context, device.PresentQueue, signal.RenderComplete, rotatingIndex)
	})
}

func (vr *VulkanRenderer) Wait(ctx context.Context, signal rendergraph.Signal) error {
	switch s := signal.(type) {
	case nil:
		return nil
	case FrameSignal:
		return s.Fence.Wait(vr.context, math.MaxUint64)
	default:
		return fmt.Errorf("wait on %T: %w", signal, ErrUnknownSignal)
	}
}

func (vr *VulkanRenderer) Resized(width, height uint32) error {
	vr.config.Swapchain.Width, vr.config.Swapchain.Height = width, height
	vr.context.FramebufferWidth, vr.context.FramebufferHeight = width, height
	vr.context.FramebufferSizeGeneration++
	return nil
}

// WaitIdle drains the device. When the framebuffer generation moved it also
// recreates the swapchain, so the next build sees the new images.
func (vr *VulkanRenderer) WaitIdle(ctx context.Context) error {
	if err := resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)); err != nil {
		core.LogError("%s", err)
		return err
	}
	if vr.context.FramebufferSizeGeneration == vr.context.FramebufferSizeLastGeneration {
		return nil
	}
	return vr.context.Locks.SafeCall(SwapchainManagement, func() error {
		sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, vr.config.Swapchain)
		if err != nil {
			return err
		}
		vr.context.Swapchain = sc
		return nil
	})
}

func (vr *VulkanRenderer) Shutdown() error {
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.destroyCommandBuffers()
	vr.destroyResources()

	device := vr.context.Device.LogicalDevice
	for i := range vr.frames {
		frame := &vr.frames[i]
		if frame.imageAvailable != nil {
			vk.DestroySemaphore(device, frame.imageAvailable, vr.context.Allocator)
		}
		if frame.renderComplete != nil {
			vk.DestroySemaphore(device, frame.renderComplete, vr.context.Allocator)
		}
		if frame.inFlight != nil {
			frame.inFlight.Destroy(vr.context)
		}
	}
	vr.frames = nil

	if vr.context.Swapchain != nil {
		vr.context.Swapchain.SwapchainDestroy(vr.context)
	}
	DeviceDestroy(vr.context)
	core.LogInfo("Vulkan renderer shut down.")
	return nil
}

func (vr *VulkanRenderer) destroyResources() {
	for _, view := range vr.views {
		if view != nil {
			vk.DestroyImageView(vr.context.Device.LogicalDevice, view, vr.context.Allocator)
		}
	}
	for _, image := range vr.images {
		if image != nil {
			image.Destroy(vr.context)
		}
	}
	vr.views, vr.images, vr.objects = nil, nil, nil
}

func (vr *VulkanRenderer) destroyCommandBuffers() {
	for i := range vr.frames {
		frame := &vr.frames[i]
		for j, pool := range frame.pools {
			frame.buffers[j].Free(vr.context, pool)
			vk.DestroyCommandPool(vr.context.Device.LogicalDevice, pool, vr.context.Allocator)
		}
		frame.pools, frame.buffers = nil, nil
	}
}
