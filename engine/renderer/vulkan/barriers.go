package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

// barrierTemplate is a compiled barrier translated once per build. A
// multiframe barrier keeps one image barrier per instance and picks the
// right one when a frame is recorded.
type barrierTemplate struct {
	barrier  rendergraph.Barrier
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags
	images   []vk.ImageMemoryBarrier
}

func newBarrierTemplate(b rendergraph.Barrier, image func(instance uint32) vk.Image) barrierTemplate {
	t := barrierTemplate{
		barrier:  b,
		srcStage: PipelineStages(b.Src.Stage, vk.PipelineStageTopOfPipeBit),
		dstStage: PipelineStages(b.Dst.Stage, vk.PipelineStageBottomOfPipeBit),
	}
	switch b.Kind {
	case rendergraph.BarrierAcquire:
		// The release half on the other queue already made the writes
		// available.
		t.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	case rendergraph.BarrierRelease:
		t.dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}

	srcFamily, dstFamily := uint32(vk.QueueFamilyIgnored), uint32(vk.QueueFamilyIgnored)
	if b.OwnershipTransfer() {
		srcFamily, dstFamily = uint32(b.SrcDomain), uint32(b.DstDomain)
	}

	base, count := b.BaseInstance, uint32(1)
	if b.IsMultiframe() {
		base, count = b.Multiframe.BaseInstance, b.Multiframe.Period
	}
	for i := range count {
		t.images = append(t.images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       AccessFlags(b.Src.Access),
			DstAccessMask:       AccessFlags(b.Dst.Access),
			OldLayout:           ImageLayout(b.Src.Layout),
			NewLayout:           ImageLayout(b.Dst.Layout),
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Image:               image(base + i),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     AspectFlags(b.Aspect),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
	}
	return t
}

func (t *barrierTemplate) forFrame(f rendergraph.Frame) vk.ImageMemoryBarrier {
	if len(t.images) == 1 {
		return t.images[0]
	}
	return t.images[t.barrier.InstanceFor(f)-t.barrier.Multiframe.BaseInstance]
}

// barrierBatch merges the barriers recorded at one point of a pass into a
// single vkCmdPipelineBarrier.
type barrierBatch struct {
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags
	images   []vk.ImageMemoryBarrier
}

func batchBarriers(templates []barrierTemplate, f rendergraph.Frame) barrierBatch {
	var batch barrierBatch
	for i := range templates {
		t := &templates[i]
		batch.srcStage |= t.srcStage
		batch.dstStage |= t.dstStage
		batch.images = append(batch.images, t.forFrame(f))
	}
	return batch
}

func (b barrierBatch) record(commandBuffer *VulkanCommandBuffer) {
	if len(b.images) == 0 {
		return
	}
	vk.CmdPipelineBarrier(
		commandBuffer.Handle,
		b.srcStage,
		b.dstStage,
		vk.DependencyFlags(0),
		0, nil,
		0, nil,
		uint32(len(b.images)), b.images)
}
