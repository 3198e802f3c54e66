package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var formats = map[rendergraph.Format]vk.Format{
	rendergraph.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	rendergraph.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	rendergraph.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	rendergraph.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	rendergraph.FormatR8Unorm:        vk.FormatR8Unorm,
	rendergraph.FormatR32Float:       vk.FormatR32Sfloat,
	rendergraph.FormatRG16Float:      vk.FormatR16g16Sfloat,
	rendergraph.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	rendergraph.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	rendergraph.FormatD32Float:       vk.FormatD32Sfloat,
	rendergraph.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	rendergraph.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func VulkanFormat(f rendergraph.Format) (vk.Format, error) {
	if v, ok := formats[f]; ok {
		return v, nil
	}
	return vk.FormatUndefined, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
}

// FormatFromVulkan maps a surface format back to the graph's vocabulary.
func FormatFromVulkan(v vk.Format) (rendergraph.Format, error) {
	for f, vf := range formats {
		if vf == v {
			return f, nil
		}
	}
	return rendergraph.FormatUndefined, fmt.Errorf("VkFormat(%d): %w", int32(v), ErrUnsupportedFormat)
}

func ImageLayout(l rendergraph.Layout) vk.ImageLayout {
	switch l {
	case rendergraph.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case rendergraph.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case rendergraph.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case rendergraph.LayoutDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case rendergraph.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case rendergraph.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case rendergraph.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case rendergraph.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

var stageBits = []struct {
	stage rendergraph.Stage
	bit   vk.PipelineStageFlagBits
}{
	{rendergraph.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{rendergraph.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{rendergraph.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{rendergraph.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{rendergraph.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{rendergraph.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{rendergraph.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{rendergraph.StageTransfer, vk.PipelineStageTransferBit},
	{rendergraph.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

// PipelineStages converts a stage mask. An empty mask becomes fallback,
// which is top-of-pipe for source scopes and bottom-of-pipe for
// destination scopes.
func PipelineStages(s rendergraph.Stage, fallback vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	for _, sb := range stageBits {
		if s&sb.stage != 0 {
			out |= sb.bit
		}
	}
	if out == 0 {
		out = fallback
	}
	return vk.PipelineStageFlags(out)
}

var accessBits = []struct {
	access rendergraph.Access
	bit    vk.AccessFlagBits
}{
	{rendergraph.AccessShaderRead, vk.AccessShaderReadBit},
	{rendergraph.AccessShaderWrite, vk.AccessShaderWriteBit},
	{rendergraph.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{rendergraph.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{rendergraph.AccessDepthStencilRead, vk.AccessDepthStencilAttachmentReadBit},
	{rendergraph.AccessDepthStencilWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{rendergraph.AccessTransferRead, vk.AccessTransferReadBit},
	{rendergraph.AccessTransferWrite, vk.AccessTransferWriteBit},
	{rendergraph.AccessMemoryRead, vk.AccessMemoryReadBit},
}

func AccessFlags(a rendergraph.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	for _, ab := range accessBits {
		if a&ab.access != 0 {
			out |= ab.bit
		}
	}
	return vk.AccessFlags(out)
}

var usageBits = []struct {
	usage rendergraph.Usage
	bit   vk.ImageUsageFlagBits
}{
	{rendergraph.UsageColorAttachment, vk.ImageUsageColorAttachmentBit},
	{rendergraph.UsageDepthStencilAttachment, vk.ImageUsageDepthStencilAttachmentBit},
	{rendergraph.UsageSampled, vk.ImageUsageSampledBit},
	{rendergraph.UsageStorage, vk.ImageUsageStorageBit},
	{rendergraph.UsageTransferSrc, vk.ImageUsageTransferSrcBit},
	{rendergraph.UsageTransferDst, vk.ImageUsageTransferDstBit},
}

func ImageUsage(u rendergraph.Usage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	for _, ub := range usageBits {
		if u&ub.usage != 0 {
			out |= ub.bit
		}
	}
	return vk.ImageUsageFlags(out)
}

func AspectFlags(a rendergraph.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlagBits
	if a&rendergraph.AspectColor != 0 {
		out |= vk.ImageAspectColorBit
	}
	if a&rendergraph.AspectDepth != 0 {
		out |= vk.ImageAspectDepthBit
	}
	if a&rendergraph.AspectStencil != 0 {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}
