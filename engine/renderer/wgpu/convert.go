package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var formats = map[rendergraph.Format]gputypes.TextureFormat{
	rendergraph.FormatRGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	rendergraph.FormatRGBA8Srgb:      gputypes.TextureFormatRGBA8UnormSrgb,
	rendergraph.FormatBGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	rendergraph.FormatBGRA8Srgb:      gputypes.TextureFormatBGRA8UnormSrgb,
	rendergraph.FormatR8Unorm:        gputypes.TextureFormatR8Unorm,
	rendergraph.FormatR32Float:       gputypes.TextureFormatR32Float,
	rendergraph.FormatRG16Float:      gputypes.TextureFormatRG16Float,
	rendergraph.FormatRGBA16Float:    gputypes.TextureFormatRGBA16Float,
	rendergraph.FormatRGBA32Float:    gputypes.TextureFormatRGBA32Float,
	rendergraph.FormatD32Float:       gputypes.TextureFormatDepth32Float,
	rendergraph.FormatD24UnormS8Uint: gputypes.TextureFormatDepth24PlusStencil8,
	rendergraph.FormatD32FloatS8Uint: gputypes.TextureFormatDepth32FloatStencil8,
}

func TextureFormat(f rendergraph.Format) (gputypes.TextureFormat, error) {
	if v, ok := formats[f]; ok {
		return v, nil
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
}

// TextureUsage converts the lifetime usage of a resource.
func TextureUsage(u rendergraph.Usage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&(rendergraph.UsageColorAttachment|rendergraph.UsageDepthStencilAttachment) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&rendergraph.UsageSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&rendergraph.UsageStorage != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&rendergraph.UsageTransferSrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&rendergraph.UsageTransferDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	return out
}

// StateUsage maps a subresource state onto the usage wgpu tracks textures
// by. Undefined and present have no usage of their own.
func StateUsage(s rendergraph.SubresourceState) gputypes.TextureUsage {
	switch s.Layout {
	case rendergraph.LayoutColorAttachment,
		rendergraph.LayoutDepthStencilAttachment,
		rendergraph.LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageRenderAttachment
	case rendergraph.LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case rendergraph.LayoutGeneral:
		if s.Stage&rendergraph.StageTransfer != 0 {
			return gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
		}
		return gputypes.TextureUsageStorageBinding
	case rendergraph.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case rendergraph.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageNone
	}
}

// Aspect selects the texture planes a barrier or view addresses. Depth on a
// format without stencil is the whole texture.
func Aspect(a rendergraph.Aspect, f rendergraph.Format) gputypes.TextureAspect {
	full := f.Aspect()
	switch {
	case a == full:
		return gputypes.TextureAspectAll
	case a == rendergraph.AspectDepth:
		return gputypes.TextureAspectDepthOnly
	case a == rendergraph.AspectStencil:
		return gputypes.TextureAspectStencilOnly
	default:
		return gputypes.TextureAspectAll
	}
}
