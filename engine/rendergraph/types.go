package rendergraph

import (
	"fmt"
	"strings"
)

// PassClass is the execution domain a pass records into.
type PassClass uint8

const (
	PassClassGraphics PassClass = iota
	PassClassCompute
	PassClassCopy
	// PassClassPresent is reserved for the synthetic present pass.
	PassClassPresent
)

func (c PassClass) String() string {
	switch c {
	case PassClassGraphics:
		return "graphics"
	case PassClassCompute:
		return "compute"
	case PassClassCopy:
		return "copy"
	case PassClassPresent:
		return "present"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// AccessIntent is what a pass declares it does with a subresource.
type AccessIntent uint8

const (
	Read AccessIntent = 1 << iota
	Write

	ReadWrite = Read | Write
)

func (a AccessIntent) Reads() bool  { return a&Read != 0 }
func (a AccessIntent) Writes() bool { return a&Write != 0 }

func (a AccessIntent) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// ParseAccessIntent accepts "read", "write" and "read_write" (or "readwrite").
func ParseAccessIntent(s string) (AccessIntent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r":
		return Read, nil
	case "write", "w":
		return Write, nil
	case "read_write", "readwrite", "rw":
		return ReadWrite, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAccess, s)
}

// Aspect selects which planes of an image a usage addresses.
type Aspect uint8

const (
	AspectUndefined Aspect = 0
	AspectColor     Aspect = 1 << (iota - 1)
	AspectDepth
	AspectStencil
)

func (a Aspect) HasDepth() bool { return a&AspectDepth != 0 }

func (a Aspect) String() string {
	if a == AspectUndefined {
		return "undefined"
	}
	var parts []string
	if a&AspectColor != 0 {
		parts = append(parts, "color")
	}
	if a&AspectDepth != 0 {
		parts = append(parts, "depth")
	}
	if a&AspectStencil != 0 {
		parts = append(parts, "stencil")
	}
	return strings.Join(parts, "|")
}

type Format uint16

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatR8Unorm
	FormatR32Float
	FormatRG16Float
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:      "undefined",
	FormatRGBA8Unorm:     "rgba8_unorm",
	FormatRGBA8Srgb:      "rgba8_srgb",
	FormatBGRA8Unorm:     "bgra8_unorm",
	FormatBGRA8Srgb:      "bgra8_srgb",
	FormatR8Unorm:        "r8_unorm",
	FormatR32Float:       "r32_float",
	FormatRG16Float:      "rg16_float",
	FormatRGBA16Float:    "rgba16_float",
	FormatRGBA32Float:    "rgba32_float",
	FormatD32Float:       "d32_float",
	FormatD24UnormS8Uint: "d24_unorm_s8_uint",
	FormatD32FloatS8Uint: "d32_float_s8_uint",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", uint16(f))
}

// Aspect returns the natural aspect of the format.
func (f Format) Aspect() Aspect {
	switch f {
	case FormatUndefined:
		return AspectUndefined
	case FormatD32Float:
		return AspectDepth
	case FormatD24UnormS8Uint, FormatD32FloatS8Uint:
		return AspectDepth | AspectStencil
	default:
		return AspectColor
	}
}

func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range formatNames {
		if n == s {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color_attachment"
	case LayoutDepthStencilAttachment:
		return "depth_stencil_attachment"
	case LayoutDepthStencilReadOnly:
		return "depth_stencil_read_only"
	case LayoutShaderReadOnly:
		return "shader_read_only"
	case LayoutTransferSrc:
		return "transfer_src"
	case LayoutTransferDst:
		return "transfer_dst"
	case LayoutPresent:
		return "present"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// Stage is a pipeline stage mask.
type Stage uint32

const (
	StageNone      Stage = 0
	StageTopOfPipe Stage = 1 << (iota - 1)
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
)

// Access is a memory access mask.
type Access uint32

const (
	AccessNone       Access = 0
	AccessShaderRead Access = 1 << (iota - 1)
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
)

// Usage is the set of ways an image is used over its whole lifetime.
type Usage uint32

const (
	UsageNone            Usage = 0
	UsageColorAttachment Usage = 1 << (iota - 1)
	UsageDepthStencilAttachment
	UsageSampled
	UsageStorage
	UsageTransferSrc
	UsageTransferDst
)

// Role pins how a usage is bound. RoleAuto derives it from the pass class,
// the access intent and the resolved aspect.
type Role uint8

const (
	RoleAuto Role = iota
	RoleColorAttachment
	RoleDepthAttachment
	RoleSampled
	RoleStorage
	RoleTransfer
	rolePresent
)

func (r Role) String() string {
	switch r {
	case RoleAuto:
		return "auto"
	case RoleColorAttachment:
		return "color_attachment"
	case RoleDepthAttachment:
		return "depth_attachment"
	case RoleSampled:
		return "sampled"
	case RoleStorage:
		return "storage"
	case RoleTransfer:
		return "transfer"
	case rolePresent:
		return "present"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return RoleAuto, nil
	case "color_attachment", "color":
		return RoleColorAttachment, nil
	case "depth_attachment", "depth":
		return RoleDepthAttachment, nil
	case "sampled":
		return RoleSampled, nil
	case "storage":
		return RoleStorage, nil
	case "transfer":
		return RoleTransfer, nil
	}
	return RoleAuto, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// QueueDomain identifies a queue family (or equivalent) chosen by the backend.
type QueueDomain uint32

// SubresourceState is the synchronization state a usage requires.
type SubresourceState struct {
	Layout Layout
	Stage  Stage
	Access Access
}

func (s SubresourceState) String() string {
	return fmt.Sprintf("%s stage=%#x access=%#x", s.Layout, uint32(s.Stage), uint32(s.Access))
}

// ViewKey decides which usages of one resource can share a view.
type ViewKey struct {
	Format Format
	Aspect Aspect
}

func (k ViewKey) String() string {
	return k.Format.String() + "/" + k.Aspect.String()
}
