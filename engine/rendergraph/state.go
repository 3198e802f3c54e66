package rendergraph

import "fmt"

var presentState = SubresourceState{Layout: LayoutPresent, Stage: StageBottomOfPipe, Access: AccessNone}

// resolveStates derives every usage's role, required state, image usage and
// view key. It runs after propagation so depth usages are recognised even
// when their format was declared on another pass.
func (r *registry) resolveStates() error {
	for h := range r.nodes {
		n := &r.nodes[h]
		p := &r.passes[n.pass]
		res := &r.resources[n.resource]

		role, err := resolveRole(p.class, n.role, n.access, n.aspect)
		if err != nil {
			return fmt.Errorf("%q used by %q as %s: %w", res.name, p.name, n.role, err)
		}
		n.role = role
		n.state, n.usage = stateFor(p.class, role, n.access)
		n.viewKey = ViewKey{Format: n.format, Aspect: viewAspect(role, n.aspect)}
		res.usage |= n.usage
	}
	return nil
}

func resolveRole(class PassClass, declared Role, access AccessIntent, aspect Aspect) (Role, error) {
	if class == PassClassPresent {
		return rolePresent, nil
	}

	role := declared
	if role == RoleAuto {
		switch class {
		case PassClassGraphics:
			switch {
			case !access.Writes():
				role = RoleSampled
			case aspect.HasDepth():
				role = RoleDepthAttachment
			default:
				role = RoleColorAttachment
			}
		case PassClassCompute:
			if access.Writes() {
				role = RoleStorage
			} else {
				role = RoleSampled
			}
		case PassClassCopy:
			role = RoleTransfer
		}
	}

	switch role {
	case RoleColorAttachment:
		if class != PassClassGraphics || aspect.HasDepth() {
			return RoleAuto, ErrInvalidRole
		}
	case RoleDepthAttachment:
		if class != PassClassGraphics || !aspect.HasDepth() {
			return RoleAuto, ErrInvalidRole
		}
	case RoleSampled:
		if class == PassClassCopy || access.Writes() {
			return RoleAuto, ErrInvalidRole
		}
	case RoleStorage:
		if class == PassClassCopy {
			return RoleAuto, ErrInvalidRole
		}
	case RoleTransfer:
	default:
		return RoleAuto, ErrInvalidRole
	}
	return role, nil
}

func shaderStage(class PassClass) Stage {
	if class == PassClassCompute {
		return StageComputeShader
	}
	return StageFragmentShader
}

func stateFor(class PassClass, role Role, access AccessIntent) (SubresourceState, Usage) {
	switch role {
	case rolePresent:
		return presentState, UsageNone

	case RoleColorAttachment:
		var a Access
		if access.Reads() {
			a |= AccessColorAttachmentRead
		}
		if access.Writes() {
			a |= AccessColorAttachmentWrite
		}
		return SubresourceState{
			Layout: LayoutColorAttachment,
			Stage:  StageColorAttachmentOutput,
			Access: a,
		}, UsageColorAttachment

	case RoleDepthAttachment:
		s := SubresourceState{
			Layout: LayoutDepthStencilReadOnly,
			Stage:  StageEarlyFragmentTests | StageLateFragmentTests,
			Access: AccessDepthStencilRead,
		}
		if access.Writes() {
			s.Layout = LayoutDepthStencilAttachment
			s.Access |= AccessDepthStencilWrite
		}
		return s, UsageDepthStencilAttachment

	case RoleSampled:
		return SubresourceState{
			Layout: LayoutShaderReadOnly,
			Stage:  shaderStage(class),
			Access: AccessShaderRead,
		}, UsageSampled

	case RoleStorage:
		var a Access
		if access.Reads() {
			a |= AccessShaderRead
		}
		if access.Writes() {
			a |= AccessShaderWrite
		}
		return SubresourceState{
			Layout: LayoutGeneral,
			Stage:  shaderStage(class),
			Access: a,
		}, UsageStorage

	case RoleTransfer:
		switch access {
		case Read:
			return SubresourceState{Layout: LayoutTransferSrc, Stage: StageTransfer, Access: AccessTransferRead}, UsageTransferSrc
		case Write:
			return SubresourceState{Layout: LayoutTransferDst, Stage: StageTransfer, Access: AccessTransferWrite}, UsageTransferDst
		default:
			return SubresourceState{
				Layout: LayoutGeneral,
				Stage:  StageTransfer,
				Access: AccessTransferRead | AccessTransferWrite,
			}, UsageTransferSrc | UsageTransferDst
		}
	}
	return SubresourceState{}, UsageNone
}

// viewAspect narrows depth/stencil images to their depth plane when they
// are read through a shader.
func viewAspect(role Role, aspect Aspect) Aspect {
	switch role {
	case RoleSampled, RoleStorage:
		if aspect.HasDepth() {
			return AspectDepth
		}
	}
	return aspect
}
