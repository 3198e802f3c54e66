package rendergraph

import "fmt"

type BarrierKind uint8

const (
	// BarrierTransition changes state within one queue domain.
	BarrierTransition BarrierKind = iota
	// BarrierAcquire is the receiving half of an ownership transfer.
	BarrierAcquire
	// BarrierRelease is the sending half of an ownership transfer.
	BarrierRelease
)

func (k BarrierKind) String() string {
	switch k {
	case BarrierTransition:
		return "transition"
	case BarrierAcquire:
		return "acquire"
	case BarrierRelease:
		return "release"
	default:
		return fmt.Sprintf("barrier(%d)", uint8(k))
	}
}

// MultiframeTag marks a barrier that applies to every instance of a resource
// with more than one instance. Rotating tags follow the external rotating
// index instead of the frame counter.
type MultiframeTag struct {
	BaseInstance uint32
	Period       uint32
	Rotating     bool
}

// Barrier describes one synchronization operation on a resource, recorded
// before or after the pass that owns it.
type Barrier struct {
	Kind         BarrierKind
	Pass         PassHandle
	Resource     ResourceHandle
	ResourceName string
	Node         NodeHandle
	Format       Format
	Aspect       Aspect

	SrcDomain QueueDomain
	DstDomain QueueDomain
	Src       SubresourceState
	Dst       SubresourceState

	BaseInstance uint32
	Multiframe   MultiframeTag
}

func (b Barrier) IsMultiframe() bool { return b.Multiframe.Period > 1 }

func (b Barrier) OwnershipTransfer() bool { return b.SrcDomain != b.DstDomain }

// InstanceFor returns the physical instance index the barrier addresses in
// the given frame.
func (b Barrier) InstanceFor(f Frame) uint32 {
	switch {
	case !b.IsMultiframe():
		return b.BaseInstance
	case b.Multiframe.Rotating:
		return b.Multiframe.BaseInstance + f.RotatingIndex%b.Multiframe.Period
	default:
		return b.Multiframe.BaseInstance + uint32(f.Counter%uint64(b.Multiframe.Period))
	}
}

func (b Barrier) String() string {
	s := fmt.Sprintf("%s %s: %s -> %s", b.Kind, b.ResourceName, b.Src.Layout, b.Dst.Layout)
	if b.OwnershipTransfer() {
		s += fmt.Sprintf(" (queue %d -> %d)", b.SrcDomain, b.DstDomain)
	}
	if b.IsMultiframe() {
		s += fmt.Sprintf(" [x%d from %d]", b.Multiframe.Period, b.Multiframe.BaseInstance)
	}
	return s
}

// synthesizeBarriers emits each pass's before and after barriers into one
// flat list in execution order. The present pass records nothing.
func (r *registry) synthesizeBarriers() {
	r.barriers = r.barriers[:0]
	for _, ph := range r.order {
		p := &r.passes[ph]
		if ph == r.present {
			p.beforeBegin, p.beforeEnd = len(r.barriers), len(r.barriers)
			p.afterBegin, p.afterEnd = len(r.barriers), len(r.barriers)
			continue
		}

		p.beforeBegin = len(r.barriers)
		for _, h := range p.nodes {
			if r.node(h).selfManaged {
				continue
			}
			if b, ok := r.beforeBarrier(h); ok {
				r.barriers = append(r.barriers, b)
			}
		}
		p.beforeEnd = len(r.barriers)

		p.afterBegin = len(r.barriers)
		for _, h := range p.nodes {
			if r.node(h).selfManaged {
				continue
			}
			if b, ok := r.afterBarrier(h); ok {
				r.barriers = append(r.barriers, b)
			}
		}
		p.afterEnd = len(r.barriers)
	}
}

// beforeBarrier compares a usage with its predecessor. Leaving the present
// boundary always needs a barrier since nothing is recorded on its side.
func (r *registry) beforeBarrier(h NodeHandle) (Barrier, bool) {
	n := r.node(h)
	pred := r.node(n.prev)
	src, dst := r.passes[pred.pass].domain, r.passes[n.pass].domain

	switch {
	case src != dst:
		b := r.newBarrier(h, BarrierAcquire, pred.state, n.state, src, dst)
		b.Src.Access = AccessNone
		return b, true
	case pred.pass == r.present, pred.state != n.state:
		return r.newBarrier(h, BarrierTransition, pred.state, n.state, src, dst), true
	}
	return Barrier{}, false
}

// afterBarrier compares a usage with its successor. Only releases and the
// transition into the present boundary are recorded after a pass; every
// other transition is left to the consumer's before span.
func (r *registry) afterBarrier(h NodeHandle) (Barrier, bool) {
	n := r.node(h)
	succ := r.node(n.next)
	src, dst := r.passes[n.pass].domain, r.passes[succ.pass].domain

	switch {
	case src != dst:
		b := r.newBarrier(h, BarrierRelease, n.state, succ.state, src, dst)
		b.Dst.Access = AccessNone
		return b, true
	case succ.pass == r.present:
		return r.newBarrier(h, BarrierTransition, n.state, succ.state, src, dst), true
	}
	return Barrier{}, false
}

func (r *registry) newBarrier(h NodeHandle, kind BarrierKind, from, to SubresourceState, src, dst QueueDomain) Barrier {
	n := r.node(h)
	res := &r.resources[n.resource]
	b := Barrier{
		Kind:         kind,
		Pass:         n.pass,
		Resource:     n.resource,
		ResourceName: res.name,
		Node:         h,
		Format:       res.format,
		Aspect:       res.aspect,
		SrcDomain:    src,
		DstDomain:    dst,
		Src:          from,
		Dst:          to,
		BaseInstance: res.instanceBegin,
	}
	if res.multiplicity > 1 {
		b.Multiframe = MultiframeTag{
			BaseInstance: res.instanceBegin,
			Period:       res.multiplicity,
			Rotating:     res.external,
		}
	}
	return b
}
