package rendergraph

import (
	"fmt"
	"slices"

	"github.com/spaghettifunk/framegraph/engine/math"
)

// resolveResourceAttributes settles each resource's format and aspect once
// propagation has finished. A usage whose format never resolved is fatal.
func (r *registry) resolveResourceAttributes() error {
	for rh := range r.resources {
		res := &r.resources[rh]
		head := r.node(res.head)
		res.format = head.format
		res.aspect = head.aspect
		for _, h := range res.nodes {
			n := r.node(h)
			if n.format == FormatUndefined || n.aspect == AspectUndefined {
				return fmt.Errorf("%q used by %q: %w", res.name, r.passes[n.pass].name, ErrUnresolvedFormat)
			}
			if n.aspect.HasDepth() != res.aspect.HasDepth() {
				return fmt.Errorf("%q: %s vs %s: %w", res.name, res.format, n.format, ErrIncompatibleFormats)
			}
			if n.format != res.format {
				res.mutableFormat = true
			}
			res.aspect |= n.aspect
		}
	}
	return nil
}

// allocate computes multiplicities and pass periods and lays out the flat
// instance, view and pass-object index spaces.
func (r *registry) allocate() error {
	if err := r.resolveResourceAttributes(); err != nil {
		return err
	}
	if err := r.resolveStates(); err != nil {
		return err
	}

	for rh := range r.resources {
		res := &r.resources[rh]
		if res.external {
			res.multiplicity = r.extInfo.InstanceCount
		} else {
			m := uint32(1)
			for _, h := range res.nodes {
				m = math.LCM(m, r.node(h).multiplicity)
			}
			res.multiplicity = m
		}
		for _, h := range res.nodes {
			r.node(h).multiplicity = res.multiplicity
		}
	}

	// The external resource is rotated by the frame driver and never
	// contributes to a pass's own period.
	var objects uint32
	for _, ph := range r.order {
		p := &r.passes[ph]
		p.ownPeriod, p.rotatingCount = 1, 1
		p.frameSpanBegin = objects
		if ph == r.present {
			continue
		}
		for _, h := range p.nodes {
			res := &r.resources[r.node(h).resource]
			if res.external {
				p.rotatingCount = r.extInfo.InstanceCount
				continue
			}
			p.ownPeriod = math.LCM(p.ownPeriod, res.multiplicity)
		}
		objects += p.ownPeriod * p.rotatingCount
	}
	r.passObjectCount = objects

	var instances, views uint32
	assign := func(rh ResourceHandle) {
		res := &r.resources[rh]
		res.instanceBegin = instances
		instances += res.multiplicity
		res.views = res.views[:0]
		h := res.head
		for range res.nodes {
			n := r.node(h)
			g := slices.IndexFunc(res.views, func(v viewGroup) bool { return v.key == n.viewKey })
			if g < 0 {
				g = len(res.views)
				res.views = append(res.views, viewGroup{key: n.viewKey, viewBegin: views})
				views += res.multiplicity
			}
			n.viewGroup = g
			h = n.next
		}
	}

	for rh := range r.resources {
		if !r.resources[rh].external {
			assign(ResourceHandle(rh))
		}
	}
	extViews := views
	assign(r.external)

	r.instanceCount = instances
	r.viewCount = views
	r.extInstances = Span{Begin: r.resources[r.external].instanceBegin, Count: r.extInfo.InstanceCount}
	r.extViews = Span{Begin: extViews, Count: views - extViews}
	return nil
}
