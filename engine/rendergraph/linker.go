package rendergraph

import "fmt"

// linkSubresources threads every resource's usage nodes into one cyclic
// list in execution order. The external resource's list starts at the
// present node so that its first and last usages both link through it.
func (r *registry) linkSubresources() {
	for rh := range r.resources {
		res := &r.resources[rh]
		first, last := NoNode, NoNode

		link := func(h NodeHandle) {
			n := r.node(h)
			n.prev = last
			if last != NoNode {
				r.node(last).next = h
			} else {
				first = h
			}
			last = h
		}

		if res.external {
			link(r.passes[r.present].byResource[ResourceHandle(rh)])
		}
		for _, ph := range r.order {
			if res.external && ph == r.present {
				continue
			}
			if h, ok := r.passes[ph].byResource[ResourceHandle(rh)]; ok {
				link(h)
			}
		}

		// Wrap around: the first usage of a frame follows the last one of
		// the previous frame.
		if first != NoNode {
			r.node(first).prev = last
			r.node(last).next = first
		}
		res.head = first
	}
}

// validateSubresourceLinks panics if any usage node misses a link or a
// resource's nodes do not form exactly one cycle.
func (r *registry) validateSubresourceLinks() {
	for rh := range r.resources {
		res := &r.resources[rh]
		for _, h := range res.nodes {
			n := r.node(h)
			if n.prev == NoNode || n.next == NoNode {
				panic(fmt.Sprintf("rendergraph: usage of %q by %q is not linked", res.name, r.passes[n.pass].name))
			}
			if r.node(n.next).prev != h || r.node(n.prev).next != h {
				panic(fmt.Sprintf("rendergraph: usage of %q by %q has asymmetric links", res.name, r.passes[n.pass].name))
			}
		}
		steps := 0
		h := res.head
		for {
			h = r.node(h).next
			steps++
			if h == res.head || steps > len(res.nodes) {
				break
			}
		}
		if h != res.head || steps != len(res.nodes) {
			panic(fmt.Sprintf("rendergraph: usages of %q do not form a single cycle", res.name))
		}
	}
}

// propagateMetadatas copies undetermined format and aspect from each node's
// predecessor until a full lap changes nothing. Any change restarts the lap
// count so chains resolved late are still carried all the way around.
func (r *registry) propagateMetadatas() {
	for rh := range r.resources {
		res := &r.resources[rh]
		if res.head == NoNode {
			continue
		}
		cycle := len(res.nodes)
		h := res.head
		for quiet := 0; quiet < cycle; {
			pred := r.node(h)
			succ := r.node(pred.next)
			changed := false
			if succ.format == FormatUndefined && pred.format != FormatUndefined {
				succ.format = pred.format
				changed = true
			}
			if succ.aspect == AspectUndefined && pred.aspect != AspectUndefined {
				succ.aspect = pred.aspect
				changed = true
			}
			if changed {
				quiet = 0
			} else {
				quiet++
			}
			h = pred.next
		}
	}
}
