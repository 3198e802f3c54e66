package rendergraph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// adjacent reports whether a writes something b reads.
func (r *registry) adjacent(a, b PassHandle) bool {
	if a == b {
		return false
	}
	return r.passes[a].writes.intersects(r.passes[b].reads)
}

// hazard reports whether a and b touch a common resource with at least one
// of them writing it. Such passes may not share a dependency level.
func (r *registry) hazard(a, b PassHandle) bool {
	if a == b {
		return false
	}
	pa, pb := &r.passes[a], &r.passes[b]
	return pa.writes.intersects(pb.reads) ||
		pa.writes.intersects(pb.writes) ||
		pa.reads.intersects(pb.writes)
}

const (
	unvisited = iota
	visiting
	visited
)

// resolveDependencies computes adjacency, the topological order and the
// dependency levels, then stable-sorts the order by level and queue domain.
func (r *registry) resolveDependencies() error {
	n := len(r.passes)
	adj := make([][]PassHandle, n)
	for a := range n {
		for b := range n {
			if r.adjacent(PassHandle(a), PassHandle(b)) {
				adj[a] = append(adj[a], PassHandle(b))
			}
		}
	}

	order, err := r.topologicalOrder(adj)
	if err != nil {
		return err
	}

	for i, a := range order {
		if a == r.present {
			continue
		}
		for _, b := range adj[a] {
			r.raiseLevel(b, a)
		}
		for _, b := range order[i+1:] {
			if b != r.present && r.hazard(a, b) {
				r.raiseLevel(b, a)
			}
		}
	}

	// The present pass sits alone below everything else.
	deepest := uint32(0)
	recordable := false
	for h := range r.passes {
		if PassHandle(h) == r.present {
			continue
		}
		recordable = true
		deepest = max(deepest, r.passes[h].level)
	}
	if recordable {
		r.passes[r.present].level = deepest + 1
	}

	// Passes of one level are independent, so grouping them by queue domain
	// keeps every level span on a single queue.
	slices.SortStableFunc(order, func(a, b PassHandle) int {
		if c := cmp.Compare(r.passes[a].level, r.passes[b].level); c != 0 {
			return c
		}
		return cmp.Compare(r.passes[a].domain, r.passes[b].domain)
	})

	r.order = order
	r.position = make([]int, n)
	for i, h := range order {
		r.position[h] = i
	}
	return nil
}

func (r *registry) raiseLevel(b, a PassHandle) {
	if lvl := r.passes[a].level + 1; r.passes[b].level < lvl {
		r.passes[b].level = lvl
	}
}

// topologicalOrder runs a depth-first post-order from every pass and
// reverses it. A back edge is a cyclic dependency and fails the build.
func (r *registry) topologicalOrder(adj [][]PassHandle) ([]PassHandle, error) {
	state := make([]uint8, len(r.passes))
	post := make([]PassHandle, 0, len(r.passes))
	var stack []PassHandle

	var visit func(h PassHandle) error
	visit = func(h PassHandle) error {
		state[h] = visiting
		stack = append(stack, h)
		for _, next := range adj[h] {
			switch state[next] {
			case visiting:
				return fmt.Errorf("%w: %s", ErrCyclicDependency, r.cyclePath(stack, next))
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[h] = visited
		post = append(post, h)
		return nil
	}

	for h := range r.passes {
		if state[h] == unvisited {
			if err := visit(PassHandle(h)); err != nil {
				return nil, err
			}
		}
	}

	slices.Reverse(post)
	return post, nil
}

func (r *registry) cyclePath(stack []PassHandle, back PassHandle) string {
	start := slices.Index(stack, back)
	names := make([]string, 0, len(stack)-start+1)
	for _, h := range stack[start:] {
		names = append(names, r.passes[h].name)
	}
	names = append(names, r.passes[back].name)
	return strings.Join(names, " -> ")
}
