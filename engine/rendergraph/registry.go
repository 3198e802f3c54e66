package rendergraph

import "fmt"

// PassHandle, NodeHandle and ResourceHandle index the registry arenas of one
// build. They are only meaningful against the plan they came from.
type (
	PassHandle     int32
	NodeHandle     int32
	ResourceHandle int32
)

const NoNode NodeHandle = -1

const (
	PresentPassName = "<present>"
	presentPassType = "present"
)

type idSet map[ResourceHandle]struct{}

// intersects scans the smaller set.
func (s idSet) intersects(o idSet) bool {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	for id := range small {
		if _, ok := large[id]; ok {
			return true
		}
	}
	return false
}

type passRecord struct {
	name   string
	typ    string
	class  PassClass
	domain QueueDomain
	level  uint32

	nodes      []NodeHandle
	byResource map[ResourceHandle]NodeHandle
	reads      idSet
	writes     idSet

	ownPeriod      uint32
	rotatingCount  uint32
	frameSpanBegin uint32

	beforeBegin, beforeEnd int
	afterBegin, afterEnd   int
}

type usageNode struct {
	pass     PassHandle
	resource ResourceHandle

	access       AccessIntent
	role         Role
	format       Format
	aspect       Aspect
	multiplicity uint32
	selfManaged  bool

	state     SubresourceState
	usage     Usage
	viewKey   ViewKey
	viewGroup int

	prev, next NodeHandle
}

type viewGroup struct {
	key       ViewKey
	viewBegin uint32
}

type resourceRecord struct {
	name     string
	external bool
	head     NodeHandle
	nodes    []NodeHandle

	format        Format
	aspect        Aspect
	usage         Usage
	multiplicity  uint32
	mutableFormat bool

	instanceBegin uint32
	views         []viewGroup
}

// registry owns every artifact of one build. It is dropped as a whole on
// the next build.
type registry struct {
	passes    []passRecord
	nodes     []usageNode
	resources []resourceRecord

	passByName     map[string]PassHandle
	resourceByName map[string]ResourceHandle

	present  PassHandle
	external ResourceHandle
	extInfo  ExternalResourceInfo

	// execution order, filled by the resolver
	order    []PassHandle
	position []int

	barriers []Barrier

	instanceCount   uint32
	viewCount       uint32
	passObjectCount uint32
	extInstances    Span
	extViews        Span
}

func newRegistry(desc *Description, passTypes map[string]PassClass, backend Backend) (*registry, error) {
	extName := desc.ExternalResourceName()
	if extName == "" {
		return nil, ErrNoExternalResource
	}
	info := backend.ExternalResource()
	if info.InstanceCount == 0 {
		return nil, ErrExternalInstanceCount
	}

	r := &registry{
		passByName:     make(map[string]PassHandle),
		resourceByName: make(map[string]ResourceHandle),
		extInfo:        info,
	}

	// The present pass always comes first and owns the external resource's
	// boundary node.
	r.present = r.addPass(PresentPassName, presentPassType, PassClassPresent, backend.QueueDomain(PassClassPresent))
	r.external = r.resourceFor(extName)
	r.resources[r.external].external = true
	r.addNode(r.present, r.external, UsageDecl{
		Subresource:  extName,
		Access:       Read,
		Role:         rolePresent,
		Format:       info.Format,
		Multiplicity: info.InstanceCount,
	})

	for _, p := range desc.passes {
		class, ok := passTypes[p.Type]
		if !ok {
			return nil, fmt.Errorf("pass %q: %w %q", p.Name, ErrUnknownPassType, p.Type)
		}
		if _, dup := r.passByName[p.Name]; dup {
			return nil, fmt.Errorf("pass %q: %w", p.Name, ErrDuplicatePass)
		}
		ph := r.addPass(p.Name, p.Type, class, backend.QueueDomain(class))
		for _, u := range p.Usages {
			r.addNode(ph, r.resourceFor(u.Subresource), u)
		}
	}

	if len(r.resources[r.external].nodes) < 2 {
		return nil, fmt.Errorf("%q: %w", extName, ErrExternalResourceUnused)
	}
	return r, nil
}

func (r *registry) addPass(name, typ string, class PassClass, domain QueueDomain) PassHandle {
	h := PassHandle(len(r.passes))
	r.passes = append(r.passes, passRecord{
		name:       name,
		typ:        typ,
		class:      class,
		domain:     domain,
		byResource: make(map[ResourceHandle]NodeHandle),
		reads:      make(idSet),
		writes:     make(idSet),
	})
	r.passByName[name] = h
	return h
}

func (r *registry) resourceFor(name string) ResourceHandle {
	if h, ok := r.resourceByName[name]; ok {
		return h
	}
	h := ResourceHandle(len(r.resources))
	r.resources = append(r.resources, resourceRecord{name: name, head: NoNode})
	r.resourceByName[name] = h
	return h
}

// addNode allocates a fresh usage-node slot for (pass, resource).
func (r *registry) addNode(ph PassHandle, rh ResourceHandle, u UsageDecl) NodeHandle {
	h := NodeHandle(len(r.nodes))
	r.nodes = append(r.nodes, usageNode{
		pass:         ph,
		resource:     rh,
		access:       u.Access,
		role:         u.Role,
		format:       u.Format,
		aspect:       u.Format.Aspect(),
		multiplicity: u.Multiplicity,
		selfManaged:  u.SelfManaged,
		viewGroup:    -1,
		prev:         NoNode,
		next:         NoNode,
	})

	p := &r.passes[ph]
	p.nodes = append(p.nodes, h)
	p.byResource[rh] = h
	if u.Access.Reads() {
		p.reads[rh] = struct{}{}
	}
	if u.Access.Writes() {
		p.writes[rh] = struct{}{}
	}
	r.resources[rh].nodes = append(r.resources[rh].nodes, h)
	return h
}

func (r *registry) node(h NodeHandle) *usageNode {
	return &r.nodes[h]
}
