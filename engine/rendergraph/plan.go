package rendergraph

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
)

// Span is a contiguous range of a flat index space.
type Span struct {
	Begin uint32
	Count uint32
}

func (s Span) End() uint32 { return s.Begin + s.Count }

// LevelSpan is a run of passes in Plan.Passes sharing one dependency level
// and one queue domain. Spans may be recorded on independent recorder
// contexts; a level with passes on several queues has one span per queue.
type LevelSpan struct {
	Level  uint32
	Domain QueueDomain
	Begin  int
	End    int
}

// CompiledUsage is a pass's view of one resource after compilation.
type CompiledUsage struct {
	Node         NodeHandle
	Resource     ResourceHandle
	ResourceName string
	Access       AccessIntent
	Role         Role
	Format       Format
	Aspect       Aspect
	State        SubresourceState
	Usage        Usage
	ViewGroup    int
	SelfManaged  bool
	Prev         NodeHandle
	Next         NodeHandle
}

// CompiledPass is the output contract for one pass.
type CompiledPass struct {
	Handle PassHandle
	Name   string
	Type   string
	Class  PassClass
	Domain QueueDomain
	Level  uint32

	// FrameSpanBegin is the first pass-object index of this pass. The pass
	// owns OwnPeriod*RotatingCount consecutive objects.
	FrameSpanBegin uint32
	OwnPeriod      uint32
	RotatingCount  uint32

	BeforePassBegin int
	BeforePassEnd   int
	AfterPassBegin  int
	AfterPassEnd    int

	Usages []CompiledUsage
	Reads  []string
	Writes []string
}

// ObjectIndex returns the pass-object instance to execute for a frame:
// FrameSpanBegin + OwnPeriod*rotatingIndex + frameCounter mod OwnPeriod.
func (p *CompiledPass) ObjectIndex(f Frame) uint32 {
	rotating := uint32(0)
	if p.RotatingCount > 1 {
		rotating = f.RotatingIndex % p.RotatingCount
	}
	return p.FrameSpanBegin + p.OwnPeriod*rotating + uint32(f.Counter%uint64(p.OwnPeriod))
}

func (p *CompiledPass) Recordable() bool { return p.Class != PassClassPresent }

// ViewGroup is a set of usages sharing one physical view per instance.
type ViewGroup struct {
	Key       ViewKey
	ViewBegin uint32
}

// CompiledResource is the output contract for one resource.
type CompiledResource struct {
	Handle        ResourceHandle
	Name          string
	External      bool
	Format        Format
	Aspect        Aspect
	Usage         Usage
	MutableFormat bool

	Multiplicity  uint32
	InstanceBegin uint32
	Views         []ViewGroup

	// InitialState is what the first recorded usage of a frame transitions
	// from: the last usage's state, or the present state for the external
	// resource.
	InitialState SubresourceState
	// Cycle lists the usage nodes in execution order starting at the head.
	Cycle []NodeHandle
}

// Plan is the compiled, read-only result of a build.
type Plan struct {
	Passes    []CompiledPass
	Levels    []LevelSpan
	Resources []CompiledResource
	Barriers  []Barrier

	InstanceCount     uint32
	ViewCount         uint32
	PassObjectCount   uint32
	ExternalInstances Span
	ExternalViews     Span
	External          ResourceHandle
}

// Pass looks a compiled pass up by name.
func (p *Plan) Pass(name string) (*CompiledPass, bool) {
	for i := range p.Passes {
		if p.Passes[i].Name == name {
			return &p.Passes[i], true
		}
	}
	return nil, false
}

// Resource looks a compiled resource up by name.
func (p *Plan) Resource(name string) (*CompiledResource, bool) {
	for i := range p.Resources {
		if p.Resources[i].Name == name {
			return &p.Resources[i], true
		}
	}
	return nil, false
}

// UsageInstance returns the flat instance and view index a usage binds for
// a frame. The external resource follows the rotating index, every other
// resource cycles with the frame counter.
func (p *Plan) UsageInstance(u *CompiledUsage, f Frame) (instance, view uint32) {
	cr := &p.Resources[u.Resource]
	var offset uint32
	if cr.External {
		offset = f.RotatingIndex % cr.Multiplicity
	} else {
		offset = uint32(f.Counter % uint64(cr.Multiplicity))
	}
	return cr.InstanceBegin + offset, cr.Views[u.ViewGroup].ViewBegin + offset
}

func (p *Plan) BeforeBarriers(pass *CompiledPass) []Barrier {
	return p.Barriers[pass.BeforePassBegin:pass.BeforePassEnd]
}

func (p *Plan) AfterBarriers(pass *CompiledPass) []Barrier {
	return p.Barriers[pass.AfterPassBegin:pass.AfterPassEnd]
}

func (r *registry) buildPlan() *Plan {
	plan := &Plan{
		Passes:            make([]CompiledPass, 0, len(r.order)),
		Resources:         make([]CompiledResource, 0, len(r.resources)),
		Barriers:          slices.Clone(r.barriers),
		InstanceCount:     r.instanceCount,
		ViewCount:         r.viewCount,
		PassObjectCount:   r.passObjectCount,
		ExternalInstances: r.extInstances,
		ExternalViews:     r.extViews,
		External:          r.external,
	}

	for _, ph := range r.order {
		p := &r.passes[ph]
		cp := CompiledPass{
			Handle:          ph,
			Name:            p.name,
			Type:            p.typ,
			Class:           p.class,
			Domain:          p.domain,
			Level:           p.level,
			FrameSpanBegin:  p.frameSpanBegin,
			OwnPeriod:       p.ownPeriod,
			RotatingCount:   p.rotatingCount,
			BeforePassBegin: p.beforeBegin,
			BeforePassEnd:   p.beforeEnd,
			AfterPassBegin:  p.afterBegin,
			AfterPassEnd:    p.afterEnd,
		}
		for _, h := range p.nodes {
			n := r.node(h)
			res := &r.resources[n.resource]
			cp.Usages = append(cp.Usages, CompiledUsage{
				Node:         h,
				Resource:     n.resource,
				ResourceName: res.name,
				Access:       n.access,
				Role:         n.role,
				Format:       n.format,
				Aspect:       n.aspect,
				State:        n.state,
				Usage:        n.usage,
				ViewGroup:    n.viewGroup,
				SelfManaged:  n.selfManaged,
				Prev:         n.prev,
				Next:         n.next,
			})
			if n.access.Reads() {
				cp.Reads = append(cp.Reads, res.name)
			}
			if n.access.Writes() {
				cp.Writes = append(cp.Writes, res.name)
			}
		}
		slices.Sort(cp.Reads)
		slices.Sort(cp.Writes)
		plan.Passes = append(plan.Passes, cp)
	}

	for i := 0; i < len(plan.Passes); {
		if !plan.Passes[i].Recordable() {
			i++
			continue
		}
		j := i + 1
		for j < len(plan.Passes) && plan.Passes[j].Recordable() &&
			plan.Passes[j].Level == plan.Passes[i].Level && plan.Passes[j].Domain == plan.Passes[i].Domain {
			j++
		}
		plan.Levels = append(plan.Levels, LevelSpan{Level: plan.Passes[i].Level, Domain: plan.Passes[i].Domain, Begin: i, End: j})
		i = j
	}

	for rh := range r.resources {
		res := &r.resources[rh]
		first := res.head
		if res.external {
			first = r.node(first).next
		}
		cr := CompiledResource{
			Handle:        ResourceHandle(rh),
			Name:          res.name,
			External:      res.external,
			Format:        res.format,
			Aspect:        res.aspect,
			Usage:         res.usage,
			MutableFormat: res.mutableFormat,
			Multiplicity:  res.multiplicity,
			InstanceBegin: res.instanceBegin,
			InitialState:  r.node(r.node(first).prev).state,
		}
		for _, v := range res.views {
			cr.Views = append(cr.Views, ViewGroup{Key: v.key, ViewBegin: v.viewBegin})
		}
		h := res.head
		for range res.nodes {
			cr.Cycle = append(cr.Cycle, h)
			h = r.node(h).next
		}
		plan.Resources = append(plan.Resources, cr)
	}
	return plan
}

// Dump writes a human readable description of the plan.
func (p *Plan) Dump(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "passes\tlevel\tclass\tqueue\tobjects\tperiod\treads\twrites\n")
	for i := range p.Passes {
		cp := &p.Passes[i]
		objects, period := "-", "-"
		if cp.Recordable() {
			objects = fmt.Sprintf("[%d,%d)", cp.FrameSpanBegin, cp.FrameSpanBegin+cp.OwnPeriod*cp.RotatingCount)
			period = fmt.Sprintf("%dx%d", cp.OwnPeriod, cp.RotatingCount)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			cp.Name, cp.Level, cp.Class, cp.Domain, objects, period,
			strings.Join(cp.Reads, ","), strings.Join(cp.Writes, ","))
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "resources\tformat\tinstances\tviews\tinitial\n")
	for i := range p.Resources {
		cr := &p.Resources[i]
		views := make([]string, 0, len(cr.Views))
		for _, v := range cr.Views {
			views = append(views, fmt.Sprintf("%s@%d", v.Key, v.ViewBegin))
		}
		name := cr.Name
		if cr.External {
			name += " (external)"
		}
		fmt.Fprintf(tw, "%s\t%s\t[%d,%d)\t%s\t%s\n",
			name, cr.Format, cr.InstanceBegin, cr.InstanceBegin+cr.Multiplicity,
			strings.Join(views, " "), cr.InitialState.Layout)
	}
	fmt.Fprintln(tw)

	for _, lvl := range p.Levels {
		names := make([]string, 0, lvl.End-lvl.Begin)
		for _, cp := range p.Passes[lvl.Begin:lvl.End] {
			names = append(names, cp.Name)
		}
		fmt.Fprintf(tw, "level %d queue %d\t%s\n", lvl.Level, lvl.Domain, strings.Join(names, ", "))
	}
	fmt.Fprintln(tw)

	for i := range p.Passes {
		cp := &p.Passes[i]
		for _, b := range p.BeforeBarriers(cp) {
			fmt.Fprintf(tw, "%s\tbefore\t%s\n", cp.Name, b)
		}
		for _, b := range p.AfterBarriers(cp) {
			fmt.Fprintf(tw, "%s\tafter\t%s\n", cp.Name, b)
		}
	}
	return tw.Flush()
}
