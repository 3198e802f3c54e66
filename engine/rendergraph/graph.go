package rendergraph

import (
	"fmt"
	"maps"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/core"
)

var builtinPassTypes = map[string]PassClass{
	"graphics": PassClassGraphics,
	"compute":  PassClassCompute,
	"copy":     PassClassCopy,
	// render view kinds
	"world":  PassClassGraphics,
	"skybox": PassClassGraphics,
	"ui":     PassClassGraphics,
	"pick":   PassClassGraphics,
}

// Graph compiles a Description into a Plan and traverses it every frame.
// Build and Traverse never run concurrently; a build waits for in-flight
// traversals to return and the caller must also make sure the device has
// finished with the previous plan.
type Graph struct {
	mu        sync.RWMutex
	backend   Backend
	desc      *Description
	passTypes map[string]PassClass
	plan      *Plan
	builds    uint64
}

func NewGraph(desc *Description, backend Backend) *Graph {
	return &Graph{
		backend:   backend,
		desc:      desc,
		passTypes: maps.Clone(builtinPassTypes),
	}
}

// RegisterPassType makes a pass type name available to descriptions.
func (g *Graph) RegisterPassType(name string, class PassClass) error {
	if name == "" {
		return ErrEmptyName
	}
	if class == PassClassPresent {
		return fmt.Errorf("pass type %q: %w", name, ErrInvalidRole)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passTypes[name] = class
	return nil
}

// SetDescription replaces the description used by the next Build.
func (g *Graph) SetDescription(desc *Description) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.desc = desc
}

// Plan returns the plan of the last successful build, or nil.
func (g *Graph) Plan() *Plan {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan
}

// Build compiles the description from scratch and hands the result to the
// backend. Nothing from a previous build is reused.
func (g *Graph) Build() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend == nil {
		return ErrNoBackend
	}
	if g.desc == nil {
		return ErrNoDescription
	}

	plan, err := compile(g.desc, g.passTypes, g.backend)
	if err != nil {
		return err
	}

	if err := g.backend.CreateResources(plan); err != nil {
		return fmt.Errorf("create resources: %w", err)
	}
	if err := g.backend.CreatePassObjects(plan); err != nil {
		return fmt.Errorf("create pass objects: %w", err)
	}
	for i := range plan.Passes {
		cp := &plan.Passes[i]
		for _, b := range plan.BeforeBarriers(cp) {
			if err := g.backend.AddBeforeBarrier(cp, b); err != nil {
				return fmt.Errorf("before barrier of %q on %q: %w", b.ResourceName, cp.Name, err)
			}
		}
		for _, b := range plan.AfterBarriers(cp) {
			if err := g.backend.AddAfterBarrier(cp, b); err != nil {
				return fmt.Errorf("after barrier of %q on %q: %w", b.ResourceName, cp.Name, err)
			}
		}
	}

	g.plan = plan
	g.builds++
	core.LogInfo("render graph built (#%d): %d passes, %d levels, %d resources, %d barriers, %d instances, %d views",
		g.builds, len(plan.Passes), len(plan.Levels), len(plan.Resources), len(plan.Barriers), plan.InstanceCount, plan.ViewCount)
	return nil
}

// Validate compiles desc with the graph's pass types and discards the
// result. The current plan and the backend's objects are left alone.
func (g *Graph) Validate(desc *Description) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.backend == nil {
		return ErrNoBackend
	}
	_, err := compile(desc, g.passTypes, g.backend)
	return err
}

// Compile runs the compiler without touching a backend's objects. It only
// queries the backend for queue domains and the external resource.
func Compile(desc *Description, backend Backend) (*Plan, error) {
	return compile(desc, builtinPassTypes, backend)
}

func compile(desc *Description, passTypes map[string]PassClass, backend Backend) (*Plan, error) {
	reg, err := newRegistry(desc, passTypes, backend)
	if err != nil {
		return nil, err
	}
	if err := reg.resolveDependencies(); err != nil {
		return nil, err
	}
	reg.linkSubresources()
	reg.validateSubresourceLinks()
	reg.propagateMetadatas()
	if err := reg.allocate(); err != nil {
		return nil, err
	}
	reg.synthesizeBarriers()

	plan := reg.buildPlan()
	for _, lvl := range plan.Levels {
		for _, cp := range plan.Passes[lvl.Begin:lvl.End] {
			core.LogDebug("level %d: %s (%s, period %d, %d before / %d after barriers)",
				lvl.Level, cp.Name, cp.Class, cp.OwnPeriod,
				cp.BeforePassEnd-cp.BeforePassBegin, cp.AfterPassEnd-cp.AfterPassBegin)
		}
	}
	return plan, nil
}
