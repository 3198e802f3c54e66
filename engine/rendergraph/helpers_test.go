package rendergraph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const swapchain = "swapchain"

type fakeBackend struct {
	mu sync.Mutex

	ext     ExternalResourceInfo
	domains map[PassClass]QueueDomain

	resourceBuilds int
	objectBuilds   int
	before         map[string][]Barrier
	after          map[string][]Barrier

	recorded  []LevelRecording
	submitted []Frame
	recordErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ext:     ExternalResourceInfo{Format: FormatBGRA8Unorm, InstanceCount: 3},
		domains: map[PassClass]QueueDomain{},
		before:  map[string][]Barrier{},
		after:   map[string][]Barrier{},
	}
}

func (b *fakeBackend) QueueDomain(class PassClass) QueueDomain { return b.domains[class] }

func (b *fakeBackend) ExternalResource() ExternalResourceInfo { return b.ext }

func (b *fakeBackend) CreateResources(plan *Plan) error {
	b.resourceBuilds++
	b.before = map[string][]Barrier{}
	b.after = map[string][]Barrier{}
	return nil
}

func (b *fakeBackend) CreatePassObjects(plan *Plan) error {
	b.objectBuilds++
	return nil
}

func (b *fakeBackend) AddBeforeBarrier(pass *CompiledPass, barrier Barrier) error {
	b.before[pass.Name] = append(b.before[pass.Name], barrier)
	return nil
}

func (b *fakeBackend) AddAfterBarrier(pass *CompiledPass, barrier Barrier) error {
	b.after[pass.Name] = append(b.after[pass.Name], barrier)
	return nil
}

func (b *fakeBackend) RecordLevel(ctx context.Context, rec LevelRecording) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded = append(b.recorded, rec)
	return nil
}

func (b *fakeBackend) Submit(ctx context.Context, frame Frame, wait Signal) (Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, frame)
	return frame.Counter, nil
}

type usage struct {
	pass, resource string
	access         AccessIntent
	opts           []UsageOption
}

func describe(t *testing.T, passes map[string]string, order []string, usages ...usage) *Description {
	t.Helper()
	d := NewDescription()
	d.SetExternalResourceName(swapchain)
	for _, name := range order {
		require.NoError(t, d.AddPass(passes[name], name))
	}
	for _, u := range usages {
		require.NoError(t, d.AddSubresourceUsage(u.pass, u.resource, u.access, u.opts...))
	}
	return d
}

// chainDescription: a writes color, b samples it and writes the swapchain.
func chainDescription(t *testing.T) *Description {
	return describe(t,
		map[string]string{"a": "graphics", "b": "graphics"},
		[]string{"a", "b"},
		usage{"a", "color", Write, []UsageOption{WithFormat(FormatRGBA8Unorm)}},
		usage{"b", "color", Read, nil},
		usage{"b", swapchain, Write, nil},
	)
}

// deferredDescription is a small deferred renderer with a compute pass, a
// temporal history resource and a copy readback. Declared out of order.
func deferredDescription(t *testing.T) *Description {
	return describe(t,
		map[string]string{
			"ui":       "ui",
			"tonemap":  "graphics",
			"readback": "copy",
			"taa":      "graphics",
			"lighting": "world",
			"ssao":     "compute",
			"gbuffer":  "world",
			"prepass":  "world",
		},
		[]string{"ui", "tonemap", "readback", "taa", "lighting", "ssao", "gbuffer", "prepass"},
		usage{"prepass", "depth", Write, []UsageOption{WithFormat(FormatD32Float)}},
		usage{"gbuffer", "depth", Read, []UsageOption{WithRole(RoleDepthAttachment)}},
		usage{"gbuffer", "albedo", Write, []UsageOption{WithFormat(FormatRGBA8Unorm)}},
		usage{"gbuffer", "normal", Write, []UsageOption{WithFormat(FormatRGBA16Float)}},
		usage{"ssao", "depth", Read, nil},
		usage{"ssao", "normal", Read, nil},
		usage{"ssao", "ao", Write, []UsageOption{WithFormat(FormatR8Unorm)}},
		usage{"lighting", "albedo", Read, nil},
		usage{"lighting", "normal", Read, nil},
		usage{"lighting", "ao", Read, nil},
		usage{"lighting", "depth", Read, nil},
		usage{"lighting", "hdr", Write, []UsageOption{WithFormat(FormatRGBA16Float)}},
		usage{"taa", "hdr", Read, nil},
		usage{"taa", "history", ReadWrite, []UsageOption{
			WithFormat(FormatRGBA16Float), WithRole(RoleStorage), WithMultiplicity(2),
		}},
		usage{"tonemap", "history", Read, nil},
		usage{"tonemap", swapchain, Write, nil},
		usage{"ui", swapchain, ReadWrite, nil},
		usage{"readback", "history", Read, nil},
		usage{"readback", "readback", Write, []UsageOption{WithFormat(FormatRGBA16Float)}},
	)
}

func compileT(t *testing.T, d *Description, b Backend) *Plan {
	t.Helper()
	plan, err := Compile(d, b)
	require.NoError(t, err)
	return plan
}

func passNames(plan *Plan) []string {
	names := make([]string, 0, len(plan.Passes))
	for _, cp := range plan.Passes {
		names = append(names, cp.Name)
	}
	return names
}

func usageOf(t *testing.T, cp *CompiledPass, resource string) CompiledUsage {
	t.Helper()
	for _, u := range cp.Usages {
		if u.ResourceName == resource {
			return u
		}
	}
	t.Fatalf("pass %q does not use %q", cp.Name, resource)
	return CompiledUsage{}
}

func mustPass(t *testing.T, plan *Plan, name string) *CompiledPass {
	t.Helper()
	cp, ok := plan.Pass(name)
	require.True(t, ok, "pass %q", name)
	return cp
}

func mustResource(t *testing.T, plan *Plan, name string) *CompiledResource {
	t.Helper()
	cr, ok := plan.Resource(name)
	require.True(t, ok, "resource %q", name)
	return cr
}
