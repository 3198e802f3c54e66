package rendergraph

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	randomPassTypes = []string{"graphics", "compute", "copy", "world", "ui"}
	randomFormats   = []Format{FormatRGBA8Unorm, FormatRGBA16Float, FormatR8Unorm, FormatD32Float}
	randomAccesses  = []AccessIntent{Read, Write, ReadWrite}
)

// randomDescription builds a description from seed. Usages the description
// rejects are dropped; the result may still fail to compile.
func randomDescription(seed uint64) *Description {
	rng := rand.New(rand.NewPCG(seed, 0))
	d := NewDescription()
	d.SetExternalResourceName(swapchain)

	resources := 1 + rng.IntN(5)
	formats := make([]Format, resources)
	for i := range formats {
		formats[i] = randomFormats[rng.IntN(len(randomFormats))]
	}

	passes := 1 + rng.IntN(8)
	for p := range passes {
		name := fmt.Sprintf("p%d", p)
		if d.AddPass(randomPassTypes[rng.IntN(len(randomPassTypes))], name) != nil {
			continue
		}
		for range 1 + rng.IntN(3) {
			r := rng.IntN(resources)
			access := randomAccesses[rng.IntN(len(randomAccesses))]
			var opts []UsageOption
			if access.Writes() || rng.IntN(2) == 0 {
				opts = append(opts, WithFormat(formats[r]))
			}
			if rng.IntN(4) == 0 {
				opts = append(opts, WithMultiplicity(uint32(1+rng.IntN(3))))
			}
			_ = d.AddSubresourceUsage(name, fmt.Sprintf("r%d", r), access, opts...)
		}
		if rng.IntN(3) == 0 || p == passes-1 {
			_ = d.AddSubresourceUsage(name, swapchain, Write)
		}
	}
	return d
}

func randomBackend(seed uint64) *fakeBackend {
	b := newFakeBackend()
	if seed%3 == 1 {
		b.domains[PassClassCompute] = 1
	}
	if seed%5 == 2 {
		b.domains[PassClassCopy] = 2
	}
	return b
}

func TestCompileRandomGraphs(t *testing.T) {
	var valid int
	for seed := range uint64(1500) {
		var plan *Plan
		var err error
		require.NotPanics(t, func() {
			plan, err = Compile(randomDescription(seed), randomBackend(seed))
		}, "seed %d", seed)
		if err != nil {
			continue
		}
		valid++
		checkRandomPlan(t, seed, plan)

		again, err := Compile(randomDescription(seed), randomBackend(seed))
		require.NoError(t, err, "seed %d", seed)
		assert.Equal(t, plan, again, "seed %d compiles to the same plan twice", seed)
	}
	assert.Greater(t, valid, 50, "generator produced too few valid graphs")
}

func checkRandomPlan(t *testing.T, seed uint64, plan *Plan) {
	t.Helper()
	recordable := plan.Passes[:len(plan.Passes)-1]
	require.Equal(t, PresentPassName, plan.Passes[len(plan.Passes)-1].Name, "seed %d", seed)

	// Topological order: every writer comes before its readers, on a
	// shallower level.
	for i := range recordable {
		for j := range recordable {
			a, b := &recordable[i], &recordable[j]
			if i != j && intersects(a.Writes, b.Reads) {
				assert.Less(t, i, j, "seed %d: %s before %s", seed, a.Name, b.Name)
				assert.Less(t, a.Level, b.Level, "seed %d: %s above %s", seed, a.Name, b.Name)
			}
		}
	}

	// Passes sharing a level never touch a common resource with a write.
	for i := range recordable {
		for j := i + 1; j < len(recordable); j++ {
			a, b := &recordable[i], &recordable[j]
			if a.Level != b.Level {
				continue
			}
			assert.False(t, intersects(a.Writes, b.Reads) || intersects(a.Writes, b.Writes) || intersects(a.Reads, b.Writes),
				"seed %d: %s and %s share level %d", seed, a.Name, b.Name, a.Level)
		}
	}

	// Spans tile the recordable passes in order, one level and queue each.
	next := 0
	for k, span := range plan.Levels {
		assert.Equal(t, next, span.Begin, "seed %d span %d", seed, k)
		assert.Less(t, span.Begin, span.End, "seed %d span %d", seed, k)
		for i := span.Begin; i < span.End; i++ {
			assert.Equal(t, span.Level, plan.Passes[i].Level, "seed %d span %d", seed, k)
			assert.Equal(t, span.Domain, plan.Passes[i].Domain, "seed %d span %d", seed, k)
		}
		if k > 0 {
			prev := plan.Levels[k-1]
			assert.True(t, prev.Level < span.Level || (prev.Level == span.Level && prev.Domain < span.Domain),
				"seed %d: spans %d and %d out of order", seed, k-1, k)
		}
		next = span.End
	}
	assert.Equal(t, len(recordable), next, "seed %d", seed)

	// Object indices stay inside the pass's own span.
	for i := range recordable {
		cp := &recordable[i]
		for counter := range uint64(4) {
			for rot := range uint32(3) {
				idx := cp.ObjectIndex(Frame{Counter: counter, RotatingIndex: rot})
				assert.GreaterOrEqual(t, idx, cp.FrameSpanBegin, "seed %d %s", seed, cp.Name)
				assert.Less(t, idx, cp.FrameSpanBegin+cp.OwnPeriod*cp.RotatingCount, "seed %d %s", seed, cp.Name)
			}
		}
	}
}
