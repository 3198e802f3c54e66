package rendergraph

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraverseNotBuilt(t *testing.T) {
	g := NewGraph(chainDescription(t), newFakeBackend())
	_, err := g.Traverse(context.Background(), 0, 0, nil)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestTraverse(t *testing.T) {
	backend := newFakeBackend()
	g := NewGraph(deferredDescription(t), backend)
	require.NoError(t, g.Build())
	plan := g.Plan()

	signal, err := g.Traverse(context.Background(), 7, 1, "previous")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), signal)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, Frame{Counter: 7, RotatingIndex: 1}, backend.submitted[0])

	recorded := slices.Clone(backend.recorded)
	slices.SortFunc(recorded, func(a, b LevelRecording) int { return a.Index - b.Index })
	require.Len(t, recorded, len(plan.Levels))

	for i, rec := range recorded {
		span := plan.Levels[i]
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, span.Level, rec.Level)
		assert.Equal(t, Frame{Counter: 7, RotatingIndex: 1}, rec.Frame)
		require.Len(t, rec.Passes, span.End-span.Begin)
		for j, inst := range rec.Passes {
			assert.Same(t, &plan.Passes[span.Begin+j], inst.Pass)
			assert.Equal(t, inst.Pass.ObjectIndex(rec.Frame), inst.ObjectIndex)
		}
	}

	tonemap := recorded[5].Passes[1]
	assert.Equal(t, "tonemap", tonemap.Pass.Name)
	assert.Equal(t, uint32(11), tonemap.ObjectIndex)
}

func TestTraverseRecordError(t *testing.T) {
	backend := newFakeBackend()
	g := NewGraph(deferredDescription(t), backend)
	require.NoError(t, g.Build())

	boom := errors.New("out of command buffers")
	backend.recordErr = boom
	_, err := g.Traverse(context.Background(), 0, 0, nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, backend.submitted, "nothing is submitted when a level fails")
}

func TestTraverseConcurrentWithBuild(t *testing.T) {
	backend := newFakeBackend()
	g := NewGraph(chainDescription(t), backend)
	require.NoError(t, g.Build())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Traverse(context.Background(), uint64(i), uint32(i%3), nil)
			assert.NoError(t, err)
		}()
	}
	require.NoError(t, g.Build())
	wg.Wait()

	assert.Len(t, backend.submitted, 8)
}
