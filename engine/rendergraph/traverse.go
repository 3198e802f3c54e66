package rendergraph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Traverse records and submits one frame of the current plan. Every
// dependency level but the last is recorded on its own goroutine; the last
// one is recorded on the calling goroutine, which then waits for the others
// before submitting. frameCounter and rotatingIndex belong to the caller and
// are never written here.
func (g *Graph) Traverse(ctx context.Context, frameCounter uint64, rotatingIndex uint32, wait Signal) (Signal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.plan == nil {
		return nil, ErrNotBuilt
	}
	plan := g.plan
	frame := Frame{Counter: frameCounter, RotatingIndex: rotatingIndex}

	if n := len(plan.Levels); n > 0 {
		eg, egctx := errgroup.WithContext(ctx)
		for i := range plan.Levels[:n-1] {
			eg.Go(func() error {
				return g.recordLevel(egctx, plan, frame, i)
			})
		}
		lastErr := g.recordLevel(egctx, plan, frame, n-1)
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		if lastErr != nil {
			return nil, lastErr
		}
	}

	signal, err := g.backend.Submit(ctx, frame, wait)
	if err != nil {
		return nil, fmt.Errorf("submit frame %d: %w", frameCounter, err)
	}
	return signal, nil
}

func (g *Graph) recordLevel(ctx context.Context, plan *Plan, frame Frame, index int) error {
	span := plan.Levels[index]
	rec := LevelRecording{
		Frame:  frame,
		Index:  index,
		Level:  span.Level,
		Domain: span.Domain,
		Passes: make([]PassInstance, 0, span.End-span.Begin),
	}
	for i := span.Begin; i < span.End; i++ {
		cp := &plan.Passes[i]
		rec.Passes = append(rec.Passes, PassInstance{Pass: cp, ObjectIndex: cp.ObjectIndex(frame)})
	}
	if err := g.backend.RecordLevel(ctx, rec); err != nil {
		return fmt.Errorf("record level %d: %w", span.Level, err)
	}
	return nil
}
