// Package headless is a render graph backend that creates no API objects.
// It keeps labelled stand-ins for images, views and pass objects and records
// every frame into a command trace, which makes compiled plans observable
// without a GPU.
package headless

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/containers"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var (
	ErrNoPlan          = errors.New("no plan has been created")
	ErrUnknownSignal   = errors.New("signal was not produced by this backend")
	ErrMissingLevels   = errors.New("frame submitted before all of its levels were recorded")
	ErrInstanceOutside = errors.New("barrier addresses an instance outside the allocated range")
)

type Config struct {
	SwapchainImages uint32
	Format          rendergraph.Format
	Width, Height   uint32
	// AsyncCompute and AsyncCopy put compute and copy passes on their own
	// queue domains so the plan carries ownership transfers.
	AsyncCompute bool
	AsyncCopy    bool
	// TraceDepth is how many submitted frame traces are kept.
	TraceDepth int
}

func DefaultConfig() Config {
	return Config{
		SwapchainImages: 3,
		Format:          rendergraph.FormatBGRA8Unorm,
		Width:           1280,
		Height:          720,
		TraceDepth:      8,
	}
}

type Image struct {
	ID       uuid.UUID
	Resource string
	Instance uint32
	Format   rendergraph.Format
	Usage    rendergraph.Usage
	External bool
}

type View struct {
	ID    uuid.UUID
	Image uint32
	Key   rendergraph.ViewKey
}

// Binding is the image instance and view a pass object uses for one of its
// subresource usages.
type Binding struct {
	Resource string
	Instance uint32
	View     uint32
	State    rendergraph.SubresourceState
}

type PassObject struct {
	ID       uuid.UUID
	Pass     string
	Index    uint32
	Bindings []Binding
}

type Op uint8

const (
	OpBarrier Op = iota
	OpBeginPass
	OpEndPass
	OpCommand
)

func (o Op) String() string {
	switch o {
	case OpBarrier:
		return "barrier"
	case OpBeginPass:
		return "begin"
	case OpEndPass:
		return "end"
	case OpCommand:
		return "cmd"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Command is one entry of a recorded trace.
type Command struct {
	Op       Op
	Level    uint32
	Pass     string
	Object   uint32
	Barrier  rendergraph.Barrier
	Instance uint32
	Text     string
}

func (c Command) String() string {
	switch c.Op {
	case OpBarrier:
		return fmt.Sprintf("L%d %s %s #%d", c.Level, c.Pass, c.Barrier, c.Instance)
	case OpCommand:
		return fmt.Sprintf("L%d %s %s", c.Level, c.Pass, c.Text)
	default:
		return fmt.Sprintf("L%d %s %s #%d", c.Level, c.Op, c.Pass, c.Object)
	}
}

// Trace is everything recorded for one submitted frame, levels in order.
type Trace struct {
	Frame    rendergraph.Frame
	Wait     rendergraph.Signal
	Commands []Command
}

// Fence is the completion signal returned by Submit.
type Fence struct {
	Frame uint64
}

// ImageAvailable is the signal returned by AcquireNextImage.
type ImageAvailable struct {
	Index uint32
}

// Recorder is handed to pass callbacks to append commands for the pass being
// recorded.
type Recorder struct {
	level    uint32
	pass     string
	object   *PassObject
	commands *[]Command
}

func (r *Recorder) Object() *PassObject { return r.object }

func (r *Recorder) Emit(format string, args ...any) {
	*r.commands = append(*r.commands, Command{
		Op:     OpCommand,
		Level:  r.level,
		Pass:   r.pass,
		Object: r.object.Index,
		Text:   fmt.Sprintf(format, args...),
	})
}

// PassFunc records the content of a pass. Callbacks are keyed by pass type.
type PassFunc func(ctx context.Context, rec *Recorder, inst rendergraph.PassInstance) error

type HeadlessRenderer struct {
	config Config

	mu      sync.Mutex
	plan    *rendergraph.Plan
	images  []Image
	views   []View
	objects []PassObject
	before  map[rendergraph.PassHandle][]rendergraph.Barrier
	after   map[rendergraph.PassHandle][]rendergraph.Barrier
	passFns map[string]PassFunc

	pending map[uint64][][]Command
	traces  *containers.RingQueue[Trace]

	acquired  uint64
	presented []uint32
	booting   bool
	builds    int
}

func New(config Config) *HeadlessRenderer {
	if config.SwapchainImages == 0 {
		config.SwapchainImages = 1
	}
	if config.Format == rendergraph.FormatUndefined {
		config.Format = rendergraph.FormatBGRA8Unorm
	}
	if config.TraceDepth <= 0 {
		config.TraceDepth = 1
	}
	return &HeadlessRenderer{
		config:  config,
		before:  map[rendergraph.PassHandle][]rendergraph.Barrier{},
		after:   map[rendergraph.PassHandle][]rendergraph.Barrier{},
		passFns: map[string]PassFunc{},
		pending: map[uint64][][]Command{},
		traces:  containers.NewRingQueue[Trace](config.TraceDepth),
	}
}

// RegisterPassFunc sets the callback used to record passes of a type.
func (h *HeadlessRenderer) RegisterPassFunc(passType string, fn PassFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passFns[passType] = fn
}

func (h *HeadlessRenderer) QueueDomain(class rendergraph.PassClass) rendergraph.QueueDomain {
	switch {
	case class == rendergraph.PassClassCompute && h.config.AsyncCompute:
		return 1
	case class == rendergraph.PassClassCopy && h.config.AsyncCopy:
		return 2
	default:
		return 0
	}
}

func (h *HeadlessRenderer) ExternalResource() rendergraph.ExternalResourceInfo {
	return rendergraph.ExternalResourceInfo{
		Format:        h.config.Format,
		InstanceCount: h.config.SwapchainImages,
	}
}

func (h *HeadlessRenderer) CreateResources(plan *rendergraph.Plan) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.plan = plan
	h.images = make([]Image, plan.InstanceCount)
	h.views = make([]View, plan.ViewCount)
	h.before = map[rendergraph.PassHandle][]rendergraph.Barrier{}
	h.after = map[rendergraph.PassHandle][]rendergraph.Barrier{}
	clear(h.pending)

	for _, cr := range plan.Resources {
		for i := range cr.Multiplicity {
			h.images[cr.InstanceBegin+i] = Image{
				ID:       uuid.New(),
				Resource: cr.Name,
				Instance: i,
				Format:   cr.Format,
				Usage:    cr.Usage,
				External: cr.External,
			}
		}
		for _, vg := range cr.Views {
			for i := range cr.Multiplicity {
				h.views[vg.ViewBegin+i] = View{
					ID:    uuid.New(),
					Image: cr.InstanceBegin + i,
					Key:   vg.Key,
				}
			}
		}
	}
	h.builds++
	core.LogDebug("headless: %d images, %d views (build %d)", len(h.images), len(h.views), h.builds)
	return nil
}

func (h *HeadlessRenderer) CreatePassObjects(plan *rendergraph.Plan) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.objects = make([]PassObject, plan.PassObjectCount)
	for i := range plan.Passes {
		cp := &plan.Passes[i]
		if !cp.Recordable() {
			continue
		}
		for j := range cp.OwnPeriod * cp.RotatingCount {
			// Object j of the span runs when counter%period == j%period and
			// the rotating index is j/period.
			frame := rendergraph.Frame{Counter: uint64(j % cp.OwnPeriod), RotatingIndex: j / cp.OwnPeriod}
			obj := PassObject{ID: uuid.New(), Pass: cp.Name, Index: cp.FrameSpanBegin + j}
			for k := range cp.Usages {
				u := &cp.Usages[k]
				instance, view := plan.UsageInstance(u, frame)
				obj.Bindings = append(obj.Bindings, Binding{
					Resource: u.ResourceName,
					Instance: instance,
					View:     view,
					State:    u.State,
				})
			}
			h.objects[obj.Index] = obj
		}
	}
	core.LogDebug("headless: %d pass objects", len(h.objects))
	return nil
}

func (h *HeadlessRenderer) AddBeforeBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	if err := h.checkBarrier(barrier); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before[pass.Handle] = append(h.before[pass.Handle], barrier)
	return nil
}

func (h *HeadlessRenderer) AddAfterBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	if err := h.checkBarrier(barrier); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after[pass.Handle] = append(h.after[pass.Handle], barrier)
	return nil
}

func (h *HeadlessRenderer) checkBarrier(b rendergraph.Barrier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.plan == nil {
		return ErrNoPlan
	}
	last := b.BaseInstance
	if b.IsMultiframe() {
		last = b.Multiframe.BaseInstance + b.Multiframe.Period - 1
	}
	if int(last) >= len(h.images) {
		return fmt.Errorf("%q instance %d: %w", b.ResourceName, last, ErrInstanceOutside)
	}
	return nil
}

func (h *HeadlessRenderer) RecordLevel(ctx context.Context, rec rendergraph.LevelRecording) error {
	h.mu.Lock()
	if h.plan == nil {
		h.mu.Unlock()
		return ErrNoPlan
	}
	levels := len(h.plan.Levels)
	passFns := maps.Clone(h.passFns)
	objects := h.objects
	before, after := h.before, h.after
	h.mu.Unlock()

	var commands []Command
	for _, inst := range rec.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := inst.Pass
		for _, b := range before[cp.Handle] {
			commands = append(commands, Command{Op: OpBarrier, Level: rec.Level, Pass: cp.Name, Barrier: b, Instance: b.InstanceFor(rec.Frame)})
		}
		commands = append(commands, Command{Op: OpBeginPass, Level: rec.Level, Pass: cp.Name, Object: inst.ObjectIndex})
		if fn, ok := passFns[cp.Type]; ok {
			r := &Recorder{level: rec.Level, pass: cp.Name, object: &objects[inst.ObjectIndex], commands: &commands}
			if err := fn(ctx, r, inst); err != nil {
				return fmt.Errorf("pass %q: %w", cp.Name, err)
			}
		}
		commands = append(commands, Command{Op: OpEndPass, Level: rec.Level, Pass: cp.Name, Object: inst.ObjectIndex})
		for _, b := range after[cp.Handle] {
			commands = append(commands, Command{Op: OpBarrier, Level: rec.Level, Pass: cp.Name, Barrier: b, Instance: b.InstanceFor(rec.Frame)})
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	slots, ok := h.pending[rec.Frame.Counter]
	if !ok {
		slots = make([][]Command, levels)
		h.pending[rec.Frame.Counter] = slots
	}
	slots[rec.Index] = commands
	return nil
}

func (h *HeadlessRenderer) Submit(ctx context.Context, frame rendergraph.Frame, wait rendergraph.Signal) (rendergraph.Signal, error) {
	switch wait.(type) {
	case nil, Fence, ImageAvailable:
	default:
		return nil, fmt.Errorf("wait on %T: %w", wait, ErrUnknownSignal)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.plan == nil {
		return nil, ErrNoPlan
	}

	slots := h.pending[frame.Counter]
	delete(h.pending, frame.Counter)
	if len(h.plan.Levels) > 0 && len(slots) != len(h.plan.Levels) {
		return nil, fmt.Errorf("frame %d: %w", frame.Counter, ErrMissingLevels)
	}
	trace := Trace{Frame: frame, Wait: wait}
	for _, cmds := range slots {
		trace.Commands = append(trace.Commands, cmds...)
	}

	if h.traces.IsFull() {
		_, _ = h.traces.Dequeue()
	}
	if err := h.traces.Enqueue(trace); err != nil {
		return nil, err
	}
	return Fence{Frame: frame.Counter}, nil
}

func (h *HeadlessRenderer) AcquireNextImage(ctx context.Context, frameCounter uint64) (uint32, rendergraph.Signal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.booting {
		h.booting = false
		h.acquired = 0
		return 0, nil, core.ErrSwapchainBooting
	}
	index := uint32(h.acquired % uint64(h.config.SwapchainImages))
	h.acquired++
	return index, ImageAvailable{Index: index}, nil
}

func (h *HeadlessRenderer) Present(ctx context.Context, rotatingIndex uint32, rendered rendergraph.Signal) error {
	if _, ok := rendered.(Fence); !ok && rendered != nil {
		return fmt.Errorf("present after %T: %w", rendered, ErrUnknownSignal)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presented = append(h.presented, rotatingIndex)
	return nil
}

func (h *HeadlessRenderer) Wait(ctx context.Context, signal rendergraph.Signal) error {
	switch signal.(type) {
	case nil, Fence:
		return ctx.Err()
	default:
		return fmt.Errorf("wait on %T: %w", signal, ErrUnknownSignal)
	}
}

// Resized recreates the virtual swapchain; the next acquire reports
// core.ErrSwapchainBooting.
func (h *HeadlessRenderer) Resized(width, height uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config.Width, h.config.Height = width, height
	h.booting = true
	return nil
}

func (h *HeadlessRenderer) WaitIdle(ctx context.Context) error { return ctx.Err() }

func (h *HeadlessRenderer) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plan = nil
	h.images, h.views, h.objects = nil, nil, nil
	clear(h.pending)
	return nil
}

func (h *HeadlessRenderer) Images() []Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.images)
}

func (h *HeadlessRenderer) Views() []View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.views)
}

func (h *HeadlessRenderer) PassObjects() []PassObject {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.objects)
}

// Barriers returns the before and after barriers registered for a pass.
func (h *HeadlessRenderer) Barriers(pass rendergraph.PassHandle) (before, after []rendergraph.Barrier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.before[pass]), slices.Clone(h.after[pass])
}

// LastTrace returns the most recent submitted frame trace.
func (h *HeadlessRenderer) LastTrace() (Trace, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.traces.Len()
	if n == 0 {
		return Trace{}, false
	}
	var last Trace
	for range n {
		t, _ := h.traces.Dequeue()
		_ = h.traces.Enqueue(t)
		last = t
	}
	return last, true
}

func (h *HeadlessRenderer) Presented() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.presented)
}
