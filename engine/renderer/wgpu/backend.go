// Package wgpu runs compiled render graphs on the gogpu/wgpu hardware
// abstraction layer. Resource state is tracked by usage rather than by
// layout, so every graph barrier becomes a texture usage transition. All
// passes record on the single queue wgpu exposes.
//
// The external resource is a ring of render targets. The host either hands
// them over in Config.Targets (surface textures, readback targets) or lets
// the renderer create them.
package wgpu

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var (
	ErrUnsupportedFormat = errors.New("format has no wgpu equivalent")
	ErrNoPlan            = errors.New("no plan has been created")
	ErrUnknownSignal     = errors.New("signal was not produced by this backend")
	ErrMissingLevels     = errors.New("frame submitted before all of its levels were recorded")
	ErrTargetCount       = errors.New("target textures do not match the configured image count")
)

// Device is the part of hal.Device the renderer drives.
type Device interface {
	CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error)
	DestroyTexture(texture hal.Texture)
	CreateTextureView(texture hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error)
	DestroyTextureView(view hal.TextureView)
	CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error)
	FreeCommandBuffer(cmdBuffer hal.CommandBuffer)
	WaitIdle() error
}

// Queue is the part of hal.Queue the renderer drives.
type Queue interface {
	Submit(commandBuffers []hal.CommandBuffer) (uint64, error)
	PollCompleted() uint64
}

type Config struct {
	TargetImages  uint32
	Format        rendergraph.Format
	Width, Height uint32
	// Targets are host-owned textures used as the external resource, one per
	// image. They are never destroyed by the renderer.
	Targets []hal.Texture
	// PollInterval is how often Wait checks the queue for completion.
	PollInterval time.Duration
	// Present is called with the target texture of each finished frame.
	Present func(rotatingIndex uint32, target hal.Texture) error
}

func DefaultConfig() Config {
	return Config{
		TargetImages: 3,
		Format:       rendergraph.FormatBGRA8Unorm,
		Width:        1280,
		Height:       720,
		PollInterval: 100 * time.Microsecond,
	}
}

type Texture struct {
	Handle   hal.Texture
	Resource string
	Instance uint32
	Owned    bool
}

// PassObject holds the views a pass object binds, in usage order.
type PassObject struct {
	Pass     string
	Index    uint32
	Textures []hal.Texture
	Views    []hal.TextureView
}

// Submission is the completion signal returned by Submit.
type Submission struct {
	Index uint64
}

// PassFunc records the content of a pass into the level's encoder.
type PassFunc func(ctx context.Context, enc hal.CommandEncoder, obj *PassObject) error

type inflight struct {
	index   uint64
	buffers []hal.CommandBuffer
}

type WGPURenderer struct {
	device Device
	queue  Queue
	config Config

	mu       sync.Mutex
	plan     *rendergraph.Plan
	textures []Texture
	views    []hal.TextureView
	objects  []PassObject
	before   map[rendergraph.PassHandle][]rendergraph.Barrier
	after    map[rendergraph.PassHandle][]rendergraph.Barrier
	passFns  map[string]PassFunc

	pending  map[uint64][]hal.CommandBuffer
	inflight []inflight
	acquired uint64
	booting  bool
}

func New(device Device, queue Queue, config Config) (*WGPURenderer, error) {
	if len(config.Targets) > 0 {
		if config.TargetImages == 0 {
			config.TargetImages = uint32(len(config.Targets))
		}
		if int(config.TargetImages) != len(config.Targets) {
			return nil, fmt.Errorf("%d targets for %d images: %w", len(config.Targets), config.TargetImages, ErrTargetCount)
		}
	}
	if config.TargetImages == 0 {
		config.TargetImages = 1
	}
	if config.Format == rendergraph.FormatUndefined {
		config.Format = rendergraph.FormatBGRA8Unorm
	}
	if _, err := TextureFormat(config.Format); err != nil {
		return nil, err
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 100 * time.Microsecond
	}
	return &WGPURenderer{
		device:  device,
		queue:   queue,
		config:  config,
		before:  map[rendergraph.PassHandle][]rendergraph.Barrier{},
		after:   map[rendergraph.PassHandle][]rendergraph.Barrier{},
		passFns: map[string]PassFunc{},
		pending: map[uint64][]hal.CommandBuffer{},
	}, nil
}

// FromHAL wraps an opened hal device.
func FromHAL(open hal.OpenDevice, config Config) (*WGPURenderer, error) {
	return New(open.Device, open.Queue, config)
}

func (w *WGPURenderer) RegisterPassFunc(passType string, fn PassFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.passFns[passType] = fn
}

func (w *WGPURenderer) QueueDomain(rendergraph.PassClass) rendergraph.QueueDomain { return 0 }

func (w *WGPURenderer) ExternalResource() rendergraph.ExternalResourceInfo {
	return rendergraph.ExternalResourceInfo{
		Format:        w.config.Format,
		InstanceCount: w.config.TargetImages,
	}
}

func (w *WGPURenderer) CreateResources(plan *rendergraph.Plan) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.destroyResources()
	w.plan = plan
	w.before = map[rendergraph.PassHandle][]rendergraph.Barrier{}
	w.after = map[rendergraph.PassHandle][]rendergraph.Barrier{}
	w.textures = make([]Texture, plan.InstanceCount)
	w.views = make([]hal.TextureView, plan.ViewCount)

	for _, cr := range plan.Resources {
		format, err := TextureFormat(cr.Format)
		if err != nil {
			return fmt.Errorf("resource %q: %w", cr.Name, err)
		}
		var viewFormats []gputypes.TextureFormat
		if cr.MutableFormat {
			for _, vg := range cr.Views {
				vf, err := TextureFormat(vg.Key.Format)
				if err != nil {
					return fmt.Errorf("resource %q: %w", cr.Name, err)
				}
				viewFormats = append(viewFormats, vf)
			}
		}

		for i := range cr.Multiplicity {
			t := Texture{Resource: cr.Name, Instance: i}
			if cr.External && len(w.config.Targets) > 0 {
				t.Handle = w.config.Targets[i]
			} else {
				t.Handle, err = w.device.CreateTexture(&hal.TextureDescriptor{
					Label:         fmt.Sprintf("%s#%d", cr.Name, i),
					Size:          hal.Extent3D{Width: w.config.Width, Height: w.config.Height, DepthOrArrayLayers: 1},
					MipLevelCount: 1,
					SampleCount:   1,
					Dimension:     gputypes.TextureDimension2D,
					Format:        format,
					Usage:         TextureUsage(cr.Usage),
					ViewFormats:   viewFormats,
				})
				if err != nil {
					return fmt.Errorf("texture %s#%d: %w", cr.Name, i, err)
				}
				t.Owned = true
			}
			w.textures[cr.InstanceBegin+i] = t
		}

		for _, vg := range cr.Views {
			vf, err := TextureFormat(vg.Key.Format)
			if err != nil {
				return fmt.Errorf("resource %q: %w", cr.Name, err)
			}
			for i := range cr.Multiplicity {
				view, err := w.device.CreateTextureView(w.textures[cr.InstanceBegin+i].Handle, &hal.TextureViewDescriptor{
					Label:           fmt.Sprintf("%s#%d/%s", cr.Name, i, vg.Key.Format),
					Format:          vf,
					Dimension:       gputypes.TextureViewDimension2D,
					Aspect:          Aspect(vg.Key.Aspect, cr.Format),
					MipLevelCount:   1,
					ArrayLayerCount: 1,
				})
				if err != nil {
					return fmt.Errorf("view %s#%d: %w", cr.Name, i, err)
				}
				w.views[vg.ViewBegin+i] = view
			}
		}
	}
	core.LogDebug("wgpu: %d textures, %d views", len(w.textures), len(w.views))
	return nil
}

func (w *WGPURenderer) CreatePassObjects(plan *rendergraph.Plan) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.objects = make([]PassObject, plan.PassObjectCount)
	for i := range plan.Passes {
		cp := &plan.Passes[i]
		if !cp.Recordable() {
			continue
		}
		for j := range cp.OwnPeriod * cp.RotatingCount {
			frame := rendergraph.Frame{Counter: uint64(j % cp.OwnPeriod), RotatingIndex: j / cp.OwnPeriod}
			obj := PassObject{Pass: cp.Name, Index: cp.FrameSpanBegin + j}
			for k := range cp.Usages {
				instance, view := plan.UsageInstance(&cp.Usages[k], frame)
				obj.Textures = append(obj.Textures, w.textures[instance].Handle)
				obj.Views = append(obj.Views, w.views[view])
			}
			w.objects[obj.Index] = obj
		}
	}
	return nil
}

func (w *WGPURenderer) AddBeforeBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.plan == nil {
		return ErrNoPlan
	}
	w.before[pass.Handle] = append(w.before[pass.Handle], barrier)
	return nil
}

func (w *WGPURenderer) AddAfterBarrier(pass *rendergraph.CompiledPass, barrier rendergraph.Barrier) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.plan == nil {
		return ErrNoPlan
	}
	w.after[pass.Handle] = append(w.after[pass.Handle], barrier)
	return nil
}

// textureBarriers resolves graph barriers against the instances used by a
// frame. Transitions that leave the usage unchanged are still emitted so
// storage writes are made visible to the next reader.
func textureBarriers(textures []Texture, barriers []rendergraph.Barrier, f rendergraph.Frame) []hal.TextureBarrier {
	if len(barriers) == 0 {
		return nil
	}
	out := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		out = append(out, hal.TextureBarrier{
			Texture: textures[b.InstanceFor(f)].Handle,
			Range: hal.TextureRange{
				Aspect:          Aspect(b.Aspect, b.Format),
				MipLevelCount:   1,
				ArrayLayerCount: 1,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: StateUsage(b.Src),
				NewUsage: StateUsage(b.Dst),
			},
		})
	}
	return out
}

func (w *WGPURenderer) RecordLevel(ctx context.Context, rec rendergraph.LevelRecording) error {
	w.mu.Lock()
	if w.plan == nil {
		w.mu.Unlock()
		return ErrNoPlan
	}
	levels := len(w.plan.Levels)
	passFns := maps.Clone(w.passFns)
	before, after := w.before, w.after
	textures, objects := w.textures, w.objects
	w.mu.Unlock()

	enc, err := w.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("frame %d level %d", rec.Frame.Counter, rec.Level),
	})
	if err != nil {
		return err
	}
	if err := enc.BeginEncoding(fmt.Sprintf("level %d", rec.Level)); err != nil {
		enc.Destroy()
		return err
	}

	for _, inst := range rec.Passes {
		if err := ctx.Err(); err != nil {
			enc.DiscardEncoding()
			return err
		}
		cp := inst.Pass
		if tb := textureBarriers(textures, before[cp.Handle], rec.Frame); len(tb) > 0 {
			enc.TransitionTextures(tb)
		}
		if fn, ok := passFns[cp.Type]; ok {
			if err := fn(ctx, enc, &objects[inst.ObjectIndex]); err != nil {
				enc.DiscardEncoding()
				return fmt.Errorf("pass %q: %w", cp.Name, err)
			}
		}
		if tb := textureBarriers(textures, after[cp.Handle], rec.Frame); len(tb) > 0 {
			enc.TransitionTextures(tb)
		}
	}

	cb, err := enc.EndEncoding()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	slots, ok := w.pending[rec.Frame.Counter]
	if !ok {
		slots = make([]hal.CommandBuffer, levels)
		w.pending[rec.Frame.Counter] = slots
	}
	slots[rec.Index] = cb
	return nil
}

// Submit hands every level of the frame to the queue in level order. The
// queue executes submissions in order, so wait only has to name a
// submission this renderer made.
func (w *WGPURenderer) Submit(ctx context.Context, frame rendergraph.Frame, wait rendergraph.Signal) (rendergraph.Signal, error) {
	switch wait.(type) {
	case nil, Submission:
	default:
		return nil, fmt.Errorf("wait on %T: %w", wait, ErrUnknownSignal)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.plan == nil {
		return nil, ErrNoPlan
	}

	buffers := w.pending[frame.Counter]
	delete(w.pending, frame.Counter)
	if len(buffers) != len(w.plan.Levels) {
		return nil, fmt.Errorf("frame %d: %w", frame.Counter, ErrMissingLevels)
	}
	for i, cb := range buffers {
		if cb == nil {
			return nil, fmt.Errorf("frame %d level %d: %w", frame.Counter, i, ErrMissingLevels)
		}
	}

	index, err := w.queue.Submit(buffers)
	if err != nil {
		for _, cb := range buffers {
			w.device.FreeCommandBuffer(cb)
		}
		return nil, err
	}
	w.inflight = append(w.inflight, inflight{index: index, buffers: buffers})
	w.reclaim()
	return Submission{Index: index}, nil
}

// reclaim frees command buffers of completed submissions.
func (w *WGPURenderer) reclaim() {
	done := w.queue.PollCompleted()
	n := 0
	for _, s := range w.inflight {
		if s.index > done {
			w.inflight[n] = s
			n++
			continue
		}
		for _, cb := range s.buffers {
			w.device.FreeCommandBuffer(cb)
		}
	}
	clear(w.inflight[n:])
	w.inflight = w.inflight[:n]
}

// AcquireNextImage rotates through the targets. There is no acquire
// semaphore; submissions on the single queue are already ordered.
func (w *WGPURenderer) AcquireNextImage(ctx context.Context, frameCounter uint64) (uint32, rendergraph.Signal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.booting {
		w.booting = false
		w.acquired = 0
		return 0, nil, core.ErrSwapchainBooting
	}
	index := uint32(w.acquired % uint64(w.config.TargetImages))
	w.acquired++
	return index, nil, nil
}

func (w *WGPURenderer) Present(ctx context.Context, rotatingIndex uint32, rendered rendergraph.Signal) error {
	if w.config.Present == nil {
		return nil
	}
	if s, ok := rendered.(Submission); ok {
		if err := w.Wait(ctx, s); err != nil {
			return err
		}
	}
	w.mu.Lock()
	plan := w.plan
	textures := w.textures
	w.mu.Unlock()
	if plan == nil {
		return ErrNoPlan
	}
	ext := plan.ExternalInstances
	return w.config.Present(rotatingIndex, textures[ext.Begin+rotatingIndex%ext.Count].Handle)
}

// Wait polls the queue until the submission completes or ctx is done.
func (w *WGPURenderer) Wait(ctx context.Context, signal rendergraph.Signal) error {
	var s Submission
	switch v := signal.(type) {
	case nil:
		return nil
	case Submission:
		s = v
	default:
		return fmt.Errorf("wait on %T: %w", signal, ErrUnknownSignal)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for w.queue.PollCompleted() < s.Index {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	w.mu.Lock()
	w.reclaim()
	w.mu.Unlock()
	return nil
}

// Resized changes the extent of textures created on the next build.
func (w *WGPURenderer) Resized(width, height uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config.Width, w.config.Height = width, height
	w.booting = true
	return nil
}

func (w *WGPURenderer) WaitIdle(ctx context.Context) error {
	if err := w.device.WaitIdle(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reclaim()
	return nil
}

func (w *WGPURenderer) Shutdown() error {
	err := w.device.WaitIdle()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.inflight {
		for _, cb := range s.buffers {
			w.device.FreeCommandBuffer(cb)
		}
	}
	w.inflight = nil
	for _, buffers := range w.pending {
		for _, cb := range buffers {
			if cb != nil {
				w.device.FreeCommandBuffer(cb)
			}
		}
	}
	clear(w.pending)
	w.destroyResources()
	w.plan = nil
	return err
}

func (w *WGPURenderer) destroyResources() {
	for _, v := range w.views {
		if v != nil {
			w.device.DestroyTextureView(v)
		}
	}
	for _, t := range w.textures {
		if t.Owned && t.Handle != nil {
			w.device.DestroyTexture(t.Handle)
		}
	}
	w.views, w.textures, w.objects = nil, nil, nil
}

// Textures returns the texture instances in flat instance order.
func (w *WGPURenderer) Textures() []Texture {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.textures
}

func (w *WGPURenderer) PassObjects() []PassObject {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.objects
}
