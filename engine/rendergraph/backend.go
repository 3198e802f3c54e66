package rendergraph

import "context"

// Signal is an opaque completion token owned by the backend (a semaphore,
// a fence, a channel). A nil Signal means "nothing to wait on".
type Signal any

// ExternalResourceInfo describes the externally rotated resource.
type ExternalResourceInfo struct {
	Format        Format
	InstanceCount uint32
}

// Frame identifies one traversal.
type Frame struct {
	Counter       uint64
	RotatingIndex uint32
}

// PassInstance is the concrete pass object to execute for a frame.
type PassInstance struct {
	Pass        *CompiledPass
	ObjectIndex uint32
}

// LevelRecording is the unit of work handed to one recorder context.
type LevelRecording struct {
	Frame Frame
	Index int
	Level uint32
	// Every pass of the recording runs on this queue.
	Domain QueueDomain
	Passes []PassInstance
}

// Backend creates the API objects a compiled plan refers to and records
// frames. The compiler calls the extension points in this order on every
// build: CreateResources, CreatePassObjects, then AddBeforeBarrier and
// AddAfterBarrier for each pass in execution order. A rebuild replaces
// everything created by the previous one.
type Backend interface {
	QueueDomain(class PassClass) QueueDomain
	ExternalResource() ExternalResourceInfo

	CreateResources(plan *Plan) error
	CreatePassObjects(plan *Plan) error
	AddBeforeBarrier(pass *CompiledPass, barrier Barrier) error
	AddAfterBarrier(pass *CompiledPass, barrier Barrier) error

	FrameRecorder
}

// FrameRecorder records and submits one traversal. RecordLevel is called
// concurrently for distinct levels of the same frame; Submit is called once
// every level has been recorded.
type FrameRecorder interface {
	RecordLevel(ctx context.Context, rec LevelRecording) error
	Submit(ctx context.Context, frame Frame, wait Signal) (Signal, error)
}
