package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrPassNotReady is returned when a pass is encoded or run before its bind groups and draw source exist.
	ErrPassNotReady = errors.New("pass: not ready")

	// ErrPassCleared is returned by any operation on a pass after Clear.
	ErrPassCleared = errors.New("pass: cleared")

	// ErrVertexStride is returned when vertex data is not a whole number of vertices.
	ErrVertexStride = errors.New("pass: vertex data does not match stride")

	// ErrUnknownReadback is returned by Results.Get for a name the pass has no readback for,
	// or one already taken without preserve.
	ErrUnknownReadback = errors.New("pass: unknown readback")

	// ErrMapFailed is returned when mapping a readback buffer does not succeed.
	ErrMapFailed = errors.New("pass: readback mapping failed")

	// ErrMapDeviceLost is returned when mapping fails because the device was lost.
	ErrMapDeviceLost = fmt.Errorf("%w: device lost", ErrMapFailed)
)

// State is the lifecycle state of a pass.
type State int

const (
	// StateCreated is a pass whose bind groups or draw source are still missing.
	StateCreated State = iota
	// StateReady is a pass that can be encoded.
	StateReady
	// StateRendered is a pass that has been encoded at least once and can be encoded again.
	StateRendered
	// StateCleared is a pass whose resources were released. It cannot be used again.
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateRendered:
		return "rendered"
	case StateCleared:
		return "cleared"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind distinguishes render passes from compute passes.
type Kind int

const (
	KindRender Kind = iota
	KindCompute
)

// Device is the subset of *wgpu.Device passes record commands and create vertex buffers with.
type Device interface {
	CreateBuffer(descriptor *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	CreateCommandEncoder(descriptor *wgpu.CommandEncoderDescriptor) (*wgpu.CommandEncoder, error)
}

// Queue is the subset of *wgpu.Queue passes upload vertex data through.
type Queue interface {
	WriteBuffer(buffer *wgpu.Buffer, bufferOffset uint64, data []byte) error
}

// GPU bundles what a pass needs from the device. Submit and Poll are only used by compute passes
// that read results back.
type GPU struct {
	Device Device
	Queue  Queue
	// Submit submits command buffers to the queue.
	Submit func(commands ...*wgpu.CommandBuffer)
	// Poll blocks until the device has processed pending work and fired its callbacks.
	Poll func()
}

// Targets are the attachments of the current frame.
type Targets struct {
	// Color is the multisampled color view, or the surface view when MSAA is off.
	Color *wgpu.TextureView
	// Resolve is the surface view. It is set only for the last render pass of a multisampled frame.
	Resolve *wgpu.TextureView
	// Depth is the depth view. It shares Color's sample count.
	Depth *wgpu.TextureView
	// Clear, when set, makes this encode clear color and depth to it whatever the pass's own setting.
	Clear *wgpu.Color
}

// Pass is a named unit of GPU work owned by the orchestrator.
type Pass interface {
	// Name returns the unique name the pass is registered under.
	//
	// Returns:
	//   - string: the pass name
	Name() string

	// Kind reports whether this is a render or compute pass.
	//
	// Returns:
	//   - Kind: the pass kind
	Kind() Kind

	// State returns the pass's current lifecycle state.
	//
	// Returns:
	//   - State: the state
	State() State

	// Pipeline returns the pipeline the pass encodes with.
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline
	Pipeline() pipeline.Pipeline

	// Bindings returns the binding set the pass binds.
	//
	// Returns:
	//   - binding_set.BindingSet: the binding set
	Bindings() binding_set.BindingSet

	// EveryFrame reports whether the orchestrator encodes this pass during RenderFrame.
	// Render passes always do; compute passes only when built WithEveryFrame.
	//
	// Returns:
	//   - bool: true if the pass is encoded each frame
	EveryFrame() bool

	// Encode records the pass into a new command buffer. The caller submits and releases it.
	//
	// Parameters:
	//   - targets: the frame's attachments, ignored by compute passes
	//
	// Returns:
	//   - *wgpu.CommandBuffer: the finished command buffer
	//   - error: ErrPassNotReady, ErrPassCleared, or a device error
	Encode(targets Targets) (*wgpu.CommandBuffer, error)

	// Release releases every resource of the pass, its pipeline included.
	Release()
}
