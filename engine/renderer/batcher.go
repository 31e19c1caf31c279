package renderer

import "github.com/cogentcore/webgpu/wgpu"

// DefaultBatchCapacity is the number of command buffers collected before a submission.
const DefaultBatchCapacity = 20

// Batcher collects command buffers and submits them in bounded batches.
// B pushed buffers with capacity C produce ceil(B/C) submissions, each holding at most C buffers.
// A Batcher is used from the frame thread only.
type Batcher struct {
	capacity int
	submit   func(commands ...*wgpu.CommandBuffer)
	pending  []*wgpu.CommandBuffer

	submissions int
}

// NewBatcher creates a Batcher that hands each full batch to submit.
//
// Parameters:
//   - capacity: the batch size, at least 1
//   - submit: receives each batch; it owns the command buffers from then on
//
// Returns:
//   - *Batcher: the batcher
func NewBatcher(capacity int, submit func(commands ...*wgpu.CommandBuffer)) *Batcher {
	capacity = max(capacity, 1)
	return &Batcher{
		capacity: capacity,
		submit:   submit,
		pending:  make([]*wgpu.CommandBuffer, 0, capacity),
	}
}

// Push adds a command buffer and submits the batch once it is full.
func (b *Batcher) Push(commands *wgpu.CommandBuffer) {
	b.pending = append(b.pending, commands)
	if len(b.pending) >= b.capacity {
		b.Flush()
	}
}

// Flush submits the pending command buffers. An empty batch is never submitted.
func (b *Batcher) Flush() {
	if len(b.pending) == 0 {
		return
	}
	batch := make([]*wgpu.CommandBuffer, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]
	b.submissions++
	b.submit(batch...)
}

// Len returns the number of pending command buffers.
func (b *Batcher) Len() int {
	return len(b.pending)
}

// Submissions returns the number of batches submitted so far.
func (b *Batcher) Submissions() int {
	return b.submissions
}
