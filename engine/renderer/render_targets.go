package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// RenderTargets tracks the depth and MSAA textures of the frame.
// They are recreated only when the size, sample count or color format changes.
type RenderTargets struct {
	allocate func(spec TargetSpec) (*targetSet, error)

	spec TargetSpec
	set  *targetSet
}

func newRenderTargets(allocate func(spec TargetSpec) (*targetSet, error)) *RenderTargets {
	return &RenderTargets{allocate: allocate}
}

// Ensure makes the targets match spec, releasing the previous ones when they do not.
//
// Parameters:
//   - spec: the wanted size, sample count and format
//
// Returns:
//   - bool: true if the targets were (re)created
//   - error: error if allocation fails; the tracker is then empty
func (t *RenderTargets) Ensure(spec TargetSpec) (bool, error) {
	if t.set != nil && t.spec == spec {
		return false, nil
	}
	if spec.Width == 0 || spec.Height == 0 {
		return false, fmt.Errorf("render targets: invalid size %dx%d", spec.Width, spec.Height)
	}
	t.Release()

	set, err := t.allocate(spec)
	if err != nil {
		return false, fmt.Errorf("render targets: %w", err)
	}
	t.set = set
	t.spec = spec
	return true, nil
}

// Views returns the MSAA color view, nil without multisampling, and the depth view.
func (t *RenderTargets) Views() (*wgpu.TextureView, *wgpu.TextureView) {
	if t.set == nil {
		return nil, nil
	}
	return t.set.msaa, t.set.depth
}

// Spec returns the spec of the current targets.
func (t *RenderTargets) Spec() TargetSpec {
	return t.spec
}

// Release releases the current targets, if any.
func (t *RenderTargets) Release() {
	if t.set == nil {
		return
	}
	if t.set.release != nil {
		t.set.release()
	}
	t.set = nil
	t.spec = TargetSpec{}
}
