package engine

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine/profiler"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow runs the update callback until closed or maxIterations is reached.
type fakeWindow struct {
	maxIterations int
	iterations    int
	closed        int
	onUpdate      func(time.Duration)
	onResize      func(int, int)
}

func (w *fakeWindow) SetUpdateCallback(cb func(time.Duration)) { w.onUpdate = cb }
func (w *fakeWindow) SetResizeCallback(cb func(int, int)) { w.onResize = cb }
func (w *fakeWindow) SetTitle(string) {}
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }
func (w *fakeWindow) IsRunning() bool { return w.closed == 0 }
func (w *fakeWindow) Width() int { return 800 }
func (w *fakeWindow) Height() int { return 600 }

func (w *fakeWindow) Close() error {
	w.closed++
	return nil
}

func (w *fakeWindow) ProcessMessages() {
	for w.IsRunning() && w.iterations < w.maxIterations {
		w.iterations++
		w.onUpdate(time.Millisecond)
	}
}

type fakeRenderer struct {
	frames  uint64
	failAt  uint64
	resized [][2]int
}

func (r *fakeRenderer) RenderFrame() error {
	r.frames++
	if r.failAt != 0 && r.frames == r.failAt {
		return errors.New("surface lost")
	}
	return nil
}

func (r *fakeRenderer) Resize(width, height int) error {
	r.resized = append(r.resized, [2]int{width, height})
	if width < 0 {
		return renderer.ErrDeviceLost
	}
	return nil
}

func (r *fakeRenderer) Stats() renderer.FrameStats {
	return renderer.FrameStats{Frames: r.frames, Passes: 2}
}

func TestRunRendersUntilWindowStops(t *testing.T) {
	w := &fakeWindow{maxIterations: 5}
	r := &fakeRenderer{}
	var callbacks int
	e := NewEngine(WithWindow(w), WithRenderer(r))
	e.SetFrameCallback(func(dt float32) error {
		callbacks++
		assert.InDelta(t, 0.001, dt, 1e-6)
		return nil
	})

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), r.frames)
	assert.Equal(t, 5, callbacks)
	assert.Equal(t, 1, w.closed)
}

func TestRunStopsOnRenderError(t *testing.T) {
	w := &fakeWindow{maxIterations: 10}
	r := &fakeRenderer{failAt: 3}
	e := NewEngine(WithWindow(w), WithRenderer(r))

	err := e.Run()
	assert.EqualError(t, err, "surface lost")
	assert.Equal(t, uint64(3), r.frames)
	assert.Equal(t, 1, w.closed)
}

func TestFrameCallbackErrorSkipsRender(t *testing.T) {
	w := &fakeWindow{maxIterations: 10}
	r := &fakeRenderer{}
	e := NewEngine(WithWindow(w), WithRenderer(r))
	e.SetFrameCallback(func(float32) error { return errors.New("uniform missing") })

	assert.EqualError(t, e.Run(), "uniform missing")
	assert.Zero(t, r.frames)
}

func TestFramePanicIsRecovered(t *testing.T) {
	w := &fakeWindow{maxIterations: 10}
	r := &fakeRenderer{}
	e := NewEngine(WithWindow(w), WithRenderer(r))
	e.SetFrameCallback(func(float32) error { panic("bad vertex data") })

	err := e.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad vertex data")
	assert.Equal(t, 1, w.iterations)
}

func TestQuitStopsAfterCurrentFrame(t *testing.T) {
	w := &fakeWindow{maxIterations: 10}
	r := &fakeRenderer{}
	e := NewEngine(WithWindow(w), WithRenderer(r))
	e.SetFrameCallback(func(float32) error {
		if r.frames == 1 {
			e.Quit()
		}
		return nil
	})

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), r.frames)
	assert.Equal(t, 3, w.iterations)
}

func TestResizeForwardsToRenderer(t *testing.T) {
	w := &fakeWindow{}
	r := &fakeRenderer{}
	e := NewEngine(WithWindow(w), WithRenderer(r))

	w.onResize(1024, 768)
	w.onResize(0, 0)
	assert.Equal(t, [][2]int{{1024, 768}, {0, 0}}, r.resized)

	w.onResize(-1, -1)
	assert.ErrorIs(t, e.Run(), renderer.ErrDeviceLost)
}

func TestTickCallbackRuns(t *testing.T) {
	w := &fakeWindow{maxIterations: 1 << 30}
	r := &fakeRenderer{}
	e := NewEngine(WithWindow(w), WithRenderer(r), WithTickRate(1000))

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) {
		if ticks.Add(1) == 3 {
			e.Quit()
		}
	})
	require.NoError(t, e.Run())
	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}

func TestProfilerObservesFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := profiler.NewProfiler(profiler.WithRegisterer(reg))
	require.NoError(t, err)

	w := &fakeWindow{maxIterations: 4}
	e := NewEngine(WithWindow(w), WithRenderer(&fakeRenderer{}), WithProfiler(p))
	require.NoError(t, e.Run())

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, 4.0, values["oxy_renderer_frames"])
	assert.Equal(t, 2.0, values["oxy_renderer_passes"])
}

func TestNewEngineRequiresWindowAndRenderer(t *testing.T) {
	assert.Panics(t, func() { NewEngine(WithRenderer(&fakeRenderer{})) })
	assert.Panics(t, func() { NewEngine(WithWindow(&fakeWindow{})) })
}
