package profiler

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestTickPublishesAtInterval(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p, err := NewProfiler(WithRegisterer(reg), WithInterval(time.Second), withClock(clock.now))
	require.NoError(t, err)

	for range 59 {
		clock.t = clock.t.Add(10 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock.t = time.Unix(1002, 0)
	assert.True(t, p.Tick())
	assert.InDelta(t, 30.0, gaugeValue(t, reg, "oxy_renderer_fps"), 1e-9)
	assert.Greater(t, gaugeValue(t, reg, "oxy_renderer_heap_bytes"), 0.0)

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, p.Tick(), "counters reset after publishing")
}

func TestObserveFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProfiler(WithRegisterer(reg))
	require.NoError(t, err)

	p.ObserveFrames(120, 7, 3)
	assert.Equal(t, 120.0, gaugeValue(t, reg, "oxy_renderer_frames"))
	assert.Equal(t, 7.0, gaugeValue(t, reg, "oxy_renderer_submissions"))
	assert.Equal(t, 3.0, gaugeValue(t, reg, "oxy_renderer_passes"))
}

func TestNewProfilerDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewProfiler(WithRegisterer(reg))
	require.NoError(t, err)
	_, err = NewProfiler(WithRegisterer(reg))
	assert.Error(t, err)
}
