package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Stats are logged and published as prometheus gauges at a configurable interval.
type Profiler struct {
	logger         *zap.Logger
	registerer     prometheus.Registerer
	now            func() time.Time
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	fps         prometheus.Gauge
	heapBytes   prometheus.Gauge
	sysBytes    prometheus.Gauge
	allocRate   prometheus.Gauge
	gcPause     prometheus.Gauge
	frames      prometheus.Gauge
	submissions prometheus.Gauge
	passes      prometheus.Gauge
}

// ProfilerOption is a functional option applied to a Profiler in NewProfiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often stats are logged and published.
//
// Parameters:
//   - interval: the update interval, defaults to 1 second
//
// Returns:
//   - ProfilerOption: a function that applies the interval to a profiler
func WithInterval(interval time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if interval > 0 {
			p.updateInterval = interval
		}
	}
}

// WithRegisterer sets the prometheus registerer the gauges are registered with.
// When not specified, prometheus.DefaultRegisterer is used.
//
// Parameters:
//   - r: the registerer
//
// Returns:
//   - ProfilerOption: a function that applies the registerer to a profiler
func WithRegisterer(r prometheus.Registerer) ProfilerOption {
	return func(p *Profiler) {
		p.registerer = r
	}
}

// WithLogger sets the logger stats are written to.
//
// Parameters:
//   - l: the zap logger
//
// Returns:
//   - ProfilerOption: a function that applies the logger to a profiler
func WithLogger(l *zap.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = l
	}
}

func withClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		p.now = now
	}
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxy",
		Subsystem: "renderer",
		Name:      name,
		Help:      help,
	})
}

// NewProfiler creates a new Profiler and registers its gauges.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
//   - error: error if a gauge is already registered with the registerer
func NewProfiler(options ...ProfilerOption) (*Profiler, error) {
	p := &Profiler{
		registerer:     prometheus.DefaultRegisterer,
		now:            time.Now,
		updateInterval: time.Second,

		fps:         gauge("fps", "Frames per second over the last interval."),
		heapBytes:   gauge("heap_bytes", "Bytes of allocated heap objects."),
		sysBytes:    gauge("sys_bytes", "Bytes of memory obtained from the OS."),
		allocRate:   gauge("alloc_rate_bytes_per_second", "Heap allocation rate over the last interval."),
		gcPause:     gauge("gc_pause_max_seconds", "Longest GC pause over the last interval."),
		frames:      gauge("frames", "Frames presented since startup."),
		submissions: gauge("submissions", "Queue submissions since startup."),
		passes:      gauge("passes", "Registered passes."),
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = logger.OrNop(p.logger)
	p.lastTime = p.now()

	for _, c := range []prometheus.Collector{p.fps, p.heapBytes, p.sysBytes, p.allocRate, p.gcPause, p.frames, p.submissions, p.passes} {
		if err := p.registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveFrames publishes the renderer's frame counters.
//
// Parameters:
//   - frames: frames presented so far
//   - submissions: queue submissions so far
//   - passes: registered pass count
func (p *Profiler) ObserveFrames(frames uint64, submissions, passes int) {
	p.frames.Set(float64(frames))
	p.submissions.Set(float64(submissions))
	p.passes.Set(float64(passes))
}

// Tick should be called once per frame to track frame timing.
// Publishes performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were published this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRate := float64(allocDelta) / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	gcCount := p.memStats.NumGC
	var lastPause, maxPause uint64
	if gcCount > 0 {
		lastPause = p.memStats.PauseNs[(gcCount-1)%256]
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPause = max(maxPause, p.memStats.PauseNs[i%256])
		}
	}

	p.fps.Set(fps)
	p.heapBytes.Set(float64(p.memStats.Alloc))
	p.sysBytes.Set(float64(p.memStats.Sys))
	p.allocRate.Set(allocRate)
	p.gcPause.Set(time.Duration(maxPause).Seconds())

	p.logger.Info("profiler",
		zap.Float64("fps", fps),
		zap.Float64("heapMB", float64(p.memStats.Alloc)/1024/1024),
		zap.Float64("allocRateMBps", allocRate/1024/1024),
		zap.Uint32("gc", gcCount),
		zap.Duration("gcLastPause", time.Duration(lastPause)),
		zap.Duration("gcMaxPause", time.Duration(maxPause)),
		zap.Float64("sysMB", float64(p.memStats.Sys)/1024/1024),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
