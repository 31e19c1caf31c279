package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/profiler"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer"
	"github.com/Carmen-Shannon/oxy-terrain/engine/window"
	"go.uber.org/zap"
)

// FrameRenderer is the part of renderer.Orchestrator the engine drives each frame.
type FrameRenderer interface {
	RenderFrame() error
	Resize(width, height int) error
	Stats() renderer.FrameStats
}

var _ FrameRenderer = renderer.Orchestrator(nil)

// engine implements the Engine interface.
// Frames run on the window thread; the logic tick runs in its own goroutine.
type engine struct {
	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once
	closeOnce   sync.Once

	window   window.Window
	renderer FrameRenderer
	logger   *zap.Logger
	profiler *profiler.Profiler

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	frameCallback    func(deltaTime float32) error
	renderFrameLimit time.Duration // 0 = uncapped

	errMu sync.Mutex
	err   error
}

// Engine drives the window loop, renders one frame per iteration and runs a fixed-rate logic tick.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// SetTickRate sets the logic tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each logic tick, off the window thread.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called on the window thread before each frame is rendered.
	// Uniform and vertex updates belong here. An error stops the engine.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetFrameCallback(callback func(deltaTime float32) error)

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run runs the window loop. It blocks until the window closes, Quit is called, or a frame fails.
	//
	// Returns:
	//   - error: the first frame error, or nil
	Run() error

	// Quit stops the engine after the current frame. Safe to call multiple times.
	Quit()
}

// NewEngine creates a new Engine with the provided options.
// Panics if no window or renderer is configured.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.window == nil || e.renderer == nil {
		panic("engine requires a window and a renderer")
	}
	e.logger = logger.OrNop(e.logger)

	e.window.SetResizeCallback(func(width, height int) {
		if err := e.renderer.Resize(width, height); err != nil {
			e.fail(fmt.Errorf("resize %dx%d: %w", width, height, err))
		}
	})
	e.window.SetUpdateCallback(e.frame)
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() error {
	e.running = true
	e.wg.Add(1)
	go e.handleTick()

	e.window.ProcessMessages()

	e.signalQuit()
	e.closeWindow()
	e.wg.Wait()

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

func (e *engine) closeWindow() {
	e.closeOnce.Do(func() {
		if err := e.window.Close(); err != nil {
			e.logger.Warn("close window", zap.Error(err))
		}
	})
}

// fail records the first fatal error and stops the engine.
func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.logger.Error("frame failed, stopping", zap.Error(err))
	e.signalQuit()
}

func (e *engine) quitting() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

// handleTick runs the fixed-rate logic tick until quit, picking up rate changes from tickRateChannel.
func (e *engine) handleTick() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// frame is the window's update callback: one rendered frame per message loop iteration.
func (e *engine) frame(dt time.Duration) {
	if e.quitting() {
		e.closeWindow()
		return
	}
	start := time.Now()

	if err := e.renderFrame(float32(dt.Seconds())); err != nil {
		e.fail(err)
		e.closeWindow()
		return
	}

	if e.profiler != nil {
		stats := e.renderer.Stats()
		e.profiler.ObserveFrames(stats.Frames, stats.Submissions, stats.Passes)
		e.profiler.Tick()
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// renderFrame runs the frame callback and renders, turning a panic into an error.
func (e *engine) renderFrame(dt float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("frame panicked: %v", r)
		}
	}()

	if e.frameCallback != nil {
		if err := e.frameCallback(dt); err != nil {
			return err
		}
	}
	return e.renderer.RenderFrame()
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// replace any pending update
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(deltaTime float32) error) {
	e.frameCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
