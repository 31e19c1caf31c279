// Command terrain renders a procedurally generated terrain with sky and grass layers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine"
	"github.com/Carmen-Shannon/oxy-terrain/engine/config"
	"github.com/Carmen-Shannon/oxy-terrain/engine/loader"
	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/profiler"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer"
	"github.com/Carmen-Shannon/oxy-terrain/engine/window"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "terrain.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, loaded, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{LogLevel: cfg.LogLevel, ServiceName: "oxy-terrain"})
	defer log.Sync()
	if !loaded {
		log.Warn("config file not found, using defaults", zap.String("path", *configPath))
	}

	if err := run(cfg, *configPath, loaded, log); err != nil {
		if errors.Is(err, renderer.ErrCapabilityUnavailable) {
			log.Warn("webgpu is not available on this system", zap.Error(err))
			return
		}
		log.Error("terrain stopped", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to the defaults when it does not exist.
func loadConfig(path string) (config.Config, bool, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}
	if err != nil {
		return config.Config{}, false, err
	}
	return cfg, true, nil
}

// rendererOptions maps the config onto orchestrator options.
func rendererOptions(cfg config.Config, l loader.Loader, log *zap.Logger) []renderer.RendererBuilderOption {
	msaa := renderer.MSAA4x
	if cfg.Renderer.MSAA == 1 {
		msaa = renderer.MSAAOff
	}
	present := renderer.PresentModeUncapped
	if cfg.Renderer.PresentMode == "vsync" {
		present = renderer.PresentModeVSync
	}
	return []renderer.RendererBuilderOption{
		renderer.WithMSAA(msaa),
		renderer.WithPresentMode(present),
		renderer.WithBatchCapacity(cfg.Renderer.BatchCapacity),
		renderer.WithReadbackCapacity(cfg.Renderer.ReadbackCapacity),
		renderer.WithShaderValidation(cfg.Renderer.ValidateShaders),
		renderer.WithForceSoftwareRenderer(cfg.Renderer.SoftwareAdapter),
		renderer.WithLoader(l),
		renderer.WithLogger(log),
	}
}

// shaderLoader reads shaders from the configured directory, or from the embedded set.
func shaderLoader(cfg config.Config, log *zap.Logger) (loader.Loader, error) {
	if cfg.Renderer.ShaderDir != "" {
		return loader.NewLoader(loader.WithRoot(cfg.Renderer.ShaderDir), loader.WithLogger(log)), nil
	}
	embedded, err := fs.Sub(shaderFiles, "shaders")
	if err != nil {
		return nil, err
	}
	return loader.NewLoader(loader.WithFS(embedded), loader.WithLogger(log)), nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func run(cfg config.Config, configPath string, watch bool, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	win := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
		window.WithLogger(log),
	)

	shaders, err := shaderLoader(cfg, log)
	if err != nil {
		win.Close()
		return err
	}
	orch, err := renderer.New(win, rendererOptions(cfg, shaders, log)...)
	if err != nil {
		win.Close()
		return err
	}
	defer orch.Release()

	scene, err := newTerrainScene(ctx, orch, cfg, func() (int, int) { return win.Width(), win.Height() }, log)
	if err != nil {
		win.Close()
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
	}
	prof, err := profiler.NewProfiler(profiler.WithLogger(log), profiler.WithInterval(5*time.Second))
	if err != nil {
		win.Close()
		return err
	}

	// reloads arrive on the watcher goroutine and are applied on the frame thread
	var pending atomic.Pointer[config.Config]
	if watch {
		if _, err := config.Watch(ctx, configPath, func(c config.Config) { pending.Store(&c) }, config.WithLogger(log)); err != nil {
			log.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	e := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithRenderer(orch),
		engine.WithProfiler(prof),
		engine.WithLogger(log),
	)
	e.SetFrameCallback(func(dt float32) error {
		if c := pending.Swap(nil); c != nil {
			if err := scene.applyConfig(*c); err != nil {
				return err
			}
		}
		return scene.update(dt)
	})
	return e.Run()
}
