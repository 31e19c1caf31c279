package main

import (
	"context"
	"embed"
	"fmt"
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/Carmen-Shannon/oxy-terrain/engine/camera"
	"github.com/Carmen-Shannon/oxy-terrain/engine/config"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

//go:embed shaders/*.wgsl
var shaderFiles embed.FS

const (
	terrainGrid     = 128
	terrainCellSize = 2.0
	grassPerSide    = 96
	grassSegments   = 6
)

var (
	terrainColor   = []float32{0.36, 0.52, 0.24, 1}
	lightDirection = []float32{-0.4, -1, -0.3, 0}
	grassSize      = []float32{0.35, 2.4}
)

// sceneConstants are prepended to every shader of the scene.
func sceneConstants() map[string]any {
	return map[string]any{
		"OCTAVES":      5,
		"FREQUENCY":    0.012,
		"AMPLITUDE":    28.0,
		"LACUNARITY":   2.0,
		"PERSISTENCE":  0.5,
		"SEED":         17.0,
		"FOG_DISTANCE": float64(terrainGrid) * terrainCellSize,
		"FOG_COLOR":    "vec3f(0.78, 0.87, 0.95)",
		"GRASS_ROOT":   "vec3f(0.16, 0.32, 0.08)",
		"GRASS_TIP":    "vec3f(0.55, 0.74, 0.27)",
	}
}

// terrainScene owns the passes of the demo and updates their uniforms each frame.
type terrainScene struct {
	orch   renderer.Orchestrator
	logger *zap.Logger
	size   func() (int, int)

	camera  camera.Camera
	elapsed float32
	world   [16]float32
}

func newTerrainScene(ctx context.Context, orch renderer.Orchestrator, cfg config.Config, size func() (int, int), log *zap.Logger) (*terrainScene, error) {
	s := &terrainScene{orch: orch, logger: log, size: size, camera: newOrbitCamera()}
	common.Identity(s.world[:])

	if err := orch.AddConstants(sceneConstants()); err != nil {
		return nil, err
	}
	if err := orch.AddLibrary(ctx, "noise.wgsl"); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"sky", s.createSky},
		{"terrain", s.createTerrain},
		{"grass", s.createGrass},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("create %s: %w", step.name, err)
		}
		log.Info("scene layer ready", zap.String("layer", step.name))
	}
	if err := s.applyConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *terrainScene) createSky(ctx context.Context) error {
	_, err := s.orch.CreateRenderPass(ctx, renderer.PassSettings{
		Name:       "sky",
		ShaderPath: "sky.wgsl",
		Pipeline: []pipeline.PipelineBuilderOption{
			pipeline.WithTopology(wgpu.PrimitiveTopologyTriangleStrip),
			pipeline.WithDepthCompare(wgpu.CompareFunctionLessEqual),
			pipeline.WithoutVertexBuffers(),
		},
	})
	if err != nil {
		return err
	}
	vertices := uint32(4)
	return s.orch.SetDrawCounts("sky", &vertices, nil)
}

// createTerrain generates the mesh on the GPU, reads it back, and feeds it to the terrain render pass.
func (s *terrainScene) createTerrain(ctx context.Context) error {
	groups := uint32((terrainGrid + 7) / 8)
	_, err := s.orch.CreateComputePass(ctx, renderer.PassSettings{
		Name:       "terrain-gen",
		ShaderPath: "terrain_gen.wgsl",
	}, pass.WithDispatch(groups, groups, 1))
	if err != nil {
		return err
	}
	half := float32(terrainGrid) * terrainCellSize / 2
	if err := s.orch.SetUniform("terrain-gen", "GenInfo", "origin", []float32{-half, -half}); err != nil {
		return err
	}
	if err := s.orch.SetUniform("terrain-gen", "GenInfo", "cellSize", []float32{terrainCellSize}); err != nil {
		return err
	}
	if err := s.orch.SetUniform("terrain-gen", "GenInfo", "grid", []float32{terrainGrid}); err != nil {
		return err
	}

	results, err := s.orch.RunCompute(ctx, "terrain-gen")
	if err != nil {
		return err
	}
	vertices, err := results.Get("vertices", false)
	if err != nil {
		return err
	}
	if err := s.orch.ClearPass("terrain-gen"); err != nil {
		return err
	}
	s.logger.Debug("terrain generated", zap.Int("floats", len(vertices)))

	layout, err := pipeline.NewVertexLayout(wgpu.VertexStepModeVertex, 0, "vec3f", "vec3f")
	if err != nil {
		return err
	}
	_, err = s.orch.CreateRenderPass(ctx, renderer.PassSettings{
		Name:       "terrain",
		ShaderPath: "terrain.wgsl",
		Pipeline:   []pipeline.PipelineBuilderOption{pipeline.WithVertexLayouts(layout)},
	})
	if err != nil {
		return err
	}
	if err := s.orch.SetVertexBuffer("terrain", common.SliceToBytes(vertices)); err != nil {
		return err
	}
	if err := s.orch.AutoVertexCount("terrain"); err != nil {
		return err
	}
	if err := s.orch.SetUniform("terrain", "TerrainInfo", "color", terrainColor); err != nil {
		return err
	}
	return s.orch.SetUniform("terrain", "TerrainInfo", "lightDirection", lightDirection)
}

// grassOffsets scatters one blade per tile of a side x side grid centered on the origin.
func grassOffsets(side int, extent float32, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	tile := extent / float32(side)
	offsets := make([]float32, 0, side*side*2)
	for x := range side {
		for z := range side {
			jx := (rng.Float32() - 0.5) * tile
			jz := (rng.Float32() - 0.5) * tile
			offsets = append(offsets,
				(float32(x)+0.5)*tile-extent/2+jx,
				(float32(z)+0.5)*tile-extent/2+jz,
			)
		}
	}
	return offsets
}

func (s *terrainScene) createGrass(ctx context.Context) error {
	layout, err := pipeline.NewVertexLayout(wgpu.VertexStepModeInstance, 0, "vec2f")
	if err != nil {
		return err
	}
	_, err = s.orch.CreateRenderPass(ctx, renderer.PassSettings{
		Name:       "grass",
		ShaderPath: "grass.wgsl",
		Pipeline:   []pipeline.PipelineBuilderOption{pipeline.WithVertexLayouts(layout)},
	})
	if err != nil {
		return err
	}

	offsets := grassOffsets(grassPerSide, float32(terrainGrid)*terrainCellSize/4, 7)
	if err := s.orch.SetVertexBuffer("grass", common.SliceToBytes(offsets)); err != nil {
		return err
	}
	vertices, instances := uint32(grassSegments*6), uint32(len(offsets)/2)
	if err := s.orch.SetDrawCounts("grass", &vertices, &instances); err != nil {
		return err
	}
	if err := s.orch.SetUniform("grass", "GrassInfo", "size", grassSize); err != nil {
		return err
	}
	return s.orch.SetUniform("grass", "GrassInfo", "segments", []float32{grassSegments})
}

// applyConfig pushes the live-reloadable settings.
func (s *terrainScene) applyConfig(cfg config.Config) error {
	c := cfg.Renderer.ClearColor
	s.orch.SetClearColor(wgpu.Color{R: c[0], G: c[1], B: c[2], A: c[3]})
	if err := s.orch.SetUniform("sky", "SkyInfo", "colorOne", cfg.Sky.ColorOne[:]); err != nil {
		return err
	}
	return s.orch.SetUniform("sky", "SkyInfo", "colorTwo", cfg.Sky.ColorTwo[:])
}

// newOrbitCamera circles the terrain center from above the noise peaks.
func newOrbitCamera() camera.Camera {
	const distance, height = 110, 55
	return camera.NewCamera(
		camera.WithFov(math32.Pi/3),
		camera.WithPlanes(0.5, 2000),
		camera.WithRadius(math32.Hypot(distance, height)),
		camera.WithElevation(math32.Atan2(height, distance)),
		camera.WithOrbitSpeed(0.05),
	)
}

// update is the frame callback: it moves the camera and writes the shared scene uniforms.
func (s *terrainScene) update(dt float32) error {
	s.elapsed += dt

	width, height := s.size()
	if width <= 0 || height <= 0 {
		return nil
	}
	s.camera.Orbit(dt)
	s.camera.SetAspect(float32(width) / float32(height))
	viewProj, eye := s.camera.ViewProjectionMatrix(), s.camera.Position()

	if err := s.orch.SetGlobalUniform("SceneInfo", "perspective", viewProj[:]); err != nil {
		return err
	}
	if err := s.orch.SetGlobalUniform("SceneInfo", "cameraPosition", []float32{eye[0], eye[1], eye[2], 1}); err != nil {
		return err
	}
	if err := s.orch.SetGlobalUniform("SceneInfo", "world", s.world[:]); err != nil {
		return err
	}
	return s.orch.SetUniform("grass", "GrassInfo", "time", []float32{s.elapsed})
}
