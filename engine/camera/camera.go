package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/chewxy/math32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up [3]float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	// position is derived from target and the spherical coordinates around it
	position  [3]float32
	target    [3]float32
	radius    float32
	azimuth   float32
	elevation float32

	minRadius, maxRadius       float32
	minElevation, maxElevation float32

	// orbitSpeed is in radians per second
	orbitSpeed float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32
}

// Camera is a perspective camera orbiting a target point.
// Every setter recomputes the view and projection matrices, so the getters are always current.
type Camera interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - [3]float32: the eye position
	Position() [3]float32

	// Target returns the point the camera looks at and orbits around.
	//
	// Returns:
	//   - [3]float32: the target position
	Target() [3]float32

	// SetTarget moves the orbit pivot, keeping radius, azimuth and elevation.
	//
	// Parameters:
	//   - target: world-space pivot
	SetTarget(target [3]float32)

	// Radius returns the distance between the camera and its target.
	Radius() float32

	// SetRadius sets the orbit radius, clamped to the configured bounds.
	//
	// Parameters:
	//   - radius: new distance from the target
	SetRadius(radius float32)

	// Azimuth returns the horizontal angle around the Y axis in radians.
	Azimuth() float32

	// SetAzimuth sets the horizontal orbit angle.
	//
	// Parameters:
	//   - azimuth: angle in radians
	SetAzimuth(azimuth float32)

	// Elevation returns the vertical angle above the horizontal plane in radians.
	Elevation() float32

	// SetElevation sets the vertical orbit angle, clamped to the configured bounds.
	//
	// Parameters:
	//   - elevation: angle in radians
	SetElevation(elevation float32)

	// Orbit advances the azimuth by the orbit speed scaled by dt.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Orbit(dt float32)

	// SetAspect sets the aspect ratio (width / height). Non-positive values are ignored.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// ViewMatrix returns the current view matrix (column-major).
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the current projection matrix (column-major).
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection * view (column-major).
	//
	// Returns:
	//   - [16]float32: the combined matrix written to scene uniforms
	ViewProjectionMatrix() [16]float32
}

var _ Camera = &cameraImpl{}

// NewCamera creates an orbit camera. Defaults: 45 degree field of view, planes at 0.1 and 1000,
// radius 250 and an elevation of 30 degrees around the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:           &sync.Mutex{},
		up:           [3]float32{0, 1, 0},
		fov:          math32.Pi / 4,
		aspect:       1,
		near:         0.1,
		far:          1000,
		radius:       250,
		elevation:    math32.Pi / 6,
		minRadius:    1,
		maxRadius:    5000,
		minElevation: 0.05,
		maxElevation: math32.Pi/2 - 0.1,
		orbitSpeed:   0.05,
	}
	for _, option := range options {
		option(c)
	}
	c.radius = clamp(c.radius, c.minRadius, c.maxRadius)
	c.elevation = clamp(c.elevation, c.minElevation, c.maxElevation)
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) SetTarget(target [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) Radius() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radius
}

func (c *cameraImpl) SetRadius(radius float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = clamp(radius, c.minRadius, c.maxRadius)
	c.updateMatrices()
}

func (c *cameraImpl) Azimuth() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.azimuth
}

func (c *cameraImpl) SetAzimuth(azimuth float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth = azimuth
	c.updateMatrices()
}

func (c *cameraImpl) Elevation() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elevation
}

func (c *cameraImpl) SetElevation(elevation float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elevation = clamp(elevation, c.minElevation, c.maxElevation)
	c.updateMatrices()
}

func (c *cameraImpl) Orbit(dt float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// keep the angle small so precision holds over long sessions
	c.azimuth = math32.Mod(c.azimuth+c.orbitSpeed*dt, 2*math32.Pi)
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

// updateMatrices recomputes the position from the spherical coordinates, then every matrix.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	cosElev, sinElev := math32.Cos(c.elevation), math32.Sin(c.elevation)
	cosAzim, sinAzim := math32.Cos(c.azimuth), math32.Sin(c.azimuth)
	c.position = [3]float32{
		c.target[0] + c.radius*cosElev*sinAzim,
		c.target[1] + c.radius*sinElev,
		c.target[2] + c.radius*cosElev*cosAzim,
	}

	common.LookAt(c.viewMatrix[:], c.position, c.target, c.up)
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
