package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func distance(a, b [3]float32) float32 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math32.Sqrt(dx*dx + dy*dy + dz*dz)
}

func TestPositionFollowsSphericalCoordinates(t *testing.T) {
	c := NewCamera(WithTarget(10, 0, -5), WithRadius(100), WithElevation(0.5), WithAzimuth(1))

	pos := c.Position()
	assert.InDelta(t, 100, distance(pos, c.Target()), 1e-3)
	assert.InDelta(t, 100*math32.Sin(0.5), pos[1], 1e-3)

	c.SetTarget([3]float32{0, 20, 0})
	assert.InDelta(t, 100, distance(c.Position(), c.Target()), 1e-3)
}

func TestViewMatrixPutsTargetAhead(t *testing.T) {
	c := NewCamera(WithRadius(50))
	view := c.ViewMatrix()
	target := c.Target()

	z := view[2]*target[0] + view[6]*target[1] + view[10]*target[2] + view[14]
	assert.InDelta(t, -50, z, 1e-3)
}

func TestClampsRadiusAndElevation(t *testing.T) {
	c := NewCamera(WithRadiusBounds(10, 20), WithRadius(100))
	assert.Equal(t, float32(20), c.Radius())

	c.SetRadius(1)
	assert.Equal(t, float32(10), c.Radius())

	c.SetElevation(math32.Pi)
	assert.Less(t, c.Elevation(), math32.Pi/2)
	c.SetElevation(-1)
	assert.Greater(t, c.Elevation(), float32(0))
}

func TestOrbitAdvancesAzimuth(t *testing.T) {
	c := NewCamera(WithOrbitSpeed(0.5))
	before := c.Position()
	c.Orbit(2)
	assert.InDelta(t, 1, c.Azimuth(), 1e-6)
	assert.NotEqual(t, before, c.Position())
	assert.InDelta(t, c.Radius(), distance(c.Position(), c.Target()), 1e-3)
}

func TestSetAspectUpdatesProjection(t *testing.T) {
	c := NewCamera()
	square := c.ProjectionMatrix()

	c.SetAspect(2)
	wide := c.ProjectionMatrix()
	assert.InDelta(t, square[0]/2, wide[0], 1e-6)
	assert.Equal(t, square[5], wide[5])

	c.SetAspect(0)
	assert.Equal(t, wide, c.ProjectionMatrix())
}

func TestViewProjectionIsProduct(t *testing.T) {
	c := NewCamera(WithFov(math32.Pi/3), WithPlanes(0.5, 2000))
	proj, view, vp := c.ProjectionMatrix(), c.ViewMatrix(), c.ViewProjectionMatrix()
	for col := range 4 {
		for row := range 4 {
			var sum float32
			for k := range 4 {
				sum += proj[k*4+row] * view[col*4+k]
			}
			assert.InDelta(t, sum, vp[col*4+row], 1e-4)
		}
	}
}
