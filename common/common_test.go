package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 5))
	assert.Equal(t, "", Coalesce("", ""))
	assert.Equal(t, float32(1.5), Coalesce(float32(0), float32(1.5)))
}

func TestMul4Identity(t *testing.T) {
	a := make([]float32, 16)
	for i := range a {
		a[i] = float32(i + 1)
	}
	id := make([]float32, 16)
	Identity(id)

	out := make([]float32, 16)
	Mul4(out, a, id)
	assert.Equal(t, a, out)

	Mul4(out, id, a)
	assert.Equal(t, a, out)
}

func TestTranslationComposes(t *testing.T) {
	a := make([]float32, 16)
	b := make([]float32, 16)
	out := make([]float32, 16)
	Translation(a, 1, 2, 3)
	Translation(b, 4, 5, 6)
	Mul4(out, a, b)
	assert.Equal(t, []float32{5, 7, 9}, out[12:15])
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	view := make([]float32, 16)
	eye := [3]float32{0, 0, 5}
	LookAt(view, eye, [3]float32{}, [3]float32{0, 1, 0})

	// view * eye must land on the origin
	x := view[0]*eye[0] + view[4]*eye[1] + view[8]*eye[2] + view[12]
	y := view[1]*eye[0] + view[5]*eye[1] + view[9]*eye[2] + view[13]
	z := view[2]*eye[0] + view[6]*eye[1] + view[10]*eye[2] + view[14]
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestBytesToFloat32sRoundTrip(t *testing.T) {
	in := []float32{1, -2.5, 3.25}
	out := BytesToFloat32s(SliceToBytes(in))
	assert.Equal(t, in, out)

	assert.Nil(t, BytesToFloat32s([]byte{1, 2, 3}))
	assert.Len(t, BytesToFloat32s(append(SliceToBytes(in), 0xff)), 3)
}

func TestDecodeImageBytes(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{B: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	data, err := DecodeImageBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	require.Len(t, data.Pixels, 3*2*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, data.Pixels[0:4])
	last := (1*3 + 2) * 4
	assert.Equal(t, []byte{0, 0, 255, 255}, data.Pixels[last:last+4])
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImageBytes([]byte("not an image"))
	assert.Error(t, err)

	_, err = DecodeImageFile("does-not-exist.png")
	assert.Error(t, err)
}

func TestTextureStagingDataValidate(t *testing.T) {
	assert.NoError(t, TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}.Validate())
	assert.Error(t, TextureStagingData{Pixels: make([]byte, 15), Width: 2, Height: 2}.Validate())
	assert.Error(t, TextureStagingData{Width: 0, Height: 2}.Validate())
}
