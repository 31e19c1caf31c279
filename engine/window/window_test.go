package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestResizedUpdatesSizeAndNotifies(t *testing.T) {
	w := &engineWindow{width: 1280, height: 720, logger: zap.NewNop()}

	var got [][2]int
	w.SetResizeCallback(func(width, height int) { got = append(got, [2]int{width, height}) })
	w.resized(1920, 1080)
	w.resized(0, 0)

	assert.Equal(t, [][2]int{{1920, 1080}, {0, 0}}, got)
	assert.Equal(t, 0, w.Width())
	assert.Equal(t, 0, w.Height())
}

func TestResizedWithoutCallback(t *testing.T) {
	w := &engineWindow{logger: zap.NewNop()}
	w.resized(640, 480)
	assert.Equal(t, 640, w.Width())
	assert.Equal(t, 480, w.Height())
}

func TestBuilderOptions(t *testing.T) {
	w := &engineWindow{}
	for _, opt := range []WindowBuilderOption{
		WithTitle("terrain"),
		WithSize(800, 600),
		WithMinSize(100, 50),
		WithMaxSize(1000, 900),
	} {
		opt(w)
	}
	assert.Equal(t, "terrain", w.title)
	assert.Equal(t, [2]int{800, 600}, [2]int{w.width, w.height})
	assert.Equal(t, [2]int{100, 50}, [2]int{w.minWidth, w.minHeight})
	assert.Equal(t, [2]int{1000, 900}, [2]int{w.maxWidth, w.maxHeight})
}
