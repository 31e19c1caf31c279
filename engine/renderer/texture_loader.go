package renderer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-terrain/common"
	"go.uber.org/zap"
)

// TextureSource is an image to bind to a pass's texture slot. Exactly one of Image, Path or Data
// is used, in that order of preference.
type TextureSource struct {
	// Image is already decoded pixel data.
	Image *common.TextureStagingData
	// Path is an image file decoded on the worker pool.
	Path string
	// Data is an encoded image decoded on the worker pool.
	Data []byte
	// Sampler overrides the default clamp-to-edge, nearest sampler.
	Sampler *common.SamplerStagingData
}

func (s TextureSource) decode() (common.TextureStagingData, error) {
	var (
		img common.TextureStagingData
		err error
	)
	switch {
	case s.Image != nil:
		img = *s.Image
	case s.Path != "":
		img, err = common.DecodeImageFile(s.Path)
	case len(s.Data) > 0:
		img, err = common.DecodeImageBytes(s.Data)
	default:
		return img, errors.New("texture source is empty")
	}
	if err != nil {
		return img, err
	}
	return img, img.Validate()
}

// TextureRequest tracks one asynchronous texture replacement. It completes once the texture has
// been uploaded and the pass's bind groups rebuilt at the start of a frame, or once it failed.
type TextureRequest struct {
	pass string
	done chan struct{}
	once sync.Once
	err  error
}

func newTextureRequest(passName string) *TextureRequest {
	return &TextureRequest{pass: passName, done: make(chan struct{})}
}

// failedTextureRequest returns a request that is already complete with err.
func failedTextureRequest(passName string, err error) *TextureRequest {
	r := newTextureRequest(passName)
	r.complete(err)
	return r
}

func (r *TextureRequest) complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Pass returns the name of the pass the texture is for.
func (r *TextureRequest) Pass() string {
	return r.pass
}

// Done is closed when the request completes.
func (r *TextureRequest) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx is done.
//
// Parameters:
//   - ctx: bounds the wait
//
// Returns:
//   - error: the decode or upload error, or the context's error
func (r *TextureRequest) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodedTexture is a decoded image waiting for the next frame to upload it.
type decodedTexture struct {
	request *TextureRequest
	image   common.TextureStagingData
	sampler *common.SamplerStagingData
}

// textureLoader decodes images on a worker pool and queues them for the frame thread.
type textureLoader struct {
	mu     sync.Mutex
	pool   worker.DynamicWorkerPool
	logger *zap.Logger

	nextID int
	ready  []decodedTexture
	closed bool
}

func newTextureLoader(workers int, logger *zap.Logger) *textureLoader {
	return &textureLoader{
		pool:   worker.NewDynamicWorkerPool(max(workers, 1), 256, 1*time.Second),
		logger: logger,
	}
}

// submit queues src for decoding. The returned request completes once the frame thread applies it.
func (l *textureLoader) submit(passName string, src TextureSource) *TextureRequest {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return failedTextureRequest(passName, ErrReleased)
	}
	id := l.nextID
	l.nextID++
	l.mu.Unlock()

	req := newTextureRequest(passName)
	l.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			start := time.Now()
			img, err := src.decode()
			if err != nil {
				l.logger.Warn("texture decode failed", zap.String("pass", passName), zap.Error(err))
				req.complete(err)
				return nil, err
			}

			l.mu.Lock()
			defer l.mu.Unlock()
			if l.closed {
				req.complete(ErrReleased)
				return nil, ErrReleased
			}
			l.ready = append(l.ready, decodedTexture{request: req, image: img, sampler: src.Sampler})
			l.logger.Debug("texture decoded",
				zap.String("pass", passName),
				zap.Uint32("width", img.Width),
				zap.Uint32("height", img.Height),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil, nil
		},
	})
	return req
}

// drain takes every decoded texture queued so far.
func (l *textureLoader) drain() []decodedTexture {
	l.mu.Lock()
	defer l.mu.Unlock()
	ready := l.ready
	l.ready = nil
	return ready
}

// close fails every queued texture and every texture still decoding.
func (l *textureLoader) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for _, t := range l.ready {
		t.request.complete(ErrReleased)
	}
	l.ready = nil
}
