package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	cache map[string]string

	backend loaderBackend
	limit   int
	logger  *zap.Logger
}

// Loader reads and caches text sources such as WGSL shaders and shader libraries.
// Files come from disk by default, or from an fs.FS when built WithFS.
type Loader interface {
	// Load reads a source file and caches the result by path.
	// If the path is already cached, the cached text is returned without reading.
	//
	// Parameters:
	//   - ctx: cancels the read
	//   - path: the file path to load
	//
	// Returns:
	//   - string: the file contents
	//   - error: error if the file cannot be read
	Load(ctx context.Context, path string) (string, error)

	// Sources loads every path concurrently and returns the contents in the order of paths.
	// The first failure cancels the remaining reads.
	//
	// Parameters:
	//   - ctx: cancels every read
	//   - paths: the file paths to load
	//
	// Returns:
	//   - []string: the contents, index-aligned with paths
	//   - error: the first read error
	Sources(ctx context.Context, paths ...string) ([]string, error)

	// Get retrieves cached source text by path.
	//
	// Parameters:
	//   - path: the cache key to look up
	//
	// Returns:
	//   - string: the cached text
	//   - bool: true if the path is cached
	Get(path string) (string, bool)

	// Forget drops a path from the cache so the next Load reads it again.
	//
	// Parameters:
	//   - path: the cache key to drop
	Forget(path string)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader reading from the working directory, with options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided options
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		cache:   make(map[string]string),
		backend: newFileBackend(""),
	}
	for _, option := range options {
		option(l)
	}
	l.logger = logger.OrNop(l.logger)
	return l
}

func (l *loader) Load(ctx context.Context, path string) (string, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	start := time.Now()
	data, err := l.backend.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", path, err)
	}
	source := string(data)

	l.mu.Lock()
	l.cache[path] = source
	l.mu.Unlock()

	l.logger.Debug("loaded source",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return source, nil
}

func (l *loader) Sources(ctx context.Context, paths ...string) ([]string, error) {
	out := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if l.limit > 0 {
		g.SetLimit(l.limit)
	}

	for i, path := range paths {
		g.Go(func() error {
			source, err := l.Load(ctx, path)
			if err != nil {
				return err
			}
			out[i] = source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *loader) Get(path string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	source, ok := l.cache[path]
	return source, ok
}

func (l *loader) Forget(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, path)
}
