package loader

import (
	"io/fs"

	"go.uber.org/zap"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithRoot is an option builder that resolves relative paths against a directory on disk.
//
// Parameters:
//   - dir: the directory relative paths are joined to
//
// Returns:
//   - LoaderBuilderOption: a function that applies the root option to a loader
func WithRoot(dir string) LoaderBuilderOption {
	return func(l *loader) {
		l.backend = newFileBackend(dir)
	}
}

// WithFS is an option builder that reads every path from fsys instead of the disk.
//
// Parameters:
//   - fsys: the filesystem to read from, such as an embed.FS
//
// Returns:
//   - LoaderBuilderOption: a function that applies the filesystem option to a loader
func WithFS(fsys fs.FS) LoaderBuilderOption {
	return func(l *loader) {
		l.backend = newFSBackend(fsys)
	}
}

// WithConcurrency is an option builder that bounds how many files Sources reads at once.
// Values below 1 leave reads unbounded.
//
// Parameters:
//   - n: the maximum number of concurrent reads
//
// Returns:
//   - LoaderBuilderOption: a function that applies the concurrency option to a loader
func WithConcurrency(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.limit = n
	}
}

// WithSource is an option builder that pre-populates the cache with source text for a path.
//
// Parameters:
//   - path: the cache key
//   - source: the source text returned for path
//
// Returns:
//   - LoaderBuilderOption: a function that applies the source option to a loader
func WithSource(path, source string) LoaderBuilderOption {
	return func(l *loader) {
		l.cache[path] = source
	}
}

// WithLogger is an option builder that sets the logger used for load diagnostics.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *zap.Logger) LoaderBuilderOption {
	return func(l *loader) {
		l.logger = logger
	}
}
