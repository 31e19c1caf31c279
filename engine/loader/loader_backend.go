package loader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// loaderBackend reads raw source bytes from a storage location.
// Concrete implementations (fileBackend, fsBackend) decide where paths resolve.
type loaderBackend interface {
	// Read returns the full contents of the file at path.
	//
	// Parameters:
	//   - ctx: checked before the read starts
	//   - path: the file path, relative to the backend's root unless absolute
	//
	// Returns:
	//   - []byte: the file contents
	//   - error: error if the file cannot be read or ctx is done
	Read(ctx context.Context, path string) ([]byte, error)
}

// fileBackend reads from the operating system's filesystem.
type fileBackend struct {
	root string
}

func newFileBackend(root string) loaderBackend {
	return &fileBackend{root: root}
}

func (b *fileBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(b.root, path)
	}
	return os.ReadFile(path)
}

// fsBackend reads from an fs.FS, typically an embed.FS of bundled shaders.
type fsBackend struct {
	fsys fs.FS
}

func newFSBackend(fsys fs.FS) loaderBackend {
	return &fsBackend{fsys: fsys}
}

func (b *fsBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fs.ReadFile(b.fsys, filepath.ToSlash(path))
}
