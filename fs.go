package configcache

import (
	"io/fs"
	"os"
)

// FileSystem is the file access used by the cache and the resolver.
//
//go:generate mockgen -source=fs.go -destination=internal/mocks/mock_filesystem.go -package=mocks
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the operating system.
type OSFS struct{}

// ReadFile implements FileSystem.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // path is provided by the caller
}

// Stat implements FileSystem.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}
