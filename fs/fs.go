// Package fs defines the filesystem abstraction used throughout cargohold.
// All local file access in the core goes through Filesystem so components can
// run against the OS filesystem in production and an in-memory filesystem in
// tests.
package fs

import (
	"io/fs"
	"os"
	"path/filepath"
)

// File represents an open file handle supporting basic I/O operations.
// Implementations should behave consistently with the standard library.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	ReadAt(p []byte, off int64) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}

// Filesystem is the set of filesystem operations the core depends on.
type Filesystem interface {
	// Create creates or truncates the named file and opens it for writing.
	Create(name string) (File, error)

	// Exists reports whether the named path exists.
	Exists(path string) (bool, error)

	// MkdirAll creates the named directory along with any necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// Open opens the named file for reading.
	Open(name string) (File, error)

	// OpenFile opens the named file with the given flag and permissions.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)

	// ReadDir reads the named directory and returns its entries.
	ReadDir(dirname string) ([]os.FileInfo, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(path string) ([]byte, error)

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename atomically replaces newpath with oldpath where the underlying
	// filesystem supports it. Used for atomic commit of staged files.
	Rename(oldpath, newpath string) error

	// Stat returns file info for the named path.
	Stat(name string) (os.FileInfo, error)

	// TempFile creates a new temporary file in dir, opened for writing.
	TempFile(dir, prefix string) (File, error)

	// Walk walks the file tree rooted at root in lexical order.
	Walk(root string, walkFn filepath.WalkFunc) error

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(filename string, data []byte, perm os.FileMode) error
}
