// Package storage provides the filesystem primitives a mirror writes through
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Client provides methods to read and write files under a mirror root
type Client struct {
	fs afero.Fs
}

// New creates a Client over the given filesystem
func New(fs afero.Fs) *Client {
	return &Client{fs: fs}
}

// NewOS creates a Client backed by the host filesystem
func NewOS() *Client {
	return New(afero.NewOsFs())
}

// NewMemory creates a Client backed by an in-memory filesystem
func NewMemory() *Client {
	return New(afero.NewMemMapFs())
}

// Fs exposes the underlying filesystem
func (c *Client) Fs() afero.Fs {
	return c.fs
}

// EnsureDir creates path and any missing parents. An existing directory is not an error.
func (c *Client) EnsureDir(path string) error {
	if err := c.fs.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteFile writes data to path. The parent directory must already exist.
// Content goes to a temporary sibling first and is renamed into place,
// so a concurrent reader sees either the old or the new file.
func (c *Client) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := afero.TempFile(c.fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := c.fs.Chmod(tmpName, filePerm); err != nil {
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	if err := c.fs.Rename(tmpName, path); err != nil {
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	return nil
}

// Save ensures the parent directory of path exists and then writes data to it.
func (c *Client) Save(path string, data []byte) error {
	if err := c.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return c.WriteFile(path, data)
}

// Exists reports whether a regular file or directory exists at path
func (c *Client) Exists(path string) bool {
	ok, err := afero.Exists(c.fs, path)
	return err == nil && ok
}

// ReadFile returns the contents of path
func (c *Client) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
