// Package storage provides a path-addressable blob store for downloaded
// assets. Paths are always relative to the store root; callers never see
// absolute filesystem paths.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry describes a single directory entry.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// DirStats aggregates a recursive directory scan.
type DirStats struct {
	Files int
	Bytes int64
}

// FileStorage is the blob store consumed by the asset and maintenance
// modules.
type FileStorage interface {
	Save(path string, data []byte) error
	Load(path string) ([]byte, error)
	Exists(path string) bool
	Size(path string) (int64, error)
	ListDir(path string) ([]Entry, error)
	Remove(path string, recursive bool) error
	Stats(path string) (DirStats, error)
	Root() string
}

// DiskStorage implements FileStorage on the local filesystem.
type DiskStorage struct {
	root string
}

// NewDiskStorage creates a DiskStorage rooted at the given directory,
// creating it if necessary.
func NewDiskStorage(root string) (*DiskStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &DiskStorage{root: abs}, nil
}

// Root returns the absolute storage root.
func (s *DiskStorage) Root() string {
	return s.root
}

// resolve maps a relative path into the root, rejecting escapes.
func (s *DiskStorage) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	if cleaned == "/" {
		return s.root, nil
	}
	full := filepath.Join(s.root, cleaned)
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", path)
	}
	return full, nil
}

// Save writes data to the given relative path, creating parent directories.
func (s *DiskStorage) Save(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads the file at the given relative path.
func (s *DiskStorage) Load(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether the path exists.
func (s *DiskStorage) Exists(path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// Size returns the file size in bytes.
func (s *DiskStorage) Size(path string) (int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// ListDir returns the entries of a directory. A missing directory yields an
// empty list, not an error.
func (s *DiskStorage) ListDir(path string) ([]Entry, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil && !de.IsDir() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Remove deletes a file or, when recursive is set, a directory tree.
func (s *DiskStorage) Remove(path string, recursive bool) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if full == s.root {
		return fmt.Errorf("refusing to remove storage root")
	}
	if recursive {
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Stats walks the path and aggregates file count and byte size. A missing
// path yields zero stats.
func (s *DiskStorage) Stats(path string) (DirStats, error) {
	full, err := s.resolve(path)
	if err != nil {
		return DirStats{}, err
	}

	var stats DirStats
	err = filepath.Walk(full, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			stats.Files++
			stats.Bytes += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return DirStats{}, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return stats, nil
}
