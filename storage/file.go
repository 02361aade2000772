package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is a Backend that keeps one file per area under a directory.  It is
// the cookie-fallback analog: state written through it survives a process
// restart, so callers own the lifetime of the directory.
type File struct {
	mu  sync.Mutex
	dir string
}

// NewFile creates a file backend rooted at dir, creating the directory if
// needed.  The directory must be writable.
func NewFile(dir string) (*File, error) {
	const op = "storage.NewFile"
	if dir == "" {
		return nil, fmt.Errorf("%s: missing directory: %w", op, ErrInvalidParameter)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: unable to create directory %q (%s): %w", op, dir, err, ErrStorage)
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return nil, fmt.Errorf("%s: directory %q is not writable (%s): %w", op, dir, err, ErrStorage)
	}
	_ = os.Remove(probe)
	return &File{dir: dir}, nil
}

// Get implements Backend.
func (f *File) Get(name string) (string, bool, error) {
	const op = "storage.File.Get"
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: unable to read area %q (%s): %w", op, name, err, ErrStorage)
	}
	return string(data), true, nil
}

// Set implements Backend.
func (f *File) Set(name, value string) error {
	const op = "storage.File.Set"
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.WriteFile(f.path(name), []byte(value), 0o600); err != nil {
		return fmt.Errorf("%s: unable to write area %q (%s): %w", op, name, err, ErrStorage)
	}
	return nil
}

// Delete implements Backend.
func (f *File) Delete(name string) error {
	const op = "storage.File.Delete"
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: unable to delete area %q (%s): %w", op, name, err, ErrStorage)
	}
	return nil
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, sanitizeName(name)+".json")
}

// sanitizeName maps an area name onto a safe file name.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// NewBackend returns a File backend rooted at dir when the directory is
// usable, falling back to an in-process Memory backend otherwise.  This
// mirrors the session-storage to cookie fallback rule of the original
// browser client: prefer durable storage, degrade silently.
func NewBackend(dir string) Backend {
	if dir == "" {
		return NewMemory()
	}
	f, err := NewFile(dir)
	if err != nil {
		return NewMemory()
	}
	return f
}
