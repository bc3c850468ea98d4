package persistence

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend is the storage contract persistence blobs are written
// through. Implementations are black boxes to the rest of EdgeVec:
// the core only ever calls Read/WriteAtomic/Exists with a name and a
// byte slice.
type Backend interface {
	Read(name string) ([]byte, error)
	WriteAtomic(name string, data []byte) error
	Exists(name string) bool
}

// FileBackend stores each named blob as a file in Dir, writing through
// a temp file plus fsync plus os.Rename so a crash mid-write can never
// leave a torn file at the canonical path.
type FileBackend struct {
	Dir string
}

// NewFileBackend creates the backend directory if it does not exist
// and returns a FileBackend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create backend dir: %w", err)
	}
	return &FileBackend{Dir: dir}, nil
}

func (b *FileBackend) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("persistence: read %q: %w", name, err)
	}
	return data, nil
}

func (b *FileBackend) WriteAtomic(name string, data []byte) error {
	path := filepath.Join(b.Dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("persistence: create temp file for %q: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: write temp file for %q: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: sync temp file for %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: close temp file for %q: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: rename temp file for %q: %w", name, err)
	}
	return nil
}

func (b *FileBackend) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(b.Dir, name))
	return err == nil
}

var _ Backend = (*FileBackend)(nil)
