package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Adapter persists identity snapshots
type Adapter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// MemoryAdapter keeps the snapshot in process memory
type MemoryAdapter struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryAdapter creates an empty in-memory adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{snap: &Snapshot{}}
}

// Load returns a copy of the stored snapshot
func (m *MemoryAdapter) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

// Save replaces the stored snapshot with a copy of snap
func (m *MemoryAdapter) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	return nil
}

// DiskAdapter stores the snapshot as a single YAML document
type DiskAdapter struct {
	path string
}

// NewDiskAdapter creates an adapter backed by the file at path
func NewDiskAdapter(path string) *DiskAdapter {
	return &DiskAdapter{path: path}
}

// Path returns the backing file
func (d *DiskAdapter) Path() string {
	return d.path
}

// Load reads the document; a missing file is an empty snapshot
func (d *DiskAdapter) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", d.path, err)
	}
	return &snap, nil
}

// Save writes the document atomically with owner-only permissions
func (d *DiskAdapter) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(d.path), dirPerm); err != nil {
		return err
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return writeAtomic(d.path, data, filePerm)
}

// writeAtomic writes data to a temp file beside path, then renames it into place
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		_ = os.Remove(tmp)
		return werr
	}
	if cerr != nil {
		_ = os.Remove(tmp)
		return cerr
	}
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
