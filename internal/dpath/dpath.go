// Package dpath implements the on-disk location used to cache
// descriptor statistics between runs.
//
// A Path is a directory tree. Arrays are leaves stored as one-array .dp
// files; directories group them by descriptor hash and atom type.
package dpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// ErrReadOnly is returned when writing through a read-only Path.
var ErrReadOnly = errors.New("stat path is read-only")

const arrayExt = ".dp"

// Mode selects whether a Path may be written.
type Mode int

const (
	// ReadWrite allows loading and saving arrays.
	ReadWrite Mode = iota
	// ReadOnly rejects every write.
	ReadOnly
)

// Path is a location inside a statistics cache.
type Path struct {
	root string
	rel  string
	mode Mode
}

// New opens a cache rooted at dir. The directory is created lazily on the
// first write.
func New(dir string, mode Mode) *Path {
	return &Path{root: filepath.Clean(dir), mode: mode}
}

// Join returns the child location named by parts.
func (p *Path) Join(parts ...string) *Path {
	elems := append([]string{p.rel}, parts...)
	return &Path{root: p.root, rel: filepath.Join(elems...), mode: p.mode}
}

// String returns the path relative to the cache root, "/" separated.
func (p *Path) String() string {
	return "/" + filepath.ToSlash(p.rel)
}

// Name returns the last element of the path.
func (p *Path) Name() string {
	return filepath.Base(p.rel)
}

func (p *Path) dir() string {
	return filepath.Join(p.root, p.rel)
}

func (p *Path) file() string {
	return p.dir() + arrayExt
}

// IsDir reports whether p is an existing group.
func (p *Path) IsDir() bool {
	info, err := os.Stat(p.dir())
	return err == nil && info.IsDir()
}

// IsFile reports whether p holds an array.
func (p *Path) IsFile() bool {
	info, err := os.Stat(p.file())
	return err == nil && !info.IsDir()
}

// Exists reports whether p is a group or an array.
func (p *Path) Exists() bool {
	return p.IsDir() || p.IsFile()
}

// MkdirAll creates the group and its parents.
func (p *Path) MkdirAll() error {
	if p.mode == ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, p)
	}
	//nolint:gosec // G301: cache directories are shared with the user
	return os.MkdirAll(p.dir(), 0o755)
}

// LoadArray reads the array stored at p.
func (p *Path) LoadArray() (*tensor.RawTensor, error) {
	t, err := serialization.LoadArray(p.file())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	return t, nil
}

// SaveArray stores t at p, creating parent groups.
func (p *Path) SaveArray(t *tensor.RawTensor) error {
	if p.mode == ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, p)
	}
	//nolint:gosec // G301: cache directories are shared with the user
	if err := os.MkdirAll(filepath.Dir(p.file()), 0o755); err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	if err := serialization.SaveArray(p.file(), t); err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	return nil
}

// Children lists the names of the groups and arrays directly under p,
// sorted.
func (p *Path) Children() ([]string, error) {
	entries, err := os.ReadDir(p.dir())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			if !strings.HasSuffix(name, arrayExt) {
				continue
			}
			name = strings.TrimSuffix(name, arrayExt)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
