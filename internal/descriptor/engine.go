// Package descriptor turns a filesystem path into a structured,
// one-level-deep description: stat metadata, kind, MIME type and either
// the raw bytes of a file or the entries of a directory.
package descriptor

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds concurrent lstat calls per directory
	DefaultConcurrency = 32

	fallbackMIME = "application/octet-stream"
)

// ErrNoPath is returned when neither the path argument nor Options.Path is set
var ErrNoPath = errors.New("no path to describe")

// Engine describes filesystem paths. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	fs          FS
	concurrency int
}

// Option configures an Engine
type Option func(*Engine)

// WithFS replaces the host filesystem
func WithFS(fsys FS) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithConcurrency bounds concurrent per-entry stats; n <= 0 removes the bound
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// New creates an engine over the host filesystem
func New(opts ...Option) *Engine {
	e := &Engine{
		fs:          OSFS{},
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Describe stats path and, for regular files, reads their content or, for
// directories, lists their entries. Any failure on the target, on reading
// it, or on a required entry stat fails the whole call with the underlying
// error. An empty path falls back to opts.Path.
func (e *Engine) Describe(ctx context.Context, path string, opts Options) (*Descriptor, error) {
	if path == "" {
		path = opts.Path
	}
	if path == "" {
		return nil, ErrNoPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &fs.PathError{Op: "abs", Path: path, Err: err}
	}

	d, err := e.stat(ctx, abs)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case KindFile:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.fs.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		d.Data = data
		if d.MIME == fallbackMIME {
			d.MIME = stripParams(mimetype.Detect(data).String())
		}
	case KindDirectory:
		entries, err := e.list(ctx, d, opts)
		if err != nil {
			return nil, err
		}
		d.Entries = entries
	}

	return d, nil
}

// DescribeOptions describes opts.Path
func (e *Engine) DescribeOptions(ctx context.Context, opts Options) (*Descriptor, error) {
	return e.Describe(ctx, "", opts)
}

func (e *Engine) list(ctx context.Context, dir *Descriptor, opts Options) ([]*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := e.fs.ReadDirNames(dir.Path)
	if err != nil {
		return nil, err
	}

	if opts.IgnoreDotFiles {
		kept := make([]string, 0, len(names))
		for _, name := range names {
			if !strings.HasPrefix(name, ".") {
				kept = append(kept, name)
			}
		}
		names = kept
	}

	entries := make([]*Descriptor, len(names), len(names)+2)

	if opts.ShouldStatEach() {
		// Siblings keep running after a failure; only the first error is kept.
		var g errgroup.Group
		if e.concurrency > 0 {
			g.SetLimit(e.concurrency)
		}
		for i, name := range names {
			i, name := i, name
			g.Go(func() error {
				child, err := e.stat(ctx, filepath.Join(dir.Path, name))
				if err != nil {
					return err
				}
				entries[i] = child
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, name := range names {
			entries[i] = &Descriptor{
				Path:     filepath.Join(dir.Path, name),
				Filename: name,
			}
		}
	}

	if !opts.IgnoreCurDir {
		entries = append(entries, dir.synthetic("."))
	}

	if !opts.IgnoreUpDir {
		up, err := e.stat(ctx, filepath.Join(dir.Path, ".."))
		if err != nil {
			return nil, err
		}
		up.Filename = ".."
		entries = append(entries, up)
	}

	return entries, nil
}

func (e *Engine) stat(ctx context.Context, path string) (*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := e.fs.Lstat(path)
	if err != nil {
		return nil, err
	}

	return fromFileInfo(path, info), nil
}

func fromFileInfo(path string, info fs.FileInfo) *Descriptor {
	mode := info.Mode()
	d := &Descriptor{
		Path:     path,
		Filename: filepath.Base(path),
		Kind:     KindOf(mode),
		Stat: &Stat{
			Mode:       unixMode(mode),
			ModeString: mode.String(),
			Size:       info.Size(),
			Mtime:      info.ModTime(),
			SysStat:    sysStat(info),
		},
	}
	if d.Kind != KindDirectory {
		d.MIME = mimeByName(path)
	}
	return d
}

// synthetic copies the directory's own metadata under another filename
func (d *Descriptor) synthetic(name string) *Descriptor {
	st := *d.Stat
	return &Descriptor{
		Path:     d.Path,
		Filename: name,
		Kind:     d.Kind,
		Stat:     &st,
	}
}

func mimeByName(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return stripParams(t)
	}
	return fallbackMIME
}

func stripParams(t string) string {
	base, _, _ := strings.Cut(t, ";")
	return strings.TrimSpace(base)
}

// unixMode rebuilds the st_mode value, type bits included, from a FileMode
func unixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}

	switch KindOf(m) {
	case KindFile:
		mode |= 0o100000
	case KindDirectory:
		mode |= 0o040000
	case KindSymlink:
		mode |= 0o120000
	case KindFIFO:
		mode |= 0o010000
	case KindSocket:
		mode |= 0o140000
	case KindBlockDevice:
		mode |= 0o060000
	case KindCharDevice:
		mode |= 0o020000
	}
	return mode
}
