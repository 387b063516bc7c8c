// Package archive expands downloaded archives into a directory tree.
//
// Formats are strategies registered by file extension in a Registry; there is
// no process-global registration. Default returns a Registry with every
// supported format. Entry paths are resolved inside the target directory so
// that no entry can be written outside it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/ligustah/haul/internal/transfer"
)

// ErrUnsupported is returned for a name without a registered extension.
var ErrUnsupported = errors.New("archive: unsupported format")

// Expander expands one archive format.
type Expander interface {
	// Expand extracts archivePath into targetDir, which must exist.
	// archivePath is left in place.
	Expand(ctx context.Context, archivePath, targetDir string) error
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, archivePath, targetDir string) error

// Expand calls f.
func (f ExpanderFunc) Expand(ctx context.Context, archivePath, targetDir string) error {
	return f(ctx, archivePath, targetDir)
}

// Registry maps file extensions to expanders.
type Registry struct {
	expanders map[string]Expander
	exts      []string // longest first
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{expanders: make(map[string]Expander)}
}

// Default returns a Registry with .7z, .zip, .tar, .tar.gz, .tgz and
// .tar.zst registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(".7z", ExpanderFunc(expandSevenZip))
	r.Register(".zip", ExpanderFunc(expandZip))
	r.Register(".tar", ExpanderFunc(expandTar))
	r.Register(".tar.gz", ExpanderFunc(expandTarGzip))
	r.Register(".tgz", ExpanderFunc(expandTarGzip))
	r.Register(".tar.zst", ExpanderFunc(expandTarZstd))
	return r
}

// Register adds or replaces the expander for ext. Extensions are matched
// case-insensitively and must start with a dot.
func (r *Registry) Register(ext string, e Expander) {
	ext = strings.ToLower(ext)
	if _, ok := r.expanders[ext]; !ok {
		r.exts = append(r.exts, ext)
		sort.SliceStable(r.exts, func(i, j int) bool {
			return len(r.exts[i]) > len(r.exts[j])
		})
	}
	r.expanders[ext] = e
}

// Extensions returns the registered extensions, longest first.
func (r *Registry) Extensions() []string {
	return append([]string(nil), r.exts...)
}

// lookup returns the longest registered extension name ends with, as
// spelled in name.
func (r *Registry) lookup(name string) (Expander, string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range r.exts {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return r.expanders[ext], name[len(name)-len(ext):], true
		}
	}
	return nil, "", false
}

// Split splits a source name into its stem and archive extension, e.g.
// "sets/data.tar.gz" into "sets/data" and ".tar.gz".
func (r *Registry) Split(name string) (stem, ext string, err error) {
	_, ext, ok := r.lookup(name)
	if !ok {
		return "", "", transfer.NewError(transfer.ErrExpandFailed, "plan", name, ErrUnsupported)
	}
	return name[:len(name)-len(ext)], ext, nil
}

// Expand extracts archivePath into targetDir using the expander registered
// for its extension. targetDir is created if needed.
func (r *Registry) Expand(ctx context.Context, archivePath, targetDir string) error {
	e, _, ok := r.lookup(filepath.Base(archivePath))
	if !ok {
		return transfer.NewError(transfer.ErrExpandFailed, "expand", archivePath, ErrUnsupported)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return transfer.NewError(transfer.ErrFilesystem, "mkdir", targetDir, err)
	}
	if err := e.Expand(ctx, archivePath, targetDir); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transfer.NewError(transfer.ErrExpandFailed, "expand", archivePath, err)
	}
	return nil
}

// extractor writes archive entries below root.
type extractor struct {
	ctx  context.Context
	root string
}

// path resolves an entry name inside root.
func (x *extractor) path(name string) (string, error) {
	p, err := securejoin.SecureJoin(x.root, filepath.FromSlash(name))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", name, err)
	}
	if p == x.root {
		return "", nil
	}
	return p, nil
}

func (x *extractor) dir(name string) error {
	if err := x.ctx.Err(); err != nil {
		return err
	}
	p, err := x.path(name)
	if err != nil || p == "" {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

func (x *extractor) file(name string, mode fs.FileMode, r io.Reader) error {
	if err := x.ctx.Err(); err != nil {
		return err
	}
	p, err := x.path(name)
	if err != nil {
		return err
	}
	if p == "" {
		return fmt.Errorf("entry %q has no file name", name)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	perm := mode.Perm() | 0o600
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", name, err)
	}
	return f.Close()
}
