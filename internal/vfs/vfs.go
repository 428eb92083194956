// Package vfs adapts io/fs file systems to unit URIs. The engine never
// touches the OS directly: hosts choose the FS (disk, txtar fixture, ...).
package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"testing/fstest"

	"golang.org/x/tools/txtar"

	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/uri"
)

// ErrNotFile is returned for URIs that have no backing file (cells, builtins).
var ErrNotFile = errors.New("vfs: uri has no backing file")

// OS returns a file system rooted at "/" so file:// paths map directly.
func OS() fs.FS { return os.DirFS("/") }

// fsPath maps a file:// URI to an io/fs path.
func fsPath(u uri.URI) (string, bool) {
	if u.Scheme() != uri.SchemeFile {
		return "", false
	}
	p := strings.TrimPrefix(u.Path(), "/")
	if p == "" {
		p = "."
	}
	return p, fs.ValidPath(p)
}

// ReadFile returns the on-disk content of a unit.
func ReadFile(fsys fs.FS, u uri.URI) (string, error) {
	p, ok := fsPath(u)
	if !ok {
		return "", ErrNotFile
	}
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsFile reports whether u names a regular file.
func IsFile(fsys fs.FS, u uri.URI) bool {
	p, ok := fsPath(u)
	if !ok {
		return false
	}
	info, err := fs.Stat(fsys, p)
	return err == nil && !info.IsDir()
}

// IsDir reports whether u names a directory.
func IsDir(fsys fs.FS, u uri.URI) bool {
	p, ok := fsPath(u)
	if !ok {
		return false
	}
	info, err := fs.Stat(fsys, p)
	return err == nil && info.IsDir()
}

// Walk returns every source file below the given directory URIs, sorted.
// Stub files are listed alongside implementations.
func Walk(fsys fs.FS, roots []uri.URI) ([]uri.URI, error) {
	seen := map[uri.URI]bool{}
	var out []uri.URI
	for _, root := range roots {
		p, ok := fsPath(root)
		if !ok {
			continue
		}
		err := fs.WalkDir(fsys, p, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name != p && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !config.HasSourceExt(name) {
				return nil
			}
			u := uri.URI("file:///" + name)
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// FromTxtar loads a txtar archive into an in-memory FS with every file
// placed below root (an absolute slash path such as "/proj"). It returns the
// FS and the URIs of the archive's files in archive order.
func FromTxtar(data []byte, root string) (fstest.MapFS, []uri.URI) {
	ar := txtar.Parse(data)
	fsys := fstest.MapFS{}
	base := strings.TrimPrefix(path.Clean("/"+root), "/")
	var uris []uri.URI
	for _, f := range ar.Files {
		name := path.Join(base, path.Clean(f.Name))
		fsys[name] = &fstest.MapFile{Data: f.Data, Mode: 0o644}
		uris = append(uris, uri.URI("file:///"+name))
	}
	return fsys, uris
}
