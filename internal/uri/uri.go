// Package uri defines the canonical identity of a source unit.
package uri

import (
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/funvibe/sable/internal/config"
)

// URI identifies one unit. Two units are the same unit iff their URIs are
// equal, so every constructor here returns a cleaned, canonical form.
type URI string

const (
	SchemeFile     = "file"
	SchemeCell     = "cell"
	SchemeBuiltins = "builtins"
)

// Builtins is the URI of the embedded builtins stub.
const Builtins URI = "builtins:///builtins.pyi"

// FromPath converts a file path to a file:// URI.
func FromPath(p string) URI {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return URI("file://" + filepath.ToSlash(filepath.Clean(p)))
}

// Cell returns the URI for cell n of a notebook document.
func Cell(notebook string, n int) URI {
	return URI("cell://" + path.Clean("/"+notebook) + "#" + strconv.Itoa(n))
}

// Parse canonicalizes a client-supplied URI string.
func Parse(s string) URI {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return FromPath(s)
	}
	p := path.Clean("/" + u.Path)
	out := u.Scheme + "://" + p
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return URI(out)
}

func (u URI) String() string { return string(u) }

// Scheme returns the scheme without "://".
func (u URI) Scheme() string {
	s := string(u)
	if i := strings.Index(s, "://"); i >= 0 {
		return s[:i]
	}
	return ""
}

// Path returns the slash-separated path component, without fragment.
func (u URI) Path() string {
	s := string(u)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// FilePath returns the OS path for file:// URIs and "" otherwise.
func (u URI) FilePath() string {
	if u.Scheme() != SchemeFile {
		return ""
	}
	return filepath.FromSlash(u.Path())
}

// IsStub reports whether the unit is an interface-only stub.
func (u URI) IsStub() bool { return strings.HasSuffix(u.Path(), config.StubFileExt) }

// IsCell reports whether the unit is a notebook cell.
func (u URI) IsCell() bool { return u.Scheme() == SchemeCell }

// Dir returns the URI of the directory holding the unit.
func (u URI) Dir() URI {
	return URI(u.Scheme() + "://" + path.Dir(u.Path()))
}

// Join appends slash-separated elements to a directory URI.
func (u URI) Join(elem ...string) URI {
	return URI(u.Scheme() + "://" + path.Join(append([]string{u.Path()}, elem...)...))
}

// Base returns the last path element.
func (u URI) Base() string { return path.Base(u.Path()) }
