// Package modules maps import statements to source units.
package modules

import (
	"io/fs"
	"strings"

	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/utils"
	"github.com/funvibe/sable/internal/vfs"
)

// Resolution is the outcome of resolving one module name.
type Resolution struct {
	Module string
	URI    uri.URI
	// Implementation is the implementation unit a stub describes, when both
	// were found.
	Implementation uri.URI
	IsStub         bool
	IsPackage      bool
	Resolved       bool
}

type cacheKey struct {
	dir    uri.URI
	module string
	level  int
}

// Resolver resolves module names against stub paths, roots and the
// importing file's directory. Results are cached until Invalidate.
type Resolver struct {
	fsys      fs.FS
	roots     []uri.URI
	stubPaths []uri.URI
	overlay   func(uri.URI) bool
	cache     map[cacheKey]Resolution
}

// NewResolver creates a resolver. overlay reports units that exist without
// a backing file (open, unsaved documents); it may be nil.
func NewResolver(fsys fs.FS, roots, stubPaths []uri.URI, overlay func(uri.URI) bool) *Resolver {
	return &Resolver{
		fsys:      fsys,
		roots:     roots,
		stubPaths: stubPaths,
		overlay:   overlay,
		cache:     make(map[cacheKey]Resolution),
	}
}

// Invalidate drops cached resolutions after files appear or disappear.
func (r *Resolver) Invalidate() {
	r.cache = make(map[cacheKey]Resolution)
}

// Roots returns the configured roots.
func (r *Resolver) Roots() []uri.URI { return r.roots }

func (r *Resolver) exists(u uri.URI) bool {
	if r.overlay != nil && r.overlay(u) {
		return true
	}
	return vfs.IsFile(r.fsys, u)
}

// Resolve resolves module (dotted, possibly empty for `from . import x`)
// imported from the unit from with level leading dots.
func (r *Resolver) Resolve(from uri.URI, module string, level int) Resolution {
	if level == 0 && module == "builtins" {
		return Resolution{Module: module, URI: uri.Builtins, IsStub: true, Resolved: true}
	}
	key := cacheKey{dir: from.Dir(), module: module, level: level}
	if from.IsCell() {
		key.dir = utils.RelativeBase(from, 1)
	}
	if res, ok := r.cache[key]; ok {
		return res
	}
	res := r.resolve(from, module, level)
	res.Module = module
	r.cache[key] = res
	return res
}

func (r *Resolver) resolve(from uri.URI, module string, level int) Resolution {
	var parts []string
	if module != "" {
		parts = strings.Split(module, ".")
	}
	if level > 0 {
		return r.search([]uri.URI{utils.RelativeBase(from, level)}, parts)
	}
	if len(parts) == 0 {
		return Resolution{}
	}
	dirs := make([]uri.URI, 0, len(r.stubPaths)+len(r.roots)+1)
	dirs = append(dirs, r.stubPaths...)
	dirs = append(dirs, r.roots...)
	dirs = append(dirs, utils.RelativeBase(from, 1))
	return r.search(dirs, parts)
}

// search looks for parts below each dir in order. The first stub found
// wins; the first implementation found is recorded alongside it.
func (r *Resolver) search(dirs []uri.URI, parts []string) Resolution {
	var stub, impl Resolution
	for _, dir := range dirs {
		s, i := r.find(dir, parts)
		if s.Resolved && !stub.Resolved {
			stub = s
		}
		if i.Resolved && !impl.Resolved {
			impl = i
		}
		if stub.Resolved && impl.Resolved {
			break
		}
	}
	switch {
	case stub.Resolved:
		stub.Implementation = impl.URI
		return stub
	case impl.Resolved:
		return impl
	}
	return Resolution{}
}

func (r *Resolver) find(dir uri.URI, parts []string) (stub, impl Resolution) {
	base := dir
	if len(parts) > 0 {
		base = dir.Join(parts...)
	}
	if len(parts) > 0 {
		for _, ext := range config.SourceFileExtensions {
			u := uri.URI(string(base) + ext)
			if r.exists(u) {
				res := Resolution{URI: u, IsStub: ext == config.StubFileExt, Resolved: true}
				if res.IsStub && !stub.Resolved {
					stub = res
				} else if !res.IsStub && !impl.Resolved {
					impl = res
				}
			}
		}
	}
	for _, ext := range config.SourceFileExtensions {
		u := base.Join(config.PackageInit + ext)
		if r.exists(u) {
			res := Resolution{URI: u, IsStub: ext == config.StubFileExt, IsPackage: true, Resolved: true}
			if res.IsStub && !stub.Resolved {
				stub = res
			} else if !res.IsStub && !impl.Resolved {
				impl = res
			}
		}
	}
	return stub, impl
}

// ResolveImports resolves every import of a unit. Names imported with
// `from m import a` are also tried as submodules `m.a`. Explicit imports
// that resolve to nothing produce I001 diagnostics.
func (r *Resolver) ResolveImports(from uri.URI, imports []symbols.Import) ([]Resolution, []*diagnostics.DiagnosticError) {
	var out []Resolution
	var diags []*diagnostics.DiagnosticError
	for _, imp := range imports {
		res := r.Resolve(from, imp.Module, imp.Level)
		found := res.Resolved
		if found {
			out = append(out, res)
		}
		if !imp.Wildcard {
			for _, name := range imp.Names {
				sub := r.Resolve(from, JoinModule(imp.Module, name), imp.Level)
				if sub.Resolved {
					out = append(out, sub)
					found = true
				}
			}
		}
		if !found && !imp.Implicit {
			diags = append(diags, diagnostics.Errorf(diagnostics.ErrI001, imp.Span,
				"import %q could not be resolved", displayName(imp.Module, imp.Level)))
		}
	}
	return out, diags
}

// JoinModule is the dotted name of name inside module.
func JoinModule(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func displayName(module string, level int) string {
	return strings.Repeat(".", level) + module
}
