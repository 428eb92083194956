// Package sourcemapper pairs declarations of a stub unit with the
// declarations of the implementation units it describes. Stub and
// implementation are parsed independently, so matching goes by the
// qualified name of the declaration and, for functions, by the shape of
// the parameter list.
package sourcemapper

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/uri"
)

// Loader returns the bound view of a unit, or nil when it cannot be loaded.
type Loader func(u uri.URI) *evaluator.UnitView

// Match is one candidate declaration.
type Match struct {
	Unit uri.URI
	Decl *symbols.Declaration
}

// Mapper maps between one stub and its implementations.
type Mapper struct {
	stub  uri.URI
	impls []uri.URI
	load  Loader
}

// New returns a mapper for stub, which describes impls. impls may be
// empty, for stubs of code the program cannot see.
func New(stub uri.URI, impls []uri.URI, load Loader) *Mapper {
	return &Mapper{stub: stub, impls: impls, load: load}
}

func (m *Mapper) Stub() uri.URI { return m.stub }

func (m *Mapper) Implementations() []uri.URI { return m.impls }

// FindImplementations returns the declarations of the implementation
// units that correspond to d, a declaration of the stub.
func (m *Mapper) FindImplementations(d *symbols.Declaration) []Match {
	src := m.load(m.stub)
	if src == nil || d == nil {
		return nil
	}
	var out []Match
	for _, u := range m.impls {
		out = append(out, m.find(src, d, u)...)
	}
	return out
}

// FindStubDeclarations is the reverse direction: d is a declaration of
// the implementation unit impl.
func (m *Mapper) FindStubDeclarations(impl uri.URI, d *symbols.Declaration) []Match {
	src := m.load(impl)
	if src == nil || d == nil {
		return nil
	}
	return m.find(src, d, m.stub)
}

// Documentation returns the docstring of a stub declaration, taken from
// the implementation when the stub has none.
func (m *Mapper) Documentation(d *symbols.Declaration) string {
	if src := m.load(m.stub); src != nil {
		if doc := Docstring(src, d); doc != "" {
			return doc
		}
	}
	for _, match := range m.FindImplementations(d) {
		if v := m.load(match.Unit); v != nil {
			if doc := Docstring(v, match.Decl); doc != "" {
				return doc
			}
		}
	}
	return ""
}

func (m *Mapper) find(src *evaluator.UnitView, d *symbols.Declaration, target uri.URI) []Match {
	dst := m.load(target)
	if dst == nil {
		return nil
	}
	path, ok := qualifiedPath(src, d.Scope)
	if !ok {
		return nil
	}
	scope, ok := descend(dst, path)
	if !ok {
		return nil
	}
	sym := scope.Lookup(d.Name)
	if d.InstanceMember {
		sym = scope.Member(d.Name)
	}
	if sym == nil {
		return nil
	}

	var named, shaped []Match
	for _, cand := range sym.Decls {
		if !sameCategory(d.Kind, cand.Kind) {
			continue
		}
		named = append(named, Match{target, cand})
		if d.Kind == symbols.DeclFunction && cand.Kind == symbols.DeclFunction &&
			!signaturesCompatible(defOf(src, d), defOf(dst, cand)) {
			continue
		}
		shaped = append(shaped, Match{target, cand})
	}
	// An implementation that changed its parameters is still the best
	// answer there is.
	if len(shaped) == 0 {
		return named
	}
	return shaped
}

// qualifiedPath returns the class and function names enclosing scope,
// outermost first. Comprehension scopes have no counterpart elsewhere.
func qualifiedPath(v *evaluator.UnitView, id symbols.ScopeID) ([]string, bool) {
	var path []string
	for id != symbols.NoScope {
		s := v.Bind.Scope(id)
		if s == nil {
			return nil, false
		}
		switch s.Kind {
		case symbols.ScopeModule:
			return reverse(path), true
		case symbols.ScopeClass:
			cd, ok := v.Index.Node(s.Node).(*ast.ClassDef)
			if !ok {
				return nil, false
			}
			path = append(path, cd.Name.Value)
		case symbols.ScopeFunction:
			fd, ok := v.Index.Node(s.Node).(*ast.FunctionDef)
			if !ok {
				return nil, false
			}
			path = append(path, fd.Name.Value)
		case symbols.ScopeComprehension:
			return nil, false
		}
		id = s.Parent
	}
	return reverse(path), true
}

func reverse(xs []string) []string {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
	return xs
}

// descend follows path from the module scope of v through classes and
// defs of the same names.
func descend(v *evaluator.UnitView, path []string) (*symbols.Scope, bool) {
	scope := v.Bind.Module()
	for _, name := range path {
		sym := scope.Lookup(name)
		if sym == nil {
			return nil, false
		}
		next := symbols.NoScope
		for i := len(sym.Decls) - 1; i >= 0; i-- {
			d := sym.Decls[i]
			if d.Kind != symbols.DeclClass && d.Kind != symbols.DeclFunction {
				continue
			}
			if id, ok := v.Bind.NodeScope[d.Node]; ok {
				next = id
				break
			}
		}
		if next == symbols.NoScope {
			return nil, false
		}
		scope = v.Bind.Scope(next)
	}
	return scope, scope != nil
}

// sameCategory reports whether two declaration kinds can describe the same
// thing. Stubs often declare with an annotation what the implementation
// computes, and re-export imported names.
func sameCategory(a, b symbols.DeclKind) bool {
	cat := func(k symbols.DeclKind) int {
		switch k {
		case symbols.DeclFunction:
			return 1
		case symbols.DeclClass:
			return 2
		}
		return 0
	}
	ca, cb := cat(a), cat(b)
	return ca == cb || ca == 0 || cb == 0
}

func defOf(v *evaluator.UnitView, d *symbols.Declaration) *ast.FunctionDef {
	fd, _ := v.Index.Node(d.Node).(*ast.FunctionDef)
	return fd
}

// signaturesCompatible compares the positional parameters of two defs by
// name. Variadic parameters on either side accept any count.
func signaturesCompatible(a, b *ast.FunctionDef) bool {
	if a == nil || b == nil {
		return true
	}
	pa, va := positional(a)
	pb, vb := positional(b)
	if !va && !vb && len(pa) != len(pb) {
		return false
	}
	for i := 0; i < len(pa) && i < len(pb); i++ {
		// The receiver may be spelled differently.
		if i == 0 && (isReceiver(pa[0]) || isReceiver(pb[0])) {
			continue
		}
		if pa[i] != pb[i] {
			return false
		}
	}
	return true
}

func positional(fd *ast.FunctionDef) (names []string, variadic bool) {
	for _, p := range fd.Params {
		if p.Kind != ast.ParamPositional {
			variadic = true
			continue
		}
		if p.Name != nil {
			names = append(names, p.Name.Value)
		}
	}
	return names, variadic
}

func isReceiver(name string) bool { return name == "self" || name == "cls" }

// Docstring returns the docstring of a def or class declaration of v.
func Docstring(v *evaluator.UnitView, d *symbols.Declaration) string {
	if v == nil || d == nil {
		return ""
	}
	switch n := v.Index.Node(d.Node).(type) {
	case *ast.FunctionDef:
		return n.Doc
	case *ast.ClassDef:
		return n.Doc
	}
	return ""
}
