package program

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/sourcemapper"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// GetParseResults returns the parse of u, parsing it if needed. It
// returns nil for units the program does not hold.
func (p *Program) GetParseResults(u uri.URI) *parser.Results {
	su := p.units[u]
	if su == nil {
		return nil
	}
	p.ensureBound(su)
	return su.parse
}

// GetSourceUnit returns a snapshot of u.
func (p *Program) GetSourceUnit(u uri.URI) (UnitInfo, bool) {
	su := p.units[u]
	if su == nil {
		return UnitInfo{}, false
	}
	return su.info(p.resolver.Roots()), true
}

// GetSourceUnitList returns a snapshot of every unit, in URI order.
func (p *Program) GetSourceUnitList() []UnitInfo {
	out := make([]UnitInfo, 0, len(p.units))
	for _, u := range slices.Sorted(maps.Keys(p.units)) {
		out = append(out, p.units[u].info(p.resolver.Roots()))
	}
	return out
}

// GetDiagnostics returns the diagnostics of the last parse, bind and check
// of u, sorted by position.
func (p *Program) GetDiagnostics(u uri.URI) []*diagnostics.DiagnosticError {
	su := p.units[u]
	if su == nil {
		return nil
	}
	return su.diagnostics()
}

func (p *Program) Stats() Stats { return p.stats }

// view returns the bound view of u after bringing the program up to date.
func (p *Program) view(ctx context.Context, u uri.URI) (*evaluator.UnitView, error) {
	if err := p.sync(ctx); err != nil {
		return nil, err
	}
	su := p.units[u]
	if su == nil {
		return nil, nil
	}
	return p.ensureBound(su), nil
}

// GetType returns the type of node id of u.
func (p *Program) GetType(ctx context.Context, u uri.URI, id ast.NodeID) (typesystem.Type, error) {
	if _, err := p.view(ctx, u); err != nil {
		return typesystem.Unknown, err
	}
	return p.eval.GetType(ctx, u, id)
}

// GetTypeAtPosition returns the innermost expression or declaration at the
// 1-based line and column of u, with its type. The node is nil when
// nothing typeable is there.
func (p *Program) GetTypeAtPosition(ctx context.Context, u uri.URI, line, col int) (ast.Node, typesystem.Type, error) {
	v, err := p.view(ctx, u)
	if err != nil || v == nil {
		return nil, typesystem.Unknown, err
	}
	n := nodeAt(v, line, col)
	if n == nil {
		return nil, typesystem.Unknown, nil
	}
	t, err := p.eval.GetType(ctx, u, n.ID())
	return n, t, err
}

// nodeAt maps a position to the node whose type describes it. The name
// after a dot stands for the whole attribute access; the name of a def or
// class stands for the declaration. Keyword names have no type.
func nodeAt(v *evaluator.UnitView, line, col int) ast.Node {
	x := ast.FindNodeAt(v.Module, line, col)
	if x == nil {
		return nil
	}
	switch parent := v.Index.Parent(x.ID()).(type) {
	case *ast.AttributeExpression:
		if parent.Attr != nil && parent.Attr.ID() == x.ID() {
			return parent
		}
	case *ast.Argument:
		if parent.Name != nil && parent.Name.ID() == x.ID() {
			return nil
		}
	case *ast.FunctionDef:
		if parent.Name != nil && parent.Name.ID() == x.ID() {
			return parent
		}
	case *ast.ClassDef:
		if parent.Name != nil && parent.Name.ID() == x.ID() {
			return parent
		}
	}
	return x
}

// GetHoverText describes the node at a position: its name and type, and
// the docstring of what it refers to. Stub declarations borrow the
// docstring of their implementation.
func (p *Program) GetHoverText(ctx context.Context, u uri.URI, line, col int) (string, error) {
	n, t, err := p.GetTypeAtPosition(ctx, u, line, col)
	if err != nil || n == nil {
		return "", err
	}
	v := p.units[u].view

	var name *ast.Name
	switch n := n.(type) {
	case *ast.Name:
		name = n
	case *ast.AttributeExpression:
		name = n.Attr
	case *ast.FunctionDef:
		name = n.Name
	case *ast.ClassDef:
		name = n.Name
	}
	if name == nil {
		return typesystem.Print(t), nil
	}
	text := fmt.Sprintf("%s: %s", name.Value, typesystem.Print(t))

	var doc string
	if d := v.Bind.Declaration(n.ID()); d != nil {
		doc = p.documentation(u, d)
	} else if _, isAttr := n.(*ast.AttributeExpression); !isAttr {
		refs, err := p.eval.Declarations(ctx, u, name)
		if err != nil {
			return "", err
		}
		for _, ref := range refs {
			if doc = p.documentation(ref.Unit, ref.Decl); doc != "" {
				break
			}
		}
	}
	if doc != "" {
		text += "\n\n" + doc
	}
	return text, nil
}

func (p *Program) documentation(u uri.URI, d *symbols.Declaration) string {
	if m := p.stubMapper(u); m != nil {
		return m.Documentation(d)
	}
	su := p.units[u]
	if su == nil {
		return ""
	}
	return sourcemapper.Docstring(p.ensureBound(su), d)
}

// GetDeclarationsForName returns the declarations name, a node of u,
// refers to.
func (p *Program) GetDeclarationsForName(ctx context.Context, u uri.URI, name *ast.Name) ([]evaluator.DeclarationRef, error) {
	if _, err := p.view(ctx, u); err != nil {
		return nil, err
	}
	return p.eval.Declarations(ctx, u, name)
}

// GetDeclarationsAtPosition is GetDeclarationsForName for the name at a
// position. Declarations in stubs are followed to their implementations
// when the program holds them.
func (p *Program) GetDeclarationsAtPosition(ctx context.Context, u uri.URI, line, col int) ([]evaluator.DeclarationRef, error) {
	v, err := p.view(ctx, u)
	if err != nil || v == nil {
		return nil, err
	}
	name, ok := ast.FindNodeAt(v.Module, line, col).(*ast.Name)
	if !ok {
		return nil, nil
	}
	refs, err := p.eval.Declarations(ctx, u, name)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(refs)
	for _, ref := range refs {
		m := p.stubMapper(ref.Unit)
		if m == nil {
			continue
		}
		for _, impl := range m.FindImplementations(ref.Decl) {
			out = append(out, evaluator.DeclarationRef{Unit: impl.Unit, Decl: impl.Decl})
		}
	}
	return out, nil
}

// GetSourceMappers returns the mappers between stubs and the
// implementations they shadow. A stub u yields one mapper over every
// implementation it shadows. An implementation u yields one mapper per
// stub shadowing it, in URI order. It returns nil for units without the
// other side.
func (p *Program) GetSourceMappers(u uri.URI) []*sourcemapper.Mapper {
	su := p.units[u]
	if su == nil {
		return nil
	}
	load := func(u uri.URI) *evaluator.UnitView {
		if t := p.units[u]; t != nil {
			return p.ensureBound(t)
		}
		return nil
	}
	if su.isStub() {
		if len(su.shadows) == 0 {
			return nil
		}
		return []*sourcemapper.Mapper{sourcemapper.New(u, sortedKeys(su.shadows), load)}
	}
	var out []*sourcemapper.Mapper
	for _, stub := range sortedKeys(su.shadowedBy) {
		if t := p.units[stub]; t != nil {
			out = append(out, sourcemapper.New(stub, sortedKeys(t.shadows), load))
		}
	}
	return out
}

// stubMapper returns the mapper of stub u, or nil when u is not a stub
// shadowing anything.
func (p *Program) stubMapper(u uri.URI) *sourcemapper.Mapper {
	if su := p.units[u]; su == nil || !su.isStub() {
		return nil
	}
	if ms := p.GetSourceMappers(u); len(ms) > 0 {
		return ms[0]
	}
	return nil
}
