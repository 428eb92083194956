// Package evaluator computes the types of expressions and declarations on
// demand. Results are memoized per unit and thrown away whenever the unit,
// or a unit it read from, is bound again.
//
// The evaluator is single-threaded. Every public method is a request
// boundary: it polls ctx at each evaluation step and returns ErrCanceled
// when the context is done. Partial results computed before cancellation
// remain cached and valid.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// ErrCanceled wraps the context error of a canceled request.
var ErrCanceled = errors.New("evaluation canceled")

// cacheCapacity is the number of memoized types reported as full usage.
const cacheCapacity = 1 << 20

type Evaluator struct {
	host Host
	log  *slog.Logger

	units map[uri.URI]*unitCache
	epoch uint64
	gen   uint64

	ctx      context.Context
	depth    int
	stack    []*frame
	inflight map[flightKey]int
	overlays []*overlay
	// speculations counts the speculative contexts ever pushed.
	speculations int
	// typeContext counts the type expressions being evaluated; inside one,
	// re-entering an alias yields a reference instead of a placeholder.
	typeContext int
}

// New returns an evaluator reading units from host. logger may be nil.
func New(host Host, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{
		host:     host,
		log:      logger,
		units:    make(map[uri.URI]*unitCache),
		inflight: make(map[flightKey]int),
	}
}

// run is the request boundary. Nested calls share the outer context.
func (e *Evaluator) run(ctx context.Context, fn func()) (err error) {
	if e.depth == 0 {
		e.ctx = ctx
		e.gen = e.host.Generation()
	}
	e.depth++
	defer func() {
		e.depth--
		if e.depth == 0 {
			e.ctx = nil
		}
		r := recover()
		if r == nil {
			return
		}
		c, ok := r.(canceled)
		if !ok || e.depth > 0 {
			panic(r)
		}
		// Unfinished hypotheses are dropped as if rolled back.
		e.overlays = nil
		e.typeContext = 0
		err = fmt.Errorf("%w: %w", ErrCanceled, c.err)
	}()
	e.checkpoint()
	fn()
	return nil
}

// GetType returns the type of the node id of unit u: the type of an
// expression, or the declared type for a declaration's key node. Unknown
// nodes and units yield Unknown.
func (e *Evaluator) GetType(ctx context.Context, u uri.URI, id ast.NodeID) (typesystem.Type, error) {
	t := typesystem.Unknown
	err := e.run(ctx, func() {
		v := e.view(u)
		if v == nil {
			return
		}
		if d := v.Bind.Declaration(id); d != nil {
			t = e.declType(v, d)
			return
		}
		if x, ok := v.Index.Node(id).(ast.Expression); ok {
			t = e.exprType(v, x, nil)
		}
	})
	return t, err
}

// DeclaredType returns the type a declaration gives its name.
func (e *Evaluator) DeclaredType(ctx context.Context, u uri.URI, d *symbols.Declaration) (typesystem.Type, error) {
	t := typesystem.Unknown
	err := e.run(ctx, func() {
		if v := e.view(u); v != nil && d != nil {
			t = e.declType(v, d)
		}
	})
	return t, err
}

// AssignedType returns the value a variable declaration stores, literal
// types included.
func (e *Evaluator) AssignedType(ctx context.Context, u uri.URI, d *symbols.Declaration) (typesystem.Type, error) {
	t := typesystem.Unknown
	err := e.run(ctx, func() {
		if v := e.view(u); v != nil && d != nil {
			t = e.assignedType(v, d)
		}
	})
	return t, err
}

// AnnotationType evaluates the annotation node id as the type of the
// values it describes.
func (e *Evaluator) AnnotationType(ctx context.Context, u uri.URI, id ast.NodeID) (typesystem.Type, error) {
	t := typesystem.Unknown
	err := e.run(ctx, func() {
		if v := e.view(u); v != nil {
			t = e.annotationType(v, id)
		}
	})
	return t, err
}

// ReturnType returns the declared return type of the def fn, or its
// inferred one when unannotated.
func (e *Evaluator) ReturnType(ctx context.Context, u uri.URI, fn *ast.FunctionDef) (typesystem.Type, error) {
	t := typesystem.Unknown
	err := e.run(ctx, func() {
		v := e.view(u)
		if v == nil || fn == nil {
			return
		}
		t = e.returnType(e.signature(v, fn))
	})
	return t, err
}

// ImportedSymbolExists reports whether the module of a from-import
// declaration has the imported name. Unresolved modules report true; they
// are diagnosed by import resolution.
func (e *Evaluator) ImportedSymbolExists(ctx context.Context, u uri.URI, d *symbols.Declaration) (bool, error) {
	found := true
	err := e.run(ctx, func() {
		v := e.view(u)
		if v == nil || d == nil || d.Kind != symbols.DeclImportFrom {
			return
		}
		_, found = e.importFromType(v, d)
	})
	return found, err
}

// Assignable reports whether a value of src may be stored where dst is
// expected.
func (e *Evaluator) Assignable(ctx context.Context, dst, src typesystem.Type) (bool, error) {
	var ok bool
	err := e.run(ctx, func() {
		ok, _ = e.relation().Assignable(dst, src)
	})
	return ok, err
}

// DeclarationRef is a declaration together with the unit it belongs to.
type DeclarationRef struct {
	Unit uri.URI
	Decl *symbols.Declaration
}

// Declarations returns the declarations a name read refers to, following
// lexical scopes, wildcard imports, chained predecessors and builtins. A
// from-import is followed to the imported module's declarations too.
func (e *Evaluator) Declarations(ctx context.Context, u uri.URI, name *ast.Name) ([]DeclarationRef, error) {
	var out []DeclarationRef
	err := e.run(ctx, func() {
		v := e.view(u)
		if v == nil || name == nil {
			return
		}
		from := v.Bind.Module().ID
		if ref, ok := v.Bind.Refs[name.ID()]; ok {
			from = ref.Scope
		} else if d := v.Bind.Declaration(name.ID()); d != nil {
			from = d.Scope
		}
		r := e.resolveName(v, from, name.Value)
		if !r.ok() {
			return
		}
		for _, d := range r.sym.Decls {
			out = append(out, DeclarationRef{r.view.URI, d})
			if d.Kind != symbols.DeclImportFrom {
				continue
			}
			res := e.host.ResolveImport(r.view.URI, d.ModuleName, d.Level)
			if !res.Resolved {
				continue
			}
			if m := e.moduleMember(res.URI, d.SymbolName); m.ok() {
				for _, md := range m.sym.Decls {
					out = append(out, DeclarationRef{m.view.URI, md})
				}
			}
		}
	})
	return out, err
}

// Diagnostics returns the evaluation diagnostics recorded for u so far.
func (e *Evaluator) Diagnostics(u uri.URI) []*diagnostics.DiagnosticError {
	var out []*diagnostics.DiagnosticError
	_ = e.run(context.Background(), func() {
		c := e.cacheOf(u)
		out = make([]*diagnostics.DiagnosticError, len(c.diags))
		copy(out, c.diags)
	})
	return out
}

// Forget drops the cache of u, for units that left the program.
func (e *Evaluator) Forget(u uri.URI) {
	delete(e.units, u)
}

// GetUsageRatio reports the memo fill level.
func (e *Evaluator) GetUsageRatio() float64 {
	r := float64(e.entries()) / cacheCapacity
	if r > 1 {
		r = 1
	}
	return r
}

// Evict drops every memoized type and evaluation diagnostic. It must not
// be called while a request is running.
func (e *Evaluator) Evict() {
	if e.depth > 0 {
		return
	}
	n := e.entries()
	e.units = make(map[uri.URI]*unitCache)
	e.log.Debug("evaluator caches evicted", "entries", n)
}

func (e *Evaluator) relation() typesystem.Relation {
	return typesystem.Relation{Expand: e.expandAlias}
}

// expandAlias returns the instance type an alias placeholder stands for.
func (e *Evaluator) expandAlias(a typesystem.TAliasRef) typesystem.Type {
	v := e.view(a.Ref.Unit)
	if v == nil {
		return typesystem.Unknown
	}
	d := v.Bind.Declaration(a.Ref.Node)
	if d == nil {
		return typesystem.Unknown
	}
	return typesystem.ToInstance(e.declType(v, d))
}
