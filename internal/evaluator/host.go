package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/uri"
)

// UnitView is the read-only slice of a source unit the evaluator works on.
// Views are owned by the host and never modified after publication.
type UnitView struct {
	URI         uri.URI
	Module      *ast.Module
	Index       *ast.Index
	NodeCount   int
	Bind        *symbols.Results
	BindVersion int
}

// IsStub reports whether the unit is an interface-only stub.
func (v *UnitView) IsStub() bool { return v.URI.IsStub() }

// Host is what the evaluator needs from the program that owns the units.
type Host interface {
	// View returns the parsed and bound unit, parsing and binding it on
	// first use. It returns nil for units the host cannot load.
	View(u uri.URI) *UnitView
	// ResolveImport resolves a module reference made from unit from.
	ResolveImport(from uri.URI, module string, level int) modules.Resolution
	// ChainedPredecessor returns the cell whose top-level bindings are
	// visible to u, or "".
	ChainedPredecessor(u uri.URI) uri.URI
	// Generation changes whenever any unit is re-bound or removed.
	Generation() uint64
}
