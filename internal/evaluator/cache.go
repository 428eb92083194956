package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// slot distinguishes the different questions asked about one node.
type slot uint8

const (
	slotExpr     slot = iota // type of an expression
	slotDecl                 // declared or inferred type of a declaration
	slotTypeExpr             // value of a type expression (class form)
	slotReturn               // inferred return type of a def
	slotClass                // class object of a ClassDef
	slotAssigned             // value stored by a declaration, before widening
	slotSymbol               // effective type of a symbol seen from outside its flow
)

type key struct {
	unit uri.URI
	node ast.NodeID
	slot slot
}

type diagKey struct {
	code    diagnostics.ErrorCode
	offset  int
	message string
}

// unitCache is the durable memo of one unit. It is thrown away as a whole
// when the unit is re-bound or when any unit it read from was.
type unitCache struct {
	epoch       uint64
	bindVersion int
	// deps records the epoch of every other unit's cache observed while
	// computing entries of this one.
	deps  map[uri.URI]uint64
	types map[key]typesystem.Type
	diags []*diagnostics.DiagnosticError
	seen  map[diagKey]bool

	// forward holds parsed string annotations; their node ids start after
	// the unit's own.
	forward map[ast.NodeID]ast.Expression
	nextID  ast.NodeID

	validGen   uint64
	validating bool
}

func (e *Evaluator) newCache(u uri.URI, version int) *unitCache {
	e.epoch++
	c := &unitCache{
		epoch:       e.epoch,
		bindVersion: version,
		deps:        make(map[uri.URI]uint64),
		types:       make(map[key]typesystem.Type),
		seen:        make(map[diagKey]bool),
		forward:     make(map[ast.NodeID]ast.Expression),
		validGen:    e.gen,
	}
	if v := e.host.View(u); v != nil {
		c.nextID = ast.NodeID(v.NodeCount)
	}
	e.units[u] = c
	return c
}

// cacheOf returns the valid cache of u, replacing a stale one. Validation
// runs once per host generation and recurses through recorded dependencies.
func (e *Evaluator) cacheOf(u uri.URI) *unitCache {
	version := -1
	if v := e.host.View(u); v != nil {
		version = v.BindVersion
	}
	c := e.units[u]
	if c != nil && c.bindVersion == version {
		if c.validGen == e.gen || c.validating || e.depsValid(c) {
			c.validGen = e.gen
			return c
		}
	}
	if c != nil {
		e.log.Debug("evaluator cache invalidated", "unit", u, "entries", len(c.types))
	}
	return e.newCache(u, version)
}

func (e *Evaluator) depsValid(c *unitCache) bool {
	c.validating = true
	defer func() { c.validating = false }()
	for dep, epoch := range c.deps {
		if e.cacheOf(dep).epoch != epoch {
			return false
		}
	}
	return true
}

// observe records that the frame on top of the stack read from unit u.
func (e *Evaluator) observe(u uri.URI) {
	if len(e.stack) == 0 {
		return
	}
	cur := e.stack[len(e.stack)-1].k.unit
	if cur == u {
		return
	}
	dep := e.cacheOf(u)
	e.cacheOf(cur).deps[u] = dep.epoch
}

// view returns the unit and records the read.
func (e *Evaluator) view(u uri.URI) *UnitView {
	if u == "" {
		return nil
	}
	e.observe(u)
	return e.host.View(u)
}

func (e *Evaluator) lookup(k key) (typesystem.Type, bool) {
	for i := len(e.overlays) - 1; i >= 0; i-- {
		if t, ok := e.overlays[i].types[k]; ok {
			return t, true
		}
	}
	t, ok := e.cacheOf(k.unit).types[k]
	return t, ok
}

func (e *Evaluator) store(k key, t typesystem.Type) {
	if n := len(e.overlays); n > 0 {
		e.overlays[n-1].types[k] = t
		return
	}
	e.cacheOf(k.unit).types[k] = t
}

// report attaches a diagnostic to unit u, in the innermost speculative
// context when one is active.
func (e *Evaluator) report(u uri.URI, d *diagnostics.DiagnosticError) {
	d.URI = string(u)
	if n := len(e.overlays); n > 0 {
		e.overlays[n-1].add(u, d)
		return
	}
	e.commitDiag(u, d)
}

func (e *Evaluator) commitDiag(u uri.URI, d *diagnostics.DiagnosticError) {
	c := e.cacheOf(u)
	dk := diagKey{d.Code, d.Span.Start.Offset, d.Message}
	if c.seen[dk] {
		return
	}
	c.seen[dk] = true
	c.diags = append(c.diags, d)
}

func (e *Evaluator) errorf(u uri.URI, code diagnostics.ErrorCode, n ast.Node, format string, args ...any) {
	if n == nil {
		return
	}
	e.report(u, diagnostics.Errorf(code, n.Span(), format, args...))
}

// forwardRef parses the string annotation s once per cache lifetime.
func (e *Evaluator) forwardRef(u uri.URI, s *ast.StringLiteral) ast.Expression {
	c := e.cacheOf(u)
	if x, ok := c.forward[s.ID()]; ok {
		return x
	}
	x, last, errs := parser.ParseExpression(s.Value, c.nextID)
	if len(errs) > 0 {
		x = nil
	}
	c.nextID = last
	c.forward[s.ID()] = x
	return x
}

func (e *Evaluator) entries() int {
	n := 0
	for _, c := range e.units {
		n += len(c.types)
	}
	return n
}
