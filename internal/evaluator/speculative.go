package evaluator

import (
	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// overlay is the scratch context of one speculative attempt. Reads fall
// through to the enclosing overlays and then to the durable caches.
type overlay struct {
	types map[key]typesystem.Type
	diags []pendingDiag
	seen  map[diagKey]bool
}

type pendingDiag struct {
	unit uri.URI
	diag *diagnostics.DiagnosticError
}

func (o *overlay) add(u uri.URI, d *diagnostics.DiagnosticError) {
	dk := diagKey{d.Code, d.Span.Start.Offset, d.Message}
	if o.seen[dk] {
		return
	}
	o.seen[dk] = true
	o.diags = append(o.diags, pendingDiag{u, d})
}

// Speculation is a handle on a speculative context. Exactly one of Commit
// or Rollback must be called, innermost first. A suspended context is no
// longer active but keeps its results until it is committed or rolled back
// from the same parent.
type Speculation struct {
	e      *Evaluator
	o      *overlay
	parent int // len(e.overlays) when pushed
	active bool
	done   bool
}

// speculate pushes a fresh scratch context.
func (e *Evaluator) speculate() *Speculation {
	o := &overlay{types: make(map[key]typesystem.Type), seen: make(map[diagKey]bool)}
	s := &Speculation{e: e, o: o, parent: len(e.overlays), active: true}
	e.speculations++
	e.overlays = append(e.overlays, o)
	return s
}

func (s *Speculation) pop() {
	e := s.e
	n := len(e.overlays)
	assert.That(n > 0 && e.overlays[n-1] == s.o, "speculative contexts closed out of order")
	e.overlays = e.overlays[:n-1]
	s.active = false
}

// Suspend deactivates the context so a sibling can be tried next.
func (s *Speculation) Suspend() {
	if s.active {
		s.pop()
	}
}

// Rollback discards everything recorded since the context was pushed. It
// is a no-op once the context is closed, so it can be deferred.
func (s *Speculation) Rollback() {
	if s.done {
		return
	}
	if s.active {
		s.pop()
	}
	s.done = true
}

// Commit merges the context into its parent, or into the durable caches
// when it is the outermost one.
func (s *Speculation) Commit() {
	if s.done {
		return
	}
	if s.active {
		s.pop()
	}
	s.done = true
	e := s.e
	assert.That(len(e.overlays) == s.parent, "speculative context committed into a different parent")
	if n := len(e.overlays); n > 0 {
		parent := e.overlays[n-1]
		for k, t := range s.o.types {
			parent.types[k] = t
		}
		for _, p := range s.o.diags {
			parent.add(p.unit, p.diag)
		}
		return
	}
	for k, t := range s.o.types {
		e.cacheOf(k.unit).types[k] = t
	}
	for _, p := range s.o.diags {
		e.commitDiag(p.unit, p.diag)
	}
}
