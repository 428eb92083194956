package evaluator

import (
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/typesystem"
)

// flightKey identifies an in-flight evaluation. The speculative depth is
// part of the key: the same node may be evaluated again inside a
// hypothesis while its durable evaluation is still on the stack.
type flightKey struct {
	k    key
	spec int
}

type frame struct {
	k key
	// incomplete frames saw a placeholder for an outer frame and are not
	// memoized; they are recomputed on the next request.
	incomplete bool
}

// canceled is the panic value used to unwind to the public boundary.
type canceled struct{ err error }

// checkpoint polls the cancellation token.
func (e *Evaluator) checkpoint() {
	if e.ctx == nil {
		return
	}
	if err := e.ctx.Err(); err != nil {
		panic(canceled{err})
	}
}

// pending is the placeholder handed out on re-entry.
func pending() typesystem.Type { return typesystem.TUnknown{Pending: true} }

// evaluate memoizes compute under k. Re-entering k while it is in flight
// yields onCycle (a pending placeholder when nil) and marks every frame
// above the first occurrence incomplete.
func (e *Evaluator) evaluate(k key, compute func() typesystem.Type, onCycle func() typesystem.Type) typesystem.Type {
	e.checkpoint()
	e.observe(k.unit)
	if t, ok := e.lookup(k); ok {
		return t
	}

	fk := flightKey{k, len(e.overlays)}
	if i, busy := e.inflight[fk]; busy {
		for _, f := range e.stack[i+1:] {
			f.incomplete = true
		}
		if onCycle != nil {
			return onCycle()
		}
		return pending()
	}
	if len(e.stack) >= config.MaxEvaluationDepth {
		for _, f := range e.stack {
			f.incomplete = true
		}
		return typesystem.Unknown
	}

	f := &frame{k: k}
	e.inflight[fk] = len(e.stack)
	e.stack = append(e.stack, f)
	defer func() {
		e.stack = e.stack[:len(e.stack)-1]
		delete(e.inflight, fk)
	}()

	t := compute()
	if t == nil {
		t = typesystem.Unknown
	}
	if !f.incomplete {
		t = settle(t)
		e.store(k, t)
	}
	return t
}

// settle turns a leftover placeholder into a plain Unknown. A frame whose
// value is only its own placeholder (`X = X`) resolves to Unknown.
func settle(t typesystem.Type) typesystem.Type {
	if u, ok := t.(typesystem.TUnknown); ok && u.Pending {
		return typesystem.Unknown
	}
	return t
}
