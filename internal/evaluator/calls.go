package evaluator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/typesystem"
)

// callArg is one argument of a call. Arguments written in source carry
// their node and are evaluated against the parameter they land on;
// synthesized ones (operands of dunder calls) carry a type.
type callArg struct {
	name string
	node ast.Expression
	at   ast.Node
	t    typesystem.Type
	star bool
}

func (e *Evaluator) argType(v *UnitView, a callArg, expected typesystem.Type) typesystem.Type {
	if a.node != nil {
		return e.exprType(v, a.node, expected)
	}
	if a.t == nil {
		return typesystem.Unknown
	}
	return a.t
}

type matchResult struct {
	ret        typesystem.Type
	ok         bool
	widenings  int
	typeParams int
}

func (e *Evaluator) callType(v *UnitView, x *ast.CallExpression, expected typesystem.Type) typesystem.Type {
	callee := e.exprType(v, x.Func, nil)
	args := make([]callArg, 0, len(x.Args))
	for _, a := range x.Args {
		ca := callArg{node: a.Value, at: a, star: a.Star}
		if a.Name != nil {
			ca.name = a.Name.Value
		}
		args = append(args, ca)
	}
	return e.call(v, x, callee, args, expected)
}

// callWithTypes calls callee with positional arguments of known types.
func (e *Evaluator) callWithTypes(v *UnitView, at ast.Node, callee typesystem.Type, types []typesystem.Type) typesystem.Type {
	args := make([]callArg, len(types))
	for i, t := range types {
		args[i] = callArg{t: t, at: at}
	}
	return e.call(v, at, callee, args, nil)
}

func (e *Evaluator) call(v *UnitView, at ast.Node, callee typesystem.Type, args []callArg, expected typesystem.Type) typesystem.Type {
	switch c := e.resolveAlias(callee).(type) {
	case typesystem.TAny:
		e.evalArgs(v, args)
		return c
	case typesystem.TUnknown, typesystem.TNever:
		e.evalArgs(v, args)
		return typesystem.Unknown
	case typesystem.TFunc:
		return e.callFunc(v, at, c, args, expected)
	case typesystem.TClass:
		return e.construct(v, at, c, args, expected)
	case typesystem.TUnion:
		out := make([]typesystem.Type, 0, len(c.Types))
		for _, m := range c.Types {
			out = append(out, e.call(v, at, m, args, expected))
		}
		return typesystem.NormalizeUnion(out)
	case typesystem.TInstance, typesystem.TLiteral:
		if method, ok := e.lookupMember(c, config.CallMethodName); ok {
			return e.call(v, at, method, args, expected)
		}
	}
	e.evalArgs(v, args)
	e.errorf(v.URI, diagnostics.ErrT007, at, "%s is not callable", callee)
	return typesystem.Unknown
}

func (e *Evaluator) evalArgs(v *UnitView, args []callArg) {
	for _, a := range args {
		e.argType(v, a, nil)
	}
}

// callFunc resolves a call to a function. A single signature is matched
// directly. For an overload chain every signature is tried speculatively
// and the attempt of the best match is committed. Arguments other than
// displays are typed once, before the attempts, so nested overloaded calls
// are not re-evaluated per candidate.
func (e *Evaluator) callFunc(v *UnitView, at ast.Node, f typesystem.TFunc, args []callArg, expected typesystem.Type) typesystem.Type {
	if len(f.Signatures) == 0 {
		e.evalArgs(v, args)
		return typesystem.Unknown
	}
	if len(f.Signatures) == 1 {
		return e.matchSignature(v, at, f.Name, f.Signatures[0], args, expected).ret
	}

	for _, a := range args {
		if a.node != nil && !isDisplay(a.node) {
			e.argType(v, a, nil)
		}
	}
	type candidate struct {
		index int
		r     matchResult
		s     *Speculation
	}
	var matches []candidate
	for i, sig := range f.Signatures {
		s := e.speculate()
		r := e.matchSignature(v, at, f.Name, sig, args, expected)
		if !r.ok {
			s.Rollback()
			continue
		}
		s.Suspend()
		matches = append(matches, candidate{i, r, s})
	}
	if len(matches) == 0 {
		types := make([]string, len(args))
		for i, a := range args {
			types[i] = typesystem.StripLiteral(e.argType(v, a, nil)).String()
		}
		e.errorf(v.URI, diagnostics.ErrT005, at, "no overload of %q matches arguments (%s)", f.Name, strings.Join(types, ", "))
		return typesystem.Unknown
	}
	// Exact before widened, then fewer type parameters, then declaration
	// order.
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].r, matches[j].r
		if a.widenings != b.widenings {
			return a.widenings < b.widenings
		}
		if a.typeParams != b.typeParams {
			return a.typeParams < b.typeParams
		}
		return matches[i].index < matches[j].index
	})
	for _, m := range matches[1:] {
		m.s.Rollback()
	}
	matches[0].s.Commit()
	return matches[0].r.ret
}

// matchSignature binds args to the parameters of sig, solves its type
// parameters and checks every argument. Mismatches are reported at the
// argument, or at the call when the argument has no node.
func (e *Evaluator) matchSignature(v *UnitView, at ast.Node, name string, sig typesystem.Signature, args []callArg, expected typesystem.Type) matchResult {
	res := matchResult{ok: true, typeParams: len(sig.TypeParams)}
	fail := func(code diagnostics.ErrorCode, n ast.Node, format string, a ...any) {
		res.ok = false
		if n == nil {
			n = at
		}
		e.errorf(v.URI, code, n, format, a...)
	}

	assigned := make([]*callArg, len(sig.Params))
	varargs, kwargs := -1, -1
	positional := 0
	for i, p := range sig.Params {
		switch p.Kind {
		case typesystem.ParamVarArgs:
			varargs = i
		case typesystem.ParamKwArgs:
			kwargs = i
		default:
			positional++
		}
	}

	type extra struct {
		param int
		arg   callArg
	}
	var extras []extra
	spread := false
	next := 0
	for i := range args {
		a := args[i]
		if a.star {
			spread = true
			e.argType(v, a, nil)
			continue
		}
		if a.name != "" {
			continue
		}
		for next < len(sig.Params) && sig.Params[next].Kind != typesystem.ParamPositional {
			next++
		}
		switch {
		case next < len(sig.Params) && (varargs < 0 || next < varargs):
			assigned[next] = &args[i]
			next++
		case varargs >= 0:
			extras = append(extras, extra{varargs, a})
		default:
			e.argType(v, a, nil)
			fail(diagnostics.ErrT002, a.at, "%s expects %d positional arguments, got %d", display(name), positional, countPositional(args))
		}
	}
	for i := range args {
		a := args[i]
		if a.name == "" || a.star {
			continue
		}
		idx := -1
		for j, p := range sig.Params {
			if p.Name == a.name && p.Kind == typesystem.ParamPositional {
				idx = j
				break
			}
		}
		switch {
		case idx >= 0 && assigned[idx] != nil:
			e.argType(v, a, nil)
			fail(diagnostics.ErrT003, a.at, "%s got multiple values for argument %q", display(name), a.name)
		case idx >= 0:
			assigned[idx] = &args[i]
		case kwargs >= 0:
			extras = append(extras, extra{kwargs, a})
		default:
			e.argType(v, a, nil)
			fail(diagnostics.ErrT003, a.at, "%s got an unexpected keyword argument %q", display(name), a.name)
		}
	}
	// After a *args spread missing positionals may have been supplied.
	if !spread {
		for i, p := range sig.Params {
			if p.Kind == typesystem.ParamPositional && assigned[i] == nil && !p.HasDefault {
				fail(diagnostics.ErrT001, nil, "%s missing argument %q", display(name), p.Name)
			}
		}
	}

	solving := make(map[string]bool, len(sig.TypeParams))
	for _, tp := range sig.TypeParams {
		solving[tp.ID] = true
	}
	subst := typesystem.Subst{}
	check := func(pt typesystem.Type, a callArg) {
		want := typesystem.Apply(pt, subst)
		var hint typesystem.Type
		if len(want.FreeTypeVariables()) == 0 || len(solving) == 0 {
			hint = want
		}
		t := e.argType(v, a, hint)
		if len(solving) > 0 {
			e.infer(pt, t, solving, subst)
			want = typesystem.Apply(pt, subst)
		}
		ok, w := e.relation().Assignable(e.upperBound(want, solving), t)
		if !ok {
			param := a.name
			if param == "" {
				param = "argument"
			} else {
				param = fmt.Sprintf("argument %q", param)
			}
			fail(diagnostics.ErrT004, a.at, "%s of %s: expected %s, got %s", param, display(name), want, t)
			return
		}
		res.widenings += w
	}
	for i, a := range assigned {
		if a == nil {
			continue
		}
		arg := *a
		if arg.name == "" {
			arg.name = sig.Params[i].Name
		}
		check(sig.Params[i].Type, arg)
	}
	for _, x := range extras {
		check(sig.Params[x.param].Type, x.arg)
	}

	ret := e.returnType(sig)
	if len(solving) > 0 {
		if expected != nil && sig.Return != nil {
			e.infer(sig.Return, expected, solving, subst)
		}
		for id := range solving {
			if _, ok := subst[id]; !ok {
				subst[id] = typesystem.Unknown
			}
		}
		ret = typesystem.Apply(ret, subst)
	}
	res.ret = ret
	return res
}

// upperBound replaces unsolved type parameters by their bounds.
func (e *Evaluator) upperBound(t typesystem.Type, solving map[string]bool) typesystem.Type {
	s := typesystem.Subst{}
	for _, tv := range t.FreeTypeVariables() {
		if !solving[tv.ID] {
			continue
		}
		if tv.Bound != nil {
			s[tv.ID] = tv.Bound
		} else {
			s[tv.ID] = typesystem.TAny{}
		}
	}
	return typesystem.Apply(t, s)
}

// infer binds the type parameters of pattern that actual determines. The
// first binding of a parameter wins.
func (e *Evaluator) infer(pattern, actual typesystem.Type, solving map[string]bool, subst typesystem.Subst) {
	e.inferDepth(pattern, actual, solving, subst, 0)
}

func (e *Evaluator) inferDepth(pattern, actual typesystem.Type, solving map[string]bool, subst typesystem.Subst, depth int) {
	if depth > config.MaxTypeRecursionDepth || pattern == nil || actual == nil {
		return
	}
	actual = e.resolveAlias(actual)
	switch p := pattern.(type) {
	case typesystem.TVar:
		if !solving[p.ID] {
			return
		}
		if _, bound := subst[p.ID]; bound {
			return
		}
		if typesystem.IsUnknown(actual) {
			return
		}
		subst[p.ID] = typesystem.StripLiteral(actual)
	case typesystem.TInstance:
		ac, ok := typesystem.ClassOf(actual)
		if !ok {
			return
		}
		base, ok := typesystem.FindBase(ac, p.Class.Ref)
		if !ok {
			return
		}
		for i, pa := range p.Class.TypeArgs {
			if i < len(base.TypeArgs) {
				e.inferDepth(pa, base.TypeArgs[i], solving, subst, depth+1)
			}
		}
	case typesystem.TClass:
		if ac, ok := actual.(typesystem.TClass); ok {
			for i, pa := range p.TypeArgs {
				if i < len(ac.TypeArgs) {
					e.inferDepth(pa, ac.TypeArgs[i], solving, subst, depth+1)
				}
			}
		}
	case typesystem.TUnion:
		// T | None against int | None binds T to int.
		var rest []typesystem.Type
		var vars []typesystem.Type
		for _, m := range p.Types {
			if tv, ok := m.(typesystem.TVar); ok && solving[tv.ID] {
				vars = append(vars, m)
			} else {
				rest = append(rest, m)
			}
		}
		var left []typesystem.Type
		for _, am := range typesystem.Members(actual) {
			matched := false
			for _, r := range rest {
				if ok, _ := e.relation().Assignable(r, am); ok {
					matched = true
					break
				}
			}
			if !matched {
				left = append(left, am)
			}
		}
		if len(vars) == 1 && len(left) > 0 {
			e.inferDepth(vars[0], typesystem.NormalizeUnion(left), solving, subst, depth+1)
		}
	case typesystem.TFunc:
		af, ok := actual.(typesystem.TFunc)
		if !ok || len(p.Signatures) != 1 || len(af.Signatures) == 0 {
			return
		}
		ps, as := p.Signatures[0], af.Signatures[0]
		for i, pp := range ps.Params {
			if i < len(as.Params) {
				e.inferDepth(pp.Type, as.Params[i].Type, solving, subst, depth+1)
			}
		}
		if ps.Return != nil {
			e.inferDepth(ps.Return, e.returnType(as), solving, subst, depth+1)
		}
	}
}

// construct evaluates a call of a class object: its __init__ is matched
// with the class type parameters solved alongside, and the result is an
// instance.
func (e *Evaluator) construct(v *UnitView, at ast.Node, cls typesystem.TClass, args []callArg, expected typesystem.Type) typesystem.Type {
	result := typesystem.TInstance{Class: cls}
	generic := len(cls.Params) > 0 && len(cls.TypeArgs) == 0
	if generic {
		result = selfType(cls).(typesystem.TInstance)
	}

	init, _, ok := e.findAttr(result.Class, config.InitMethodName, false)
	f, isFunc := init.(typesystem.TFunc)
	if !ok || !isFunc {
		e.evalArgs(v, args)
		return e.fallbackInstance(cls, generic)
	}
	bound := e.bindMethod(f)
	for i := range bound.Signatures {
		sig := &bound.Signatures[i]
		sig.Return = result
		if generic {
			sig.TypeParams = append(append([]typesystem.TVar(nil), sig.TypeParams...), cls.Params...)
		}
	}
	if bound.Name == "" || bound.Name == config.InitMethodName {
		bound.Name = cls.Name
	}
	return e.callFunc(v, at, bound, args, expected)
}

func (e *Evaluator) fallbackInstance(cls typesystem.TClass, generic bool) typesystem.Type {
	if generic {
		args := make([]typesystem.Type, len(cls.Params))
		for i := range args {
			args[i] = typesystem.Unknown
		}
		cls = typesystem.Specialize(cls, args)
	}
	return typesystem.TInstance{Class: cls}
}

func display(name string) string {
	if name == "" {
		return "call"
	}
	return fmt.Sprintf("%q", name)
}

func countPositional(args []callArg) int {
	n := 0
	for _, a := range args {
		if a.name == "" && !a.star {
			n++
		}
	}
	return n
}
