package evaluator

import (
	"fmt"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

const slotSignature slot = slotSymbol + 1

// declType is the type a declaration gives its name: the annotation when
// there is one, otherwise the inferred value with literals widened.
func (e *Evaluator) declType(v *UnitView, d *symbols.Declaration) typesystem.Type {
	k := key{v.URI, d.Node, slotDecl}
	return e.evaluate(k, func() typesystem.Type {
		return e.computeDeclType(v, d)
	}, func() typesystem.Type {
		if e.typeContext > 0 && isAliasCandidate(v, d) {
			return typesystem.TAliasRef{Name: d.Name, Ref: typesystem.DeclRef{Unit: v.URI, Node: d.Node}}
		}
		return pending()
	})
}

// isAliasCandidate reports an unannotated module or class level
// assignment, the only shape that can define a type alias.
func isAliasCandidate(v *UnitView, d *symbols.Declaration) bool {
	if d.Kind != symbols.DeclVariable || d.Annotation != 0 || d.Source != symbols.SourceAssign || len(d.Unpack) > 0 {
		return false
	}
	s := v.Bind.Scope(d.Scope)
	return s != nil && (s.Kind == symbols.ScopeModule || s.Kind == symbols.ScopeClass)
}

func (e *Evaluator) computeDeclType(v *UnitView, d *symbols.Declaration) typesystem.Type {
	switch d.Kind {
	case symbols.DeclVariable:
		if d.Annotation != 0 {
			return e.annotationType(v, d.Annotation)
		}
		return typesystem.StripLiteral(e.assignedType(v, d))
	case symbols.DeclParam:
		return e.paramType(v, d)
	case symbols.DeclFunction:
		return e.functionType(v, d)
	case symbols.DeclClass:
		cd, ok := v.Index.Node(d.Node).(*ast.ClassDef)
		if !ok {
			return typesystem.Unknown
		}
		return e.classType(v, cd)
	case symbols.DeclImport:
		res := e.host.ResolveImport(v.URI, d.ModuleName, 0)
		if !res.Resolved {
			return typesystem.Unknown
		}
		e.observe(res.URI)
		return typesystem.TModule{Name: d.ModuleName, URI: res.URI}
	case symbols.DeclImportFrom:
		t, _ := e.importFromType(v, d)
		return t
	case symbols.DeclTypeParam:
		tp, ok := v.Index.Node(d.Node).(*ast.TypeParam)
		if !ok {
			return typesystem.Unknown
		}
		tv := typesystem.TVar{Name: d.Name, ID: fmt.Sprintf("%s#%d", v.URI, d.Node)}
		if tp.Bound != nil {
			tv.Bound = e.annotationType(v, tp.Bound.ID())
		}
		return tv
	default:
		assert.Unreachable(d.Kind)
	}
	return typesystem.Unknown
}

// annotationType evaluates the annotation node id as the type of values
// it describes.
func (e *Evaluator) annotationType(v *UnitView, id ast.NodeID) typesystem.Type {
	x, ok := v.Index.Node(id).(ast.Expression)
	if !ok {
		return typesystem.Unknown
	}
	return typesystem.ToInstance(e.typeExpr(v, x, symbols.NoScope, nil))
}

// importFromType resolves `from m import name`. found is false when the
// module resolved but has neither a symbol nor a submodule of that name.
func (e *Evaluator) importFromType(v *UnitView, d *symbols.Declaration) (t typesystem.Type, found bool) {
	res := e.host.ResolveImport(v.URI, d.ModuleName, d.Level)
	if !res.Resolved {
		return typesystem.Unknown, true
	}
	if r := e.moduleMember(res.URI, d.SymbolName); r.ok() {
		return e.symbolType(r), true
	}
	sub := e.host.ResolveImport(v.URI, modules.JoinModule(d.ModuleName, d.SymbolName), d.Level)
	if sub.Resolved {
		e.observe(sub.URI)
		return typesystem.TModule{Name: modules.JoinModule(d.ModuleName, d.SymbolName), URI: sub.URI}, true
	}
	return typesystem.Unknown, false
}

// assignedType is the value a declaration stores, before literal widening.
func (e *Evaluator) assignedType(v *UnitView, d *symbols.Declaration) typesystem.Type {
	if d.Kind != symbols.DeclVariable {
		return e.declType(v, d)
	}
	k := key{v.URI, d.Node, slotAssigned}
	return e.evaluate(k, func() typesystem.Type {
		value, _ := v.Index.Node(d.Value).(ast.Expression)
		switch d.Source {
		case symbols.SourceNone:
			if d.Annotation != 0 {
				return e.annotationType(v, d.Annotation)
			}
			return typesystem.Unknown
		case symbols.SourceAssign:
			var expected typesystem.Type
			if d.Annotation != 0 && len(d.Unpack) == 0 {
				expected = e.annotationType(v, d.Annotation)
			}
			return e.unpack(e.exprType(v, value, expected), d.Unpack)
		case symbols.SourceIterate:
			return e.unpack(e.iterType(e.exprType(v, value, nil)), d.Unpack)
		case symbols.SourceAugAssign:
			stmt, ok := v.Index.Node(d.Stmt).(*ast.AugAssignStatement)
			if !ok {
				return typesystem.Unknown
			}
			target, _ := stmt.Target.(*ast.Name)
			if target == nil {
				return typesystem.Unknown
			}
			return e.binaryOp(v, stmt, augOp(stmt.Op), e.nameType(v, target), e.exprType(v, value, nil))
		default:
			assert.Unreachable(d.Source)
		}
		return typesystem.Unknown
	}, nil)
}

// unpack follows a tuple index path, falling back to the iterated element
// type for non-tuples.
func (e *Evaluator) unpack(t typesystem.Type, path []int) typesystem.Type {
	for _, i := range path {
		inst, ok := t.(typesystem.TInstance)
		if ok && typesystem.IsBuiltin(inst.Class, config.TupleTypeName) && len(inst.Class.TypeArgs) > 0 {
			if i < len(inst.Class.TypeArgs) {
				t = inst.Class.TypeArgs[i]
			} else {
				t = typesystem.Unknown
			}
			continue
		}
		t = e.iterType(t)
	}
	return t
}

// declaredSymbolType is the annotation-declared type of sym, or nil when
// no declaration carries an annotation.
func (e *Evaluator) declaredSymbolType(v *UnitView, sym *symbols.Symbol) typesystem.Type {
	for i := len(sym.Decls) - 1; i >= 0; i-- {
		d := sym.Decls[i]
		if (d.Kind == symbols.DeclVariable || d.Kind == symbols.DeclParam) && d.Annotation != 0 {
			return e.declType(v, d)
		}
	}
	return nil
}

// symbolType is the type of a symbol read from outside its own flow: the
// declared type, or the last definition for defs, classes and imports, or
// the union of every assignment.
func (e *Evaluator) symbolType(r symbolRef) typesystem.Type {
	if len(r.sym.Decls) == 0 {
		return typesystem.Unknown
	}
	k := key{r.view.URI, r.sym.Decls[0].Node, slotSymbol}
	return e.evaluate(k, func() typesystem.Type {
		if t := e.declaredSymbolType(r.view, r.sym); t != nil {
			return t
		}
		last := r.sym.Last()
		if last.Kind != symbols.DeclVariable {
			return e.declType(r.view, last)
		}
		var types []typesystem.Type
		for _, d := range r.sym.Decls {
			if d.Kind == symbols.DeclVariable {
				types = append(types, e.declType(r.view, d))
			}
		}
		return typesystem.NormalizeUnion(types)
	}, func() typesystem.Type {
		// Alias placeholders are produced by the declaration itself.
		if e.typeContext > 0 && len(r.sym.Decls) == 1 && isAliasCandidate(r.view, r.sym.Decls[0]) {
			d := r.sym.Decls[0]
			return typesystem.TAliasRef{Name: d.Name, Ref: typesystem.DeclRef{Unit: r.view.URI, Node: d.Node}}
		}
		return pending()
	})
}

// classType builds the class object of cd.
func (e *Evaluator) classType(v *UnitView, cd *ast.ClassDef) typesystem.Type {
	k := key{v.URI, cd.ID(), slotClass}
	return e.evaluate(k, func() typesystem.Type {
		cls := typesystem.TClass{Ref: typesystem.DeclRef{Unit: v.URI, Node: cd.ID()}}
		if cd.Name != nil {
			cls.Name = cd.Name.Value
		}
		for _, tp := range cd.TypeParams {
			if tv, ok := e.typeParam(v, tp); ok {
				cls.Params = append(cls.Params, tv)
			}
		}
		for _, b := range cd.Bases {
			if bc, ok := e.typeExpr(v, b, symbols.NoScope, nil).(typesystem.TClass); ok {
				cls.Bases = append(cls.Bases, bc)
			}
		}
		if len(cls.Bases) == 0 && !(v.URI == uri.Builtins && cls.Name == config.ObjectTypeName) {
			if obj, ok := e.builtinClass(config.ObjectTypeName); ok {
				cls.Bases = []typesystem.TClass{obj}
			}
		}
		return cls
	}, nil)
}

func (e *Evaluator) typeParam(v *UnitView, tp *ast.TypeParam) (typesystem.TVar, bool) {
	d := v.Bind.Declaration(tp.ID())
	if d == nil {
		return typesystem.TVar{}, false
	}
	tv, ok := e.declType(v, d).(typesystem.TVar)
	return tv, ok
}

// selfType is the instance type seen inside the body of cls.
func selfType(cls typesystem.TClass) typesystem.Type {
	if len(cls.Params) > 0 {
		args := make([]typesystem.Type, len(cls.Params))
		for i, p := range cls.Params {
			args[i] = p
		}
		cls = typesystem.Specialize(cls, args)
	}
	return typesystem.TInstance{Class: cls}
}

// enclosingClassDef returns the class a def is a method of.
func enclosingClassDef(v *UnitView, fn *ast.FunctionDef) *ast.ClassDef {
	scope, ok := v.Bind.NodeScope[fn.ID()]
	if !ok {
		return nil
	}
	cls := v.Bind.EnclosingClass(scope)
	if cls == nil {
		return nil
	}
	cd, _ := v.Index.Node(cls.Node).(*ast.ClassDef)
	return cd
}

func hasDecorator(decorators []ast.Expression, name string) bool {
	for _, d := range decorators {
		switch d := d.(type) {
		case *ast.Name:
			if d.Value == name {
				return true
			}
		case *ast.AttributeExpression:
			if d.Attr != nil && d.Attr.Value == name {
				return true
			}
		}
	}
	return false
}

// signature builds the single call signature of fn, unbound.
func (e *Evaluator) signature(v *UnitView, fn *ast.FunctionDef) typesystem.Signature {
	k := key{v.URI, fn.ID(), slotSignature}
	t := e.evaluate(k, func() typesystem.Type {
		return typesystem.TFunc{Name: fnName(fn), Signatures: []typesystem.Signature{e.buildSignature(v, fn)}}
	}, nil)
	if f, ok := t.(typesystem.TFunc); ok && len(f.Signatures) == 1 {
		return f.Signatures[0]
	}
	return typesystem.Signature{Decl: typesystem.DeclRef{Unit: v.URI, Node: fn.ID()}, Return: typesystem.Unknown}
}

func fnName(fn *ast.FunctionDef) string {
	if fn.Name == nil {
		return ""
	}
	return fn.Name.Value
}

func (e *Evaluator) buildSignature(v *UnitView, fn *ast.FunctionDef) typesystem.Signature {
	sig := typesystem.Signature{Decl: typesystem.DeclRef{Unit: v.URI, Node: fn.ID()}}
	for _, tp := range fn.TypeParams {
		if tv, ok := e.typeParam(v, tp); ok {
			sig.TypeParams = append(sig.TypeParams, tv)
		}
	}
	cd := enclosingClassDef(v, fn)
	static := hasDecorator(fn.Decorators, "staticmethod")

	for i, p := range fn.Params {
		param := typesystem.Param{HasDefault: p.Default != nil, Kind: paramKind(p.Kind)}
		if p.Name != nil {
			param.Name = p.Name.Value
		}
		switch {
		case p.Annotation != nil:
			param.Type = e.annotationType(v, p.Annotation.ID())
		case i == 0 && cd != nil && !static && p.Kind == ast.ParamPositional:
			if cls, ok := e.classType(v, cd).(typesystem.TClass); ok {
				param.Type = selfType(cls)
			}
		case p.Default != nil:
			if _, none := p.Default.(*ast.NoneLiteral); !none {
				param.Type = typesystem.StripLiteral(e.exprType(v, p.Default, nil))
			}
		}
		if param.Type == nil {
			param.Type = typesystem.Unknown
		}
		sig.Params = append(sig.Params, param)
	}

	switch {
	case fn.Returns != nil:
		sig.Return = e.annotationType(v, fn.Returns.ID())
	case v.IsStub():
		sig.Return = typesystem.Unknown
	}
	return sig
}

func paramKind(k ast.ParamKind) typesystem.ParamKind {
	switch k {
	case ast.ParamVarArgs:
		return typesystem.ParamVarArgs
	case ast.ParamKwArgs:
		return typesystem.ParamKwArgs
	}
	return typesystem.ParamPositional
}

// functionType is the type of a def including its overload chain: a run of
// @overload defs makes one function, and an implementation that follows
// the run is hidden behind it.
func (e *Evaluator) functionType(v *UnitView, d *symbols.Declaration) typesystem.Type {
	fn, ok := v.Index.Node(d.Node).(*ast.FunctionDef)
	if !ok {
		return typesystem.Unknown
	}
	chain := []*ast.FunctionDef{fn}
	if scope := v.Bind.Scope(d.Scope); scope != nil {
		if sym := scope.Lookup(d.Name); sym != nil {
			chain = overloadChain(v, sym, d)
		}
	}
	f := typesystem.TFunc{Name: d.Name}
	for _, def := range chain {
		f.Signatures = append(f.Signatures, e.signature(v, def))
	}
	return f
}

func overloadChain(v *UnitView, sym *symbols.Symbol, d *symbols.Declaration) []*ast.FunctionDef {
	idx := -1
	for i, x := range sym.Decls {
		if x == d {
			idx = i
			break
		}
	}
	self, _ := v.Index.Node(d.Node).(*ast.FunctionDef)
	if idx < 0 || self == nil {
		return []*ast.FunctionDef{self}
	}
	isOverload := func(x *symbols.Declaration) (*ast.FunctionDef, bool) {
		if x.Kind != symbols.DeclFunction {
			return nil, false
		}
		def, ok := v.Index.Node(x.Node).(*ast.FunctionDef)
		return def, ok && hasDecorator(def.Decorators, config.OverloadDecorator)
	}

	var run []*ast.FunctionDef
	start := idx - 1
	if _, ok := isOverload(d); ok {
		start = idx
	}
	for i := start; i >= 0; i-- {
		def, ok := isOverload(sym.Decls[i])
		if !ok {
			break
		}
		run = append([]*ast.FunctionDef{def}, run...)
	}
	if len(run) == 0 {
		return []*ast.FunctionDef{self}
	}
	return run
}

// paramType is the type of a parameter inside the function body.
func (e *Evaluator) paramType(v *UnitView, d *symbols.Declaration) typesystem.Type {
	p, ok := v.Index.Node(d.Stmt).(*ast.Param)
	if !ok {
		return typesystem.Unknown
	}
	fn, ok := v.Index.Parent(p.ID()).(*ast.FunctionDef)
	if !ok {
		return typesystem.Unknown
	}
	sig := e.signature(v, fn)
	var t typesystem.Type = typesystem.Unknown
	for _, sp := range sig.Params {
		if sp.Name == d.Name {
			t = sp.Type
			break
		}
	}
	switch p.Kind {
	case ast.ParamVarArgs:
		if tuple, ok := e.builtinClass(config.TupleTypeName); ok {
			return typesystem.TInstance{Class: tuple}
		}
	case ast.ParamKwArgs:
		if dict, ok := e.builtinClass(config.DictTypeName); ok {
			return typesystem.TInstance{Class: typesystem.Specialize(dict, []typesystem.Type{e.builtinInstance(config.StrTypeName), t})}
		}
	}
	return t
}

// returnType is the return type of sig, inferring it from the body when
// not annotated.
func (e *Evaluator) returnType(sig typesystem.Signature) typesystem.Type {
	if sig.Return != nil {
		return sig.Return
	}
	v := e.view(sig.Decl.Unit)
	if v == nil {
		return typesystem.Unknown
	}
	fn, ok := v.Index.Node(sig.Decl.Node).(*ast.FunctionDef)
	if !ok {
		return typesystem.Unknown
	}
	return typesystem.Apply(e.inferReturn(v, fn), sig.Subst)
}

// inferReturn unions the values of every reachable return statement, plus
// None when control can fall off the end.
func (e *Evaluator) inferReturn(v *UnitView, fn *ast.FunctionDef) typesystem.Type {
	k := key{v.URI, fn.ID(), slotReturn}
	return e.evaluate(k, func() typesystem.Type {
		info := v.Bind.Functions[fn.ID()]
		if info == nil {
			return typesystem.Unknown
		}
		var types []typesystem.Type
		for _, id := range info.Returns {
			if v.Bind.Unreachable[id] {
				continue
			}
			rs, ok := v.Index.Node(id).(*ast.ReturnStatement)
			if !ok {
				continue
			}
			if rs.Value == nil {
				types = append(types, e.noneInstance())
				continue
			}
			types = append(types, typesystem.StripLiteral(e.exprType(v, rs.Value, nil)))
		}
		if info.EndReachable {
			types = append(types, e.noneInstance())
		}
		return typesystem.NormalizeUnion(types)
	}, nil)
}

// builtinClass returns a class object declared by the builtins stub.
func (e *Evaluator) builtinClass(name string) (typesystem.TClass, bool) {
	bv := e.view(uri.Builtins)
	if bv == nil {
		return typesystem.TClass{}, false
	}
	sym := bv.Bind.Module().Lookup(name)
	if sym == nil {
		return typesystem.TClass{}, false
	}
	cls, ok := e.symbolType(symbolRef{bv, bv.Bind.Module(), sym}).(typesystem.TClass)
	return cls, ok
}

func (e *Evaluator) builtinInstance(name string) typesystem.Type {
	if cls, ok := e.builtinClass(name); ok {
		return typesystem.TInstance{Class: cls}
	}
	return typesystem.Unknown
}

func (e *Evaluator) noneInstance() typesystem.Type {
	return e.builtinInstance(config.NoneTypeName)
}
