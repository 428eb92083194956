package binder

import (
	"strings"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
)

func (b *binder) bindStatements(stmts []ast.Statement) {
	for _, s := range stmts {
		b.bindStatement(s)
	}
}

func (b *binder) bindStatement(s ast.Statement) {
	if b.flow == symbols.FlowUnreachable {
		b.res.Unreachable[s.ID()] = true
	}

	switch s := s.(type) {
	case *ast.ExpressionStatement:
		b.walk(s.X)

	case *ast.AssignStatement:
		if s.Annotation != nil {
			b.walk(s.Annotation)
		}
		t := target{stmt: s.ID(), annotation: nodeID(s.Annotation), source: symbols.SourceNone}
		if s.Value != nil {
			b.walk(s.Value)
			t.value = s.Value.ID()
			t.source = symbols.SourceAssign
		}
		b.bindTarget(s.Target, t)

	case *ast.AugAssignStatement:
		if name, ok := s.Target.(*ast.Name); ok {
			b.load(name)
			b.walk(s.Value)
			b.declare(&symbols.Declaration{
				Kind:   symbols.DeclVariable,
				Name:   name.Value,
				Node:   name.ID(),
				Stmt:   s.ID(),
				Span:   name.Span(),
				Value:  nodeID(s.Value),
				Source: symbols.SourceAugAssign,
			}, true)
			return
		}
		b.walk(s.Target)
		b.walk(s.Value)

	case *ast.FunctionDef:
		b.bindFunctionDef(s)

	case *ast.ClassDef:
		b.bindClassDef(s)

	case *ast.IfStatement:
		then, els, post := &label{}, &label{}, &label{}
		b.bindCondition(s.Cond, then, els)
		b.flow = b.finish(then)
		b.bindStatements(s.Body)
		post.add(b.flow)
		b.flow = b.finish(els)
		b.bindStatements(s.Else)
		post.add(b.flow)
		b.flow = b.finish(post)

	case *ast.WhileStatement:
		head := b.loopHead()
		b.flow = head
		body, els, post := &label{}, &label{}, &label{}
		b.bindCondition(s.Cond, body, els)
		b.bindLoopBody(head, post, body, s.Body)
		b.flow = b.finish(els)
		b.bindStatements(s.Else)
		post.add(b.flow)
		b.flow = b.finish(post)

	case *ast.ForStatement:
		b.walk(s.Iter)
		head := b.loopHead()
		b.flow = head
		post := &label{}
		enter := &label{}
		enter.add(head)
		b.bindLoopBody(head, post, enter, s.Body, func() {
			b.bindTarget(s.Target, target{stmt: s.ID(), value: nodeID(s.Iter), source: symbols.SourceIterate})
		})
		b.flow = head
		b.bindStatements(s.Else)
		post.add(b.flow)
		b.flow = b.finish(post)

	case *ast.ReturnStatement:
		if b.fnInfo == nil {
			b.res.Diagnostics = append(b.res.Diagnostics,
				diagnostics.NewError(diagnostics.ErrB004, s.Span(), "'return' outside function"))
		}
		if s.Value != nil {
			b.walk(s.Value)
		}
		if b.fnInfo != nil && b.flow != symbols.FlowUnreachable {
			b.fnInfo.Returns = append(b.fnInfo.Returns, s.ID())
		}
		b.flow = symbols.FlowUnreachable

	case *ast.BreakStatement:
		if b.loop != nil {
			b.loop.breaks.add(b.flow)
		}
		b.flow = symbols.FlowUnreachable

	case *ast.ContinueStatement:
		if b.loop != nil {
			b.addBackEdge(b.loop.head, b.flow)
		}
		b.flow = symbols.FlowUnreachable

	case *ast.PassStatement:

	case *ast.ImportStatement:
		b.bindImport(s)

	case *ast.ImportFromStatement:
		b.bindImportFrom(s)

	case *ast.GlobalStatement:
		cur := b.current()
		if cur.Kind == symbols.ScopeModule {
			return
		}
		if cur.Globals == nil {
			cur.Globals = make(map[string]bool)
		}
		for _, n := range s.Names {
			cur.Globals[n.Value] = true
		}

	case *ast.NonlocalStatement:
		cur := b.current()
		for _, n := range s.Names {
			if cur.Kind != symbols.ScopeFunction {
				b.res.Diagnostics = append(b.res.Diagnostics,
					diagnostics.NewError(diagnostics.ErrB003, n.Span(), "nonlocal declaration not allowed at module level"))
				continue
			}
			if b.nonlocalOwner(cur, n.Value) == nil {
				b.res.Diagnostics = append(b.res.Diagnostics,
					diagnostics.Errorf(diagnostics.ErrB003, n.Span(), "no binding for nonlocal %q found", n.Value))
				continue
			}
			if cur.Nonlocals == nil {
				cur.Nonlocals = make(map[string]bool)
			}
			cur.Nonlocals[n.Value] = true
		}

	case *ast.ErrorStatement:
		for _, e := range s.Partial {
			b.walk(e)
		}

	default:
		assert.Unreachable(s)
	}
}

// bindLoopBody binds body entered through enter, with break going to post
// and continue (and falling off the end) going back to head. prologue runs
// first inside the body flow, for loop target assignment.
func (b *binder) bindLoopBody(head symbols.FlowID, post, enter *label, body []ast.Statement, prologue ...func()) {
	saved := b.loop
	b.loop = &loop{head: head, breaks: post}
	b.flow = b.finish(enter)
	for _, f := range prologue {
		f()
	}
	b.bindStatements(body)
	b.addBackEdge(head, b.flow)
	b.loop = saved
}

func (b *binder) bindFunctionDef(s *ast.FunctionDef) {
	for _, d := range s.Decorators {
		b.walk(d)
	}
	for _, p := range s.Params {
		if p.Default != nil {
			b.walk(p.Default)
		}
	}

	annScope := b.scope
	if len(s.TypeParams) > 0 {
		tp := b.res.AddScope(symbols.ScopeTypeParams, b.scope, s.ID())
		b.declareTypeParams(tp, s.TypeParams)
		annScope = tp.ID
	}
	b.withScope(annScope, func() {
		for _, p := range s.Params {
			if p.Annotation != nil {
				b.walk(p.Annotation)
			}
		}
		if s.Returns != nil {
			b.walk(s.Returns)
		}
	})
	fnScope := b.res.AddScope(symbols.ScopeFunction, annScope, s.ID())

	if s.Name != nil {
		b.declare(&symbols.Declaration{
			Kind: symbols.DeclFunction,
			Name: s.Name.Value,
			Node: s.ID(),
			Stmt: s.ID(),
			Span: s.Name.Span(),
		}, true)
	}

	var method *ast.FunctionDef
	if b.current().Kind == symbols.ScopeClass {
		method = s
	}
	b.deferred = append(b.deferred, func() { b.bindFunctionBody(s, fnScope, method) })
}

func (b *binder) bindFunctionBody(s *ast.FunctionDef, scope *symbols.Scope, method *ast.FunctionDef) {
	saved := b.save()
	defer b.restore(saved)

	info := &symbols.FunctionInfo{Scope: scope.ID}
	b.res.Functions[s.ID()] = info
	b.scope = scope.ID
	b.fnInfo = info
	b.method = method
	b.loop = nil
	b.flow = b.startFlow(scope.ID, symbols.FlowUnreachable)

	for _, p := range s.Params {
		if p.Name == nil {
			continue
		}
		b.declare(&symbols.Declaration{
			Kind:       symbols.DeclParam,
			Name:       p.Name.Value,
			Node:       p.Name.ID(),
			Stmt:       p.ID(),
			Span:       p.Name.Span(),
			Annotation: nodeID(p.Annotation),
			Value:      nodeID(p.Default),
		}, true)
	}
	b.bindStatements(s.Body)
	info.EndReachable = b.flow != symbols.FlowUnreachable
}

func (b *binder) bindClassDef(s *ast.ClassDef) {
	for _, d := range s.Decorators {
		b.walk(d)
	}
	baseScope := b.scope
	if len(s.TypeParams) > 0 {
		tp := b.res.AddScope(symbols.ScopeTypeParams, b.scope, s.ID())
		b.declareTypeParams(tp, s.TypeParams)
		baseScope = tp.ID
	}
	b.withScope(baseScope, func() {
		for _, base := range s.Bases {
			b.walk(base)
		}
	})

	cls := b.res.AddScope(symbols.ScopeClass, baseScope, s.ID())
	saved := b.save()
	b.scope = cls.ID
	b.fnInfo = nil
	b.method = nil
	b.loop = nil
	if b.flow != symbols.FlowUnreachable {
		b.flow = b.startFlow(cls.ID, b.flow)
	}
	b.bindStatements(s.Body)
	bodyEnd := b.flow
	b.restore(saved)
	b.flow = bodyEnd

	if s.Name != nil {
		b.declare(&symbols.Declaration{
			Kind: symbols.DeclClass,
			Name: s.Name.Value,
			Node: s.ID(),
			Stmt: s.ID(),
			Span: s.Name.Span(),
		}, true)
	}
}

func (b *binder) bindImport(s *ast.ImportStatement) {
	for _, alias := range s.Names {
		parts := strings.Split(alias.Name, ".")
		for i := 1; i < len(parts); i++ {
			b.res.Imports = append(b.res.Imports, symbols.Import{
				Stmt:     s.ID(),
				Module:   strings.Join(parts[:i], "."),
				Implicit: true,
				Span:     alias.Span(),
			})
		}
		b.res.Imports = append(b.res.Imports, symbols.Import{Stmt: s.ID(), Module: alias.Name, Span: alias.Span()})

		bound := parts[0]
		if alias.AsName != nil {
			bound = alias.Name
		}
		decl := &symbols.Declaration{
			Kind:       symbols.DeclImport,
			Name:       alias.BoundName(),
			Node:       alias.ID(),
			Stmt:       s.ID(),
			Span:       alias.Span(),
			ModuleName: bound,
		}
		b.declare(decl, true)
		// A stub re-exports an imported module only through `import m as m`.
		if b.stub && (alias.AsName == nil || alias.AsName.Value != alias.Name) {
			decl.IsExported = false
		}
	}
}

func (b *binder) bindImportFrom(s *ast.ImportFromStatement) {
	imp := symbols.Import{
		Stmt:     s.ID(),
		Module:   s.Module,
		Level:    s.Level,
		Wildcard: s.Wildcard,
		Span:     s.Span(),
	}
	for _, alias := range s.Names {
		imp.Names = append(imp.Names, alias.Name)
	}
	b.res.Imports = append(b.res.Imports, imp)
	if s.Wildcard {
		b.res.Wildcards = append(b.res.Wildcards, imp)
		return
	}

	for _, alias := range s.Names {
		decl := &symbols.Declaration{
			Kind:       symbols.DeclImportFrom,
			Name:       alias.BoundName(),
			Node:       alias.ID(),
			Stmt:       s.ID(),
			Span:       alias.Span(),
			ModuleName: s.Module,
			Level:      s.Level,
			SymbolName: alias.Name,
		}
		b.declare(decl, true)
		if b.stub && (alias.AsName == nil || alias.AsName.Value != alias.Name) {
			decl.IsExported = false
		}
	}
}
