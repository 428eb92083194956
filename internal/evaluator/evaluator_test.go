package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

func codes(diags []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	var out []diagnostics.ErrorCode
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func expectNoDiagnostics(t *testing.T, e *Evaluator, u uri.URI) {
	t.Helper()
	for _, d := range e.Diagnostics(u) {
		t.Errorf("unexpected diagnostic: %s", d)
	}
}

func expectDiagnostic(t *testing.T, e *Evaluator, u uri.URI, code diagnostics.ErrorCode) {
	t.Helper()
	for _, d := range e.Diagnostics(u) {
		if d.Code == code {
			return
		}
	}
	t.Errorf("expected %s, got %v", code, codes(e.Diagnostics(u)))
}

func TestInferredTypes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"int_literal_widened", "x = 1\nr = x\n", "int"},
		{"list_display", "r = [1, 2]\n", "list[int]"},
		{"mixed_list", "r = [1, 'a']\n", "list[int | str]"},
		{"empty_list", "r = []\n", "list[Unknown]"},
		{"dict_display", "r = {'a': 1}\n", "dict[str, int]"},
		{"tuple_display", "r = (1, 'a')\n", "tuple[int, str]"},
		{"tuple_unpack", "a, b = 1, 'x'\nr = b\n", "str"},
		{"annotated_call", "def f(x: int) -> str:\n    return ''\nr = f(1)\n", "str"},
		{"inferred_return", "def f():\n    return 1\nr = f()\n", "int"},
		{"implicit_none", "def f(c):\n    if c:\n        return 1\nr = f(True)\n", "int | None"},
		{"generic_function", "def ident[T](x: T) -> T:\n    return x\nr = ident('a')\n", "str"},
		{"list_method", "xs = [1]\nxs.append(2)\nr = xs.pop()\n", "int"},
		{"int_addition", "r = 1 + 2\n", "int"},
		{"int_float_addition", "r = 1 + 2.0\n", "float"},
		{"string_repeat", "r = 'a' * 3\n", "str"},
		{"negation", "r = -1\n", "int"},
		{"comparison", "r = 1 < 2\n", "bool"},
		{"subscript", "xs = {'a': [1.0]}\nr = xs['a'][0]\n", "float"},
		{"for_target", "r = 0\nfor r in ['a']:\n    pass\n", "str"},
		{"comprehension", "r = [x + 1 for x in [1, 2]]\n", "list[int]"},
		{"instance_member", "class C:\n    def __init__(self):\n        self.v = 1\nr = C().v\n", "int"},
		{"generic_class", "class Box[T]:\n    def __init__(self, item: T):\n        self.item = item\n    def get(self) -> T:\n        return self.item\nr = Box(1).get()\n", "int"},
		{"inherited_method", "class A:\n    def m(self) -> str:\n        return ''\nclass B(A):\n    pass\nr = B().m()\n", "str"},
		{"class_object", "class C:\n    pass\nr = C\n", "type[C]"},
		{"builtin_alias", "r: List[int] = []\n", "list[int]"},
		{"optional_annotation", "r: Optional[int] = None\n", "int | None"},
		{"forward_reference", "def f() -> 'C':\n    return C()\nclass C:\n    pass\nr = f()\n", "C"},
		{"aug_assign", "r = 1\nr += 2\n", "int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, h := newTestEvaluator(t, map[string]string{string(mainURI): tt.src})
			if got := typeOf(t, e, h, mainURI, "r"); got != tt.want {
				t.Errorf("type of r = %s, want %s", got, tt.want)
			}
			expectNoDiagnostics(t, e, mainURI)
		})
	}
}

func TestNarrowing(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"is_none", "def f(x: Optional[int]):\n    if x is None:\n        return 0\n    return x\nr = f(None)\n", "int"},
		{"is_not_none", "def f(x: Optional[str]):\n    if x is not None:\n        return x\n    return 0\nr = f('a')\n", "str | int"},
		{"truthiness", "def f(x: Optional[str]):\n    if x:\n        return x\n    return ''\nr = f(None)\n", "str"},
		{"isinstance", "def f(x: Union[int, str]):\n    if isinstance(x, str):\n        return x\n    return ''\nr = f(1)\n", "str"},
		{"isinstance_negative", "def f(x: Union[int, str]):\n    if not isinstance(x, str):\n        return x\n    return 0\nr = f(1)\n", "int"},
		{"isinstance_tuple", "def f(x: Union[int, str, None]):\n    if isinstance(x, (int, str)):\n        return x\n    return 0\nr = f(1)\n", "int | str"},
		{"branch_join", "def f(c):\n    if c:\n        y = 1\n    else:\n        y = 'a'\n    return y\nr = f(True)\n", "int | str"},
		{"loop_fixed_point", "def f(n: int):\n    total = 0\n    i = 0\n    while i < n:\n        total = total + 1\n        i = i + 1\n    return total\nr = f(3)\n", "int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, h := newTestEvaluator(t, map[string]string{string(mainURI): tt.src})
			if got := typeOf(t, e, h, mainURI, "r"); got != tt.want {
				t.Errorf("type of r = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCallDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want diagnostics.ErrorCode
	}{
		{"missing_argument", "def f(x):\n    pass\nf()\n", diagnostics.ErrT001},
		{"too_many_arguments", "def f():\n    pass\nf(1)\n", diagnostics.ErrT002},
		{"unknown_keyword", "def f(x):\n    pass\nf(y=1)\n", diagnostics.ErrT003},
		{"argument_type", "def f(x: int):\n    pass\nf('a')\n", diagnostics.ErrT004},
		{"no_overload", "abs('a')\n", diagnostics.ErrT005},
		{"unknown_attribute", "x = 1\nx.nope\n", diagnostics.ErrT006},
		{"not_callable", "x = None\nx()\n", diagnostics.ErrT007},
		{"undefined_name", "print(nope)\n", diagnostics.ErrT010},
		{"unsupported_operator", "r = None + 1\n", diagnostics.ErrT011},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, h := newTestEvaluator(t, map[string]string{string(mainURI): tt.src})
			v := h.View(mainURI)
			ast.Inspect(v.Module, func(n ast.Node) bool {
				if x, ok := n.(ast.Expression); ok {
					if _, err := e.GetType(context.Background(), mainURI, x.ID()); err != nil {
						t.Fatalf("GetType: %v", err)
					}
				}
				return true
			})
			expectDiagnostic(t, e, mainURI, tt.want)
		})
	}
}

func TestOverloadResolution(t *testing.T) {
	src := "a = abs(1)\nb = abs(1.5)\nc = abs(True)\n"
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): src})
	for name, want := range map[string]string{"a": "int", "b": "float", "c": "int"} {
		if got := typeOf(t, e, h, mainURI, name); got != want {
			t.Errorf("type of %s = %s, want %s", name, got, want)
		}
	}
	// Failed hypotheses leave nothing behind.
	expectNoDiagnostics(t, e, mainURI)
}

func TestNestedOverloadedCalls(t *testing.T) {
	const depth = 16
	src := "r = " + strings.Repeat("abs(", depth) + "1" + strings.Repeat(")", depth) + "\n"
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): src})
	if got := typeOf(t, e, h, mainURI, "r"); got != "int" {
		t.Errorf("type of r = %s, want int", got)
	}
	// Every level tries each overload once; the argument is typed outside
	// the hypotheses.
	if limit := 2 * depth; e.speculations > limit {
		t.Errorf("%d speculative contexts for %d nested calls, want at most %d", e.speculations, depth, limit)
	}
	expectNoDiagnostics(t, e, mainURI)
}

func TestRecursiveAlias(t *testing.T) {
	src := "X = dict[str, 'X']\nr: X = {'a': {'b': {}}}\n"
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): src})

	first := typeOf(t, e, h, mainURI, "X")
	if first != "type[dict[str, X]]" {
		t.Errorf("type of X = %s", first)
	}
	for i := 0; i < 3; i++ {
		if again := typeOf(t, e, h, mainURI, "X"); again != first {
			t.Errorf("evaluation %d of X = %s, want %s", i, again, first)
		}
	}
	if got := typeOf(t, e, h, mainURI, "r"); got != "dict[str, X]" {
		t.Errorf("type of r = %s", got)
	}
	expectNoDiagnostics(t, e, mainURI)
}

func TestSelfReferenceIsUnknown(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "def f():\n    return f()\nr = f()\n"})
	if got := typeOf(t, e, h, mainURI, "r"); got != "Unknown" {
		t.Errorf("type of r = %s, want Unknown", got)
	}
}

func TestSpeculativeRollback(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "r = nope\ns = 1\n"})
	v := h.View(mainURI)
	value := findNode(t, h, mainURI, func(n ast.Node) bool {
		nm, ok := n.(*ast.Name)
		return ok && nm.Value == "nope"
	}).(ast.Expression)

	if _, err := e.GetType(context.Background(), mainURI, v.Bind.Module().Lookup("s").Last().Node); err != nil {
		t.Fatal(err)
	}
	beforeTypes := len(e.cacheOf(mainURI).types)
	beforeDiags := len(e.Diagnostics(mainURI))

	err := e.run(context.Background(), func() {
		s := e.speculate()
		e.exprType(v, value, nil)
		if len(s.o.diags) == 0 {
			t.Errorf("speculative evaluation recorded no diagnostic")
		}
		s.Rollback()
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(e.cacheOf(mainURI).types); got != beforeTypes {
		t.Errorf("cache has %d entries after rollback, want %d", got, beforeTypes)
	}
	if got := len(e.Diagnostics(mainURI)); got != beforeDiags {
		t.Errorf("%d diagnostics after rollback, want %d", got, beforeDiags)
	}

	// An inner commit is undone by the outer rollback.
	_ = e.run(context.Background(), func() {
		outer := e.speculate()
		inner := e.speculate()
		e.exprType(v, value, nil)
		inner.Commit()
		outer.Rollback()
	})
	if got := len(e.Diagnostics(mainURI)); got != beforeDiags {
		t.Errorf("%d diagnostics after nested rollback, want %d", got, beforeDiags)
	}

	_ = e.run(context.Background(), func() {
		s := e.speculate()
		e.exprType(v, value, nil)
		s.Commit()
	})
	if got := codes(e.Diagnostics(mainURI)); len(got) != 1 || got[0] != diagnostics.ErrT010 {
		t.Errorf("diagnostics after commit = %v", got)
	}
}

func TestSpeculationOrder(t *testing.T) {
	e, _ := newTestEvaluator(t, map[string]string{string(mainURI): "x = 1\n"})
	outer := e.speculate()
	inner := e.speculate()
	defer func() {
		r := recover()
		if _, ok := r.(*assert.InternalError); !ok {
			t.Errorf("expected internal error, got %v", r)
		}
		inner.Rollback()
	}()
	outer.Commit()
}

func TestSuspendedSpeculationCommit(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "r = nope\ns = other\n"})
	v := h.View(mainURI)
	name := func(id string) ast.Expression {
		return findNode(t, h, mainURI, func(n ast.Node) bool {
			nm, ok := n.(*ast.Name)
			return ok && nm.Value == id
		}).(ast.Expression)
	}
	kept, dropped := name("nope"), name("other")

	err := e.run(context.Background(), func() {
		first := e.speculate()
		e.exprType(v, kept, nil)
		first.Suspend()
		if len(e.overlays) != 0 {
			t.Errorf("%d contexts active after suspend, want 0", len(e.overlays))
		}
		second := e.speculate()
		e.exprType(v, dropped, nil)
		second.Suspend()

		second.Rollback()
		first.Commit()
		first.Rollback()
	})
	if err != nil {
		t.Fatal(err)
	}
	diags := e.Diagnostics(mainURI)
	if len(diags) != 1 || diags[0].Code != diagnostics.ErrT010 || !strings.Contains(diags[0].Message, "nope") {
		t.Errorf("diagnostics after commit = %v", diags)
	}
	if _, ok := e.cacheOf(mainURI).types[key{mainURI, kept.ID(), slotExpr}]; !ok {
		t.Errorf("committed type of nope missing from the cache")
	}
	if _, ok := e.cacheOf(mainURI).types[key{mainURI, dropped.ID(), slotExpr}]; ok {
		t.Errorf("rolled back type of other left in the cache")
	}
}

func TestCancellation(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := h.View(mainURI).Bind.Module().Lookup("x").Last().Node
	_, err := e.GetType(ctx, mainURI, id)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("GetType on canceled context: %v", err)
	}
	typ, err := e.GetType(context.Background(), mainURI, id)
	if err != nil || typ.String() != "int" {
		t.Errorf("GetType after cancellation = %v, %v", typ, err)
	}
}

func TestDependencyInvalidation(t *testing.T) {
	files := map[string]string{
		string(mainURI):        "from util import foo\nr = foo()\n",
		"file:///proj/util.py": "def foo() -> int:\n    return 1\n",
	}
	e, h := newTestEvaluator(t, files)
	if got := typeOf(t, e, h, mainURI, "r"); got != "int" {
		t.Fatalf("type of r = %s", got)
	}
	h.set("file:///proj/util.py", "def foo() -> str:\n    return ''\n")
	if got := typeOf(t, e, h, mainURI, "r"); got != "str" {
		t.Errorf("type of r after edit = %s, want str", got)
	}
}

func TestImportForms(t *testing.T) {
	files := map[string]string{
		string(mainURI):                "import pkg\nfrom pkg import core\nfrom helper import *\na = pkg.core.value\nb = core.value\nc = shared\n",
		"file:///proj/pkg/__init__.py": "",
		"file:///proj/pkg/core.py":     "value = 'v'\n",
		"file:///proj/helper.py":       "shared = 1.5\n_hidden = 1\n",
		"file:///proj/stubbed.pyi":     "import os\nfrom util import thing as thing\n",
		"file:///proj/uses_stub.py":    "from stubbed import thing\n",
		"file:///proj/util.py":         "thing = 1\n",
	}
	e, h := newTestEvaluator(t, files)
	for name, want := range map[string]string{"a": "str", "b": "str", "c": "float"} {
		if got := typeOf(t, e, h, mainURI, name); got != want {
			t.Errorf("type of %s = %s, want %s", name, got, want)
		}
	}

	u := uri.URI("file:///proj/uses_stub.py")
	d := h.View(u).Bind.Module().Lookup("thing").Last()
	ok, err := e.ImportedSymbolExists(context.Background(), u, d)
	if err != nil || !ok {
		t.Errorf("re-exported stub symbol not found: %v", err)
	}
}

func TestChainedPredecessor(t *testing.T) {
	cell1, cell2 := uri.Cell("nb", 1), uri.Cell("nb", 2)
	e, h := newTestEvaluator(t, map[string]string{
		string(cell1): "def foo1() -> int:\n    return 1\n",
		string(cell2): "r = foo1()\n",
	})
	h.chain[cell2] = cell1
	if got := typeOf(t, e, h, cell2, "r"); got != "int" {
		t.Errorf("type of r = %s", got)
	}
	expectNoDiagnostics(t, e, cell2)
}

func TestDeclarations(t *testing.T) {
	files := map[string]string{
		string(mainURI):        "from util import foo\nfoo()\n",
		"file:///proj/util.py": "def foo():\n    pass\n",
	}
	e, h := newTestEvaluator(t, files)
	call := findNode(t, h, mainURI, isCall).(*ast.CallExpression)
	refs, err := e.Declarations(context.Background(), mainURI, call.Func.(*ast.Name))
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 || refs[1].Unit != "file:///proj/util.py" {
		t.Fatalf("declarations = %+v", refs)
	}
}

func TestAssignable(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "a = 1\nb = 1.0\n"})
	ctx := context.Background()
	v := h.View(mainURI)
	a, _ := e.GetType(ctx, mainURI, v.Bind.Module().Lookup("a").Last().Node)
	b, _ := e.GetType(ctx, mainURI, v.Bind.Module().Lookup("b").Last().Node)
	if ok, _ := e.Assignable(ctx, b, a); !ok {
		t.Errorf("int should widen to float")
	}
	if ok, _ := e.Assignable(ctx, a, b); ok {
		t.Errorf("float should not narrow to int")
	}
	if ok, _ := e.Assignable(ctx, a, typesystem.TAny{}); !ok {
		t.Errorf("Any should be assignable")
	}
}

func TestEvict(t *testing.T) {
	e, h := newTestEvaluator(t, map[string]string{string(mainURI): "x = [1]\n"})
	before := typeOf(t, e, h, mainURI, "x")
	if e.GetUsageRatio() <= 0 {
		t.Errorf("usage ratio should be positive after evaluation")
	}
	e.Evict()
	if e.entries() != 0 {
		t.Errorf("entries after Evict = %d", e.entries())
	}
	if after := typeOf(t, e, h, mainURI, "x"); after != before {
		t.Errorf("type after Evict = %s, want %s", after, before)
	}
}
