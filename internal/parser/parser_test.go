package parser_test

import (
	"strings"
	"testing"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/pipeline"
	"github.com/funvibe/sable/internal/prettyprinter"
)

func TestParser(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		output string // empty means same as input
	}{
		{"simple_assignment", "a = 5\n", ""},
		{"infix_expression", "a = 5 + 2 * 10\n", ""},
		{"complex_expression", "a = (b + c) * -d\n", ""},
		{"tuple_trailing_comma", "x = 1,\n", "x = (1,)\n"},
		{"annotated", "x: int = 0\n", ""},
		{"bare_annotation", "x: list[int]\n", ""},
		{"aug_assign", "total += 1\n", ""},
		{"function_generic", "def f[T](x: T, *args, **kw) -> list[T]:\n    return [x]\n", ""},
		{"function_defaults", "def g(a, b: int = 1):\n    pass\n", ""},
		{"if_elif_else", "if a is not None:\n    pass\nelif not x in y:\n    pass\nelse:\n    b = 1\n", ""},
		{"not_in", "ok = x not in y\n", ""},
		{"while_else", "while n:\n    n -= 1\nelse:\n    done = True\n", ""},
		{"for_tuple_target", "for k, v in items:\n    total += v\n", "for (k, v) in items:\n    total += v\n"},
		{"import_simple", "import os.path as p, sys\n", ""},
		{"import_from_relative", "from ..pkg.mod import a as b, c\n", ""},
		{"import_from_dot", "from . import x\n", ""},
		{"import_from_wildcard", "from m import *\n", ""},
		{"import_from_paren", "from m import (a,\n    b)\n", "from m import a, b\n"},
		{"class_keywords", "class C(Base, metaclass=M):\n    x: int = 0\n", "class C(Base):\n    x: int = 0\n"},
		{"class_generic", "class Box[T]:\n    def get(self) -> T:\n        return self.item\n", ""},
		{"comprehension", "xs = [i * 2 for i in range(10) if i % 2 == 0]\n", ""},
		{"dict_display", "d = {\"a\": 1, \"b\": [1, 2]}\n", ""},
		{"overload_stub", "@overload\ndef f(x: int) -> int: ...\n", "@overload\ndef f(x: int) -> int:\n    ...\n"},
		{"inline_block", "if x: y = 1; z = 2\n", "if x:\n    y = 1\n    z = 2\n"},
		{"call_keywords", "f(1, *rest, key=2)\n", ""},
		{"global_nonlocal", "def f():\n    global a, b\n    nonlocal c\n", ""},
		{"power_right_assoc", "x = 2 ** 3 ** 2\n", ""},
		{"string_concat", "s = 'a' \"b\"\n", "s = \"ab\"\n"},
		{"comments_and_blank_lines", "# header\n\nx = 1  # trailing\n\n\ny = 2\n", "x = 1\ny = 2\n"},
		{"multiline_call", "f(\n    1,\n    2,\n)\n", "f(1, 2)\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &pipeline.Context{URI: "file:///test.py", Text: tc.input}
			ctx = (&parser.ParserProcessor{}).Process(ctx)

			if len(ctx.Errors) > 0 {
				var msgs []string
				for _, err := range ctx.Errors {
					msgs = append(msgs, err.Error())
				}
				t.Fatalf("parsing failed with errors:\n%s", strings.Join(msgs, "\n"))
			}

			want := tc.output
			if want == "" {
				want = tc.input
			}
			if got := prettyprinter.Module(ctx.Module); got != want {
				t.Errorf("round trip mismatch\nwant:\n%s\ngot:\n%s", want, got)
			}
		})
	}
}

func expectCode(t *testing.T, errs []*diagnostics.DiagnosticError, code diagnostics.ErrorCode) {
	t.Helper()
	for _, e := range errs {
		if e.Code == code {
			return
		}
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	t.Fatalf("expected diagnostic %s, got:\n%s", code, strings.Join(msgs, "\n"))
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  diagnostics.ErrorCode
		stmts int
	}{
		{"unclosed_paren", "x = (1 +\n", diagnostics.ErrP001, 1},
		{"missing_block", "def f():\nreturn 1\n", diagnostics.ErrP003, 2},
		{"unexpected_indent", "x = 1\n    y = 2\n", diagnostics.ErrP005, 2},
		{"bad_target", "1 = x\n", diagnostics.ErrP002, 1},
		{"unterminated_string", "x = 'abc\n", diagnostics.ErrP004, 1},
		{"bad_character", "x = 1 $ 2\n", diagnostics.ErrP004, 1},
		{"recovery_next_line", "x = = 1\ny = 2\n", diagnostics.ErrP001, 2},
		{"bad_dedent", "if x:\n        a = 1\n    b = 2\n", diagnostics.ErrP004, 2},
		{"decorator_without_def", "@dec\nx = 1\n", diagnostics.ErrP001, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parser.Parse("file:///test.py", tt.input)
			expectCode(t, res.Errors, tt.code)
			if len(res.Module.Body) != tt.stmts {
				t.Errorf("expected %d statements after recovery, got %d:\n%s",
					tt.stmts, len(res.Module.Body), prettyprinter.Module(res.Module))
			}
		})
	}
}

func TestRecoveryKeepsLaterStatements(t *testing.T) {
	res := parser.Parse("file:///test.py", "x = = 1\ny = 2\n")
	last, ok := res.Module.Body[len(res.Module.Body)-1].(*ast.AssignStatement)
	if !ok {
		t.Fatalf("expected assignment, got %T", res.Module.Body[len(res.Module.Body)-1])
	}
	if name, ok := last.Target.(*ast.Name); !ok || name.Value != "y" {
		t.Errorf("expected target y, got %s", prettyprinter.Expr(last.Target))
	}
}

func TestIndexCoversEveryNode(t *testing.T) {
	src := "class A:\n    def m(self, x: int) -> int:\n        return x + 1\n\nval = A().m(2)\n"
	res := parser.Parse("file:///test.py", src)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	seen := map[ast.NodeID]bool{}
	ast.Inspect(res.Module, func(n ast.Node) bool {
		if seen[n.ID()] {
			t.Errorf("duplicate node id %d", n.ID())
		}
		seen[n.ID()] = true
		if res.Index.Node(n.ID()) != n {
			t.Errorf("index does not resolve node %d (%T)", n.ID(), n)
		}
		for _, c := range ast.Children(n) {
			if res.Index.Parent(c.ID()) != n {
				t.Errorf("wrong parent for node %d (%T)", c.ID(), c)
			}
		}
		return true
	})
	if len(seen) != res.NodeCount {
		t.Errorf("NodeCount = %d, visited %d nodes", res.NodeCount, len(seen))
	}
	if res.Lines != 6 {
		t.Errorf("Lines = %d, want 6", res.Lines)
	}
}

func TestFindNodeAt(t *testing.T) {
	res := parser.Parse("file:///test.py", "x = foo.bar(1)\n")
	n := ast.FindNodeAt(res.Module, 1, 9)
	name, ok := n.(*ast.Name)
	if !ok || name.Value != "bar" {
		t.Fatalf("expected name bar at 1:9, got %T", n)
	}
	if got := ast.FindNodeAt(res.Module, 3, 1); got != nil {
		t.Errorf("expected nothing past the end, got %T", got)
	}
}

func TestParseExpression(t *testing.T) {
	expr, last, errs := parser.ParseExpression("list[int]", 100)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	sub, ok := expr.(*ast.SubscriptExpression)
	if !ok {
		t.Fatalf("expected subscript, got %T", expr)
	}
	if sub.ID() <= 100 || last < sub.ID() {
		t.Errorf("ids must start after 100: node %d, last %d", sub.ID(), last)
	}

	_, _, errs = parser.ParseExpression("list[", 0)
	expectCode(t, errs, diagnostics.ErrP001)
}

func TestDocStrings(t *testing.T) {
	src := "\"\"\"Module doc.\"\"\"\ndef f():\n    \"\"\"\n    Does things.\n    \"\"\"\n    return 1\n"
	res := parser.Parse("file:///test.py", src)
	if res.Module.Doc != "Module doc." {
		t.Errorf("module doc = %q", res.Module.Doc)
	}
	fn := res.Module.Body[1].(*ast.FunctionDef)
	if fn.Doc != "Does things." {
		t.Errorf("function doc = %q", fn.Doc)
	}
}
