package analyzer

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/funvibe/sable/internal/binder"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/pipeline"
	"github.com/funvibe/sable/internal/typeshed"
	"github.com/funvibe/sable/internal/uri"
)

const mainURI = uri.URI("file:///proj/main.py")

// host serves a fixed set of units, parsed and bound on first use.
type host struct {
	texts    map[uri.URI]string
	views    map[uri.URI]*evaluator.UnitView
	resolver *modules.Resolver
}

func newHost(files map[string]string) *host {
	h := &host{texts: make(map[uri.URI]string), views: make(map[uri.URI]*evaluator.UnitView)}
	for name, text := range files {
		h.texts[uri.URI(name)] = text
	}
	h.texts[uri.Builtins] = typeshed.Builtins
	h.resolver = modules.NewResolver(fstest.MapFS{}, []uri.URI{"file:///proj"}, nil, func(u uri.URI) bool {
		_, ok := h.texts[u]
		return ok
	})
	return h
}

func (h *host) View(u uri.URI) *evaluator.UnitView {
	if v, ok := h.views[u]; ok {
		return v
	}
	text, ok := h.texts[u]
	if !ok {
		return nil
	}
	pr := parser.Parse(string(u), text)
	v := &evaluator.UnitView{
		URI:       u,
		Module:    pr.Module,
		Index:     pr.Index,
		NodeCount: pr.NodeCount,
		Bind:      binder.Bind(string(u), pr.Module, u.IsStub()),
	}
	h.views[u] = v
	return v
}

func (h *host) ResolveImport(from uri.URI, module string, level int) modules.Resolution {
	return h.resolver.Resolve(from, module, level)
}

func (h *host) ChainedPredecessor(uri.URI) uri.URI { return "" }

func (h *host) Generation() uint64 { return 0 }

// checkFiles runs the checker on main.py of files and returns everything
// reported for it.
func checkFiles(files map[string]string) []*diagnostics.DiagnosticError {
	h := newHost(files)
	v := h.View(mainURI)
	ctx := &pipeline.Context{
		Ctx:    context.Background(),
		URI:    string(mainURI),
		Module: v.Module,
		Index:  v.Index,
		Bind:   v.Bind,
	}
	ctx.Errors = append(ctx.Errors, v.Bind.Diagnostics...)
	cp := &CheckerProcessor{Eval: evaluator.New(h, nil)}
	return pipeline.New(cp).Run(ctx).Errors
}

func checkSource(input string) []*diagnostics.DiagnosticError {
	return checkFiles(map[string]string{string(mainURI): input})
}

func expectCheckerError(t *testing.T, input string, code diagnostics.ErrorCode) *diagnostics.DiagnosticError {
	t.Helper()
	errs := checkSource(input)
	for _, e := range errs {
		if e.Code == code {
			return e
		}
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	t.Fatalf("expected error %s, got:\n%s\ninput: %s", code, strings.Join(msgs, "\n"), input)
	return nil
}

func expectCheckerErrorContains(t *testing.T, input string, code diagnostics.ErrorCode, substr string) {
	t.Helper()
	e := expectCheckerError(t, input, code)
	if !strings.Contains(e.Message, substr) {
		t.Errorf("expected error message to contain %q, got: %s", substr, e.Message)
	}
}

func expectNoCheckerErrors(t *testing.T, input string) {
	t.Helper()
	if errs := checkSource(input); len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		t.Fatalf("expected no errors, got:\n%s\ninput: %s", strings.Join(msgs, "\n"), input)
	}
}

func TestT008_IncompatibleAssignment(t *testing.T) {
	expectCheckerErrorContains(t, "x: int = 'a'\n", diagnostics.ErrT008, `"x" of declared type int`)
}

func TestT008_LaterAssignment(t *testing.T) {
	expectCheckerError(t, "x: int\nx = 1\nx = 'a'\n", diagnostics.ErrT008)
}

func TestT008_LoopTarget(t *testing.T) {
	expectCheckerError(t, "x: str = ''\nfor x in [1, 2]:\n    pass\n", diagnostics.ErrT008)
}

func TestT008_ParameterDefault(t *testing.T) {
	expectCheckerErrorContains(t, "def f(x: int = 'a'):\n    pass\n", diagnostics.ErrT008, `parameter "x"`)
}

func TestT008_WideningAccepted(t *testing.T) {
	expectNoCheckerErrors(t, "x: float = 1\ny: Optional[int] = None\nz: list[float] = [1, 2]\n")
}

func TestT009_IncompatibleReturn(t *testing.T) {
	expectCheckerErrorContains(t, "def f() -> int:\n    return 'a'\n", diagnostics.ErrT009, `"f" declared to return int`)
}

func TestT009_ReturnDisplayUsesAnnotation(t *testing.T) {
	expectNoCheckerErrors(t, "def f() -> list[float]:\n    return [1]\n")
}

func TestT009_UnreachableReturnIgnored(t *testing.T) {
	expectNoCheckerErrors(t, "def f() -> int:\n    return 1\n    return 'a'\n")
}

func TestT010_UndefinedName(t *testing.T) {
	expectCheckerErrorContains(t, "print(missing)\n", diagnostics.ErrT010, `"missing"`)
}

func TestT010_StringAnnotation(t *testing.T) {
	expectCheckerError(t, "x: 'Missing' = 1\n", diagnostics.ErrT010)
}

func TestT004_ArgumentType(t *testing.T) {
	expectCheckerErrorContains(t, "def f(x: int):\n    pass\nf('a')\n", diagnostics.ErrT004, "expected int")
}

func TestI002_UnknownImportSymbol(t *testing.T) {
	errs := checkFiles(map[string]string{
		string(mainURI):        "from util import nope, there\n",
		"file:///proj/util.py": "there = 1\n",
	})
	var found []string
	for _, e := range errs {
		if e.Code == diagnostics.ErrI002 {
			found = append(found, e.Message)
		}
	}
	if len(found) != 1 || !strings.Contains(found[0], `"nope"`) {
		t.Fatalf("expected a single I002 for nope, got %v", found)
	}
}

func TestI002_StubPrivateImport(t *testing.T) {
	errs := checkFiles(map[string]string{
		string(mainURI):          "from lib import helper\n",
		"file:///proj/lib.pyi":   "from other import helper\n",
		"file:///proj/other.pyi": "def helper() -> None: ...\n",
	})
	for _, e := range errs {
		if e.Code == diagnostics.ErrI002 {
			return
		}
	}
	t.Fatalf("expected I002 for a name a stub imports without re-exporting")
}

func TestAnnotationsAreNotValues(t *testing.T) {
	// Evaluated as values, special forms would not be subscriptable.
	expectNoCheckerErrors(t, "def f(x: Optional[int], y: Union[int, str]) -> Union[int, None]:\n    return x\n")
}

func TestAttributeNamesAreNotReads(t *testing.T) {
	expectNoCheckerErrors(t, "class C:\n    def __init__(self):\n        self.value = 1\nc = C()\nprint(c.value.bit_length())\n")
}

func TestCleanProgram(t *testing.T) {
	expectNoCheckerErrors(t, `class Counter:
    def __init__(self, start: int):
        self.count = start

    def bump(self, by: int = 1) -> int:
        return self.count + by

c = Counter(0)
total: float = c.bump() + 2
names: dict[str, list[int]] = {"a": [1]}
for k in names:
    print(k.upper(), names[k].pop())
`)
}

func TestCanceledCheckReportsNothing(t *testing.T) {
	h := newHost(map[string]string{string(mainURI): "x: int = 'a'\n"})
	v := h.View(mainURI)
	rc, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := &pipeline.Context{Ctx: rc, URI: string(mainURI), Module: v.Module, Index: v.Index, Bind: v.Bind}
	out := (&CheckerProcessor{Eval: evaluator.New(h, nil)}).Process(ctx)
	if len(out.Errors) != 0 {
		t.Errorf("canceled check reported %d diagnostics", len(out.Errors))
	}
}
