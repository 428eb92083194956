package program

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineassert "github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

const (
	aURI = uri.URI("file:///proj/a.py")
	bURI = uri.URI("file:///proj/b.py")
)

const importArchive = `
-- a.py --
def foo():
    return 1
-- b.py --
from a import foo
x = foo()
`

func testConfig() *config.Options {
	cfg := config.Default()
	cfg.Roots = []string{"/proj"}
	return cfg
}

// newProject loads a txtar archive below /proj and tracks every file in it.
func newProject(t *testing.T, archive string, opts ...func(*Options)) (*Program, fstest.MapFS) {
	t.Helper()
	fsys, uris := vfs.FromTxtar([]byte(archive), "/proj")
	o := Options{FS: fsys, Config: testConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	p := New(o)
	t.Cleanup(p.Close)
	p.SetTrackedFiles(uris)
	return p, fsys
}

func analyzeAll(t *testing.T, p *Program) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		more, err := p.Analyze(context.Background())
		require.NoError(t, err)
		if !more {
			return
		}
	}
	t.Fatal("analysis did not settle")
}

func codes(diags []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	var out []diagnostics.ErrorCode
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

// typeOf prints the declared type of a module-level name of u.
func typeOf(t *testing.T, p *Program, u uri.URI, name string) string {
	t.Helper()
	v, err := p.view(context.Background(), u)
	require.NoError(t, err)
	require.NotNil(t, v)
	sym := v.Bind.Module().Lookup(name)
	require.NotNil(t, sym, "symbol %s", name)
	typ, err := p.GetType(context.Background(), u, sym.Last().Node)
	require.NoError(t, err)
	return typesystem.Print(typ)
}

func TestInvalidationThroughImport(t *testing.T) {
	p, _ := newProject(t, importArchive)
	analyzeAll(t, p)
	require.Empty(t, p.GetDiagnostics(bURI))
	assert.Equal(t, "int", typeOf(t, p, bURI, "x"))

	p.SetContents(aURI, 1, "def foo(x):\n    return x\n", ContentOptions{IsTracked: true})
	info, _ := p.GetSourceUnit(bURI)
	assert.False(t, info.Checked, "importer must be re-checked")

	analyzeAll(t, p)
	assert.Contains(t, codes(p.GetDiagnostics(bURI)), diagnostics.ErrT001)
	assert.Empty(t, p.GetDiagnostics(aURI))
}

func TestImportEdgesAreSymmetric(t *testing.T) {
	p, _ := newProject(t, importArchive)
	analyzeAll(t, p)

	b, ok := p.GetSourceUnit(bURI)
	require.True(t, ok)
	a, ok := p.GetSourceUnit(aURI)
	require.True(t, ok)
	assert.Equal(t, []uri.URI{aURI}, b.Imports)
	assert.Equal(t, []uri.URI{bURI}, a.ImportedBy)

	p.SetContents(bURI, 1, "x = 1\n", ContentOptions{IsTracked: true})
	analyzeAll(t, p)
	a, _ = p.GetSourceUnit(aURI)
	assert.Empty(t, a.ImportedBy)
}

func TestUnresolvedImportResolvesOnceFileAppears(t *testing.T) {
	p, _ := newProject(t, "-- main.py --\nimport extra\n")
	main := uri.URI("file:///proj/main.py")
	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrI001}, codes(p.GetDiagnostics(main)))

	p.SetContents("file:///proj/extra.py", 1, "value = 1\n", ContentOptions{})
	analyzeAll(t, p)
	assert.Empty(t, p.GetDiagnostics(main))
	info, _ := p.GetSourceUnit(main)
	assert.Equal(t, []uri.URI{"file:///proj/extra.py"}, info.Imports)
}

func TestNewImportTargetRechecksImporter(t *testing.T) {
	p, _ := newProject(t, "-- main.py --\nfrom extra import foo\nfoo()\n")
	main := uri.URI("file:///proj/main.py")
	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrI001}, codes(p.GetDiagnostics(main)))

	p.SetContents("file:///proj/extra.py", 1, "def foo(x):\n    pass\n", ContentOptions{})
	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrT001}, codes(p.GetDiagnostics(main)))
}

func expectInternalError(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		_, ok := r.(*engineassert.InternalError)
		assert.True(t, ok, "panic value %T", r)
	}()
	fn()
}

func TestChainCycleFailsLoudly(t *testing.T) {
	p := New(Options{FS: fstest.MapFS{}, Config: testConfig()})
	defer p.Close()
	c, d := uri.Cell("nb", 1), uri.Cell("nb", 2)
	p.SetContents(c, 1, "a = 1\n", ContentOptions{})
	p.SetContents(d, 1, "b = a\n", ContentOptions{ChainedPredecessor: c})

	expectInternalError(t, func() { p.UpdateChainedPredecessor(c, d) })
	expectInternalError(t, func() { p.UpdateChainedPredecessor(c, c) })
}

func TestChainedCells(t *testing.T) {
	p := New(Options{FS: fstest.MapFS{}, Config: testConfig()})
	defer p.Close()
	c1, c2, c3 := uri.Cell("nb", 1), uri.Cell("nb", 2), uri.Cell("nb", 3)
	p.SetContents(c1, 1, "a = 1\n", ContentOptions{})
	p.SetContents(c2, 1, "b = a\n", ContentOptions{ChainedPredecessor: c1})
	p.SetContents(c3, 1, "c = b\n", ContentOptions{ChainedPredecessor: c2})
	analyzeAll(t, p)
	for _, c := range []uri.URI{c1, c2, c3} {
		assert.Empty(t, p.GetDiagnostics(c), "diagnostics of %s", c)
	}
	assert.Equal(t, "int", typeOf(t, p, c3, "c"))

	// Closing a middle cell splices it out of the chain.
	p.SetClosed(c2)
	info, ok := p.GetSourceUnit(c3)
	require.True(t, ok)
	assert.Equal(t, c1, info.ChainedPredecessor)
	_, ok = p.GetSourceUnit(c2)
	assert.False(t, ok, "closed cell must be removed")

	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrT010}, codes(p.GetDiagnostics(c3)))
}

func TestEditInLongCellChainIsIncremental(t *testing.T) {
	const n = 1000
	cfg := testConfig()
	cfg.Analysis.MaxWorkPerCall = n
	p := New(Options{FS: fstest.MapFS{}, Config: cfg})
	defer p.Close()

	cells := make([]uri.URI, n)
	for i := range cells {
		cells[i] = uri.Cell("nb", i+1)
		text := "v1 = 1\n"
		var pred uri.URI
		if i > 0 {
			pred = cells[i-1]
			text = fmt.Sprintf("v%d = v1 + %d\n", i+1, i)
		}
		p.SetContents(cells[i], 1, text, ContentOptions{ChainedPredecessor: pred})
	}
	analyzeAll(t, p)
	for _, c := range cells {
		require.Empty(t, p.GetDiagnostics(c), "diagnostics of %s", c)
	}

	before := p.Stats()
	last := cells[n-1]
	p.SetContents(last, 2, fmt.Sprintf("v%d = v1 * 2\n", n), ContentOptions{ChainedPredecessor: cells[n-2]})
	analyzeAll(t, p)
	after := p.Stats()

	assert.Equal(t, 1, after.Binds-before.Binds)
	assert.Equal(t, 1, after.Checks-before.Checks)
	assert.Empty(t, p.GetDiagnostics(last))
	assert.Equal(t, "int", typeOf(t, p, last, fmt.Sprintf("v%d", n)))
}

const aliasArchive = `
-- alias.py --
X = dict[str, 'X']
r: X = {'a': {'b': {}}}
`

func TestRecursiveAliasThroughProgram(t *testing.T) {
	p, _ := newProject(t, aliasArchive)
	analyzeAll(t, p)
	u := uri.URI("file:///proj/alias.py")
	assert.Empty(t, p.GetDiagnostics(u))
	assert.Equal(t, "dict[str, X]", typeOf(t, p, u, "r"))
	assert.Equal(t, "type[dict[str, X]]", typeOf(t, p, u, "X"))
}

const evictArchive = `
-- a.py --
def foo(x: int) -> list[int]:
    return [x]
-- b.py --
from a import foo
y = foo(1)
`

func TestEvictionRederivesSameResults(t *testing.T) {
	heap := uint64(0)
	mgr := cachemgr.New(cachemgr.WithHeapLimit(100), cachemgr.WithHeapReader(func() uint64 { return heap }))
	p, _ := newProject(t, evictArchive, func(o *Options) { o.CacheManager = mgr })
	analyzeAll(t, p)
	want := typeOf(t, p, bURI, "y")
	require.Equal(t, "list[int]", want)
	beforeA, _ := p.GetSourceUnit(aURI)
	beforeB, _ := p.GetSourceUnit(bURI)
	diags := p.GetDiagnostics(bURI)

	assert.False(t, p.HandleMemoryHighUsage(), "below the threshold")
	heap = 95
	require.True(t, p.HandleMemoryHighUsage())
	assert.Nil(t, p.units[aURI].view)
	assert.Nil(t, p.units[bURI].view)

	assert.Equal(t, want, typeOf(t, p, bURI, "y"))
	afterA, _ := p.GetSourceUnit(aURI)
	afterB, _ := p.GetSourceUnit(bURI)
	assert.Equal(t, beforeA, afterA)
	assert.Equal(t, beforeB, afterB)
	assert.Equal(t, diags, p.GetDiagnostics(bURI))

	release := mgr.PauseTracking()
	defer release()
	assert.False(t, p.HandleMemoryHighUsage(), "paused tracking reports no usage")
}

func TestOpenUnitsSurviveEviction(t *testing.T) {
	p, _ := newProject(t, importArchive)
	p.SetContents(aURI, 1, "def foo():\n    return 'x'\n", ContentOptions{IsTracked: true})
	analyzeAll(t, p)
	p.Evict()
	assert.NotNil(t, p.units[aURI].view)
	assert.Nil(t, p.units[bURI].view)
	assert.Equal(t, "str", typeOf(t, p, bURI, "x"))
}

func TestCloneIsIndependent(t *testing.T) {
	p, _ := newProject(t, importArchive)
	analyzeAll(t, p)

	c := p.Clone()
	defer c.Close()
	assert.NotEqual(t, p.ID(), c.ID())
	c.SetContents(aURI, 1, "def foo(x):\n    return x\n", ContentOptions{IsTracked: true})
	analyzeAll(t, c)

	assert.Contains(t, codes(c.GetDiagnostics(bURI)), diagnostics.ErrT001)
	assert.Empty(t, p.GetDiagnostics(bURI))
	assert.Equal(t, "int", typeOf(t, p, bURI, "x"))
	info, _ := p.GetSourceUnit(aURI)
	assert.False(t, info.Open)
}

func TestSetTrackedFilesEvictsUnreferencedUnits(t *testing.T) {
	p, _ := newProject(t, importArchive)
	analyzeAll(t, p)

	// a stays while b imports it.
	p.SetTrackedFiles([]uri.URI{bURI})
	a, ok := p.GetSourceUnit(aURI)
	require.True(t, ok)
	assert.False(t, a.Tracked)

	p.SetTrackedFiles([]uri.URI{aURI})
	_, ok = p.GetSourceUnit(bURI)
	assert.False(t, ok)
	a, ok = p.GetSourceUnit(aURI)
	require.True(t, ok)
	assert.Empty(t, a.ImportedBy)
}

func TestMarkDirtyRereadsDisk(t *testing.T) {
	p, fsys := newProject(t, importArchive)
	analyzeAll(t, p)

	p.MarkDirty([]uri.URI{aURI}, false)
	info, _ := p.GetSourceUnit(bURI)
	assert.False(t, info.Checked)
	analyzeAll(t, p)
	assert.Empty(t, p.GetDiagnostics(bURI))

	fsys["proj/a.py"] = &fstest.MapFile{Data: []byte("def foo(x):\n    return x\n")}
	p.MarkDirty([]uri.URI{aURI}, false)
	analyzeAll(t, p)
	assert.Contains(t, codes(p.GetDiagnostics(bURI)), diagnostics.ErrT001)
}

func TestClosingRevertsToDisk(t *testing.T) {
	p, _ := newProject(t, importArchive)
	p.SetContents(aURI, 3, "def foo(x):\n    return x\n", ContentOptions{IsTracked: true})
	analyzeAll(t, p)
	require.Contains(t, codes(p.GetDiagnostics(bURI)), diagnostics.ErrT001)

	p.SetClosed(aURI)
	info, _ := p.GetSourceUnit(aURI)
	assert.Equal(t, NotOpen, info.Version)
	analyzeAll(t, p)
	assert.Empty(t, p.GetDiagnostics(bURI))
}

func TestCheckOnlyOpenFiles(t *testing.T) {
	p, _ := newProject(t, "-- bad.py --\nx = undefined_name\n-- ok.py --\ny = 1\n", func(o *Options) {
		o.Config.Analysis.CheckOnlyOpenFiles = true
	})
	analyzeAll(t, p)
	info, _ := p.GetSourceUnit("file:///proj/bad.py")
	assert.False(t, info.Checked)
	assert.Empty(t, p.GetDiagnostics("file:///proj/bad.py"))

	p.SetContents("file:///proj/bad.py", 1, "x = undefined_name\n", ContentOptions{IsTracked: true})
	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrT010}, codes(p.GetDiagnostics("file:///proj/bad.py")))
}

func TestAnalyzeCancellation(t *testing.T) {
	p, _ := newProject(t, importArchive)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	more, err := p.Analyze(ctx)
	require.Error(t, err)
	assert.True(t, more)
	assert.True(t, errors.Is(err, evaluator.ErrCanceled))
	assert.True(t, errors.Is(err, context.Canceled))

	analyzeAll(t, p)
	assert.Empty(t, p.GetDiagnostics(bURI))
}

const stubArchive = `
-- lib.pyi --
def double(x: int) -> int: ...
-- lib.py --
def double(x):
    """Doubles x."""
    return x * 2
-- main.py --
from lib import double
r = double(2)
`

func TestStubShadowsImplementation(t *testing.T) {
	p, _ := newProject(t, stubArchive)
	analyzeAll(t, p)
	stub, impl, main := uri.URI("file:///proj/lib.pyi"), uri.URI("file:///proj/lib.py"), uri.URI("file:///proj/main.py")

	s, _ := p.GetSourceUnit(stub)
	assert.True(t, s.Stub)
	assert.Equal(t, []uri.URI{impl}, s.Shadows)
	i, _ := p.GetSourceUnit(impl)
	assert.Equal(t, []uri.URI{stub}, i.ShadowedBy)
	m, _ := p.GetSourceUnit(main)
	assert.Equal(t, []uri.URI{stub}, m.Imports)

	assert.Equal(t, "int", typeOf(t, p, main, "r"))
	assert.Empty(t, p.GetDiagnostics(main))

	mappers := p.GetSourceMappers(impl)
	require.Len(t, mappers, 1)
	assert.Equal(t, stub, mappers[0].Stub())
	assert.Nil(t, p.GetSourceMappers(main))

	hover, err := p.GetHoverText(context.Background(), main, 2, 5)
	require.NoError(t, err)
	assert.Contains(t, hover, "double: ")
	assert.Contains(t, hover, "Doubles x.")

	refs, err := p.GetDeclarationsAtPosition(context.Background(), main, 2, 5)
	require.NoError(t, err)
	var units []uri.URI
	for _, ref := range refs {
		units = append(units, ref.Unit)
	}
	assert.Contains(t, units, stub)
	assert.Contains(t, units, impl)
}

func TestStubAppearingNextToImplementation(t *testing.T) {
	p, _ := newProject(t, "-- lib.py --\ndef foo():\n    return 1\n-- main.py --\nfrom lib import foo\nx = foo()\n")
	stub, impl, main := uri.URI("file:///proj/lib.pyi"), uri.URI("file:///proj/lib.py"), uri.URI("file:///proj/main.py")
	analyzeAll(t, p)
	require.Equal(t, "int", typeOf(t, p, main, "x"))

	p.SetContents(stub, 1, "def foo() -> str: ...\n", ContentOptions{})
	analyzeAll(t, p)
	m, _ := p.GetSourceUnit(main)
	assert.Equal(t, []uri.URI{stub}, m.Imports)
	s, _ := p.GetSourceUnit(stub)
	assert.Equal(t, []uri.URI{impl}, s.Shadows)
	assert.Equal(t, "str", typeOf(t, p, main, "x"))
	assert.Empty(t, p.GetDiagnostics(main))
}

func TestShadowLinksFollowResolution(t *testing.T) {
	p, fsys := newProject(t, stubArchive+"-- other.py --\nfrom lib import double\n")
	stub, impl, main := uri.URI("file:///proj/lib.pyi"), uri.URI("file:///proj/lib.py"), uri.URI("file:///proj/main.py")
	analyzeAll(t, p)

	// The link stays while another importer still resolves the pair.
	p.SetContents(main, 1, "r = 1\n", ContentOptions{IsTracked: true})
	analyzeAll(t, p)
	s, _ := p.GetSourceUnit(stub)
	assert.Equal(t, []uri.URI{impl}, s.Shadows)

	delete(fsys, "proj/lib.py")
	p.MarkAllDirty()
	analyzeAll(t, p)
	s, _ = p.GetSourceUnit(stub)
	assert.Empty(t, s.Shadows)
	i, ok := p.GetSourceUnit(impl)
	require.True(t, ok, "tracked units stay")
	assert.Empty(t, i.ShadowedBy)
	assert.Nil(t, p.GetSourceMappers(impl))
	assert.Nil(t, p.GetSourceMappers(stub))
}

func TestImplementationShadowedBySeveralStubs(t *testing.T) {
	const archive = `
-- stubs/lib.pyi --
def a() -> int: ...
-- proj/lib.pyi --
def b() -> str: ...
-- proj/lib.py --
def a():
    return 1
def b():
    return ''
-- proj/main.py --
from lib import a
from .lib import b
x = a()
y = b()
`
	fsys, _ := vfs.FromTxtar([]byte(archive), "/")
	cfg := testConfig()
	cfg.StubPaths = []string{"/stubs"}
	p := New(Options{FS: fsys, Config: cfg})
	t.Cleanup(p.Close)
	main := uri.URI("file:///proj/main.py")
	p.AddTrackedFile(main)
	analyzeAll(t, p)

	assert.Equal(t, "int", typeOf(t, p, main, "x"))
	assert.Equal(t, "str", typeOf(t, p, main, "y"))

	mappers := p.GetSourceMappers("file:///proj/lib.py")
	require.Len(t, mappers, 2)
	assert.Equal(t, uri.URI("file:///proj/lib.pyi"), mappers[0].Stub())
	assert.Equal(t, uri.URI("file:///stubs/lib.pyi"), mappers[1].Stub())
}

func TestTypeAtPosition(t *testing.T) {
	p, _ := newProject(t, "-- m.py --\nclass C:\n    def get(self) -> int:\n        return 1\nc = C()\nn = c.get()\nf(n, key=1)\n")
	u := uri.URI("file:///proj/m.py")
	ctx := context.Background()

	tests := []struct {
		line, col int
		want      string
	}{
		{4, 1, "C"},
		{5, 1, "int"},
		// The name after the dot stands for the bound method access.
		{5, 7, "() -> int"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d:%d", tt.line, tt.col), func(t *testing.T) {
			n, typ, err := p.GetTypeAtPosition(ctx, u, tt.line, tt.col)
			require.NoError(t, err)
			require.NotNil(t, n)
			assert.Equal(t, tt.want, typesystem.Print(typ))
		})
	}

	n, _, err := p.GetTypeAtPosition(ctx, u, 6, 6)
	require.NoError(t, err)
	assert.Nil(t, n, "keyword names have no type")

	analyzeAll(t, p)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrT010}, codes(p.GetDiagnostics(u)))
}

func TestParseResultsAndUnitList(t *testing.T) {
	p, _ := newProject(t, "-- broken.py --\ndef f(:\n    pass\n")
	u := uri.URI("file:///proj/broken.py")
	res := p.GetParseResults(u)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Errors)
	assert.Nil(t, p.GetParseResults("file:///proj/none.py"))

	var listed []uri.URI
	var modules []string
	for _, info := range p.GetSourceUnitList() {
		listed = append(listed, info.URI)
		modules = append(modules, info.Module)
	}
	assert.Equal(t, []uri.URI{uri.Builtins, u}, listed)
	assert.Equal(t, []string{"builtins", "broken"}, modules)
}
