package sourcemapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/sable/internal/binder"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/uri"
)

const (
	stubURI = uri.URI("file:///proj/lib.pyi")
	implURI = uri.URI("file:///proj/lib.py")
)

const stubText = `class Shape:
    def area(self) -> float: ...
    def scale(self, factor: float) -> None: ...

def make(kind: str, size: float) -> Shape: ...
def legacy(a: int) -> int: ...
version: str
`

const implText = `class Shape:
    """A drawable shape."""

    def area(this):
        """Area in square units."""
        return 0.0

    def scale(self, factor):
        pass

def make(kind, size):
    return Shape()

def legacy(a, b):
    return a

version = "1.0"
`

func loader(files map[uri.URI]string) Loader {
	views := make(map[uri.URI]*evaluator.UnitView)
	return func(u uri.URI) *evaluator.UnitView {
		if v, ok := views[u]; ok {
			return v
		}
		text, ok := files[u]
		if !ok {
			return nil
		}
		pr := parser.Parse(string(u), text)
		v := &evaluator.UnitView{URI: u, Module: pr.Module, Index: pr.Index, NodeCount: pr.NodeCount,
			Bind: binder.Bind(string(u), pr.Module, u.IsStub())}
		views[u] = v
		return v
	}
}

func newMapper(t *testing.T) (*Mapper, Loader) {
	t.Helper()
	load := loader(map[uri.URI]string{stubURI: stubText, implURI: implText})
	require.NotNil(t, load(stubURI))
	require.NotNil(t, load(implURI))
	return New(stubURI, []uri.URI{implURI}, load), load
}

// declIn returns the last declaration of name reached through the class
// names in path.
func declIn(t *testing.T, v *evaluator.UnitView, name string, path ...string) *symbols.Declaration {
	t.Helper()
	scope, ok := descend(v, path)
	require.True(t, ok, "path %v", path)
	sym := scope.Lookup(name)
	require.NotNil(t, sym, "symbol %s", name)
	return sym.Last()
}

func spanLine(m Match) int { return m.Decl.Span.Start.Line }

func TestFindImplementations(t *testing.T) {
	m, load := newMapper(t)
	stub := load(stubURI)

	tests := []struct {
		name string
		path []string
		line int
	}{
		{"Shape", nil, 1},
		{"area", []string{"Shape"}, 4},
		{"scale", []string{"Shape"}, 8},
		{"make", nil, 11},
		{"version", nil, 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.FindImplementations(declIn(t, stub, tt.name, tt.path...))
			require.Len(t, got, 1)
			assert.Equal(t, implURI, got[0].Unit)
			assert.Equal(t, tt.line, spanLine(got[0]))
		})
	}
}

func TestChangedSignatureFallsBackToName(t *testing.T) {
	m, load := newMapper(t)
	got := m.FindImplementations(declIn(t, load(stubURI), "legacy"))
	require.Len(t, got, 1)
	assert.Equal(t, symbols.DeclFunction, got[0].Decl.Kind)
}

func TestFindStubDeclarations(t *testing.T) {
	m, load := newMapper(t)
	got := m.FindStubDeclarations(implURI, declIn(t, load(implURI), "scale", "Shape"))
	require.Len(t, got, 1)
	assert.Equal(t, stubURI, got[0].Unit)
	assert.Equal(t, 3, spanLine(got[0]))
}

func TestDocumentationFromImplementation(t *testing.T) {
	m, load := newMapper(t)
	stub := load(stubURI)
	assert.Equal(t, "A drawable shape.", m.Documentation(declIn(t, stub, "Shape")))
	assert.Equal(t, "Area in square units.", m.Documentation(declIn(t, stub, "area", "Shape")))
	assert.Empty(t, m.Documentation(declIn(t, stub, "make")))
}

func TestStubWithoutImplementation(t *testing.T) {
	load := loader(map[uri.URI]string{stubURI: stubText})
	m := New(stubURI, nil, load)
	assert.Empty(t, m.FindImplementations(declIn(t, load(stubURI), "make")))

	// An implementation the program cannot load is skipped too.
	m = New(stubURI, []uri.URI{"file:///proj/missing.py"}, load)
	assert.Empty(t, m.FindImplementations(declIn(t, load(stubURI), "make")))
}

func TestSignaturesCompatible(t *testing.T) {
	load := loader(map[uri.URI]string{
		stubURI: "def f(a, b): ...\ndef g(*args): ...\n",
		implURI: "def f(a, c):\n    pass\ndef g(x, y):\n    pass\n",
	})
	stub, impl := load(stubURI), load(implURI)
	assert.False(t, signaturesCompatible(defOf(stub, declIn(t, stub, "f")), defOf(impl, declIn(t, impl, "f"))))
	assert.True(t, signaturesCompatible(defOf(stub, declIn(t, stub, "g")), defOf(impl, declIn(t, impl, "g"))))
}
