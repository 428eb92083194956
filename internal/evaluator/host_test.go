package evaluator

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/binder"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/typeshed"
	"github.com/funvibe/sable/internal/uri"
)

// memHost serves units from memory and binds them on first use.
type memHost struct {
	texts    map[uri.URI]string
	views    map[uri.URI]*UnitView
	versions map[uri.URI]int
	chain    map[uri.URI]uri.URI
	resolver *modules.Resolver
	gen      uint64
}

func newMemHost(files map[string]string) *memHost {
	h := &memHost{
		texts:    make(map[uri.URI]string),
		views:    make(map[uri.URI]*UnitView),
		versions: make(map[uri.URI]int),
		chain:    make(map[uri.URI]uri.URI),
	}
	for name, text := range files {
		h.texts[uri.URI(name)] = text
	}
	h.resolver = modules.NewResolver(fstest.MapFS{}, []uri.URI{"file:///proj"}, nil, func(u uri.URI) bool {
		_, ok := h.texts[u]
		return ok
	})
	return h
}

func (h *memHost) View(u uri.URI) *UnitView {
	if v, ok := h.views[u]; ok {
		return v
	}
	text, ok := h.texts[u]
	if u == uri.Builtins {
		text, ok = typeshed.Builtins, true
	}
	if !ok {
		return nil
	}
	pr := parser.Parse(string(u), text)
	v := &UnitView{
		URI:         u,
		Module:      pr.Module,
		Index:       pr.Index,
		NodeCount:   pr.NodeCount,
		Bind:        binder.Bind(string(u), pr.Module, u.IsStub()),
		BindVersion: h.versions[u],
	}
	h.views[u] = v
	return v
}

func (h *memHost) ResolveImport(from uri.URI, module string, level int) modules.Resolution {
	return h.resolver.Resolve(from, module, level)
}

func (h *memHost) ChainedPredecessor(u uri.URI) uri.URI { return h.chain[u] }

func (h *memHost) Generation() uint64 { return h.gen }

// set replaces the text of u and rebinds it on next use.
func (h *memHost) set(u uri.URI, text string) {
	h.texts[u] = text
	delete(h.views, u)
	h.versions[u]++
	h.gen++
	h.resolver.Invalidate()
}

const mainURI = uri.URI("file:///proj/main.py")

func newTestEvaluator(t *testing.T, files map[string]string) (*Evaluator, *memHost) {
	t.Helper()
	h := newMemHost(files)
	if v := h.View(mainURI); v != nil {
		for _, d := range v.Bind.Diagnostics {
			t.Logf("binder: %s", d)
		}
	}
	return New(h, nil), h
}

// typeOf returns the printed declared type of the last module-level
// binding of name in u.
func typeOf(t *testing.T, e *Evaluator, h *memHost, u uri.URI, name string) string {
	t.Helper()
	v := h.View(u)
	if v == nil {
		t.Fatalf("unknown unit %s", u)
	}
	sym := v.Bind.Module().Lookup(name)
	if sym == nil {
		t.Fatalf("%s not declared in %s", name, u)
	}
	typ, err := e.GetType(context.Background(), u, sym.Last().Node)
	if err != nil {
		t.Fatalf("GetType: %v", err)
	}
	return typ.String()
}

// findNode returns the first node of u accepted by match, in source order.
func findNode(t *testing.T, h *memHost, u uri.URI, match func(ast.Node) bool) ast.Node {
	t.Helper()
	var found ast.Node
	ast.Inspect(h.View(u).Module, func(n ast.Node) bool {
		if found == nil && match(n) {
			found = n
		}
		return found == nil
	})
	if found == nil {
		t.Fatalf("no matching node in %s", u)
	}
	return found
}

func isCall(n ast.Node) bool {
	_, ok := n.(*ast.CallExpression)
	return ok
}
