package program

import (
	"context"
	"crypto/sha256"
	"fmt"
	"maps"
	"slices"

	"github.com/funvibe/sable/internal/analyzer"
	"github.com/funvibe/sable/internal/binder"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/pipeline"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

// Analyze checks up to Analysis.MaxWorkPerCall dirty units and reports
// whether more work remains. Hosts call it in a loop and may cancel ctx
// between or during calls; a canceled unit stays dirty.
func (p *Program) Analyze(ctx context.Context) (bool, error) {
	if err := p.sync(ctx); err != nil {
		return true, err
	}
	work := p.checkable()
	budget := p.cfg.Analysis.MaxWorkPerCall
	for len(work) > 0 && budget > 0 {
		if err := ctx.Err(); err != nil {
			return true, fmt.Errorf("%w: %w", evaluator.ErrCanceled, err)
		}
		su := work[0]
		work = work[1:]
		if err := p.check(ctx, su); err != nil {
			return true, err
		}
		budget--
	}
	p.collect()
	return len(p.checkable()) > 0, nil
}

// checkable lists the dirty units the checker should run on, in URI order.
func (p *Program) checkable() []*sourceUnit {
	var out []*sourceUnit
	for _, u := range slices.Sorted(maps.Keys(p.units)) {
		su := p.units[u]
		if su.builtin || !su.needsCheck || !(su.tracked || su.open) {
			continue
		}
		if p.cfg.Analysis.CheckOnlyOpenFiles && !su.open {
			continue
		}
		out = append(out, su)
	}
	return out
}

// sync binds every changed unit that was bound before, re-resolves
// imports that may resolve differently now, and binds what the dirty
// units can see. After it returns no evaluator request rebinds a unit, so
// the generation stays put while the checker runs.
func (p *Program) sync(ctx context.Context) error {
	for _, u := range slices.Sorted(maps.Keys(p.pending)) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", evaluator.ErrCanceled, err)
		}
		delete(p.pending, u)
		if su := p.units[u]; su != nil && su.needsBind {
			p.bind(su)
		}
	}
	for _, u := range slices.Sorted(maps.Keys(p.units)) {
		su := p.units[u]
		if su.reresolve && su.bound() && p.updateImports(su) {
			p.resolutionChanged(su)
		}
		su.reresolve = false
	}

	seen := make(map[uri.URI]bool)
	work := p.checkable()
	for len(work) > 0 {
		su := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[su.uri] {
			continue
		}
		seen[su.uri] = true
		if !su.bound() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", evaluator.ErrCanceled, err)
			}
			p.bind(su)
		}
		for _, u := range sortedKeys(su.imports) {
			work = append(work, p.units[u])
		}
		if pred := p.units[su.chained]; pred != nil {
			work = append(work, pred)
		}
	}
	if b := p.units[uri.Builtins]; !b.bound() {
		p.bind(b)
	}
	return nil
}

// ensureBound parses and binds su on first use or after eviction.
func (p *Program) ensureBound(su *sourceUnit) *evaluator.UnitView {
	if !su.bound() {
		p.bind(su)
	}
	return su.view
}

func (p *Program) loadText(su *sourceUnit) {
	if su.textLoaded {
		return
	}
	text, err := vfs.ReadFile(p.fsys, su.uri)
	if err != nil {
		p.log.Debug("unit has no readable content", "uri", su.uri, "err", err)
		text = ""
	}
	su.text, su.textLoaded = text, true
}

// bind runs the front end on su and publishes the results. The bind
// version only moves when the text differs from the last bind, so a
// re-parse after eviction keeps evaluator caches of dependents valid.
func (p *Program) bind(su *sourceUnit) {
	p.loadText(su)
	sum := sha256.Sum256([]byte(su.text))
	rebound := su.everBound
	changed := !rebound || su.needsBind || sum != su.fingerprint

	pc := &pipeline.Context{URI: string(su.uri), Text: su.text}
	pc = pipeline.New(
		&parser.ParserProcessor{},
		pipeline.ProcessorFunc(func(c *pipeline.Context) *pipeline.Context {
			su.parse = parser.ResultsOf(c, slices.Clone(c.Errors))
			return c
		}),
		&binder.BinderProcessor{},
	).Run(pc)
	p.stats.Parses++
	p.stats.Binds++

	su.frontDiags = diagnostics.WithURI(pc.Errors, string(su.uri))
	su.fingerprint = sum
	su.needsBind = false
	su.everBound = true
	delete(p.pending, su.uri)
	if changed {
		su.bindVersion++
		p.gen++
		if rebound {
			p.markDependentsDirty(su)
		}
	}
	su.view = &evaluator.UnitView{
		URI:         su.uri,
		Module:      pc.Module,
		Index:       pc.Index,
		NodeCount:   pc.NodeCount,
		Bind:        pc.Bind,
		BindVersion: su.bindVersion,
	}
	p.log.Debug("unit bound", "uri", su.uri, "bindVersion", su.bindVersion, "nodes", pc.NodeCount, "changed", changed)
	if !su.builtin && p.updateImports(su) && !changed {
		p.resolutionChanged(su)
	}
}

// updateImports diffs the import and shadow edges of su against what its
// import statements resolve to now, keeping importedBy and shadowedBy
// symmetric. It reports whether any resolution differs from the last one.
func (p *Program) updateImports(su *sourceUnit) bool {
	resolved, diags := p.resolver.ResolveImports(su.uri, su.view.Bind.Imports)
	su.importDiags = diagnostics.WithURI(diags, string(su.uri))
	wasUnresolved := su.unresolved
	su.unresolved = len(diags) > 0

	next := make(map[uri.URI]bool, len(resolved))
	links := make(map[shadowLink]bool)
	for _, res := range resolved {
		if res.URI == su.uri || res.URI == uri.Builtins {
			continue
		}
		next[res.URI] = true
		p.ensureUnit(res.URI)
		if res.Implementation != "" && res.Implementation != res.URI {
			p.ensureUnit(res.Implementation)
			links[shadowLink{stub: res.URI, impl: res.Implementation}] = true
		}
	}
	changed := !maps.Equal(next, su.imports) || !maps.Equal(links, su.links) ||
		wasUnresolved != su.unresolved

	for old := range su.imports {
		if next[old] {
			continue
		}
		if t := p.units[old]; t != nil {
			delete(t.importedBy, su.uri)
		}
	}
	for u := range next {
		if !su.imports[u] {
			p.units[u].importedBy[su.uri] = true
		}
	}
	su.imports = next
	p.setLinks(su, links)
	if changed {
		su.needsCheck = true
	}
	return changed
}

// resolutionChanged invalidates what su and its dependents derived from
// the old import targets. The text is unchanged, so nothing is re-parsed.
func (p *Program) resolutionChanged(su *sourceUnit) {
	p.log.Debug("imports resolve differently", "uri", su.uri, "imports", len(su.imports))
	p.rescope(su)
	p.markDependentsDirty(su)
}

// setLinks replaces the shadow links su's imports contribute. A stub and
// its implementation stay linked while any unit still resolves the pair.
func (p *Program) setLinks(su *sourceUnit, links map[shadowLink]bool) {
	old := su.links
	su.links = links
	for l := range links {
		stub, impl := p.units[l.stub], p.units[l.impl]
		if stub != nil && impl != nil {
			stub.shadows[impl.uri] = true
			impl.shadowedBy[stub.uri] = true
		}
	}
	for l := range old {
		if links[l] || p.linkedElsewhere(l) {
			continue
		}
		if stub := p.units[l.stub]; stub != nil {
			delete(stub.shadows, l.impl)
		}
		if impl := p.units[l.impl]; impl != nil {
			delete(impl.shadowedBy, l.stub)
		}
	}
}

func (p *Program) linkedElsewhere(l shadowLink) bool {
	for _, su := range p.units {
		if su.links[l] {
			return true
		}
	}
	return false
}

// check runs the checker on su. A canceled check leaves su dirty.
func (p *Program) check(ctx context.Context, su *sourceUnit) error {
	v := p.ensureBound(su)
	pc := &pipeline.Context{
		Ctx:       ctx,
		URI:       string(su.uri),
		Text:      su.text,
		Module:    v.Module,
		Index:     v.Index,
		NodeCount: v.NodeCount,
		Bind:      v.Bind,
	}
	if su.parse != nil {
		pc.Lines = su.parse.Lines
	}
	pc = pipeline.New(&analyzer.CheckerProcessor{Eval: p.eval}).Run(pc)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", evaluator.ErrCanceled, err)
	}
	su.checkDiags = pc.Errors
	su.needsCheck = false
	p.stats.Checks++
	p.log.Debug("unit checked", "uri", su.uri, "diagnostics", len(su.checkDiags))
	return nil
}
