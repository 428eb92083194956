// Package program tracks the units of a project, keeps their dependency
// graph consistent under edits and drives analysis one unit at a time.
//
// A Program is not safe for concurrent use. Hosts that need concurrency
// serialize every call on one instance, or work on a Clone.
package program

import (
	"io/fs"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/typeshed"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

// Options configure a Program. Every field may be left zero.
type Options struct {
	// FS provides on-disk contents. Defaults to the OS file system.
	FS fs.FS
	// Config supplies roots, stub paths and memory settings.
	Config *config.Options
	Logger *slog.Logger
	// CacheManager receives the program and its evaluator as cache owners.
	// A private manager is created when nil.
	CacheManager *cachemgr.Manager
}

// ContentOptions accompany SetContents. A unit with a version is open;
// there is no separate flag for it.
type ContentOptions struct {
	IsTracked          bool
	ChainedPredecessor uri.URI
}

// Stats counts work done since the program was created.
type Stats struct {
	Parses int
	Binds  int
	Checks int
}

type Program struct {
	id    uuid.UUID
	opts  Options
	cfg   *config.Options
	log   *slog.Logger
	fsys  fs.FS
	cache *cachemgr.Manager

	resolver *modules.Resolver
	eval     *evaluator.Evaluator
	host     *host

	units map[uri.URI]*sourceUnit
	// pending holds bound units whose text changed; they are bound again
	// before the next evaluation so no evaluator cache sees both versions.
	pending map[uri.URI]bool
	gen     uint64
	stats   Stats
	closed  bool
}

// New creates an empty program holding only the builtins stub.
func New(opts Options) *Program {
	if opts.FS == nil {
		opts.FS = vfs.OS()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CacheManager == nil {
		opts.CacheManager = cachemgr.New(cachemgr.WithHeapLimit(opts.Config.Memory.HeapLimitBytes))
	}
	p := &Program{
		id:      uuid.New(),
		opts:    opts,
		cfg:     opts.Config,
		fsys:    opts.FS,
		cache:   opts.CacheManager,
		units:   make(map[uri.URI]*sourceUnit),
		pending: make(map[uri.URI]bool),
	}
	p.log = opts.Logger.With("program", p.id.String())
	p.init()

	b := newSourceUnit(uri.Builtins)
	b.builtin = true
	b.text, b.textLoaded = typeshed.Builtins, true
	b.needsCheck = false
	p.units[uri.Builtins] = b
	return p
}

// init wires the per-instance collaborators around p.units.
func (p *Program) init() {
	p.host = &host{p}
	p.resolver = modules.NewResolver(p.fsys, p.uris(p.cfg.Roots), p.uris(p.cfg.StubPaths), p.inMemoryOnly)
	p.eval = evaluator.New(p.host, p.log)
	p.cache.RegisterCacheOwner(p)
	p.cache.RegisterCacheOwner(p.eval)
}

func (p *Program) uris(paths []string) []uri.URI {
	out := make([]uri.URI, 0, len(paths))
	for _, path := range paths {
		out = append(out, uri.FromPath(path))
	}
	return out
}

// inMemoryOnly reports open units, which exist for import resolution even
// without a file.
func (p *Program) inMemoryOnly(u uri.URI) bool {
	su := p.units[u]
	return su != nil && su.open
}

// ID identifies this instance; clones get fresh IDs.
func (p *Program) ID() uuid.UUID { return p.id }

// Close unregisters the program's cache owners. The program must not be
// used afterwards.
func (p *Program) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.cache.UnregisterCacheOwner(p)
	p.cache.UnregisterCacheOwner(p.eval)
	p.log.Debug("program closed", "units", len(p.units))
}

// Clone returns an independent program with the same units. Parse and
// bind results are shared; evaluation caches start empty.
func (p *Program) Clone() *Program {
	c := &Program{
		id:      uuid.New(),
		opts:    p.opts,
		cfg:     p.cfg,
		fsys:    p.fsys,
		cache:   p.cache,
		units:   make(map[uri.URI]*sourceUnit, len(p.units)),
		pending: make(map[uri.URI]bool, len(p.pending)),
		gen:     p.gen,
	}
	c.log = p.opts.Logger.With("program", c.id.String())
	for u, su := range p.units {
		c.units[u] = su.clone()
	}
	for u := range p.pending {
		c.pending[u] = true
	}
	c.init()
	c.log.Debug("program cloned", "from", p.id.String(), "units", len(c.units))
	return c
}

// ensureUnit returns the record of u, creating it on first reference.
func (p *Program) ensureUnit(u uri.URI) *sourceUnit {
	if su := p.units[u]; su != nil {
		return su
	}
	su := newSourceUnit(u)
	p.units[u] = su
	p.log.Debug("unit created", "uri", u)
	return su
}

// SetContents replaces the text of u. A negative version closes the
// unit and reverts it to its on-disk content.
func (p *Program) SetContents(u uri.URI, version int, text string, opts ContentOptions) {
	if version < 0 {
		p.setTracked(p.ensureUnit(u), opts.IsTracked)
		p.SetClosed(u)
		return
	}
	existed := p.units[u] != nil
	su := p.ensureUnit(u)
	assert.That(!su.builtin, "builtins stub cannot be edited")

	wasOpen := su.open
	su.open = true
	su.version = version
	p.setTracked(su, opts.IsTracked)
	if !existed || !wasOpen {
		// The resolver's overlay changed.
		p.filesChanged()
	}
	p.setChained(su, opts.ChainedPredecessor)

	if su.textLoaded && su.text == text {
		return
	}
	su.text, su.textLoaded = text, true
	p.contentChanged(su)
}

// contentChanged schedules a re-bind of su and re-checks of everything
// that can see it.
func (p *Program) contentChanged(su *sourceUnit) {
	su.needsBind = true
	if su.everBound {
		p.pending[su.uri] = true
	}
	p.markDependentsDirty(su)
}

// markDependentsDirty marks su, its transitive importers and the cells
// chained after it as needing a check.
func (p *Program) markDependentsDirty(su *sourceUnit) {
	seen := map[uri.URI]bool{}
	work := []*sourceUnit{su}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[cur.uri] {
			continue
		}
		seen[cur.uri] = true
		if !cur.builtin {
			cur.needsCheck = true
		}
		for from := range cur.importedBy {
			if dep := p.units[from]; dep != nil {
				work = append(work, dep)
			}
		}
		for _, next := range p.chainSuccessors(cur.uri) {
			work = append(work, next)
		}
	}
}

func (p *Program) chainSuccessors(u uri.URI) []*sourceUnit {
	var out []*sourceUnit
	for _, su := range p.units {
		if su.chained == u && su.chained != "" {
			out = append(out, su)
		}
	}
	return out
}

// filesChanged schedules a re-resolution of every unit's imports once
// files appeared or disappeared: any import may now find a different
// target, a stub may start or stop shadowing an implementation.
func (p *Program) filesChanged() {
	p.resolver.Invalidate()
	for _, su := range p.units {
		if !su.builtin {
			su.reresolve = true
		}
	}
}

// SetClosed drops the open status of u. Its text reverts to disk. A cell
// is spliced out of its chain, and a unit nothing references any more is
// evicted.
func (p *Program) SetClosed(u uri.URI) {
	su := p.units[u]
	if su == nil || su.builtin {
		return
	}
	wasOpen := su.open
	su.open = false
	su.version = NotOpen
	if wasOpen {
		p.filesChanged()
	}

	if u.IsCell() {
		for _, next := range p.chainSuccessors(u) {
			p.setChained(next, su.chained)
		}
		su.chained = ""
	} else if su.textLoaded {
		text, err := vfs.ReadFile(p.fsys, u)
		if err != nil {
			text = ""
		}
		if text != su.text {
			su.text = text
			p.contentChanged(su)
		}
	}
	p.collect()
}

// UpdateChainedPredecessor makes pred the cell whose bindings u sees.
// A chain cycle is an engine bug and fails loudly.
func (p *Program) UpdateChainedPredecessor(u uri.URI, pred uri.URI) {
	p.setChained(p.ensureUnit(u), pred)
}

func (p *Program) setChained(su *sourceUnit, pred uri.URI) {
	if su.chained == pred {
		return
	}
	for cur := pred; cur != ""; {
		assert.That(cur != su.uri, "chained predecessor cycle: %s -> %s", su.uri, pred)
		next := p.units[cur]
		if next == nil {
			break
		}
		cur = next.chained
	}
	su.chained = pred
	if pred != "" {
		p.ensureUnit(pred)
	}
	p.rescope(su)
	p.markDependentsDirty(su)
}

// rescope invalidates evaluation results of su without re-parsing: what
// the unit's names resolve to changed.
func (p *Program) rescope(su *sourceUnit) {
	if !su.everBound {
		return
	}
	su.bindVersion++
	p.gen++
	if su.view != nil {
		v := *su.view
		v.BindVersion = su.bindVersion
		su.view = &v
	}
}

// MarkDirty re-reads units that are not open from disk and schedules
// re-checks. With evenIfUnchanged the units are re-bound regardless.
func (p *Program) MarkDirty(uris []uri.URI, evenIfUnchanged bool) {
	for _, u := range uris {
		su := p.units[u]
		if su == nil || su.builtin {
			continue
		}
		p.refresh(su, evenIfUnchanged)
	}
}

// MarkAllDirty re-checks every unit.
func (p *Program) MarkAllDirty() {
	p.resolver.Invalidate()
	for _, u := range slices.Sorted(maps.Keys(p.units)) {
		su := p.units[u]
		if su.builtin {
			continue
		}
		su.reresolve = true
		p.refresh(su, false)
		su.needsCheck = true
	}
}

func (p *Program) refresh(su *sourceUnit, force bool) {
	changed := force
	if su.diskBacked() && su.textLoaded {
		text, err := vfs.ReadFile(p.fsys, su.uri)
		if err != nil {
			text = ""
		}
		if text != su.text {
			su.text = text
			changed = true
		}
	}
	if changed {
		p.contentChanged(su)
		return
	}
	p.markDependentsDirty(su)
}

// SetTrackedFiles makes exactly uris the tracked units. Units that lose
// tracking and are otherwise unreferenced are evicted.
func (p *Program) SetTrackedFiles(uris []uri.URI) {
	want := make(map[uri.URI]bool, len(uris))
	for _, u := range uris {
		want[u] = true
	}
	for u, su := range p.units {
		if su.tracked && !want[u] {
			su.tracked = false
		}
	}
	for _, u := range uris {
		p.AddTrackedFile(u)
	}
	p.collect()
}

// AddTrackedFile tracks u, creating it if needed.
func (p *Program) AddTrackedFile(u uri.URI) {
	su := p.ensureUnit(u)
	p.setTracked(su, true)
}

func (p *Program) setTracked(su *sourceUnit, tracked bool) {
	if su.builtin || su.tracked == tracked {
		return
	}
	su.tracked = tracked
	if tracked {
		su.needsCheck = true
	}
}
