package program

import (
	"github.com/dustin/go-humanize"

	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/uri"
)

// nodeCapacity is the number of loaded syntax nodes reported as full usage.
const nodeCapacity = 1 << 22

var _ cachemgr.CacheOwner = (*Program)(nil)

// GetUsageRatio reports how many syntax nodes the program holds relative
// to nodeCapacity.
func (p *Program) GetUsageRatio() float64 {
	n := 0
	for _, su := range p.units {
		if su.view != nil {
			n += su.view.NodeCount
		}
	}
	r := float64(n) / nodeCapacity
	if r > 1 {
		r = 1
	}
	return r
}

// Evict drops the parse and bind results of every unit that can reload
// its text from disk. Open units and the builtins stub keep theirs.
// Diagnostics and edges survive; a later query re-parses on demand.
func (p *Program) Evict() {
	n := 0
	for _, su := range p.units {
		if su.builtin || !su.diskBacked() || su.view == nil {
			continue
		}
		p.evict(su)
		n++
	}
	p.log.Debug("program caches evicted", "units", n)
}

func (p *Program) evict(su *sourceUnit) {
	su.parse = nil
	su.view = nil
	su.text, su.textLoaded = "", false
}

// HandleMemoryHighUsage evicts every registered cache when the global
// usage ratio is above the configured threshold. It reports whether it
// evicted. While tracking is paused it does nothing.
func (p *Program) HandleMemoryHighUsage() bool {
	ratio := p.cache.GetGlobalUsageRatio()
	if ratio == cachemgr.UnknownRatio || ratio <= p.cfg.Memory.HighUsageThreshold {
		return false
	}
	used, limit := p.cache.HeapUsage()
	p.log.Info("memory usage high, evicting caches",
		"ratio", ratio,
		"heap", humanize.IBytes(used),
		"limit", humanize.IBytes(limit))
	p.cache.EvictAll()
	return true
}

// collect removes units nothing needs any more: not open, not tracked,
// not imported, not shadowed by a live stub and not chained to.
func (p *Program) collect() {
	for {
		var drop []*sourceUnit
		chainedTo := make(map[uri.URI]bool)
		for _, su := range p.units {
			if su.chained != "" {
				chainedTo[su.chained] = true
			}
		}
		for _, su := range p.units {
			if su.builtin || su.open || su.tracked || chainedTo[su.uri] ||
				len(su.importedBy) > 0 || len(su.shadowedBy) > 0 {
				continue
			}
			drop = append(drop, su)
		}
		if len(drop) == 0 {
			return
		}
		for _, su := range drop {
			p.remove(su)
		}
	}
}

// remove deletes su and the edges it holds on other units.
func (p *Program) remove(su *sourceUnit) {
	for u := range su.imports {
		if t := p.units[u]; t != nil {
			delete(t.importedBy, su.uri)
		}
	}
	for u := range su.shadows {
		if t := p.units[u]; t != nil {
			delete(t.shadowedBy, su.uri)
		}
	}
	delete(p.units, su.uri)
	delete(p.pending, su.uri)
	p.setLinks(su, nil)
	p.eval.Forget(su.uri)
	p.gen++
	p.log.Debug("unit removed", "uri", su.uri)
}
