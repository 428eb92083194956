package program

import (
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/modules"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

// host is the evaluator's window onto the program's units.
type host struct{ p *Program }

var _ evaluator.Host = (*host)(nil)

// View binds u on first use. Units the program does not know yet are
// created when they exist on disk.
func (h *host) View(u uri.URI) *evaluator.UnitView {
	su := h.p.units[u]
	if su == nil {
		if !vfs.IsFile(h.p.fsys, u) {
			return nil
		}
		su = h.p.ensureUnit(u)
	}
	return h.p.ensureBound(su)
}

func (h *host) ResolveImport(from uri.URI, module string, level int) modules.Resolution {
	return h.p.resolver.Resolve(from, module, level)
}

func (h *host) ChainedPredecessor(u uri.URI) uri.URI {
	if su := h.p.units[u]; su != nil {
		return su.chained
	}
	return ""
}

func (h *host) Generation() uint64 { return h.p.gen }
