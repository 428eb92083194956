package program

import (
	"crypto/sha256"
	"maps"
	"slices"

	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/parser"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/utils"
)

// NotOpen is the version of a unit whose content comes from disk.
const NotOpen = -1

// sourceUnit is the program's record of one document. The parse and bind
// results it points to are immutable once published and may be shared
// with clones.
type sourceUnit struct {
	uri     uri.URI
	version int
	open    bool
	tracked bool
	builtin bool
	chained uri.URI

	text       string
	textLoaded bool
	// fingerprint identifies the text the current bind results came from,
	// so a re-parse after eviction can tell whether the disk changed.
	fingerprint [sha256.Size]byte

	parse       *parser.Results
	view        *evaluator.UnitView
	bindVersion int
	everBound   bool

	frontDiags  []*diagnostics.DiagnosticError // parse and bind
	importDiags []*diagnostics.DiagnosticError
	checkDiags  []*diagnostics.DiagnosticError

	// needsBind: text changed since the last bind.
	needsBind bool
	// needsCheck: checker results are stale.
	needsCheck bool
	// reresolve: imports must be resolved again, files came or went.
	reresolve  bool
	unresolved bool

	imports    map[uri.URI]bool
	importedBy map[uri.URI]bool
	shadows    map[uri.URI]bool // stub -> implementation
	shadowedBy map[uri.URI]bool
	// links are the stub/implementation pairs this unit's imports resolved.
	links map[shadowLink]bool
}

type shadowLink struct {
	stub, impl uri.URI
}

func newSourceUnit(u uri.URI) *sourceUnit {
	return &sourceUnit{
		uri:        u,
		version:    NotOpen,
		needsCheck: true,
		imports:    make(map[uri.URI]bool),
		importedBy: make(map[uri.URI]bool),
		shadows:    make(map[uri.URI]bool),
		shadowedBy: make(map[uri.URI]bool),
	}
}

// clone copies the record; edge sets are copied, results are shared.
func (su *sourceUnit) clone() *sourceUnit {
	c := *su
	c.imports = maps.Clone(su.imports)
	c.importedBy = maps.Clone(su.importedBy)
	c.shadows = maps.Clone(su.shadows)
	c.shadowedBy = maps.Clone(su.shadowedBy)
	c.links = maps.Clone(su.links)
	return &c
}

func (su *sourceUnit) isStub() bool { return su.uri.IsStub() }

// diskBacked units can reload their text after eviction.
func (su *sourceUnit) diskBacked() bool {
	return !su.open && su.uri.Scheme() == uri.SchemeFile
}

func (su *sourceUnit) bound() bool { return su.view != nil && !su.needsBind }

func (su *sourceUnit) diagnostics() []*diagnostics.DiagnosticError {
	var out []*diagnostics.DiagnosticError
	out = append(out, su.frontDiags...)
	out = append(out, su.importDiags...)
	out = append(out, su.checkDiags...)
	diagnostics.Sort(out)
	return out
}

func sortedKeys(m map[uri.URI]bool) []uri.URI {
	return slices.Sorted(maps.Keys(m))
}

// UnitInfo is a read-only snapshot of one unit and its edges.
type UnitInfo struct {
	URI                uri.URI
	Module             string
	Version            int
	Open               bool
	Tracked            bool
	Stub               bool
	ChainedPredecessor uri.URI
	BindVersion        int
	Checked            bool

	Imports    []uri.URI
	ImportedBy []uri.URI
	Shadows    []uri.URI
	ShadowedBy []uri.URI
}

func (su *sourceUnit) info(roots []uri.URI) UnitInfo {
	return UnitInfo{
		URI:                su.uri,
		Module:             utils.ModuleName(roots, su.uri),
		Version:            su.version,
		Open:               su.open,
		Tracked:            su.tracked,
		Stub:               su.isStub(),
		ChainedPredecessor: su.chained,
		BindVersion:        su.bindVersion,
		Checked:            !su.needsCheck,
		Imports:            sortedKeys(su.imports),
		ImportedBy:         sortedKeys(su.importedBy),
		Shadows:            sortedKeys(su.shadows),
		ShadowedBy:         sortedKeys(su.shadowedBy),
	}
}
