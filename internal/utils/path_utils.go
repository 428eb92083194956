package utils

import (
	"path"
	"strings"

	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/uri"
)

// RelativeBase returns the directory a relative import with the given
// number of leading dots starts from. Cells resolve next to their notebook.
func RelativeBase(from uri.URI, level int) uri.URI {
	dir := from.Dir()
	if from.IsCell() {
		dir = uri.URI(uri.SchemeFile + "://" + path.Dir(from.Path()))
	}
	for i := 1; i < level; i++ {
		dir = dir.Dir()
	}
	return dir
}

// ModuleName returns the dotted module name of u relative to the deepest
// root containing it, or the bare file name when no root does. A package
// initializer is named after its directory.
func ModuleName(roots []uri.URI, u uri.URI) string {
	if u == uri.Builtins {
		return "builtins"
	}
	p := u.Path()
	best := ""
	for _, r := range roots {
		rp := strings.TrimSuffix(r.Path(), "/") + "/"
		if strings.HasPrefix(p, rp) && len(rp) > len(best) {
			best = rp
		}
	}
	rel := path.Base(p)
	if best != "" {
		rel = strings.TrimPrefix(p, best)
	}
	rel = config.TrimSourceExt(rel)
	rel = strings.TrimSuffix(strings.TrimSuffix(rel, config.PackageInit), "/")
	if rel == "" {
		return path.Base(path.Dir(p))
	}
	return strings.ReplaceAll(rel, "/", ".")
}
