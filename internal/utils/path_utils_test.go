package utils

import (
	"testing"

	"github.com/funvibe/sable/internal/uri"
)

func TestModuleName(t *testing.T) {
	roots := []uri.URI{"file:///proj", "file:///proj/vendored"}
	tests := []struct {
		u    uri.URI
		want string
	}{
		{"file:///proj/a.py", "a"},
		{"file:///proj/pkg/mod.pyi", "pkg.mod"},
		{"file:///proj/pkg/__init__.py", "pkg"},
		{"file:///proj/vendored/lib/core.py", "lib.core"},
		{"file:///elsewhere/tool.py", "tool"},
		{uri.Builtins, "builtins"},
	}
	for _, tt := range tests {
		if got := ModuleName(roots, tt.u); got != tt.want {
			t.Errorf("ModuleName(%s) = %q, want %q", tt.u, got, tt.want)
		}
	}
}

func TestRelativeBase(t *testing.T) {
	if got := RelativeBase("file:///proj/pkg/sub/m.py", 1); got != "file:///proj/pkg/sub" {
		t.Errorf("level 1 = %s", got)
	}
	if got := RelativeBase("file:///proj/pkg/sub/m.py", 3); got != "file:///proj" {
		t.Errorf("level 3 = %s", got)
	}
	if got := RelativeBase(uri.Cell("proj/nb.ipynb", 2), 1); got != "file:///proj" {
		t.Errorf("cell = %s", got)
	}
}
