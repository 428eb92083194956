package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sourcegraph/go-lsp"
)

const brokenArchive = `
-- a.py --
def foo(x):
    return x
-- b.py --
from a import foo
y = foo()
`

const cleanArchive = `
-- a.py --
def foo():
    return 1
-- b.py --
from a import foo
y = foo()
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"sable"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckText(t *testing.T) {
	archive := writeFile(t, "broken.txtar", brokenArchive)
	out, err := run(t, "check", "--txtar", archive)
	if !errors.Is(err, errProblems) {
		t.Fatalf("err = %v, want errProblems", err)
	}
	if !strings.Contains(out, "b.py:2:") || !strings.Contains(out, "error T001") {
		t.Errorf("missing T001 line in:\n%s", out)
	}
	if !strings.Contains(out, "2 files checked, 1 errors") {
		t.Errorf("missing summary in:\n%s", out)
	}
}

func TestCheckClean(t *testing.T) {
	archive := writeFile(t, "clean.txtar", cleanArchive)
	out, err := run(t, "check", "--txtar", archive)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 errors") {
		t.Errorf("summary: %s", out)
	}
}

func TestCheckJSON(t *testing.T) {
	archive := writeFile(t, "broken.txtar", brokenArchive)
	out, err := run(t, "check", "--txtar", archive, "--format", "json")
	if !errors.Is(err, errProblems) {
		t.Fatalf("err = %v", err)
	}
	var diags []jsonDiagnostic
	if err := json.Unmarshal([]byte(out), &diags); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.Code != "T001" || d.Path != "b.py" || d.Line != 2 || d.Severity != "error" {
		t.Errorf("unexpected diagnostic %+v", d)
	}
}

func TestCheckLSP(t *testing.T) {
	archive := writeFile(t, "broken.txtar", brokenArchive)
	out, err := run(t, "check", "--txtar", archive, "-f", "lsp")
	if !errors.Is(err, errProblems) {
		t.Fatalf("err = %v", err)
	}
	var params []lsp.PublishDiagnosticsParams
	if err := json.Unmarshal([]byte(out), &params); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(params) != 2 {
		t.Fatalf("got %d files, want 2", len(params))
	}
	byURI := map[lsp.DocumentURI][]lsp.Diagnostic{}
	for _, p := range params {
		byURI[p.URI] = p.Diagnostics
	}
	if got := byURI["file:///txtar/a.py"]; len(got) != 0 {
		t.Errorf("a.py: %v", got)
	}
	b := byURI["file:///txtar/b.py"]
	if len(b) != 1 {
		t.Fatalf("b.py: %v", b)
	}
	if b[0].Range.Start.Line != 1 || b[0].Severity != lsp.Error || b[0].Source != "sable" {
		t.Errorf("unexpected diagnostic %+v", b[0])
	}
}

func TestCheckUnknownFormat(t *testing.T) {
	archive := writeFile(t, "clean.txtar", cleanArchive)
	_, err := run(t, "check", "--txtar", archive, "-f", "xml")
	if err == nil || errors.Is(err, errProblems) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckDisk(t *testing.T) {
	path := writeFile(t, "main.py", "x: int = 'a'\n")
	out, err := run(t, "check", path)
	if !errors.Is(err, errProblems) {
		t.Fatalf("err = %v\n%s", err, out)
	}
	if !strings.Contains(out, "T008") {
		t.Errorf("missing T008 in:\n%s", out)
	}
}

func TestTypeCommand(t *testing.T) {
	path := writeFile(t, "main.py", "def foo():\n    \"\"\"Returns one.\"\"\"\n    return 1\nx = foo()\n")

	out, err := run(t, "type", path+":4:1")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); got != "int" {
		t.Errorf("type = %q, want int", got)
	}

	out, err = run(t, "type", "--hover", path+":4:5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "foo: () -> int") || !strings.Contains(out, "Returns one.") {
		t.Errorf("hover = %q", out)
	}

	if _, err := run(t, "type", path+":9:1"); err == nil {
		t.Error("expected an error for an empty position")
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    position
		wantErr bool
	}{
		{in: "a.py:3:7", want: position{path: "a.py", line: 3, col: 7}},
		{in: `C:\src\a.py:1:1`, want: position{path: `C:\src\a.py`, line: 1, col: 1}},
		{in: "a.py:3", wantErr: true},
		{in: "a.py", wantErr: true},
		{in: ":1:1", wantErr: true},
		{in: "a.py:x:1", wantErr: true},
		{in: "a.py:1:0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePosition(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePosition(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parsePosition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "sable ") {
		t.Errorf("version = %q", out)
	}
}
