package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/sourcegraph/go-lsp"

	"github.com/funvibe/sable/internal/diagnostics"
)

var severityColor = map[diagnostics.Severity]pterm.Color{
	diagnostics.SeverityError:       pterm.FgRed,
	diagnostics.SeverityWarning:     pterm.FgYellow,
	diagnostics.SeverityInformation: pterm.FgCyan,
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeText prints one line per diagnostic followed by a summary.
func writeText(w io.Writer, proj *project, res *checkResult) error {
	if isTerminal(w) {
		pterm.EnableColor()
	} else {
		pterm.DisableColor()
	}
	for _, u := range res.files {
		for _, d := range res.diags[u] {
			sev := severityColor[d.Severity].Sprintf("%s %s", d.Severity, d.Code)
			if _, err := fmt.Fprintf(w, "%s:%d:%d: %s: %s\n",
				proj.display(u), d.Span.Start.Line, d.Span.Start.Column, sev, d.Message); err != nil {
				return err
			}
		}
	}

	summary := fmt.Sprintf("%s files checked, %s errors, %s warnings in %s (%s heap)",
		humanize.Comma(int64(len(res.files))),
		humanize.Comma(int64(res.errors)),
		humanize.Comma(int64(res.warnings)),
		res.elapsed.Round(time.Millisecond),
		humanize.IBytes(res.heap))
	style := pterm.FgLightGreen
	if res.errors > 0 {
		style = pterm.FgRed
	}
	_, err := fmt.Fprintln(w, style.Sprint(summary))
	return err
}

type jsonDiagnostic struct {
	URI       string `json:"uri"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Severity  string `json:"severity"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func writeJSON(w io.Writer, proj *project, res *checkResult) error {
	out := []jsonDiagnostic{}
	for _, u := range res.files {
		for _, d := range res.diags[u] {
			out = append(out, jsonDiagnostic{
				URI:       string(u),
				Path:      proj.display(u),
				Line:      d.Span.Start.Line,
				Column:    d.Span.Start.Column,
				EndLine:   d.Span.End.Line,
				EndColumn: d.Span.End.Column,
				Severity:  d.Severity.String(),
				Code:      string(d.Code),
				Message:   d.Message,
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var lspSeverity = map[diagnostics.Severity]lsp.DiagnosticSeverity{
	diagnostics.SeverityError:       lsp.Error,
	diagnostics.SeverityWarning:     lsp.Warning,
	diagnostics.SeverityInformation: lsp.Information,
}

// writeLSP emits the publishDiagnostics payload a language client would
// receive for every checked file, including files without problems.
func writeLSP(w io.Writer, proj *project, res *checkResult) error {
	out := make([]lsp.PublishDiagnosticsParams, 0, len(res.files))
	for _, u := range res.files {
		diags := make([]lsp.Diagnostic, 0, len(res.diags[u]))
		for _, d := range res.diags[u] {
			diags = append(diags, lsp.Diagnostic{
				Range: lsp.Range{
					Start: lspPosition(d.Span.Start.Line, d.Span.Start.Column),
					End:   lspPosition(d.Span.End.Line, d.Span.End.Column),
				},
				Severity: lspSeverity[d.Severity],
				Code:     string(d.Code),
				Source:   "sable",
				Message:  d.Message,
			})
		}
		out = append(out, lsp.PublishDiagnosticsParams{URI: lsp.DocumentURI(u), Diagnostics: diags})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// lspPosition converts a 1-based line and column to a 0-based position.
func lspPosition(line, col int) lsp.Position {
	return lsp.Position{Line: max(line-1, 0), Character: max(col-1, 0)}
}
