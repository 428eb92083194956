package remote

import (
	"github.com/jhump/protoreflect/dynamic"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/program"
	"github.com/funvibe/sable/internal/token"
	"github.com/funvibe/sable/internal/uri"
)

func putDiagnostic(m *dynamic.Message, d *diagnostics.DiagnosticError) {
	m.SetFieldByName("code", string(d.Code))
	m.SetFieldByName("severity", int32(d.Severity))
	m.SetFieldByName("message", d.Message)
	m.SetFieldByName("uri", d.URI)
	m.SetFieldByName("start_line", int32(d.Span.Start.Line))
	m.SetFieldByName("start_column", int32(d.Span.Start.Column))
	m.SetFieldByName("end_line", int32(d.Span.End.Line))
	m.SetFieldByName("end_column", int32(d.Span.End.Column))
}

// takeDiagnostic rebuilds a diagnostic. Offsets do not cross the wire.
func takeDiagnostic(m *dynamic.Message) *diagnostics.DiagnosticError {
	return &diagnostics.DiagnosticError{
		Code:     diagnostics.ErrorCode(str(m, "code")),
		Severity: diagnostics.Severity(i32(m, "severity")),
		Message:  str(m, "message"),
		URI:      str(m, "uri"),
		Span: ast.Span{
			Start: token.Position{Line: i32(m, "start_line"), Column: i32(m, "start_column")},
			End:   token.Position{Line: i32(m, "end_line"), Column: i32(m, "end_column")},
		},
	}
}

func uriStrings(us []uri.URI) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = string(u)
	}
	return out
}

func stringURIs(ss []string) []uri.URI {
	if len(ss) == 0 {
		return nil
	}
	out := make([]uri.URI, len(ss))
	for i, s := range ss {
		out[i] = uri.URI(s)
	}
	return out
}

func putUnit(m *dynamic.Message, info program.UnitInfo) {
	m.SetFieldByName("uri", string(info.URI))
	m.SetFieldByName("module", info.Module)
	m.SetFieldByName("version", int32(info.Version))
	m.SetFieldByName("open", info.Open)
	m.SetFieldByName("tracked", info.Tracked)
	m.SetFieldByName("stub", info.Stub)
	m.SetFieldByName("chained_predecessor", string(info.ChainedPredecessor))
	m.SetFieldByName("bind_version", int32(info.BindVersion))
	m.SetFieldByName("checked", info.Checked)
	addStrs(m, "imports", uriStrings(info.Imports))
	addStrs(m, "imported_by", uriStrings(info.ImportedBy))
	addStrs(m, "shadows", uriStrings(info.Shadows))
	addStrs(m, "shadowed_by", uriStrings(info.ShadowedBy))
}

func takeUnit(m *dynamic.Message) program.UnitInfo {
	return program.UnitInfo{
		URI:                uri.URI(str(m, "uri")),
		Module:             str(m, "module"),
		Version:            i32(m, "version"),
		Open:               flag(m, "open"),
		Tracked:            flag(m, "tracked"),
		Stub:               flag(m, "stub"),
		ChainedPredecessor: uri.URI(str(m, "chained_predecessor")),
		BindVersion:        i32(m, "bind_version"),
		Checked:            flag(m, "checked"),
		Imports:            stringURIs(strs(m, "imports")),
		ImportedBy:         stringURIs(strs(m, "imported_by")),
		Shadows:            stringURIs(strs(m, "shadows")),
		ShadowedBy:         stringURIs(strs(m, "shadowed_by")),
	}
}
