package parser

import (
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/pipeline"
)

type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *pipeline.Context) *pipeline.Context {
	res := Parse(ctx.URI, ctx.Text)
	ctx.Module = res.Module
	ctx.NodeCount = res.NodeCount
	ctx.Index = res.Index
	ctx.Lines = res.Lines
	ctx.Errors = append(ctx.Errors, diagnostics.WithURI(res.Errors, ctx.URI)...)
	return ctx
}

// ResultsOf extracts the parse results recorded in ctx.
func ResultsOf(ctx *pipeline.Context, errs []*diagnostics.DiagnosticError) *Results {
	return &Results{
		Module:    ctx.Module,
		NodeCount: ctx.NodeCount,
		Index:     ctx.Index,
		Lines:     ctx.Lines,
		Errors:    errs,
	}
}
