package binder

import (
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/pipeline"
	"github.com/funvibe/sable/internal/uri"
)

type BinderProcessor struct{}

func (bp *BinderProcessor) Process(ctx *pipeline.Context) *pipeline.Context {
	if ctx.Module == nil {
		return ctx
	}
	ctx.Bind = Bind(ctx.URI, ctx.Module, uri.URI(ctx.URI).IsStub())
	ctx.Errors = append(ctx.Errors, diagnostics.WithURI(ctx.Bind.Diagnostics, ctx.URI)...)
	return ctx
}
