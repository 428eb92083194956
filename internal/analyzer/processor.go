package analyzer

import (
	"context"

	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/pipeline"
	"github.com/funvibe/sable/internal/uri"
)

// CheckerProcessor is the last stage of a unit's pipeline. It needs the
// unit to be visible to Eval already, so it must run after the host has
// published the parse and bind results of the stages before it.
type CheckerProcessor struct {
	Eval *evaluator.Evaluator
}

func (cp *CheckerProcessor) Process(ctx *pipeline.Context) *pipeline.Context {
	if ctx.Module == nil || ctx.Bind == nil || cp.Eval == nil {
		return ctx
	}
	rc := ctx.Ctx
	if rc == nil {
		rc = context.Background()
	}
	u := uri.URI(ctx.URI)
	c := &checker{ctx: rc, eval: cp.Eval, u: u, bind: ctx.Bind, index: ctx.Index}
	c.check(ctx.Module)
	if c.err != nil {
		// Canceled: the caller sees ctx.Ctx.Err() and discards the pass.
		return ctx
	}
	ctx.Errors = append(ctx.Errors, diagnostics.WithURI(c.diags, ctx.URI)...)
	ctx.Errors = append(ctx.Errors, diagnostics.WithURI(cp.Eval.Diagnostics(u), ctx.URI)...)
	return ctx
}
