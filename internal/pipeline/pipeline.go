package pipeline

import (
	"context"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
)

// Context carries one unit through the stages. Each stage reads what the
// previous ones produced and appends its diagnostics to Errors.
type Context struct {
	Ctx  context.Context
	URI  string
	Text string

	Module    *ast.Module
	NodeCount int
	Index     *ast.Index
	Lines     int

	Bind *symbols.Results

	Errors []*diagnostics.DiagnosticError
}

type Processor interface {
	Process(ctx *Context) *Context
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx *Context) *Context

func (f ProcessorFunc) Process(ctx *Context) *Context { return f(ctx) }

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline. Stages keep running after errors so every
// stage contributes its diagnostics; only cancellation stops the chain.
func (p *Pipeline) Run(initialCtx *Context) *Context {
	ctx := initialCtx
	for _, processor := range p.processors {
		if ctx.Ctx != nil && ctx.Ctx.Err() != nil {
			return ctx
		}
		ctx = processor.Process(ctx)
	}
	return ctx
}
