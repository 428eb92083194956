package typesystem

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/sable/internal/assert"
)

// Visitor has one method per Type variant. Adding a variant adds a method
// here, which breaks every implementation until it handles the new case.
type Visitor[R any] interface {
	VisitUnknown(TUnknown) R
	VisitAny(TAny) R
	VisitNever(TNever) R
	VisitModule(TModule) R
	VisitClass(TClass) R
	VisitInstance(TInstance) R
	VisitLiteral(TLiteral) R
	VisitFunc(TFunc) R
	VisitUnion(TUnion) R
	VisitVar(TVar) R
	VisitAliasRef(TAliasRef) R
}

// Visit dispatches t to the matching Visitor method.
func Visit[R any](t Type, v Visitor[R]) R {
	switch t := t.(type) {
	case TUnknown:
		return v.VisitUnknown(t)
	case TAny:
		return v.VisitAny(t)
	case TNever:
		return v.VisitNever(t)
	case TModule:
		return v.VisitModule(t)
	case TClass:
		return v.VisitClass(t)
	case TInstance:
		return v.VisitInstance(t)
	case TLiteral:
		return v.VisitLiteral(t)
	case TFunc:
		return v.VisitFunc(t)
	case TUnion:
		return v.VisitUnion(t)
	case TVar:
		return v.VisitVar(t)
	case TAliasRef:
		return v.VisitAliasRef(t)
	}
	assert.Unreachable(t)
	return *new(R)
}

type printer struct{}

// Print renders t the way hover text shows it.
func Print(t Type) string {
	if t == nil {
		return "Unknown"
	}
	return Visit[string](t, printer{})
}

func (printer) VisitUnknown(TUnknown) string { return "Unknown" }
func (printer) VisitAny(TAny) string         { return "Any" }
func (printer) VisitNever(TNever) string     { return "Never" }

func (printer) VisitModule(t TModule) string {
	return fmt.Sprintf("Module(%q)", t.Name)
}

func (p printer) VisitClass(t TClass) string {
	return "type[" + p.className(t) + "]"
}

func (p printer) className(c TClass) string {
	if len(c.TypeArgs) == 0 {
		return c.Name
	}
	args := make([]string, len(c.TypeArgs))
	for i, a := range c.TypeArgs {
		args[i] = Print(a)
	}
	return c.Name + "[" + strings.Join(args, ", ") + "]"
}

func (p printer) VisitInstance(t TInstance) string {
	if IsBuiltin(t.Class, "NoneType") {
		return "None"
	}
	return p.className(t.Class)
}

func (printer) VisitLiteral(t TLiteral) string {
	var v string
	switch val := t.Value.(type) {
	case string:
		v = "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case bool:
		if val {
			v = "True"
		} else {
			v = "False"
		}
	case int64:
		v = strconv.FormatInt(val, 10)
	case float64:
		v = strconv.FormatFloat(val, 'g', -1, 64)
	default:
		v = fmt.Sprint(val)
	}
	return "Literal[" + v + "]"
}

func (p printer) VisitFunc(t TFunc) string {
	if len(t.Signatures) == 1 {
		return p.signature(t.Signatures[0])
	}
	parts := make([]string, len(t.Signatures))
	for i, s := range t.Signatures {
		parts[i] = p.signature(s)
	}
	return "Overload[" + strings.Join(parts, ", ") + "]"
}

func (printer) signature(s Signature) string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, prm := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch prm.Kind {
		case ParamVarArgs:
			sb.WriteString("*")
		case ParamKwArgs:
			sb.WriteString("**")
		}
		sb.WriteString(prm.Name)
		if prm.Type != nil {
			sb.WriteString(": ")
			sb.WriteString(Print(prm.Type))
		}
		if prm.HasDefault {
			sb.WriteString(" = ...")
		}
	}
	sb.WriteString(") -> ")
	sb.WriteString(Print(s.Return))
	return sb.String()
}

func (printer) VisitUnion(t TUnion) string {
	parts := make([]string, 0, len(t.Types))
	none := false
	for _, m := range t.Types {
		if IsNone(m) {
			none = true
			continue
		}
		parts = append(parts, Print(m))
	}
	if none {
		parts = append(parts, "None")
	}
	return strings.Join(parts, " | ")
}

func (printer) VisitVar(t TVar) string           { return t.Name }
func (printer) VisitAliasRef(t TAliasRef) string { return t.Name }
