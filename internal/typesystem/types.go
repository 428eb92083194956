package typesystem

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/uri"
)

// Type is the interface for all types in our system. The set of variants is
// closed: isType is unexported, and Visitor has one method per variant.
//
// Types are immutable values. They are memoized and shared across call
// sites, so "modifying" a type always builds a new value.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []TVar
	isType()
}

// DeclRef is a back-reference to a declaring node: the unit plus the node id
// inside that unit's parse. It is a lookup key, never an owning pointer.
type DeclRef struct {
	Unit uri.URI
	Node ast.NodeID
}

func (r DeclRef) IsZero() bool { return r.Unit == "" && r.Node == 0 }

// TUnknown is the result of anything the evaluator could not determine.
// Pending marks a placeholder handed out while the same key was still
// being evaluated further up the stack.
type TUnknown struct {
	Pending bool
}

// TAny is an explicit `Any`.
type TAny struct{}

// TNever is the empty type: unreachable code and empty unions.
type TNever struct{}

// TModule is the type of a name bound by `import`.
type TModule struct {
	Name string
	URI  uri.URI
}

// TClass is a class object (the type itself, not an instance). TypeArgs is
// nil for an unspecialized generic; Bases are expressed in terms of Params.
type TClass struct {
	Name     string
	Ref      DeclRef
	Params   []TVar
	TypeArgs []Type
	Bases    []TClass
}

// TInstance is an instance of a class.
type TInstance struct {
	Class TClass
}

// TLiteral is an instance whose value is statically known. Value holds an
// int64, float64, string or bool.
type TLiteral struct {
	Class TClass
	Value any
}

type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamVarArgs
	ParamKwArgs
)

type Param struct {
	Name       string
	Type       Type
	HasDefault bool
	Kind       ParamKind
}

// Signature is one call signature. A nil Return means the return type is
// inferred on demand from the body of Decl, then Subst is applied.
type Signature struct {
	Params     []Param
	Return     Type
	TypeParams []TVar
	Decl       DeclRef
	Subst      Subst
	// Bound is set when the first parameter was consumed by method binding.
	Bound bool
}

// TFunc is a function; more than one signature means an overload chain,
// kept in declaration order.
type TFunc struct {
	Name       string
	Signatures []Signature
}

// TUnion is built only through NormalizeUnion.
type TUnion struct {
	Types []Type
}

// TVar is a type parameter. ID is unique per declaring node; Name is for
// display only.
type TVar struct {
	Name  string
	ID    string
	Bound Type
}

// TAliasRef stands for a type alias that was referenced while its own
// definition was being evaluated (`X = dict[str, "X"]`). It is expanded on
// demand, bounded by the recursion ceiling.
type TAliasRef struct {
	Name string
	Ref  DeclRef
}

func (TUnknown) isType()  {}
func (TAny) isType()      {}
func (TNever) isType()    {}
func (TModule) isType()   {}
func (TClass) isType()    {}
func (TInstance) isType() {}
func (TLiteral) isType()  {}
func (TFunc) isType()     {}
func (TUnion) isType()    {}
func (TVar) isType()      {}
func (TAliasRef) isType() {}

func (t TUnknown) String() string  { return Print(t) }
func (t TAny) String() string      { return Print(t) }
func (t TNever) String() string    { return Print(t) }
func (t TModule) String() string   { return Print(t) }
func (t TClass) String() string    { return Print(t) }
func (t TInstance) String() string { return Print(t) }
func (t TLiteral) String() string  { return Print(t) }
func (t TFunc) String() string     { return Print(t) }
func (t TUnion) String() string    { return Print(t) }
func (t TVar) String() string      { return Print(t) }
func (t TAliasRef) String() string { return Print(t) }

func (t TUnknown) Apply(Subst) Type    { return t }
func (t TAny) Apply(Subst) Type        { return t }
func (t TNever) Apply(Subst) Type      { return t }
func (t TModule) Apply(Subst) Type     { return t }
func (t TClass) Apply(s Subst) Type    { return Apply(t, s) }
func (t TInstance) Apply(s Subst) Type { return Apply(t, s) }
func (t TLiteral) Apply(Subst) Type    { return t }
func (t TFunc) Apply(s Subst) Type     { return Apply(t, s) }
func (t TUnion) Apply(s Subst) Type    { return Apply(t, s) }
func (t TVar) Apply(s Subst) Type      { return Apply(t, s) }
func (t TAliasRef) Apply(Subst) Type   { return t }

func (t TUnknown) FreeTypeVariables() []TVar  { return nil }
func (t TAny) FreeTypeVariables() []TVar      { return nil }
func (t TNever) FreeTypeVariables() []TVar    { return nil }
func (t TModule) FreeTypeVariables() []TVar   { return nil }
func (t TClass) FreeTypeVariables() []TVar    { return freeVars(t) }
func (t TInstance) FreeTypeVariables() []TVar { return freeVars(t) }
func (t TLiteral) FreeTypeVariables() []TVar  { return nil }
func (t TFunc) FreeTypeVariables() []TVar     { return freeVars(t) }
func (t TUnion) FreeTypeVariables() []TVar    { return freeVars(t) }
func (t TVar) FreeTypeVariables() []TVar      { return []TVar{t} }
func (t TAliasRef) FreeTypeVariables() []TVar { return nil }

// Unknown is the shared non-pending unknown.
var Unknown Type = TUnknown{}

// IsUnknown reports whether t is Unknown (pending or not).
func IsUnknown(t Type) bool {
	_, ok := t.(TUnknown)
	return ok
}

// IsPending reports whether t is, or contains, a recursion placeholder.
func IsPending(t Type) bool {
	switch t := t.(type) {
	case TUnknown:
		return t.Pending
	case TUnion:
		for _, m := range t.Types {
			if IsPending(m) {
				return true
			}
		}
	}
	return false
}

// IsBuiltin reports whether c is the named class of the builtins stub.
func IsBuiltin(c TClass, name string) bool {
	return c.Ref.Unit == uri.Builtins && c.Name == name
}

// IsNone reports whether t is the None instance.
func IsNone(t Type) bool {
	inst, ok := t.(TInstance)
	return ok && IsBuiltin(inst.Class, "NoneType")
}

// ClassOf returns the class of an instance or literal.
func ClassOf(t Type) (TClass, bool) {
	switch t := t.(type) {
	case TInstance:
		return t.Class, true
	case TLiteral:
		return t.Class, true
	}
	return TClass{}, false
}

// Specialize returns c with the given type arguments.
func Specialize(c TClass, args []Type) TClass {
	c.TypeArgs = args
	return c
}

// ToInstance converts the value of a type expression (a class object, or a
// union of them) into the type of its instances.
func ToInstance(t Type) Type {
	switch t := t.(type) {
	case TClass:
		return TInstance{Class: t}
	case TUnion:
		members := make([]Type, len(t.Types))
		for i, m := range t.Types {
			members[i] = ToInstance(m)
		}
		return NormalizeUnion(members)
	case TAny, TUnknown, TNever, TVar, TAliasRef:
		return t
	}
	return Unknown
}

// ToClassForm is the inverse of ToInstance for union members.
func ToClassForm(t Type) Type {
	switch t := t.(type) {
	case TInstance:
		return t.Class
	case TLiteral:
		return t.Class
	case TUnion:
		members := make([]Type, len(t.Types))
		for i, m := range t.Types {
			members[i] = ToClassForm(m)
		}
		return NormalizeUnion(members)
	}
	return t
}

// StripLiteral widens literal types to their class instance.
func StripLiteral(t Type) Type {
	switch t := t.(type) {
	case TLiteral:
		return TInstance{Class: t.Class}
	case TUnion:
		members := make([]Type, len(t.Types))
		for i, m := range t.Types {
			members[i] = StripLiteral(m)
		}
		return NormalizeUnion(members)
	}
	return t
}
