package typesystem

import (
	"testing"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/uri"
)

func builtin(name string, node int, bases ...TClass) TClass {
	return TClass{Name: name, Ref: DeclRef{Unit: uri.Builtins, Node: ast.NodeID(node)}, Bases: bases}
}

var (
	object   = builtin("object", 1)
	intC     = builtin("int", 2, object)
	floatC   = builtin("float", 3, object)
	boolC    = builtin("bool", 4, intC)
	strC     = builtin("str", 5, object)
	noneC    = builtin("NoneType", 6, object)
	listT    = TVar{Name: "T", ID: "list.T"}
	listC    = TClass{Name: "list", Ref: DeclRef{Unit: uri.Builtins, Node: 7}, Params: []TVar{listT}, Bases: []TClass{object}}
	tupleC   = builtin("tuple", 8, object)
	intInst  = TInstance{Class: intC}
	strInst  = TInstance{Class: strC}
	noneInst = TInstance{Class: noneC}
)

func inst(c TClass, args ...Type) TInstance {
	if len(args) > 0 {
		c = Specialize(c, args)
	}
	return TInstance{Class: c}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{intInst, "int"},
		{noneInst, "None"},
		{inst(listC, intInst), "list[int]"},
		{intC, "type[int]"},
		{TLiteral{Class: intC, Value: int64(3)}, "Literal[3]"},
		{TLiteral{Class: strC, Value: "a"}, "Literal['a']"},
		{TLiteral{Class: boolC, Value: true}, "Literal[True]"},
		{Union(noneInst, intInst, strInst), "int | str | None"},
		{TUnknown{}, "Unknown"},
		{TModule{Name: "os"}, `Module("os")`},
		{TFunc{Name: "f", Signatures: []Signature{{
			Params: []Param{{Name: "x", Type: intInst}, {Name: "rest", Type: strInst, Kind: ParamVarArgs}},
			Return: strInst,
		}}}, "(x: int, *rest: str) -> str"},
		{TAliasRef{Name: "X"}, "X"},
	}
	for _, tt := range tests {
		if got := Print(tt.typ); got != tt.want {
			t.Errorf("Print() = %q, want %q", got, tt.want)
		}
	}
}

func TestNormalizeUnion(t *testing.T) {
	if _, ok := Union().(TNever); !ok {
		t.Errorf("empty union should be Never")
	}
	if got := Union(intInst, intInst); !Equal(got, intInst) {
		t.Errorf("duplicate not removed: %s", got)
	}
	lit := TLiteral{Class: intC, Value: int64(1)}
	if got := Union(lit, intInst); !Equal(got, intInst) {
		t.Errorf("literal not absorbed: %s", got)
	}
	if got := Union(TUnknown{Pending: true}, strInst); !Equal(got, strInst) {
		t.Errorf("pending not dropped: %s", got)
	}
	if got := Union(TUnknown{Pending: true}); !IsPending(got) {
		t.Errorf("lone pending must survive: %s", got)
	}
	nested := Union(intInst, Union(strInst, noneInst))
	if u, ok := nested.(TUnion); !ok || len(u.Types) != 3 {
		t.Errorf("nested union not flattened: %s", nested)
	}

	var wide []Type
	for i := 0; i < 70; i++ {
		wide = append(wide, TLiteral{Class: strC, Value: string(rune('a' + i))})
	}
	if got := NormalizeUnion(wide); !IsUnknown(got) {
		t.Errorf("oversized union should degrade to Unknown, got %s", got)
	}
}

func TestApplyAndMRO(t *testing.T) {
	listOfInt := Specialize(listC, []Type{intInst})
	s := ClassSubst(listOfInt)
	if got := Apply(listT, s); !Equal(got, intInst) {
		t.Errorf("Apply(T) = %s", got)
	}

	tv := TVar{Name: "U", ID: "f.U"}
	fn := TFunc{Name: "f", Signatures: []Signature{{
		Params:     []Param{{Name: "x", Type: listT}, {Name: "y", Type: tv}},
		Return:     inst(listC, listT),
		TypeParams: []TVar{tv},
	}}}
	applied := Apply(fn, s).(TFunc)
	if got := Print(applied); got != "(x: int, y: U) -> list[int]" {
		t.Errorf("applied = %s", got)
	}
	if fv := fn.FreeTypeVariables(); len(fv) != 1 || fv[0].ID != listT.ID {
		t.Errorf("free vars = %v", fv)
	}

	myList := TClass{Name: "MyList", Ref: DeclRef{Unit: "file:///a.py", Node: 3}, Bases: []TClass{listOfInt}}
	mro := MRO(myList)
	if len(mro) != 3 || mro[1].Name != "list" || mro[2].Name != "object" {
		t.Fatalf("unexpected mro %v", mro)
	}
	if !Equal(mro[1].TypeArgs[0], intInst) {
		t.Errorf("base not specialized: %s", mro[1])
	}
}

func TestAssignable(t *testing.T) {
	r := Relation{}
	tests := []struct {
		name      string
		dst, src  Type
		ok        bool
		widenings int
	}{
		{"same", intInst, intInst, true, 0},
		{"subclass", intInst, TInstance{Class: boolC}, true, 0},
		{"promotion", TInstance{Class: floatC}, intInst, true, 1},
		{"literal", intInst, TLiteral{Class: intC, Value: int64(1)}, true, 0},
		{"mismatch", strInst, intInst, false, 0},
		{"object", TInstance{Class: object}, strInst, true, 0},
		{"optional", Union(intInst, noneInst), noneInst, true, 0},
		{"union_src", intInst, Union(intInst, strInst), false, 0},
		{"unknown", strInst, TUnknown{}, true, 0},
		{"none_to_int", intInst, noneInst, false, 0},
		{"invariant_args", inst(listC, TInstance{Class: floatC}), inst(listC, intInst), false, 0},
		{"gradual_args", inst(listC, intInst), inst(listC, TUnknown{}), true, 0},
		{"tuple_cov", inst(tupleC, TInstance{Class: floatC}, strInst), inst(tupleC, intInst, strInst), true, 1},
		{"tuple_len", inst(tupleC, intInst), inst(tupleC, intInst, intInst), false, 0},
		{"class_object", intC, boolC, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, w := r.Assignable(tt.dst, tt.src)
			if ok != tt.ok || (ok && w != tt.widenings) {
				t.Errorf("Assignable(%s, %s) = %v, %d; want %v, %d", tt.dst, tt.src, ok, w, tt.ok, tt.widenings)
			}
		})
	}
}

func TestAliasExpansionIsBounded(t *testing.T) {
	alias := TAliasRef{Name: "X", Ref: DeclRef{Unit: "file:///a.py", Node: 1}}
	calls := 0
	r := Relation{Expand: func(TAliasRef) Type {
		calls++
		return alias
	}}
	ok, _ := r.Assignable(intInst, alias)
	if !ok {
		t.Errorf("self-expanding alias should degrade, not fail")
	}
	if calls == 0 || calls > 100 {
		t.Errorf("expansion count %d not bounded", calls)
	}
}

type counter struct{ n int }

func (c *counter) bump() int { c.n++; return c.n }

type kindNamer struct{ c *counter }

func (k kindNamer) VisitUnknown(TUnknown) string { k.c.bump(); return "unknown" }
func (k kindNamer) VisitAny(TAny) string { return "any" }
func (k kindNamer) VisitNever(TNever) string { return "never" }
func (k kindNamer) VisitModule(TModule) string { return "module" }
func (k kindNamer) VisitClass(TClass) string { return "class" }
func (k kindNamer) VisitInstance(TInstance) string { return "instance" }
func (k kindNamer) VisitLiteral(TLiteral) string { return "literal" }
func (k kindNamer) VisitFunc(TFunc) string { return "func" }
func (k kindNamer) VisitUnion(TUnion) string { return "union" }
func (k kindNamer) VisitVar(TVar) string { return "var" }
func (k kindNamer) VisitAliasRef(TAliasRef) string { return "alias" }

func TestVisit(t *testing.T) {
	c := &counter{}
	v := kindNamer{c: c}
	if got := Visit[string](TUnknown{}, v); got != "unknown" || c.n != 1 {
		t.Errorf("Visit unknown = %s", got)
	}
	if got := Visit[string](Union(intInst, strInst), v); got != "union" {
		t.Errorf("Visit union = %s", got)
	}
}
