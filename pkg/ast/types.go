// Package ast defines the typed abstract syntax tree for the language and
// the compiler that lowers S-expressions (pkg/reader) into it.
package ast

import "github.com/lispc/lispc/pkg/reader"

// Node is implemented by every AST variant. Every node carries a non-null
// source handle so errors at any later stage can still cite where the
// form came from.
type Node interface {
	isNode()
	Source() reader.Source
}

// TypeTag names a scalar type usable in annotations and the IsType
// predicate set.
type TypeTag int

const (
	TypeAny TypeTag = iota
	TypeInt
	TypeString
	TypeSymbol
	TypeChar
	TypeBool
	TypeNil
	TypeCons
	TypeFunction
	TypeMap
)

func (t TypeTag) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeChar:
		return "char"
	case TypeBool:
		return "true"
	case TypeNil:
		return "nil"
	case TypeCons:
		return "cons"
	case TypeFunction:
		return "function"
	case TypeMap:
		return "map"
	default:
		return "any"
	}
}

// predicateSuffix maps the `PRED?` source spelling to the type it tests.
var predicateSuffix = map[string]TypeTag{
	"int?":      TypeInt,
	"string?":   TypeString,
	"symbol?":   TypeSymbol,
	"char?":     TypeChar,
	"bool?":     TypeBool,
	"true?":     TypeBool,
	"nil?":      TypeNil,
	"cons?":     TypeCons,
	"function?": TypeFunction,
	"map?":      TypeMap,
}

// Type is either a scalar symbol or a composite (ordered sequence of
// Types), used only for optional annotations — the VM never inspects it.
type Type interface {
	isType()
}

type ScalarType struct {
	Name string
}

func (ScalarType) isType() {}

type CompositeType struct {
	Elems []Type
}

func (CompositeType) isType() {}

// Parameter is a lambda/def parameter: a name plus an optional type
// annotation.
type Parameter struct {
	Name string
	Type Type // nil if untyped
}

// Parameters is either a fixed-arity Normal list or a Rest (variadic)
// list: leading fixed parameters followed by exactly one rest parameter.
type Parameters interface {
	isParameters()
	Len() int
}

type NormalParams struct {
	Params []Parameter
}

func (NormalParams) isParameters() {}
func (n NormalParams) Len() int    { return len(n.Params) }

type RestParams struct {
	Leading []Parameter
	Rest    Parameter
}

func (RestParams) isParameters() {}
func (r RestParams) Len() int    { return len(r.Leading) + 1 }

// Quoted mirrors the Sexpr tag set but is structurally independent of
// reader.Sexpr so that macro arguments survive re-emission unchanged by
// anything the AST compiler does to ordinary expressions.
type Quoted interface {
	isQuoted()
}

type QSymbol struct{ Name string }
type QString struct{ Value string }
type QChar struct{ Value rune }
type QInt struct{ Value int64 }
type QBool struct{ Value bool }
type QNil struct{}
type QList struct{ Elems []Quoted }

func (QSymbol) isQuoted() {}
func (QString) isQuoted() {}
func (QChar) isQuoted()   {}
func (QInt) isQuoted()    {}
func (QBool) isQuoted()   {}
func (QNil) isQuoted()    {}
func (QList) isQuoted()   {}

// --- AST node variants -----------------------------------------------

type Module struct {
	Name string
	Src  reader.Source
}

type Require struct {
	Name string
	Src  reader.Source
}

type EvalWhenCompile struct {
	Body []Node
	Src  reader.Source
}

type DefMacro struct {
	Name   string
	Params Parameters
	Body   []Node
	Src    reader.Source
}

type Lambda struct {
	Params     Parameters
	ReturnType Type // nil if unannotated
	Body       []Node
	Src        reader.Source
}

type Def struct {
	Param Parameter
	Body  Node
	Src   reader.Source
}

type Decl struct {
	Param Parameter
	Body  Node
	Src   reader.Source
}

type Set struct {
	Name string
	Body Node
	Src  reader.Source
}

type If struct {
	Pred, Then, Else Node
	Src              reader.Source
}

type Apply struct {
	Fn, List Node
	Src      reader.Source
}

type ArithOp int

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
)

type BinaryArithmetic struct {
	Op       ArithOp
	Lhs, Rhs Node
	Src      reader.Source
}

type CompareOp int

const (
	CompareEq CompareOp = iota
	CompareLt
	CompareGt
)

type Comparison struct {
	Op       CompareOp
	Lhs, Rhs Node
	Src      reader.Source
}

type List struct {
	Exprs []Node
	Src   reader.Source
}

type Cons struct {
	Lhs, Rhs Node
	Src      reader.Source
}

type Car struct {
	X   Node
	Src reader.Source
}

type Cdr struct {
	X   Node
	Src reader.Source
}

type FnCall struct {
	Fn   Node
	Args []Node
	Src  reader.Source
}

type MacroCall struct {
	Name string
	Args []Quoted
	Src  reader.Source
}

type Quote struct {
	Value Quoted
	Src   reader.Source
}

type IsType struct {
	Kind TypeTag
	X    Node
	Src  reader.Source
}

type Assert struct {
	X   Node
	Src reader.Source
}

type MapCreate struct {
	Src reader.Source
}

type MapInsert struct {
	Map, Key, Val Node
	Src           reader.Source
}

type MapRetrieve struct {
	Map, Key Node
	Src      reader.Source
}

type MapItems struct {
	Map Node
	Src reader.Source
}

// Variable is either bare (Module == "") or module-qualified.
type Variable struct {
	Module string
	Name   string
	Src    reader.Source
}

type ConstKind int

const (
	ConstSymbol ConstKind = iota
	ConstString
	ConstChar
	ConstInt
	ConstBool
	ConstNil
)

type Constant struct {
	Kind   ConstKind
	Symbol string
	String string
	Char   rune
	Int    int64
	Bool   bool
	Src    reader.Source
}

type Export struct {
	Name string
	Src  reader.Source
}

func (*Module) isNode()           {}
func (*Require) isNode()          {}
func (*EvalWhenCompile) isNode()  {}
func (*DefMacro) isNode()         {}
func (*Lambda) isNode()           {}
func (*Def) isNode()              {}
func (*Decl) isNode()             {}
func (*Set) isNode()              {}
func (*If) isNode()               {}
func (*Apply) isNode()            {}
func (*BinaryArithmetic) isNode() {}
func (*Comparison) isNode()       {}
func (*List) isNode()             {}
func (*Cons) isNode()             {}
func (*Car) isNode()              {}
func (*Cdr) isNode()              {}
func (*FnCall) isNode()           {}
func (*MacroCall) isNode()        {}
func (*Quote) isNode()            {}
func (*IsType) isNode()           {}
func (*Assert) isNode()           {}
func (*MapCreate) isNode()        {}
func (*MapInsert) isNode()        {}
func (*MapRetrieve) isNode()      {}
func (*MapItems) isNode()         {}
func (*Variable) isNode()         {}
func (*Constant) isNode()         {}
func (*Export) isNode()           {}

func (n *Module) Source() reader.Source           { return n.Src }
func (n *Require) Source() reader.Source          { return n.Src }
func (n *EvalWhenCompile) Source() reader.Source  { return n.Src }
func (n *DefMacro) Source() reader.Source         { return n.Src }
func (n *Lambda) Source() reader.Source           { return n.Src }
func (n *Def) Source() reader.Source              { return n.Src }
func (n *Decl) Source() reader.Source             { return n.Src }
func (n *Set) Source() reader.Source              { return n.Src }
func (n *If) Source() reader.Source               { return n.Src }
func (n *Apply) Source() reader.Source            { return n.Src }
func (n *BinaryArithmetic) Source() reader.Source { return n.Src }
func (n *Comparison) Source() reader.Source       { return n.Src }
func (n *List) Source() reader.Source             { return n.Src }
func (n *Cons) Source() reader.Source             { return n.Src }
func (n *Car) Source() reader.Source              { return n.Src }
func (n *Cdr) Source() reader.Source              { return n.Src }
func (n *FnCall) Source() reader.Source           { return n.Src }
func (n *MacroCall) Source() reader.Source        { return n.Src }
func (n *Quote) Source() reader.Source            { return n.Src }
func (n *IsType) Source() reader.Source           { return n.Src }
func (n *Assert) Source() reader.Source           { return n.Src }
func (n *MapCreate) Source() reader.Source        { return n.Src }
func (n *MapInsert) Source() reader.Source        { return n.Src }
func (n *MapRetrieve) Source() reader.Source      { return n.Src }
func (n *MapItems) Source() reader.Source         { return n.Src }
func (n *Variable) Source() reader.Source         { return n.Src }
func (n *Constant) Source() reader.Source         { return n.Src }
func (n *Export) Source() reader.Source           { return n.Src }
