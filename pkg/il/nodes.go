// Package il defines the scope-resolved intermediate representation the
// bytecode emitter (pkg/compiler) walks: every Variable has been replaced
// by a VarRef naming exactly where at runtime its value lives (a
// frame-local slot, a captured upvalue, or the global table), and every
// Lambda
// carries the upvalue-capture plan the VM needs to wire closures at
// `Lambda` construction time.
package il

import (
	"github.com/lispc/lispc/pkg/ast"
	"github.com/lispc/lispc/pkg/reader"
	"github.com/lispc/lispc/pkg/vm"
)

// Node is implemented by every resolved IL variant.
type Node interface {
	isNode()
	Source() reader.Source
}

// VarKind tags where a resolved variable reference lives at runtime.
type VarKind int

const (
	VarLocal VarKind = iota
	VarUpValue
	VarGlobal
)

// VarRef is the resolved replacement for ast.Variable.
type VarRef struct {
	Kind VarKind
	// Index is the local slot or upvalue index; meaningless for VarGlobal.
	Index int
	// Name is the global's (possibly module-qualified, "module::name")
	// name; meaningless for VarLocal/VarUpValue.
	Name string
	Src  reader.Source
}

// Lambda is a resolved function literal: Body has been walked with a
// fresh lexical frame, every free variable it closes over recorded in
// UpValues (in the order CreateUpValue instructions must be emitted), and
// Arity computed from Params.
type Lambda struct {
	Arity      vm.Arity
	ParamNames []string // diagnostic only
	UpValues   []vm.UpValueDescriptor
	Body       []Node
	Src        reader.Source
}

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

// Def resolves to DefGlobal; Decl is a forward declaration and lowers
// identically.
type Def struct {
	Name string
	Body Node
	Src  reader.Source
}

// Set resolves to SetLocal/SetUpValue/SetGlobal depending on where Name
// was found by the resolver.
type Set struct {
	Target VarRef
	Body   Node
	Src    reader.Source
}

type If struct {
	Pred, Then, Else Node
	Src              reader.Source
}

type Apply struct {
	Fn, List Node
	Src      reader.Source
}

type BinaryArithmetic struct {
	Op       ast.ArithOp
	Lhs, Rhs Node
	Src      reader.Source
}

type Comparison struct {
	Op       ast.CompareOp
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

// FnCall is a function application. IsTail is set by the resolver when
// the call appears in tail position inside a lambda body, which the
// emitter uses to choose Tail(n) over Call(n).
type FnCall struct {
	Fn     Node
	Args   []Node
	IsTail bool
	Src    reader.Source
}

type Quote struct {
	Value ast.Quoted
	Src   reader.Source
}

type IsType struct {
	Kind ast.TypeTag
	X    Node
	Src  reader.Source
}

type Assert struct {
	X       Node
	Message string
	Src     reader.Source
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

type Constant struct {
	Kind   ast.ConstKind
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

func (*VarRef) isNode()           {}
func (*Lambda) isNode()           {}
func (*Module) isNode()           {}
func (*Require) isNode()          {}
func (*EvalWhenCompile) isNode()  {}
func (*Def) isNode()              {}
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
func (*Quote) isNode()            {}
func (*IsType) isNode()           {}
func (*Assert) isNode()           {}
func (*MapCreate) isNode()        {}
func (*MapInsert) isNode()        {}
func (*MapRetrieve) isNode()      {}
func (*MapItems) isNode()         {}
func (*Constant) isNode()         {}
func (*Export) isNode()           {}

func (n *VarRef) Source() reader.Source           { return n.Src }
func (n *Lambda) Source() reader.Source           { return n.Src }
func (n *Module) Source() reader.Source           { return n.Src }
func (n *Require) Source() reader.Source          { return n.Src }
func (n *EvalWhenCompile) Source() reader.Source  { return n.Src }
func (n *Def) Source() reader.Source              { return n.Src }
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
func (n *Quote) Source() reader.Source            { return n.Src }
func (n *IsType) Source() reader.Source           { return n.Src }
func (n *Assert) Source() reader.Source           { return n.Src }
func (n *MapCreate) Source() reader.Source        { return n.Src }
func (n *MapInsert) Source() reader.Source        { return n.Src }
func (n *MapRetrieve) Source() reader.Source      { return n.Src }
func (n *MapItems) Source() reader.Source         { return n.Src }
func (n *Constant) Source() reader.Source         { return n.Src }
func (n *Export) Source() reader.Source           { return n.Src }
