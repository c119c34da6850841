package vm

import "github.com/lispc/lispc/pkg/reader"

// OpKind tags each bytecode instruction.
type OpKind int

const (
	OpDefGlobal OpKind = iota
	OpSetGlobal
	OpGetGlobal
	OpSetLocal
	OpGetLocal
	OpSetUpValue
	OpGetUpValue
	OpCall
	OpTail
	OpApply
	OpReturn
	OpLambda
	OpCreateUpValue
	OpPushSymbol
	OpPushString
	OpPushInt
	OpPushChar
	OpPushTrue
	OpPushNil
	OpPop
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpCompare
	OpCar
	OpCdr
	OpCons
	OpList
	OpJmp
	OpBranch
	OpIsType
	OpAssert
	OpMapNew
	OpMapInsert
	OpMapGet
	OpMapItems
)

// OpCode is one bytecode instruction, a tagged union: only the operand
// fields relevant to Kind are meaningful.
type OpCode struct {
	Kind OpKind

	// Hash-keyed constant pool reference (DefGlobal/SetGlobal/GetGlobal,
	// PushSymbol, PushString, Lambda.Body).
	Hash uint64

	// Stack-slot / upvalue index (SetLocal/GetLocal/SetUpValue/GetUpValue).
	Index int

	// Call/Tail argument count, List element count.
	N int

	// Jmp/Branch signed offset.
	Offset int

	// PushInt operand.
	Int int64

	// PushChar operand.
	Char rune

	// Lambda arity.
	LambdaArity Arity

	// IsType operand.
	IsTypeTag Type

	// UpValue descriptor for CreateUpValue.
	UpValue UpValueDescriptor

	// Compare operator for OpCompare.
	CompareOp CompareKind
}

// CompareKind names the `= < >` comparison operators.
type CompareKind int

const (
	CompareEq CompareKind = iota
	CompareLt
	CompareGt
)

// OpCodeTable is a flat ordered sequence of OpCode plus a parallel
// sequence of source handles for debugging/error reporting.
type OpCodeTable struct {
	Code    []OpCode
	Sources []reader.Source
}

// NewOpCodeTable returns an empty table.
func NewOpCodeTable() *OpCodeTable {
	return &OpCodeTable{}
}

// Push appends op with its originating source to the table.
func (t *OpCodeTable) Push(op OpCode, src reader.Source) {
	t.Code = append(t.Code, op)
	t.Sources = append(t.Sources, src)
}

// Append concatenates other onto t in place.
func (t *OpCodeTable) Append(other *OpCodeTable) {
	t.Code = append(t.Code, other.Code...)
	t.Sources = append(t.Sources, other.Sources...)
}

// Len returns the instruction count.
func (t *OpCodeTable) Len() int { return len(t.Code) }

// Constant is a content-addressed constant-pool entry: an interned
// string, symbol, or nested opcode table (a compiled lambda body).
type Constant struct {
	Kind     ConstantKind
	String   string
	OpCodes  *OpCodeTable
}

type ConstantKind int

const (
	ConstantString ConstantKind = iota
	ConstantSymbol
	ConstantOpCodes
)
