package vm

import (
	"fmt"
	"io"
	"strings"
)

// String names an OpKind for disassembly output.
func (k OpKind) String() string {
	switch k {
	case OpDefGlobal:
		return "DefGlobal"
	case OpSetGlobal:
		return "SetGlobal"
	case OpGetGlobal:
		return "GetGlobal"
	case OpSetLocal:
		return "SetLocal"
	case OpGetLocal:
		return "GetLocal"
	case OpSetUpValue:
		return "SetUpValue"
	case OpGetUpValue:
		return "GetUpValue"
	case OpCall:
		return "Call"
	case OpTail:
		return "Tail"
	case OpApply:
		return "Apply"
	case OpReturn:
		return "Return"
	case OpLambda:
		return "Lambda"
	case OpCreateUpValue:
		return "CreateUpValue"
	case OpPushSymbol:
		return "PushSymbol"
	case OpPushString:
		return "PushString"
	case OpPushInt:
		return "PushInt"
	case OpPushChar:
		return "PushChar"
	case OpPushTrue:
		return "PushTrue"
	case OpPushNil:
		return "PushNil"
	case OpPop:
		return "Pop"
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	case OpMul:
		return "Mul"
	case OpDiv:
		return "Div"
	case OpCompare:
		return "Compare"
	case OpCar:
		return "Car"
	case OpCdr:
		return "Cdr"
	case OpCons:
		return "Cons"
	case OpList:
		return "List"
	case OpJmp:
		return "Jmp"
	case OpBranch:
		return "Branch"
	case OpIsType:
		return "IsType"
	case OpAssert:
		return "Assert"
	case OpMapNew:
		return "MapNew"
	case OpMapInsert:
		return "MapInsert"
	case OpMapGet:
		return "MapGet"
	case OpMapItems:
		return "MapItems"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// describe renders op's Kind plus whichever operand fields it carries,
// one instruction per line.
func (op OpCode) describe(pool *ConstantPool) string {
	switch op.Kind {
	case OpDefGlobal, OpSetGlobal, OpGetGlobal:
		return fmt.Sprintf("%s %s", op.Kind, constantLabel(pool, op.Hash))
	case OpSetLocal, OpGetLocal, OpSetUpValue, OpGetUpValue:
		return fmt.Sprintf("%s(%d)", op.Kind, op.Index)
	case OpCall, OpTail, OpList:
		return fmt.Sprintf("%s(%d)", op.Kind, op.N)
	case OpPushSymbol, OpPushString:
		return fmt.Sprintf("%s %s", op.Kind, constantLabel(pool, op.Hash))
	case OpPushInt:
		return fmt.Sprintf("PushInt(%d)", op.Int)
	case OpPushChar:
		return fmt.Sprintf("PushChar(%c)", op.Char)
	case OpJmp, OpBranch:
		return fmt.Sprintf("%s(%d)", op.Kind, op.Offset)
	case OpIsType:
		return fmt.Sprintf("IsType(%s)", op.IsTypeTag)
	case OpCompare:
		return fmt.Sprintf("Compare(%s)", op.CompareOp)
	case OpLambda:
		return fmt.Sprintf("Lambda{arity=%s, body=%s}", op.LambdaArity, constantLabel(pool, op.Hash))
	case OpCreateUpValue:
		return fmt.Sprintf("CreateUpValue{frame=%d, index=%d}", op.UpValue.Frame, op.UpValue.Index)
	default:
		return op.Kind.String()
	}
}

func (k CompareKind) String() string {
	switch k {
	case CompareEq:
		return "="
	case CompareLt:
		return "<"
	case CompareGt:
		return ">"
	default:
		return "?"
	}
}

func constantLabel(pool *ConstantPool, hash uint64) string {
	if pool == nil {
		return fmt.Sprintf("#%x", hash)
	}
	if c, ok := pool.Get(hash); ok && (c.Kind == ConstantString || c.Kind == ConstantSymbol) {
		return fmt.Sprintf("%q", c.String)
	}
	return fmt.Sprintf("#%x", hash)
}

// Disassemble writes a human-readable, indented dump of table to w,
// recursing into Lambda bodies with one extra level of indentation per
// nesting.
func Disassemble(w io.Writer, table *OpCodeTable, pool *ConstantPool) {
	disassemble(w, table, pool, 0)
}

func disassemble(w io.Writer, table *OpCodeTable, pool *ConstantPool, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, op := range table.Code {
		fmt.Fprintf(w, "%s%04d  %s\n", indent, i, op.describe(pool))
		if op.Kind == OpLambda {
			if c, ok := pool.Get(op.Hash); ok && c.Kind == ConstantOpCodes {
				disassemble(w, c.OpCodes, pool, depth+1)
			}
		}
	}
}
