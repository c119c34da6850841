package vm

import (
	"testing"

	"github.com/lispc/lispc/pkg/reader"
	"github.com/stretchr/testify/require"
)

func newTestVM() (*VM, *ConstantPool) {
	pool := NewConstantPool()
	return NewVM(pool), pool
}

func TestArithmeticAddition(t *testing.T) {
	v, _ := newTestVM()
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 2}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 3}, reader.Source{})
	code.Push(OpCode{Kind: OpAdd, N: 2}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 5}, result)
}

func TestDivisionByZero(t *testing.T) {
	v, _ := newTestVM()
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 0}, reader.Source{})
	code.Push(OpCode{Kind: OpDiv, N: 2}, reader.Source{})

	_, err := v.RunProgram(code)
	require.Error(t, err)
}

func TestGlobalDefineSetGet(t *testing.T) {
	v, pool := newTestVM()
	xHash := pool.InternString(ConstantSymbol, "x")

	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 10}, reader.Source{})
	code.Push(OpCode{Kind: OpDefGlobal, Hash: xHash}, reader.Source{})
	code.Push(OpCode{Kind: OpPop}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 99}, reader.Source{})
	code.Push(OpCode{Kind: OpSetGlobal, Hash: xHash}, reader.Source{})
	code.Push(OpCode{Kind: OpPop}, reader.Source{})
	code.Push(OpCode{Kind: OpGetGlobal, Hash: xHash}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 99}, result)
}

func TestSetGlobalUndefinedFails(t *testing.T) {
	v, pool := newTestVM()
	hash := pool.InternString(ConstantSymbol, "nope")
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	code.Push(OpCode{Kind: OpSetGlobal, Hash: hash}, reader.Source{})

	_, err := v.RunProgram(code)
	require.Error(t, err)
}

// TestClosureCapturesLocalByReference builds, by hand, an outer nullary
// lambda that pushes 7 into its local slot 0 and returns an inner nullary
// lambda reading that slot through one upvalue (Frame 0, Index 0).
// Calling the outer and then the inner yields 7, proving Lambda +
// CreateUpValue wiring round-trips through the constant pool.
func TestClosureCapturesLocalByReference(t *testing.T) {
	v, pool := newTestVM()

	inner := NewOpCodeTable()
	inner.Push(OpCode{Kind: OpGetUpValue, Index: 0}, reader.Source{})
	innerHash := pool.InternOpCodes(inner)

	outer := NewOpCodeTable()
	outer.Push(OpCode{Kind: OpPushInt, Int: 7}, reader.Source{}) // becomes local slot 0
	outer.Push(OpCode{
		Kind:        OpLambda,
		Hash:        innerHash,
		N:           1,
		LambdaArity: Arity{Kind: ArityNullary},
	}, reader.Source{})
	outer.Push(OpCode{Kind: OpCreateUpValue, UpValue: UpValueDescriptor{Frame: 0, Index: 0}}, reader.Source{})

	outerHash := pool.InternOpCodes(outer)

	program := NewOpCodeTable()
	program.Push(OpCode{
		Kind:        OpLambda,
		Hash:        outerHash,
		N:           0,
		LambdaArity: Arity{Kind: ArityNullary},
	}, reader.Source{})
	program.Push(OpCode{Kind: OpCall, N: 0}, reader.Source{})
	program.Push(OpCode{Kind: OpCall, N: 0}, reader.Source{})

	result, err := v.RunProgram(program)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 7}, result)
}

// TestTailCallDoesNotGrowFrames hand-assembles count-down(n):
//
//	(lambda (n) (if (= n 0) 42 (count-down (- n 1))))
//
// and drives it with a large n, relying on MaxCallDepth to prove the
// Tail opcode replaces the current frame rather than growing the frame
// stack (a non-tail Call of the same depth would exceed MaxCallDepth).
func TestTailCallDoesNotGrowFrames(t *testing.T) {
	v, pool := newTestVM()
	selfHash := pool.InternString(ConstantSymbol, "count-down")

	body := NewOpCodeTable()
	body.Push(OpCode{Kind: OpGetLocal, Index: 0}, reader.Source{})
	body.Push(OpCode{Kind: OpPushInt, Int: 0}, reader.Source{})
	body.Push(OpCode{Kind: OpCompare, CompareOp: CompareEq}, reader.Source{})
	body.Push(OpCode{Kind: OpBranch, Offset: 2}, reader.Source{})
	body.Push(OpCode{Kind: OpPushInt, Int: 42}, reader.Source{})
	body.Push(OpCode{Kind: OpReturn}, reader.Source{})
	body.Push(OpCode{Kind: OpGetGlobal, Hash: selfHash}, reader.Source{})
	body.Push(OpCode{Kind: OpGetLocal, Index: 0}, reader.Source{})
	body.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	body.Push(OpCode{Kind: OpSub, N: 2}, reader.Source{})
	body.Push(OpCode{Kind: OpTail, N: 1}, reader.Source{})

	lam := &Lambda{Arity: Arity{Kind: ArityNary, Count: 1}, Code: body, Name: "count-down"}
	v.globals["count-down"] = NewCell(&FunctionObject{Lambda: lam})

	program := NewOpCodeTable()
	program.Push(OpCode{Kind: OpGetGlobal, Hash: selfHash}, reader.Source{})
	program.Push(OpCode{Kind: OpPushInt, Int: int64(MaxCallDepth * 10)}, reader.Source{})
	program.Push(OpCode{Kind: OpCall, N: 1}, reader.Source{})

	result, err := v.RunProgram(program)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 42}, result)
}

func TestConsCarCdr(t *testing.T) {
	v, _ := newTestVM()
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 2}, reader.Source{})
	code.Push(OpCode{Kind: OpCons}, reader.Source{})
	code.Push(OpCode{Kind: OpCar}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 1}, result)
}

func TestListBuildsProperList(t *testing.T) {
	v, _ := newTestVM()
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 2}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 3}, reader.Source{})
	code.Push(OpCode{Kind: OpList, N: 3}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	cons, ok := result.(*ConsObject)
	require.True(t, ok)
	require.Equal(t, &IntObject{Val: 1}, cons.Car.Get())
}

func TestAssertFailureCarriesMessage(t *testing.T) {
	v, pool := newTestVM()
	msgHash := pool.InternString(ConstantString, "expected true")
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpPushNil}, reader.Source{})
	code.Push(OpCode{Kind: OpAssert, Hash: msgHash}, reader.Source{})

	_, err := v.RunProgram(code)
	require.ErrorContains(t, err, "expected true")
}

func TestMapInsertGetItems(t *testing.T) {
	v, _ := newTestVM()
	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpMapNew}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})   // key
	code.Push(OpCode{Kind: OpPushInt, Int: 100}, reader.Source{}) // value
	code.Push(OpCode{Kind: OpMapInsert}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 1}, reader.Source{})
	code.Push(OpCode{Kind: OpMapGet}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 100}, result)
}

func TestDefineNativeAndCall(t *testing.T) {
	v, pool := newTestVM()
	v.DefineNative("double", Arity{Kind: ArityNary, Count: 1}, func(vm *VM, args []Object) (Object, error) {
		i := args[0].(*IntObject)
		return &IntObject{Val: i.Val * 2}, nil
	})
	hash := pool.InternString(ConstantSymbol, "double")

	code := NewOpCodeTable()
	code.Push(OpCode{Kind: OpGetGlobal, Hash: hash}, reader.Source{})
	code.Push(OpCode{Kind: OpPushInt, Int: 21}, reader.Source{})
	code.Push(OpCode{Kind: OpCall, N: 1}, reader.Source{})

	result, err := v.RunProgram(code)
	require.NoError(t, err)
	require.Equal(t, &IntObject{Val: 42}, result)
}
