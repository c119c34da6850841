package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lispc/lispc/pkg/vm"
)

// compileForms runs source through a fresh Session's full front half
// (reader, AST, macro expansion, resolver, emitter) and returns the
// emitted top-level table and the session's pool.
func compileForms(t *testing.T, source string) (*vm.OpCodeTable, *vm.ConstantPool) {
	t.Helper()
	session := NewSession()
	code, err := session.CompileString("test.lisp", source)
	require.NoError(t, err)
	return code, session.Pool()
}

func kinds(code *vm.OpCodeTable) []vm.OpKind {
	out := make([]vm.OpKind, code.Len())
	for i, op := range code.Code {
		out[i] = op.Kind
	}
	return out
}

func TestEmitIfLayout(t *testing.T) {
	code, _ := compileForms(t, "(if true 100 200)")

	require.Equal(t, []vm.OpKind{
		vm.OpPushTrue,
		vm.OpBranch,
		vm.OpPushInt, // then
		vm.OpJmp,
		vm.OpPushInt, // else
	}, kinds(code))

	// Branch skips the then-body plus its trailing Jmp; Jmp skips the
	// else-body.
	require.Equal(t, 2, code.Code[1].Offset)
	require.Equal(t, 1, code.Code[3].Offset)
}

func TestEmitDefGlobal(t *testing.T) {
	code, pool := compileForms(t, "(def x 42)")

	require.Equal(t, []vm.OpKind{vm.OpPushInt, vm.OpDefGlobal}, kinds(code))

	c, ok := pool.Get(code.Code[1].Hash)
	require.True(t, ok)
	require.Equal(t, vm.ConstantSymbol, c.Kind)
	require.Equal(t, "x", c.String)
}

func TestEmitProgramPopsIntermediateResults(t *testing.T) {
	code, _ := compileForms(t, "1 2 3")
	require.Equal(t, []vm.OpKind{
		vm.OpPushInt, vm.OpPop,
		vm.OpPushInt, vm.OpPop,
		vm.OpPushInt,
	}, kinds(code))
}

// TestEmitLambdaUpvalueCount checks that the number of CreateUpValue
// instructions following a Lambda opcode equals the closure's recorded
// capture count, and that the descriptor addresses the enclosing frame.
func TestEmitLambdaUpvalueCount(t *testing.T) {
	code, pool := compileForms(t, "(lambda (n) (lambda (x) (+ x n)))")

	require.Equal(t, vm.OpLambda, code.Code[0].Kind)
	require.Equal(t, 0, code.Code[0].N)

	outerConst, ok := pool.Get(code.Code[0].Hash)
	require.True(t, ok)
	require.Equal(t, vm.ConstantOpCodes, outerConst.Kind)

	outerBody := outerConst.OpCodes
	require.Equal(t, vm.OpLambda, outerBody.Code[0].Kind)
	require.Equal(t, 1, outerBody.Code[0].N)
	require.Equal(t, vm.OpCreateUpValue, outerBody.Code[1].Kind)
	require.Equal(t, vm.UpValueDescriptor{Frame: 0, Index: 0}, outerBody.Code[1].UpValue)
	require.Equal(t, vm.OpReturn, outerBody.Code[2].Kind)
}

func TestEmitLambdaBodyEndsInReturn(t *testing.T) {
	code, pool := compileForms(t, "(lambda () 7)")
	c, ok := pool.Get(code.Code[0].Hash)
	require.True(t, ok)
	body := c.OpCodes
	require.Equal(t, vm.OpReturn, body.Code[body.Len()-1].Kind)
}

func TestEmitTailCallInsideLambda(t *testing.T) {
	code, pool := compileForms(t, "(def loop (lambda (n) (loop n)))")

	require.Equal(t, vm.OpLambda, code.Code[0].Kind)
	c, ok := pool.Get(code.Code[0].Hash)
	require.True(t, ok)

	sawTail := false
	for _, op := range c.OpCodes.Code {
		require.NotEqual(t, vm.OpCall, op.Kind)
		if op.Kind == vm.OpTail {
			sawTail = true
		}
	}
	require.True(t, sawTail)
}

func TestEmitQuotedListBuildsStructure(t *testing.T) {
	code, _ := compileForms(t, "(quote (1 2 3))")
	require.Equal(t, []vm.OpKind{
		vm.OpPushInt, vm.OpPushInt, vm.OpPushInt, vm.OpList,
	}, kinds(code))
	require.Equal(t, 3, code.Code[3].N)
}

func TestEmitProvenanceParallelsCode(t *testing.T) {
	code, _ := compileForms(t, "(def x\n  (+ 1 2))")
	require.Equal(t, code.Len(), len(code.Sources))
	for _, src := range code.Sources {
		require.Equal(t, "test.lisp", src.File)
		require.NotZero(t, src.Line)
	}
}

func TestMacroExpansionDepthLimit(t *testing.T) {
	session := NewSession()
	_, err := session.CompileString("test.lisp", `
		(defmacro forever (x) (list (quote forever) x))
		(forever 1)
	`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "depth")
}

func TestEvalWhenCompileRunsAtCompileTime(t *testing.T) {
	session := NewSession()

	// The eval-when-compile body defines a global on the shared VM before
	// the following form compiles; the compiled program then reads it.
	result, err := session.RunString("test.lisp", `
		(eval-when-compile (def build-constant 41))
		(+ build-constant 1)
	`)
	require.NoError(t, err)
	require.Equal(t, &vm.IntObject{Val: 42}, result)
}

func TestMacroUsableOnlyAfterDefinition(t *testing.T) {
	session := NewSession()

	// Before its defmacro, `twice` is an ordinary symbol, so calling it
	// fails at runtime with an undefined-variable error rather than
	// expanding.
	_, err := session.RunString("test.lisp", "(twice 3)")
	require.Error(t, err)

	result, err := session.RunString("test.lisp", `
		(defmacro twice (x) (list (quote +) x x))
		(twice 3)
	`)
	require.NoError(t, err)
	require.Equal(t, &vm.IntObject{Val: 6}, result)
}
