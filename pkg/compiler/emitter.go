// Package compiler turns resolved IL into bytecode with a post-order
// emitter, expands compile-time macros by executing their bodies on a
// shared VM, and drives the end-to-end pipeline from source text to a
// runnable OpCodeTable.
package compiler

import (
	"fmt"

	"github.com/lispc/lispc/pkg/ast"
	"github.com/lispc/lispc/pkg/il"
	"github.com/lispc/lispc/pkg/reader"
	"github.com/lispc/lispc/pkg/vm"
)

// Error is an emission-stage fault.
type Error struct {
	Msg string
	Src reader.Source
}

func (e *Error) Error() string {
	if e.Src.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Src.String(), e.Msg)
}

func errAt(src reader.Source, format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...), Src: src}
}

// Emitter lowers IL into a vm.OpCodeTable, interning string/symbol/lambda
// constants into a shared vm.ConstantPool as it goes.
type Emitter struct {
	pool *vm.ConstantPool
}

// NewEmitter returns an emitter that interns constants into pool.
func NewEmitter(pool *vm.ConstantPool) *Emitter {
	return &Emitter{pool: pool}
}

// EmitProgram emits a top-level sequence of resolved IL forms into one
// flat OpCodeTable, leaving the last form's value on the stack (earlier
// forms' values are discarded with Pop, mirroring a REPL evaluating a
// sequence of top-level expressions).
func (e *Emitter) EmitProgram(forms []il.Node) (*vm.OpCodeTable, error) {
	out := vm.NewOpCodeTable()
	for i, n := range forms {
		if err := e.emit(out, n); err != nil {
			return nil, err
		}
		if i != len(forms)-1 {
			out.Push(vm.OpCode{Kind: vm.OpPop}, n.Source())
		}
	}
	return out, nil
}

// emit appends the instructions for n onto out, leaving exactly one
// value on the stack.
func (e *Emitter) emit(out *vm.OpCodeTable, n il.Node) error {
	switch x := n.(type) {
	case *il.Module, *il.Require, *il.Export:
		// Purely declarative; nothing to execute. Pushed as Nil so the
		// one-value-per-form invariant holds for top-level sequences.
		out.Push(vm.OpCode{Kind: vm.OpPushNil}, n.Source())
		return nil

	case *il.EvalWhenCompile:
		return errAt(x.Src, "eval-when-compile must be handled by the compile driver, not emitted")

	case *il.Constant:
		return e.emitConstant(out, x)

	case *il.VarRef:
		return e.emitVarRef(out, x)

	case *il.Def:
		if err := e.emit(out, x.Body); err != nil {
			return err
		}
		hash := e.pool.InternString(vm.ConstantSymbol, x.Name)
		out.Push(vm.OpCode{Kind: vm.OpDefGlobal, Hash: hash}, x.Src)
		return nil

	case *il.Set:
		if err := e.emit(out, x.Body); err != nil {
			return err
		}
		switch x.Target.Kind {
		case il.VarLocal:
			out.Push(vm.OpCode{Kind: vm.OpSetLocal, Index: x.Target.Index}, x.Src)
		case il.VarUpValue:
			out.Push(vm.OpCode{Kind: vm.OpSetUpValue, Index: x.Target.Index}, x.Src)
		default:
			hash := e.pool.InternString(vm.ConstantSymbol, x.Target.Name)
			out.Push(vm.OpCode{Kind: vm.OpSetGlobal, Hash: hash}, x.Src)
		}
		return nil

	case *il.If:
		return e.emitIf(out, x)

	case *il.Apply:
		// apply spreads a runtime list as a call's arguments, so the
		// argument count isn't known until the list is built; the VM's
		// Apply opcode pops the list and splices its elements itself
		// instead of the emitter needing a fixed arg count up front.
		if err := e.emit(out, x.Fn); err != nil {
			return err
		}
		if err := e.emit(out, x.List); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpApply}, x.Src)
		return nil

	case *il.BinaryArithmetic:
		if err := e.emit(out, x.Lhs); err != nil {
			return err
		}
		if err := e.emit(out, x.Rhs); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: arithOpcode(x.Op), N: 2}, x.Src)
		return nil

	case *il.Comparison:
		if err := e.emit(out, x.Lhs); err != nil {
			return err
		}
		if err := e.emit(out, x.Rhs); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpCompare, CompareOp: compareKind(x.Op)}, x.Src)
		return nil

	case *il.List:
		for _, el := range x.Exprs {
			if err := e.emit(out, el); err != nil {
				return err
			}
		}
		out.Push(vm.OpCode{Kind: vm.OpList, N: len(x.Exprs)}, x.Src)
		return nil

	case *il.Cons:
		if err := e.emit(out, x.Lhs); err != nil {
			return err
		}
		if err := e.emit(out, x.Rhs); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpCons}, x.Src)
		return nil

	case *il.Car:
		if err := e.emit(out, x.X); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpCar}, x.Src)
		return nil

	case *il.Cdr:
		if err := e.emit(out, x.X); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpCdr}, x.Src)
		return nil

	case *il.FnCall:
		if err := e.emit(out, x.Fn); err != nil {
			return err
		}
		for _, a := range x.Args {
			if err := e.emit(out, a); err != nil {
				return err
			}
		}
		kind := vm.OpCall
		if x.IsTail {
			kind = vm.OpTail
		}
		out.Push(vm.OpCode{Kind: kind, N: len(x.Args)}, x.Src)
		return nil

	case *il.Lambda:
		return e.emitLambda(out, x)

	case *il.Quote:
		return e.emitQuoted(out, x.Value, x.Src)

	case *il.IsType:
		if err := e.emit(out, x.X); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpIsType, IsTypeTag: typeTag(x.Kind)}, x.Src)
		return nil

	case *il.Assert:
		if err := e.emit(out, x.X); err != nil {
			return err
		}
		hash := e.pool.InternString(vm.ConstantString, x.Message)
		out.Push(vm.OpCode{Kind: vm.OpAssert, Hash: hash}, x.Src)
		return nil

	case *il.MapCreate:
		out.Push(vm.OpCode{Kind: vm.OpMapNew}, x.Src)
		return nil

	case *il.MapInsert:
		if err := e.emit(out, x.Map); err != nil {
			return err
		}
		if err := e.emit(out, x.Key); err != nil {
			return err
		}
		if err := e.emit(out, x.Val); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpMapInsert}, x.Src)
		return nil

	case *il.MapRetrieve:
		if err := e.emit(out, x.Map); err != nil {
			return err
		}
		if err := e.emit(out, x.Key); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpMapGet}, x.Src)
		return nil

	case *il.MapItems:
		if err := e.emit(out, x.Map); err != nil {
			return err
		}
		out.Push(vm.OpCode{Kind: vm.OpMapItems}, x.Src)
		return nil

	default:
		return errAt(n.Source(), "emitter: unhandled IL node %T", n)
	}
}

func (e *Emitter) emitConstant(out *vm.OpCodeTable, c *il.Constant) error {
	switch c.Kind {
	case ast.ConstInt:
		out.Push(vm.OpCode{Kind: vm.OpPushInt, Int: c.Int}, c.Src)
	case ast.ConstString:
		hash := e.pool.InternString(vm.ConstantString, c.String)
		out.Push(vm.OpCode{Kind: vm.OpPushString, Hash: hash}, c.Src)
	case ast.ConstSymbol:
		hash := e.pool.InternString(vm.ConstantSymbol, c.Symbol)
		out.Push(vm.OpCode{Kind: vm.OpPushSymbol, Hash: hash}, c.Src)
	case ast.ConstChar:
		out.Push(vm.OpCode{Kind: vm.OpPushChar, Char: c.Char}, c.Src)
	case ast.ConstBool:
		if c.Bool {
			out.Push(vm.OpCode{Kind: vm.OpPushTrue}, c.Src)
		} else {
			out.Push(vm.OpCode{Kind: vm.OpPushNil}, c.Src)
		}
	case ast.ConstNil:
		out.Push(vm.OpCode{Kind: vm.OpPushNil}, c.Src)
	default:
		return errAt(c.Src, "emitter: unhandled constant kind %v", c.Kind)
	}
	return nil
}

func (e *Emitter) emitVarRef(out *vm.OpCodeTable, v *il.VarRef) error {
	switch v.Kind {
	case il.VarLocal:
		out.Push(vm.OpCode{Kind: vm.OpGetLocal, Index: v.Index}, v.Src)
	case il.VarUpValue:
		out.Push(vm.OpCode{Kind: vm.OpGetUpValue, Index: v.Index}, v.Src)
	default:
		hash := e.pool.InternString(vm.ConstantSymbol, v.Name)
		out.Push(vm.OpCode{Kind: vm.OpGetGlobal, Hash: hash}, v.Src)
	}
	return nil
}

// emitIf emits predicate, Branch(len(then)+1), then, Jmp(len(else)),
// else.
func (e *Emitter) emitIf(out *vm.OpCodeTable, x *il.If) error {
	if err := e.emit(out, x.Pred); err != nil {
		return err
	}

	thenTable := vm.NewOpCodeTable()
	if err := e.emit(thenTable, x.Then); err != nil {
		return err
	}

	elseTable := vm.NewOpCodeTable()
	if x.Else != nil {
		if err := e.emit(elseTable, x.Else); err != nil {
			return err
		}
	} else {
		elseTable.Push(vm.OpCode{Kind: vm.OpPushNil}, x.Src)
	}

	out.Push(vm.OpCode{Kind: vm.OpBranch, Offset: thenTable.Len() + 1}, x.Src)
	out.Append(thenTable)
	out.Push(vm.OpCode{Kind: vm.OpJmp, Offset: elseTable.Len()}, x.Src)
	out.Append(elseTable)
	return nil
}

// emitLambda compiles the body into a fresh table, appends an implicit
// Return, interns it, then emits Lambda followed by one CreateUpValue per
// recorded upvalue descriptor, in declaration order.
func (e *Emitter) emitLambda(out *vm.OpCodeTable, x *il.Lambda) error {
	body := vm.NewOpCodeTable()
	for i, n := range x.Body {
		if err := e.emit(body, n); err != nil {
			return err
		}
		if i != len(x.Body)-1 {
			body.Push(vm.OpCode{Kind: vm.OpPop}, n.Source())
		}
	}
	body.Push(vm.OpCode{Kind: vm.OpReturn}, x.Src)

	hash := e.pool.InternOpCodes(body)
	out.Push(vm.OpCode{
		Kind:        vm.OpLambda,
		Hash:        hash,
		N:           len(x.UpValues),
		LambdaArity: x.Arity,
	}, x.Src)
	for _, uv := range x.UpValues {
		out.Push(vm.OpCode{Kind: vm.OpCreateUpValue, UpValue: uv}, x.Src)
	}
	return nil
}

// emitQuoted materializes a Quoted literal as data: symbols/strings/
// chars/ints/bools/nil push directly, lists push each element
// recursively and then build with List(n), so `(quote X)` yields an
// object structurally equal to X.
func (e *Emitter) emitQuoted(out *vm.OpCodeTable, v ast.Quoted, src reader.Source) error {
	switch q := v.(type) {
	case ast.QSymbol:
		hash := e.pool.InternString(vm.ConstantSymbol, q.Name)
		out.Push(vm.OpCode{Kind: vm.OpPushSymbol, Hash: hash}, src)
	case ast.QString:
		hash := e.pool.InternString(vm.ConstantString, q.Value)
		out.Push(vm.OpCode{Kind: vm.OpPushString, Hash: hash}, src)
	case ast.QChar:
		out.Push(vm.OpCode{Kind: vm.OpPushChar, Char: q.Value}, src)
	case ast.QInt:
		out.Push(vm.OpCode{Kind: vm.OpPushInt, Int: q.Value}, src)
	case ast.QBool:
		if q.Value {
			out.Push(vm.OpCode{Kind: vm.OpPushTrue}, src)
		} else {
			out.Push(vm.OpCode{Kind: vm.OpPushNil}, src)
		}
	case ast.QNil:
		out.Push(vm.OpCode{Kind: vm.OpPushNil}, src)
	case ast.QList:
		for _, el := range q.Elems {
			if err := e.emitQuoted(out, el, src); err != nil {
				return err
			}
		}
		out.Push(vm.OpCode{Kind: vm.OpList, N: len(q.Elems)}, src)
	default:
		return errAt(src, "emitter: unhandled quoted variant %T", v)
	}
	return nil
}

func arithOpcode(op ast.ArithOp) vm.OpKind {
	switch op {
	case ast.ArithAdd:
		return vm.OpAdd
	case ast.ArithSub:
		return vm.OpSub
	case ast.ArithMul:
		return vm.OpMul
	default:
		return vm.OpDiv
	}
}

func compareKind(op ast.CompareOp) vm.CompareKind {
	switch op {
	case ast.CompareLt:
		return vm.CompareLt
	case ast.CompareGt:
		return vm.CompareGt
	default:
		return vm.CompareEq
	}
}

func typeTag(t ast.TypeTag) vm.Type {
	switch t {
	case ast.TypeInt:
		return vm.TypeInt
	case ast.TypeString:
		return vm.TypeString
	case ast.TypeSymbol:
		return vm.TypeSymbol
	case ast.TypeChar:
		return vm.TypeChar
	case ast.TypeBool:
		return vm.TypeTrue
	case ast.TypeNil:
		return vm.TypeNil
	case ast.TypeCons:
		return vm.TypeCons
	case ast.TypeFunction:
		return vm.TypeFunction
	case ast.TypeMap:
		return vm.TypeMap
	default:
		return vm.TypeNil
	}
}
