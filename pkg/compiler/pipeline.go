package compiler

import (
	"github.com/lispc/lispc/pkg/ast"
	"github.com/lispc/lispc/pkg/il"
	"github.com/lispc/lispc/pkg/reader"
	"github.com/lispc/lispc/pkg/vm"
)

// Session ties one compile-and-run pass together: a single reader, AST
// compiler, macro expander, and VM instance. One long-lived VM threads
// through a compile session so macro bodies and user code share globals
// and the constant pool. A
// REPL keeps one Session alive across input lines; `lispc compile`/`run`
// create one per invocation.
type Session struct {
	astc     *ast.Compiler
	expander *MacroExpander
	pool     *vm.ConstantPool
	vm       *vm.VM
}

// NewSession wires a fresh AST compiler, macro expander, constant pool,
// and VM together.
func NewSession() *Session {
	pool := vm.NewConstantPool()
	machine := vm.NewVM(pool)
	astc := ast.NewCompiler()
	return &Session{
		astc:     astc,
		expander: NewMacroExpander(astc, machine, pool),
		pool:     pool,
		vm:       machine,
	}
}

// VM exposes the session's VM so callers can register natives before
// running source (e.g. cmd/lispc installs pkg/native's registry here).
func (s *Session) VM() *vm.VM { return s.vm }

// Pool exposes the session's constant pool so callers can resolve
// string/symbol/lambda-body constants by hash (e.g. cmd/lispc's
// `disasm` command, to label instructions and recurse into lambda
// bodies).
func (s *Session) Pool() *vm.ConstantPool { return s.pool }

// CompileString reads file's source text, lowers it through the AST
// compiler and macro expander, resolves scope, and emits one flat
// OpCodeTable ready to hand to the VM — the full pipeline short of
// execution, used by `lispc compile`/`disasm`.
func (s *Session) CompileString(file, source string) (*vm.OpCodeTable, error) {
	forms, err := reader.NewReader(file).ReadAll(source)
	if err != nil {
		return nil, err
	}

	resolver := il.NewResolver()

	var pending []il.Node
	for _, sexpr := range forms {
		astNode, err := s.astc.Lower(sexpr)
		if err != nil {
			return nil, err
		}
		expanded, err := s.expander.Expand(astNode)
		if err != nil {
			return nil, err
		}
		if expanded == nil {
			// DefMacro / EvalWhenCompile: consumed at compile time, no
			// runtime code.
			continue
		}
		resolved, err := resolver.Resolve(expanded)
		if err != nil {
			return nil, err
		}
		pending = append(pending, resolved)
	}

	return NewEmitter(s.pool).EmitProgram(pending)
}

// RunString compiles source and runs it to completion on the session's
// VM, returning the final value (the last top-level form's result).
func (s *Session) RunString(file, source string) (vm.Object, error) {
	code, err := s.CompileString(file, source)
	if err != nil {
		return nil, err
	}
	return s.vm.RunProgram(code)
}
