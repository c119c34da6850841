package compiler

import (
	"github.com/lispc/lispc/pkg/ast"
	"github.com/lispc/lispc/pkg/il"
	"github.com/lispc/lispc/pkg/reader"
	"github.com/lispc/lispc/pkg/vm"
)

// maxMacroExpansionDepth bounds recursive macro expansion so a macro
// that expands into a call to itself (directly or through a cycle of
// other macros) fails with a diagnosable error instead of looping
// forever. Overridable via SetMaxMacroExpansionDepth, which
// cmd/lispc wires to pkg/config's `max_macro_expansion_depth` setting.
var maxMacroExpansionDepth = 500

// SetMaxMacroExpansionDepth overrides the macro-expansion depth limit.
// Called once at startup by cmd/lispc after loading pkg/config.
func SetMaxMacroExpansionDepth(n int) { maxMacroExpansionDepth = n }

// MacroExpander compiles `defmacro` bodies once, to real compiled
// lambdas, and expands `MacroCall` sites by running those lambdas on the
// shared VM over the quoted argument list, not by substituting AST
// fragments.
type MacroExpander struct {
	astc    *ast.Compiler
	vm      *vm.VM
	pool    *vm.ConstantPool
	macros  map[string]*vm.FunctionObject
}

// NewMacroExpander returns an expander sharing astc's macro-name
// registry and running macro bodies on the given long-lived VM.
func NewMacroExpander(astc *ast.Compiler, machine *vm.VM, pool *vm.ConstantPool) *MacroExpander {
	return &MacroExpander{astc: astc, vm: machine, pool: pool, macros: make(map[string]*vm.FunctionObject)}
}

// Expand processes one top-level AST form. If n is a DefMacro, its body
// is compiled and registered, and Expand returns (nil, nil) — the form
// contributes no runtime code. If n is an EvalWhenCompile, its body is
// compiled and run immediately on the VM for effect, its result
// discarded, and Expand again returns (nil, nil). Otherwise n (and every
// MacroCall nested within it) is fully expanded and returned.
func (m *MacroExpander) Expand(n ast.Node) (ast.Node, error) {
	switch x := n.(type) {
	case *ast.DefMacro:
		return nil, m.register(x)
	case *ast.EvalWhenCompile:
		return nil, m.runForEffect(x)
	default:
		return m.expandNode(n, 0)
	}
}

func (m *MacroExpander) register(def *ast.DefMacro) error {
	lam, err := m.compileLambdaBody(def.Params, def.Body, def.Src)
	if err != nil {
		return err
	}
	lam.Name = def.Name
	m.macros[def.Name] = &vm.FunctionObject{Lambda: lam}
	return nil
}

func (m *MacroExpander) runForEffect(x *ast.EvalWhenCompile) error {
	lam, err := m.compileLambdaBody(ast.NormalParams{}, x.Body, x.Src)
	if err != nil {
		return err
	}
	_, err = m.vm.Call(&vm.FunctionObject{Lambda: lam}, nil)
	return err
}

// compileLambdaBody resolves and emits params/body as if they were a
// Lambda, without going through macro expansion again. Macro and
// eval-when-compile bodies are ordinary code; they are expanded using
// this same expander instance and its depth limit, with each body
// expression's depth counted from zero.
func (m *MacroExpander) compileLambdaBody(params ast.Parameters, body []ast.Node, src reader.Source) (*vm.Lambda, error) {
	expandedBody := make([]ast.Node, 0, len(body))
	for _, n := range body {
		exp, err := m.expandNode(n, 0)
		if err != nil {
			return nil, err
		}
		expandedBody = append(expandedBody, exp)
	}

	lamAST := &ast.Lambda{Params: params, Body: expandedBody, Src: src}
	resolver := il.NewResolver()
	resolved, err := resolver.Resolve(lamAST)
	if err != nil {
		return nil, err
	}
	ilLam := resolved.(*il.Lambda)

	emitter := NewEmitter(m.pool)
	code := vm.NewOpCodeTable()
	for i, n := range ilLam.Body {
		if err := emitter.emit(code, n); err != nil {
			return nil, err
		}
		if i != len(ilLam.Body)-1 {
			code.Push(vm.OpCode{Kind: vm.OpPop}, n.Source())
		}
	}
	code.Push(vm.OpCode{Kind: vm.OpReturn}, src)

	return &vm.Lambda{Arity: ilLam.Arity, Code: code}, nil
}

// expandNode deep-walks n, replacing every MacroCall it finds (at any
// nesting depth) with its expansion, re-lowered through the AST
// compiler and expanded again in case the expansion itself contains
// macro calls.
func (m *MacroExpander) expandNode(n ast.Node, depth int) (ast.Node, error) {
	if depth > maxMacroExpansionDepth {
		return nil, errAt(n.Source(), "macro expansion exceeded depth %d (possible infinite recursion)", maxMacroExpansionDepth)
	}

	switch x := n.(type) {
	case *ast.MacroCall:
		expanded, err := m.expandCall(x, depth)
		if err != nil {
			return nil, err
		}
		return m.expandNode(expanded, depth+1)

	case *ast.EvalWhenCompile:
		if err := m.runForEffect(x); err != nil {
			return nil, err
		}
		return &ast.Constant{Kind: ast.ConstNil, Src: x.Src}, nil

	case *ast.Lambda:
		body, err := m.expandBody(x.Body, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Lambda{Params: x.Params, ReturnType: x.ReturnType, Body: body, Src: x.Src}, nil

	case *ast.Def:
		body, err := m.expandNode(x.Body, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Def{Param: x.Param, Body: body, Src: x.Src}, nil

	case *ast.Decl:
		body, err := m.expandNode(x.Body, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Decl{Param: x.Param, Body: body, Src: x.Src}, nil

	case *ast.Set:
		body, err := m.expandNode(x.Body, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Set{Name: x.Name, Body: body, Src: x.Src}, nil

	case *ast.If:
		pred, err := m.expandNode(x.Pred, depth)
		if err != nil {
			return nil, err
		}
		then, err := m.expandNode(x.Then, depth)
		if err != nil {
			return nil, err
		}
		var els ast.Node
		if x.Else != nil {
			els, err = m.expandNode(x.Else, depth)
			if err != nil {
				return nil, err
			}
		}
		return &ast.If{Pred: pred, Then: then, Else: els, Src: x.Src}, nil

	case *ast.Apply:
		fn, err := m.expandNode(x.Fn, depth)
		if err != nil {
			return nil, err
		}
		list, err := m.expandNode(x.List, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Apply{Fn: fn, List: list, Src: x.Src}, nil

	case *ast.BinaryArithmetic:
		lhs, err := m.expandNode(x.Lhs, depth)
		if err != nil {
			return nil, err
		}
		rhs, err := m.expandNode(x.Rhs, depth)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryArithmetic{Op: x.Op, Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.Comparison:
		lhs, err := m.expandNode(x.Lhs, depth)
		if err != nil {
			return nil, err
		}
		rhs, err := m.expandNode(x.Rhs, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: x.Op, Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.List:
		exprs, err := m.expandBody(x.Exprs, depth)
		if err != nil {
			return nil, err
		}
		return &ast.List{Exprs: exprs, Src: x.Src}, nil

	case *ast.Cons:
		lhs, err := m.expandNode(x.Lhs, depth)
		if err != nil {
			return nil, err
		}
		rhs, err := m.expandNode(x.Rhs, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Cons{Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.Car:
		inner, err := m.expandNode(x.X, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Car{X: inner, Src: x.Src}, nil

	case *ast.Cdr:
		inner, err := m.expandNode(x.X, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Cdr{X: inner, Src: x.Src}, nil

	case *ast.FnCall:
		fn, err := m.expandNode(x.Fn, depth)
		if err != nil {
			return nil, err
		}
		args, err := m.expandBody(x.Args, depth)
		if err != nil {
			return nil, err
		}
		return &ast.FnCall{Fn: fn, Args: args, Src: x.Src}, nil

	case *ast.IsType:
		inner, err := m.expandNode(x.X, depth)
		if err != nil {
			return nil, err
		}
		return &ast.IsType{Kind: x.Kind, X: inner, Src: x.Src}, nil

	case *ast.Assert:
		inner, err := m.expandNode(x.X, depth)
		if err != nil {
			return nil, err
		}
		return &ast.Assert{X: inner, Src: x.Src}, nil

	case *ast.MapInsert:
		mp, err := m.expandNode(x.Map, depth)
		if err != nil {
			return nil, err
		}
		key, err := m.expandNode(x.Key, depth)
		if err != nil {
			return nil, err
		}
		val, err := m.expandNode(x.Val, depth)
		if err != nil {
			return nil, err
		}
		return &ast.MapInsert{Map: mp, Key: key, Val: val, Src: x.Src}, nil

	case *ast.MapRetrieve:
		mp, err := m.expandNode(x.Map, depth)
		if err != nil {
			return nil, err
		}
		key, err := m.expandNode(x.Key, depth)
		if err != nil {
			return nil, err
		}
		return &ast.MapRetrieve{Map: mp, Key: key, Src: x.Src}, nil

	case *ast.MapItems:
		mp, err := m.expandNode(x.Map, depth)
		if err != nil {
			return nil, err
		}
		return &ast.MapItems{Map: mp, Src: x.Src}, nil

	default:
		// Module, Require, DefMacro (nested macro definitions are a no-op
		// pass-through), Variable, Constant, Quote, MapCreate, and Export
		// carry no child Nodes to walk.
		return n, nil
	}
}

func (m *MacroExpander) expandBody(body []ast.Node, depth int) ([]ast.Node, error) {
	out := make([]ast.Node, len(body))
	for i, n := range body {
		exp, err := m.expandNode(n, depth)
		if err != nil {
			return nil, err
		}
		out[i] = exp
	}
	return out, nil
}

// expandCall runs a macro's compiled body over its quoted argument list
// and re-lowers the returned S-expression through the AST compiler.
func (m *MacroExpander) expandCall(call *ast.MacroCall, depth int) (ast.Node, error) {
	if depth+1 > maxMacroExpansionDepth {
		return nil, errAt(call.Src, "macro expansion exceeded depth %d (possible infinite recursion)", maxMacroExpansionDepth)
	}
	fn, ok := m.macros[call.Name]
	if !ok {
		return nil, errAt(call.Src, "undefined macro %q", call.Name)
	}

	args := make([]vm.Object, len(call.Args))
	for i, q := range call.Args {
		args[i] = quotedToObject(q)
	}

	result, err := m.vm.Call(fn, args)
	if err != nil {
		return nil, errAt(call.Src, "macro %q expansion failed: %v", call.Name, err)
	}

	sexpr := objectToSexpr(result, call.Src)
	return m.astc.Lower(sexpr)
}

func quotedToObject(q ast.Quoted) vm.Object {
	switch v := q.(type) {
	case ast.QSymbol:
		return &vm.SymbolObject{Val: v.Name}
	case ast.QString:
		return &vm.StringObject{Val: v.Value}
	case ast.QChar:
		return &vm.CharObject{Val: v.Value}
	case ast.QInt:
		return &vm.IntObject{Val: v.Value}
	case ast.QBool:
		if v.Value {
			return &vm.TrueObject{}
		}
		return &vm.NilObject{}
	case ast.QNil:
		return &vm.NilObject{}
	case ast.QList:
		var list vm.Object = &vm.NilObject{}
		for i := len(v.Elems) - 1; i >= 0; i-- {
			list = &vm.ConsObject{Car: vm.NewCell(quotedToObject(v.Elems[i])), Cdr: vm.NewCell(list)}
		}
		return list
	default:
		return &vm.NilObject{}
	}
}

// objectToSexpr converts a macro's returned runtime value back into the
// S-expression form the AST compiler consumes, so the expansion flows
// through exactly the same lowering path as source code.
func objectToSexpr(o vm.Object, src reader.Source) reader.Sexpr {
	switch v := o.(type) {
	case *vm.SymbolObject:
		return &reader.Symbol{Name: v.Val, Src: src}
	case *vm.StringObject:
		return &reader.String{Value: v.Val, Src: src}
	case *vm.CharObject:
		return &reader.Char{Value: v.Val, Src: src}
	case *vm.IntObject:
		return &reader.Int{Value: v.Val, Src: src}
	case *vm.TrueObject:
		return &reader.Bool{Value: true, Src: src}
	case *vm.NilObject:
		return &reader.Nil{Src: src}
	case *vm.ConsObject:
		var elems []reader.Sexpr
		var cur vm.Object = v
		for {
			cons, ok := cur.(*vm.ConsObject)
			if !ok {
				break
			}
			elems = append(elems, objectToSexpr(cons.Car.Get(), src))
			cur = cons.Cdr.Get()
		}
		return &reader.List{Elements: elems, Src: src}
	default:
		return &reader.Nil{Src: src}
	}
}
