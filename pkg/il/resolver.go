package il

import (
	"fmt"

	"github.com/lispc/lispc/pkg/ast"
	"github.com/lispc/lispc/pkg/reader"
	"github.com/lispc/lispc/pkg/vm"
)

// Error is a scope-resolution fault (an internal inconsistency in the
// AST the resolver was handed — user-facing "undefined variable" errors
// are deferred to the VM at runtime, since globals resolve lazily).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// frame is one lexical scope: the ordered parameter names introduced by
// the lambda that owns it (there are no let-bindings in this language —
// locals come only from parameters), plus the upvalue
// descriptors this lambda has had to record so far, deduplicated by
// descriptor.
type frame struct {
	parent  *frame
	params  []string
	upNames []string // parallel to upvalues: the name each upvalue resolves, for dedup
	upvals  []vm.UpValueDescriptor
}

func (f *frame) resolveLocal(name string) (int, bool) {
	for i, p := range f.params {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks outward: it first checks
// whether the immediately enclosing frame binds name as a local
// (frame=0), otherwise recurses to ask whether an outer frame already has
// (or can obtain) an upvalue for it, threading a pass-through upvalue
// through every intermediate lambda (frame=1, indexing the enclosing
// lambda's own upvalue list).
func (f *frame) resolveUpvalue(name string) (int, bool) {
	if f.parent == nil {
		return 0, false
	}
	if idx, ok := f.parent.resolveLocal(name); ok {
		return f.addUpvalue(name, vm.UpValueDescriptor{Frame: 0, Index: idx}), true
	}
	if idx, ok := f.parent.resolveUpvalue(name); ok {
		return f.addUpvalue(name, vm.UpValueDescriptor{Frame: 1, Index: idx}), true
	}
	return 0, false
}

func (f *frame) addUpvalue(name string, desc vm.UpValueDescriptor) int {
	for i, n := range f.upNames {
		if n == name && f.upvals[i] == desc {
			return i
		}
	}
	f.upNames = append(f.upNames, name)
	f.upvals = append(f.upvals, desc)
	return len(f.upvals) - 1
}

// Resolver walks an AST tree (already macro-expanded) and produces IL
// with every Variable replaced by a resolved VarRef.
type Resolver struct {
	current *frame
}

// NewResolver returns a resolver positioned at the top level (no
// enclosing lambda frame, so every free variable resolves to Global).
func NewResolver() *Resolver {
	return &Resolver{current: &frame{}}
}

// Resolve lowers a single top-level AST node. Call once per top-level
// form, in source order, against the same Resolver so module-scoped
// forms (Require/Module/Export) accumulate consistently.
func (r *Resolver) Resolve(n ast.Node) (Node, error) {
	return r.resolveNode(n, false)
}

// resolveNode walks n, threading isTail so FnCall can record whether it
// sits in tail position: the last expression evaluated in a lambda body,
// or a branch of an If that itself is in tail position. Arguments,
// operands, and every other non-final position are never tail.
func (r *Resolver) resolveNode(n ast.Node, isTail bool) (Node, error) {
	switch x := n.(type) {
	case *ast.Module:
		return &Module{Name: x.Name, Src: x.Src}, nil

	case *ast.Require:
		return &Require{Name: x.Name, Src: x.Src}, nil

	case *ast.EvalWhenCompile:
		body, err := r.resolveBody(x.Body)
		if err != nil {
			return nil, err
		}
		return &EvalWhenCompile{Body: body, Src: x.Src}, nil

	case *ast.Lambda:
		return r.resolveLambda(x)

	case *ast.Def:
		body, err := r.resolveNode(x.Body, false)
		if err != nil {
			return nil, err
		}
		return &Def{Name: x.Param.Name, Body: body, Src: x.Src}, nil

	case *ast.Decl:
		body, err := r.resolveNode(x.Body, false)
		if err != nil {
			return nil, err
		}
		return &Def{Name: x.Param.Name, Body: body, Src: x.Src}, nil

	case *ast.Set:
		target := r.resolveVarName(x.Name)
		target.Src = x.Src
		body, err := r.resolveNode(x.Body, false)
		if err != nil {
			return nil, err
		}
		return &Set{Target: target, Body: body, Src: x.Src}, nil

	case *ast.If:
		pred, err := r.resolveNode(x.Pred, false)
		if err != nil {
			return nil, err
		}
		then, err := r.resolveNode(x.Then, isTail)
		if err != nil {
			return nil, err
		}
		var els Node
		if x.Else != nil {
			els, err = r.resolveNode(x.Else, isTail)
			if err != nil {
				return nil, err
			}
		}
		return &If{Pred: pred, Then: then, Else: els, Src: x.Src}, nil

	case *ast.Apply:
		fn, err := r.resolveNode(x.Fn, false)
		if err != nil {
			return nil, err
		}
		list, err := r.resolveNode(x.List, false)
		if err != nil {
			return nil, err
		}
		return &Apply{Fn: fn, List: list, Src: x.Src}, nil

	case *ast.BinaryArithmetic:
		lhs, err := r.resolveNode(x.Lhs, false)
		if err != nil {
			return nil, err
		}
		rhs, err := r.resolveNode(x.Rhs, false)
		if err != nil {
			return nil, err
		}
		return &BinaryArithmetic{Op: x.Op, Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.Comparison:
		lhs, err := r.resolveNode(x.Lhs, false)
		if err != nil {
			return nil, err
		}
		rhs, err := r.resolveNode(x.Rhs, false)
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: x.Op, Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.List:
		exprs, err := r.resolveBody(x.Exprs)
		if err != nil {
			return nil, err
		}
		return &List{Exprs: exprs, Src: x.Src}, nil

	case *ast.Cons:
		lhs, err := r.resolveNode(x.Lhs, false)
		if err != nil {
			return nil, err
		}
		rhs, err := r.resolveNode(x.Rhs, false)
		if err != nil {
			return nil, err
		}
		return &Cons{Lhs: lhs, Rhs: rhs, Src: x.Src}, nil

	case *ast.Car:
		inner, err := r.resolveNode(x.X, false)
		if err != nil {
			return nil, err
		}
		return &Car{X: inner, Src: x.Src}, nil

	case *ast.Cdr:
		inner, err := r.resolveNode(x.X, false)
		if err != nil {
			return nil, err
		}
		return &Cdr{X: inner, Src: x.Src}, nil

	case *ast.FnCall:
		fn, err := r.resolveNode(x.Fn, false)
		if err != nil {
			return nil, err
		}
		args, err := r.resolveBody(x.Args)
		if err != nil {
			return nil, err
		}
		return &FnCall{Fn: fn, Args: args, IsTail: isTail, Src: x.Src}, nil

	case *ast.Quote:
		return &Quote{Value: x.Value, Src: x.Src}, nil

	case *ast.IsType:
		inner, err := r.resolveNode(x.X, false)
		if err != nil {
			return nil, err
		}
		return &IsType{Kind: x.Kind, X: inner, Src: x.Src}, nil

	case *ast.Assert:
		inner, err := r.resolveNode(x.X, false)
		if err != nil {
			return nil, err
		}
		return &Assert{X: inner, Message: "assertion failed: " + sourceString(x.Src), Src: x.Src}, nil

	case *ast.MapCreate:
		return &MapCreate{Src: x.Src}, nil

	case *ast.MapInsert:
		m, err := r.resolveNode(x.Map, false)
		if err != nil {
			return nil, err
		}
		key, err := r.resolveNode(x.Key, false)
		if err != nil {
			return nil, err
		}
		val, err := r.resolveNode(x.Val, false)
		if err != nil {
			return nil, err
		}
		return &MapInsert{Map: m, Key: key, Val: val, Src: x.Src}, nil

	case *ast.MapRetrieve:
		m, err := r.resolveNode(x.Map, false)
		if err != nil {
			return nil, err
		}
		key, err := r.resolveNode(x.Key, false)
		if err != nil {
			return nil, err
		}
		return &MapRetrieve{Map: m, Key: key, Src: x.Src}, nil

	case *ast.MapItems:
		m, err := r.resolveNode(x.Map, false)
		if err != nil {
			return nil, err
		}
		return &MapItems{Map: m, Src: x.Src}, nil

	case *ast.Variable:
		return r.resolveVariable(x), nil

	case *ast.Constant:
		return &Constant{Kind: x.Kind, Symbol: x.Symbol, String: x.String, Char: x.Char, Int: x.Int, Bool: x.Bool, Src: x.Src}, nil

	case *ast.Export:
		return &Export{Name: x.Name, Src: x.Src}, nil

	case *ast.DefMacro:
		return nil, errf("internal: DefMacro reached the resolver unexpanded at %s", x.Src)

	case *ast.MacroCall:
		return nil, errf("internal: MacroCall reached the resolver unexpanded at %s", x.Src)

	default:
		return nil, errf("resolver: unhandled AST node %T", n)
	}
}

func (r *Resolver) resolveBody(body []ast.Node) ([]Node, error) {
	out := make([]Node, len(body))
	for i, n := range body {
		resolved, err := r.resolveNode(n, false)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveLambda(x *ast.Lambda) (Node, error) {
	var names []string
	switch p := x.Params.(type) {
	case ast.NormalParams:
		for _, param := range p.Params {
			names = append(names, param.Name)
		}
	case ast.RestParams:
		for _, param := range p.Leading {
			names = append(names, param.Name)
		}
		names = append(names, p.Rest.Name)
	}

	r.current = &frame{parent: r.current, params: names}
	body := make([]Node, len(x.Body))
	for i, n := range x.Body {
		resolved, err := r.resolveNode(n, i == len(x.Body)-1)
		if err != nil {
			return nil, err
		}
		body[i] = resolved
	}
	lamFrame := r.current
	r.current = r.current.parent

	arity := arityOf(x.Params)
	return &Lambda{Arity: arity, ParamNames: names, UpValues: lamFrame.upvals, Body: body, Src: x.Src}, nil
}

func arityOf(params ast.Parameters) vm.Arity {
	switch p := params.(type) {
	case ast.RestParams:
		return vm.Arity{Kind: vm.ArityVariadic, Count: len(p.Leading)}
	case ast.NormalParams:
		if len(p.Params) == 0 {
			return vm.Arity{Kind: vm.ArityNullary}
		}
		return vm.Arity{Kind: vm.ArityNary, Count: len(p.Params)}
	default:
		return vm.Arity{Kind: vm.ArityNullary}
	}
}

func (r *Resolver) resolveVariable(x *ast.Variable) Node {
	name := x.Name
	if x.Module != "" {
		name = x.Module + "::" + x.Name
	}
	ref := r.resolveVarName(name)
	ref.Src = x.Src
	return &ref
}

// resolveVarName applies the local/upvalue/global lookup for a bare
// (unqualified) name; a module-qualified name (containing "::") always
// resolves to Global since lexical frames never bind qualified names.
func (r *Resolver) resolveVarName(name string) VarRef {
	if idx, ok := r.current.resolveLocal(name); ok {
		return VarRef{Kind: VarLocal, Index: idx, Name: name}
	}
	if idx, ok := r.current.resolveUpvalue(name); ok {
		return VarRef{Kind: VarUpValue, Index: idx, Name: name}
	}
	return VarRef{Kind: VarGlobal, Name: name}
}

func sourceString(s reader.Source) string {
	return s.String()
}
