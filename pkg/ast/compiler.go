package ast

import (
	"fmt"
	"strings"

	"github.com/lispc/lispc/pkg/reader"
)

// Error is a parse/shape error raised while lowering a single Sexpr. It
// holds the offending expression so callers can render a source excerpt.
type Error struct {
	Sexpr   reader.Sexpr
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Sexpr.Source(), e.Message)
}

func errf(s reader.Sexpr, format string, args ...interface{}) error {
	return &Error{Sexpr: s, Message: fmt.Sprintf(format, args...)}
}

// Compiler lowers S-expressions into AST nodes, maintaining the
// process-local macro registry that Lower consults to distinguish
// MacroCall from FnCall.
type Compiler struct {
	macros map[string]bool
}

// NewCompiler constructs an AST Compiler with an empty macro registry.
func NewCompiler() *Compiler {
	return &Compiler{macros: make(map[string]bool)}
}

// IsMacro reports whether name was registered by a previously lowered
// DefMacro form.
func (c *Compiler) IsMacro(name string) bool {
	return c.macros[name]
}

// Lower converts a single S-expression into an AST node, dispatching on
// special forms, then registered macros, then plain function calls.
func (c *Compiler) Lower(s reader.Sexpr) (Node, error) {
	switch v := s.(type) {
	case *reader.Int:
		return &Constant{Kind: ConstInt, Int: v.Value, Src: v.Src}, nil
	case *reader.String:
		return &Constant{Kind: ConstString, String: v.Value, Src: v.Src}, nil
	case *reader.Char:
		return &Constant{Kind: ConstChar, Char: v.Value, Src: v.Src}, nil
	case *reader.Bool:
		return &Constant{Kind: ConstBool, Bool: v.Value, Src: v.Src}, nil
	case *reader.Nil:
		return &Constant{Kind: ConstNil, Src: v.Src}, nil
	case *reader.Symbol:
		return c.lowerSymbol(v)
	case *reader.List:
		return c.lowerList(v)
	default:
		return nil, errf(s, "unrecognized s-expression")
	}
}

func (c *Compiler) lowerSymbol(sym *reader.Symbol) (Node, error) {
	mod, name, qualified := SplitVariableName(sym.Name)
	if qualified {
		return &Variable{Module: mod, Name: name, Src: sym.Src}, nil
	}
	return &Variable{Name: name, Src: sym.Src}, nil
}

// SplitVariableName splits a symbol on the first "::" pair. If both
// halves are non-empty it is a module-qualified reference.
func SplitVariableName(name string) (module, bare string, qualified bool) {
	idx := strings.Index(name, "::")
	if idx < 0 {
		return "", name, false
	}
	mod, rest := name[:idx], name[idx+2:]
	if mod == "" || rest == "" {
		return "", name, false
	}
	return mod, rest, true
}

func (c *Compiler) lowerList(l *reader.List) (Node, error) {
	if len(l.Elements) == 0 {
		return &Constant{Kind: ConstNil, Src: l.Src}, nil
	}

	head, isSym := reader.AsSymbolName(l.Elements[0])
	if isSym {
		if fn, ok := specialForms[head]; ok {
			return fn(c, l)
		}
		if c.IsMacro(head) {
			return c.lowerMacroCall(head, l)
		}
	}

	fnNode, err := c.Lower(l.Elements[0])
	if err != nil {
		return nil, err
	}
	args := make([]Node, 0, len(l.Elements)-1)
	for _, a := range l.Elements[1:] {
		an, err := c.Lower(a)
		if err != nil {
			return nil, err
		}
		args = append(args, an)
	}
	return &FnCall{Fn: fnNode, Args: args, Src: l.Src}, nil
}

type specialFormFn func(c *Compiler, l *reader.List) (Node, error)

var specialForms map[string]specialFormFn

func init() {
	specialForms = map[string]specialFormFn{
		"module":             lowerModule,
		"require":            lowerRequire,
		"eval-when-compile":  lowerEvalWhenCompile,
		"defmacro":           lowerDefMacro,
		"lambda":             lowerLambda,
		"def":                lowerDef,
		"decl":               lowerDecl,
		"set!":               lowerSet,
		"if":                 lowerIf,
		"apply":              lowerApply,
		"+":                  arithForm(ArithAdd),
		"-":                  arithForm(ArithSub),
		"*":                  arithForm(ArithMul),
		"/":                  arithForm(ArithDiv),
		"=":                  compareForm(CompareEq),
		"<":                  compareForm(CompareLt),
		">":                  compareForm(CompareGt),
		"list":               lowerList_,
		"cons":               lowerCons,
		"car":                lowerCar,
		"cdr":                lowerCdr,
		"quote":              lowerQuote,
		"assert":             lowerAssert,
		"map-create":         lowerMapCreate,
		"map-insert!":        lowerMapInsert,
		"map-retrieve":       lowerMapRetrieve,
		"map-items":          lowerMapItems,
		"export":             lowerExport,
	}
	for suffix, tag := range predicateSuffix {
		specialForms[suffix] = predicateForm(tag)
	}
}

func requireArgs(l *reader.List, n int) error {
	if len(l.Elements)-1 != n {
		return errf(l, "expected %d argument(s), got %d", n, len(l.Elements)-1)
	}
	return nil
}

func requireMinArgs(l *reader.List, n int) error {
	if len(l.Elements)-1 < n {
		return errf(l, "expected at least %d argument(s), got %d", n, len(l.Elements)-1)
	}
	return nil
}

func symbolArg(s reader.Sexpr) (string, error) {
	name, ok := reader.AsSymbolName(s)
	if !ok {
		return "", errf(s, "expected a symbol")
	}
	return name, nil
}

func lowerModule(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	name, err := symbolArg(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &Module{Name: name, Src: l.Src}, nil
}

func lowerRequire(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	name, err := symbolArg(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &Require{Name: name, Src: l.Src}, nil
}

func lowerEvalWhenCompile(c *Compiler, l *reader.List) (Node, error) {
	body, err := lowerBody(c, l.Elements[1:])
	if err != nil {
		return nil, err
	}
	return &EvalWhenCompile{Body: body, Src: l.Src}, nil
}

func lowerBody(c *Compiler, sexprs []reader.Sexpr) ([]Node, error) {
	body := make([]Node, 0, len(sexprs))
	for _, s := range sexprs {
		n, err := c.Lower(s)
		if err != nil {
			return nil, err
		}
		body = append(body, n)
	}
	return body, nil
}

func lowerDefMacro(c *Compiler, l *reader.List) (Node, error) {
	if err := requireMinArgs(l, 2); err != nil {
		return nil, err
	}
	name, err := symbolArg(l.Elements[1])
	if err != nil {
		return nil, err
	}
	paramsList, ok := l.Elements[2].(*reader.List)
	if !ok {
		return nil, errf(l.Elements[2], "defmacro parameters must be a list")
	}
	params, err := parseParameters(paramsList)
	if err != nil {
		return nil, err
	}
	body, err := lowerBody(c, l.Elements[3:])
	if err != nil {
		return nil, err
	}
	c.macros[name] = true
	return &DefMacro{Name: name, Params: params, Body: body, Src: l.Src}, nil
}

func lowerLambda(c *Compiler, l *reader.List) (Node, error) {
	if err := requireMinArgs(l, 1); err != nil {
		return nil, err
	}
	paramsList, ok := l.Elements[1].(*reader.List)
	if !ok {
		return nil, errf(l.Elements[1], "lambda parameters must be a list")
	}
	params, err := parseParameters(paramsList)
	if err != nil {
		return nil, err
	}

	rest := l.Elements[2:]
	var retType Type
	if len(rest) >= 2 {
		if arrow, ok := reader.AsSymbolName(rest[0]); ok && arrow == "->" {
			retType, err = parseType(rest[1])
			if err != nil {
				return nil, err
			}
			rest = rest[2:]
		}
	}

	body, err := lowerBody(c, rest)
	if err != nil {
		return nil, err
	}
	return &Lambda{Params: params, ReturnType: retType, Body: body, Src: l.Src}, nil
}

func parseParameter(s reader.Sexpr) (Parameter, error) {
	if name, ok := reader.AsSymbolName(s); ok {
		return Parameter{Name: name}, nil
	}
	list, ok := s.(*reader.List)
	if !ok || len(list.Elements) != 2 {
		return Parameter{}, errf(s, "malformed parameter")
	}
	name, err := symbolArg(list.Elements[0])
	if err != nil {
		return Parameter{}, err
	}
	typ, err := parseType(list.Elements[1])
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{Name: name, Type: typ}, nil
}

// parseParameters parses a parameter list into either NormalParams or, if
// the distinguished name &rest appears immediately before exactly one
// trailing parameter, RestParams.
func parseParameters(l *reader.List) (Parameters, error) {
	for i, el := range l.Elements {
		if name, ok := reader.AsSymbolName(el); ok && name == "&rest" {
			if i != len(l.Elements)-2 {
				return nil, errf(l, "&rest must be followed by exactly one parameter")
			}
			leading := make([]Parameter, 0, i)
			for _, p := range l.Elements[:i] {
				param, err := parseParameter(p)
				if err != nil {
					return nil, err
				}
				leading = append(leading, param)
			}
			restParam, err := parseParameter(l.Elements[i+1])
			if err != nil {
				return nil, err
			}
			return RestParams{Leading: leading, Rest: restParam}, nil
		}
	}
	params := make([]Parameter, 0, len(l.Elements))
	for _, p := range l.Elements {
		param, err := parseParameter(p)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return NormalParams{Params: params}, nil
}

func parseType(s reader.Sexpr) (Type, error) {
	if name, ok := reader.AsSymbolName(s); ok {
		return ScalarType{Name: name}, nil
	}
	list, ok := s.(*reader.List)
	if !ok {
		return nil, errf(s, "malformed type annotation")
	}
	elems := make([]Type, 0, len(list.Elements))
	for _, e := range list.Elements {
		t, err := parseType(e)
		if err != nil {
			return nil, err
		}
		elems = append(elems, t)
	}
	return CompositeType{Elems: elems}, nil
}

func lowerDef(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	param, err := parseParameter(l.Elements[1])
	if err != nil {
		return nil, err
	}
	body, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &Def{Param: param, Body: body, Src: l.Src}, nil
}

func lowerDecl(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	param, err := parseParameter(l.Elements[1])
	if err != nil {
		return nil, err
	}
	body, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &Decl{Param: param, Body: body, Src: l.Src}, nil
}

func lowerSet(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	name, err := symbolArg(l.Elements[1])
	if err != nil {
		return nil, err
	}
	body, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &Set{Name: name, Body: body, Src: l.Src}, nil
}

func lowerIf(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 3); err != nil {
		return nil, err
	}
	pred, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	then, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	els, err := c.Lower(l.Elements[3])
	if err != nil {
		return nil, err
	}
	return &If{Pred: pred, Then: then, Else: els, Src: l.Src}, nil
}

func lowerApply(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	fn, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	list, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &Apply{Fn: fn, List: list, Src: l.Src}, nil
}

func arithForm(op ArithOp) specialFormFn {
	return func(c *Compiler, l *reader.List) (Node, error) {
		if err := requireArgs(l, 2); err != nil {
			return nil, err
		}
		lhs, err := c.Lower(l.Elements[1])
		if err != nil {
			return nil, err
		}
		rhs, err := c.Lower(l.Elements[2])
		if err != nil {
			return nil, err
		}
		return &BinaryArithmetic{Op: op, Lhs: lhs, Rhs: rhs, Src: l.Src}, nil
	}
}

func compareForm(op CompareOp) specialFormFn {
	return func(c *Compiler, l *reader.List) (Node, error) {
		if err := requireArgs(l, 2); err != nil {
			return nil, err
		}
		lhs, err := c.Lower(l.Elements[1])
		if err != nil {
			return nil, err
		}
		rhs, err := c.Lower(l.Elements[2])
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: op, Lhs: lhs, Rhs: rhs, Src: l.Src}, nil
	}
}

func lowerList_(c *Compiler, l *reader.List) (Node, error) {
	exprs, err := lowerBody(c, l.Elements[1:])
	if err != nil {
		return nil, err
	}
	return &List{Exprs: exprs, Src: l.Src}, nil
}

func lowerCons(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	lhs, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	rhs, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &Cons{Lhs: lhs, Rhs: rhs, Src: l.Src}, nil
}

func lowerCar(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	x, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &Car{X: x, Src: l.Src}, nil
}

func lowerCdr(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	x, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &Cdr{X: x, Src: l.Src}, nil
}

func predicateForm(tag TypeTag) specialFormFn {
	return func(c *Compiler, l *reader.List) (Node, error) {
		if err := requireArgs(l, 1); err != nil {
			return nil, err
		}
		x, err := c.Lower(l.Elements[1])
		if err != nil {
			return nil, err
		}
		return &IsType{Kind: tag, X: x, Src: l.Src}, nil
	}
}

func lowerQuote(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	q := quoteSexpr(l.Elements[1])
	return &Quote{Value: q, Src: l.Src}, nil
}

// quoteSexpr deep-quotes an Sexpr into the structurally-independent
// Quoted representation.
func quoteSexpr(s reader.Sexpr) Quoted {
	switch v := s.(type) {
	case *reader.Symbol:
		return QSymbol{Name: v.Name}
	case *reader.String:
		return QString{Value: v.Value}
	case *reader.Char:
		return QChar{Value: v.Value}
	case *reader.Int:
		return QInt{Value: v.Value}
	case *reader.Bool:
		return QBool{Value: v.Value}
	case *reader.Nil:
		return QNil{}
	case *reader.List:
		elems := make([]Quoted, 0, len(v.Elements))
		for _, e := range v.Elements {
			elems = append(elems, quoteSexpr(e))
		}
		return QList{Elems: elems}
	default:
		return QNil{}
	}
}

func lowerAssert(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	x, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &Assert{X: x, Src: l.Src}, nil
}

func lowerMapCreate(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 0); err != nil {
		return nil, err
	}
	return &MapCreate{Src: l.Src}, nil
}

func lowerMapInsert(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 3); err != nil {
		return nil, err
	}
	m, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	k, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	v, err := c.Lower(l.Elements[3])
	if err != nil {
		return nil, err
	}
	return &MapInsert{Map: m, Key: k, Val: v, Src: l.Src}, nil
}

func lowerMapRetrieve(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 2); err != nil {
		return nil, err
	}
	m, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	k, err := c.Lower(l.Elements[2])
	if err != nil {
		return nil, err
	}
	return &MapRetrieve{Map: m, Key: k, Src: l.Src}, nil
}

func lowerMapItems(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	m, err := c.Lower(l.Elements[1])
	if err != nil {
		return nil, err
	}
	return &MapItems{Map: m, Src: l.Src}, nil
}

func lowerExport(c *Compiler, l *reader.List) (Node, error) {
	if err := requireArgs(l, 1); err != nil {
		return nil, err
	}
	name, err := symbolArg(l.Elements[1])
	if err != nil {
		return nil, err
	}
	if mod, _, qualified := SplitVariableName(name); qualified || mod != "" {
		return nil, errf(l.Elements[1], "export name must not be module-qualified")
	}
	return &Export{Name: name, Src: l.Src}, nil
}

func (c *Compiler) lowerMacroCall(name string, l *reader.List) (Node, error) {
	args := make([]Quoted, 0, len(l.Elements)-1)
	for _, a := range l.Elements[1:] {
		args = append(args, quoteSexpr(a))
	}
	return &MacroCall{Name: name, Args: args, Src: l.Src}, nil
}
