// Package native provides the bootstrap native function registry: string
// primitives, console output, and the Redis-backed compile cache and
// SQLite-backed global store, all installed into a *vm.VM as vm.Lambda
// values with a non-nil Native field.
package native

import (
	"os"
	"strconv"
	"strings"

	"github.com/lispc/lispc/pkg/vm"
)

// Register installs the scalar string/console primitives into machine's
// globals. Every compiler.Session should get this before running user
// source.
func Register(machine *vm.VM) {
	nary := func(n int) vm.Arity { return vm.Arity{Kind: vm.ArityNary, Count: n} }

	machine.DefineNative("string-split", nary(2), stringSplit)
	machine.DefineNative("string->list", nary(1), stringToList)
	machine.DefineNative("list->string", nary(1), listToString)
	machine.DefineNative("string->int", nary(1), stringToInt)
	machine.DefineNative("string-lines", nary(1), stringLines)
	machine.DefineNative("is-digit?", nary(1), isDigit)
	machine.DefineNative("string-upcase", nary(1), stringUpcase)
	machine.DefineNative("string-downcase", nary(1), stringDowncase)
	machine.DefineNative("string-concat", nary(2), stringConcat)
	machine.DefineNative("string-length", nary(1), stringLength)
	machine.DefineNative("print", nary(1), print)
	machine.DefineNative("read-file", nary(1), readFile)
}

func typeError(fn string, want vm.Type, got vm.Object) error {
	return &vm.Error{Msg: fn + ": expected " + want.String() + ", got " + got.Type().String()}
}

func arity1(fn string, args []vm.Object) (vm.Object, error) {
	if len(args) != 1 {
		return nil, &vm.Error{Msg: fn + ": expected 1 argument"}
	}
	return args[0], nil
}

func arity2(fn string, args []vm.Object) (vm.Object, vm.Object, error) {
	if len(args) != 2 {
		return nil, nil, &vm.Error{Msg: fn + ": expected 2 arguments"}
	}
	return args[0], args[1], nil
}

func asString(fn string, o vm.Object) (string, error) {
	s, ok := o.(*vm.StringObject)
	if !ok {
		return "", typeError(fn, vm.TypeString, o)
	}
	return s.Val, nil
}

func asChar(fn string, o vm.Object) (rune, error) {
	c, ok := o.(*vm.CharObject)
	if !ok {
		return 0, typeError(fn, vm.TypeChar, o)
	}
	return c.Val, nil
}

func asCons(fn string, o vm.Object) (*vm.ConsObject, error) {
	switch v := o.(type) {
	case *vm.ConsObject:
		return v, nil
	default:
		return nil, typeError(fn, vm.TypeCons, o)
	}
}

// listOfStrings builds a proper cons list of StringObjects.
func listOfStrings(parts []string) vm.Object {
	var list vm.Object = &vm.NilObject{}
	for i := len(parts) - 1; i >= 0; i-- {
		list = &vm.ConsObject{Car: vm.NewCell(&vm.StringObject{Val: parts[i]}), Cdr: vm.NewCell(list)}
	}
	return list
}

func listOfChars(s string) vm.Object {
	runes := []rune(s)
	var list vm.Object = &vm.NilObject{}
	for i := len(runes) - 1; i >= 0; i-- {
		list = &vm.ConsObject{Car: vm.NewCell(&vm.CharObject{Val: runes[i]}), Cdr: vm.NewCell(list)}
	}
	return list
}

// stringSplit implements `(string-split s sep)`.
func stringSplit(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, b, err := arity2("string-split", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string-split", a)
	if err != nil {
		return nil, err
	}
	sep, err := asString("string-split", b)
	if err != nil {
		return nil, err
	}
	return listOfStrings(strings.Split(s, sep)), nil
}

// stringToList implements `(string->list s)`.
func stringToList(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string->list", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string->list", a)
	if err != nil {
		return nil, err
	}
	return listOfChars(s), nil
}

// listToString implements `(list->string l)`: every element of the cons
// list must be a char.
func listToString(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("list->string", args)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	cur := a
	for {
		if _, ok := cur.(*vm.NilObject); ok {
			break
		}
		cons, err := asCons("list->string", cur)
		if err != nil {
			return nil, err
		}
		c, err := asChar("list->string", cons.Car.Get())
		if err != nil {
			return nil, err
		}
		b.WriteRune(c)
		cur = cons.Cdr.Get()
	}
	return &vm.StringObject{Val: b.String()}, nil
}

// stringToInt implements `(string->int s)`.
func stringToInt(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string->int", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string->int", a)
	if err != nil {
		return nil, err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &vm.Error{Msg: "string->int: " + err.Error()}
	}
	return &vm.IntObject{Val: i}, nil
}

// stringLines implements `(string-lines s)`.
func stringLines(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string-lines", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string-lines", a)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return &vm.NilObject{}, nil
	}
	return listOfStrings(strings.Split(s, "\n")), nil
}

// isDigit implements `(is-digit? c)`.
func isDigit(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("is-digit?", args)
	if err != nil {
		return nil, err
	}
	c, err := asChar("is-digit?", a)
	if err != nil {
		return nil, err
	}
	if c >= '0' && c <= '9' {
		return &vm.TrueObject{}, nil
	}
	return &vm.NilObject{}, nil
}

// stringUpcase/stringDowncase/stringConcat/stringLength round out the
// scalar string operations the bootstrap library assumes.
func stringUpcase(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string-upcase", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string-upcase", a)
	if err != nil {
		return nil, err
	}
	return &vm.StringObject{Val: strings.ToUpper(s)}, nil
}

func stringDowncase(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string-downcase", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string-downcase", a)
	if err != nil {
		return nil, err
	}
	return &vm.StringObject{Val: strings.ToLower(s)}, nil
}

func stringConcat(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, b, err := arity2("string-concat", args)
	if err != nil {
		return nil, err
	}
	sa, err := asString("string-concat", a)
	if err != nil {
		return nil, err
	}
	sb, err := asString("string-concat", b)
	if err != nil {
		return nil, err
	}
	return &vm.StringObject{Val: sa + sb}, nil
}

func stringLength(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("string-length", args)
	if err != nil {
		return nil, err
	}
	s, err := asString("string-length", a)
	if err != nil {
		return nil, err
	}
	return &vm.IntObject{Val: int64(len([]rune(s)))}, nil
}

// print implements `(print x)`: writes x's display form to stdout
// followed by a newline, returning nil.
func print(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("print", args)
	if err != nil {
		return nil, err
	}
	os.Stdout.WriteString(a.String())
	os.Stdout.WriteString("\n")
	return &vm.NilObject{}, nil
}

// readFile implements `(read-file path)`, returning the file contents
// as a string or raising a runtime error.
func readFile(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("read-file", args)
	if err != nil {
		return nil, err
	}
	path, err := asString("read-file", a)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &vm.Error{Msg: "read-file: " + err.Error()}
	}
	return &vm.StringObject{Val: string(data)}, nil
}
