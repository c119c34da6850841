package vm

import "fmt"

// Error is a runtime fault raised by the VM's dispatch loop.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func runtimeErrorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Frame is one activation record: the lambda currently executing, its
// program counter, and the base pointer into the shared data stack where
// its locals begin.
type Frame struct {
	Lambda *Lambda
	PC     int
	BP     int
}

// VM is the stack-based bytecode virtual machine. A single VM
// instance is long-lived across a REPL session or one `run` invocation: it
// owns the global environment and constant pool that every compiled
// module and macro expansion executes against.
type VM struct {
	stack  []*Cell
	frames []*Frame

	globals   map[string]*Cell
	constants *ConstantPool

	// modules holds the qualified global environment for `module::name`
	// lookups; the empty string key is the
	// unqualified/default module.
	modules map[string]map[string]*Cell
}

// MaxCallDepth bounds recursion so a non-tail-recursive program fails with
// a runtime Error instead of exhausting the Go goroutine stack. Overridable
// via SetMaxCallDepth, which cmd/lispc wires to pkg/config's
// `max_stack_depth` setting.
var MaxCallDepth = 10000

// SetMaxCallDepth overrides the call-stack depth limit. Called once at
// startup by cmd/lispc after loading pkg/config.
func SetMaxCallDepth(n int) { MaxCallDepth = n }

// NewVM returns a VM with empty globals bound to the given constant pool.
// Pass NewConstantPool() for a fresh program, or a pool produced by the
// compiler when linking a freshly compiled module.
func NewVM(constants *ConstantPool) *VM {
	return &VM{
		globals:   make(map[string]*Cell),
		modules:   make(map[string]map[string]*Cell),
		constants: constants,
	}
}

// Globals exposes the default module's global table, e.g. so natives can
// be registered before Run.
func (vm *VM) Globals() map[string]*Cell { return vm.globals }

// DefineNative registers a host function under name in the default
// module's globals.
func (vm *VM) DefineNative(name string, arity Arity, fn func(vm *VM, args []Object) (Object, error)) {
	vm.globals[name] = NewCell(&FunctionObject{Lambda: &Lambda{Arity: arity, Native: fn, Name: name}})
}

// ModuleGlobals returns (creating if needed) the global table for a named
// module.
func (vm *VM) ModuleGlobals(module string) map[string]*Cell {
	g, ok := vm.modules[module]
	if !ok {
		g = make(map[string]*Cell)
		vm.modules[module] = g
	}
	return g
}

func (vm *VM) push(o Object) { vm.stack = append(vm.stack, NewCell(o)) }

func (vm *VM) pushCell(c *Cell) { vm.stack = append(vm.stack, c) }

func (vm *VM) pop() (*Cell, error) {
	if len(vm.stack) == 0 {
		return nil, runtimeErrorf("stack underflow")
	}
	c := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return c, nil
}

func (vm *VM) popN(n int) ([]*Cell, error) {
	if len(vm.stack) < n {
		return nil, runtimeErrorf("stack underflow: need %d, have %d", n, len(vm.stack))
	}
	cells := vm.stack[len(vm.stack)-n:]
	out := make([]*Cell, n)
	copy(out, cells)
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}

func (vm *VM) frame() *Frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) constant(hash uint64) (Constant, error) {
	c, ok := vm.constants.Get(hash)
	if !ok {
		return Constant{}, runtimeErrorf("unresolved constant hash %x", hash)
	}
	return c, nil
}

// RunProgram executes code as the top-level program body: an implicit
// nullary lambda frame with no upvalues. It returns the final value left
// on the stack, or Nil if the program popped everything.
func (vm *VM) RunProgram(code *OpCodeTable) (Object, error) {
	top := &Lambda{Arity: Arity{Kind: ArityNullary}, Code: code, Name: "<program>"}
	vm.frames = append(vm.frames, &Frame{Lambda: top, BP: 0})
	if err := vm.run(); err != nil {
		return nil, err
	}
	if len(vm.stack) == 0 {
		return &NilObject{}, nil
	}
	return vm.pop1Value()
}

func (vm *VM) pop1Value() (Object, error) {
	c, err := vm.pop()
	if err != nil {
		return nil, err
	}
	return c.Get(), nil
}

// Call invokes fn with args as a fresh top-level call. Used by the
// compile-time macro expander (which runs compiled macro bodies through
// this same VM instance) and by natives that need to re-enter the VM.
func (vm *VM) Call(fn *FunctionObject, args []Object) (Object, error) {
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.invoke(fn.Lambda, len(args)); err != nil {
		return nil, err
	}
	if fn.Lambda.Native != nil {
		return vm.pop1Value()
	}
	if err := vm.run(); err != nil {
		return nil, err
	}
	return vm.pop1Value()
}

// run is the dispatch loop: it executes frames until the frame stack
// drops back to the depth it started at.
func (vm *VM) run() error {
	baseDepth := len(vm.frames) - 1
	for len(vm.frames) > baseDepth {
		if len(vm.frames) > MaxCallDepth {
			return runtimeErrorf("call stack exceeded depth %d", MaxCallDepth)
		}
		f := vm.frame()
		if f.PC >= f.Lambda.Code.Len() {
			// Falling off the end of a lambda body with no explicit Return
			// behaves as if Return(false) had fired.
			if err := vm.doReturn(false); err != nil {
				return err
			}
			continue
		}
		op := f.Lambda.Code.Code[f.PC]
		f.PC++
		if err := vm.dispatch(op); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) dispatch(op OpCode) error {
	switch op.Kind {
	case OpDefGlobal:
		c, err := vm.constant(op.Hash)
		if err != nil {
			return err
		}
		val, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals[c.String] = val
		vm.push(&NilObject{})
		return nil

	case OpSetGlobal:
		c, err := vm.constant(op.Hash)
		if err != nil {
			return err
		}
		cell, ok := vm.globals[c.String]
		if !ok {
			return runtimeErrorf("set!: undefined global %q", c.String)
		}
		val, err := vm.pop()
		if err != nil {
			return err
		}
		cell.Set(val.Get())
		vm.push(val.Get())
		return nil

	case OpGetGlobal:
		c, err := vm.constant(op.Hash)
		if err != nil {
			return err
		}
		cell, ok := vm.globals[c.String]
		if !ok {
			return runtimeErrorf("undefined variable %q", c.String)
		}
		vm.pushCell(cell)
		return nil

	case OpSetLocal:
		val, err := vm.pop()
		if err != nil {
			return err
		}
		vm.stack[vm.frame().BP+op.Index].Set(val.Get())
		vm.push(val.Get())
		return nil

	case OpGetLocal:
		vm.pushCell(vm.stack[vm.frame().BP+op.Index])
		return nil

	case OpSetUpValue:
		val, err := vm.pop()
		if err != nil {
			return err
		}
		vm.frame().Lambda.UpValues[op.Index].Set(val.Get())
		vm.push(val.Get())
		return nil

	case OpGetUpValue:
		vm.pushCell(vm.frame().Lambda.UpValues[op.Index])
		return nil

	case OpCreateUpValue:
		return runtimeErrorf("CreateUpValue encountered outside Lambda construction")

	case OpLambda:
		return vm.doLambda(op)

	case OpCall:
		return vm.doCall(op.N, false)

	case OpTail:
		return vm.doCall(op.N, true)

	case OpApply:
		return vm.doApply()

	case OpReturn:
		return vm.doReturn(op.N != 0)

	case OpPushSymbol:
		c, err := vm.constant(op.Hash)
		if err != nil {
			return err
		}
		vm.push(&SymbolObject{Val: c.String})
		return nil

	case OpPushString:
		c, err := vm.constant(op.Hash)
		if err != nil {
			return err
		}
		vm.push(&StringObject{Val: c.String})
		return nil

	case OpPushInt:
		vm.push(&IntObject{Val: op.Int})
		return nil

	case OpPushChar:
		vm.push(&CharObject{Val: op.Char})
		return nil

	case OpPushTrue:
		vm.push(&TrueObject{})
		return nil

	case OpPushNil:
		vm.push(&NilObject{})
		return nil

	case OpPop:
		_, err := vm.pop()
		return err

	case OpAdd, OpSub, OpMul, OpDiv:
		return vm.binaryIntegerOp(op.Kind, op.N)

	case OpCompare:
		return vm.doCompare(op.CompareOp)

	case OpCar:
		return vm.doCar()

	case OpCdr:
		return vm.doCdr()

	case OpCons:
		return vm.doCons()

	case OpList:
		return vm.doList(op.N)

	case OpJmp:
		vm.frame().PC += op.Offset
		return nil

	case OpBranch:
		// Branch-if-false: pops the condition and jumps only when it is
		// falsy (Nil). The emitter lays out `if` as cond, Branch(else),
		// then-code, Jmp(end), else-code — so a truthy condition simply
		// falls through into the then-branch.
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if !isTruthy(cond.Get()) {
			vm.frame().PC += op.Offset
		}
		return nil

	case OpIsType:
		return vm.doIsType(op.IsTypeTag)

	case OpAssert:
		return vm.doAssert(op.Hash)

	case OpMapNew:
		vm.push(&MapObject{})
		return nil

	case OpMapInsert:
		return vm.doMapInsert()

	case OpMapGet:
		return vm.doMapGet()

	case OpMapItems:
		return vm.doMapItems()

	default:
		return runtimeErrorf("unhandled opcode kind %d", op.Kind)
	}
}

func isTruthy(o Object) bool {
	switch o.(type) {
	case *NilObject:
		return false
	default:
		return true
	}
}

// doLambda builds a closure from the body stored in the constant pool
// under op.Hash, consuming the op.N CreateUpValue instructions that
// immediately follow it in the enclosing frame's code (the same
// closure-construction idiom as Crafting Interpreters' OP_CLOSURE): each
// descriptor either copies a cell straight out of the enclosing frame's
// locals (Frame == 0) or forwards one of the enclosing lambda's own
// upvalues (Frame > 0).
func (vm *VM) doLambda(op OpCode) error {
	c, err := vm.constant(op.Hash)
	if err != nil {
		return err
	}
	if c.Kind != ConstantOpCodes {
		return runtimeErrorf("Lambda constant %x is not an opcode table", op.Hash)
	}

	enclosing := vm.frame()
	upvalues := make([]*Cell, 0, op.N)
	for i := 0; i < op.N; i++ {
		if enclosing.PC >= enclosing.Lambda.Code.Len() {
			return runtimeErrorf("lambda: missing CreateUpValue descriptor %d/%d", i+1, op.N)
		}
		sub := enclosing.Lambda.Code.Code[enclosing.PC]
		enclosing.PC++
		if sub.Kind != OpCreateUpValue {
			return runtimeErrorf("lambda: expected CreateUpValue, got opcode kind %d", sub.Kind)
		}
		desc := sub.UpValue
		if desc.Frame == 0 {
			upvalues = append(upvalues, vm.stack[enclosing.BP+desc.Index])
		} else {
			upvalues = append(upvalues, enclosing.Lambda.UpValues[desc.Index])
		}
	}

	lam := &Lambda{Arity: op.LambdaArity, Code: c.OpCodes, UpValues: upvalues}
	vm.push(&FunctionObject{Lambda: lam})
	return nil
}

// packVariadic collapses the arguments beyond a variadic lambda's fixed
// prefix into a single list cell, so the rest parameter occupies exactly
// one local slot.
func packVariadic(args []*Cell, arity Arity) []*Cell {
	if arity.Kind != ArityVariadic {
		return args
	}
	var rest Object = &NilObject{}
	for i := len(args) - 1; i >= arity.Count; i-- {
		rest = &ConsObject{Car: args[i], Cdr: NewCell(rest)}
	}
	return append(args[:arity.Count:arity.Count], NewCell(rest))
}

// doCall implements both Call(n) and Tail(n): it pops n arguments and the
// callee below them, then invokes it. For Tail, the current frame is
// replaced in place rather than growing the frame stack, so a
// self-recursive or mutually tail-recursive lambda runs in constant Go
// stack space.
func (vm *VM) doCall(n int, tail bool) error {
	args, err := vm.popN(n)
	if err != nil {
		return err
	}
	calleeCell, err := vm.pop()
	if err != nil {
		return err
	}
	fn, ok := calleeCell.Get().(*FunctionObject)
	if !ok {
		return runtimeErrorf("attempt to call non-function value %s", calleeCell.Get().String())
	}
	if !fn.Lambda.Arity.Accepts(n) {
		return runtimeErrorf("%s: expected arity %s, got %d arguments", fn.Lambda.Name, fn.Lambda.Arity, n)
	}

	if fn.Lambda.Native != nil {
		raw := make([]Object, n)
		for i, c := range args {
			raw[i] = c.Get()
		}
		result, err := fn.Lambda.Native(vm, raw)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}

	args = packVariadic(args, fn.Lambda.Arity)

	if tail && len(vm.frames) > 0 {
		cur := vm.frame()
		vm.stack = vm.stack[:cur.BP]
		for _, c := range args {
			vm.pushCell(c)
		}
		cur.Lambda = fn.Lambda
		cur.PC = 0
		return nil
	}

	bp := len(vm.stack)
	for _, c := range args {
		vm.pushCell(c)
	}
	vm.frames = append(vm.frames, &Frame{Lambda: fn.Lambda, BP: bp})
	return nil
}

// doApply pops a proper list and the function below it, splices the
// list's elements as arguments, and calls as doCall would.
func (vm *VM) doApply() error {
	listCell, err := vm.pop()
	if err != nil {
		return err
	}
	fnCell, err := vm.pop()
	if err != nil {
		return err
	}
	fn, ok := fnCell.Get().(*FunctionObject)
	if !ok {
		return runtimeErrorf("apply: not a function: %s", fnCell.Get().String())
	}

	var args []*Cell
	cur := listCell.Get()
	for {
		switch c := cur.(type) {
		case *NilObject:
			goto done
		case *ConsObject:
			args = append(args, c.Car)
			cur = c.Cdr.Get()
		default:
			return runtimeErrorf("apply: not a proper list: %s", cur.String())
		}
	}
done:
	n := len(args)
	if !fn.Lambda.Arity.Accepts(n) {
		return runtimeErrorf("%s: expected arity %s, got %d arguments", fn.Lambda.Name, fn.Lambda.Arity, n)
	}
	if fn.Lambda.Native != nil {
		raw := make([]Object, n)
		for i, c := range args {
			raw[i] = c.Get()
		}
		result, err := fn.Lambda.Native(vm, raw)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}
	args = packVariadic(args, fn.Lambda.Arity)
	bp := len(vm.stack)
	for _, c := range args {
		vm.pushCell(c)
	}
	vm.frames = append(vm.frames, &Frame{Lambda: fn.Lambda, BP: bp})
	return nil
}

// invoke pushes a frame for lam assuming argc arguments are already on
// the stack (used by Call, which pushes args itself before invoking).
func (vm *VM) invoke(lam *Lambda, argc int) error {
	if !lam.Arity.Accepts(argc) {
		return runtimeErrorf("%s: expected arity %s, got %d arguments", lam.Name, lam.Arity, argc)
	}
	if lam.Native != nil {
		args, err := vm.popN(argc)
		if err != nil {
			return err
		}
		raw := make([]Object, argc)
		for i, c := range args {
			raw[i] = c.Get()
		}
		result, err := lam.Native(vm, raw)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}
	if lam.Arity.Kind == ArityVariadic {
		args, err := vm.popN(argc)
		if err != nil {
			return err
		}
		for _, c := range packVariadic(args, lam.Arity) {
			vm.pushCell(c)
		}
	}
	bp := len(vm.stack) - lam.Arity.localSlots(argc)
	vm.frames = append(vm.frames, &Frame{Lambda: lam, BP: bp})
	return nil
}

// doReturn pops the current frame, leaving exactly one return value (the
// popped top-of-stack, or Nil if the stack holds nothing above the
// frame's base) in the caller's stack segment.
func (vm *VM) doReturn(_ bool) error {
	f := vm.frames[len(vm.frames)-1]
	var result Object = &NilObject{}
	if len(vm.stack) > f.BP {
		c, err := vm.pop()
		if err != nil {
			return err
		}
		result = c.Get()
	}
	vm.stack = vm.stack[:f.BP]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.push(result)
	return nil
}

func (vm *VM) binaryIntegerOp(kind OpKind, n int) error {
	if n < 2 {
		return runtimeErrorf("arithmetic operation requires at least 2 operands, got %d", n)
	}
	operands, err := vm.popN(n)
	if err != nil {
		return err
	}
	ints := make([]int64, n)
	for i, c := range operands {
		io, ok := c.Get().(*IntObject)
		if !ok {
			return runtimeErrorf("arithmetic operand %d is not an int: %s", i, c.Get().String())
		}
		ints[i] = io.Val
	}
	acc := ints[0]
	for _, v := range ints[1:] {
		switch kind {
		case OpAdd:
			acc += v
		case OpSub:
			acc -= v
		case OpMul:
			acc *= v
		case OpDiv:
			if v == 0 {
				return runtimeErrorf("division by zero")
			}
			acc /= v
		}
	}
	vm.push(&IntObject{Val: acc})
	return nil
}

// doCompare implements the `= < >` operators. `=` compares any two
// objects structurally via objectsEqual; `<`/`>` require both operands
// to be ints, matching the original source's integer-only ordering.
func (vm *VM) doCompare(kind CompareKind) error {
	rhs, err := vm.pop()
	if err != nil {
		return err
	}
	lhs, err := vm.pop()
	if err != nil {
		return err
	}

	var result bool
	switch kind {
	case CompareEq:
		result = objectsEqual(lhs.Get(), rhs.Get())
	case CompareLt, CompareGt:
		li, ok := lhs.Get().(*IntObject)
		if !ok {
			return runtimeErrorf("comparison operand is not an int: %s", lhs.Get().String())
		}
		ri, ok := rhs.Get().(*IntObject)
		if !ok {
			return runtimeErrorf("comparison operand is not an int: %s", rhs.Get().String())
		}
		if kind == CompareLt {
			result = li.Val < ri.Val
		} else {
			result = li.Val > ri.Val
		}
	}

	if result {
		vm.push(&TrueObject{})
	} else {
		vm.push(&NilObject{})
	}
	return nil
}

func (vm *VM) doCar() error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	cons, ok := c.Get().(*ConsObject)
	if !ok {
		return runtimeErrorf("car: not a cons: %s", c.Get().String())
	}
	vm.pushCell(cons.Car)
	return nil
}

func (vm *VM) doCdr() error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	cons, ok := c.Get().(*ConsObject)
	if !ok {
		return runtimeErrorf("cdr: not a cons: %s", c.Get().String())
	}
	vm.pushCell(cons.Cdr)
	return nil
}

func (vm *VM) doCons() error {
	cdr, err := vm.pop()
	if err != nil {
		return err
	}
	car, err := vm.pop()
	if err != nil {
		return err
	}
	vm.push(&ConsObject{Car: car, Cdr: cdr})
	return nil
}

func (vm *VM) doList(n int) error {
	elems, err := vm.popN(n)
	if err != nil {
		return err
	}
	var list Object = &NilObject{}
	for i := n - 1; i >= 0; i-- {
		list = &ConsObject{Car: elems[i], Cdr: NewCell(list)}
	}
	vm.push(list)
	return nil
}

func (vm *VM) doIsType(want Type) error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	if c.Get().Type() == want {
		vm.push(&TrueObject{})
	} else {
		vm.push(&NilObject{})
	}
	return nil
}

func (vm *VM) doAssert(msgHash uint64) error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	if !isTruthy(c.Get()) {
		msg := "assertion failed"
		if m, err := vm.constant(msgHash); err == nil && m.Kind == ConstantString {
			msg = m.String
		}
		return runtimeErrorf("%s", msg)
	}
	vm.push(&TrueObject{})
	return nil
}

func (vm *VM) doMapInsert() error {
	val, err := vm.pop()
	if err != nil {
		return err
	}
	key, err := vm.pop()
	if err != nil {
		return err
	}
	mc, err := vm.pop()
	if err != nil {
		return err
	}
	m, ok := mc.Get().(*MapObject)
	if !ok {
		return runtimeErrorf("map-insert: not a map: %s", mc.Get().String())
	}
	next := &MapObject{Keys: append([]*Cell{}, m.Keys...), Vals: append([]*Cell{}, m.Vals...)}
	found := false
	for i, k := range next.Keys {
		if objectsEqual(k.Get(), key.Get()) {
			next.Vals[i] = val
			found = true
			break
		}
	}
	if !found {
		next.Keys = append(next.Keys, key)
		next.Vals = append(next.Vals, val)
	}
	vm.push(next)
	return nil
}

func (vm *VM) doMapGet() error {
	key, err := vm.pop()
	if err != nil {
		return err
	}
	mc, err := vm.pop()
	if err != nil {
		return err
	}
	m, ok := mc.Get().(*MapObject)
	if !ok {
		return runtimeErrorf("map-retrieve: not a map: %s", mc.Get().String())
	}
	for i, k := range m.Keys {
		if objectsEqual(k.Get(), key.Get()) {
			vm.pushCell(m.Vals[i])
			return nil
		}
	}
	vm.push(&NilObject{})
	return nil
}

func (vm *VM) doMapItems() error {
	mc, err := vm.pop()
	if err != nil {
		return err
	}
	m, ok := mc.Get().(*MapObject)
	if !ok {
		return runtimeErrorf("map-items: not a map: %s", mc.Get().String())
	}
	var list Object = &NilObject{}
	for i := len(m.Keys) - 1; i >= 0; i-- {
		pair := &ConsObject{Car: m.Keys[i], Cdr: NewCell(m.Vals[i].Get())}
		list = &ConsObject{Car: NewCell(pair), Cdr: NewCell(list)}
	}
	vm.push(list)
	return nil
}

func objectsEqual(a, b Object) bool {
	switch av := a.(type) {
	case *IntObject:
		bv, ok := b.(*IntObject)
		return ok && av.Val == bv.Val
	case *StringObject:
		bv, ok := b.(*StringObject)
		return ok && av.Val == bv.Val
	case *SymbolObject:
		bv, ok := b.(*SymbolObject)
		return ok && av.Val == bv.Val
	case *CharObject:
		bv, ok := b.(*CharObject)
		return ok && av.Val == bv.Val
	case *TrueObject:
		_, ok := b.(*TrueObject)
		return ok
	case *NilObject:
		_, ok := b.(*NilObject)
		return ok
	default:
		return a == b
	}
}
