package vm

import (
	"math/big"

	"github.com/n3node/core/errkind"
)

// State is the terminal (or running) status of a VM.
type State int

const (
	StateNone State = iota
	StateHalt
	StateFault
	StateBreak
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateHalt:
		return "HALT"
	case StateFault:
		return "FAULT"
	case StateBreak:
		return "BREAK"
	default:
		return "UNKNOWN"
	}
}

// SyscallHandler resolves and invokes a syscall identified by a 4-byte
// id (the first four bytes of sha256("System.<Group>.<Name>")), reading
// its arguments from and pushing its result onto vm's evaluation stack.
// Supplied by the application engine; vm itself has no notion of what a
// syscall does.
type SyscallHandler func(vm *VM, id uint32) error

// NativeCallHandler dispatches CALLNATIVE by contract index, the
// bridge the application engine uses to invoke a native contract's
// method set without the calling script needing to know its hash.
type NativeCallHandler func(vm *VM, contractID int32) error

// VM is a single instance of the stack machine. It is not safe for
// concurrent use; each transaction/witness verification gets its own.
type VM struct {
	invocation []*ExecutionContext
	evalStack  Stack
	refCounter *RefCounter

	gasLimit    int64
	gasConsumed int64

	state    State
	fault    *Fault
	pendingException Item

	Syscall    SyscallHandler
	CallNative NativeCallHandler
}

// New creates a VM with the given gas limit (in the engine's fixed-point
// GAS unit) and no loaded script.
func New(gasLimit int64) *VM {
	return &VM{refCounter: NewRefCounter(), gasLimit: gasLimit, state: StateNone}
}

func (v *VM) State() State          { return v.state }
func (v *VM) GasConsumed() int64    { return v.gasConsumed }
func (v *VM) FaultException() error { return v.fault }

// Load pushes a new top-level execution context over script and resets
// the VM to a runnable state. Used once per invocation; nested calls go
// through CALL/CALLA instead.
func (v *VM) Load(script []byte) {
	v.invocation = []*ExecutionContext{newExecutionContext(script)}
	v.evalStack.Clear()
	v.refCounter = NewRefCounter()
	v.gasConsumed = 0
	v.state = StateNone
	v.fault = nil
	v.pendingException = nil
}

// ResultStack is the evaluation stack at the end of a HALTed run —
// whatever the script left behind.
func (v *VM) ResultStack() *Stack { return &v.evalStack }

func (v *VM) currentContext() *ExecutionContext {
	if len(v.invocation) == 0 {
		return nil
	}
	return v.invocation[len(v.invocation)-1]
}

// Execute runs until the VM reaches HALT, FAULT or BREAK (BREAK is
// reserved for an attached debugger and is never set by this package on
// its own). Safe to call repeatedly after Load.
func (v *VM) Execute() State {
	for v.state == StateNone {
		v.step()
	}
	return v.state
}

func (v *VM) fatal(op OpCode, ip int, format string, args ...interface{}) {
	v.fault = newFault(op, ip, format, args...)
	v.state = StateFault
}

// ConsumeGas charges n units against the VM's gas limit, FAULTing the
// run if the limit is exceeded. Exposed so the application engine can
// bill syscalls and native-contract invocations through the same meter
// the interpreter uses for opcodes.
func (v *VM) ConsumeGas(n int64) bool { return v.consumeGas(n) }

func (v *VM) consumeGas(n int64) bool {
	v.gasConsumed += n
	if v.gasConsumed > v.gasLimit {
		v.fault = newFault(0, 0, errOutOfGasMsg)
		v.state = StateFault
		return false
	}
	return true
}

func (v *VM) step() {
	ctx := v.currentContext()
	if ctx == nil {
		v.state = StateHalt
		return
	}
	if ctx.atEnd() {
		v.ret()
		return
	}

	startIP := ctx.ip
	opByte, err := ctx.readByte()
	if err != nil {
		v.fatal(0, startIP, "%v", err)
		return
	}
	op := OpCode(opByte)
	if !v.consumeGas(baseCost(op)) {
		return
	}

	if f := v.dispatch(ctx, op, startIP); f != nil {
		v.fault = f
		v.state = StateFault
	}
}

// ret implements RET and falling off the end of a script: pop the
// current context; HALT once the invocation stack is empty.
func (v *VM) ret() {
	v.invocation = v.invocation[:len(v.invocation)-1]
	if len(v.invocation) == 0 {
		v.state = StateHalt
	}
}

func (v *VM) dispatch(ctx *ExecutionContext, op OpCode, ip int) *Fault {
	switch op {

	// ---- constants ----
	case OpPush0, OpPush1, OpPush2, OpPush3, OpPush4, OpPush5, OpPush6,
		OpPush7, OpPush8, OpPush9, OpPush10, OpPush11, OpPush12, OpPush13, OpPush14,
		OpPush15, OpPush16:
		v.evalStack.Push(NewIntegerFromInt64(int64(op) - int64(OpPush0)))
		return nil

	case OpPushM1:
		v.evalStack.Push(NewIntegerFromInt64(-1))
		return nil

	case OpPushNull:
		v.evalStack.Push(Null{})
		return nil

	case OpPushTrue:
		v.evalStack.Push(Boolean(true))
		return nil

	case OpPushFalse:
		v.evalStack.Push(Boolean(false))
		return nil

	case OpPushData1, OpPushData2, OpPushData4:
		n, err := readLen(ctx, op)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		data, err := ctx.readBytes(n)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		if !v.consumeGas(operandCost(op, n)) {
			return nil
		}
		bs, err := NewByteString(data)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		v.evalStack.Push(bs)
		return nil

	case OpPushA:
		off, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		v.evalStack.Push(Pointer{Position: ip + int(off), Script: ctx.script})
		return nil

	// ---- flow control ----
	case OpNop:
		return nil

	case OpJmp, OpJmpIf, OpJmpIfNot, OpJmpEq, OpJmpNe, OpJmpGt, OpJmpGe, OpJmpLt, OpJmpLe:
		return v.doJump(ctx, op, ip)

	case OpCall:
		off, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		target := ip + int(off)
		return v.doCall(ctx.script, target)

	case OpCallA:
		item, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		p, ok := item.(Pointer)
		if !ok {
			return newFault(op, ip, "CALLA requires a Pointer")
		}
		return v.doCall(p.Script, p.Position)

	case OpCallNative:
		id, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		if v.CallNative == nil {
			return newFault(op, ip, "no native call handler installed")
		}
		if err := v.CallNative(v, id); err != nil {
			return newFault(op, ip, "%v", err)
		}
		return nil

	case OpSyscall:
		id, err := ctx.readUint32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		if v.Syscall == nil {
			return newFault(op, ip, "no syscall handler installed")
		}
		if err := v.Syscall(v, id); err != nil {
			return newFault(op, ip, "%v", err)
		}
		return nil

	case OpRet:
		v.ret()
		return nil

	case OpTry:
		catchOff, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		finallyOff, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		frame := tryFrame{catchIP: -1, finallyIP: -1}
		if catchOff != 0 {
			frame.catchIP = ip + int(catchOff)
		}
		if finallyOff != 0 {
			frame.finallyIP = ip + int(finallyOff)
		}
		ctx.tryStack = append(ctx.tryStack, frame)
		return nil

	case OpEndTry:
		off, err := ctx.readInt32()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		if len(ctx.tryStack) == 0 {
			return newFault(op, ip, "ENDTRY outside TRY")
		}
		frame := &ctx.tryStack[len(ctx.tryStack)-1]
		target := ip + int(off)
		if frame.finallyIP >= 0 && !frame.inFinally {
			frame.inFinally = true
			frame.pendingRet = false
			ctx.ip = frame.finallyIP
			return nil
		}
		ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
		ctx.ip = target
		return nil

	case OpEndFinally:
		return v.endFinally(ctx)

	case OpThrow:
		item, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		return v.doThrow(item)

	case OpAbort:
		return newFault(op, ip, "ABORT")

	// ---- stack manipulation ----
	case OpDepth:
		v.evalStack.Push(NewIntegerFromInt64(int64(v.evalStack.Len())))
		return nil

	case OpDrop:
		it, err := v.evalStack.Pop()
		if err == nil {
			v.refCounter.RemoveStackRef(it)
		}
		return wrapStackErr(op, ip, err)

	case OpNip:
		it, err := v.evalStack.Remove(1)
		if err == nil {
			v.refCounter.RemoveStackRef(it)
		}
		return wrapStackErr(op, ip, err)

	case OpXDrop:
		n, err := v.popUint(ip, op)
		if err != nil {
			return err
		}
		it, e2 := v.evalStack.Remove(n)
		if e2 == nil {
			v.refCounter.RemoveStackRef(it)
		}
		return wrapStackErr(op, ip, e2)

	case OpClear:
		for v.evalStack.Len() > 0 {
			it, _ := v.evalStack.Pop()
			v.refCounter.RemoveStackRef(it)
		}
		return nil

	case OpDup:
		it, err := v.evalStack.Peek(0)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		v.refCounter.AddStackRef(it)
		v.evalStack.Push(it)
		return nil

	case OpOver:
		it, err := v.evalStack.Peek(1)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		v.refCounter.AddStackRef(it)
		v.evalStack.Push(it)
		return nil

	case OpPick:
		n, err := v.popUint(ip, op)
		if err != nil {
			return err
		}
		it, e2 := v.evalStack.Peek(n)
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		v.refCounter.AddStackRef(it)
		v.evalStack.Push(it)
		return nil

	case OpTuck:
		it, err := v.evalStack.Peek(0)
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		v.refCounter.AddStackRef(it)
		if e2 := v.evalStack.Insert(2, it); e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		return nil

	case OpSwap:
		return v.rollN(op, ip, 1)

	case OpRot:
		return v.rollN(op, ip, 2)

	case OpRoll:
		n, err := v.popUint(ip, op)
		if err != nil {
			return err
		}
		return v.rollN(op, ip, n)

	case OpReverse3:
		return v.reverseN(op, ip, 3)
	case OpReverse4:
		return v.reverseN(op, ip, 4)
	case OpReverseN:
		n, err := v.popUint(ip, op)
		if err != nil {
			return err
		}
		return v.reverseN(op, ip, n)

	// ---- slots ----
	case OpInitSSlot:
		n, err := ctx.readByte()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		ctx.initSlots(int(n), len(ctx.localSlots), len(ctx.argSlots))
		return nil

	case OpInitSlot:
		localN, err := ctx.readByte()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		argN, err := ctx.readByte()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		ctx.initSlots(len(ctx.staticSlots), int(localN), int(argN))
		// Arguments are pushed by the caller in reverse order; pop them
		// off the shared evaluation stack into the new arg slots.
		for i := 0; i < int(argN); i++ {
			it, e2 := v.evalStack.Pop()
			if e2 != nil {
				return newFault(op, ip, "%v", e2)
			}
			ctx.argSlots[i] = it
		}
		return nil

	case OpLdSFld, OpStSFld:
		return v.slotOp(op, ip, ctx.staticSlots)
	case OpLdLoc, OpStLoc:
		return v.slotOp(op, ip, ctx.localSlots)
	case OpLdArg, OpStArg:
		return v.slotOp(op, ip, ctx.argSlots)

	// ---- arithmetic ----
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpShl, OpShr,
		OpAnd, OpOr, OpXor, OpModMul, OpModPow:
		return v.binaryIntOp(op, ip)

	case OpNeg, OpInc, OpDec, OpAbs, OpSqrt, OpInvert:
		return v.unaryIntOp(op, ip)

	case OpNot:
		b, err := v.popBool(ip, op)
		if err != nil {
			return err
		}
		v.evalStack.Push(Boolean(!b))
		return nil

	case OpBoolAnd, OpBoolOr:
		b2, err := v.popBool(ip, op)
		if err != nil {
			return err
		}
		b1, err := v.popBool(ip, op)
		if err != nil {
			return err
		}
		if op == OpBoolAnd {
			v.evalStack.Push(Boolean(b1 && b2))
		} else {
			v.evalStack.Push(Boolean(b1 || b2))
		}
		return nil

	case OpNumEqual, OpNumNotEqual, OpLt, OpLe, OpGt, OpGe, OpMin, OpMax:
		return v.compareIntOp(op, ip)

	case OpWithin:
		hi, err := v.popInt(ip, op)
		if err != nil {
			return err
		}
		lo, err := v.popInt(ip, op)
		if err != nil {
			return err
		}
		x, err := v.popInt(ip, op)
		if err != nil {
			return err
		}
		v.evalStack.Push(Boolean(x.Cmp(lo) >= 0 && x.Cmp(hi) < 0))
		return nil

	// ---- comparison / type ----
	case OpEqual, OpNotEqual:
		b, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		a, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		eq := a.Equals(b)
		if op == OpNotEqual {
			eq = !eq
		}
		v.evalStack.Push(Boolean(eq))
		return nil

	case OpIsNull:
		it, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		_, isNull := it.(Null)
		v.evalStack.Push(Boolean(isNull))
		return nil

	case OpIsType:
		tb, err := ctx.readByte()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		it, e2 := v.evalStack.Pop()
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		v.evalStack.Push(Boolean(it.Type() == Type(tb)))
		return nil

	case OpConvert:
		tb, err := ctx.readByte()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		it, e2 := v.evalStack.Pop()
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		out, e3 := convertItem(it, Type(tb))
		if e3 != nil {
			return newFault(op, ip, "%v", e3)
		}
		v.evalStack.Push(out)
		return nil

	// ---- string / buffer ----
	case OpCat:
		return v.catOp(op, ip)
	case OpSubStr:
		return v.subStrOp(op, ip)
	case OpLeft:
		return v.leftRightOp(op, ip, true)
	case OpRight:
		return v.leftRightOp(op, ip, false)
	case OpSize:
		it, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		n, e2 := itemBytes(it)
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		v.evalStack.Push(NewIntegerFromInt64(int64(len(n))))
		return nil

	case OpNewBuffer:
		n, err := v.popUint(ip, op)
		if err != nil {
			return err
		}
		if !v.consumeGas(operandCost(op, n)) {
			return nil
		}
		buf, e2 := NewBuffer(make([]byte, n))
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		v.evalStack.Push(buf)
		return nil

	case OpMemcpy:
		return v.memcpyOp(op, ip)

	// ---- compound items ----
	case OpNewArray0:
		a := NewArray(nil)
		v.refCounter.AddStackRef(a)
		v.evalStack.Push(a)
		return nil
	case OpNewStruct0:
		a := NewStruct(nil)
		v.refCounter.AddStackRef(a)
		v.evalStack.Push(a)
		return nil
	case OpNewArray, OpNewArrayT:
		return v.newArrayOp(op, ip, false)
	case OpNewStruct:
		return v.newArrayOp(op, ip, true)
	case OpNewMap:
		m := NewMap()
		v.refCounter.AddStackRef(m)
		v.evalStack.Push(m)
		return nil

	case OpPack:
		return v.packOp(op, ip, false)
	case OpPackStruct:
		return v.packOp(op, ip, true)
	case OpPackMap:
		return v.packMapOp(op, ip)
	case OpUnpack:
		return v.unpackOp(op, ip)

	case OpPickItem:
		return v.pickItemOp(op, ip)
	case OpSetItem:
		return v.setItemOp(op, ip)
	case OpAppend:
		return v.appendOp(op, ip)
	case OpReverseItems:
		return v.reverseItemsOp(op, ip)
	case OpRemove:
		return v.removeOp(op, ip)
	case OpClearItems:
		it, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		switch c := it.(type) {
		case *Array:
			c.Clear()
		case *Map:
			*c = *NewMap()
		default:
			return newFault(op, ip, "CLEARITEMS requires a compound item")
		}
		return nil
	case OpPopItem:
		a, err := v.popArray(op, ip)
		if err != nil {
			return err
		}
		if a.Len() == 0 {
			return newFault(op, ip, "POPITEM on empty array")
		}
		last := a.At(a.Len() - 1)
		a.RemoveAt(a.Len() - 1)
		v.evalStack.Push(last)
		return nil
	case OpHasKey:
		return v.hasKeyOp(op, ip)
	case OpKeys:
		m, err := v.popMap(op, ip)
		if err != nil {
			return err
		}
		v.evalStack.Push(NewArray(m.Keys()))
		return nil
	case OpValues:
		m, err := v.popMap(op, ip)
		if err != nil {
			return err
		}
		v.evalStack.Push(NewArray(m.Values()))
		return nil

	default:
		return newFault(op, ip, "unimplemented or reserved opcode")
	}
}

func wrapStackErr(op OpCode, ip int, err error) *Fault {
	if err == nil {
		return nil
	}
	return newFault(op, ip, "%v", err)
}

func readLen(ctx *ExecutionContext, op OpCode) (int, error) {
	switch op {
	case OpPushData1:
		b, err := ctx.readByte()
		return int(b), err
	case OpPushData2:
		u, err := ctx.readUint16()
		return int(u), err
	default: // OpPushData4
		u, err := ctx.readUint32()
		return int(u), err
	}
}

func (v *VM) doJump(ctx *ExecutionContext, op OpCode, ip int) *Fault {
	off, err := ctx.readInt32()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	target := ip + int(off)
	take := true
	switch op {
	case OpJmp:
		take = true
	case OpJmpIf:
		b, e2 := v.popBool(ip, op)
		if e2 != nil {
			return e2
		}
		take = b
	case OpJmpIfNot:
		b, e2 := v.popBool(ip, op)
		if e2 != nil {
			return e2
		}
		take = !b
	case OpJmpEq, OpJmpNe, OpJmpGt, OpJmpGe, OpJmpLt, OpJmpLe:
		b, e2 := v.popInt(ip, op)
		if e2 != nil {
			return e2
		}
		a, e3 := v.popInt(ip, op)
		if e3 != nil {
			return e3
		}
		c := a.Cmp(b)
		switch op {
		case OpJmpEq:
			take = c == 0
		case OpJmpNe:
			take = c != 0
		case OpJmpGt:
			take = c > 0
		case OpJmpGe:
			take = c >= 0
		case OpJmpLt:
			take = c < 0
		case OpJmpLe:
			take = c <= 0
		}
	}
	if take {
		ctx.ip = target
	}
	return nil
}

func (v *VM) doCall(script []byte, target int) *Fault {
	if len(v.invocation) >= MaxStackSize {
		return newFault(OpCall, target, "invocation stack overflow")
	}
	nc := newExecutionContext(script)
	nc.ip = target
	v.invocation = append(v.invocation, nc)
	return nil
}

// ---- small pop helpers -------------------------------------------------

func (v *VM) popInt(ip int, op OpCode) (*big.Int, *Fault) {
	it, err := v.evalStack.Pop()
	if err != nil {
		return nil, newFault(op, ip, "%v", err)
	}
	i, ok := it.(Integer)
	if !ok {
		return nil, newFault(op, ip, "expected Integer, got %s", it.Type())
	}
	return i.Big(), nil
}

func (v *VM) popUint(ip int, op OpCode) (int, *Fault) {
	i, err := v.popInt(ip, op)
	if err != nil {
		return 0, err
	}
	if i.Sign() < 0 || !i.IsInt64() {
		return 0, newFault(op, ip, "index out of range")
	}
	return int(i.Int64()), nil
}

func (v *VM) popBool(ip int, op OpCode) (bool, *Fault) {
	it, err := v.evalStack.Pop()
	if err != nil {
		return false, newFault(op, ip, "%v", err)
	}
	return it.Bool(), nil
}

func (v *VM) popArray(op OpCode, ip int) (*Array, *Fault) {
	it, err := v.evalStack.Pop()
	if err != nil {
		return nil, newFault(op, ip, "%v", err)
	}
	a, ok := it.(*Array)
	if !ok {
		return nil, newFault(op, ip, "expected Array/Struct, got %s", it.Type())
	}
	return a, nil
}

func (v *VM) popMap(op OpCode, ip int) (*Map, *Fault) {
	it, err := v.evalStack.Pop()
	if err != nil {
		return nil, newFault(op, ip, "%v", err)
	}
	m, ok := it.(*Map)
	if !ok {
		return nil, newFault(op, ip, "expected Map, got %s", it.Type())
	}
	return m, nil
}

// FaultAsErrkind maps a VM fault to the engine's typed error taxonomy:
// gas exhaustion surfaces as errkind.OutOfGas, anything else as
// errkind.VMFault.
func FaultAsErrkind(f *Fault, op string) error {
	if f == nil {
		return nil
	}
	if isOutOfGas(f) {
		return errkind.Wrap(op, errkind.OutOfGas, f)
	}
	return errkind.Wrap(op, errkind.VMFault, f)
}
