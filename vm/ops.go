package vm

import (
	"fmt"
	"math/big"
)

// ---- stack shuffle helpers ----------------------------------------------

// rollN moves the item n deep to the top, per ROLL/SWAP(n=1)/ROT(n=2).
func (v *VM) rollN(op OpCode, ip int, n int) *Fault {
	if n == 0 {
		return nil
	}
	it, err := v.evalStack.Remove(n)
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	v.evalStack.Push(it)
	return nil
}

// reverseN reverses the top n items in place.
func (v *VM) reverseN(op OpCode, ip int, n int) *Fault {
	if n <= 1 {
		return nil
	}
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		it, err := v.evalStack.Pop()
		if err != nil {
			return newFault(op, ip, "%v", err)
		}
		items[i] = it
	}
	for _, it := range items {
		v.evalStack.Push(it)
	}
	return nil
}

// ---- slots ----------------------------------------------------------------

func (v *VM) slotOp(op OpCode, ip int, slots []Item) *Fault {
	ctx := v.currentContext()
	idx, err := ctx.readByte()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	if int(idx) >= len(slots) {
		return newFault(op, ip, "slot index %d out of range", idx)
	}
	switch op {
	case OpLdSFld, OpLdLoc, OpLdArg:
		v.evalStack.Push(slots[idx])
	default: // store
		it, e2 := v.evalStack.Pop()
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		slots[idx] = it
	}
	return nil
}

// ---- arithmetic -------------------------------------------------------------

func (v *VM) binaryIntOp(op OpCode, ip int) *Fault {
	b, err := v.popInt(ip, op)
	if err != nil {
		return err
	}
	a, err := v.popInt(ip, op)
	if err != nil {
		return err
	}
	var r big.Int
	switch op {
	case OpAdd:
		r.Add(a, b)
	case OpSub:
		r.Sub(a, b)
	case OpMul:
		r.Mul(a, b)
	case OpDiv:
		if b.Sign() == 0 {
			return newFault(op, ip, "division by zero")
		}
		r.Quo(a, b)
	case OpMod:
		if b.Sign() == 0 {
			return newFault(op, ip, "division by zero")
		}
		r.Rem(a, b)
	case OpPow:
		if !b.IsInt64() || b.Sign() < 0 {
			return newFault(op, ip, "invalid exponent")
		}
		r.Exp(a, b, nil)
	case OpShl:
		if !b.IsInt64() || b.Sign() < 0 {
			return newFault(op, ip, "invalid shift")
		}
		r.Lsh(a, uint(b.Int64()))
	case OpShr:
		if !b.IsInt64() || b.Sign() < 0 {
			return newFault(op, ip, "invalid shift")
		}
		r.Rsh(a, uint(b.Int64()))
	case OpAnd:
		r.And(a, b)
	case OpOr:
		r.Or(a, b)
	case OpXor:
		r.Xor(a, b)
	case OpModMul:
		m, e2 := v.popInt(ip, op)
		if e2 != nil {
			return e2
		}
		r.Mul(a, b)
		if m.Sign() == 0 {
			return newFault(op, ip, "modulus zero")
		}
		r.Mod(&r, m)
		return v.pushCheckedInt(op, ip, &r)
	case OpModPow:
		m, e2 := v.popInt(ip, op)
		if e2 != nil {
			return e2
		}
		if m.Sign() == 0 {
			return newFault(op, ip, "modulus zero")
		}
		r.Exp(a, b, m)
		return v.pushCheckedInt(op, ip, &r)
	}
	return v.pushCheckedInt(op, ip, &r)
}

func (v *VM) pushCheckedInt(op OpCode, ip int, r *big.Int) *Fault {
	it, err := NewInteger(r)
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	v.evalStack.Push(it)
	return nil
}

func (v *VM) unaryIntOp(op OpCode, ip int) *Fault {
	a, err := v.popInt(ip, op)
	if err != nil {
		return err
	}
	var r big.Int
	switch op {
	case OpNeg:
		r.Neg(a)
	case OpInc:
		r.Add(a, big.NewInt(1))
	case OpDec:
		r.Sub(a, big.NewInt(1))
	case OpAbs:
		r.Abs(a)
	case OpInvert:
		r.Not(a)
	case OpSqrt:
		if a.Sign() < 0 {
			return newFault(op, ip, "sqrt of negative number")
		}
		r.Sqrt(a)
	}
	return v.pushCheckedInt(op, ip, &r)
}

func (v *VM) compareIntOp(op OpCode, ip int) *Fault {
	b, err := v.popInt(ip, op)
	if err != nil {
		return err
	}
	a, err := v.popInt(ip, op)
	if err != nil {
		return err
	}
	c := a.Cmp(b)
	switch op {
	case OpNumEqual:
		v.evalStack.Push(Boolean(c == 0))
	case OpNumNotEqual:
		v.evalStack.Push(Boolean(c != 0))
	case OpLt:
		v.evalStack.Push(Boolean(c < 0))
	case OpLe:
		v.evalStack.Push(Boolean(c <= 0))
	case OpGt:
		v.evalStack.Push(Boolean(c > 0))
	case OpGe:
		v.evalStack.Push(Boolean(c >= 0))
	case OpMin:
		if c < 0 {
			return v.pushCheckedInt(op, ip, a)
		}
		return v.pushCheckedInt(op, ip, b)
	case OpMax:
		if c > 0 {
			return v.pushCheckedInt(op, ip, a)
		}
		return v.pushCheckedInt(op, ip, b)
	}
	return nil
}

// ---- string / buffer --------------------------------------------------------

func itemBytes(it Item) ([]byte, error) {
	switch t := it.(type) {
	case ByteString:
		return []byte(t), nil
	case *Buffer:
		return t.data, nil
	default:
		return nil, errNotBytesLike(it)
	}
}

func errNotBytesLike(it Item) error {
	return fmt.Errorf("expected ByteString/Buffer, got %s", it.Type())
}

func (v *VM) catOp(op OpCode, ip int) *Fault {
	b, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	a, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	ab, e1 := itemBytes(a)
	if e1 != nil {
		return newFault(op, ip, "%v", e1)
	}
	bb, e2 := itemBytes(b)
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	out := append(append([]byte(nil), ab...), bb...)
	bs, e3 := NewByteString(out)
	if e3 != nil {
		return newFault(op, ip, "%v", e3)
	}
	v.evalStack.Push(bs)
	return nil
}

func (v *VM) subStrOp(op OpCode, ip int) *Fault {
	length, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	start, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	it, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	b, e3 := itemBytes(it)
	if e3 != nil {
		return newFault(op, ip, "%v", e3)
	}
	if start+length > len(b) {
		return newFault(op, ip, "SUBSTR out of range")
	}
	bs, e4 := NewByteString(b[start : start+length])
	if e4 != nil {
		return newFault(op, ip, "%v", e4)
	}
	v.evalStack.Push(bs)
	return nil
}

func (v *VM) leftRightOp(op OpCode, ip int, left bool) *Fault {
	n, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	it, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	b, e3 := itemBytes(it)
	if e3 != nil {
		return newFault(op, ip, "%v", e3)
	}
	if n > len(b) {
		return newFault(op, ip, "LEFT/RIGHT out of range")
	}
	var out []byte
	if left {
		out = b[:n]
	} else {
		out = b[len(b)-n:]
	}
	bs, e4 := NewByteString(out)
	if e4 != nil {
		return newFault(op, ip, "%v", e4)
	}
	v.evalStack.Push(bs)
	return nil
}

func (v *VM) memcpyOp(op OpCode, ip int) *Fault {
	count, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	srcIdx, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	srcItem, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	dstIdx, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	dstItem, e3 := v.evalStack.Pop()
	if e3 != nil {
		return newFault(op, ip, "%v", e3)
	}
	dst, ok := dstItem.(*Buffer)
	if !ok {
		return newFault(op, ip, "MEMCPY destination must be a Buffer")
	}
	src, e4 := itemBytes(srcItem)
	if e4 != nil {
		return newFault(op, ip, "%v", e4)
	}
	if srcIdx+count > len(src) || dstIdx+count > len(dst.data) {
		return newFault(op, ip, "MEMCPY out of range")
	}
	copy(dst.data[dstIdx:dstIdx+count], src[srcIdx:srcIdx+count])
	return nil
}

// ---- compound items ----------------------------------------------------------

func (v *VM) newArrayOp(op OpCode, ip int, isStruct bool) *Fault {
	n, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	if n > MaxStackSize {
		return newFault(op, ip, "NEWARRAY size too large")
	}
	items := make([]Item, n)
	for i := range items {
		items[i] = Null{}
	}
	var a *Array
	if isStruct {
		a = NewStruct(items)
	} else {
		a = NewArray(items)
	}
	v.refCounter.AddStackRef(a)
	v.evalStack.Push(a)
	return nil
}

func (v *VM) packOp(op OpCode, ip int, isStruct bool) *Fault {
	n, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		it, e2 := v.evalStack.Pop()
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		items[i] = it
	}
	var a *Array
	if isStruct {
		a = NewStruct(items)
	} else {
		a = NewArray(items)
	}
	for _, it := range items {
		v.refCounter.AddReference(a, it)
	}
	v.evalStack.Push(a)
	return nil
}

func (v *VM) packMapOp(op OpCode, ip int) *Fault {
	n, err := v.popUint(ip, op)
	if err != nil {
		return err
	}
	m := NewMap()
	for i := 0; i < n; i++ {
		val, e2 := v.evalStack.Pop()
		if e2 != nil {
			return newFault(op, ip, "%v", e2)
		}
		key, e3 := v.evalStack.Pop()
		if e3 != nil {
			return newFault(op, ip, "%v", e3)
		}
		if e4 := m.Set(key, val); e4 != nil {
			return newFault(op, ip, "%v", e4)
		}
		v.refCounter.AddReference(m, val)
	}
	v.evalStack.Push(m)
	return nil
}

func (v *VM) unpackOp(op OpCode, ip int) *Fault {
	a, err := v.popArray(op, ip)
	if err != nil {
		return err
	}
	for i := a.Len() - 1; i >= 0; i-- {
		v.evalStack.Push(a.At(i))
	}
	v.evalStack.Push(NewIntegerFromInt64(int64(a.Len())))
	return nil
}

func (v *VM) pickItemOp(op OpCode, ip int) *Fault {
	keyItem, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	container, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	switch c := container.(type) {
	case *Array:
		idx, ok := keyItem.(Integer)
		if !ok {
			return newFault(op, ip, "PICKITEM index must be Integer")
		}
		i := int(idx.Big().Int64())
		if i < 0 || i >= c.Len() {
			return newFault(op, ip, "PICKITEM index out of range")
		}
		v.evalStack.Push(c.At(i))
	case *Map:
		val, ok := c.Get(keyItem)
		if !ok {
			return newFault(op, ip, "PICKITEM key not found")
		}
		v.evalStack.Push(val)
	case ByteString:
		idx, ok := keyItem.(Integer)
		if !ok {
			return newFault(op, ip, "PICKITEM index must be Integer")
		}
		i := int(idx.Big().Int64())
		if i < 0 || i >= len(c) {
			return newFault(op, ip, "PICKITEM index out of range")
		}
		v.evalStack.Push(NewIntegerFromInt64(int64(c[i])))
	default:
		return newFault(op, ip, "PICKITEM requires a compound item or ByteString")
	}
	return nil
}

func (v *VM) setItemOp(op OpCode, ip int) *Fault {
	value, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	keyItem, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	container, e3 := v.evalStack.Pop()
	if e3 != nil {
		return newFault(op, ip, "%v", e3)
	}
	switch c := container.(type) {
	case *Array:
		idx, ok := keyItem.(Integer)
		if !ok {
			return newFault(op, ip, "SETITEM index must be Integer")
		}
		i := int(idx.Big().Int64())
		if i < 0 || i >= c.Len() {
			return newFault(op, ip, "SETITEM index out of range")
		}
		c.Set(i, value)
		v.refCounter.AddReference(c, value)
	case *Map:
		if e4 := c.Set(keyItem, value); e4 != nil {
			return newFault(op, ip, "%v", e4)
		}
		v.refCounter.AddReference(c, value)
	default:
		return newFault(op, ip, "SETITEM requires Array or Map")
	}
	return nil
}

func (v *VM) appendOp(op OpCode, ip int) *Fault {
	value, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	a, e2 := v.popArray(op, ip)
	if e2 != nil {
		return e2
	}
	a.Append(value)
	v.refCounter.AddReference(a, value)
	return nil
}

func (v *VM) reverseItemsOp(op OpCode, ip int) *Fault {
	a, err := v.popArray(op, ip)
	if err != nil {
		return err
	}
	a.Reverse()
	return nil
}

func (v *VM) removeOp(op OpCode, ip int) *Fault {
	keyItem, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	container, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	switch c := container.(type) {
	case *Array:
		idx, ok := keyItem.(Integer)
		if !ok {
			return newFault(op, ip, "REMOVE index must be Integer")
		}
		i := int(idx.Big().Int64())
		if i < 0 || i >= c.Len() {
			return newFault(op, ip, "REMOVE index out of range")
		}
		c.RemoveAt(i)
	case *Map:
		c.Delete(keyItem)
	default:
		return newFault(op, ip, "REMOVE requires Array or Map")
	}
	return nil
}

func (v *VM) hasKeyOp(op OpCode, ip int) *Fault {
	keyItem, err := v.evalStack.Pop()
	if err != nil {
		return newFault(op, ip, "%v", err)
	}
	container, e2 := v.evalStack.Pop()
	if e2 != nil {
		return newFault(op, ip, "%v", e2)
	}
	switch c := container.(type) {
	case *Array:
		idx, ok := keyItem.(Integer)
		if !ok {
			return newFault(op, ip, "HASKEY index must be Integer")
		}
		i := int(idx.Big().Int64())
		v.evalStack.Push(Boolean(i >= 0 && i < c.Len()))
	case *Map:
		_, ok := c.Get(keyItem)
		v.evalStack.Push(Boolean(ok))
	default:
		return newFault(op, ip, "HASKEY requires Array or Map")
	}
	return nil
}

// ---- CONVERT ----------------------------------------------------------------

func convertItem(it Item, to Type) (Item, error) {
	if it.Type() == to {
		return it, nil
	}
	switch to {
	case TypeBoolean:
		return Boolean(it.Bool()), nil
	case TypeInteger:
		switch t := it.(type) {
		case Boolean:
			if t {
				return NewIntegerFromInt64(1), nil
			}
			return NewIntegerFromInt64(0), nil
		case ByteString:
			return t.Integer()
		default:
			return nil, errConvert(it.Type(), to)
		}
	case TypeByteString:
		switch t := it.(type) {
		case Integer:
			return NewByteString(toSignedLE(t.Big()))
		case *Buffer:
			return NewByteString(t.data)
		default:
			return nil, errConvert(it.Type(), to)
		}
	case TypeBuffer:
		b, err := itemBytes(it)
		if err != nil {
			return nil, errConvert(it.Type(), to)
		}
		return NewBuffer(b)
	default:
		return nil, errConvert(it.Type(), to)
	}
}

func errConvert(from, to Type) error {
	return newFault(OpConvert, 0, "cannot convert %s to %s", from, to)
}
