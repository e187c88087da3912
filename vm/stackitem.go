// Package vm implements the stack machine (§4.4): opcodes, reference
// counted stack items, exception handling and gas metering. The engine
// package (smartcontract) drives this package against a ledger snapshot;
// vm itself knows nothing about storage, witnesses or native contracts —
// only bytecode, the evaluation stack, and the two host-bridging
// opcodes CALLNATIVE/SYSCALL, which it surfaces as callbacks.
package vm

import (
	"bytes"
	"fmt"
	"math/big"
)

// Type is the tagged-union discriminant for Item.
type Type int

const (
	TypeAny Type = iota // Null
	TypeBoolean
	TypeInteger
	TypeByteString
	TypeBuffer
	TypeArray
	TypeStruct
	TypeMap
	TypeInteropInterface
	TypePointer
)

func (t Type) String() string {
	names := [...]string{"Any", "Boolean", "Integer", "ByteString", "Buffer", "Array", "Struct", "Map", "InteropInterface", "Pointer"}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// MaxItemSize bounds any single ByteString/Buffer, checked when one is
// created. The serialized size of compound items is not checked.
const MaxItemSize = 1024 * 1024

// MaxStackSize bounds the invocation-stack depth and the element count
// NEWARRAY accepts. The total number of items on the evaluation stack is
// not bounded.
const MaxStackSize = 2048

// MaxIntegerBytes bounds the byte length of any Integer operand,
// enforced after each arithmetic op.
const MaxIntegerBytes = 32

// Item is the tagged-union stack value. Compound variants (Array,
// Struct, Map) are mutable and reference-counted; the rest are
// immutable (ByteString) or hold no references to other items.
type Item interface {
	Type() Type
	// Bool is the truth-value conversion used by JMPIF and witness
	// acceptance: Null and zero/empty values are false.
	Bool() bool
	// Equals is the primitive-only equality used by EQUAL; compound
	// items other than Struct are reference-equality (never equal to
	// a distinct instance even with identical contents).
	Equals(Item) bool
}

// refHolder is implemented by every compound variant so the reference
// counter can walk outgoing edges.
type refHolder interface {
	children() []Item
}

// ---- Null -------------------------------------------------------------

type Null struct{}

func (Null) Type() Type        { return TypeAny }
func (Null) Bool() bool        { return false }
func (Null) Equals(o Item) bool { _, ok := o.(Null); return ok }

// ---- Boolean ------------------------------------------------------------

type Boolean bool

func (b Boolean) Type() Type { return TypeBoolean }
func (b Boolean) Bool() bool { return bool(b) }
func (b Boolean) Equals(o Item) bool {
	ob, ok := o.(Boolean)
	return ok && ob == b
}

// ---- Integer (arbitrary precision, bounded to MaxIntegerBytes) --------

type Integer struct{ v *big.Int }

func NewInteger(v *big.Int) (Integer, error) {
	if err := checkIntegerSize(v); err != nil {
		return Integer{}, err
	}
	return Integer{v: new(big.Int).Set(v)}, nil
}

func NewIntegerFromInt64(v int64) Integer { return Integer{v: big.NewInt(v)} }

func checkIntegerSize(v *big.Int) error {
	// bitLen/8 rounded up, plus sign bit headroom.
	bytesNeeded := (v.BitLen() + 8) / 8
	if bytesNeeded > MaxIntegerBytes {
		return fmt.Errorf("vm: integer exceeds %d bytes", MaxIntegerBytes)
	}
	return nil
}

func (i Integer) Type() Type { return TypeInteger }
func (i Integer) Bool() bool { return i.v.Sign() != 0 }
func (i Integer) Equals(o Item) bool {
	oi, ok := o.(Integer)
	return ok && i.v.Cmp(oi.v) == 0
}
func (i Integer) Big() *big.Int { return new(big.Int).Set(i.v) }

// ---- ByteString (immutable) --------------------------------------------

type ByteString []byte

func NewByteString(b []byte) (ByteString, error) {
	if len(b) > MaxItemSize {
		return nil, fmt.Errorf("vm: byte string exceeds %d bytes", MaxItemSize)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return ByteString(out), nil
}

func (b ByteString) Type() Type { return TypeByteString }
func (b ByteString) Bool() bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}
func (b ByteString) Equals(o Item) bool {
	switch ot := o.(type) {
	case ByteString:
		return bytes.Equal(b, ot)
	case *Buffer:
		return bytes.Equal(b, ot.data)
	default:
		return false
	}
}

func (b ByteString) Integer() (Integer, error) {
	if len(b) > MaxIntegerBytes {
		return Integer{}, fmt.Errorf("vm: byte string too large to convert to integer")
	}
	return Integer{v: fromSignedLE(b)}, nil
}

// ---- Buffer (mutable bytes) ---------------------------------------------

type Buffer struct{ data []byte }

func NewBuffer(b []byte) (*Buffer, error) {
	if len(b) > MaxItemSize {
		return nil, fmt.Errorf("vm: buffer exceeds %d bytes", MaxItemSize)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return &Buffer{data: out}, nil
}

func (b *Buffer) Type() Type { return TypeBuffer }
func (b *Buffer) Bool() bool {
	for _, v := range b.data {
		if v != 0 {
			return true
		}
	}
	return false
}
func (b *Buffer) Equals(o Item) bool { return b == o } // reference equality

// Bytes returns the buffer's current contents; callers that need to
// retain the result must copy it, since mutating opcodes (MEMCPY) write
// through this same backing array.
func (b *Buffer) Bytes() []byte { return b.data }

// ---- Array / Struct (indexed, mutable) ---------------------------------

type Array struct {
	items []Item
	isStruct bool
}

func NewArray(items []Item) *Array   { return &Array{items: append([]Item(nil), items...)} }
func NewStruct(items []Item) *Array  { return &Array{items: append([]Item(nil), items...), isStruct: true} }

func (a *Array) Type() Type {
	if a.isStruct {
		return TypeStruct
	}
	return TypeArray
}
func (a *Array) Bool() bool { return true }

// Equals on Array is reference identity; on Struct it is a deep,
// element-wise comparison per §3.
func (a *Array) Equals(o Item) bool {
	if !a.isStruct {
		return a == o
	}
	oa, ok := o.(*Array)
	if !ok || !oa.isStruct || len(a.items) != len(oa.items) {
		return false
	}
	for i := range a.items {
		if !a.items[i].Equals(oa.items[i]) {
			return false
		}
	}
	return true
}
func (a *Array) children() []Item { return a.items }
func (a *Array) Len() int         { return len(a.items) }
func (a *Array) At(i int) Item    { return a.items[i] }
func (a *Array) Set(i int, v Item) { a.items[i] = v }
func (a *Array) Append(v Item)    { a.items = append(a.items, v) }
func (a *Array) RemoveAt(i int)   { a.items = append(a.items[:i], a.items[i+1:]...) }
func (a *Array) Reverse()         {
	for i, j := 0, len(a.items)-1; i < j; i, j = i+1, j-1 {
		a.items[i], a.items[j] = a.items[j], a.items[i]
	}
}
func (a *Array) Clear() { a.items = nil }

// ---- Map (ordered key->value, primitive keys only) ---------------------

type mapEntry struct {
	key   Item
	value Item
}

type Map struct {
	entries []mapEntry
}

func NewMap() *Map { return &Map{} }

func (m *Map) Type() Type         { return TypeMap }
func (m *Map) Bool() bool         { return true }
func (m *Map) Equals(o Item) bool { return m == o }
func (m *Map) children() []Item {
	out := make([]Item, 0, len(m.entries)*2)
	for _, e := range m.entries {
		out = append(out, e.key, e.value)
	}
	return out
}

func isPrimitive(i Item) bool {
	switch i.Type() {
	case TypeBoolean, TypeInteger, TypeByteString:
		return true
	default:
		return false
	}
}

func (m *Map) indexOf(key Item) int {
	for i, e := range m.entries {
		if e.key.Equals(key) {
			return i
		}
	}
	return -1
}

func (m *Map) Set(key, value Item) error {
	if !isPrimitive(key) {
		return fmt.Errorf("vm: map keys must be primitive, got %s", key.Type())
	}
	if idx := m.indexOf(key); idx >= 0 {
		m.entries[idx].value = value
		return nil
	}
	m.entries = append(m.entries, mapEntry{key: key, value: value})
	return nil
}

func (m *Map) Get(key Item) (Item, bool) {
	if idx := m.indexOf(key); idx >= 0 {
		return m.entries[idx].value, true
	}
	return nil, false
}

func (m *Map) Delete(key Item) {
	if idx := m.indexOf(key); idx >= 0 {
		m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	}
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Keys() []Item {
	out := make([]Item, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.key
	}
	return out
}

func (m *Map) Values() []Item {
	out := make([]Item, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.value
	}
	return out
}

// ---- InteropInterface (opaque host reference) --------------------------

type InteropInterface struct{ Value interface{} }

func (InteropInterface) Type() Type         { return TypeInteropInterface }
func (InteropInterface) Bool() bool         { return true }
func (i InteropInterface) Equals(o Item) bool {
	oi, ok := o.(InteropInterface)
	return ok && oi.Value == i.Value
}

// ---- Pointer (code position) -------------------------------------------

type Pointer struct {
	Position int
	Script   []byte
}

func (Pointer) Type() Type          { return TypePointer }
func (Pointer) Bool() bool          { return true }
func (p Pointer) Equals(o Item) bool {
	op, ok := o.(Pointer)
	return ok && op.Position == p.Position && bytes.Equal(op.Script, p.Script)
}

func fromSignedLE(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	negative := b[len(b)-1]&0x80 != 0
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	v := new(big.Int).SetBytes(be)
	if negative {
		// two's complement: v - 2^(8*len)
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}

// toSignedLE renders v as a minimal-length two's-complement
// little-endian byte string, the encoding CONVERT(ByteString) uses.
func toSignedLE(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{}
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	be := abs.Bytes()
	// reverse to little-endian
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	if !neg {
		if len(le) > 0 && le[len(le)-1]&0x80 != 0 {
			le = append(le, 0)
		}
		return le
	}
	// two's complement negation over a byte length wide enough to hold
	// the sign bit.
	width := len(le)
	if new(big.Int).Lsh(big.NewInt(1), uint(width*8-1)).Cmp(abs) < 0 {
		width++
	}
	buf := make([]byte, width)
	copy(buf, le)
	mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	twos := new(big.Int).Add(mod, v)
	tb := twos.Bytes()
	out := make([]byte, width)
	for i, b := range tb {
		out[width-1-i] = b
	}
	return out
}
