package vm

import "testing"

func asm(ops ...OpCode) []byte {
	b := make([]byte, len(ops))
	for i, o := range ops {
		b[i] = byte(o)
	}
	return b
}

func TestPush2Push3AddHalts(t *testing.T) {
	script := asm(OpPush2, OpPush3, OpAdd)
	m := New(10_000_000)
	m.Load(script)
	state := m.Execute()
	if state != StateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, m.FaultException())
	}
	if m.ResultStack().Len() != 1 {
		t.Fatalf("expected 1 result item, got %d", m.ResultStack().Len())
	}
	top, err := m.ResultStack().Peek(0)
	if err != nil {
		t.Fatal(err)
	}
	i, ok := top.(Integer)
	if !ok {
		t.Fatalf("expected Integer, got %s", top.Type())
	}
	if i.Big().Int64() != 5 {
		t.Fatalf("expected 5, got %s", i.Big().String())
	}
}

func TestDivisionByZeroFaults(t *testing.T) {
	script := asm(OpPush1, OpPush0, OpDiv)
	m := New(10_000_000)
	m.Load(script)
	if state := m.Execute(); state != StateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
}

func TestOutOfGasFaults(t *testing.T) {
	script := asm(OpPush1, OpPush1, OpAdd)
	m := New(1) // PUSH1 costs 1: the first runs, the second exceeds the limit
	m.Load(script)
	if state := m.Execute(); state != StateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
	if !isOutOfGas(m.fault) {
		t.Fatalf("expected out-of-gas fault, got %v", m.fault)
	}
}

func TestJumpIfNotTakesBranchOnFalse(t *testing.T) {
	// PUSHFALSE, JMPIFNOT +6 (skip PUSH1, offset relative to JMPIFNOT's own
	// opcode byte), PUSH1, PUSH2
	script := []byte{
		byte(OpPushFalse),
		byte(OpJmpIfNot), 6, 0, 0, 0,
		byte(OpPush1),
		byte(OpPush2),
	}
	m := New(10_000_000)
	m.Load(script)
	if state := m.Execute(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, m.FaultException())
	}
	if m.ResultStack().Len() != 1 {
		t.Fatalf("expected only PUSH2 to run, got %d items", m.ResultStack().Len())
	}
	top, _ := m.ResultStack().Peek(0)
	if top.(Integer).Big().Int64() != 2 {
		t.Fatalf("expected 2, got %v", top)
	}
}

func TestTryCatchRecoversThrownItem(t *testing.T) {
	// TRY catch=+offset finally=0; PUSH1; THROW; <catch> DROP (discard the
	// thrown value), PUSH2; ENDTRY +end. Offsets computed manually, each
	// relative to its own instruction's opcode byte.
	tryIP := 0
	afterTry := tryIP + 9 // TRY opcode + 2 int32 operands
	push1IP := afterTry
	throwIP := push1IP + 1
	catchIP := throwIP + 1
	dropIP := catchIP
	push2IP := dropIP + 1
	endtryIP := push2IP + 1
	afterEndtry := endtryIP + 5

	catchOff := int32(catchIP - tryIP)
	finallyOff := int32(0)
	endOff := int32(afterEndtry - endtryIP)

	script := make([]byte, 0)
	script = append(script, byte(OpTry))
	script = append(script, int32ToLE(catchOff)...)
	script = append(script, int32ToLE(finallyOff)...)
	script = append(script, byte(OpPush1))
	script = append(script, byte(OpThrow))
	script = append(script, byte(OpDrop))
	script = append(script, byte(OpPush2))
	script = append(script, byte(OpEndTry))
	script = append(script, int32ToLE(endOff)...)

	m := New(10_000_000)
	m.Load(script)
	state := m.Execute()
	if state != StateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, m.FaultException())
	}
	if m.ResultStack().Len() != 1 {
		t.Fatalf("expected 1 item left (the catch block's PUSH2), got %d", m.ResultStack().Len())
	}
	top, _ := m.ResultStack().Peek(0)
	if top.(Integer).Big().Int64() != 2 {
		t.Fatalf("expected catch block's PUSH2 to run, got %v", top)
	}
}

func int32ToLE(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func TestArrayPackPickItem(t *testing.T) {
	// PUSH1, PUSH2, PUSH3, PUSH3 (count), PACK, PUSH0, PICKITEM
	script := asm(OpPush1, OpPush2, OpPush3, OpPush3, OpPack, OpPush0, OpPickItem)
	m := New(10_000_000)
	m.Load(script)
	if state := m.Execute(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, m.FaultException())
	}
	top, _ := m.ResultStack().Peek(0)
	// PACK pops in LIFO order so items = [3,2,1]; index 0 is 3.
	if top.(Integer).Big().Int64() != 3 {
		t.Fatalf("expected 3, got %v", top)
	}
}
