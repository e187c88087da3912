package vm

// Gas costs are expressed in the same fixed-point unit as the rest of
// the engine (1 GAS = 1e8 units); the figures below group opcodes into
// the same rough tiers the reference fee schedule uses — pushes and
// stack shuffles are cheap, arithmetic is a bit more, compound-item and
// crypto-adjacent opcodes are expensive, and anything that touches
// persistent storage or invokes a native contract is billed separately
// by the application engine rather than here.
const (
	gasBase     int64 = 1 << 0  // 1
	gasLow      int64 = 1 << 4  // 16
	gasMid      int64 = 1 << 8  // 256
	gasHigh     int64 = 1 << 15 // 32768
	gasExpensive int64 = 1 << 20 // ~1,048,576

	// PerByte costs, multiplied by operand length. gasPerSizeByte is not
	// charged by any opcode.
	gasPerPushByte int64 = 1 << 2
	gasPerSizeByte int64 = 1 << 3

	// gasPerItem is not charged: no opcode cost depends on the ref
	// counter's Size.
	gasPerItem int64 = 1 << 4
)

func baseCost(op OpCode) int64 {
	switch op {
	case OpPushInt0, OpPush0, OpPush1, OpPush2, OpPush3, OpPush4, OpPush5, OpPush6,
		OpPush7, OpPush8, OpPush9, OpPush10, OpPush11, OpPush12, OpPush13, OpPush14,
		OpPush15, OpPush16, OpPushM1, OpPushNull, OpPushTrue, OpPushFalse,
		OpNop, OpDepth, OpDrop, OpNip, OpDup, OpOver, OpSwap, OpClear:
		return gasBase

	case OpPushA, OpJmp, OpJmpIf, OpJmpIfNot, OpJmpEq, OpJmpNe, OpJmpGt, OpJmpGe,
		OpJmpLt, OpJmpLe, OpRet, OpXDrop, OpTuck, OpRot, OpRoll, OpReverse3,
		OpReverse4, OpReverseN, OpPick,
		OpInitSSlot, OpInitSlot, OpLdSFld, OpStSFld, OpLdLoc, OpStLoc, OpLdArg, OpStArg,
		OpAdd, OpSub, OpInc, OpDec, OpNeg, OpAbs, OpNot, OpBoolAnd, OpBoolOr,
		OpNumEqual, OpNumNotEqual, OpLt, OpLe, OpGt, OpGe, OpMin, OpMax,
		OpAnd, OpOr, OpXor, OpInvert, OpEqual, OpNotEqual, OpIsNull, OpIsType,
		OpSize, OpHasKey, OpPickItem:
		return gasLow

	case OpCall, OpCallA, OpTry, OpEndTry, OpEndFinally, OpThrow, OpAbort,
		OpMul, OpDiv, OpMod, OpShl, OpShr, OpWithin, OpConvert,
		OpCat, OpSubStr, OpLeft, OpRight, OpMemcpy, OpNewBuffer,
		OpNewArray0, OpNewArray, OpNewArrayT, OpNewStruct0, OpNewStruct, OpNewMap,
		OpSetItem, OpAppend, OpReverseItems, OpRemove, OpClearItems, OpPopItem,
		OpKeys, OpValues, OpUnpack, OpPack, OpPackMap, OpPackStruct:
		return gasMid

	case OpPow, OpSqrt, OpModMul, OpModPow:
		return gasHigh

	case OpCallNative, OpSyscall, OpCheckWitness, OpCheckSig:
		return gasExpensive

	case OpCheckMultisig:
		return gasExpensive * 2

	default:
		return gasMid
	}
}

// operandCost accounts for the variable-length component of PUSHDATA*
// and NEWBUFFER, billed per byte in addition to the opcode's base cost.
func operandCost(op OpCode, operandLen int) int64 {
	switch op {
	case OpPushData1, OpPushData2, OpPushData4, OpNewBuffer:
		return int64(operandLen) * gasPerPushByte
	default:
		return 0
	}
}
