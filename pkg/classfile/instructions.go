package classfile

// LookupPair is one (match, offset) entry of a lookupswitch table.
type LookupPair struct {
	Match  int32
	Offset int32
}

// Instruction is one decoded bytecode instruction: the opcode plus whatever
// operand shape that opcode carries. Only the fields relevant to Opcode are
// meaningful; the interpreter knows which ones to read from the opcode
// alone, the same way the opcode table itself determines operand shape.
type Instruction struct {
	Offset  int // bytecode offset this instruction starts at
	Length  int // total encoded length in bytes, including the opcode byte
	Opcode  byte

	// Simple numeric operands.
	IntOperand   int32 // bipush/sipush/newarray-type/iinc-const
	VarIndex     int   // local variable index (iload/istore/... /iinc/ret), widened if a wide prefix preceded
	CPIndex      uint16 // constant-pool index (ldc family, field/method refs, new, anewarray, multianewarray, checkcast, instanceof, invokedynamic)
	BranchOffset int32  // signed branch offset (if*, goto, jsr, goto_w, jsr_w)
	Dimensions   uint8  // multianewarray dimension count
	Wide         bool   // true if this instruction was preceded by a wide prefix

	// invokeinterface carries an explicit argument count.
	InterfaceArgCount uint8

	// tableswitch / lookupswitch.
	DefaultOffset int32
	Low           int32
	High          int32
	TableOffsets  []int32
	LookupPairs   []LookupPair
}

// DecodeInstructions decodes a method's raw Code bytes into an ordered list
// of (bytecode offset, decoded instruction) pairs, per §4.1: one opcode byte
// plus zero or more operands per the opcode table, with tableswitch/
// lookupswitch padded so their first 4-byte operand starts at an offset
// that is 0 mod 4 from the start of the code, and a wide prefix widening
// the index (and, for iinc, the constant) of the following instruction.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	pc := 0
	pendingWide := false

	for pc < len(code) {
		start := pc
		op := code[pc]
		pc++

		inst := Instruction{Offset: start, Opcode: op, Wide: pendingWide}
		wasWide := pendingWide
		pendingWide = false

		switch op {
		case OpWide:
			pendingWide = true

		case OpBipush:
			v, err := readI8(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.IntOperand = int32(v)

		case OpNewarray:
			v, err := readU8(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.IntOperand = int32(v)

		case OpSipush:
			v, err := readI16(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.IntOperand = int32(v)

		case OpLdc:
			v, err := readU8(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.CPIndex = uint16(v)

		case OpLdcW, OpLdc2W, OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
			OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpNew, OpAnewarray,
			OpCheckcast, OpInstanceof:
			v, err := readU16(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.CPIndex = v

		case OpInvokeinterface:
			v, err := readU16(code, &pc)
			if err != nil {
				return nil, err
			}
			count, err := readU8(code, &pc)
			if err != nil {
				return nil, err
			}
			if _, err := readU8(code, &pc); err != nil { // reserved, must be 0
				return nil, err
			}
			inst.CPIndex = v
			inst.InterfaceArgCount = count

		case OpInvokedynamic:
			v, err := readU16(code, &pc)
			if err != nil {
				return nil, err
			}
			if _, err := readU16(code, &pc); err != nil { // reserved, must be 0
				return nil, err
			}
			inst.CPIndex = v

		case OpMultianewarray:
			v, err := readU16(code, &pc)
			if err != nil {
				return nil, err
			}
			dims, err := readU8(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.CPIndex = v
			inst.Dimensions = dims

		case OpIload, OpLload, OpFload, OpDload, OpAload,
			OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
			if wasWide {
				v, err := readU16(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(v)
			} else {
				v, err := readU8(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(v)
			}

		case OpRet:
			if wasWide {
				v, err := readU16(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(v)
			} else {
				v, err := readU8(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(v)
			}

		case OpIinc:
			if wasWide {
				idx, err := readU16(code, &pc)
				if err != nil {
					return nil, err
				}
				c, err := readI16(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(idx)
				inst.IntOperand = int32(c)
			} else {
				idx, err := readU8(code, &pc)
				if err != nil {
					return nil, err
				}
				c, err := readI8(code, &pc)
				if err != nil {
					return nil, err
				}
				inst.VarIndex = int(idx)
				inst.IntOperand = int32(c)
			}

		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
			OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
			OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull:
			v, err := readI16(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.BranchOffset = int32(v)

		case OpGotoW, OpJsrW:
			v, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.BranchOffset = v

		case OpTableswitch:
			pc = alignTo4(start, pc)
			def, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			low, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			high, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.DefaultOffset, inst.Low, inst.High = def, low, high
			n := int(high-low) + 1
			if n < 0 {
				n = 0
			}
			offsets := make([]int32, n)
			for i := 0; i < n; i++ {
				v, err := readI32(code, &pc)
				if err != nil {
					return nil, err
				}
				offsets[i] = v
			}
			inst.TableOffsets = offsets

		case OpLookupswitch:
			pc = alignTo4(start, pc)
			def, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			npairs, err := readI32(code, &pc)
			if err != nil {
				return nil, err
			}
			inst.DefaultOffset = def
			pairs := make([]LookupPair, npairs)
			for i := int32(0); i < npairs; i++ {
				m, err := readI32(code, &pc)
				if err != nil {
					return nil, err
				}
				o, err := readI32(code, &pc)
				if err != nil {
					return nil, err
				}
				pairs[i] = LookupPair{Match: m, Offset: o}
			}
			inst.LookupPairs = pairs

		default:
			// No-operand opcodes (including unrecognized ones, which the
			// interpreter will reject at execution time, not at decode time:
			// the decoder's job is only to keep offsets correct).
		}

		inst.Length = pc - start
		out = append(out, inst)
	}

	return out, nil
}

// alignTo4 skips the 0-3 padding bytes tableswitch/lookupswitch require so
// that the first 4-byte operand starts at an offset that is 0 mod 4 from
// the start of the method's code array. codeStartOffset is unused by the
// alignment arithmetic itself (padding is measured from byte 0 of the code
// array, not from the instruction), but is kept as a parameter to make that
// explicit at call sites.
func alignTo4(codeStartOffset, pc int) int {
	_ = codeStartOffset
	pad := (4 - pc%4) % 4
	return pc + pad
}

func readU8(code []byte, pc *int) (uint8, error) {
	if *pc >= len(code) {
		return 0, newDecodeError(ReasonUnexpectedEOF, "truncated instruction at offset %d", *pc)
	}
	v := code[*pc]
	*pc++
	return v, nil
}

func readI8(code []byte, pc *int) (int8, error) {
	v, err := readU8(code, pc)
	return int8(v), err
}

func readU16(code []byte, pc *int) (uint16, error) {
	if *pc+2 > len(code) {
		return 0, newDecodeError(ReasonUnexpectedEOF, "truncated instruction at offset %d", *pc)
	}
	v := uint16(code[*pc])<<8 | uint16(code[*pc+1])
	*pc += 2
	return v, nil
}

func readI16(code []byte, pc *int) (int16, error) {
	v, err := readU16(code, pc)
	return int16(v), err
}

func readI32(code []byte, pc *int) (int32, error) {
	if *pc+4 > len(code) {
		return 0, newDecodeError(ReasonUnexpectedEOF, "truncated instruction at offset %d", *pc)
	}
	v := int32(code[*pc])<<24 | int32(code[*pc+1])<<16 | int32(code[*pc+2])<<8 | int32(code[*pc+3])
	*pc += 4
	return v, nil
}
