package interp

import (
	"fmt"
	"math"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/native"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// lookupVirtual finds a method by name and descriptor starting at class and
// walking the super-class chain. It backs invokevirtual/invokeinterface
// (starting from the receiver's runtime class) and invokespecial/
// invokestatic (starting from the resolved owner) alike, since the member-
// reference resolution already picked the right starting class in each case
// (§4.4's dispatch table).
func lookupVirtual(class *rtdata.Class, name, descriptor string) *rtdata.MethodDesc {
	for c := class; c != nil; c = c.SuperClass() {
		if m := c.FindMethod(name, descriptor); m != nil {
			return m
		}
	}
	return nil
}

func (it *Interp) resolveClass(name string) (*rtdata.Class, error) {
	return it.resolveClassByName(name)
}

// step executes a single decoded instruction against the frame, returning
// a method result (meaningful only for controlReturn/controlThrow) and the
// program-counter disposition the run loop should apply.
func (st *execState) step(inst classfile.Instruction) (rtdata.MethodResult, control) {
	f := st.frame

	switch inst.Opcode {
	case classfile.OpNop, classfile.OpWide:
		return rtdata.MethodResult{}, controlNext

	case classfile.OpAconstNull:
		f.Push(rtdata.NullValue())
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		f.Push(rtdata.IntValue(int32(inst.Opcode) - int32(classfile.OpIconst0)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLconst0, classfile.OpLconst1:
		pushLong(f, int64(inst.Opcode)-int64(classfile.OpLconst0))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		f.Push(rtdata.FloatValue(float32(inst.Opcode) - float32(classfile.OpFconst0)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpDconst0, classfile.OpDconst1:
		pushDouble(f, float64(inst.Opcode)-float64(classfile.OpDconst0))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpBipush, classfile.OpSipush:
		f.Push(rtdata.IntValue(inst.IntOperand))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
		return st.execLdc(inst)

	case classfile.OpIload, classfile.OpFload, classfile.OpAload:
		f.Push(f.GetLocal(inst.VarIndex))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIload0, classfile.OpIload1, classfile.OpIload2, classfile.OpIload3:
		f.Push(f.GetLocal(int(inst.Opcode) - int(classfile.OpIload0)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3:
		f.Push(f.GetLocal(int(inst.Opcode) - int(classfile.OpFload0)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpAload0, classfile.OpAload1, classfile.OpAload2, classfile.OpAload3:
		f.Push(f.GetLocal(int(inst.Opcode) - int(classfile.OpAload0)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLload, classfile.OpDload:
		pushCategory2(f, f.GetLocal(inst.VarIndex))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3:
		pushCategory2(f, f.GetLocal(int(inst.Opcode)-int(classfile.OpLload0)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3:
		pushCategory2(f, f.GetLocal(int(inst.Opcode)-int(classfile.OpDload0)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIstore, classfile.OpFstore, classfile.OpAstore:
		f.SetLocal(inst.VarIndex, f.Pop())
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIstore0, classfile.OpIstore1, classfile.OpIstore2, classfile.OpIstore3:
		f.SetLocal(int(inst.Opcode)-int(classfile.OpIstore0), f.Pop())
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3:
		f.SetLocal(int(inst.Opcode)-int(classfile.OpFstore0), f.Pop())
		return rtdata.MethodResult{}, controlNext
	case classfile.OpAstore0, classfile.OpAstore1, classfile.OpAstore2, classfile.OpAstore3:
		f.SetLocal(int(inst.Opcode)-int(classfile.OpAstore0), f.Pop())
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLstore, classfile.OpDstore:
		storeCategory2(f, inst.VarIndex)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3:
		storeCategory2(f, int(inst.Opcode)-int(classfile.OpLstore0))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3:
		storeCategory2(f, int(inst.Opcode)-int(classfile.OpDstore0))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIaload, classfile.OpLaload, classfile.OpFaload, classfile.OpDaload,
		classfile.OpAaload, classfile.OpBaload, classfile.OpCaload, classfile.OpSaload:
		return st.execArrayLoad(inst)

	case classfile.OpIastore, classfile.OpLastore, classfile.OpFastore, classfile.OpDastore,
		classfile.OpAastore, classfile.OpBastore, classfile.OpCastore, classfile.OpSastore:
		return st.execArrayStore(inst)

	case classfile.OpPop:
		f.SetSP(f.SP() - 1)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpPop2:
		f.SetSP(f.SP() - 2)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDup:
		sp := f.SP()
		f.Stack[sp] = f.Stack[sp-1]
		f.SetSP(sp + 1)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDupX1:
		sp := f.SP()
		v1, v2 := f.Stack[sp-1], f.Stack[sp-2]
		f.Stack[sp-2], f.Stack[sp-1], f.Stack[sp] = v1, v2, v1
		f.SetSP(sp + 1)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDupX2:
		sp := f.SP()
		v1, v2, v3 := f.Stack[sp-1], f.Stack[sp-2], f.Stack[sp-3]
		f.Stack[sp-3], f.Stack[sp-2], f.Stack[sp-1], f.Stack[sp] = v1, v3, v2, v1
		f.SetSP(sp + 1)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDup2:
		sp := f.SP()
		v1, v2 := f.Stack[sp-1], f.Stack[sp-2]
		f.Stack[sp], f.Stack[sp+1] = v2, v1
		f.SetSP(sp + 2)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDup2X1:
		sp := f.SP()
		v1, v2, v3 := f.Stack[sp-1], f.Stack[sp-2], f.Stack[sp-3]
		f.Stack[sp-3], f.Stack[sp-2], f.Stack[sp-1], f.Stack[sp], f.Stack[sp+1] = v2, v1, v3, v2, v1
		f.SetSP(sp + 2)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDup2X2:
		sp := f.SP()
		v1, v2, v3, v4 := f.Stack[sp-1], f.Stack[sp-2], f.Stack[sp-3], f.Stack[sp-4]
		f.Stack[sp-4], f.Stack[sp-3], f.Stack[sp-2], f.Stack[sp-1], f.Stack[sp], f.Stack[sp+1] =
			v2, v1, v4, v3, v2, v1
		f.SetSP(sp + 2)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpSwap:
		sp := f.SP()
		f.Stack[sp-1], f.Stack[sp-2] = f.Stack[sp-2], f.Stack[sp-1]
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIadd:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a + b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIsub:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a - b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpImul:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a * b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIdiv:
		b, a := popInt(f), popInt(f)
		if b == 0 {
			return st.throwNamed("java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(rtdata.IntValue(a / b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIrem:
		b, a := popInt(f), popInt(f)
		if b == 0 {
			return st.throwNamed("java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(rtdata.IntValue(a - (a/b)*b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIneg:
		f.Push(rtdata.IntValue(-popInt(f)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLadd:
		b, a := popLong(f), popLong(f)
		pushLong(f, a+b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLsub:
		b, a := popLong(f), popLong(f)
		pushLong(f, a-b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLmul:
		b, a := popLong(f), popLong(f)
		pushLong(f, a*b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLdiv:
		b, a := popLong(f), popLong(f)
		if b == 0 {
			return st.throwNamed("java/lang/ArithmeticException", "/ by zero")
		}
		pushLong(f, a/b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLrem:
		b, a := popLong(f), popLong(f)
		if b == 0 {
			return st.throwNamed("java/lang/ArithmeticException", "/ by zero")
		}
		pushLong(f, a-(a/b)*b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLneg:
		pushLong(f, -popLong(f))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpFadd:
		b, a := popFloat(f), popFloat(f)
		f.Push(rtdata.FloatValue(a + b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFsub:
		b, a := popFloat(f), popFloat(f)
		f.Push(rtdata.FloatValue(a - b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFmul:
		b, a := popFloat(f), popFloat(f)
		f.Push(rtdata.FloatValue(a * b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFdiv:
		b, a := popFloat(f), popFloat(f)
		f.Push(rtdata.FloatValue(a / b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFrem:
		b, a := popFloat(f), popFloat(f)
		f.Push(rtdata.FloatValue(float32(math.Mod(float64(a), float64(b)))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFneg:
		f.Push(rtdata.FloatValue(-popFloat(f)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpDadd:
		b, a := popDouble(f), popDouble(f)
		pushDouble(f, a+b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDsub:
		b, a := popDouble(f), popDouble(f)
		pushDouble(f, a-b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDmul:
		b, a := popDouble(f), popDouble(f)
		pushDouble(f, a*b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDdiv:
		b, a := popDouble(f), popDouble(f)
		pushDouble(f, a/b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDrem:
		b, a := popDouble(f), popDouble(f)
		pushDouble(f, math.Mod(a, b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDneg:
		pushDouble(f, -popDouble(f))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIshl:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a << (uint32(b) & 0x1F)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIshr:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a >> (uint32(b) & 0x1F)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIushr:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(int32(uint32(a) >> (uint32(b) & 0x1F))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLshl:
		b, a := popInt(f), popLong(f)
		pushLong(f, a<<(uint32(b)&0x3F))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLshr:
		b, a := popInt(f), popLong(f)
		pushLong(f, a>>(uint32(b)&0x3F))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLushr:
		b, a := popInt(f), popLong(f)
		pushLong(f, int64(uint64(a)>>(uint32(b)&0x3F)))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIand:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a & b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIor:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a | b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpIxor:
		b, a := popInt(f), popInt(f)
		f.Push(rtdata.IntValue(a ^ b))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLand:
		b, a := popLong(f), popLong(f)
		pushLong(f, a&b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLor:
		b, a := popLong(f), popLong(f)
		pushLong(f, a|b)
		return rtdata.MethodResult{}, controlNext
	case classfile.OpLxor:
		b, a := popLong(f), popLong(f)
		pushLong(f, a^b)
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIinc:
		v := f.GetLocal(inst.VarIndex)
		f.SetLocal(inst.VarIndex, rtdata.IntValue(v.I32+inst.IntOperand))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpI2l:
		pushLong(f, int64(popInt(f)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpI2f:
		f.Push(rtdata.FloatValue(float32(popInt(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpI2d:
		pushDouble(f, float64(popInt(f)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpL2i:
		f.Push(rtdata.IntValue(int32(popLong(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpL2f:
		f.Push(rtdata.FloatValue(float32(popLong(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpL2d:
		pushDouble(f, float64(popLong(f)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpF2i:
		f.Push(rtdata.IntValue(toInt32Saturating(float64(popFloat(f)))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpF2l:
		pushLong(f, toInt64Saturating(float64(popFloat(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpF2d:
		pushDouble(f, float64(popFloat(f)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpD2i:
		f.Push(rtdata.IntValue(toInt32Saturating(popDouble(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpD2l:
		pushLong(f, toInt64Saturating(popDouble(f)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpD2f:
		f.Push(rtdata.FloatValue(float32(popDouble(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpI2b:
		f.Push(rtdata.IntValue(clampByte(popInt(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpI2c:
		f.Push(rtdata.IntValue(clampChar(popInt(f))))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpI2s:
		f.Push(rtdata.IntValue(clampShort(popInt(f))))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpLcmp:
		b, a := popLong(f), popLong(f)
		f.Push(rtdata.IntValue(compareOrdered3(a, b)))
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFcmpl:
		b, a := popFloat(f), popFloat(f)
		if isNaN32(a) || isNaN32(b) {
			f.Push(rtdata.IntValue(-1))
		} else {
			f.Push(rtdata.IntValue(compareOrdered3(a, b)))
		}
		return rtdata.MethodResult{}, controlNext
	case classfile.OpFcmpg:
		b, a := popFloat(f), popFloat(f)
		if isNaN32(a) || isNaN32(b) {
			f.Push(rtdata.IntValue(1))
		} else {
			f.Push(rtdata.IntValue(compareOrdered3(a, b)))
		}
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDcmpl:
		b, a := popDouble(f), popDouble(f)
		if isNaN64(a) || isNaN64(b) {
			f.Push(rtdata.IntValue(-1))
		} else {
			f.Push(rtdata.IntValue(compareOrdered3(a, b)))
		}
		return rtdata.MethodResult{}, controlNext
	case classfile.OpDcmpg:
		b, a := popDouble(f), popDouble(f)
		if isNaN64(a) || isNaN64(b) {
			f.Push(rtdata.IntValue(1))
		} else {
			f.Push(rtdata.IntValue(compareOrdered3(a, b)))
		}
		return rtdata.MethodResult{}, controlNext

	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge,
		classfile.OpIfgt, classfile.OpIfle:
		return st.branchIf(inst, intCond(inst.Opcode, popInt(f), 0))
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt,
		classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		b, a := popInt(f), popInt(f)
		return st.branchIf(inst, intCond(icmpBase(inst.Opcode), a, b))
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		b, a := f.Pop().Ref, f.Pop().Ref
		eq := a == b
		if inst.Opcode == classfile.OpIfAcmpne {
			eq = !eq
		}
		return st.branchIf(inst, eq)
	case classfile.OpIfnull, classfile.OpIfnonnull:
		v := f.Pop()
		isNull := v.Ref == nil
		if inst.Opcode == classfile.OpIfnonnull {
			isNull = !isNull
		}
		return st.branchIf(inst, isNull)
	case classfile.OpGoto:
		idx := st.method.OffsetToIndex(inst.Offset + int(inst.BranchOffset))
		f.PC = idx
		return rtdata.MethodResult{}, controlJump
	case classfile.OpGotoW:
		idx := st.method.OffsetToIndex(inst.Offset + int(inst.BranchOffset))
		f.PC = idx
		return rtdata.MethodResult{}, controlJump
	case classfile.OpJsr, classfile.OpJsrW:
		f.Push(rtdata.IntValue(int32(inst.Offset + inst.Length)))
		idx := st.method.OffsetToIndex(inst.Offset + int(inst.BranchOffset))
		f.PC = idx
		return rtdata.MethodResult{}, controlJump
	case classfile.OpRet:
		return rtdata.MachineError(fmt.Errorf("ret at offset %d: jsr/ret subroutines are not supported", inst.Offset)), controlReturn

	case classfile.OpTableswitch:
		key := popInt(f)
		var target int32
		if key < inst.Low || key > inst.High {
			target = inst.DefaultOffset
		} else {
			target = inst.TableOffsets[key-inst.Low]
		}
		f.PC = st.method.OffsetToIndex(inst.Offset + int(target))
		return rtdata.MethodResult{}, controlJump
	case classfile.OpLookupswitch:
		key := popInt(f)
		target := inst.DefaultOffset
		for _, pair := range inst.LookupPairs {
			if pair.Match == key {
				target = pair.Offset
				break
			}
		}
		f.PC = st.method.OffsetToIndex(inst.Offset + int(target))
		return rtdata.MethodResult{}, controlJump

	case classfile.OpIreturn, classfile.OpFreturn, classfile.OpAreturn:
		return rtdata.FinishWithValue(f.Pop()), controlReturn
	case classfile.OpLreturn, classfile.OpDreturn:
		f.Pop()
		return rtdata.FinishWithValue(f.Pop()), controlReturn
	case classfile.OpReturn:
		return rtdata.Finish(), controlReturn

	case classfile.OpGetstatic:
		return st.execGetstatic(inst)
	case classfile.OpPutstatic:
		return st.execPutstatic(inst)
	case classfile.OpGetfield:
		return st.execGetfield(inst)
	case classfile.OpPutfield:
		return st.execPutfield(inst)

	case classfile.OpInvokevirtual:
		return st.execInvoke(inst, invokeVirtual)
	case classfile.OpInvokespecial:
		return st.execInvoke(inst, invokeSpecial)
	case classfile.OpInvokestatic:
		return st.execInvoke(inst, invokeStatic)
	case classfile.OpInvokeinterface:
		return st.execInvoke(inst, invokeInterface)
	case classfile.OpInvokedynamic:
		return st.execInvokedynamic(inst)

	case classfile.OpNew:
		return st.execNew(inst)
	case classfile.OpNewarray:
		return st.execNewarray(inst)
	case classfile.OpAnewarray:
		return st.execAnewarray(inst)
	case classfile.OpMultianewarray:
		return st.execMultianewarray(inst)
	case classfile.OpArraylength:
		ref := f.Pop().Ref
		if ref == nil {
			return st.throwNamed("java/lang/NullPointerException", "arraylength on null")
		}
		f.Push(rtdata.IntValue(int32(ref.ArrayLength())))
		return rtdata.MethodResult{}, controlNext

	case classfile.OpAthrow:
		exc := f.Pop().Ref
		if exc == nil {
			return st.throwNamed("java/lang/NullPointerException", "athrow on null")
		}
		return rtdata.Throw(nil, exc), controlThrow

	case classfile.OpCheckcast:
		return st.execCheckcast(inst)
	case classfile.OpInstanceof:
		return st.execInstanceof(inst)

	case classfile.OpMonitorenter:
		if f.Pop().Ref == nil {
			return st.throwNamed("java/lang/NullPointerException", "monitorenter on null")
		}
		return rtdata.MethodResult{}, controlNext
	case classfile.OpMonitorexit:
		f.Pop()
		return rtdata.MethodResult{}, controlNext

	default:
		return rtdata.MachineError(fmt.Errorf("unsupported opcode %s (0x%02X) at offset %d",
			classfile.OpcodeName(inst.Opcode), inst.Opcode, inst.Offset)), controlReturn
	}
}

func (st *execState) branchIf(inst classfile.Instruction, take bool) (rtdata.MethodResult, control) {
	if !take {
		return rtdata.MethodResult{}, controlNext
	}
	idx := st.method.OffsetToIndex(inst.Offset + int(inst.BranchOffset))
	st.frame.PC = idx
	return rtdata.MethodResult{}, controlJump
}

func intCond(opcode byte, a, b int32) bool {
	switch opcode {
	case classfile.OpIfeq, classfile.OpIfIcmpeq:
		return a == b
	case classfile.OpIfne, classfile.OpIfIcmpne:
		return a != b
	case classfile.OpIflt, classfile.OpIfIcmplt:
		return a < b
	case classfile.OpIfge, classfile.OpIfIcmpge:
		return a >= b
	case classfile.OpIfgt, classfile.OpIfIcmpgt:
		return a > b
	case classfile.OpIfle, classfile.OpIfIcmple:
		return a <= b
	}
	return false
}

// icmpBase maps an if_icmp* opcode to the equivalent single-operand if*
// opcode so intCond's switch can serve both families.
func icmpBase(opcode byte) byte {
	switch opcode {
	case classfile.OpIfIcmpeq:
		return classfile.OpIfeq
	case classfile.OpIfIcmpne:
		return classfile.OpIfne
	case classfile.OpIfIcmplt:
		return classfile.OpIflt
	case classfile.OpIfIcmpge:
		return classfile.OpIfge
	case classfile.OpIfIcmpgt:
		return classfile.OpIfgt
	case classfile.OpIfIcmple:
		return classfile.OpIfle
	}
	return opcode
}

func popInt(f *rtdata.Frame) int32    { return f.Pop().I32 }
func popFloat(f *rtdata.Frame) float32 { return f.Pop().F32 }
func popLong(f *rtdata.Frame) int64 {
	f.Pop()
	return f.Pop().I64
}
func popDouble(f *rtdata.Frame) float64 {
	f.Pop()
	return f.Pop().F64
}
func pushLong(f *rtdata.Frame, v int64) {
	f.Push(rtdata.LongValue(v))
	f.Push(rtdata.SecondValue())
}
func pushDouble(f *rtdata.Frame, v float64) {
	f.Push(rtdata.DoubleValue(v))
	f.Push(rtdata.SecondValue())
}
func pushCategory2(f *rtdata.Frame, v rtdata.Value) {
	f.Push(v)
	f.Push(rtdata.SecondValue())
}
func storeCategory2(f *rtdata.Frame, index int) {
	f.Pop() // second
	v := f.Pop()
	f.SetLocal(index, v)
	f.SetLocal(index+1, rtdata.SecondValue())
}

func compareOrdered3[T int64 | float32 | float64](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func clampByte(v int32) int32 {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	default:
		return v
	}
}

func clampChar(v int32) int32 {
	switch {
	case v < 0:
		return 0
	case v > 65535:
		return 65535
	default:
		return v
	}
}

func clampShort(v int32) int32 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return v
	}
}

func toInt32Saturating(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func toInt64Saturating(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

// throwNamed loads (if necessary) and instantiates a named exception class,
// producing a Throw result usable by the run loop's exception-table
// consultation. If the exception class itself cannot be resolved, the
// failure degrades to a machine error rather than panicking — this core
// carries no platform classes beyond what a caller's byte-loader supplies.
func (st *execState) throwNamed(name, message string) (rtdata.MethodResult, control) {
	class, err := st.it.resolveClass(name)
	if err != nil {
		return rtdata.MachineError(fmt.Errorf("%s: %s (exception class unavailable: %w)", name, message, err)), controlReturn
	}
	if err := st.it.Heap.EnsureInitialized(class); err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	obj := st.it.Heap.CreateNew(class)
	if message != "" && st.it.stringClass != nil {
		obj.SetField("message", rtdata.RefValue(st.it.Heap.NewJavaString(st.it.stringClass, message)))
	}
	return rtdata.Throw(nil, obj), controlThrow
}

func (st *execState) execLdc(inst classfile.Instruction) (rtdata.MethodResult, control) {
	pool := st.class.Pool
	if int(inst.CPIndex) >= len(pool) || pool[inst.CPIndex] == nil {
		return rtdata.MachineError(fmt.Errorf("ldc: invalid constant pool index %d", inst.CPIndex)), controlReturn
	}
	switch c := pool[inst.CPIndex].(type) {
	case *classfile.ConstantInteger:
		st.frame.Push(rtdata.IntValue(c.Value))
	case *classfile.ConstantFloat:
		st.frame.Push(rtdata.FloatValue(c.Value))
	case *classfile.ConstantLong:
		pushLong(st.frame, c.Value)
	case *classfile.ConstantDouble:
		pushDouble(st.frame, c.Value)
	case *classfile.ConstantString:
		s, err := classfile.ResolveString(pool, inst.CPIndex)
		if err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		st.frame.Push(rtdata.RefValue(st.it.Heap.NewJavaString(st.it.stringClass, s)))
	case *classfile.ConstantClass:
		name, err := classfile.GetClassName(pool, inst.CPIndex)
		if err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		st.frame.Push(rtdata.RefValue(st.it.Heap.NewJavaClassObject(st.it.classClass, descriptorFromClassConstant(name))))
	default:
		return rtdata.MachineError(fmt.Errorf("ldc: unsupported constant kind (tag=%d) at index %d", c.Tag(), inst.CPIndex)), controlReturn
	}
	return rtdata.MethodResult{}, controlNext
}

// descriptorFromClassConstant turns a CONSTANT_Class's name into a class
// descriptor: array-typed entries already carry their bracket form, plain
// class entries need the L...; wrapping.
func descriptorFromClassConstant(name string) string {
	if len(name) > 0 && name[0] == '[' {
		return name
	}
	return "L" + name + ";"
}

func (st *execState) resolveArrayClass(descriptor string) (*rtdata.Class, error) {
	mc, err := st.it.Heap.GetOrCreateClass(descriptor, BootstrapLoader)
	if err != nil {
		return nil, err
	}
	return st.it.Heap.EnsureLoaded(mc, BootstrapLoader)
}

func (st *execState) execArrayLoad(inst classfile.Instruction) (rtdata.MethodResult, control) {
	index := popInt(st.frame)
	ref := st.frame.Pop().Ref
	if ref == nil {
		return st.throwNamed("java/lang/NullPointerException", "array load on null")
	}
	if index < 0 || index >= ref.ArrayLength() {
		return st.throwNamed("java/lang/ArrayIndexOutOfBoundsException",
			fmt.Sprintf("index %d out of bounds for length %d", index, ref.ArrayLength()))
	}
	v := ref.GetElement(int(index))
	switch inst.Opcode {
	case classfile.OpLaload, classfile.OpDaload:
		pushCategory2(st.frame, v)
	default:
		st.frame.Push(v)
	}
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execArrayStore(inst classfile.Instruction) (rtdata.MethodResult, control) {
	var v rtdata.Value
	switch inst.Opcode {
	case classfile.OpLastore, classfile.OpDastore:
		st.frame.Pop()
		v = st.frame.Pop()
	default:
		v = st.frame.Pop()
	}
	index := popInt(st.frame)
	ref := st.frame.Pop().Ref
	if ref == nil {
		return st.throwNamed("java/lang/NullPointerException", "array store on null")
	}
	if index < 0 || index >= ref.ArrayLength() {
		return st.throwNamed("java/lang/ArrayIndexOutOfBoundsException",
			fmt.Sprintf("index %d out of bounds for length %d", index, ref.ArrayLength()))
	}
	switch inst.Opcode {
	case classfile.OpBastore:
		v = rtdata.IntValue(clampByte(v.I32))
	case classfile.OpCastore:
		v = rtdata.IntValue(clampChar(v.I32))
	case classfile.OpSastore:
		v = rtdata.IntValue(clampShort(v.I32))
	}
	ref.SetElement(int(index), v)
	return rtdata.MethodResult{}, controlNext
}

func isCategory2Descriptor(d string) bool { return len(d) > 0 && (d[0] == 'J' || d[0] == 'D') }

func popByDescriptor(f *rtdata.Frame, descriptor string) rtdata.Value {
	if isCategory2Descriptor(descriptor) {
		f.Pop()
		return f.Pop()
	}
	return f.Pop()
}

func pushByDescriptor(f *rtdata.Frame, v rtdata.Value) {
	f.Push(v)
	if v.IsCategory2() {
		f.Push(rtdata.SecondValue())
	}
}

func (st *execState) execGetstatic(inst classfile.Instruction) (rtdata.MethodResult, control) {
	ref, err := classfile.ResolveFieldref(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	owner, err := st.it.resolveClass(ref.ClassName)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if err := st.it.Heap.EnsureInitialized(owner); err != nil {
		return rtdata.MachineError(err), controlReturn
	}

	if ref.ClassName == "java/lang/System" && (ref.Name == "out" || ref.Name == "err") {
		var (
			ps  *rtdata.Object
			err error
		)
		if ref.Name == "out" {
			ps, err = st.it.systemOutObject()
		} else {
			ps, err = st.it.systemErrObject()
		}
		if err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		st.frame.Push(rtdata.RefValue(ps))
		return rtdata.MethodResult{}, controlNext
	}

	sf := owner.FindStaticField(ref.Name)
	if sf == nil {
		return rtdata.MachineError(fmt.Errorf("no static field %s on %s", ref.Name, owner.Name)), controlReturn
	}
	pushByDescriptor(st.frame, sf.Get())
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execPutstatic(inst classfile.Instruction) (rtdata.MethodResult, control) {
	ref, err := classfile.ResolveFieldref(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	v := popByDescriptor(st.frame, ref.Descriptor)
	owner, err := st.it.resolveClass(ref.ClassName)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if err := st.it.Heap.EnsureInitialized(owner); err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	sf := owner.FindStaticField(ref.Name)
	if sf == nil {
		return rtdata.MachineError(fmt.Errorf("no static field %s on %s", ref.Name, owner.Name)), controlReturn
	}
	sf.Set(v)
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execGetfield(inst classfile.Instruction) (rtdata.MethodResult, control) {
	ref, err := classfile.ResolveFieldref(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	objectref := st.frame.Pop().Ref
	if objectref == nil {
		return st.throwNamed("java/lang/NullPointerException", "getfield "+ref.Name+" on null")
	}
	pushByDescriptor(st.frame, objectref.GetField(ref.Name))
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execPutfield(inst classfile.Instruction) (rtdata.MethodResult, control) {
	ref, err := classfile.ResolveFieldref(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	v := popByDescriptor(st.frame, ref.Descriptor)
	objectref := st.frame.Pop().Ref
	if objectref == nil {
		return st.throwNamed("java/lang/NullPointerException", "putfield "+ref.Name+" on null")
	}
	objectref.SetField(ref.Name, v)
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execNew(inst classfile.Instruction) (rtdata.MethodResult, control) {
	name, err := classfile.GetClassName(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	class, err := st.it.resolveClass(name)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if err := st.it.Heap.EnsureInitialized(class); err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	st.frame.Push(rtdata.RefValue(st.it.Heap.CreateNew(class)))
	return rtdata.MethodResult{}, controlNext
}

var newarrayLetters = map[int32]byte{
	classfile.ATBoolean: 'Z', classfile.ATChar: 'C', classfile.ATFloat: 'F', classfile.ATDouble: 'D',
	classfile.ATByte: 'B', classfile.ATShort: 'S', classfile.ATInt: 'I', classfile.ATLong: 'J',
}

func (st *execState) execNewarray(inst classfile.Instruction) (rtdata.MethodResult, control) {
	length := popInt(st.frame)
	if length < 0 {
		return st.throwNamed("java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length))
	}
	letter, ok := newarrayLetters[inst.IntOperand]
	if !ok {
		return rtdata.MachineError(fmt.Errorf("newarray: invalid atype %d", inst.IntOperand)), controlReturn
	}
	arrClass, err := st.resolveArrayClass("[" + string(letter))
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	st.frame.Push(rtdata.RefValue(st.it.Heap.CreateNewArrayOf(arrClass, int(length))))
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execAnewarray(inst classfile.Instruction) (rtdata.MethodResult, control) {
	length := popInt(st.frame)
	if length < 0 {
		return st.throwNamed("java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length))
	}
	componentName, err := classfile.GetClassName(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	arrClass, err := st.resolveArrayClass("[" + descriptorFromClassConstant(componentName))
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	st.frame.Push(rtdata.RefValue(st.it.Heap.CreateNewArrayOf(arrClass, int(length))))
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execMultianewarray(inst classfile.Instruction) (rtdata.MethodResult, control) {
	dims := int(inst.Dimensions)
	sizes := make([]int32, dims)
	for i := dims - 1; i >= 0; i-- {
		sizes[i] = popInt(st.frame)
	}
	descriptor, err := classfile.GetClassName(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	obj, err := st.allocMultiArray(descriptor, dims, sizes)
	if err != nil {
		if thrown, ok := err.(*negativeArraySize); ok {
			return st.throwNamed("java/lang/NegativeArraySizeException", fmt.Sprintf("%d", thrown.size))
		}
		return rtdata.MachineError(err), controlReturn
	}
	st.frame.Push(rtdata.RefValue(obj))
	return rtdata.MethodResult{}, controlNext
}

type negativeArraySize struct{ size int32 }

func (e *negativeArraySize) Error() string { return fmt.Sprintf("negative array size %d", e.size) }

func (st *execState) allocMultiArray(descriptor string, dims int, sizes []int32) (*rtdata.Object, error) {
	if sizes[0] < 0 {
		return nil, &negativeArraySize{sizes[0]}
	}
	arrClass, err := st.resolveArrayClass(descriptor)
	if err != nil {
		return nil, err
	}
	obj := st.it.Heap.CreateNewArrayOf(arrClass, int(sizes[0]))
	if dims > 1 {
		inner := descriptor[1:]
		for i := 0; i < int(sizes[0]); i++ {
			elem, err := st.allocMultiArray(inner, dims-1, sizes[1:])
			if err != nil {
				return nil, err
			}
			obj.SetElement(i, rtdata.RefValue(elem))
		}
	}
	return obj, nil
}

func (st *execState) execCheckcast(inst classfile.Instruction) (rtdata.MethodResult, control) {
	v := st.frame.Peek()
	if v.Ref == nil {
		return rtdata.MethodResult{}, controlNext
	}
	name, err := classfile.GetClassName(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	target, err := st.resolveArrayClass(descriptorFromClassConstant(name))
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if v.Ref.Class == nil || !v.Ref.Class.AssignableTo(target) {
		return st.throwNamed("java/lang/ClassCastException",
			fmt.Sprintf("%s cannot be cast to %s", classNameOf(v.Ref), target.Name))
	}
	return rtdata.MethodResult{}, controlNext
}

func (st *execState) execInstanceof(inst classfile.Instruction) (rtdata.MethodResult, control) {
	v := st.frame.Pop()
	if v.Ref == nil {
		st.frame.Push(rtdata.IntValue(0))
		return rtdata.MethodResult{}, controlNext
	}
	name, err := classfile.GetClassName(st.class.Pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	target, err := st.resolveArrayClass(descriptorFromClassConstant(name))
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if v.Ref.Class != nil && v.Ref.Class.AssignableTo(target) {
		st.frame.Push(rtdata.IntValue(1))
	} else {
		st.frame.Push(rtdata.IntValue(0))
	}
	return rtdata.MethodResult{}, controlNext
}

func classNameOf(obj *rtdata.Object) string {
	if obj == nil || obj.Class == nil {
		return "null"
	}
	return obj.Class.Name
}

type invokeKind int

const (
	invokeVirtual invokeKind = iota
	invokeSpecial
	invokeStatic
	invokeInterface
)

func (st *execState) execInvoke(inst classfile.Instruction, kind invokeKind) (rtdata.MethodResult, control) {
	var ref *classfile.MemberRefInfo
	var err error
	if kind == invokeInterface {
		ref, err = classfile.ResolveInterfaceMethodref(st.class.Pool, inst.CPIndex)
	} else {
		ref, err = classfile.ResolveMethodref(st.class.Pool, inst.CPIndex)
	}
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	params, retType, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	args := popArgs(st.frame, params)

	switch kind {
	case invokeStatic:
		owner, err := st.it.resolveClass(ref.ClassName)
		if err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		if err := st.it.Heap.EnsureInitialized(owner); err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		method := lookupVirtual(owner, ref.Name, ref.Descriptor)
		if method == nil {
			if fn, ok := native.Lookup(owner.Name, ref.Name, ref.Descriptor); ok {
				result := fn(st.it.nativeContext(), args)
				return st.afterCall(result, retType)
			}
			return rtdata.MachineError(fmt.Errorf("no static method %s%s on %s", ref.Name, ref.Descriptor, owner.Name)), controlReturn
		}
		result := st.it.ExecuteMethod(owner, method, args, st.frame.Trace)
		return st.afterCall(result, retType)

	case invokeSpecial:
		owner, err := st.it.resolveClass(ref.ClassName)
		if err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		receiver := st.frame.Pop().Ref
		if receiver == nil {
			return st.throwNamed("java/lang/NullPointerException", "invokespecial "+ref.Name+" on null")
		}
		method := lookupVirtual(owner, ref.Name, ref.Descriptor)
		full := append([]rtdata.Value{rtdata.RefValue(receiver)}, args...)
		if method == nil {
			if fn, ok := native.Lookup(owner.Name, ref.Name, ref.Descriptor); ok {
				result := fn(st.it.nativeContext(), full)
				return st.afterCall(result, retType)
			}
			return rtdata.MachineError(fmt.Errorf("no method %s%s on %s", ref.Name, ref.Descriptor, owner.Name)), controlReturn
		}
		result := st.it.ExecuteMethod(owner, method, full, st.frame.Trace)
		return st.afterCall(result, retType)

	default: // invokeVirtual, invokeInterface
		receiver := st.frame.Pop().Ref
		if receiver == nil {
			return st.throwNamed("java/lang/NullPointerException", "invoke "+ref.Name+" on null")
		}
		if lt := st.it.lambdaFor(receiver); lt != nil {
			return st.it.invokeLambda(lt, args, retType, st.frame)
		}
		method := lookupVirtual(receiver.Class, ref.Name, ref.Descriptor)
		full := append([]rtdata.Value{rtdata.RefValue(receiver)}, args...)
		if method == nil {
			owner := ref.ClassName
			if receiver.Class != nil {
				owner = receiver.Class.Name
			}
			if fn, ok := native.Lookup(owner, ref.Name, ref.Descriptor); ok {
				result := fn(st.it.nativeContext(), full)
				return st.afterCall(result, retType)
			}
			return rtdata.MachineError(fmt.Errorf("no method %s%s on %s", ref.Name, ref.Descriptor, owner)), controlReturn
		}
		result := st.it.ExecuteMethod(receiver.Class, method, full, st.frame.Trace)
		return st.afterCall(result, retType)
	}
}

func popArgs(f *rtdata.Frame, params []classfile.ParsedType) []rtdata.Value {
	args := make([]rtdata.Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		if params[i].Dimensions == 0 && (params[i].Primitive == 'J' || params[i].Primitive == 'D') {
			f.Pop()
		}
		args[i] = f.Pop()
	}
	return args
}

func (st *execState) afterCall(result rtdata.MethodResult, ret classfile.ParsedType) (rtdata.MethodResult, control) {
	switch result.Kind {
	case rtdata.ResultFinishWithValue:
		pushByDescriptor(st.frame, result.Value)
		return rtdata.MethodResult{}, controlNext
	case rtdata.ResultFinish:
		return rtdata.MethodResult{}, controlNext
	case rtdata.ResultThrow:
		return result, controlThrow
	default:
		return result, controlReturn
	}
}
