package interp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/native"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// lambdaTarget is the information captured when a LambdaMetafactory
// bootstrap synthesizes a functional-interface proxy (§4.4's invokedynamic
// subset). There is no field on rtdata.Object for this, so the interpreter
// keeps it in a side table keyed by object identity, the same pattern
// pkg/native uses for StringBuilder's backing buffers.
type lambdaTarget struct {
	targetClass      *rtdata.Class
	targetMethod     *rtdata.MethodDesc
	referenceKind    uint8
	capturedArgs     []rtdata.Value
}

var (
	lambdaMu      sync.RWMutex
	lambdaTargets = make(map[*rtdata.Object]*lambdaTarget)
)

func (it *Interp) lambdaFor(obj *rtdata.Object) *lambdaTarget {
	lambdaMu.RLock()
	defer lambdaMu.RUnlock()
	return lambdaTargets[obj]
}

func registerLambda(obj *rtdata.Object, lt *lambdaTarget) {
	lambdaMu.Lock()
	defer lambdaMu.Unlock()
	lambdaTargets[obj] = lt
}

// invokeLambda dispatches a call against a synthesized lambda proxy,
// prepending the captured arguments ahead of the call-site arguments per
// the reference kind the bootstrap resolved.
func (it *Interp) invokeLambda(lt *lambdaTarget, callArgs []rtdata.Value, retType classfile.ParsedType, frame *rtdata.Frame) (rtdata.MethodResult, control) {
	var result rtdata.MethodResult
	switch lt.referenceKind {
	case classfile.RefInvokeStatic:
		full := append(append([]rtdata.Value{}, lt.capturedArgs...), callArgs...)
		result = it.ExecuteMethod(lt.targetClass, lt.targetMethod, full, frame.Trace)
	case classfile.RefNewInvokeSpecial:
		if err := it.Heap.EnsureInitialized(lt.targetClass); err != nil {
			return rtdata.MachineError(err), controlReturn
		}
		instance := it.Heap.CreateNew(lt.targetClass)
		full := append([]rtdata.Value{rtdata.RefValue(instance)}, append(append([]rtdata.Value{}, lt.capturedArgs...), callArgs...)...)
		ctorResult := it.ExecuteMethod(lt.targetClass, lt.targetMethod, full, frame.Trace)
		if ctorResult.Kind == rtdata.ResultThrow || ctorResult.Kind == rtdata.ResultMachineError {
			result = ctorResult
		} else {
			result = rtdata.FinishWithValue(rtdata.RefValue(instance))
		}
	default: // invokevirtual, invokespecial, invokeinterface method references
		var receiver rtdata.Value
		rest := callArgs
		if len(lt.capturedArgs) > 0 {
			receiver = lt.capturedArgs[0]
			rest = append(append([]rtdata.Value{}, lt.capturedArgs[1:]...), callArgs...)
		} else {
			if len(callArgs) == 0 {
				return rtdata.MachineError(fmt.Errorf("lambda target %s%s requires a receiver",
					lt.targetMethod.Name, lt.targetMethod.Descriptor)), controlReturn
			}
			receiver = callArgs[0]
			rest = callArgs[1:]
		}
		runtimeClass := lt.targetClass
		if receiver.Ref != nil && receiver.Ref.Class != nil {
			runtimeClass = receiver.Ref.Class
		}
		method := lookupVirtual(runtimeClass, lt.targetMethod.Name, lt.targetMethod.Descriptor)
		if method == nil {
			method = lt.targetMethod
		}
		full := append([]rtdata.Value{receiver}, rest...)
		result = it.ExecuteMethod(runtimeClass, method, full, frame.Trace)
	}

	switch result.Kind {
	case rtdata.ResultFinishWithValue:
		pushByDescriptor(frame, result.Value)
		return rtdata.MethodResult{}, controlNext
	case rtdata.ResultFinish:
		return rtdata.MethodResult{}, controlNext
	case rtdata.ResultThrow:
		return result, controlThrow
	default:
		return result, controlReturn
	}
}

// execInvokedynamic resolves the call-site's ConstantDynamic entry against
// the declaring class's bootstrap-method table and dispatches to the two
// bootstraps this core understands: java.lang.invoke.LambdaMetafactory and
// java.lang.invoke.StringConcatFactory. Any other bootstrap is reported as
// a machine error naming the unsupported bootstrap rather than panicking.
func (st *execState) execInvokedynamic(inst classfile.Instruction) (rtdata.MethodResult, control) {
	pool := st.class.Pool
	dyn, err := classfile.ResolveDynamic(pool, inst.CPIndex)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if int(dyn.BootstrapMethodIndex) >= len(st.class.BootstrapMethods) {
		return rtdata.MachineError(fmt.Errorf("invokedynamic: bootstrap method index %d out of range", dyn.BootstrapMethodIndex)), controlReturn
	}
	bsm := st.class.BootstrapMethods[dyn.BootstrapMethodIndex]

	kind, bsmMember, err := classfile.ResolveMethodHandle(pool, bsm.MethodRef)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if kind != classfile.RefInvokeStatic {
		return rtdata.MachineError(fmt.Errorf("invokedynamic: unsupported bootstrap reference kind %d", kind)), controlReturn
	}

	switch bsmMember.ClassName + "." + bsmMember.Name {
	case "java/lang/invoke/StringConcatFactory.makeConcatWithConstants":
		return st.handleStringConcatFactory(inst, bsm, dyn)
	case "java/lang/invoke/LambdaMetafactory.metafactory":
		return st.handleLambdaMetafactory(inst, bsm, dyn)
	default:
		return rtdata.MachineError(fmt.Errorf("invokedynamic: unsupported bootstrap method %s.%s",
			bsmMember.ClassName, bsmMember.Name)), controlReturn
	}
}

func (st *execState) handleStringConcatFactory(inst classfile.Instruction, bsm classfile.BootstrapMethod, dyn *classfile.ResolvedDynamic) (rtdata.MethodResult, control) {
	pool := st.class.Pool
	if len(bsm.BootstrapArguments) < 1 {
		return rtdata.MachineError(fmt.Errorf("makeConcatWithConstants: missing recipe argument")), controlReturn
	}
	recipe, err := classfile.ResolveString(pool, bsm.BootstrapArguments[0])
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}

	params, _, err := classfile.ParseMethodDescriptor(dyn.Descriptor)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	args := popArgs(st.frame, params)

	constants := make([]string, 0, len(bsm.BootstrapArguments)-1)
	for _, argIdx := range bsm.BootstrapArguments[1:] {
		if int(argIdx) >= len(pool) || pool[argIdx] == nil {
			return rtdata.MachineError(fmt.Errorf("makeConcatWithConstants: invalid constant argument index %d", argIdx)), controlReturn
		}
		switch c := pool[argIdx].(type) {
		case *classfile.ConstantString:
			s, err := classfile.ResolveString(pool, argIdx)
			if err != nil {
				return rtdata.MachineError(err), controlReturn
			}
			constants = append(constants, s)
		case *classfile.ConstantInteger:
			constants = append(constants, fmt.Sprintf("%d", c.Value))
		default:
			return rtdata.MachineError(fmt.Errorf("makeConcatWithConstants: unsupported constant argument kind (tag=%d)", c.Tag())), controlReturn
		}
	}

	var sb strings.Builder
	argIdx, constIdx := 0, 0
	for i := 0; i < len(recipe); i++ {
		switch recipe[i] {
		case '\x01':
			if argIdx >= len(args) {
				return rtdata.MachineError(fmt.Errorf("makeConcatWithConstants: recipe references more arguments than supplied")), controlReturn
			}
			sb.WriteString(st.it.stringify(args[argIdx]))
			argIdx++
		case '\x02':
			if constIdx >= len(constants) {
				return rtdata.MachineError(fmt.Errorf("makeConcatWithConstants: recipe references more constants than supplied")), controlReturn
			}
			sb.WriteString(constants[constIdx])
			constIdx++
		default:
			sb.WriteByte(recipe[i])
		}
	}

	st.frame.Push(rtdata.RefValue(st.it.Heap.NewJavaString(st.it.stringClass, sb.String())))
	return rtdata.MethodResult{}, controlNext
}

// stringify renders a value the way String.valueOf would, for string
// concatenation's purposes: numeric kinds format directly, null renders as
// "null", a java/lang/String is decoded from its "value" array, and any
// other reference renders as its class name, "@", and its identity hash in
// hex.
func (it *Interp) stringify(v rtdata.Value) string {
	switch v.Kind {
	case rtdata.KindInt:
		return fmt.Sprintf("%d", v.I32)
	case rtdata.KindLong:
		return fmt.Sprintf("%d", v.I64)
	case rtdata.KindFloat:
		return fmt.Sprintf("%v", v.F32)
	case rtdata.KindDouble:
		return fmt.Sprintf("%v", v.F64)
	case rtdata.KindReference:
		if v.Ref == nil {
			return "null"
		}
		if v.Ref.Class != nil && v.Ref.Class.Name == "java/lang/String" {
			return native.GoString(v.Ref)
		}
		return fmt.Sprintf("%s@%x", classNameOf(v.Ref), v.Ref.IdentityHash)
	default:
		return ""
	}
}

func (st *execState) handleLambdaMetafactory(inst classfile.Instruction, bsm classfile.BootstrapMethod, dyn *classfile.ResolvedDynamic) (rtdata.MethodResult, control) {
	pool := st.class.Pool
	if len(bsm.BootstrapArguments) < 2 {
		return rtdata.MachineError(fmt.Errorf("metafactory: expected at least 2 bootstrap arguments, got %d", len(bsm.BootstrapArguments))), controlReturn
	}
	implKind, implMember, err := classfile.ResolveMethodHandle(pool, bsm.BootstrapArguments[1])
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	switch implKind {
	case classfile.RefInvokeVirtual, classfile.RefInvokeStatic, classfile.RefInvokeSpecial, classfile.RefNewInvokeSpecial:
	default:
		return rtdata.MachineError(fmt.Errorf("metafactory: unsupported implementation method handle kind %d", implKind)), controlReturn
	}

	targetClass, err := st.it.resolveClass(implMember.ClassName)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	targetMethod := lookupVirtual(targetClass, implMember.Name, implMember.Descriptor)
	if targetMethod == nil {
		return rtdata.MachineError(fmt.Errorf("metafactory: implementation method %s.%s%s not found",
			implMember.ClassName, implMember.Name, implMember.Descriptor)), controlReturn
	}

	closeIdx := strings.Index(dyn.Descriptor, ")L")
	if closeIdx < 0 {
		return rtdata.MachineError(fmt.Errorf("metafactory: call-site descriptor %s has no reference return type", dyn.Descriptor)), controlReturn
	}
	ifaceName := strings.TrimSuffix(dyn.Descriptor[closeIdx+2:], ";")

	captureParams, _, err := classfile.ParseMethodDescriptor(dyn.Descriptor)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	captured := popArgs(st.frame, captureParams)

	ifaceClass, err := st.it.resolveClass(ifaceName)
	if err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	if err := st.it.Heap.EnsureInitialized(ifaceClass); err != nil {
		return rtdata.MachineError(err), controlReturn
	}
	proxy := st.it.Heap.CreateNew(ifaceClass)
	registerLambda(proxy, &lambdaTarget{
		targetClass:   targetClass,
		targetMethod:  targetMethod,
		referenceKind: implKind,
		capturedArgs:  captured,
	})

	st.frame.Push(rtdata.RefValue(proxy))
	return rtdata.MethodResult{}, controlNext
}
