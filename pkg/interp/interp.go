// Package interp implements the bytecode interpreter (§4.4): a stack
// machine that evaluates one method's instruction list against an operand
// stack and local-variable array, dispatching invokes, resolving fields,
// running the arithmetic/control-transfer instruction set, and catching
// thrown exceptions via the method's exception-handler table.
package interp

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/native"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// BootstrapLoader is the sole classloader name this core supports, per the
// single-bootstrap-loader non-goal.
const BootstrapLoader = "bootstrap"

const maxCallDepth = 2048

// Interp wires a Heap to the native dispatch table and tracks recursion
// depth (the stand-in for a native StackOverflowError, since there is no
// fixed-size frame array backing these recursive Go calls).
type Interp struct {
	Heap  *heap.Heap
	depth int

	stringClass *rtdata.Class
	classClass  *rtdata.Class

	// Stdout and Stderr back the synthesized java/lang/System.out/err
	// PrintStream objects (see systemPrintStream); default to the
	// process's own standard streams.
	Stdout, Stderr io.Writer
	systemOut      *rtdata.Object
	systemErr      *rtdata.Object
}

// New creates an Interp bound to a heap and wires the heap's <clinit>
// callback to this interpreter, closing the loop described in
// pkg/heap's package doc.
func New(h *heap.Heap) *Interp {
	it := &Interp{Heap: h, Stdout: os.Stdout, Stderr: os.Stderr}
	h.SetInitFunc(it.runClinit)
	return it
}

// EnsureCoreClasses resolves and remembers java/lang/String and
// java/lang/Class once, so native synthesis (native.Context.StringClass/
// ClassClass) doesn't re-resolve them on every call.
func (it *Interp) EnsureCoreClasses() error {
	var err error
	it.stringClass, err = it.resolveClassByName("java/lang/String")
	if err != nil {
		return fmt.Errorf("resolving java/lang/String: %w", err)
	}
	it.classClass, err = it.resolveClassByName("java/lang/Class")
	if err != nil {
		return fmt.Errorf("resolving java/lang/Class: %w", err)
	}
	return nil
}

func (it *Interp) resolveClassByName(name string) (*rtdata.Class, error) {
	mc, err := it.Heap.GetOrCreateClass(name, BootstrapLoader)
	if err != nil {
		return nil, err
	}
	return it.Heap.EnsureLoaded(mc, BootstrapLoader)
}

// systemOutObject and systemErrObject synthesize (once) and return the
// java/io/PrintStream instance backing java/lang/System.out/err. Nothing in
// this core runs the JDK's native VM-bootstrap that would normally populate
// those static fields, so getstatic special-cases them here the same way
// the teacher's executeGetstatic does, binding the returned object to a Go
// writer via native.BindPrintStream.
func (it *Interp) systemOutObject() (*rtdata.Object, error) {
	return it.systemPrintStream(&it.systemOut, it.Stdout)
}

func (it *Interp) systemErrObject() (*rtdata.Object, error) {
	return it.systemPrintStream(&it.systemErr, it.Stderr)
}

func (it *Interp) systemPrintStream(cache **rtdata.Object, writer io.Writer) (*rtdata.Object, error) {
	if *cache != nil {
		return *cache, nil
	}
	class, err := it.resolveClassByName("java/io/PrintStream")
	if err != nil {
		return nil, fmt.Errorf("resolving java/io/PrintStream: %w", err)
	}
	obj := it.Heap.CreateNew(class)
	native.BindPrintStream(obj, &native.PrintStream{Writer: writer})
	*cache = obj
	return obj, nil
}

func (it *Interp) nativeContext() *native.Context {
	return &native.Context{
		Heap:   it.Heap,
		Invoke: it.invokeByName,
		StringClass: func() *rtdata.Class { return it.stringClass },
		ClassClass:  func() *rtdata.Class { return it.classClass },
		ClassByName: func(name string) *rtdata.Class {
			c, err := it.resolveClassByName(name)
			if err != nil {
				return nil
			}
			return c
		},
	}
}

func (it *Interp) invokeByName(receiver *rtdata.Object, methodName, descriptor string, args []rtdata.Value) rtdata.MethodResult {
	if receiver == nil {
		return rtdata.MachineError(fmt.Errorf("invoke %s%s on null receiver", methodName, descriptor))
	}
	method := lookupVirtual(receiver.Class, methodName, descriptor)
	if method == nil {
		return rtdata.MachineError(fmt.Errorf("no method %s%s found on %s", methodName, descriptor, receiver.Class.Name))
	}
	full := append([]rtdata.Value{rtdata.RefValue(receiver)}, args...)
	return it.ExecuteMethod(receiver.Class, method, full, nil)
}

func (it *Interp) runClinit(h *heap.Heap, class *rtdata.Class) rtdata.MethodResult {
	method := class.FindMethod("<clinit>", "()V")
	if method == nil {
		return rtdata.Finish()
	}
	return it.ExecuteMethod(class, method, nil, nil)
}

// ExecuteMethod dispatches a method call by its CodeKind, producing a
// tagged MethodResult.
func (it *Interp) ExecuteMethod(class *rtdata.Class, method *rtdata.MethodDesc, args []rtdata.Value, callerTrace []rtdata.StackTraceEntry) rtdata.MethodResult {
	it.depth++
	defer func() { it.depth-- }()
	if it.depth > maxCallDepth {
		return rtdata.MachineError(fmt.Errorf("StackOverflowError: call depth exceeded %d", maxCallDepth))
	}

	switch method.CodeKind {
	case rtdata.CodeNative:
		owner := class.Name
		args0 := args
		if !method.Static && len(args0) > 0 {
			// Instance native calls keep the receiver as args[0], matching
			// the boxed-type/string shims' expectations.
		}
		return native.Dispatch(it.nativeContext(), owner, method.Name, method.Descriptor, args0)
	case rtdata.CodeAbstract:
		return rtdata.MachineError(fmt.Errorf("cannot invoke abstract method %s.%s%s", class.Name, method.Name, method.Descriptor))
	default:
		return it.run(class, method, args, callerTrace)
	}
}

type execState struct {
	it     *Interp
	class  *rtdata.Class
	method *rtdata.MethodDesc
	frame  *rtdata.Frame
}

func (it *Interp) run(class *rtdata.Class, method *rtdata.MethodDesc, args []rtdata.Value, callerTrace []rtdata.StackTraceEntry) rtdata.MethodResult {
	// Arguments fill the locals in slot order; a Long/Double argument takes
	// two slots, the upper one holding the Second marker.
	locals := make([]rtdata.Value, method.MaxLocals)
	slot := 0
	for _, a := range args {
		if slot >= len(locals) {
			break
		}
		locals[slot] = a
		slot++
		if a.IsCategory2() && slot < len(locals) {
			locals[slot] = rtdata.SecondValue()
			slot++
		}
	}
	frame := rtdata.NewFrame(method, class, locals, callerTrace)
	st := &execState{it: it, class: class, method: method, frame: frame}

	for {
		if frame.PC < 0 || frame.PC >= len(method.Instructions) {
			return rtdata.MachineError(fmt.Errorf("PC %d out of range in %s.%s%s", frame.PC, class.Name, method.Name, method.Descriptor))
		}
		inst := method.Instructions[frame.PC]
		frame.SetCurrentLine(method.LineForOffset(inst.Offset))

		result, control := st.step(inst)
		switch control {
		case controlReturn:
			return result
		case controlThrow:
			if handled, newPC := st.tryHandle(inst.Offset, result.Exception); handled {
				frame.SetSP(0)
				frame.Push(rtdata.RefValue(result.Exception))
				frame.PC = newPC
				continue
			}
			result.Trace = frame.Trace
			return result
		case controlJump:
			continue // PC already updated by step
		case controlNext:
			frame.PC++
		}
	}
}

type control int

const (
	controlNext control = iota
	controlJump
	controlReturn
	controlThrow
)

// tryHandle consults the method's exception table for a handler whose
// range covers the throwing instruction and whose catch type the
// exception is assignable to (§4.4, §12 — promoted to required).
func (st *execState) tryHandle(throwOffset int, exc *rtdata.Object) (bool, int) {
	for _, eh := range st.method.ExceptionHandlers {
		if throwOffset < eh.StartPC || throwOffset >= eh.EndPC {
			continue
		}
		if !eh.IsAny && !(exc != nil && exc.Class != nil && eh.CatchType.Kind == rtdata.MCLinked &&
			exc.Class.AssignableTo(eh.CatchType.Class)) {
			continue
		}
		idx := st.method.OffsetToIndex(eh.HandlerPC)
		if idx >= 0 {
			return true, idx
		}
	}
	return false, 0
}

func throwValue(exc *rtdata.Object) rtdata.MethodResult {
	return rtdata.Throw(nil, exc)
}

func isNaN32(f float32) bool { return math.IsNaN(float64(f)) }
func isNaN64(f float64) bool { return math.IsNaN(f) }
