// Package native implements the external native-method dispatch table
// (§6): owner + name + descriptor to a Go function producing a
// MethodResult. It restores the teacher's boxed-type, collection, and
// string shims (originally inline in pkg/vm/vm.go) as standalone native
// entries, plus the platform shims (Object/System/PrintStream) the teacher
// already had.
package native

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// InvokeFunc re-enters virtual dispatch from native code, e.g. to call a
// Comparator's compare method. Implemented by pkg/interp and supplied via
// Context.
type InvokeFunc func(receiver *rtdata.Object, methodName, descriptor string, args []rtdata.Value) rtdata.MethodResult

// Context is the per-call environment handed to every native function.
type Context struct {
	Heap *heap.Heap
	Invoke InvokeFunc

	// StringClass and ClassClass are the linked java/lang/String and
	// java/lang/Class handles, resolved once by the caller so synthesized
	// objects carry a real class reference.
	StringClass func() *rtdata.Class
	ClassClass  func() *rtdata.Class

	// ClassByName resolves any other class by internal name (e.g.
	// "java/lang/Integer"), loading and linking it if needed, or returns
	// nil if that fails; used by the boxed-type shims to stamp a real
	// Class onto the Object they allocate.
	ClassByName func(name string) *rtdata.Class
}

// Func is one native method implementation. args[0] is the receiver for
// instance methods; static methods receive only their declared parameters.
type Func func(ctx *Context, args []rtdata.Value) rtdata.MethodResult

var table = make(map[uint64]Func)

func key(owner, name, descriptor string) uint64 {
	return xxhash.Sum64String(owner + "." + name + descriptor)
}

func register(owner, name, descriptor string, fn Func) {
	table[key(owner, name, descriptor)] = fn
}

// Lookup finds the native implementation for owner.name+descriptor, if
// any is registered.
func Lookup(owner, name, descriptor string) (Func, bool) {
	fn, ok := table[key(owner, name, descriptor)]
	return fn, ok
}

// Dispatch is the single entry point described in spec.md §6: owner, name,
// descriptor, and argument values in, a MethodResult out. An unregistered
// native method is a machine error, not a panic, matching the interpreter's
// error-reporting contract for every other dispatch failure.
//
// registerNatives()V and initIDs()V are no-oped for any owner before the
// table lookup: real JDK classes loaded from java.base.jmod routinely call
// one or both from their <clinit>, and since this core never runs the
// JDK's own native VM-bootstrap that would normally back them, leaving
// them unregistered would fail class initialization for nearly every core
// class. Matches the teacher's own generic fallback for the same pattern.
func Dispatch(ctx *Context, owner, name, descriptor string, args []rtdata.Value) rtdata.MethodResult {
	if descriptor == "()V" && (name == "registerNatives" || name == "initIDs") {
		return rtdata.Finish()
	}
	fn, ok := Lookup(owner, name, descriptor)
	if !ok {
		return rtdata.MachineError(fmt.Errorf("no native method registered for %s.%s%s", owner, name, descriptor))
	}
	return fn(ctx, args)
}
