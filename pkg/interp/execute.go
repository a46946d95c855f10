package interp

import (
	"fmt"

	"github.com/daimatz/gojvm/pkg/rtdata"
)

// Execute resolves mainClassName under the bootstrap loader, builds a
// java.lang.String[] out of args, and runs its
// public static void main(String[]) method, generalizing
// daimatz-gojvm/pkg/vm/vm.go's Execute (which always passed a null args
// array) to actually thread the program's command-line arguments through.
func (it *Interp) Execute(mainClassName string, args []string) error {
	class, err := it.resolveClassByName(mainClassName)
	if err != nil {
		return fmt.Errorf("loading %s: %w", mainClassName, err)
	}
	if err := it.Heap.EnsureInitialized(class); err != nil {
		return fmt.Errorf("initializing %s: %w", mainClassName, err)
	}

	method := class.FindMethod("main", "([Ljava/lang/String;)V")
	if method == nil {
		return fmt.Errorf("class %s has no main([Ljava/lang/String;)V method", mainClassName)
	}

	argsArray, err := it.buildStringArray(args)
	if err != nil {
		return fmt.Errorf("building main args: %w", err)
	}

	result := it.ExecuteMethod(class, method, []rtdata.Value{rtdata.RefValue(argsArray)}, nil)
	switch result.Kind {
	case rtdata.ResultFinish, rtdata.ResultFinishWithValue:
		return nil
	case rtdata.ResultThrow:
		return it.uncaughtException(result)
	default:
		return result.Err
	}
}

func (it *Interp) buildStringArray(args []string) (*rtdata.Object, error) {
	mc, err := it.Heap.GetOrCreateClass("[Ljava/lang/String;", BootstrapLoader)
	if err != nil {
		return nil, err
	}
	arrClass, err := it.Heap.EnsureLoaded(mc, BootstrapLoader)
	if err != nil {
		return nil, err
	}
	arr := it.Heap.CreateNewArrayOf(arrClass, len(args))
	for i, a := range args {
		arr.SetElement(i, rtdata.RefValue(it.Heap.NewJavaString(it.stringClass, a)))
	}
	return arr, nil
}

// uncaughtException renders an uncaught Throwable the way a JVM's default
// handler would: the exception class name, its "message" field if set, and
// the captured call chain.
func (it *Interp) uncaughtException(result rtdata.MethodResult) error {
	exc := result.Exception
	if exc == nil || exc.Class == nil {
		return fmt.Errorf("uncaught exception (no detail available)")
	}
	msg := "Exception in thread \"main\" " + exc.Class.Name
	if m := exc.GetField("message"); m.Kind == rtdata.KindReference && !m.IsNull() {
		msg += ": " + it.stringify(m)
	}
	for _, frame := range result.Trace {
		if frame.LineNumber > 0 {
			msg += fmt.Sprintf("\n\tat %s.%s(line %d)", frame.ClassName, frame.MethodName, frame.LineNumber)
		} else {
			msg += fmt.Sprintf("\n\tat %s.%s", frame.ClassName, frame.MethodName)
		}
	}
	return fmt.Errorf("%s", msg)
}
