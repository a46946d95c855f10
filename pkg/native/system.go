package native

import (
	"fmt"
	"io"
	"time"

	"github.com/daimatz/gojvm/pkg/rtdata"
)

// PrintStream represents a java.io.PrintStream. System.out/System.err are
// bound to one of these the first time getstatic resolves them
// (pkg/interp's systemOutObject/systemErrObject); the native dispatch
// table below calls into whichever instance the receiver's identity was
// constructed with.
type PrintStream struct {
	Writer io.Writer
}

var printStreams = make(map[*rtdata.Object]*PrintStream)

// BindPrintStream associates a synthesized PrintStream object (e.g. the
// static field java/lang/System.out) with a concrete writer.
func BindPrintStream(obj *rtdata.Object, ps *PrintStream) {
	printStreams[obj] = ps
}

// Println prints a value followed by a newline.
func (ps *PrintStream) Println(args ...interface{}) {
	if len(args) == 0 {
		fmt.Fprintln(ps.Writer)
		return
	}
	fmt.Fprintln(ps.Writer, args[0])
}

func printStreamOf(obj *rtdata.Object) *PrintStream {
	if ps, ok := printStreams[obj]; ok {
		return ps
	}
	ps := &PrintStream{Writer: io.Discard}
	printStreams[obj] = ps
	return ps
}

func init() {
	register("java/io/PrintStream", "println", "(Ljava/lang/String;)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		printStreamOf(args[0].Ref).Println(GoString(args[1].Ref))
		return rtdata.Finish()
	})
	register("java/io/PrintStream", "println", "(I)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		printStreamOf(args[0].Ref).Println(intToString(args[1].I32))
		return rtdata.Finish()
	})
	register("java/io/PrintStream", "println", "(J)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		printStreamOf(args[0].Ref).Println(longToString(args[1].I64))
		return rtdata.Finish()
	})
	register("java/io/PrintStream", "println", "()V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		printStreamOf(args[0].Ref).Println()
		return rtdata.Finish()
	})
	register("java/io/PrintStream", "print", "(Ljava/lang/String;)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		fmt.Fprint(printStreamOf(args[0].Ref).Writer, GoString(args[1].Ref))
		return rtdata.Finish()
	})

	register("java/lang/System", "currentTimeMillis", "()J", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.LongValue(time.Now().UnixMilli()))
	})
	register("java/lang/System", "nanoTime", "()J", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.LongValue(time.Now().UnixNano()))
	})
	register("java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		if args[0].IsNull() {
			return rtdata.FinishWithValue(rtdata.IntValue(0))
		}
		return rtdata.FinishWithValue(rtdata.IntValue(args[0].Ref.IdentityHash))
	})
	register("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		if err := arraycopy(args[0].Ref, int(args[1].I32), args[2].Ref, int(args[3].I32), int(args[4].I32)); err != nil {
			return rtdata.MachineError(err)
		}
		return rtdata.Finish()
	})

	register("java/lang/Object", "hashCode", "()I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.IntValue(args[0].Ref.IdentityHash))
	})
	register("java/lang/Object", "equals", "(Ljava/lang/Object;)Z", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(boolValue(args[0].Ref == args[1].Ref))
	})
	register("java/lang/Object", "toString", "()Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		name := "java/lang/Object"
		if args[0].Ref != nil && args[0].Ref.Class != nil {
			name = args[0].Ref.Class.Name
		}
		return rtdata.FinishWithValue(newString(ctx, fmt.Sprintf("%s@%x", name, args[0].Ref.IdentityHash)))
	})
	register("java/lang/Object", "getClass", "()Ljava/lang/Class;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		descriptor := args[0].Ref.Class.Descriptor
		return rtdata.FinishWithValue(rtdata.RefValue(ctx.Heap.NewJavaClassObject(ctx.ClassClass(), descriptor)))
	})
}

func arraycopy(src *rtdata.Object, srcPos int, dst *rtdata.Object, dstPos, length int) error {
	if src == nil || dst == nil {
		return fmt.Errorf("NullPointerException: arraycopy on null array")
	}
	if srcPos < 0 || dstPos < 0 || length < 0 ||
		srcPos+length > src.ArrayLength() || dstPos+length > dst.ArrayLength() {
		return fmt.Errorf("ArrayIndexOutOfBoundsException: arraycopy bounds")
	}
	if src == dst && dstPos > srcPos {
		for i := length - 1; i >= 0; i-- {
			dst.SetElement(dstPos+i, src.GetElement(srcPos+i))
		}
		return nil
	}
	for i := 0; i < length; i++ {
		dst.SetElement(dstPos+i, src.GetElement(srcPos+i))
	}
	return nil
}
