package native

import (
	"strings"
	"unicode/utf16"

	"github.com/daimatz/gojvm/pkg/rtdata"
)

// GoString decodes a synthesized java.lang.String object's backing byte
// array (big-endian UTF-16, per the heap's NewJavaString) back into a Go
// string. Stdlib unicode/utf16 is used here deliberately: no pack library
// offers a UTF-16 codec, and the classfile decoder already hand-rolls its
// own modified-UTF-8 codec for the analogous reason (DESIGN.md).
func GoString(obj *rtdata.Object) string {
	if obj == nil {
		return "null"
	}
	arr := obj.GetField("value").Ref
	if arr == nil {
		return ""
	}
	n := arr.ArrayLength()
	units := make([]uint16, n/2)
	for i := range units {
		hi := byte(arr.GetElement(2 * i).I32)
		lo := byte(arr.GetElement(2*i + 1).I32)
		units[i] = uint16(hi)<<8 | uint16(lo)
	}
	return string(utf16.Decode(units))
}

func newString(ctx *Context, s string) rtdata.Value {
	return rtdata.RefValue(ctx.Heap.NewJavaString(ctx.StringClass(), s))
}

func init() {
	register("java/lang/String", "length", "()I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.IntValue(int32(len([]rune(GoString(args[0].Ref))))))
	})
	register("java/lang/String", "charAt", "(I)C", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		runes := []rune(GoString(args[0].Ref))
		idx := int(args[1].I32)
		if idx < 0 || idx >= len(runes) {
			return rtdata.MachineError(stringIndexOOB(idx))
		}
		return rtdata.FinishWithValue(rtdata.IntValue(int32(runes[idx])))
	})
	register("java/lang/String", "equals", "(Ljava/lang/Object;)Z", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		other := args[1].Ref
		eq := other != nil && GoString(args[0].Ref) == GoString(other)
		return rtdata.FinishWithValue(boolValue(eq))
	})
	register("java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(newString(ctx, GoString(args[0].Ref)+GoString(args[1].Ref)))
	})
	register("java/lang/String", "substring", "(I)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		runes := []rune(GoString(args[0].Ref))
		start := int(args[1].I32)
		if start < 0 || start > len(runes) {
			return rtdata.MachineError(stringIndexOOB(start))
		}
		return rtdata.FinishWithValue(newString(ctx, string(runes[start:])))
	})
	register("java/lang/String", "substring", "(II)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		runes := []rune(GoString(args[0].Ref))
		start, end := int(args[1].I32), int(args[2].I32)
		if start < 0 || end > len(runes) || start > end {
			return rtdata.MachineError(stringIndexOOB(start))
		}
		return rtdata.FinishWithValue(newString(ctx, string(runes[start:end])))
	})
	register("java/lang/String", "hashCode", "()I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.IntValue(javaStringHashCode(GoString(args[0].Ref))))
	})
	register("java/lang/String", "toString", "()Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(args[0])
	})
	register("java/lang/String", "isEmpty", "()Z", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(boolValue(GoString(args[0].Ref) == ""))
	})

	register("java/lang/String", "valueOf", "(I)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(newString(ctx, intToString(args[0].I32)))
	})
	register("java/lang/String", "valueOf", "(J)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(newString(ctx, longToString(args[0].I64)))
	})
	register("java/lang/String", "valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		if args[0].IsNull() {
			return rtdata.FinishWithValue(newString(ctx, "null"))
		}
		return rtdata.FinishWithValue(newString(ctx, GoString(args[0].Ref)))
	})

	registerStringBuilder()
}

func javaStringHashCode(s string) int32 {
	var h int32
	for _, r := range s {
		h = 31*h + r
	}
	return h
}

func stringIndexOOB(index int) error {
	return indexOutOfBounds("String", index)
}

func registerStringBuilder() {
	register("java/lang/StringBuilder", "<init>", "()V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		args[0].Ref.SetField("__sb", rtdata.IntValue(0)) // marker; contents held in a parallel Go-side builder
		sbBuilders.set(args[0].Ref, &strings.Builder{})
		return rtdata.Finish()
	})
	register("java/lang/StringBuilder", "append", "(Ljava/lang/String;)Ljava/lang/StringBuilder;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		sbBuilders.get(args[0].Ref).WriteString(GoString(args[1].Ref))
		return rtdata.FinishWithValue(args[0])
	})
	register("java/lang/StringBuilder", "append", "(I)Ljava/lang/StringBuilder;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		sbBuilders.get(args[0].Ref).WriteString(intToString(args[1].I32))
		return rtdata.FinishWithValue(args[0])
	})
	register("java/lang/StringBuilder", "append", "(J)Ljava/lang/StringBuilder;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		sbBuilders.get(args[0].Ref).WriteString(longToString(args[1].I64))
		return rtdata.FinishWithValue(args[0])
	})
	register("java/lang/StringBuilder", "append", "(C)Ljava/lang/StringBuilder;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		sbBuilders.get(args[0].Ref).WriteRune(rune(args[1].I32))
		return rtdata.FinishWithValue(args[0])
	})
	register("java/lang/StringBuilder", "toString", "()Ljava/lang/String;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(newString(ctx, sbBuilders.get(args[0].Ref).String()))
	})
}

// sbBuilders backs StringBuilder instances with a real Go strings.Builder,
// keyed by object identity. A synthesized object has no room for a
// non-Value field, so the builder lives out-of-band the same way the
// method area keeps classfiles out-of-band from linked classes.
var sbBuilders = newBuilderRegistry()

type builderRegistry struct {
	m map[*rtdata.Object]*strings.Builder
}

func newBuilderRegistry() *builderRegistry {
	return &builderRegistry{m: make(map[*rtdata.Object]*strings.Builder)}
}

func (r *builderRegistry) set(obj *rtdata.Object, b *strings.Builder) { r.m[obj] = b }
func (r *builderRegistry) get(obj *rtdata.Object) *strings.Builder {
	b, ok := r.m[obj]
	if !ok {
		b = &strings.Builder{}
		r.m[obj] = b
	}
	return b
}
