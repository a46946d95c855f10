package native

import "github.com/daimatz/gojvm/pkg/rtdata"

// NativeInteger represents a java.lang.Integer, kept for the teacher-style
// unit tests in native_test.go; the native dispatch table (this file's
// init) boxes values as ordinary heap Objects with a single "value" field
// instead, so that boxed types flow through the same Value/Object plumbing
// as every other reference.
type NativeInteger struct {
	Value int32
}

// IntegerValueOf creates a NativeInteger (boxing).
func IntegerValueOf(v int32) *NativeInteger {
	return &NativeInteger{Value: v}
}

// IntegerIntValue returns the int32 value of a NativeInteger (unboxing).
func IntegerIntValue(ni *NativeInteger) int32 {
	return ni.Value
}

// box wraps a primitive Value in a fresh Object carrying it under "value",
// the shape every boxed-type shim below produces and reads back.
func box(ctx *Context, class *rtdata.Class, v rtdata.Value) rtdata.Value {
	obj := ctx.Heap.CreateNew(class)
	obj.SetField("value", v)
	return rtdata.RefValue(obj)
}

func unbox(v rtdata.Value) rtdata.Value {
	return v.Ref.GetField("value")
}

func init() {
	register("java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;", boxStatic("java/lang/Integer"))
	register("java/lang/Integer", "intValue", "()I", unboxInstance)
	register("java/lang/Integer", "compare", "(II)I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.IntValue(compareInt32(args[0].I32, args[1].I32)))
	})

	register("java/lang/Long", "valueOf", "(J)Ljava/lang/Long;", boxStatic("java/lang/Long"))
	register("java/lang/Long", "longValue", "()J", unboxInstance)

	register("java/lang/Float", "valueOf", "(F)Ljava/lang/Float;", boxStatic("java/lang/Float"))
	register("java/lang/Float", "floatValue", "()F", unboxInstance)

	register("java/lang/Double", "valueOf", "(D)Ljava/lang/Double;", boxStatic("java/lang/Double"))
	register("java/lang/Double", "doubleValue", "()D", unboxInstance)

	register("java/lang/Boolean", "valueOf", "(Z)Ljava/lang/Boolean;", boxStatic("java/lang/Boolean"))
	register("java/lang/Boolean", "booleanValue", "()Z", unboxInstance)

	register("java/lang/Character", "valueOf", "(C)Ljava/lang/Character;", boxStatic("java/lang/Character"))
	register("java/lang/Character", "charValue", "()C", unboxInstance)

	register("java/lang/Byte", "valueOf", "(B)Ljava/lang/Byte;", boxStatic("java/lang/Byte"))
	register("java/lang/Byte", "byteValue", "()B", unboxInstance)

	register("java/lang/Short", "valueOf", "(S)Ljava/lang/Short;", boxStatic("java/lang/Short"))
	register("java/lang/Short", "shortValue", "()S", unboxInstance)
}

// boxStatic returns a native Func that boxes its single static argument
// into a fresh instance of the named boxed-type class.
func boxStatic(className string) Func {
	return func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(box(ctx, ctx.ClassByName(className), args[0]))
	}
}

func unboxInstance(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
	return rtdata.FinishWithValue(unbox(args[0]))
}

func compareInt32(a, b int32) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
