package native

import (
	"sort"
	"strings"

	"github.com/daimatz/gojvm/pkg/rtdata"
)

func init() {
	register("java/util/Collections", "sort", "(Ljava/util/List;)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return sortList(ctx, args[0].Ref, rtdata.Value{})
	})
	register("java/util/Collections", "sort", "(Ljava/util/List;Ljava/util/Comparator;)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return sortList(ctx, args[0].Ref, args[1])
	})
	register("java/util/ArrayList", "sort", "(Ljava/util/Comparator;)V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		var cmp rtdata.Value
		if len(args) > 1 {
			cmp = args[1]
		}
		return sortList(ctx, args[0].Ref, cmp)
	})
}

// sortList sorts the backing "elementData" array field of a list-shaped
// object, up to its "size" field, stably, by natural ordering or by a
// supplied Comparator (§12's restored ArrayList/Collections shims).
func sortList(ctx *Context, list *rtdata.Object, comparator rtdata.Value) rtdata.MethodResult {
	elemData := list.GetField("elementData")
	if elemData.Ref == nil {
		return rtdata.MachineError(listShapeError("elementData"))
	}
	arr := elemData.Ref
	size := int(list.GetField("size").I32)
	if size > arr.ArrayLength() {
		size = arr.ArrayLength()
	}

	elems := make([]rtdata.Value, size)
	for i := range elems {
		elems[i] = arr.GetElement(i)
	}

	var sortErr error
	less := func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		if comparator.Kind == rtdata.KindReference && comparator.Ref != nil {
			result, err := invokeComparator(ctx, comparator, elems[i], elems[j])
			if err != nil {
				sortErr = err
				return false
			}
			return result < 0
		}
		return compareNatural(elems[i], elems[j]) < 0
	}
	sort.SliceStable(elems, less)
	if sortErr != nil {
		return rtdata.MachineError(sortErr)
	}

	for i, v := range elems {
		arr.SetElement(i, v)
	}
	if mc := list.GetField("modCount"); mc.Kind == rtdata.KindInt {
		list.SetField("modCount", rtdata.IntValue(mc.I32+1))
	}
	return rtdata.Finish()
}

func listShapeError(field string) error {
	return &listShapeErr{field}
}

type listShapeErr struct{ field string }

func (e *listShapeErr) Error() string {
	return "list-shaped native receiver is missing field " + e.field
}

// compareNatural implements Comparable-style ordering for the handful of
// boxed/string types the core's native shims need to sort.
func compareNatural(a, b rtdata.Value) int {
	if a.Kind == rtdata.KindReference && a.Ref != nil && b.Kind == rtdata.KindReference && b.Ref != nil {
		if a.Ref.Class != nil && a.Ref.Class.Name == "java/lang/String" {
			return strings.Compare(GoString(a.Ref), GoString(b.Ref))
		}
		av, aok := a.Ref.Fields["value"]
		bv, bok := b.Ref.Fields["value"]
		if aok && bok {
			return compareScalar(av, bv)
		}
	}
	return 0
}

func compareScalar(a, b rtdata.Value) int {
	switch a.Kind {
	case rtdata.KindInt:
		return int(compareInt32(a.I32, b.I32))
	case rtdata.KindLong:
		return compareOrdered(a.I64, b.I64)
	case rtdata.KindFloat:
		return compareOrdered(a.F32, b.F32)
	case rtdata.KindDouble:
		return compareOrdered(a.F64, b.F64)
	}
	return 0
}

func compareOrdered[T int64 | float32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// invokeComparator re-enters the interpreter to call a Comparator's
// compare(Object, Object) via the Context's Invoke callback, which looks
// compare up on the comparator object's class and its super-classes. A
// lambda proxy synthesized by invokedynamic is not routed to its lambda
// target here: its class is the functional interface itself, so compare
// resolves to the interface's abstract method and the call ends in a
// machine error.
func invokeComparator(ctx *Context, comparator, a, b rtdata.Value) (int32, error) {
	result := ctx.Invoke(comparator.Ref, "compare", "(Ljava/lang/Object;Ljava/lang/Object;)I", []rtdata.Value{a, b})
	switch result.Kind {
	case rtdata.ResultFinishWithValue:
		return result.Value.I32, nil
	case rtdata.ResultMachineError:
		return 0, result.Err
	default:
		return 0, listShapeError("compare() produced no value")
	}
}
