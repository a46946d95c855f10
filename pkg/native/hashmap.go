package native

import "github.com/daimatz/gojvm/pkg/rtdata"

// nativeKey converts a boxed or primitive argument into a Go-comparable
// map key: boxed Integer/Long/etc unbox to their primitive, a String
// object unboxes to its Go string, everything else keys by Object
// identity.
func nativeKey(v rtdata.Value) interface{} {
	if v.Kind != rtdata.KindReference || v.Ref == nil {
		return v
	}
	if v.Ref.Class != nil && v.Ref.Class.Name == "java/lang/String" {
		return GoString(v.Ref)
	}
	if boxed, ok := v.Ref.Fields["value"]; ok && len(v.Ref.Fields) == 1 {
		return boxed
	}
	return v.Ref
}

var hashMaps = make(map[*rtdata.Object]*NativeHashMap)

func init() {
	register("java/util/HashMap", "<init>", "()V", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		hashMaps[args[0].Ref] = NewHashMap()
		return rtdata.Finish()
	})
	register("java/util/HashMap", "get", "(Ljava/lang/Object;)Ljava/lang/Object;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		v := hashMapOf(args[0].Ref).Get(nativeKey(args[1]))
		return rtdata.FinishWithValue(toValue(v))
	})
	register("java/util/HashMap", "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		old := hashMapOf(args[0].Ref).Put(nativeKey(args[1]), args[2])
		return rtdata.FinishWithValue(toValue(old))
	})
	register("java/util/HashMap", "size", "()I", func(ctx *Context, args []rtdata.Value) rtdata.MethodResult {
		return rtdata.FinishWithValue(rtdata.IntValue(int32(len(hashMapOf(args[0].Ref).Data))))
	})
}

func hashMapOf(obj *rtdata.Object) *NativeHashMap {
	hm, ok := hashMaps[obj]
	if !ok {
		hm = NewHashMap()
		hashMaps[obj] = hm
	}
	return hm
}

func toValue(v interface{}) rtdata.Value {
	if v == nil {
		return rtdata.NullValue()
	}
	if rv, ok := v.(rtdata.Value); ok {
		return rv
	}
	return rtdata.NullValue()
}

// NativeHashMap represents a java.util.HashMap.
type NativeHashMap struct {
	Data map[interface{}]interface{}
}

// NewNativeHashMap creates a new NativeHashMap.
func NewNativeHashMap() *NativeHashMap {
	return &NativeHashMap{Data: make(map[interface{}]interface{})}
}

// NewHashMap is an alias for NewNativeHashMap (used by tests).
func NewHashMap() *NativeHashMap {
	return NewNativeHashMap()
}

// Get returns the value for the given key.
func (m *NativeHashMap) Get(key interface{}) interface{} {
	return m.Data[key]
}

// Put stores a key-value pair and returns the previous value.
func (m *NativeHashMap) Put(key, value interface{}) interface{} {
	old := m.Data[key]
	m.Data[key] = value
	return old
}
