// Package rtdata holds the shared runtime data model: operand-stack/local
// values, lazy type references, linked classes, heap objects, and
// invocation frames. It is the arena the method area (pkg/heap) and
// interpreter (pkg/interp) both operate on.
package rtdata

// Kind identifies the variant of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindLong
	KindFloat
	KindDouble
	KindReference
	// KindSecond is the marker slot that follows a Long or Double on the
	// operand stack and in locals (§4.4, kept explicit per the spec's
	// resolved open question: locally checkable push/pop contracts).
	KindSecond
)

// Value is one slot on the operand stack or in the local-variable array.
type Value struct {
	Kind Kind
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Ref  *Object // nil means the null reference
}

func IntValue(v int32) Value      { return Value{Kind: KindInt, I32: v} }
func LongValue(v int64) Value     { return Value{Kind: KindLong, I64: v} }
func FloatValue(v float32) Value  { return Value{Kind: KindFloat, F32: v} }
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, F64: v} }
func RefValue(ref *Object) Value  { return Value{Kind: KindReference, Ref: ref} }
func NullValue() Value            { return Value{Kind: KindReference, Ref: nil} }
func SecondValue() Value          { return Value{Kind: KindSecond} }

// IsCategory2 reports whether this value occupies two stack/local slots.
func (v Value) IsCategory2() bool { return v.Kind == KindLong || v.Kind == KindDouble }

// IsNull reports whether this is the null reference.
func (v Value) IsNull() bool { return v.Kind == KindReference && v.Ref == nil }

// ZeroValueForDescriptor returns the default value for a field of the given
// descriptor: Int 0 / Long 0 / Float 0.0 / Double 0.0 / Reference null.
func ZeroValueForDescriptor(descriptor string) Value {
	if len(descriptor) == 0 {
		return NullValue()
	}
	switch descriptor[0] {
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	case 'Z', 'B', 'C', 'S', 'I':
		return IntValue(0)
	default: // 'L', '['
		return NullValue()
	}
}
