package rtdata

import "testing"

func TestNewObjectZeroesDeclaredFields(t *testing.T) {
	super := &Class{
		Name: "Super",
		InstanceFields: []*FieldDesc{
			{Name: "count", Type: Linked(&Class{Descriptor: "I"})},
		},
	}
	class := &Class{
		Name:  "Sub",
		Super: Linked(super),
		InstanceFields: []*FieldDesc{
			{Name: "name", Type: Linked(&Class{Descriptor: "Ljava/lang/String;"})},
		},
	}

	obj := NewObject(class, 1)
	if got := obj.GetField("count"); got.Kind != KindInt || got.I32 != 0 {
		t.Errorf("GetField(count) = %+v, want zero int", got)
	}
	if got := obj.GetField("name"); !got.IsNull() {
		t.Errorf("GetField(name) = %+v, want null reference", got)
	}
}

func TestObjectFieldSetGet(t *testing.T) {
	obj := NewObject(&Class{Name: "Plain"}, 1)
	obj.SetField("x", IntValue(5))
	if got := obj.GetField("x"); got.I32 != 5 {
		t.Errorf("GetField(x) = %v, want 5", got)
	}
}

func TestObjectFieldAbsentReturnsZeroValue(t *testing.T) {
	obj := NewObject(&Class{Name: "Plain"}, 1)
	got := obj.GetField("never_declared")
	if got.Kind != KindInt || got.I32 != 0 {
		t.Errorf("GetField on an undeclared key = %+v, want the zero Value", got)
	}
}

func TestArrayObjectElementsZeroedAndMutable(t *testing.T) {
	component := Linked(&Class{Descriptor: "I"})
	arr := NewArrayObject(&Class{Descriptor: "[I"}, 1, component, 3)
	if got := arr.ArrayLength(); got != 3 {
		t.Fatalf("ArrayLength() = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		if got := arr.GetElement(i); got.I32 != 0 {
			t.Errorf("GetElement(%d) = %v, want zero int", i, got)
		}
	}
	arr.SetElement(1, IntValue(9))
	if got := arr.GetElement(1); got.I32 != 9 {
		t.Errorf("GetElement(1) after set = %v, want 9", got)
	}
}
