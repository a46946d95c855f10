package linker

import (
	"testing"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// buildMinimalClassFile constructs a decoded classfile for a single,
// super-less class (standing in for java/lang/Object) with one static int
// field, one instance long field, one method with a trivial (empty) Code
// attribute and one abstract method, all using primitive descriptors so linking never needs a byte loader.
func buildMinimalClassFile(name string) *classfile.ClassFile {
	pool := []classfile.ConstantPoolEntry{
		&classfile.ConstantUtf8{Value: name},
		&classfile.ConstantClass{NameIndex: 0},
	}
	return &classfile.ClassFile{
		ConstantPool: pool,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    1,
		SuperClass:   0,
		Fields: []classfile.FieldInfo{
			{AccessFlags: classfile.AccStatic | classfile.AccPublic, Name: "counter", Descriptor: "I"},
			{AccessFlags: classfile.AccPrivate, Name: "value", Descriptor: "J"},
		},
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccPublic,
				Name:        "get",
				Descriptor:  "()I",
				Code: &classfile.CodeAttribute{
					MaxStack:  1,
					MaxLocals: 1,
				},
			},
			{
				AccessFlags: classfile.AccPublic | classfile.AccAbstract,
				Name:        "hook",
				Descriptor:  "()V",
			},
		},
	}
}

func TestLinkSplitsStaticAndInstanceFields(t *testing.T) {
	h := heap.New(nil)
	cf := buildMinimalClassFile("test/Foo")

	class, err := Link(h, "test-loader", cf)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	if len(class.StaticFields) != 1 || class.StaticFields[0].Field.Name != "counter" {
		t.Fatalf("StaticFields = %+v, want exactly [counter]", class.StaticFields)
	}
	if len(class.InstanceFields) != 1 || class.InstanceFields[0].Name != "value" {
		t.Fatalf("InstanceFields = %+v, want exactly [value]", class.InstanceFields)
	}
	if got := class.StaticFields[0].Get(); got.Kind != rtdata.KindInt || got.I32 != 0 {
		t.Errorf("counter's initial value = %+v, want zero int", got)
	}
}

func TestLinkClassifiesMethodCodeKind(t *testing.T) {
	h := heap.New(nil)
	cf := buildMinimalClassFile("test/Foo")

	class, err := Link(h, "test-loader", cf)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	get := class.FindMethod("get", "()I")
	if get == nil {
		t.Fatal("FindMethod(get) = nil")
	}
	if get.CodeKind != rtdata.CodeBytecode {
		t.Errorf("get.CodeKind = %v, want CodeBytecode", get.CodeKind)
	}
	if get.MaxStack != 1 || get.MaxLocals != 1 {
		t.Errorf("get max stack/locals = %d/%d, want 1/1", get.MaxStack, get.MaxLocals)
	}

	hook := class.FindMethod("hook", "()V")
	if hook == nil {
		t.Fatal("FindMethod(hook) = nil")
	}
	if hook.CodeKind != rtdata.CodeAbstract {
		t.Errorf("hook.CodeKind = %v, want CodeAbstract", hook.CodeKind)
	}
}

func TestLinkSetsNameAndDescriptor(t *testing.T) {
	h := heap.New(nil)
	cf := buildMinimalClassFile("test/Foo")

	class, err := Link(h, "test-loader", cf)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if class.Name != "test/Foo" {
		t.Errorf("class.Name = %q, want test/Foo", class.Name)
	}
	if class.Descriptor != "Ltest/Foo;" {
		t.Errorf("class.Descriptor = %q, want Ltest/Foo;", class.Descriptor)
	}
	if class.Super.Kind != rtdata.MCLinked || class.Super.Class != nil {
		t.Errorf("class.Super = %+v, want the zero (java/lang/Object) MaybeClass", class.Super)
	}
}
