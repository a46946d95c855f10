package interp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/linker"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// fakeByteLoader serves a fixed set of raw classfile bytes by name,
// standing in for a real jmod/directory loader under the bootstrap loader.
type fakeByteLoader map[string][]byte

func (f fakeByteLoader) LoadBytes(name string) ([]byte, error) {
	if b, ok := f[name]; ok {
		return b, nil
	}
	return nil, errClassNotFound(name)
}

type errClassNotFound string

func (e errClassNotFound) Error() string { return "class not found: " + string(e) }

// buildSumClass hand-assembles a minimal classfile: a class extending
// java/lang/Object with one static method summing 1..n via a loop, the same
// fixture shape pkg/classfile's own parser tests use for instruction
// decoding.
func buildSumClass() []byte {
	var buf bytes.Buffer
	u16 := func(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
	utf8 := func(s string) []byte { return append(u16(uint16(len(s))), []byte(s)...) }

	type cpEntry struct {
		tag  uint8
		data []byte
	}
	entries := []cpEntry{
		{classfile.TagUtf8, utf8("Sum")},
		{classfile.TagClass, u16(1)},
		{classfile.TagUtf8, utf8("java/lang/Object")},
		{classfile.TagClass, u16(3)},
		{classfile.TagUtf8, utf8("sum")},
		{classfile.TagUtf8, utf8("(I)I")},
		{classfile.TagUtf8, utf8("Code")},
	}

	buf.Write([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	buf.Write(u16(0))
	buf.Write(u16(61))
	buf.Write(u16(uint16(len(entries) + 1)))
	for _, e := range entries {
		buf.WriteByte(e.tag)
		buf.Write(e.data)
	}

	buf.Write(u16(classfile.AccPublic | classfile.AccSuper))
	buf.Write(u16(2)) // this_class
	buf.Write(u16(4)) // super_class
	buf.Write(u16(0)) // interfaces_count
	buf.Write(u16(0)) // fields_count

	buf.Write(u16(1)) // methods_count
	buf.Write(u16(classfile.AccPublic | classfile.AccStatic))
	buf.Write(u16(5)) // name_index "sum"
	buf.Write(u16(6)) // descriptor_index "(I)I"
	buf.Write(u16(1)) // attributes_count

	code := []byte{
		classfile.OpIconst0, classfile.OpIstore1, classfile.OpIconst1, classfile.OpIstore2,
		classfile.OpGoto, 0x00, 0x0A,
		classfile.OpIload1, classfile.OpIload2, classfile.OpIadd, classfile.OpIstore1, classfile.OpIinc, 0x02, 0x01,
		classfile.OpIload2, classfile.OpIload0, classfile.OpIfIcmple, 0xFF, 0xF7,
		classfile.OpIload1, classfile.OpIreturn,
	}

	buf.Write(u16(7)) // attribute_name_index "Code"
	var codeAttr bytes.Buffer
	codeAttr.Write(u16(2)) // max_stack
	codeAttr.Write(u16(3)) // max_locals
	codeLen := make([]byte, 4)
	binary.BigEndian.PutUint32(codeLen, uint32(len(code)))
	codeAttr.Write(codeLen)
	codeAttr.Write(code)
	codeAttr.Write(u16(0)) // exception_table_length
	codeAttr.Write(u16(0)) // attributes_count
	attrLen := make([]byte, 4)
	binary.BigEndian.PutUint32(attrLen, uint32(codeAttr.Len()))
	buf.Write(attrLen)
	buf.Write(codeAttr.Bytes())

	buf.Write(u16(0)) // class attributes_count

	return buf.Bytes()
}

func newWiredHeap(t *testing.T, classes map[string][]byte) (*heap.Heap, *Interp) {
	t.Helper()
	h := heap.New(nil)
	h.SetLinkFunc(linker.Link)
	h.RegisterLoader(BootstrapLoader, fakeByteLoader(classes))
	return h, New(h)
}

func TestExecuteMethodSumOfN(t *testing.T) {
	h, it := newWiredHeap(t, map[string][]byte{"Sum": buildSumClass()})

	mc, err := h.GetOrCreateClass("Sum", BootstrapLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass: %v", err)
	}
	class, err := h.EnsureLoaded(mc, BootstrapLoader)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}

	method := class.FindMethod("sum", "(I)I")
	if method == nil {
		t.Fatal("sum(I)I not found on linked class")
	}

	result := it.ExecuteMethod(class, method, []rtdata.Value{rtdata.IntValue(5)}, nil)
	if result.Kind != rtdata.ResultFinishWithValue {
		t.Fatalf("ExecuteMethod result kind = %v, want ResultFinishWithValue (err=%v)", result.Kind, result.Err)
	}
	if result.Value.I32 != 15 {
		t.Errorf("sum(5) = %d, want 15", result.Value.I32)
	}
}

func TestExecuteMethodRejectsAbstractDispatch(t *testing.T) {
	h, it := newWiredHeap(t, nil)
	class := &rtdata.Class{Name: "Abstract"}
	method := &rtdata.MethodDesc{Name: "hook", Descriptor: "()V", CodeKind: rtdata.CodeAbstract}

	result := it.ExecuteMethod(class, method, nil, nil)
	if result.Kind != rtdata.ResultMachineError {
		t.Fatalf("ExecuteMethod on an abstract method = %v, want ResultMachineError", result.Kind)
	}
	_ = h
}
