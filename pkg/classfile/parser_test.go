package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMinimalClass hand-assembles a minimal valid classfile: one class
// "Sum" extending java/lang/Object, one public static method with the given
// name, descriptor and Code body, and no fields. pkg/interp's integration
// test builds its fixture in the same byte-literal style.
func buildMinimalClass(t *testing.T, methodName, methodDesc string, code []byte, maxStack, maxLocals uint16) []byte {
	t.Helper()
	var buf bytes.Buffer

	// Constant pool, built by hand in declaration order:
	// 1: Utf8 "Sum"               5: Utf8 methodName
	// 2: Class -> 1               6: Utf8 methodDesc
	// 3: Utf8 "java/lang/Object"  7: Utf8 "Code"
	// 4: Class -> 3
	type cpEntry struct {
		tag  uint8
		data []byte
	}
	u16 := func(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
	utf8 := func(s string) []byte {
		b := u16(uint16(len(s)))
		return append(b, []byte(s)...)
	}

	entries := []cpEntry{
		{TagUtf8, utf8("Sum")},
		{TagClass, u16(1)},
		{TagUtf8, utf8("java/lang/Object")},
		{TagClass, u16(3)},
		{TagUtf8, utf8(methodName)},
		{TagUtf8, utf8(methodDesc)},
		{TagUtf8, utf8("Code")},
	}

	buf.Write([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	buf.Write(u16(0))  // minor
	buf.Write(u16(61)) // major (Java 17)
	buf.Write(u16(uint16(len(entries) + 1)))
	for _, e := range entries {
		buf.WriteByte(e.tag)
		buf.Write(e.data)
	}

	buf.Write(u16(AccPublic | AccSuper)) // access_flags
	buf.Write(u16(2))                    // this_class
	buf.Write(u16(4))                    // super_class
	buf.Write(u16(0))                    // interfaces_count
	buf.Write(u16(0))                    // fields_count

	buf.Write(u16(1)) // methods_count
	buf.Write(u16(AccPublic | AccStatic))
	buf.Write(u16(5)) // name_index
	buf.Write(u16(6)) // descriptor_index
	buf.Write(u16(1)) // attributes_count

	buf.Write(u16(7)) // attribute_name_index ("Code")
	var codeAttr bytes.Buffer
	codeAttr.Write(u16(maxStack))
	codeAttr.Write(u16(maxLocals))
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

// sumOfNCode is the bytecode from the Sum-of-n scenario:
//
//	iconst_0, istore_1, iconst_1, istore_2, goto L2
//	L1: iload_1, iload_2, iadd, istore_1, iinc 2, 1
//	L2: iload_2, iload_0, if_icmple L1, iload_1, ireturn
func sumOfNCode() []byte {
	// Offsets: 0 iconst_0, 1 istore_1, 2 iconst_1, 3 istore_2, 4 goto(3 bytes),
	// 7 L1: iload_1, 8 iload_2, 9 iadd, 10 istore_1, 11 iinc(3 bytes),
	// 14 L2: iload_2, 15 iload_0, 16 if_icmple(3 bytes), 19 iload_1, 20 ireturn.
	// goto at 4 targets L2 at 14: offset = 14-4 = 10.
	// if_icmple at 16 targets L1 at 7: offset = 7-16 = -9.
	return []byte{
		OpIconst0, OpIstore1, OpIconst1, OpIstore2,
		OpGoto, 0x00, 0x0A,
		OpIload1, OpIload2, OpIadd, OpIstore1, OpIinc, 0x02, 0x01,
		OpIload2, OpIload0, OpIfIcmple, 0xFF, 0xF7,
		OpIload1, OpIreturn,
	}
}

func TestParseMinimalClass(t *testing.T) {
	raw := buildMinimalClass(t, "sum", "(I)I", sumOfNCode(), 2, 3)
	cf, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parsing minimal class: %v", err)
	}

	name, err := cf.ClassName()
	if err != nil {
		t.Fatalf("resolving class name: %v", err)
	}
	if name != "Sum" {
		t.Errorf("class name: got %q, want %q", name, "Sum")
	}

	super, err := cf.SuperClassName()
	if err != nil {
		t.Fatalf("resolving super class: %v", err)
	}
	if super != "java/lang/Object" {
		t.Errorf("super class: got %q, want %q", super, "java/lang/Object")
	}

	m := cf.FindMethod("sum", "(I)I")
	if m == nil {
		t.Fatal("sum(I)I method not found")
	}
	if m.Code == nil {
		t.Fatal("sum method has no Code attribute")
	}
	if len(m.Code.Instructions) == 0 {
		t.Error("Code attribute decoded zero instructions")
	}
	if m.Code.MaxStack != 2 || m.Code.MaxLocals != 3 {
		t.Errorf("max_stack/max_locals: got %d/%d, want 2/3", m.Code.MaxStack, m.Code.MaxLocals)
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0}))
	if err == nil {
		t.Fatal("expected error for invalid magic number, got nil")
	}
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Reason != ReasonMalformedMagic {
		t.Errorf("reason: got %q, want %q", de.Reason, ReasonMalformedMagic)
	}
}

func TestDecodeModifiedUTF8SurrogatePair(t *testing.T) {
	// U+10437 (DESERET SMALL LETTER YEE) encodes as the surrogate pair
	// D801 DC37, each half as a 3-byte modified-UTF-8 sequence.
	raw := []byte{0xED, 0xA0, 0x81, 0xED, 0xB0, 0xB7}
	got, err := decodeModifiedUTF8(raw)
	if err != nil {
		t.Fatalf("decoding surrogate pair: %v", err)
	}
	want := string(rune(0x10437))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(ILjava/lang/String;[I)V")
	if err != nil {
		t.Fatalf("parsing descriptor: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("params: got %d, want 3", len(params))
	}
	if params[0].Primitive != 'I' {
		t.Errorf("param 0: got %q, want I", params[0].Primitive)
	}
	if params[1].ClassName != "java/lang/String" {
		t.Errorf("param 1: got %q, want java/lang/String", params[1].ClassName)
	}
	if params[2].Dimensions != 1 || params[2].Primitive != 'I' {
		t.Errorf("param 2: got dims=%d prim=%q, want dims=1 prim=I", params[2].Dimensions, params[2].Primitive)
	}
	if ret.Primitive != 'V' {
		t.Errorf("return: got %q, want V", ret.Primitive)
	}
}
