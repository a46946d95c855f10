package classfile

import (
	"encoding/binary"
	"io"
	"math"
)

// Constant pool tags (§6): {1,3,4,5,6,7,8,9,10,11,12,15,16,17,18,19,20}.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Method handle reference kinds (1-9).
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial  = 8
	RefInvokeInterface  = 9
)

// ConstantPoolEntry is the raw (pre-resolution) sum type. Every concrete
// type below implements it. Long/Double entries are followed, at the next
// pool index, by a *ConstantLongSecond marker so 1-based indices into the
// pool stay stable across the two-slot entries (the invariant called out in
// the data model).
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct{ Value int32 }

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct{ Value float32 }

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct{ Value int64 }

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct{ Value float64 }

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

// ConstantLongSecond occupies the pool slot immediately after a Long or
// Double entry.
type ConstantLongSecond struct{}

func (c *ConstantLongSecond) Tag() uint8 { return 0 }

type ConstantClass struct{ NameIndex uint16 }

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct{ StringIndex uint16 }

func (c *ConstantString) Tag() uint8 { return TagString }

// ConstantMemberref covers Fieldref, Methodref, and InterfaceMethodref,
// which share the same on-wire shape and differ only by tag.
type ConstantMemberref struct {
	TagValue         uint8
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMemberref) Tag() uint8 { return c.TagValue }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct{ DescriptorIndex uint16 }

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

// ConstantDynamic covers both Dynamic (17) and InvokeDynamic (18), which
// share the same on-wire shape: a bootstrap-method-table index plus a
// name-and-type index.
type ConstantDynamic struct {
	TagValue               uint8
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex       uint16
}

func (c *ConstantDynamic) Tag() uint8 { return c.TagValue }

type ConstantModule struct{ NameIndex uint16 }

func (c *ConstantModule) Tag() uint8 { return TagModule }

type ConstantPackage struct{ NameIndex uint16 }

func (c *ConstantPackage) Tag() uint8 { return TagPackage }

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading constant pool tag at index %d: %v", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Utf8 length at index %d: %v", i, err)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Utf8 bytes at index %d: %v", i, err)
			}
			decoded, err := decodeModifiedUTF8(raw)
			if err != nil {
				return nil, newDecodeError(ReasonInvalidDescriptor, "decoding Utf8 at index %d: %v", i, err)
			}
			pool[i] = &ConstantUtf8{Value: decoded}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Integer at index %d: %v", i, err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Float at index %d: %v", i, err)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Long at index %d: %v", i, err)
			}
			pool[i] = &ConstantLong{Value: val}
			i++
			if i < count {
				pool[i] = &ConstantLongSecond{}
			}

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Double at index %d: %v", i, err)
			}
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++
			if i < count {
				pool[i] = &ConstantLongSecond{}
			}

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Class at index %d: %v", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading String at index %d: %v", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Memberref class_index at index %d: %v", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Memberref name_and_type_index at index %d: %v", i, err)
			}
			pool[i] = &ConstantMemberref{TagValue: tag, ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading NameAndType name_index at index %d: %v", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading NameAndType descriptor_index at index %d: %v", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var refKind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &refKind); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading MethodHandle reference_kind at index %d: %v", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading MethodHandle reference_index at index %d: %v", i, err)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: refKind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading MethodType at index %d: %v", i, err)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Dynamic bootstrap index at index %d: %v", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Dynamic name_and_type_index at index %d: %v", i, err)
			}
			pool[i] = &ConstantDynamic{TagValue: tag, BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		case TagModule:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Module at index %d: %v", i, err)
			}
			pool[i] = &ConstantModule{NameIndex: nameIndex}

		case TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newDecodeError(ReasonUnexpectedEOF, "reading Package at index %d: %v", i, err)
			}
			pool[i] = &ConstantPackage{NameIndex: nameIndex}

		default:
			return nil, newDecodeError(ReasonInvalidConstantTag, "unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

func getNameAndType(pool []ConstantPoolEntry, index uint16) (name, descriptor string, err error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", "", newDecodeError(ReasonInvalidPoolRef, "invalid NameAndType index %d", index)
	}
	nat, ok := pool[index].(*ConstantNameAndType)
	if !ok {
		return "", "", newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not NameAndType", index)
	}
	name, err = GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRefInfo holds a resolved field/method/interface-method reference:
// an owner class name, a member name, and a descriptor.
type MemberRefInfo struct {
	ClassName  string
	Name       string
	Descriptor string
}

func resolveMemberref(pool []ConstantPoolEntry, index uint16, wantTag uint8) (*MemberRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", index)
	}
	mref, ok := pool[index].(*ConstantMemberref)
	if !ok || mref.TagValue != wantTag {
		return nil, newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not the expected member reference kind", index)
	}
	className, err := GetClassName(pool, mref.ClassIndex)
	if err != nil {
		return nil, err
	}
	name, descriptor, err := getNameAndType(pool, mref.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRefInfo{ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry (kind 9).
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*MemberRefInfo, error) {
	return resolveMemberref(pool, index, TagFieldref)
}

// ResolveMethodref resolves a CONSTANT_Methodref entry (kind 10).
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MemberRefInfo, error) {
	return resolveMemberref(pool, index, TagMethodref)
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry (kind 11).
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MemberRefInfo, error) {
	return resolveMemberref(pool, index, TagInterfaceMethodref)
}

// ResolveMethodHandle resolves a CONSTANT_MethodHandle entry into its
// reference kind plus the member it points at.
func ResolveMethodHandle(pool []ConstantPoolEntry, index uint16) (kind uint8, member *MemberRefInfo, err error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return 0, nil, newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", index)
	}
	mh, ok := pool[index].(*ConstantMethodHandle)
	if !ok {
		return 0, nil, newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not MethodHandle", index)
	}
	var wantTag uint8
	switch mh.ReferenceKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		wantTag = TagFieldref
	case RefInvokeVirtual, RefNewInvokeSpecial:
		wantTag = TagMethodref
	case RefInvokeStatic, RefInvokeSpecial:
		wantTag = TagMethodref
	case RefInvokeInterface:
		wantTag = TagInterfaceMethodref
	default:
		return 0, nil, newDecodeError(ReasonInvalidPoolRef, "invalid method handle reference_kind %d", mh.ReferenceKind)
	}
	member, err = resolveMemberref(pool, mh.ReferenceIndex, wantTag)
	if err != nil {
		return 0, nil, err
	}
	return mh.ReferenceKind, member, nil
}

// ResolvedDynamic holds a resolved CONSTANT_Dynamic/InvokeDynamic entry.
type ResolvedDynamic struct {
	BootstrapMethodIndex uint16
	Name                 string
	Descriptor           string
}

// ResolveDynamic resolves a CONSTANT_Dynamic or CONSTANT_InvokeDynamic entry.
func ResolveDynamic(pool []ConstantPoolEntry, index uint16) (*ResolvedDynamic, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", index)
	}
	dyn, ok := pool[index].(*ConstantDynamic)
	if !ok {
		return nil, newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not Dynamic/InvokeDynamic", index)
	}
	name, descriptor, err := getNameAndType(pool, dyn.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	return &ResolvedDynamic{BootstrapMethodIndex: dyn.BootstrapMethodAttrIndex, Name: name, Descriptor: descriptor}, nil
}

// ResolveString resolves a CONSTANT_String entry to its literal value.
func ResolveString(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", newDecodeError(ReasonInvalidPoolRef, "invalid constant pool index %d", index)
	}
	str, ok := pool[index].(*ConstantString)
	if !ok {
		return "", newDecodeError(ReasonInvalidPoolRef, "constant pool index %d is not String", index)
	}
	return GetUtf8(pool, str.StringIndex)
}
