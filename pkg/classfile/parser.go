package classfile

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/samber/lo"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading magic number: %v", err)
	}
	if magic != classMagic {
		return nil, newDecodeError(ReasonMalformedMagic, "0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading minor version: %v", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading major version: %v", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading constant pool count: %v", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, err
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading access flags: %v", err)
	}
	if err := ValidateFlags(cf.AccessFlags); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading this_class: %v", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading super_class: %v", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading interfaces count: %v", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading interface %d: %v", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading fields count: %v", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, err
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, newDecodeError(ReasonUnexpectedEOF, "reading methods count: %v", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, err
	}

	if err := cf.parseClassAttributes(r); err != nil {
		return nil, err
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading field %d access flags: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading field %d name index: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading field %d descriptor index: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading field %d attributes count: %v", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, err
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, err
		}
		if !isValidFieldDescriptor(desc) {
			return nil, newDecodeError(ReasonInvalidDescriptor, "field %s has invalid descriptor %q", name, desc)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, err
		}

		fields[i] = FieldInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc, Attributes: attrs}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading method %d access flags: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading method %d name index: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading method %d descriptor index: %v", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading method %d attributes count: %v", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, err
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, err
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, err
		}

		m := MethodInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc, Attributes: attrs}

		if codeAttr, ok := findAttribute(attrs, "Code"); ok {
			code, err := parseCodeAttribute(codeAttr.Data, pool)
			if err != nil {
				return nil, err
			}
			m.Code = code
		}

		methods[i] = m
	}
	return methods, nil
}

// findAttribute locates a raw attribute by name, the same lo.Find-over-a-
// name-tagged-list idiom ajroetker/goat's instruction decoder uses to pick
// an operand out of a parsed list by key.
func findAttribute(attrs []AttributeInfo, name string) (AttributeInfo, bool) {
	return lo.Find(attrs, func(a AttributeInfo) bool { return a.Name == name })
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading attribute %d name index: %v", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading attribute %d length: %v", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, newDecodeError(ReasonUnexpectedEOF, "reading attribute %d data: %v", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, err
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, newDecodeError(ReasonUnexpectedEOF, "Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, newDecodeError(ReasonUnexpectedEOF, "Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	instructions, err := DecodeInstructions(code)
	if err != nil {
		return nil, err
	}

	offset := 8 + int(codeLength)
	var handlers []ExceptionHandler
	if offset+2 <= len(data) {
		exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		handlers = make([]ExceptionHandler, exTableLen)
		for i := uint16(0); i < exTableLen; i++ {
			if offset+8 > len(data) {
				break
			}
			handlers[i] = ExceptionHandler{
				StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
				EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
				HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
				CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
			}
			offset += 8
		}
	}

	var lineNumbers []LineNumberEntry
	if offset+2 <= len(data) {
		attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		for i := uint16(0); i < attrCount; i++ {
			if offset+6 > len(data) {
				break
			}
			nameIndex := binary.BigEndian.Uint16(data[offset : offset+2])
			attrLen := binary.BigEndian.Uint32(data[offset+2 : offset+6])
			offset += 6
			if offset+int(attrLen) > len(data) {
				break
			}
			attrData := data[offset : offset+int(attrLen)]
			offset += int(attrLen)

			name, err := GetUtf8(pool, nameIndex)
			if err != nil {
				continue
			}
			if name == "LineNumberTable" {
				entries, err := parseLineNumberTable(attrData)
				if err != nil {
					return nil, err
				}
				lineNumbers = append(lineNumbers, entries...)
			}
		}
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		Instructions:      instructions,
		ExceptionHandlers: handlers,
		LineNumbers:       lineNumbers,
	}, nil
}

func parseLineNumberTable(data []byte) ([]LineNumberEntry, error) {
	if len(data) < 2 {
		return nil, newDecodeError(ReasonUnexpectedEOF, "LineNumberTable too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	entries := make([]LineNumberEntry, 0, count)
	for i := uint16(0); i < count; i++ {
		if offset+4 > len(data) {
			break
		}
		entries = append(entries, LineNumberEntry{
			StartPC:    binary.BigEndian.Uint16(data[offset : offset+2]),
			LineNumber: binary.BigEndian.Uint16(data[offset+2 : offset+4]),
		})
		offset += 4
	}
	return entries, nil
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return newDecodeError(ReasonUnexpectedEOF, "reading class attribute count: %v", err)
	}
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return newDecodeError(ReasonUnexpectedEOF, "reading class attribute %d name index: %v", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return newDecodeError(ReasonUnexpectedEOF, "reading class attribute %d length: %v", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return newDecodeError(ReasonUnexpectedEOF, "reading class attribute %d data: %v", i, err)
		}
		name, err := GetUtf8(cf.ConstantPool, nameIndex)
		if err != nil {
			continue // unresolvable attribute name: skip rather than fail the whole parse
		}
		switch name {
		case "BootstrapMethods":
			cf.BootstrapMethods, err = parseBootstrapMethods(data)
			if err != nil {
				return err
			}
		case "SourceFile":
			if len(data) >= 2 {
				idx := binary.BigEndian.Uint16(data[0:2])
				if sf, err := GetUtf8(cf.ConstantPool, idx); err == nil {
					cf.SourceFile = sf
				}
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, newDecodeError(ReasonUnexpectedEOF, "BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, newDecodeError(ReasonUnexpectedEOF, "BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		args := make([]uint16, numArgs)
		for j := uint16(0); j < numArgs; j++ {
			if offset+2 > len(data) {
				return nil, newDecodeError(ReasonUnexpectedEOF, "BootstrapMethods truncated at arg %d of method %d", j, i)
			}
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}
