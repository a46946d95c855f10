package classfile

// Access flags (§6): the full bit set, shared by classes, fields, and
// methods (some bits are reused with a different meaning per context, e.g.
// SYNCHRONIZED/NATIVE both 0x0100).
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccVolatile     = 0x0040
	AccTransient    = 0x0080
	AccSynchronized = 0x0100
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// ClassFile represents a decoded .class file, prior to linking.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     []ConstantPoolEntry
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	BootstrapMethods []BootstrapMethod
	SourceFile       string
}

// FieldInfo represents one field_info record.
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
}

// MethodInfo represents one method_info record.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
}

// AttributeInfo is a raw, name-resolved attribute; unrecognized attributes
// are kept with their name and raw payload so callers that care (or a
// future extension) can still inspect them, but decoding only interprets
// Code, LineNumberTable, BootstrapMethods, and SourceFile.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler is one entry of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 means "any" (catches Throwable)
}

// LineNumberEntry maps a bytecode offset to a source line.
type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals          uint16
	Code              []byte
	Instructions      []Instruction
	ExceptionHandlers []ExceptionHandler
	LineNumbers       []LineNumberEntry
}

// BootstrapMethod is one entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// ClassName returns the fully qualified internal name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// SuperClassName returns the internal name of the superclass, or "" if this
// class file is java/lang/Object (super_class == 0).
func (cf *ClassFile) SuperClassName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return GetClassName(cf.ConstantPool, cf.SuperClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}

// ValidateFlags checks the well-formedness invariants from the data model:
// INTERFACE implies ABSTRACT and forbids FINAL/SUPER; ANNOTATION implies
// INTERFACE; ABSTRACT and FINAL are mutually exclusive.
func ValidateFlags(flags uint16) error {
	isInterface := flags&AccInterface != 0
	isAbstract := flags&AccAbstract != 0
	isFinal := flags&AccFinal != 0
	isSuper := flags&AccSuper != 0
	isAnnotation := flags&AccAnnotation != 0

	if isInterface && !isAbstract {
		return newDecodeError(ReasonInvalidFlagCombo, "INTERFACE set without ABSTRACT")
	}
	if isInterface && isFinal {
		return newDecodeError(ReasonInvalidFlagCombo, "INTERFACE and FINAL both set")
	}
	if isInterface && isSuper {
		return newDecodeError(ReasonInvalidFlagCombo, "INTERFACE and SUPER both set")
	}
	if isAnnotation && !isInterface {
		return newDecodeError(ReasonInvalidFlagCombo, "ANNOTATION set without INTERFACE")
	}
	if isAbstract && isFinal {
		return newDecodeError(ReasonInvalidFlagCombo, "ABSTRACT and FINAL both set")
	}
	return nil
}
