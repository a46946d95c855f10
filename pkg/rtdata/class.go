package rtdata

import (
	"sync"

	"github.com/daimatz/gojvm/pkg/classfile"
)

// Visibility is derived from access flags with precedence
// Public > Protected > Private > Local (package-private).
type Visibility int

const (
	VisPublic Visibility = iota
	VisProtected
	VisPrivate
	VisLocal
)

// VisibilityFromFlags derives a Visibility from a field/method's access
// flags, per the linker's precedence rule (§4.2).
func VisibilityFromFlags(flags uint16) Visibility {
	switch {
	case flags&classfile.AccPublic != 0:
		return VisPublic
	case flags&classfile.AccProtected != 0:
		return VisProtected
	case flags&classfile.AccPrivate != 0:
		return VisPrivate
	default:
		return VisLocal
	}
}

// MaybeClassKind identifies the variant of a MaybeClass.
type MaybeClassKind int

const (
	MCLinked MaybeClassKind = iota
	MCUnloaded
	MCUnloadedArray
)

// MaybeClass is the lazy type reference: a linked class handle, an
// unresolved scalar descriptor, or an unresolved array descriptor (§9).
type MaybeClass struct {
	Kind       MaybeClassKind
	Class      *Class // set when Kind == MCLinked
	Descriptor string // set when Kind == MCUnloaded: the type's own descriptor
	Component  string // set when Kind == MCUnloadedArray: the component descriptor
}

func Linked(c *Class) MaybeClass { return MaybeClass{Kind: MCLinked, Class: c} }

func Unloaded(descriptor string) MaybeClass {
	return MaybeClass{Kind: MCUnloaded, Descriptor: descriptor}
}

func UnloadedArray(component string) MaybeClass {
	return MaybeClass{Kind: MCUnloadedArray, Component: component}
}

// FieldDesc is a linked field.
type FieldDesc struct {
	Name       string
	Type       MaybeClass
	Visibility Visibility
	Static     bool
}

// StaticField is an individually lockable static field cell (§4.2, §5).
type StaticField struct {
	mu    sync.RWMutex
	Field *FieldDesc
	value Value
}

func NewStaticField(field *FieldDesc, initial Value) *StaticField {
	return &StaticField{Field: field, value: initial}
}

func (s *StaticField) Get() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *StaticField) Set(v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// CodeKind identifies what a method's body is.
type CodeKind int

const (
	CodeBytecode CodeKind = iota
	CodeNative
	CodeAbstract
)

// ExceptionHandler is one resolved exception-table entry: the bytecode
// range it covers, the instruction offset to resume at, and the (already
// loaded) catch type, or the zero MaybeClass with IsAny set for a
// catch-all (finally blocks and catch-type index 0).
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType MaybeClass
	IsAny     bool
}

// MethodDesc is a linked method.
type MethodDesc struct {
	Name       string
	Descriptor string
	Params     []MaybeClass
	Return     MaybeClass
	Visibility Visibility
	Static     bool

	CodeKind CodeKind

	MaxStack          uint16
	MaxLocals         uint16
	Instructions      []classfile.Instruction
	ExceptionHandlers []ExceptionHandler
	LineNumbers       []classfile.LineNumberEntry
}

// OffsetToIndex returns the instruction index whose decoded bytecode offset
// equals the given offset, or -1 if there is none (§4.4's branch-target
// mapping, a linear scan over the decoded list).
func (m *MethodDesc) OffsetToIndex(offset int) int {
	for i, inst := range m.Instructions {
		if inst.Offset == offset {
			return i
		}
	}
	return -1
}

// LineForOffset maps a bytecode offset to its source line via the method's
// LineNumberTable, returning the entry with the greatest StartPC not
// exceeding offset, or 0 if the table is empty or offset precedes every
// entry.
func (m *MethodDesc) LineForOffset(offset int) int {
	line := 0
	for _, ln := range m.LineNumbers {
		if int(ln.StartPC) > offset {
			break
		}
		line = int(ln.LineNumber)
	}
	return line
}

// Class is a linked type (§3/§4.2).
type Class struct {
	Name        string // fully-qualified internal name, e.g. "java/lang/String"
	Descriptor  string // "La/b/C;", "[...", or a primitive letter
	AccessFlags uint16
	Super       MaybeClass // zero value (MCLinked, Class==nil) only for java/lang/Object
	Interfaces  []MaybeClass
	Loader      string

	InstanceFields []*FieldDesc
	StaticFields   []*StaticField
	Methods        []*MethodDesc

	// Pool is the declaring classfile's raw constant pool, retained so the
	// interpreter can resolve a bytecode instruction's constant-pool-index
	// operand (ldc, field/method refs, new, checkcast, invokedynamic, ...)
	// against the class whose method is executing, exactly as the JVMS
	// requires: CPIndex operands are always relative to the current
	// method's own declaring class, never the resolved target's.
	Pool []classfile.ConstantPoolEntry

	// BootstrapMethods is the declaring classfile's BootstrapMethods
	// attribute, retained for the same reason as Pool: invokedynamic's
	// bootstrap-method-table index is relative to the executing method's
	// own declaring class.
	BootstrapMethods []classfile.BootstrapMethod

	mu          sync.RWMutex
	initialized bool
}

// IsPrimitive reports whether this class is one of the nine primitive
// singletons (§4.3).
func (c *Class) IsPrimitive() bool {
	switch c.Descriptor {
	case "Z", "B", "S", "I", "C", "J", "F", "D", "V":
		return true
	}
	return false
}

// IsArray reports whether this class's descriptor names an array type.
func (c *Class) IsArray() bool {
	return len(c.Descriptor) > 0 && c.Descriptor[0] == '['
}

// Initialized reports whether <clinit> has run (or been marked as running,
// per the set-before-run guard in §4.3/§5).
func (c *Class) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// MarkInitializing atomically checks-and-sets the initialized flag,
// returning true if this call was the one that transitioned it from false
// to true (i.e. the caller is responsible for running <clinit>). This is
// the recursive-re-entry guard required by §5: the flag is raised before
// <clinit> runs, not after.
func (c *Class) MarkInitializing() (shouldRun bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return false
	}
	c.initialized = true
	return true
}

// FindMethod finds a method by name and descriptor declared directly on
// this class (no super-class walk).
func (c *Class) FindMethod(name, descriptor string) *MethodDesc {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// FindStaticField finds a static field cell by name, walking up the
// super-class chain if not found directly (the intentional static-field-
// inheritance deviation recorded in §9/DESIGN.md).
func (c *Class) FindStaticField(name string) *StaticField {
	for cur := c; cur != nil; cur = cur.SuperClass() {
		for _, sf := range cur.StaticFields {
			if sf.Field.Name == name {
				return sf
			}
		}
	}
	return nil
}

// FindInstanceField finds an instance field descriptor by name, walking
// the super-class chain.
func (c *Class) FindInstanceField(name string) *FieldDesc {
	for cur := c; cur != nil; cur = cur.SuperClass() {
		for _, f := range cur.InstanceFields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// SuperClass returns the linked superclass, or nil if this class has none
// (java/lang/Object or a primitive) or the superclass is not yet linked.
func (c *Class) SuperClass() *Class {
	if c.Super.Kind == MCLinked {
		return c.Super.Class
	}
	return nil
}

// AssignableTo implements the assignable_to relation (§8 Testable
// Property 3): reflexive over self, and transitive over the super-class
// and interface chains.
func (c *Class) AssignableTo(target *Class) bool {
	return c.assignableToVisited(target, map[*Class]bool{})
}

func (c *Class) assignableToVisited(target *Class, visited map[*Class]bool) bool {
	if c == target {
		return true
	}
	if visited[c] {
		return false
	}
	visited[c] = true
	if super := c.SuperClass(); super != nil && super.assignableToVisited(target, visited) {
		return true
	}
	for _, iface := range c.Interfaces {
		if iface.Kind == MCLinked && iface.Class != nil && iface.Class.assignableToVisited(target, visited) {
			return true
		}
	}
	return false
}
