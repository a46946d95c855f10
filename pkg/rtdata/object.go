package rtdata

import "sync"

// Object is a heap instance: either a plain object with a field map, or an
// array with a fixed-length component slice. Guarded by a per-object
// reader-writer lock (§5): any field or element update acquires the
// writer lock.
type Object struct {
	mu sync.RWMutex

	Class        *Class
	IdentityHash int32

	// Plain-object state.
	Fields map[string]Value

	// Array state (when Class.IsArray()).
	ArrayComponent MaybeClass
	ArrayData      []Value

	// CoreDescriptor backs a synthesized java.lang.Class object's
	// reflected-type descriptor. It is not a Java field and is never
	// visible to getfield/putfield; only the Class-object constructor and
	// its readers touch it.
	CoreDescriptor string
}

func NewObject(class *Class, identityHash int32) *Object {
	fields := make(map[string]Value)
	for cur := class; cur != nil; cur = cur.SuperClass() {
		for _, f := range cur.InstanceFields {
			fields[f.Name] = ZeroValueForDescriptor(descriptorOf(f.Type))
		}
	}
	return &Object{Class: class, IdentityHash: identityHash, Fields: fields}
}

func NewArrayObject(class *Class, identityHash int32, component MaybeClass, length int) *Object {
	data := make([]Value, length)
	zero := ZeroValueForDescriptor(descriptorOf(component))
	for i := range data {
		data[i] = zero
	}
	return &Object{Class: class, IdentityHash: identityHash, ArrayComponent: component, ArrayData: data}
}

func descriptorOf(mc MaybeClass) string {
	switch mc.Kind {
	case MCLinked:
		if mc.Class != nil {
			return mc.Class.Descriptor
		}
		return ""
	case MCUnloaded:
		return mc.Descriptor
	case MCUnloadedArray:
		return "[" + mc.Component
	}
	return ""
}

// GetField reads an instance field under the read lock.
func (o *Object) GetField(name string) Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Fields[name]
}

// SetField writes an instance field under the write lock.
func (o *Object) SetField(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Fields[name] = v
}

// ArrayLength returns the number of elements in an array object.
func (o *Object) ArrayLength() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.ArrayData)
}

// GetElement reads an array element under the read lock. The caller is
// responsible for the bounds check (so it can decide whether an
// out-of-bounds access throws or is a machine error).
func (o *Object) GetElement(index int) Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ArrayData[index]
}

// SetElement writes an array element under the write lock.
func (o *Object) SetElement(index int, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ArrayData[index] = v
}
