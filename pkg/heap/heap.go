// Package heap implements the method area and object heap (§4.3): the
// per-loader registries of classfiles and linked classes, the live object
// store, class-lifecycle state, and allocation.
//
// The heap cannot import the linker or interpreter directly (both of them
// need to call back into the heap to resolve further classes), so linking
// and <clinit> invocation are injected as callbacks (SetLinkFunc, called by
// cmd/gojvm's top-level wiring, and SetInitFunc, called by interp.New) —
// the "explicit VM context" design recorded in DESIGN.md.
package heap

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	humanize "github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// ByteLoader takes a binary class name (e.g. "java/lang/String") and
// returns the raw class file bytes, or an error (§6's external byte-loader
// interface).
type ByteLoader interface {
	LoadBytes(name string) ([]byte, error)
}

// LinkFunc converts a decoded classfile into a linked Class, registering
// any transitively-loaded super-class/interfaces along the way. Implemented
// by pkg/linker and injected with SetLinkFunc after New.
type LinkFunc func(h *Heap, loaderName string, cf *classfile.ClassFile) (*rtdata.Class, error)

// InitFunc runs a class's <clinit>, if any. Implemented by pkg/interp and
// injected with SetInitFunc (interp.New does this).
type InitFunc func(h *Heap, class *rtdata.Class) rtdata.MethodResult

const bootstrapLoaderName = "bootstrap"

// Heap is the process-wide method area and object store.
type Heap struct {
	Log *logrus.Logger

	link LinkFunc
	init InitFunc

	loadersMu sync.RWMutex
	loaders   map[string]ByteLoader // loader name -> byte loader

	classfilesMu sync.RWMutex
	classfiles   map[string]map[uint64]*classfile.ClassFile // loader -> xxhash(descriptor) -> classfile

	classesMu sync.RWMutex
	classes   map[string]map[uint64]*rtdata.Class // loader -> xxhash(descriptor) -> class

	objectsMu sync.RWMutex
	active    []*rtdata.Object
	inactive  []*rtdata.Object // reserved for copying collection; unused (§4.3)

	nextHash int32
}

// New creates an empty Heap and registers the nine primitive classes under
// the bootstrap loader.
func New(log *logrus.Logger) *Heap {
	if log == nil {
		log = logrus.New()
	}
	h := &Heap{
		Log:        log,
		loaders:    make(map[string]ByteLoader),
		classfiles: make(map[string]map[uint64]*classfile.ClassFile),
		classes:    make(map[string]map[uint64]*rtdata.Class),
	}
	h.registerPrimitives()
	return h
}

// SetLinkFunc and SetInitFunc complete the callback wiring; see the package
// doc for why these are injected rather than imported.
func (h *Heap) SetLinkFunc(f LinkFunc) { h.link = f }
func (h *Heap) SetInitFunc(f InitFunc) { h.init = f }

// RegisterLoader associates a named loader with its byte-loading
// implementation.
func (h *Heap) RegisterLoader(name string, loader ByteLoader) {
	h.loadersMu.Lock()
	defer h.loadersMu.Unlock()
	h.loaders[name] = loader
}

func (h *Heap) registerPrimitives() {
	prims := []struct {
		name, desc string
	}{
		{"boolean", "Z"}, {"byte", "B"}, {"short", "S"}, {"int", "I"},
		{"char", "C"}, {"long", "J"}, {"float", "F"}, {"double", "D"},
		{"void", "V"},
	}
	h.classesMu.Lock()
	defer h.classesMu.Unlock()
	loaderClasses := make(map[uint64]*rtdata.Class)
	for _, p := range prims {
		c := &rtdata.Class{Name: p.name, Descriptor: p.desc, Loader: bootstrapLoaderName}
		c.MarkInitializing() // primitives are pre-initialized leaves
		loaderClasses[descriptorKey(p.desc)] = c
	}
	h.classes[bootstrapLoaderName] = loaderClasses
}

// PrimitiveClass returns one of the nine pre-registered primitive
// singletons by its descriptor letter.
func (h *Heap) PrimitiveClass(descriptor string) *rtdata.Class {
	h.classesMu.RLock()
	defer h.classesMu.RUnlock()
	return h.classes[bootstrapLoaderName][descriptorKey(descriptor)]
}

// descriptorKey hashes a class descriptor/name to the method area's lookup
// key, the same content-addressed-interning idiom a JFR symbol table uses
// for its (string, string) keys.
func descriptorKey(descriptor string) uint64 {
	return xxhash.Sum64String(descriptor)
}

// GetOrCreateClass is the central resolution primitive of §4.3. Callers may
// pass either a bare internal name ("java/lang/String") or a full
// descriptor ("Ljava/lang/String;", "[I", ...); both normalize to the same
// cache key so a class resolved one way is recognized as already-linked
// when later resolved the other way.
func (h *Heap) GetOrCreateClass(descriptor, loaderName string) (rtdata.MaybeClass, error) {
	if len(descriptor) > 0 && descriptor[0] == '[' {
		if c := h.lookupLinked(descriptor, loaderName); c != nil {
			return rtdata.Linked(c), nil
		}
		return rtdata.UnloadedArray(descriptor[1:]), nil
	}
	name := internalNameFromDescriptor(descriptor)
	if c := h.lookupLinked(name, loaderName); c != nil {
		return rtdata.Linked(c), nil
	}
	if h.lookupClassfile(name, loaderName) != nil {
		return rtdata.Unloaded(name), nil
	}

	raw, err := h.loadBytes(name, loaderName)
	if err != nil {
		return rtdata.MaybeClass{}, fmt.Errorf("loading class %s: %w", name, err)
	}
	cf, err := classfile.Parse(bytes.NewReader(raw))
	if err != nil {
		return rtdata.MaybeClass{}, fmt.Errorf("parsing class %s: %w", name, err)
	}
	h.storeClassfile(name, loaderName, cf)
	h.Log.WithFields(logrus.Fields{"class": name, "loader": loaderName}).Debug("class file loaded")
	return rtdata.Unloaded(name), nil
}

// EnsureLoaded upgrades a MaybeClass to a linked Class, linking and
// registering unloaded stubs and synthesizing array classes as needed
// (§4.3).
func (h *Heap) EnsureLoaded(mc rtdata.MaybeClass, loaderName string) (*rtdata.Class, error) {
	switch mc.Kind {
	case rtdata.MCLinked:
		return mc.Class, nil

	case rtdata.MCUnloaded:
		if c := h.lookupLinked(mc.Descriptor, loaderName); c != nil {
			return c, nil
		}
		cf := h.lookupClassfile(mc.Descriptor, loaderName)
		if cf == nil {
			resolved, err := h.GetOrCreateClass(mc.Descriptor, loaderName)
			if err != nil {
				return nil, err
			}
			if resolved.Kind == rtdata.MCLinked {
				return resolved.Class, nil
			}
			cf = h.lookupClassfile(resolved.Descriptor, loaderName)
			if cf == nil {
				return nil, fmt.Errorf("class %s not found after load", mc.Descriptor)
			}
		}
		if h.link == nil {
			return nil, fmt.Errorf("heap: no link function wired")
		}
		class, err := h.link(h, loaderName, cf)
		if err != nil {
			return nil, fmt.Errorf("linking class %s: %w", mc.Descriptor, err)
		}
		h.storeClass(class.Name, loaderName, class)
		h.Log.WithField("class", class.Name).Info("class linked")
		return class, nil

	case rtdata.MCUnloadedArray:
		return h.ensureArrayClass(mc.Component, loaderName)
	}
	return nil, fmt.Errorf("unknown MaybeClass kind %d", mc.Kind)
}

func (h *Heap) ensureArrayClass(component, loaderName string) (*rtdata.Class, error) {
	arrDescriptor := "[" + component
	if c := h.lookupLinked(arrDescriptor, loaderName); c != nil {
		return c, nil
	}

	var componentClass *rtdata.Class
	var err error
	if isPrimitiveDescriptor(component) {
		componentClass = h.PrimitiveClass(component)
	} else {
		componentMC, mcErr := h.GetOrCreateClass(component, loaderName)
		if mcErr != nil {
			return nil, mcErr
		}
		componentClass, err = h.EnsureLoaded(componentMC, loaderName)
		if err != nil {
			return nil, err
		}
	}

	arr := &rtdata.Class{
		Name:        arrDescriptor,
		Descriptor:  arrDescriptor,
		AccessFlags: classfile.AccPublic | classfile.AccFinal,
		Super:       rtdata.Linked(componentClass),
		Loader:      loaderName,
	}
	arr.MarkInitializing()
	h.storeClass(arrDescriptor, loaderName, arr)
	return arr, nil
}

// EnsureInitialized upgrades a linked Class to an initialized one, running
// <clinit> at most once (§4.3, §5, §8 Testable Property 5).
func (h *Heap) EnsureInitialized(class *rtdata.Class) error {
	if !class.MarkInitializing() {
		return nil // already initialized, or initialization already in flight
	}
	if h.init == nil {
		return nil
	}
	result := h.init(h, class)
	if result.Kind == rtdata.ResultMachineError {
		return result.Err
	}
	if result.Kind == rtdata.ResultThrow {
		return fmt.Errorf("uncaught exception initializing %s: %s", class.Name, result.Exception.Class.Name)
	}
	h.Log.WithField("class", class.Name).Debug("class initialized")
	return nil
}

// CreateNew allocates a plain object instance with default field values.
func (h *Heap) CreateNew(class *rtdata.Class) *rtdata.Object {
	obj := rtdata.NewObject(class, h.nextIdentityHash())
	h.addActive(obj)
	return obj
}

// CreateNewArray allocates an array object of the given component type and
// length.
func (h *Heap) CreateNewArray(componentClass *rtdata.Class, length int) *rtdata.Object {
	obj := rtdata.NewArrayObject(&rtdata.Class{Descriptor: "[" + componentClass.Descriptor},
		h.nextIdentityHash(), rtdata.Linked(componentClass), length)
	h.addActive(obj)
	return obj
}

// CreateNewArrayOf allocates an array using an already-resolved array
// Class (as produced by EnsureLoaded on an UnloadedArray stub).
func (h *Heap) CreateNewArrayOf(arrayClass *rtdata.Class, length int) *rtdata.Object {
	component := rtdata.Linked(arrayClass.SuperClass())
	obj := rtdata.NewArrayObject(arrayClass, h.nextIdentityHash(), component, length)
	h.addActive(obj)
	return obj
}

// NewJavaString synthesizes a java.lang.String instance per the heap's
// platform-bridging constructors: a big-endian UTF-16 byte array under
// "value", coder 1 (UTF-16), and an unset lazy hash (§"Synthesized Java
// objects").
func (h *Heap) NewJavaString(stringClass *rtdata.Class, s string) *rtdata.Object {
	units := utf16Units(s)
	bytes := make([]byte, 0, len(units)*2)
	for _, u := range units {
		bytes = append(bytes, byte(u>>8), byte(u))
	}
	byteClass := h.PrimitiveClass("B")
	arr := rtdata.NewArrayObject(&rtdata.Class{Descriptor: "[B"}, h.nextIdentityHash(), rtdata.Linked(byteClass), len(bytes))
	for i, b := range bytes {
		arr.SetElement(i, rtdata.IntValue(int32(int8(b))))
	}
	h.addActive(arr)

	obj := &rtdata.Object{Class: stringClass, IdentityHash: h.nextIdentityHash(), Fields: map[string]rtdata.Value{}}
	obj.SetField("value", rtdata.RefValue(arr))
	obj.SetField("coder", rtdata.IntValue(1))
	obj.SetField("hash", rtdata.IntValue(0))
	obj.SetField("hashIsZero", rtdata.IntValue(0))
	h.addActive(obj)
	return obj
}

// NewJavaClassObject synthesizes a java.lang.Class instance carrying the
// reflected type's descriptor in its core-private field.
func (h *Heap) NewJavaClassObject(classClass *rtdata.Class, descriptor string) *rtdata.Object {
	obj := &rtdata.Object{
		Class:          classClass,
		IdentityHash:   h.nextIdentityHash(),
		Fields:         map[string]rtdata.Value{},
		CoreDescriptor: descriptor,
	}
	h.addActive(obj)
	return obj
}

// utf16Units encodes a Go string (UTF-8) into UTF-16 code units,
// surrogate-pairing any supplementary-plane rune.
func utf16Units(s string) []uint16 {
	var units []uint16
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			units = append(units, uint16(r))
		}
	}
	return units
}

func (h *Heap) nextIdentityHash() int32 {
	return atomic.AddInt32(&h.nextHash, 1)
}

func (h *Heap) addActive(obj *rtdata.Object) {
	h.objectsMu.Lock()
	defer h.objectsMu.Unlock()
	h.active = append(h.active, obj)
}

// CollectGarbage is the pluggable GC entry point (§4.3, §9): a no-op stub
// that logs the live-object count and leaves the active/inactive arenas as
// they are. No roots are visited and no object is moved or freed, so
// callers may hold *rtdata.Object across a collection.
func (h *Heap) CollectGarbage() {
	h.objectsMu.Lock()
	defer h.objectsMu.Unlock()
	h.Log.WithField("live_objects", humanize.Comma(int64(len(h.active)))).Debug("gc stub invoked")
	h.active, h.inactive = h.active, h.inactive
}

func (h *Heap) lookupLinked(descriptor, loaderName string) *rtdata.Class {
	h.classesMu.RLock()
	defer h.classesMu.RUnlock()
	key := descriptorKey(descriptor)
	if m, ok := h.classes[loaderName]; ok {
		if c, ok := m[key]; ok {
			return c
		}
	}
	// Bootstrap-visible classes (notably the primitives) are visible to
	// every loader.
	if loaderName != bootstrapLoaderName {
		if m, ok := h.classes[bootstrapLoaderName]; ok {
			return m[key]
		}
	}
	return nil
}

func (h *Heap) storeClass(descriptor, loaderName string, class *rtdata.Class) {
	h.classesMu.Lock()
	defer h.classesMu.Unlock()
	if h.classes[loaderName] == nil {
		h.classes[loaderName] = make(map[uint64]*rtdata.Class)
	}
	h.classes[loaderName][descriptorKey(descriptor)] = class
}

func (h *Heap) lookupClassfile(name, loaderName string) *classfile.ClassFile {
	h.classfilesMu.RLock()
	defer h.classfilesMu.RUnlock()
	if m, ok := h.classfiles[loaderName]; ok {
		return m[descriptorKey(name)]
	}
	return nil
}

func (h *Heap) storeClassfile(name, loaderName string, cf *classfile.ClassFile) {
	h.classfilesMu.Lock()
	defer h.classfilesMu.Unlock()
	if h.classfiles[loaderName] == nil {
		h.classfiles[loaderName] = make(map[uint64]*classfile.ClassFile)
	}
	h.classfiles[loaderName][descriptorKey(name)] = cf
}

func (h *Heap) loadBytes(name, loaderName string) ([]byte, error) {
	h.loadersMu.RLock()
	loader, ok := h.loaders[loaderName]
	h.loadersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no byte loader registered for loader %q", loaderName)
	}
	return loader.LoadBytes(name)
}

func internalNameFromDescriptor(descriptor string) string {
	if len(descriptor) >= 2 && descriptor[0] == 'L' && descriptor[len(descriptor)-1] == ';' {
		return descriptor[1 : len(descriptor)-1]
	}
	return descriptor
}

func isPrimitiveDescriptor(descriptor string) bool {
	switch descriptor {
	case "Z", "B", "S", "I", "C", "J", "F", "D", "V":
		return true
	}
	return false
}
