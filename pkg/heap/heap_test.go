package heap

import (
	"testing"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

const testLoader = "test-loader"

func newTestHeap() *Heap {
	return New(nil)
}

func TestPrimitiveClassSingleton(t *testing.T) {
	h := newTestHeap()
	a := h.PrimitiveClass("I")
	b := h.PrimitiveClass("I")
	if a == nil {
		t.Fatal("PrimitiveClass(I) = nil")
	}
	if a != b {
		t.Error("PrimitiveClass(I) returned different pointers on repeated calls")
	}
	if !a.Initialized() {
		t.Error("a primitive class should be pre-initialized")
	}
}

func TestGetOrCreateClassReturnsUnloadedForCachedClassfile(t *testing.T) {
	h := newTestHeap()
	h.storeClassfile("test/Foo", testLoader, &classfile.ClassFile{})

	mc, err := h.GetOrCreateClass("test/Foo", testLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass: %v", err)
	}
	if mc.Kind != rtdata.MCUnloaded || mc.Descriptor != "test/Foo" {
		t.Errorf("GetOrCreateClass = %+v, want an Unloaded(test/Foo)", mc)
	}
}

func TestEnsureLoadedLinksAndCachesClass(t *testing.T) {
	h := newTestHeap()
	h.storeClassfile("test/Foo", testLoader, &classfile.ClassFile{})

	linkCalls := 0
	h.SetLinkFunc(func(h *Heap, loaderName string, cf *classfile.ClassFile) (*rtdata.Class, error) {
		linkCalls++
		return &rtdata.Class{Name: "test/Foo", Descriptor: "Ltest/Foo;", Loader: loaderName}, nil
	})

	mc, err := h.GetOrCreateClass("test/Foo", testLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass: %v", err)
	}
	class, err := h.EnsureLoaded(mc, testLoader)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if class.Name != "test/Foo" {
		t.Errorf("linked class name = %q, want test/Foo", class.Name)
	}
	if linkCalls != 1 {
		t.Errorf("link called %d times, want 1", linkCalls)
	}

	// A second resolution must hit the now-linked-class cache, not re-link.
	mc2, err := h.GetOrCreateClass("test/Foo", testLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass (2nd): %v", err)
	}
	if mc2.Kind != rtdata.MCLinked || mc2.Class != class {
		t.Errorf("GetOrCreateClass (2nd) = %+v, want Linked to the same *Class", mc2)
	}
	if linkCalls != 1 {
		t.Errorf("link called %d times after cache hit, want still 1", linkCalls)
	}
}

func TestGetOrCreateClassNormalizesDescriptorForm(t *testing.T) {
	h := newTestHeap()
	h.storeClassfile("test/Foo", testLoader, &classfile.ClassFile{})
	h.SetLinkFunc(func(h *Heap, loaderName string, cf *classfile.ClassFile) (*rtdata.Class, error) {
		return &rtdata.Class{Name: "test/Foo", Descriptor: "Ltest/Foo;", Loader: loaderName}, nil
	})

	bare, err := h.GetOrCreateClass("test/Foo", testLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass(bare): %v", err)
	}
	class, err := h.EnsureLoaded(bare, testLoader)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}

	wrapped, err := h.GetOrCreateClass("Ltest/Foo;", testLoader)
	if err != nil {
		t.Fatalf("GetOrCreateClass(wrapped): %v", err)
	}
	if wrapped.Kind != rtdata.MCLinked || wrapped.Class != class {
		t.Errorf("GetOrCreateClass(Ltest/Foo;) = %+v, want Linked to the bare-form class %p", wrapped, class)
	}
}

func TestEnsureInitializedRunsClinitAtMostOnce(t *testing.T) {
	h := newTestHeap()
	class := &rtdata.Class{Name: "test/Foo"}

	initCalls := 0
	h.SetInitFunc(func(h *Heap, c *rtdata.Class) rtdata.MethodResult {
		initCalls++
		return rtdata.MethodResult{Kind: rtdata.ResultFinish}
	})

	if err := h.EnsureInitialized(class); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if err := h.EnsureInitialized(class); err != nil {
		t.Fatalf("EnsureInitialized (2nd): %v", err)
	}
	if initCalls != 1 {
		t.Errorf("<clinit> ran %d times, want 1", initCalls)
	}
}

func TestEnsureInitializedPropagatesUncaughtException(t *testing.T) {
	h := newTestHeap()
	class := &rtdata.Class{Name: "test/Foo"}
	excClass := &rtdata.Class{Name: "java/lang/RuntimeException"}
	h.SetInitFunc(func(h *Heap, c *rtdata.Class) rtdata.MethodResult {
		return rtdata.MethodResult{Kind: rtdata.ResultThrow, Exception: &rtdata.Object{Class: excClass}}
	})

	if err := h.EnsureInitialized(class); err == nil {
		t.Fatal("EnsureInitialized should surface an uncaught exception as an error")
	}
}

func TestCreateNewArrayRoundTrip(t *testing.T) {
	h := newTestHeap()
	intClass := h.PrimitiveClass("I")
	arr := h.CreateNewArray(intClass, 3)
	if arr.ArrayLength() != 3 {
		t.Fatalf("ArrayLength() = %d, want 3", arr.ArrayLength())
	}
	arr.SetElement(0, rtdata.IntValue(7))
	if got := arr.GetElement(0); got.I32 != 7 {
		t.Errorf("GetElement(0) = %v, want 7", got)
	}
}

func TestNewJavaStringRoundTrip(t *testing.T) {
	h := newTestHeap()
	stringClass := &rtdata.Class{Name: "java/lang/String"}
	obj := h.NewJavaString(stringClass, "hi")
	value := obj.GetField("value")
	if value.Kind != rtdata.KindReference || value.Ref == nil {
		t.Fatalf("value field = %+v, want a reference to the backing byte array", value)
	}
	if got := value.Ref.ArrayLength(); got != 4 { // "hi" -> 2 UTF-16 code units -> 4 bytes
		t.Errorf("backing array length = %d, want 4", got)
	}
}
