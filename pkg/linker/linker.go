// Package linker converts a decoded classfile into a linked runtime class,
// resolving field and method descriptors and eagerly loading super-classes
// and interfaces (§4.2).
package linker

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/daimatz/gojvm/pkg/classfile"
	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/rtdata"
)

// Link produces a linked Class from a decoded classfile under the given
// loader identity, loading its super-class and interfaces transitively
// through the heap.
func Link(h *heap.Heap, loaderName string, cf *classfile.ClassFile) (*rtdata.Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving class name: %w", err)
	}

	class := &rtdata.Class{
		Name:             name,
		Descriptor:       "L" + name + ";",
		AccessFlags:      cf.AccessFlags,
		Loader:           loaderName,
		Pool:             cf.ConstantPool,
		BootstrapMethods: cf.BootstrapMethods,
	}

	superName, err := cf.SuperClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving super-class name of %s: %w", name, err)
	}
	if superName != "" {
		super, err := resolveNamed(h, loaderName, superName)
		if err != nil {
			return nil, fmt.Errorf("resolving super-class %s of %s: %w", superName, class.Name, err)
		}
		class.Super = rtdata.Linked(super)
	}

	class.Interfaces = make([]rtdata.MaybeClass, 0, len(cf.Interfaces))
	for _, ifaceIndex := range cf.Interfaces {
		ifaceName, err := classfile.GetClassName(cf.ConstantPool, ifaceIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving interface name of %s: %w", class.Name, err)
		}
		iface, err := resolveNamed(h, loaderName, ifaceName)
		if err != nil {
			return nil, fmt.Errorf("resolving interface %s of %s: %w", ifaceName, class.Name, err)
		}
		class.Interfaces = append(class.Interfaces, rtdata.Linked(iface))
	}

	if err := linkFields(h, loaderName, cf, class); err != nil {
		return nil, fmt.Errorf("linking fields of %s: %w", class.Name, err)
	}
	if err := linkMethods(h, loaderName, cf, class); err != nil {
		return nil, fmt.Errorf("linking methods of %s: %w", class.Name, err)
	}

	if h.Log != nil {
		h.Log.WithFields(logrus.Fields{
			"class":    class.Name,
			"fields":   len(class.InstanceFields) + len(class.StaticFields),
			"methods":  len(class.Methods),
			"loader":   loaderName,
			"abstract": cf.AccessFlags&classfile.AccAbstract != 0,
		}).Debug("class linked")
	}

	return class, nil
}

func resolveNamed(h *heap.Heap, loaderName, name string) (*rtdata.Class, error) {
	mc, err := h.GetOrCreateClass(name, loaderName)
	if err != nil {
		return nil, err
	}
	return h.EnsureLoaded(mc, loaderName)
}

// resolveType resolves a parsed field/parameter/return type to a
// MaybeClass, returning a primitive singleton handle directly (primitives
// have no byte-loader form) and deferring array/class resolution to the
// heap.
func resolveType(h *heap.Heap, loaderName string, t classfile.ParsedType) (rtdata.MaybeClass, error) {
	if t.IsPrimitive() && t.Dimensions == 0 {
		return rtdata.Linked(h.PrimitiveClass(string(t.Primitive))), nil
	}
	return h.GetOrCreateClass(t.Descriptor(), loaderName)
}

// linkFields resolves every declared field's type and splits the result
// into instance fields and static-field cells (each seeded with its
// descriptor's zero value). The split is expressed with lo.Filter rather
// than a hand-rolled two-way append loop, the same declarative-partition
// idiom ajroetker/goat's instruction decoder uses for its operand lists.
func linkFields(h *heap.Heap, loaderName string, cf *classfile.ClassFile, class *rtdata.Class) error {
	type linkedField struct {
		desc *rtdata.FieldDesc
		zero rtdata.Value
	}

	linked := make([]linkedField, 0, len(cf.Fields))
	for _, fi := range cf.Fields {
		parsed, err := classfile.ParseFieldDescriptor(fi.Descriptor)
		if err != nil {
			return fmt.Errorf("field %s: %w", fi.Name, err)
		}

		typ, err := resolveType(h, loaderName, parsed)
		if err != nil {
			return fmt.Errorf("field %s type %s: %w", fi.Name, fi.Descriptor, err)
		}

		fd := &rtdata.FieldDesc{
			Name:       fi.Name,
			Type:       typ,
			Visibility: rtdata.VisibilityFromFlags(fi.AccessFlags),
			Static:     fi.AccessFlags&classfile.AccStatic != 0,
		}
		linked = append(linked, linkedField{desc: fd, zero: rtdata.ZeroValueForDescriptor(fi.Descriptor)})
	}

	statics := lo.Filter(linked, func(lf linkedField, _ int) bool { return lf.desc.Static })
	instances := lo.Filter(linked, func(lf linkedField, _ int) bool { return !lf.desc.Static })

	class.StaticFields = lo.Map(statics, func(lf linkedField, _ int) *rtdata.StaticField {
		return rtdata.NewStaticField(lf.desc, lf.zero)
	})
	class.InstanceFields = lo.Map(instances, func(lf linkedField, _ int) *rtdata.FieldDesc { return lf.desc })
	return nil
}

func linkMethods(h *heap.Heap, loaderName string, cf *classfile.ClassFile, class *rtdata.Class) error {
	for _, mi := range cf.Methods {
		params, ret, err := classfile.ParseMethodDescriptor(mi.Descriptor)
		if err != nil {
			return fmt.Errorf("method %s%s: %w", mi.Name, mi.Descriptor, err)
		}

		md := &rtdata.MethodDesc{
			Name:       mi.Name,
			Descriptor: mi.Descriptor,
			Visibility: rtdata.VisibilityFromFlags(mi.AccessFlags),
			Static:     mi.AccessFlags&classfile.AccStatic != 0,
		}

		md.Params = make([]rtdata.MaybeClass, 0, len(params))
		for _, p := range params {
			mc, err := resolveType(h, loaderName, p)
			if err != nil {
				return fmt.Errorf("method %s%s param %s: %w", mi.Name, mi.Descriptor, p.Descriptor(), err)
			}
			md.Params = append(md.Params, mc)
		}
		retMC, err := resolveType(h, loaderName, ret)
		if err != nil {
			return fmt.Errorf("method %s%s return %s: %w", mi.Name, mi.Descriptor, ret.Descriptor(), err)
		}
		md.Return = retMC

		switch {
		case mi.AccessFlags&classfile.AccNative != 0:
			md.CodeKind = rtdata.CodeNative
		case mi.AccessFlags&classfile.AccAbstract != 0 || mi.Code == nil:
			md.CodeKind = rtdata.CodeAbstract
		default:
			md.CodeKind = rtdata.CodeBytecode
			md.MaxStack = mi.Code.MaxStack
			md.MaxLocals = mi.Code.MaxLocals
			md.Instructions = mi.Code.Instructions
			md.LineNumbers = mi.Code.LineNumbers
			handlers, err := resolveExceptionHandlers(h, loaderName, cf, mi.Code.ExceptionHandlers)
			if err != nil {
				return fmt.Errorf("method %s%s exception table: %w", mi.Name, mi.Descriptor, err)
			}
			md.ExceptionHandlers = handlers
		}

		class.Methods = append(class.Methods, md)
	}
	return nil
}

// resolveExceptionHandlers resolves each entry's catch-type constant-pool
// index (0 means catch-all) to a loaded Class, eagerly per §4.2's
// "acyclicity is invariant but not defensively checked" resolution style.
func resolveExceptionHandlers(h *heap.Heap, loaderName string, cf *classfile.ClassFile, raw []classfile.ExceptionHandler) ([]rtdata.ExceptionHandler, error) {
	out := make([]rtdata.ExceptionHandler, 0, len(raw))
	for _, eh := range raw {
		resolved := rtdata.ExceptionHandler{
			StartPC:   int(eh.StartPC),
			EndPC:     int(eh.EndPC),
			HandlerPC: int(eh.HandlerPC),
		}
		if eh.CatchType == 0 {
			resolved.IsAny = true
		} else {
			catchName, err := classfile.GetClassName(cf.ConstantPool, eh.CatchType)
			if err != nil {
				return nil, err
			}
			catchClass, err := resolveNamed(h, loaderName, catchName)
			if err != nil {
				return nil, fmt.Errorf("resolving catch type %s: %w", catchName, err)
			}
			resolved.CatchType = rtdata.Linked(catchClass)
		}
		out = append(out, resolved)
	}
	return out, nil
}
