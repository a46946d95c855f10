package classfile

import "fmt"

// ParsedType is one parsed field/parameter/return type descriptor: either a
// primitive letter, an array of some component, or a class reference.
type ParsedType struct {
	Dimensions int    // 0 for a scalar, N for an N-deep array
	Primitive  byte   // non-zero for a primitive component (one of ZBSCIJFDV)
	ClassName  string // non-empty for a class component, internal form
}

// Descriptor returns the canonical descriptor string for this type.
func (t ParsedType) Descriptor() string {
	prefix := ""
	for i := 0; i < t.Dimensions; i++ {
		prefix += "["
	}
	if t.Primitive != 0 {
		return prefix + string(t.Primitive)
	}
	return prefix + "L" + t.ClassName + ";"
}

// IsPrimitive reports whether the scalar component of this type (ignoring
// any array dimensions) is a JVM primitive.
func (t ParsedType) IsPrimitive() bool { return t.Primitive != 0 }

func isValidFieldDescriptor(desc string) bool {
	_, rest, err := parseType(desc)
	return err == nil && rest == ""
}

// parseType parses one field-descriptor-shaped type from the front of s,
// returning the parsed type and the unconsumed remainder.
func parseType(s string) (ParsedType, string, error) {
	dims := 0
	for len(s) > 0 && s[0] == '[' {
		dims++
		s = s[1:]
	}
	if len(s) == 0 {
		return ParsedType{}, "", fmt.Errorf("empty type descriptor")
	}
	switch s[0] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D', 'V':
		return ParsedType{Dimensions: dims, Primitive: s[0]}, s[1:], nil
	case 'L':
		end := indexByte(s, ';')
		if end < 0 {
			return ParsedType{}, "", fmt.Errorf("unterminated class type descriptor %q", s)
		}
		return ParsedType{Dimensions: dims, ClassName: s[1:end]}, s[end+1:], nil
	default:
		return ParsedType{}, "", fmt.Errorf("invalid type descriptor byte %q", s[0])
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ParseFieldDescriptor parses a field descriptor string, e.g. "I" or
// "[Ljava/lang/String;".
func ParseFieldDescriptor(desc string) (ParsedType, error) {
	t, rest, err := parseType(desc)
	if err != nil {
		return ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: %v", desc, err)
	}
	if rest != "" {
		return ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: trailing data %q", desc, rest)
	}
	return t, nil
}

// ParseMethodDescriptor parses a method descriptor string, e.g.
// "(ILjava/lang/String;)V", into its ordered parameter types and return
// type.
func ParseMethodDescriptor(desc string) (params []ParsedType, ret ParsedType, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: missing '('", desc)
	}
	s := desc[1:]
	for len(s) > 0 && s[0] != ')' {
		var t ParsedType
		t, s, err = parseType(s)
		if err != nil {
			return nil, ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: %v", desc, err)
		}
		params = append(params, t)
	}
	if len(s) == 0 {
		return nil, ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: missing ')'", desc)
	}
	s = s[1:]
	ret, rest, err := parseType(s)
	if err != nil {
		return nil, ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: %v", desc, err)
	}
	if rest != "" {
		return nil, ParsedType{}, newDecodeError(ReasonInvalidDescriptor, "%s: trailing data %q", desc, rest)
	}
	return params, ret, nil
}

// JavaVersionName maps a class file major version to the Java release
// string it corresponds to (45 -> "1.1", ..., 68 -> "24").
func JavaVersionName(major uint16) string {
	names := map[uint16]string{
		45: "1.1", 46: "1.2", 47: "1.3", 48: "1.4", 49: "5", 50: "6",
		51: "7", 52: "8", 53: "9", 54: "10", 55: "11", 56: "12", 57: "13",
		58: "14", 59: "15", 60: "16", 61: "17", 62: "18", 63: "19", 64: "20",
		65: "21", 66: "22", 67: "23", 68: "24",
	}
	if n, ok := names[major]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", major)
}
