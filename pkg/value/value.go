// Package value describes the values a debugger hands to the pretty
// printers: pointers, structs, unions, arrays and scalars.
//
// Value is a closed set, every implementation lives in this package.
package value

import (
	"fmt"
	"strconv"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	InvalidKind Kind = iota
	PointerKind
	StructKind
	UnionKind
	ArrayKind
	ScalarKind
)

func (k Kind) String() string {
	switch k {
	case PointerKind:
		return "pointer"
	case StructKind:
		return "struct"
	case UnionKind:
		return "union"
	case ArrayKind:
		return "array"
	case ScalarKind:
		return "scalar"
	}
	return "invalid"
}

// Value is a value read out of the debugged kernel.
type Value interface {
	// Kind returns the tag of the value.
	Kind() Kind
	// TypeName returns the static type name of the value, it is empty for
	// scalars that were not given one.
	TypeName() string

	sealed()
}

// Pointer is a pointer to a value of type Elem stored at Addr. A zero Addr
// is a null pointer.
type Pointer struct {
	Addr uint64
	Elem string
}

// Field is a named member of a Struct.
type Field struct {
	Name  string
	Value Value
}

// Struct is a structure value, Fields are in declaration order.
type Struct struct {
	Type   string
	Fields []Field
}

// Union is a union value. The active member can not be determined so the
// contents are not carried.
type Union struct {
	Type string
}

// Array is a fixed length array of Len elements of type Elem.
type Array struct {
	Elem  string
	Len   int
	Elems []Value
}

// Scalar is a base value rendered through its own string form.
type Scalar struct {
	Type string
	Repr string
}

func (Pointer) Kind() Kind { return PointerKind }
func (Struct) Kind() Kind  { return StructKind }
func (Union) Kind() Kind   { return UnionKind }
func (Array) Kind() Kind   { return ArrayKind }
func (Scalar) Kind() Kind  { return ScalarKind }

func (p Pointer) TypeName() string { return "*" + p.Elem }
func (s Struct) TypeName() string  { return s.Type }
func (u Union) TypeName() string   { return u.Type }
func (a Array) TypeName() string   { return fmt.Sprintf("[%d]%s", a.Len, a.Elem) }
func (s Scalar) TypeName() string  { return s.Type }

func (Pointer) sealed() {}
func (Struct) sealed()  {}
func (Union) sealed()   {}
func (Array) sealed()   {}
func (Scalar) sealed()  {}

// IsNull reports whether p is the null pointer.
func (p Pointer) IsNull() bool {
	return p.Addr == 0
}

// Field returns the value of the field called name.
func (s Struct) Field(name string) (Value, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return s.Fields[i].Value, true
		}
	}
	return nil, false
}

// Int returns a signed integer scalar.
func Int(n int64) Scalar {
	return Scalar{Type: "isize", Repr: strconv.FormatInt(n, 10)}
}

// Uint returns an unsigned integer scalar.
func Uint(n uint64) Scalar {
	return Scalar{Type: "usize", Repr: strconv.FormatUint(n, 10)}
}

// Bool returns a boolean scalar.
func Bool(b bool) Scalar {
	return Scalar{Type: "bool", Repr: strconv.FormatBool(b)}
}

// Str returns a string scalar, the representation is quoted.
func Str(s string) Scalar {
	return Scalar{Type: "&str", Repr: strconv.Quote(s)}
}
