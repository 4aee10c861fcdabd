// Package coltype enumerates the scalar types a Column can hold and the
// facts the rest of the partition runtime needs about each one: element
// size for fixed-width data files, and the signed/unsigned fold rules a
// Range predicate needs when its bound is a double but the column is an
// integer type.
package coltype

import "fmt"

// Type is the scalar type of a column's values.
type Type int

const (
	Byte Type = iota
	UByte
	Short
	UShort
	Int
	UInt
	Long
	ULong
	Float
	Double
	Text
	Category
	Oid
)

func (t Type) String() string {
	switch t {
	case Byte:
		return "Byte"
	case UByte:
		return "UByte"
	case Short:
		return "Short"
	case UShort:
		return "UShort"
	case Int:
		return "Int"
	case UInt:
		return "UInt"
	case Long:
		return "Long"
	case ULong:
		return "ULong"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Text:
		return "Text"
	case Category:
		return "Category"
	case Oid:
		return "Oid"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps a header's textual type name to a Type. Matching is
// case-insensitive, the same convention the header parser uses for every
// other key.
func ParseType(s string) (Type, bool) {
	for t := Byte; t <= Oid; t++ {
		if equalFold(t.String(), s) {
			return t, true
		}
	}
	return 0, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// IsInteger reports whether t is one of the eight fixed-width integer
// types (as opposed to Float/Double/Text/Category/Oid).
func (t Type) IsInteger() bool {
	switch t {
	case Byte, UByte, Short, UShort, Int, UInt, Long, ULong:
		return true
	default:
		return false
	}
}

// IsSigned reports whether t is a signed integer type. Only meaningful
// when IsInteger(t) is true.
func (t Type) IsSigned() bool {
	switch t {
	case Byte, Short, Int, Long:
		return true
	default:
		return false
	}
}

// IsVariableWidth reports whether t has no fixed element size (Text,
// Category: search delegates to the column's string index rather than a
// flat binary file).
func (t Type) IsVariableWidth() bool {
	return t == Text || t == Category
}

// ElementSize returns the number of bytes one value of t occupies in a
// fixed-size-element column's data file, or -1 for variable-width or
// unsupported types. Column.ElementSize delegates
// directly to this.
func (t Type) ElementSize() int {
	switch t {
	case Byte, UByte:
		return 1
	case Short, UShort:
		return 2
	case Int, UInt, Float:
		return 4
	case Long, ULong, Double, Oid:
		return 8
	default:
		return -1
	}
}

// IntBounds returns the representable [min, max] range of t as int64/uint64
// pairs expressed in float64, used by Fold to decide whether a double bound
// is representable. Only meaningful for integer types.
func (t Type) IntBounds() (lo, hi float64) {
	switch t {
	case Byte:
		return -128, 127
	case UByte:
		return 0, 255
	case Short:
		return -32768, 32767
	case UShort:
		return 0, 65535
	case Int:
		return -2147483648, 2147483647
	case UInt:
		return 0, 4294967295
	case Long:
		return -9223372036854775808, 9223372036854775807
	case ULong:
		return 0, 18446744073709551615
	default:
		return 0, -1 // empty range: unset
	}
}
