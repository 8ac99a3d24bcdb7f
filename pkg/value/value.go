// Package value implements the universal typed row representation shared
// by every connector: a closed DataType sum and a tagged Value variant.
package value

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DataType is a closed sum over the types a column may carry.
type DataType string

const (
	TypeString   DataType = "string"
	TypeInteger  DataType = "integer"
	TypeDecimal  DataType = "decimal"
	TypeBoolean  DataType = "boolean"
	TypeDate     DataType = "date"
	TypeDateTime DataType = "datetime"
	TypeNull     DataType = "null"
	TypeArray    DataType = "array"
	TypeMap      DataType = "map"
)

// ArrayType and MapType describe the inner/value type of a complex column.
// They are only meaningful when the owning ColumnSpec.DataType is
// TypeArray or TypeMap respectively.
type ArrayType struct {
	Inner DataType
}

type MapType struct {
	Value DataType
}

// Kind identifies which variant a Value currently holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindDecimal
	KindBoolean
	KindDate
	KindDateTime
	KindArray
	KindMap
)

// Value is a tagged variant. Small variants (integer, boolean, date,
// datetime) are stored inline in the struct; the large ones (string,
// decimal, array, map) live behind a pointer/slice/map so the common case
// of scanning a batch of small values touches no extra allocations.
type Value struct {
	kind Kind

	i   int64
	b   bool
	t   time.Time
	s   string
	dec decimal.Decimal
	arr []Value
	m   map[string]Value
}

// Null returns the null marker.
func Null() Value { return Value{kind: KindNull} }

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Integer wraps a 64-bit signed integer.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Decimal wraps an arbitrary-precision decimal.
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

// Boolean wraps a boolean.
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Date wraps a calendar date (time-of-day components are ignored).
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// DateTime wraps an instant. The timezone carried on t is preserved as-is;
// per design note §9 naive values are accepted and never silently converted.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

// Array wraps an ordered list of Values.
func Array(vs []Value) Value { return Value{kind: KindArray, arr: vs} }

// Map wraps a string-keyed map of Values.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool)       { return v.s, v.kind == KindString }
func (v Value) AsInteger() (int64, bool)       { return v.i, v.kind == KindInteger }
func (v Value) AsDecimal() (decimal.Decimal, bool) { return v.dec, v.kind == KindDecimal }
func (v Value) AsBoolean() (bool, bool)        { return v.b, v.kind == KindBoolean }
func (v Value) AsDate() (time.Time, bool)      { return v.t, v.kind == KindDate }
func (v Value) AsDateTime() (time.Time, bool)  { return v.t, v.kind == KindDateTime }
func (v Value) AsArray() ([]Value, bool)       { return v.arr, v.kind == KindArray }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// DataType reports the DataType that this Value's current variant
// naturally belongs to. Array/Map values carry no inner-type information
// here; that comes from the owning ColumnSpec.
func (v Value) DataType() DataType {
	switch v.kind {
	case KindNull:
		return TypeNull
	case KindString:
		return TypeString
	case KindInteger:
		return TypeInteger
	case KindDecimal:
		return TypeDecimal
	case KindBoolean:
		return TypeBoolean
	case KindDate:
		return TypeDate
	case KindDateTime:
		return TypeDateTime
	case KindArray:
		return TypeArray
	case KindMap:
		return TypeMap
	default:
		return TypeNull
	}
}

// Equal reports whether two values carry the same variant and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == other.s
	case KindInteger:
		return v.i == other.i
	case KindDecimal:
		return v.dec.Equal(other.dec)
	case KindBoolean:
		return v.b == other.b
	case KindDate, KindDateTime:
		return v.t.Equal(other.t)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := other.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// GoString renders a Value for debugging/error messages.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindDecimal:
		return v.dec.String()
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindDate:
		return v.t.Format(time.DateOnly)
	case KindDateTime:
		return v.t.Format(time.RFC3339)
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.arr))
	case KindMap:
		return fmt.Sprintf("map[%d]", len(v.m))
	default:
		return "<invalid>"
	}
}
