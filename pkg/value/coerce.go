package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoerceError reports a value that could not be coerced to a target DataType.
type CoerceError struct {
	From  Value
	To    DataType
	Cause error
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("cannot coerce %s (%s) to %s: %v", e.From.GoString(), e.From.DataType(), e.To, e.Cause)
}

func (e *CoerceError) Unwrap() error { return e.Cause }

// Coerce converts v to the target DataType following the asymmetric rules
// in §4.1. Null coerces to any DataType (nullability is enforced by the
// caller, not here). A Value already holding the target's variant is
// returned unchanged.
func Coerce(v Value, to DataType) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	if v.DataType() == to {
		return v, nil
	}

	switch to {
	case TypeString:
		return String(ToCanonicalString(v)), nil
	case TypeInteger:
		return coerceToInteger(v)
	case TypeDecimal:
		return coerceToDecimal(v)
	case TypeBoolean:
		return coerceToBoolean(v)
	case TypeDate:
		return coerceToDate(v)
	case TypeDateTime:
		return coerceToDateTime(v)
	case TypeArray, TypeMap:
		return Value{}, &CoerceError{From: v, To: to, Cause: fmt.Errorf("complex types are not coerced from scalars")}
	default:
		return Value{}, &CoerceError{From: v, To: to, Cause: fmt.Errorf("unknown target type")}
	}
}

func coerceToInteger(v Value) (Value, error) {
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, &CoerceError{From: v, To: TypeInteger, Cause: err}
		}
		return Integer(i), nil
	case KindDecimal:
		d, _ := v.AsDecimal()
		if !d.Equal(d.Truncate(0)) {
			return Value{}, &CoerceError{From: v, To: TypeInteger, Cause: fmt.Errorf("non-zero fractional part")}
		}
		return Integer(d.IntPart()), nil
	default:
		return Value{}, &CoerceError{From: v, To: TypeInteger, Cause: fmt.Errorf("unsupported source variant")}
	}
}

func coerceToDecimal(v Value) (Value, error) {
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return Value{}, &CoerceError{From: v, To: TypeDecimal, Cause: err}
		}
		return Decimal(d), nil
	case KindInteger:
		i, _ := v.AsInteger()
		return Decimal(decimal.NewFromInt(i)), nil
	default:
		return Value{}, &CoerceError{From: v, To: TypeDecimal, Cause: fmt.Errorf("unsupported source variant")}
	}
}

// booleanLiterals is the recognized case-insensitive set from §4.1.
var booleanLiterals = map[string]bool{
	"true": true, "false": false,
	"1": true, "0": false,
	"yes": true, "no": false,
}

func coerceToBoolean(v Value) (Value, error) {
	s, ok := v.AsString()
	if !ok {
		return Value{}, &CoerceError{From: v, To: TypeBoolean, Cause: fmt.Errorf("unsupported source variant")}
	}
	b, ok := booleanLiterals[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Value{}, &CoerceError{From: v, To: TypeBoolean, Cause: fmt.Errorf("not a recognized boolean literal")}
	}
	return Boolean(b), nil
}

// dateLayouts and dateTimeLayouts are tried in order during coercion from
// String. Locale is intentionally ignored (open question in §9, resolved
// as: parse with the C locale, decimal separator is always '.').
var dateLayouts = []string{time.DateOnly, "2006/01/02", "01/02/2006"}
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func coerceToDate(v Value) (Value, error) {
	s, ok := v.AsString()
	if !ok {
		return Value{}, &CoerceError{From: v, To: TypeDate, Cause: fmt.Errorf("unsupported source variant")}
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date(t), nil
		}
	}
	return Value{}, &CoerceError{From: v, To: TypeDate, Cause: fmt.Errorf("no recognized date layout")}
}

func coerceToDateTime(v Value) (Value, error) {
	s, ok := v.AsString()
	if !ok {
		return Value{}, &CoerceError{From: v, To: TypeDateTime, Cause: fmt.Errorf("unsupported source variant")}
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime(t), nil
		}
	}
	// naive value with no timezone: accept, treat as unspecified-zone (§9).
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime(t), nil
		}
	}
	return Value{}, &CoerceError{From: v, To: TypeDateTime, Cause: fmt.Errorf("no recognized datetime layout")}
}

// ToCanonicalString renders any non-null Value in its canonical textual
// form, per §4.1: booleans lowercase, dates as YYYY-MM-DD, datetimes as
// ISO-8601 with seconds precision or finer, decimals without trailing
// zeros beyond the declared scale.
func ToCanonicalString(v Value) string {
	switch v.Kind() {
	case KindNull:
		return ""
	case KindString:
		s, _ := v.AsString()
		return s
	case KindInteger:
		i, _ := v.AsInteger()
		return strconv.FormatInt(i, 10)
	case KindDecimal:
		d, _ := v.AsDecimal()
		return d.String()
	case KindBoolean:
		b, _ := v.AsBoolean()
		if b {
			return "true"
		}
		return "false"
	case KindDate:
		t, _ := v.AsDate()
		return t.Format(time.DateOnly)
	case KindDateTime:
		t, _ := v.AsDateTime()
		return t.Format(time.RFC3339)
	case KindArray, KindMap:
		return v.GoString()
	default:
		return ""
	}
}
