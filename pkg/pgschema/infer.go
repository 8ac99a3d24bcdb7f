package pgschema

import (
	"strconv"
	"strings"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/value"
)

// DefaultSampleSize is N in §4.4: the number of leading rows sampled for
// inference before being prepended back onto the source's stream.
const DefaultSampleSize = 100

// Infer computes a Schema from a sample of rows, using the widest natural
// source-field order as the column order (first row's order, extended by
// any columns only seen in later rows). Every inferred column is
// nullable, per the §3 invariant: sample data cannot prove absence of
// nulls.
func Infer(name string, sample []Row) (*Schema, error) {
	if len(sample) == 0 {
		return nil, pgerrors.New(pgerrors.KindSchemaInference, "sample is empty").WithDetail("schema", name)
	}

	order := make([]string, 0)
	seen := make(map[string]bool)
	values := make(map[string][]value.Value)

	for _, row := range sample {
		for _, f := range row.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				order = append(order, f.Name)
			}
			values[f.Name] = append(values[f.Name], f.Value)
		}
	}

	cols := make([]ColumnSpec, 0, len(order))
	for _, colName := range order {
		dt, err := inferColumnType(values[colName])
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "ambiguous column").
				WithDetail("column", colName)
		}
		cols = append(cols, ColumnSpec{Name: colName, DataType: dt, Nullable: true})
	}

	return &Schema{Columns: cols}, nil
}

// inferColumnType finds the most specific DataType that accepts every
// non-null sampled value, under the widening lattice, else falls back to
// String.
func inferColumnType(vals []value.Value) (value.DataType, error) {
	var detected value.DataType
	first := true

	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		dt := detectScalarType(v)
		if first {
			detected = dt
			first = false
			continue
		}
		detected = widen(detected, dt)
	}

	if first {
		// sample had only nulls for this column: narrowest useful type.
		return value.TypeString, nil
	}
	return detected, nil
}

// detectScalarType classifies a single value the way a delimited-text or
// JSON source presents it: strings are probed for narrower types (most
// connectors hand inference raw strings), everything else reports its own
// variant directly.
func detectScalarType(v value.Value) value.DataType {
	s, ok := v.AsString()
	if !ok {
		return v.DataType()
	}
	s = strings.TrimSpace(s)
	if isBooleanLiteral(s) {
		return value.TypeBoolean
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return value.TypeDecimal
	}
	if _, err := value.Coerce(value.String(s), value.TypeDate); err == nil {
		return value.TypeDate
	}
	if _, err := value.Coerce(value.String(s), value.TypeDateTime); err == nil {
		return value.TypeDateTime
	}
	return value.TypeString
}

func isBooleanLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	default:
		return false
	}
}

// widen combines two observed types under the lattice: Integer<Decimal,
// Date<DateTime, else String. Boolean only survives if every value agreed
// on Boolean; any mismatch with a non-Boolean numeric/temporal type falls
// through to String.
func widen(a, b value.DataType) value.DataType {
	if a == b {
		return a
	}
	if isNumeric(a) && isNumeric(b) {
		return value.TypeDecimal
	}
	if isTemporal(a) && isTemporal(b) {
		return value.TypeDateTime
	}
	return value.TypeString
}

func isNumeric(t value.DataType) bool {
	return t == value.TypeInteger || t == value.TypeDecimal
}

func isTemporal(t value.DataType) bool {
	return t == value.TypeDate || t == value.TypeDateTime
}
