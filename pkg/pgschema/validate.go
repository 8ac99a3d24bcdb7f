package pgschema

import (
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/value"
)

// Validate produces a Row whose Values match schema's ColumnSpecs in
// order, per §4.1. Missing columns are filled from ColumnSpec.Default, or
// Null if nullable, else validation fails. Extra columns in row are
// dropped silently. Returns a *pgerrors.Error of KindDataValidation on any
// field-level failure, naming the column, expected type, and value.
func Validate(row Row, schema *Schema) (Row, error) {
	out := Row{Fields: make([]Field, len(schema.Columns))}

	for i := range schema.Columns {
		col := &schema.Columns[i]
		v, present := row.Get(col.Name)

		if !present {
			if col.Default != nil {
				v = *col.Default
			} else if col.Nullable {
				v = value.Null()
			} else {
				return Row{}, pgerrors.New(pgerrors.KindDataValidation, "missing required column").
					WithDetail("column", col.Name).
					WithDetail("expected_type", string(col.DataType))
			}
		}

		if v.IsNull() {
			if !col.Nullable {
				return Row{}, pgerrors.New(pgerrors.KindDataValidation, "null in non-nullable column").
					WithDetail("column", col.Name).
					WithDetail("expected_type", string(col.DataType))
			}
			out.Fields[i] = Field{Name: col.Name, Value: value.Null()}
			continue
		}

		coerced, err := value.Coerce(v, col.DataType)
		if err != nil {
			return Row{}, pgerrors.Wrap(err, pgerrors.KindDataValidation, "value not assignable to column type").
				WithDetail("column", col.Name).
				WithDetail("expected_type", string(col.DataType)).
				WithDetail("value", v.GoString())
		}

		if col.DataType == value.TypeString && col.Pattern != "" {
			re, err := col.CompiledPattern()
			if err != nil {
				return Row{}, pgerrors.Wrap(err, pgerrors.KindDataValidation, "invalid column pattern").
					WithDetail("column", col.Name)
			}
			s, _ := coerced.AsString()
			if re != nil && !re.MatchString(s) {
				return Row{}, pgerrors.New(pgerrors.KindDataValidation, "value does not match column pattern").
					WithDetail("column", col.Name).
					WithDetail("pattern", col.Pattern).
					WithDetail("value", s)
			}
		}

		out.Fields[i] = Field{Name: col.Name, Value: coerced}
	}

	return out, nil
}

// Project reorders row to match schema's column order, the step the
// transfer engine runs before handing a batch to a Target. Columns absent
// from row but present in schema are filled default-or-null; columns in
// row but absent from schema are dropped, UNLESS keepExtra is true (used
// when the Transformer introduced additive columns that must survive into
// the target schema derived from the first transformed row).
func Project(row Row, schema *Schema, keepExtra bool) Row {
	out := Row{Fields: make([]Field, 0, len(schema.Columns))}
	seen := make(map[string]bool, len(schema.Columns))

	for i := range schema.Columns {
		col := &schema.Columns[i]
		seen[col.Name] = true
		v, present := row.Get(col.Name)
		if !present {
			if col.Default != nil {
				v = *col.Default
			} else {
				v = value.Null()
			}
		}
		out.Fields = append(out.Fields, Field{Name: col.Name, Value: v})
	}

	if keepExtra {
		for _, f := range row.Fields {
			if !seen[f.Name] {
				out.Fields = append(out.Fields, f)
			}
		}
	}

	return out
}
