// Package pgschema implements the Schema subsystem: ColumnSpec/Schema/Row
// types, inference from sampled rows, explicit schema document loading,
// per-row validation with defaulting, and projection to a connector's
// requested column order.
package pgschema

import (
	"regexp"

	"github.com/portage-data/portage/pkg/value"
)

// ColumnSpec describes one column's contract.
type ColumnSpec struct {
	Name        string
	DataType    value.DataType
	Nullable    bool
	Default     *value.Value
	Pattern     string
	Description string

	compiledPattern *regexp.Regexp
}

// CompiledPattern lazily compiles and caches Pattern, returning nil if no
// pattern is set.
func (c *ColumnSpec) CompiledPattern() (*regexp.Regexp, error) {
	if c.Pattern == "" {
		return nil, nil
	}
	if c.compiledPattern == nil {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, err
		}
		c.compiledPattern = re
	}
	return c.compiledPattern, nil
}

// Schema is an ordered sequence of ColumnSpec. Order is semantically
// meaningful: it is the canonical projection order for position-oriented
// targets (delimited text, spreadsheet, columnar).
type Schema struct {
	Columns []ColumnSpec
}

// ColumnNames returns the schema's column names in declared order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexOf returns the position of the named column, or -1.
func (s *Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Field is a single (name, Value) pair within a Row.
type Field struct {
	Name  string
	Value value.Value
}

// Row is an ordered sequence of (name, Value) pairs. Before validation a
// Row may carry its natural source order; after validation its order
// matches the owning Schema exactly (§3 invariant).
type Row struct {
	Fields []Field
}

// Get returns the value for name and whether it was present.
func (r Row) Get(name string) (value.Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return value.Value{}, false
}

// Set assigns name=val, replacing an existing field of the same name or
// appending a new one at the end.
func (r *Row) Set(name string, val value.Value) {
	for i, f := range r.Fields {
		if f.Name == name {
			r.Fields[i].Value = val
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: val})
}

// Names returns the row's current field names in order.
func (r Row) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
