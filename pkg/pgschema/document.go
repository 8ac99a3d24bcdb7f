package pgschema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/value"
)

// columnDoc is the YAML shape of one entry in a schema document's
// "columns" list, per §6.
type columnDoc struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Nullable    bool        `yaml:"nullable"`
	Default     interface{} `yaml:"default,omitempty"`
	Pattern     string      `yaml:"pattern,omitempty"`
	Description string      `yaml:"description,omitempty"`
}

type schemaDoc struct {
	Columns []columnDoc `yaml:"columns"`
}

// LoadDocument parses an explicit schema YAML document. Order in the
// document is preserved as Schema.Columns order, which then governs
// projection per §4.4. An explicit document REPLACES inference and is
// authoritative for nullability, defaults, and patterns.
func LoadDocument(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "failed to read schema document").
			WithDetail("path", path)
	}
	return ParseDocument(data)
}

// ParseDocument parses an explicit schema document from raw YAML bytes.
func ParseDocument(data []byte) (*Schema, error) {
	var doc schemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "failed to parse schema document")
	}

	cols := make([]ColumnSpec, 0, len(doc.Columns))
	for _, cd := range doc.Columns {
		dt, err := parseDataType(cd.Type)
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "invalid column type").
				WithDetail("column", cd.Name)
		}
		col := ColumnSpec{
			Name:        cd.Name,
			DataType:    dt,
			Nullable:    cd.Nullable,
			Pattern:     cd.Pattern,
			Description: cd.Description,
		}
		if cd.Default != nil {
			dv, err := literalToValue(cd.Default, dt)
			if err != nil {
				return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "invalid default literal").
					WithDetail("column", cd.Name)
			}
			col.Default = &dv
		}
		cols = append(cols, col)
	}

	return &Schema{Columns: cols}, nil
}

func parseDataType(s string) (value.DataType, error) {
	switch s {
	case "string":
		return value.TypeString, nil
	case "integer":
		return value.TypeInteger, nil
	case "decimal":
		return value.TypeDecimal, nil
	case "boolean":
		return value.TypeBoolean, nil
	case "date":
		return value.TypeDate, nil
	case "datetime":
		return value.TypeDateTime, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

func literalToValue(lit interface{}, dt value.DataType) (value.Value, error) {
	switch v := lit.(type) {
	case string:
		return value.Coerce(value.String(v), dt)
	case int:
		return value.Coerce(value.Integer(int64(v)), dt)
	case int64:
		return value.Coerce(value.Integer(v), dt)
	case bool:
		if dt != value.TypeBoolean {
			return value.Value{}, fmt.Errorf("boolean literal for non-boolean column")
		}
		return value.Boolean(v), nil
	case float64:
		return value.Coerce(value.String(fmt.Sprintf("%v", v)), dt)
	default:
		return value.Value{}, fmt.Errorf("unsupported default literal type %T", lit)
	}
}
