package pgschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portage-data/portage/pkg/value"
)

func row(pairs ...interface{}) Row {
	r := Row{}
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return r
}

func TestInferAllColumnsNullable(t *testing.T) {
	sample := []Row{
		row("id", value.String("1"), "name", value.String("alice")),
		row("id", value.String("2"), "name", value.String("bob")),
	}
	schema, err := Infer("t", sample)
	require.NoError(t, err)
	for _, c := range schema.Columns {
		assert.True(t, c.Nullable)
	}
	assert.Equal(t, value.TypeInteger, schema.Columns[0].DataType)
}

func TestInferWidensIntegerAndDecimal(t *testing.T) {
	sample := []Row{
		row("price", value.String("10")),
		row("price", value.String("10.50")),
	}
	schema, err := Infer("t", sample)
	require.NoError(t, err)
	assert.Equal(t, value.TypeDecimal, schema.Columns[0].DataType)
}

func TestInferEmptySampleErrors(t *testing.T) {
	_, err := Infer("t", nil)
	assert.Error(t, err)
}

func TestValidateOrdersColumnsAndFillsDefault(t *testing.T) {
	def := value.String("unknown")
	schema := &Schema{Columns: []ColumnSpec{
		{Name: "id", DataType: value.TypeInteger, Nullable: false},
		{Name: "name", DataType: value.TypeString, Nullable: true, Default: &def},
	}}
	in := row("id", value.String("5"))
	out, err := Validate(in, schema)
	require.NoError(t, err)
	require.Len(t, out.Fields, 2)
	assert.Equal(t, "id", out.Fields[0].Name)
	assert.Equal(t, "name", out.Fields[1].Name)
	nameVal, _ := out.Fields[1].Value.AsString()
	assert.Equal(t, "unknown", nameVal)
}

func TestValidateRejectsNullInNonNullable(t *testing.T) {
	schema := &Schema{Columns: []ColumnSpec{
		{Name: "email", DataType: value.TypeString, Nullable: false},
	}}
	in := row("email", value.Null())
	_, err := Validate(in, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_validation")
}

func TestValidateEnforcesPattern(t *testing.T) {
	schema := &Schema{Columns: []ColumnSpec{
		{Name: "code", DataType: value.TypeString, Nullable: true, Pattern: `^[A-Z]{3}$`},
	}}
	_, err := Validate(row("code", value.String("abc")), schema)
	assert.Error(t, err)

	out, err := Validate(row("code", value.String("ABC")), schema)
	require.NoError(t, err)
	s, _ := out.Fields[0].Value.AsString()
	assert.Equal(t, "ABC", s)
}

func TestProjectDropsExtraUnlessKept(t *testing.T) {
	schema := &Schema{Columns: []ColumnSpec{{Name: "a", DataType: value.TypeString, Nullable: true}}}
	in := row("a", value.String("1"), "b", value.String("2"))

	dropped := Project(in, schema, false)
	assert.Len(t, dropped.Fields, 1)

	kept := Project(in, schema, true)
	assert.Len(t, kept.Fields, 2)
	assert.Equal(t, "b", kept.Fields[1].Name)
}

func TestParseDocumentPreservesOrder(t *testing.T) {
	doc := []byte(`
columns:
  - { name: id, type: integer, nullable: false }
  - { name: email, type: string, nullable: false, pattern: "^.+@.+$" }
  - { name: note, type: string, nullable: true, default: "n/a" }
`)
	schema, err := ParseDocument(doc)
	require.NoError(t, err)
	require.Len(t, schema.Columns, 3)
	assert.Equal(t, []string{"id", "email", "note"}, schema.ColumnNames())
	assert.False(t, schema.Columns[0].Nullable)
	require.NotNil(t, schema.Columns[2].Default)
}
