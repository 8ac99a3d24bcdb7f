package transform

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func TestInlineTransformIsAdditive(t *testing.T) {
	tr, err := Compile(Config{Type: TypeInline, Value: "full_name=row.name + ' (' + row.product_code + ')'"})
	require.NoError(t, err)
	require.NotNil(t, tr)

	row := pgschema.Row{Fields: []pgschema.Field{
		{Name: "product_code", Value: value.String("WIDGET")},
		{Name: "name", Value: value.String("Widget")},
	}}

	out, keep, err := tr.Apply(row)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Len(t, out.Fields, 3)
	full, ok := out.Get("full_name")
	require.True(t, ok)
	s, _ := full.AsString()
	assert.Equal(t, "Widget (WIDGET)", s)
}

func TestInlineTransformReplacesExistingColumn(t *testing.T) {
	tr, err := Compile(Config{Type: TypeInline, Value: "name=row.name + '!'"})
	require.NoError(t, err)

	row := pgschema.Row{Fields: []pgschema.Field{{Name: "name", Value: value.String("Widget")}}}
	out, keep, err := tr.Apply(row)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Len(t, out.Fields, 1)
	v, _ := out.Get("name")
	s, _ := v.AsString()
	assert.Equal(t, "Widget!", s)
}

func TestScriptTransformIsProjective(t *testing.T) {
	tr, err := Compile(Config{Type: TypeScript, Value: "{\"id\": row.id}"})
	require.NoError(t, err)

	row := pgschema.Row{Fields: []pgschema.Field{
		{Name: "id", Value: value.Integer(1)},
		{Name: "name", Value: value.String("alice")},
	}}
	out, keep, err := tr.Apply(row)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Len(t, out.Fields, 1)
	assert.Equal(t, "id", out.Fields[0].Name)
}

func TestScriptTransformNilDropsRow(t *testing.T) {
	tr, err := Compile(Config{Type: TypeScript, Value: "row.id > 0 ? {\"id\": row.id} : nil"})
	require.NoError(t, err)

	row := pgschema.Row{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(-1)}}}
	_, keep, err := tr.Apply(row)
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestCompileNoneReturnsNilTransformer(t *testing.T) {
	tr, err := Compile(Config{Type: TypeNone})
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestInlineTransformRejectsMalformedAssignment(t *testing.T) {
	_, err := Compile(Config{Type: TypeInline, Value: "not-an-assignment"})
	assert.Error(t, err)
}

func TestInlineTransformDecimalArithmeticStaysExact(t *testing.T) {
	tr, err := Compile(Config{Type: TypeInline, Value: "price_cents=row.unit_price * 100"})
	require.NoError(t, err)

	unitPrice, err := decimal.NewFromString("1299.99")
	require.NoError(t, err)
	row := pgschema.Row{Fields: []pgschema.Field{{Name: "unit_price", Value: value.Decimal(unitPrice)}}}

	out, keep, err := tr.Apply(row)
	require.NoError(t, err)
	assert.True(t, keep)
	priceCents, ok := out.Get("price_cents")
	require.True(t, ok)
	d, ok := priceCents.AsDecimal()
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(129999).Equal(d), "expected 129999, got %s", d.String())
}
