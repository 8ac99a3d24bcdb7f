package value

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceStringToInteger(t *testing.T) {
	v, err := Coerce(String("42"), TypeInteger)
	require.NoError(t, err)
	i, ok := v.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, err = Coerce(String("not-a-number"), TypeInteger)
	assert.Error(t, err)
}

func TestCoerceDecimalToIntegerFailsOnFraction(t *testing.T) {
	d, _ := decimal.NewFromString("12.50")
	_, err := Coerce(Decimal(d), TypeInteger)
	assert.Error(t, err)

	whole, _ := decimal.NewFromString("12.00")
	v, err := Coerce(Decimal(whole), TypeInteger)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(12), i)
}

func TestCoerceStringToBoolean(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{"true", true}, {"FALSE", false}, {"1", true}, {"0", false}, {"yes", true}, {"No", false},
	} {
		v, err := Coerce(String(tc.in), TypeBoolean)
		require.NoError(t, err)
		b, _ := v.AsBoolean()
		assert.Equal(t, tc.want, b)
	}

	_, err := Coerce(String("maybe"), TypeBoolean)
	assert.Error(t, err)
}

func TestIntegerWidensToDecimalAlways(t *testing.T) {
	v, err := Coerce(Integer(7), TypeDecimal)
	require.NoError(t, err)
	d, _ := v.AsDecimal()
	assert.True(t, d.Equal(decimal.NewFromInt(7)))
}

func TestNullCoercesToAnything(t *testing.T) {
	v, err := Coerce(Null(), TypeInteger)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestCanonicalStringForms(t *testing.T) {
	assert.Equal(t, "true", ToCanonicalString(Boolean(true)))
	assert.Equal(t, "2024-01-05", ToCanonicalString(Date(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))))
	dt := time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, dt.Format(time.RFC3339), ToCanonicalString(DateTime(dt)))
}
