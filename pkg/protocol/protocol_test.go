package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portage-data/portage/pkg/connector"
)

func TestParseURIRejectsMissingScheme(t *testing.T) {
	_, err := ParseURI("/tmp/data.csv")
	assert.Error(t, err)
}

func TestParseURISplitsComponents(t *testing.T) {
	p, err := ParseURI("postgresql://reporting/public.orders?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgresql", p.Scheme)
	assert.Equal(t, "reporting", p.Host)
	assert.Equal(t, "disable", p.Query.Get("sslmode"))
}

func TestCreateSourceDispatchesToRegisteredScheme(t *testing.T) {
	RegisterSource("x-test-scheme", func(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
		return nil, nil
	})
	src, err := CreateSource(context.Background(), "x-test-scheme://whatever", nil)
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestCreateSourceErrorsOnUnknownScheme(t *testing.T) {
	_, err := CreateSource(context.Background(), "x-unregistered-scheme://whatever", nil)
	assert.Error(t, err)
}

func TestValidateURIReportsKnownSchemes(t *testing.T) {
	RegisterTarget("x-test-target-scheme", func(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
		return nil, nil
	})
	assert.NoError(t, ValidateURI("x-test-target-scheme://whatever"))
	assert.Contains(t, KnownSchemes(), "x-test-target-scheme")
}
