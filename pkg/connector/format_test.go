package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFormatPrefersSourceTypeOverride(t *testing.T) {
	format, err := ResolveFormat("/tmp/data", map[string]string{"source_type": "csv"}, "source_type")
	require.NoError(t, err)
	assert.Equal(t, "csv", format)
}

func TestResolveFormatPrefersTargetTypeOverride(t *testing.T) {
	format, err := ResolveFormat("/tmp/data", map[string]string{"target_type": "json"}, "target_type")
	require.NoError(t, err)
	assert.Equal(t, "json", format)
}

func TestResolveFormatIgnoresSourceTypeForTargetSide(t *testing.T) {
	_, err := ResolveFormat("/tmp/data", map[string]string{"source_type": "csv"}, "target_type")
	assert.Error(t, err)
}

func TestResolveFormatFallsBackToExtension(t *testing.T) {
	format, err := ResolveFormat("/tmp/data.json", nil, "source_type")
	require.NoError(t, err)
	assert.Equal(t, "json", format)
}

func TestResolveFormatErrorsWithoutExtensionOrOverride(t *testing.T) {
	_, err := ResolveFormat("/tmp/data", nil, "source_type")
	assert.Error(t, err)
}

func TestOpenFormatSourceDispatchesToRegisteredFormat(t *testing.T) {
	RegisterFormatSource("x-test-format", func(ctx context.Context, path string, options map[string]string) (Source, error) {
		return nil, nil
	})
	src, err := OpenFormatSource(context.Background(), "/tmp/data", map[string]string{"source_type": "x-test-format"})
	require.NoError(t, err)
	assert.Nil(t, src)
}
