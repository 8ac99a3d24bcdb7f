package compressed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPrefersOptionOverSuffix(t *testing.T) {
	assert.Equal(t, Zstd, Detect("data.gz", map[string]string{"compression": "zstd"}))
}

func TestDetectFallsBackToSuffix(t *testing.T) {
	assert.Equal(t, Gzip, Detect("data.csv.gz", nil))
	assert.Equal(t, None, Detect("data.csv", nil))
}

func TestStripSuffixRemovesRecognizedSuffix(t *testing.T) {
	assert.Equal(t, "data.csv", StripSuffix("data.csv.gz"))
	assert.Equal(t, "data.csv", StripSuffix("data.csv"))
}

func TestCompressAndDecompressRoundTripGzip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.txt")
	compressedPath := filepath.Join(dir, "plain.txt.gz")
	roundTripped := filepath.Join(dir, "roundtrip.txt")

	require.NoError(t, os.WriteFile(src, []byte("hello, portage"), 0o644))
	require.NoError(t, CompressToFile(src, compressedPath, Gzip))
	require.NoError(t, DecompressToFile(compressedPath, roundTripped, Gzip))

	data, err := os.ReadFile(roundTripped)
	require.NoError(t, err)
	assert.Equal(t, "hello, portage", string(data))
}
