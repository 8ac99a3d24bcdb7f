package byteendpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/portage-data/portage/pkg/connector/delimited"
)

func TestOpenFileSourceDispatchesToCSVFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,alice\n"), 0o644))

	src, err := openFileSource(context.Background(), "file://"+path, nil)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.NoError(t, src.Close(context.Background()))
}

func TestOpenFileTargetCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.csv")

	tgt, err := openFileTarget(context.Background(), "file://"+path, nil)
	require.NoError(t, err)
	require.NotNil(t, tgt)
	_, statErr := os.Stat(filepath.Dir(path))
	assert.NoError(t, statErr)
}

func TestLocalPathFromFileURIRejectsEmptyPath(t *testing.T) {
	_, _, err := localPathFromFileURI("file://")
	assert.Error(t, err)
}

func TestLocalPathFromFileURICapturesFragment(t *testing.T) {
	path, fragment, err := localPathFromFileURI("file:///tmp/employees.xlsx#Sheet1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/employees.xlsx", path)
	assert.Equal(t, "Sheet1", fragment)
}
