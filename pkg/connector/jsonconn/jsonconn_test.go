package jsonconn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func writeTempJSON(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourceDiscoverInfersSchemaFromObjects(t *testing.T) {
	path := writeTempJSON(t, `[{"id":1,"name":"alice"},{"id":2,"name":"bob"}]`)
	src := &Source{path: path}

	schema, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, value.TypeInteger, schema.Columns[0].DataType)
	require.NoError(t, src.Close(context.Background()))
}

func TestSourceReadStreamsAllObjects(t *testing.T) {
	path := writeTempJSON(t, `[{"id":1,"name":"alice"},{"id":2,"name":"bob"}]`)
	src := &Source{path: path}
	defer src.Close(context.Background())

	_, err := src.Discover(context.Background())
	require.NoError(t, err)

	stream, err := src.Read(context.Background())
	require.NoError(t, err)

	var rows []pgschema.Row
	for row := range stream.Rows {
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
}

func TestTargetWritesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	tgt := &Target{path: path}
	schema := &pgschema.Schema{Columns: []pgschema.ColumnSpec{
		{Name: "id", DataType: value.TypeInteger},
		{Name: "name", DataType: value.TypeString},
	}}
	require.NoError(t, tgt.Prepare(context.Background(), schema, connector.ModeTruncate))

	rows := []pgschema.Row{
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(1)}, {Name: "name", Value: value.String("alice")}}},
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(2)}, {Name: "name", Value: value.String("bob")}}},
	}
	require.NoError(t, tgt.WriteBatch(context.Background(), rows))
	require.NoError(t, tgt.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":1`)
	assert.Contains(t, string(data), `"name":"bob"`)
}

func TestTargetRejectsAppend(t *testing.T) {
	dir := t.TempDir()
	tgt := &Target{path: filepath.Join(dir, "out.json")}
	schema := &pgschema.Schema{Columns: []pgschema.ColumnSpec{{Name: "id", DataType: value.TypeInteger}}}
	err := tgt.Prepare(context.Background(), schema, connector.ModeAppend)
	assert.Error(t, err)
}
