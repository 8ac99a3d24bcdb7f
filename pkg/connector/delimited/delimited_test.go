package delimited

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

func writeTempCSV(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourceDiscoverInfersSchemaFromHeader(t *testing.T) {
	path := writeTempCSV(t, "id,name\n1,alice\n2,bob\n")
	src := &Source{path: path, opts: parseOptions(nil)}

	schema, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, "id", schema.Columns[0].Name)
	assert.Equal(t, value.TypeInteger, schema.Columns[0].DataType)
	require.NoError(t, src.Close(context.Background()))
}

func TestSourceReadStreamsAllRows(t *testing.T) {
	path := writeTempCSV(t, "id,name\n1,alice\n2,bob\n")
	src := &Source{path: path, opts: parseOptions(nil)}
	defer src.Close(context.Background())

	_, err := src.Discover(context.Background())
	require.NoError(t, err)

	stream, err := src.Read(context.Background())
	require.NoError(t, err)

	var rows []pgschema.Row
	for row := range stream.Rows {
		rows = append(rows, row)
	}
	require.NoError(t, drainErr(stream.Errors))
	require.Len(t, rows, 2)
	name, _ := rows[0].Fields[1].Value.AsString()
	assert.Equal(t, "alice", name)
}

func drainErr(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func TestTargetWritesHeaderAndRowsOnTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	tgt := &Target{path: path, opts: parseOptions(nil)}
	schema := &pgschema.Schema{Columns: []pgschema.ColumnSpec{
		{Name: "id", DataType: value.TypeInteger},
		{Name: "name", DataType: value.TypeString},
	}}
	require.NoError(t, tgt.Prepare(context.Background(), schema, connector.ModeTruncate))

	row := pgschema.Row{Fields: []pgschema.Field{
		{Name: "id", Value: value.Integer(1)},
		{Name: "name", Value: value.String("alice")},
	}}
	require.NoError(t, tgt.WriteBatch(context.Background(), []pgschema.Row{row}))
	require.NoError(t, tgt.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,alice\n", string(data))
}

func TestTargetAppendsWithoutRewritingHeader(t *testing.T) {
	path := writeTempCSV(t, "id,name\n1,alice\n")
	tgt := &Target{path: path, opts: parseOptions(nil)}
	schema := &pgschema.Schema{Columns: []pgschema.ColumnSpec{
		{Name: "id", DataType: value.TypeInteger},
		{Name: "name", DataType: value.TypeString},
	}}
	require.NoError(t, tgt.Prepare(context.Background(), schema, connector.ModeAppend))

	row := pgschema.Row{Fields: []pgschema.Field{
		{Name: "id", Value: value.Integer(2)},
		{Name: "name", Value: value.String("bob")},
	}}
	require.NoError(t, tgt.WriteBatch(context.Background(), []pgschema.Row{row}))
	require.NoError(t, tgt.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,alice\n2,bob\n", string(data))
}
