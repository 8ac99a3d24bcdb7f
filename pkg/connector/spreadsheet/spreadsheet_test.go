package spreadsheet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func testSchema() *pgschema.Schema {
	return &pgschema.Schema{Columns: []pgschema.ColumnSpec{
		{Name: "id", DataType: value.TypeInteger, Nullable: false},
		{Name: "name", DataType: value.TypeString, Nullable: true},
	}}
}

func TestTargetAndSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.xlsx")

	target := &Target{path: path}
	require.NoError(t, target.Prepare(ctx, testSchema(), connector.ModeTruncate))
	require.NoError(t, target.WriteBatch(ctx, []pgschema.Row{
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(1)}, {Name: "name", Value: value.String("alice")}}},
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(2)}, {Name: "name", Value: value.Null()}}},
	}))
	require.NoError(t, target.Close(ctx))

	source := &Source{path: path}
	schema, err := source.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.ColumnNames())

	stream, err := source.Read(ctx)
	require.NoError(t, err)

	var got []pgschema.Row
	for row := range stream.Rows {
		got = append(got, row)
	}
	require.NoError(t, <-stream.Errors)
	require.NoError(t, source.Close(ctx))

	require.Len(t, got, 2)
	id1, _ := got[0].Fields[0].Value.AsInteger()
	assert.Equal(t, int64(1), id1)
	name1, _ := got[0].Fields[1].Value.AsString()
	assert.Equal(t, "alice", name1)
	assert.True(t, got[1].Fields[1].Value.IsNull())
}

func TestTargetRejectsAppend(t *testing.T) {
	target := &Target{path: filepath.Join(t.TempDir(), "rows.xlsx")}
	err := target.Prepare(context.Background(), testSchema(), connector.ModeAppend)
	assert.Error(t, err)
}

func TestTargetWritesToNamedSheet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.xlsx")

	target, err := newTarget(ctx, path, map[string]string{"sheet": "EmployeeData"})
	require.NoError(t, err)
	require.NoError(t, target.Prepare(ctx, testSchema(), connector.ModeTruncate))
	require.NoError(t, target.WriteBatch(ctx, []pgschema.Row{
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(1)}, {Name: "name", Value: value.String("alice")}}},
	}))
	require.NoError(t, target.Close(ctx))

	source, err := newSource(ctx, path, map[string]string{"sheet": "EmployeeData"})
	require.NoError(t, err)
	schema, err := source.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.ColumnNames())
	require.NoError(t, source.Close(ctx))
}

func TestSourceDefaultsToFirstSheetWhenUnset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.xlsx")

	target, err := newTarget(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, target.Prepare(ctx, testSchema(), connector.ModeTruncate))
	require.NoError(t, target.WriteBatch(ctx, []pgschema.Row{
		{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(1)}, {Name: "name", Value: value.String("alice")}}},
	}))
	require.NoError(t, target.Close(ctx))

	source, err := newSource(ctx, path, nil)
	require.NoError(t, err)
	_, err = source.Discover(ctx)
	require.NoError(t, err)
	require.NoError(t, source.Close(ctx))
}
