package columnar

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
		{Name: "active", DataType: value.TypeBoolean, Nullable: false},
	}}
}

func testRows() []pgschema.Row {
	return []pgschema.Row{
		{Fields: []pgschema.Field{
			{Name: "id", Value: value.Integer(1)},
			{Name: "name", Value: value.String("alice")},
			{Name: "active", Value: value.Boolean(true)},
		}},
		{Fields: []pgschema.Field{
			{Name: "id", Value: value.Integer(2)},
			{Name: "name", Value: value.Null()},
			{Name: "active", Value: value.Boolean(false)},
		}},
	}
}

func TestArrowTargetAndSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.arrow")

	target := &ArrowTarget{path: path}
	require.NoError(t, target.Prepare(ctx, testSchema(), connector.ModeTruncate))
	require.NoError(t, target.WriteBatch(ctx, testRows()))
	require.NoError(t, target.Close(ctx))

	source := &ArrowSource{path: path}
	schema, err := source.Discover(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "name", "active"}, schema.ColumnNames())

	stream, err := source.Read(ctx)
	require.NoError(t, err)

	var got []pgschema.Row
	for row := range stream.Rows {
		got = append(got, row)
	}
	require.NoError(t, <-stream.Errors)
	require.NoError(t, source.Close(ctx))

	require.Len(t, got, 2)
	nameByID := map[int64]value.Value{}
	for _, row := range got {
		var id int64
		var name value.Value
		for _, f := range row.Fields {
			if f.Name == "id" {
				id, _ = f.Value.AsInteger()
			}
			if f.Name == "name" {
				name = f.Value
			}
		}
		nameByID[id] = name
	}
	name1, _ := nameByID[1].AsString()
	assert.Equal(t, "alice", name1)
	assert.True(t, nameByID[2].IsNull())
}

func TestArrowTargetRejectsAppend(t *testing.T) {
	target := &ArrowTarget{path: filepath.Join(t.TempDir(), "rows.arrow")}
	err := target.Prepare(context.Background(), testSchema(), connector.ModeAppend)
	assert.Error(t, err)
}

func TestAvroTargetAndSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.avro")

	target := &AvroTarget{path: path}
	require.NoError(t, target.Prepare(ctx, testSchema(), connector.ModeTruncate))
	require.NoError(t, target.WriteBatch(ctx, testRows()))
	require.NoError(t, target.Close(ctx))

	source := &AvroSource{path: path}
	schema, err := source.Discover(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "name", "active"}, schema.ColumnNames())

	stream, err := source.Read(ctx)
	require.NoError(t, err)

	var got []pgschema.Row
	for row := range stream.Rows {
		got = append(got, row)
	}
	require.NoError(t, <-stream.Errors)
	require.NoError(t, source.Close(ctx))

	assert.Len(t, got, 2)
}

func TestAvroTargetRejectsAppend(t *testing.T) {
	target := &AvroTarget{path: filepath.Join(t.TempDir(), "rows.avro")}
	err := target.Prepare(context.Background(), testSchema(), connector.ModeAppend)
	assert.Error(t, err)
}
