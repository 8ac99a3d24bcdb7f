package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

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

func testRows(n int) []pgschema.Row {
	rows := make([]pgschema.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = pgschema.Row{Fields: []pgschema.Field{
			{Name: "id", Value: value.Integer(int64(i + 1))},
			{Name: "name", Value: value.String("row")},
		}}
	}
	return rows
}

// fakeSource streams a fixed set of rows against a fixed schema.
type fakeSource struct {
	schema *pgschema.Schema
	rows   []pgschema.Row
}

func (f *fakeSource) Discover(ctx context.Context) (*pgschema.Schema, error) { return f.schema, nil }

func (f *fakeSource) Read(ctx context.Context) (*connector.RowStream, error) {
	rowsCh := make(chan pgschema.Row, len(f.rows))
	errs := make(chan error, 1)
	for _, r := range f.rows {
		rowsCh <- r
	}
	close(rowsCh)
	close(errs)
	return &connector.RowStream{Rows: rowsCh, Errors: errs}, nil
}

func (f *fakeSource) Close(ctx context.Context) error { return nil }

// fakeTarget records every Prepare/WriteBatch call it receives.
type fakeTarget struct {
	supportsTruncate bool
	rejectAppend     bool
	preparedMode     connector.WriteMode
	written          []pgschema.Row
	closed           bool
}

func (f *fakeTarget) SupportsTruncate() bool { return f.supportsTruncate }

func (f *fakeTarget) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	if mode == connector.ModeAppend && f.rejectAppend {
		return assertErr
	}
	f.preparedMode = mode
	return nil
}

func (f *fakeTarget) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	f.written = append(f.written, rows...)
	return nil
}

func (f *fakeTarget) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

var assertErr = assertErrType{}

type assertErrType struct{}

func (assertErrType) Error() string { return "append not supported" }

func TestPrepareTargetTriesAppendFirst(t *testing.T) {
	tgt := &fakeTarget{supportsTruncate: true}
	logger := zap.NewNop()
	err := prepareTarget(context.Background(), tgt, testSchema(), false, logger)
	require.NoError(t, err)
	assert.Equal(t, connector.ModeAppend, tgt.preparedMode)
}

func TestPrepareTargetFallsBackToTruncateOnAppendFailure(t *testing.T) {
	tgt := &fakeTarget{supportsTruncate: true, rejectAppend: true}
	logger := zap.NewNop()
	err := prepareTarget(context.Background(), tgt, testSchema(), false, logger)
	require.NoError(t, err)
	assert.Equal(t, connector.ModeTruncate, tgt.preparedMode)
}

func TestPrepareTargetReturnsErrorWhenTruncateUnsupported(t *testing.T) {
	tgt := &fakeTarget{supportsTruncate: false, rejectAppend: true}
	logger := zap.NewNop()
	err := prepareTarget(context.Background(), tgt, testSchema(), false, logger)
	assert.Error(t, err)
}

func TestPrepareTargetHonorsExplicitTruncate(t *testing.T) {
	tgt := &fakeTarget{supportsTruncate: true}
	logger := zap.NewNop()
	err := prepareTarget(context.Background(), tgt, testSchema(), true, logger)
	require.NoError(t, err)
	assert.Equal(t, connector.ModeTruncate, tgt.preparedMode)
}

func TestBatcherSplitsStreamIntoFixedSizeBatches(t *testing.T) {
	src := &fakeSource{schema: testSchema(), rows: testRows(5)}
	stream, err := src.Read(context.Background())
	require.NoError(t, err)

	b := newBatcher(stream, 2)
	var total []pgschema.Row
	for {
		batch, done, err := b.next(context.Background())
		require.NoError(t, err)
		total = append(total, batch...)
		if done {
			break
		}
	}
	assert.Len(t, total, 5)
}

func TestValidateBatchAppliesSchemaDefaults(t *testing.T) {
	schema := testSchema()
	rows := []pgschema.Row{{Fields: []pgschema.Field{{Name: "id", Value: value.Integer(1)}}}}
	out, err := validateBatch(rows, schema)
	require.NoError(t, err)
	require.Len(t, out, 1)
	name, _ := out[0].Get("name")
	assert.True(t, name.IsNull())
}
