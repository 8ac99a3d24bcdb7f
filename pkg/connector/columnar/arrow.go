// Package columnar implements the Arrow IPC and Avro OCF row-binary
// connectors, registered as the "arrow" and "avro" formats.
//
// Decimal, Date, and DateTime columns are carried as their canonical
// string form (see pkg/value.ToCanonicalString) rather than native Arrow
// Decimal128/Date32/Timestamp types, trading columnar compactness for
// exact round-tripping of arbitrary-precision decimals without a scale
// negotiation step.
package columnar

import (
	"context"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	connector.RegisterFormatSource("arrow", newArrowSource)
	connector.RegisterFormatTarget("arrow", newArrowTarget)
}

func arrowFieldType(dt value.DataType) arrow.DataType {
	switch dt {
	case value.TypeInteger:
		return arrow.PrimitiveTypes.Int64
	case value.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	default: // String, Decimal, Date, DateTime: canonical string form.
		return arrow.BinaryTypes.String
	}
}

func schemaToArrow(schema *pgschema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Columns))
	for i, col := range schema.Columns {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowFieldType(col.DataType), Nullable: col.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// arrowSchemaToPortage derives a Schema from an Arrow file's own schema,
// with every column nullable per the §3 invariant. open() always calls it,
// so it supplies both Discover's result and the column names Read emits.
func arrowSchemaToPortage(as *arrow.Schema) *pgschema.Schema {
	cols := make([]pgschema.ColumnSpec, as.NumFields())
	for i, f := range as.Fields() {
		dt := value.TypeString
		switch f.Type.ID() {
		case arrow.INT64, arrow.INT32:
			dt = value.TypeInteger
		case arrow.BOOL:
			dt = value.TypeBoolean
		}
		cols[i] = pgschema.ColumnSpec{Name: f.Name, DataType: dt, Nullable: true}
	}
	return &pgschema.Schema{Columns: cols}
}

// ArrowSource reads rows out of an Arrow IPC file, one record batch at a
// time, per record batch from the file's own embedded schema.
type ArrowSource struct {
	path   string
	file   *os.File
	reader *ipc.FileReader
	schema *pgschema.Schema
}

func newArrowSource(ctx context.Context, path string, options map[string]string) (connector.Source, error) {
	return &ArrowSource{path: path}, nil
}

func (s *ArrowSource) open() error {
	if s.reader != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open Arrow source").
			WithDetail("path", s.path)
	}
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		f.Close()
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open Arrow IPC reader")
	}
	s.file = f
	s.reader = r
	s.schema = arrowSchemaToPortage(r.Schema())
	return nil
}

func (s *ArrowSource) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	return s.schema, nil
}

func (s *ArrowSource) Read(ctx context.Context) (*connector.RowStream, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		names := s.schema.ColumnNames()
		for i := 0; i < s.reader.NumRecords(); i++ {
			rec, err := s.reader.Record(i)
			if err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read Arrow record batch")
				return
			}
			for r := 0; r < int(rec.NumRows()); r++ {
				row := pgschema.Row{Fields: make([]pgschema.Field, len(names))}
				for c, name := range names {
					row.Fields[c] = pgschema.Field{Name: name, Value: arrowColumnValue(rec.Column(c), r)}
				}
				select {
				case rows <- row:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func arrowColumnValue(col arrow.Array, row int) value.Value {
	if col.IsNull(row) {
		return value.Null()
	}
	switch c := col.(type) {
	case *array.Int64:
		return value.Integer(c.Value(row))
	case *array.Boolean:
		return value.Boolean(c.Value(row))
	case *array.String:
		return value.String(c.Value(row))
	default:
		return value.Null()
	}
}

func (s *ArrowSource) Close(ctx context.Context) error {
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ArrowTarget writes rows as a single Arrow IPC file with one record batch
// per WriteBatch call.
type ArrowTarget struct {
	path        string
	file        *os.File
	writer      *ipc.FileWriter
	arrowSchema *arrow.Schema
	schema      *pgschema.Schema
	pool        memory.Allocator
}

func newArrowTarget(ctx context.Context, path string, options map[string]string) (connector.Target, error) {
	return &ArrowTarget{path: path}, nil
}

func (t *ArrowTarget) SupportsTruncate() bool { return true }

func (t *ArrowTarget) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	if mode == connector.ModeAppend {
		return pgerrors.New(pgerrors.KindTarget, "Arrow target does not support append, only truncate").
			WithDetail("path", t.path)
	}
	t.schema = schema
	t.arrowSchema = schemaToArrow(schema)
	t.pool = memory.NewGoAllocator()

	f, err := os.Create(t.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create Arrow target").
			WithDetail("path", t.path)
	}
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(t.arrowSchema), ipc.WithAllocator(t.pool))
	if err != nil {
		f.Close()
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open Arrow IPC writer")
	}
	t.file = f
	t.writer = w
	return nil
}

func (t *ArrowTarget) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	builder := array.NewRecordBuilder(t.pool, t.arrowSchema)
	defer builder.Release()

	names := t.schema.ColumnNames()
	for _, row := range rows {
		vals := make(map[string]value.Value, len(names))
		for _, f := range row.Fields {
			vals[f.Name] = f.Value
		}
		for i, name := range names {
			appendArrowValue(builder.Field(i), vals[name], t.schema.Columns[i].DataType)
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()
	if err := t.writer.Write(rec); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write Arrow record batch")
	}
	return nil
}

func appendArrowValue(b array.Builder, v value.Value, dt value.DataType) {
	if v.IsNull() {
		b.AppendNull()
		return
	}
	switch builder := b.(type) {
	case *array.Int64Builder:
		i, _ := v.AsInteger()
		builder.Append(i)
	case *array.BooleanBuilder:
		bo, _ := v.AsBoolean()
		builder.Append(bo)
	case *array.StringBuilder:
		builder.Append(value.ToCanonicalString(v))
	default:
		b.AppendNull()
	}
}

func (t *ArrowTarget) Close(ctx context.Context) error {
	if t.writer != nil {
		t.writer.Close()
		t.writer = nil
	}
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
