package columnar

import (
	"context"
	"os"

	"github.com/linkedin/goavro/v2"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	connector.RegisterFormatSource("avro", newAvroSource)
	connector.RegisterFormatTarget("avro", newAvroTarget)
}

// avroFieldSchema returns the Avro union type for one column: every
// column is ["null", <type>] regardless of Nullable, matching the
// all-nullable-by-default posture of inferred schemas and letting
// Validate be the single place nullability is actually enforced.
func avroFieldSchema(dt value.DataType) string {
	switch dt {
	case value.TypeInteger:
		return `["null","long"]`
	case value.TypeBoolean:
		return `["null","boolean"]`
	default:
		return `["null","string"]`
	}
}

func schemaToAvro(schema *pgschema.Schema) string {
	fields := ""
	for i, col := range schema.Columns {
		if i > 0 {
			fields += ","
		}
		fields += `{"name":"` + col.Name + `","type":` + avroFieldSchema(col.DataType) + `}`
	}
	return `{"type":"record","name":"PortageRow","fields":[` + fields + `]}`
}

// AvroSource reads an Avro object container file record by record.
type AvroSource struct {
	path   string
	file   *os.File
	reader *goavro.OCFReader
	schema *pgschema.Schema
}

func newAvroSource(ctx context.Context, path string, options map[string]string) (connector.Source, error) {
	return &AvroSource{path: path}, nil
}

func (s *AvroSource) open() error {
	if s.reader != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open Avro source").
			WithDetail("path", s.path)
	}
	r, err := goavro.NewOCFReader(f)
	if err != nil {
		f.Close()
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open Avro OCF reader")
	}
	s.file = f
	s.reader = r
	return nil
}

// Discover samples the leading rows with pgschema.Infer, since Avro's
// union-typed fields don't distinguish Integer from Decimal the way a
// native columnar schema would.
func (s *AvroSource) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	if err := s.open(); err != nil {
		return nil, err
	}

	sample := make([]pgschema.Row, 0, pgschema.DefaultSampleSize)
	for i := 0; i < pgschema.DefaultSampleSize && s.reader.Scan(); i++ {
		rec, err := s.reader.Read()
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to decode sample Avro record")
		}
		sample = append(sample, rowFromAvro(rec))
	}
	if s.reader.Err() != nil {
		return nil, pgerrors.Wrap(s.reader.Err(), pgerrors.KindSchemaInference, "failed while sampling Avro source")
	}
	if len(sample) == 0 {
		return nil, pgerrors.New(pgerrors.KindSchemaInference, "Avro source has no records to sample").
			WithDetail("path", s.path)
	}

	schema, err := pgschema.Infer(s.path, sample)
	if err != nil {
		return nil, err
	}
	s.schema = schema

	s.file.Close()
	s.file = nil
	s.reader = nil
	if err := s.open(); err != nil {
		return nil, err
	}
	return s.schema, nil
}

func rowFromAvro(rec interface{}) pgschema.Row {
	m, ok := rec.(map[string]interface{})
	if !ok {
		return pgschema.Row{}
	}
	row := pgschema.Row{Fields: make([]pgschema.Field, 0, len(m))}
	for name, v := range m {
		row.Fields = append(row.Fields, pgschema.Field{Name: name, Value: valueFromAvro(v)})
	}
	return row
}

// valueFromAvro unwraps goavro's union encoding, map[string]interface{}
// with a single branch-name key, e.g. map["string"]"alice".
func valueFromAvro(v interface{}) value.Value {
	if v == nil {
		return value.Null()
	}
	branch, ok := v.(map[string]interface{})
	if !ok {
		return value.String("")
	}
	for branchType, inner := range branch {
		switch branchType {
		case "long", "int":
			if n, ok := inner.(int64); ok {
				return value.Integer(n)
			}
		case "boolean":
			if b, ok := inner.(bool); ok {
				return value.Boolean(b)
			}
		case "string":
			if s, ok := inner.(string); ok {
				return value.String(s)
			}
		}
	}
	return value.Null()
}

func (s *AvroSource) Read(ctx context.Context) (*connector.RowStream, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		for s.reader.Scan() {
			rec, err := s.reader.Read()
			if err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to decode Avro record")
				return
			}
			select {
			case rows <- rowFromAvro(rec):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if s.reader.Err() != nil {
			errs <- pgerrors.Wrap(s.reader.Err(), pgerrors.KindConnection, "failed while reading Avro source")
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func (s *AvroSource) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}

// AvroTarget writes rows to an Avro object container file.
type AvroTarget struct {
	path   string
	file   *os.File
	writer *goavro.OCFWriter
	schema *pgschema.Schema
}

func newAvroTarget(ctx context.Context, path string, options map[string]string) (connector.Target, error) {
	return &AvroTarget{path: path}, nil
}

func (t *AvroTarget) SupportsTruncate() bool { return true }

func (t *AvroTarget) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	if mode == connector.ModeAppend {
		return pgerrors.New(pgerrors.KindTarget, "Avro target does not support append, only truncate").
			WithDetail("path", t.path)
	}
	t.schema = schema

	codec, err := goavro.NewCodec(schemaToAvro(schema))
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to build Avro codec from schema")
	}

	f, err := os.Create(t.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create Avro target").
			WithDetail("path", t.path)
	}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Codec: codec})
	if err != nil {
		f.Close()
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open Avro OCF writer")
	}
	t.file = f
	t.writer = w
	return nil
}

func (t *AvroTarget) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	recs := make([]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(row.Fields))
		for _, f := range row.Fields {
			m[f.Name] = avroUnionValue(f.Value)
		}
		recs[i] = m
	}
	if err := t.writer.Append(recs); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write Avro records")
	}
	return nil
}

func avroUnionValue(v value.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.DataType() {
	case value.TypeInteger:
		i, _ := v.AsInteger()
		return map[string]interface{}{"long": i}
	case value.TypeBoolean:
		b, _ := v.AsBoolean()
		return map[string]interface{}{"boolean": b}
	default:
		return map[string]interface{}{"string": value.ToCanonicalString(v)}
	}
}

func (t *AvroTarget) Close(ctx context.Context) error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.writer = nil
	return err
}
