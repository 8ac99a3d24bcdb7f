package sqlconn

import (
	"context"
	"net/url"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/protocol"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	protocol.RegisterSource("bigquery", newBigQuerySource)
	protocol.RegisterTarget("bigquery", newBigQueryTarget)
}

// bigqueryRef parses "bigquery://project/dataset#table" into its three
// parts.
func bigqueryRef(uri string) (project, dataset, table string, err error) {
	u, perr := url.Parse(uri)
	if perr != nil {
		return "", "", "", pgerrors.Wrap(perr, pgerrors.KindConfiguration, "malformed BigQuery URI")
	}
	project = u.Host
	dataset = strings.Trim(u.Path, "/")
	table = u.Fragment
	if project == "" || dataset == "" || table == "" {
		return "", "", "", pgerrors.New(pgerrors.KindConfiguration,
			"BigQuery URI must be bigquery://project/dataset#table").WithDetail("uri", uri)
	}
	return project, dataset, table, nil
}

type bigquerySource struct {
	client *bigquery.Client
	table  *bigquery.Table
	schema *pgschema.Schema
}

func newBigQuerySource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	project, dataset, table, err := bigqueryRef(uri)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to create BigQuery client")
	}
	return &bigquerySource{client: client, table: client.Dataset(dataset).Table(table)}, nil
}

func (s *bigquerySource) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	md, err := s.table.Metadata(ctx)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to fetch BigQuery table metadata").
			WithDetail("table", s.table.TableID)
	}
	cols := make([]pgschema.ColumnSpec, len(md.Schema))
	for i, f := range md.Schema {
		cols[i] = pgschema.ColumnSpec{Name: f.Name, DataType: valueTypeFromBigQuery(f.Type), Nullable: !f.Required}
	}
	s.schema = &pgschema.Schema{Columns: cols}
	return s.schema, nil
}

func valueTypeFromBigQuery(t bigquery.FieldType) value.DataType {
	switch t {
	case bigquery.IntegerFieldType:
		return value.TypeInteger
	case bigquery.FloatFieldType, bigquery.NumericFieldType:
		return value.TypeDecimal
	case bigquery.BooleanFieldType:
		return value.TypeBoolean
	case bigquery.DateFieldType:
		return value.TypeDate
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return value.TypeDateTime
	default:
		return value.TypeString
	}
}

func (s *bigquerySource) Read(ctx context.Context) (*connector.RowStream, error) {
	schema, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	it := s.table.Read(ctx)

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)
	names := schema.ColumnNames()

	go func() {
		defer close(rows)
		defer close(errs)
		for {
			var values []bigquery.Value
			err := it.Next(&values)
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read BigQuery rows")
				return
			}
			row := pgschema.Row{Fields: make([]pgschema.Field, len(names))}
			for i, name := range names {
				var v interface{}
				if i < len(values) {
					v = values[i]
				}
				row.Fields[i] = pgschema.Field{Name: name, Value: valueFromBigQuery(v, schema.Columns[i].DataType)}
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func valueFromBigQuery(raw interface{}, dt value.DataType) value.Value {
	if raw == nil {
		return value.Null()
	}
	switch v := raw.(type) {
	case int64:
		return value.Integer(v)
	case bool:
		return value.Boolean(v)
	default:
		coerced, err := value.Coerce(value.String(toString(v)), dt)
		if err != nil {
			return value.String(toString(v))
		}
		return coerced
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return ""
}

func (s *bigquerySource) Close(ctx context.Context) error {
	return s.client.Close()
}

// bigqueryTarget streams rows through a bigquery.Inserter, creating the
// table from the incoming schema if it does not exist yet.
type bigqueryTarget struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter *bigquery.Inserter
	schema   *pgschema.Schema
}

func newBigQueryTarget(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	project, dataset, table, err := bigqueryRef(uri)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to create BigQuery client")
	}
	ds := client.Dataset(dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
			client.Close()
			return nil, pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create BigQuery dataset")
		}
	}
	return &bigqueryTarget{client: client, table: ds.Table(table)}, nil
}

func (t *bigqueryTarget) SupportsTruncate() bool { return true }

func (t *bigqueryTarget) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	t.schema = schema
	bqSchema := schemaToBigQuery(schema)

	if _, err := t.table.Metadata(ctx); err != nil {
		if err := t.table.Create(ctx, &bigquery.TableMetadata{Schema: bqSchema}); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create BigQuery table")
		}
	} else if mode == connector.ModeTruncate {
		query := t.client.Query("DELETE FROM `" + t.table.DatasetID + "." + t.table.TableID + "` WHERE TRUE")
		job, err := query.Run(ctx)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to truncate BigQuery table")
		}
		if _, err := job.Wait(ctx); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed waiting for BigQuery truncate job")
		}
	}

	t.inserter = t.table.Inserter()
	t.inserter.SkipInvalidRows = false
	return nil
}

func schemaToBigQuery(schema *pgschema.Schema) bigquery.Schema {
	bqSchema := make(bigquery.Schema, len(schema.Columns))
	for i, col := range schema.Columns {
		bqSchema[i] = &bigquery.FieldSchema{
			Name:     col.Name,
			Type:     bigqueryFieldType(col.DataType),
			Required: !col.Nullable,
		}
	}
	return bqSchema
}

func bigqueryFieldType(dt value.DataType) bigquery.FieldType {
	switch dt {
	case value.TypeInteger:
		return bigquery.IntegerFieldType
	case value.TypeDecimal:
		return bigquery.NumericFieldType
	case value.TypeBoolean:
		return bigquery.BooleanFieldType
	case value.TypeDate:
		return bigquery.DateFieldType
	case value.TypeDateTime:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

// bigqueryRow adapts a pgschema.Row into bigquery.ValueSaver.
type bigqueryRow struct {
	row pgschema.Row
}

func (r bigqueryRow) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, len(r.row.Fields))
	for _, f := range r.row.Fields {
		if f.Value.IsNull() {
			continue
		}
		switch f.Value.DataType() {
		case value.TypeInteger:
			i, _ := f.Value.AsInteger()
			out[f.Name] = i
		case value.TypeBoolean:
			b, _ := f.Value.AsBoolean()
			out[f.Name] = b
		default:
			out[f.Name] = value.ToCanonicalString(f.Value)
		}
	}
	return out, "", nil
}

func (t *bigqueryTarget) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	savers := make([]bigquery.ValueSaver, len(rows))
	for i, row := range rows {
		savers[i] = bigqueryRow{row: row}
	}
	if err := t.inserter.Put(ctx, savers); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to insert BigQuery rows")
	}
	return nil
}

func (t *bigqueryTarget) Close(ctx context.Context) error {
	return t.client.Close()
}
