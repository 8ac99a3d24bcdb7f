package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/protocol"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	registerDialect("postgresql", postgresDialect{})
	registerDialect("mysql", mysqlDialect{})
	registerDialect("sqlite", sqliteDialect{})
	registerDialect("duckdb", duckdbDialect{})
	registerDialect("odbc", odbcDialect{})
	registerDialect("snowflake", snowflakeDialect{})
}

func registerDialect(scheme string, d Dialect) {
	protocol.RegisterSource(scheme, func(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
		return newSource(ctx, d, uri, options)
	})
	protocol.RegisterTarget(scheme, func(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
		return newTarget(ctx, d, uri, options)
	})
}

// Source reads from a table or an arbitrary SELECT query through
// database/sql, with column schema discovered from the driver's own
// reported column types.
type Source struct {
	dialect Dialect
	db      *sql.DB
	table   string
	query   string
	schema  *pgschema.Schema
}

func newSource(ctx context.Context, d Dialect, uri string, options map[string]string) (connector.Source, error) {
	db, err := d.Open(ctx, uri, options)
	if err != nil {
		return nil, err
	}
	query := queryFromOptions(options)
	table := ""
	if query == "" {
		table, err = tableFromURI(uri, options)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Source{dialect: d, db: db, table: table, query: query}, nil
}

func (s *Source) selectStatement(limit string) string {
	if s.query != "" {
		return fmt.Sprintf("SELECT * FROM (%s) AS portage_q%s", s.query, limit)
	}
	return fmt.Sprintf("SELECT * FROM %s%s", s.dialect.QuoteIdent(s.table), limit)
}

func (s *Source) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	rows, err := s.db.QueryContext(ctx, s.selectStatement(" LIMIT 0"))
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to discover SQL schema").
			WithDetail("table", s.table)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to read SQL column types")
	}

	cols := make([]pgschema.ColumnSpec, len(types))
	for i, ct := range types {
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		cols[i] = pgschema.ColumnSpec{
			Name:     ct.Name(),
			DataType: s.dialect.ValueType(ct.DatabaseTypeName()),
			Nullable: nullable,
		}
	}

	s.schema = &pgschema.Schema{Columns: cols}
	return s.schema, nil
}

func (s *Source) Read(ctx context.Context) (*connector.RowStream, error) {
	schema, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	sqlRows, err := s.db.QueryContext(ctx, s.selectStatement(""))
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to execute SQL read query")
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)
	names := schema.ColumnNames()

	go func() {
		defer close(rows)
		defer close(errs)
		defer sqlRows.Close()

		scanTargets := make([]interface{}, len(names))
		scanPtrs := make([]interface{}, len(names))
		for i := range scanTargets {
			scanPtrs[i] = &scanTargets[i]
		}

		for sqlRows.Next() {
			if err := sqlRows.Scan(scanPtrs...); err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to scan SQL row")
				return
			}
			row := pgschema.Row{Fields: make([]pgschema.Field, len(names))}
			for i, name := range names {
				row.Fields[i] = pgschema.Field{Name: name, Value: valueFromSQL(scanTargets[i], schema.Columns[i].DataType)}
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := sqlRows.Err(); err != nil {
			errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed while reading SQL rows")
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func valueFromSQL(raw interface{}, dt value.DataType) value.Value {
	if raw == nil {
		return value.Null()
	}
	var s string
	switch v := raw.(type) {
	case int64:
		if dt == value.TypeInteger {
			return value.Integer(v)
		}
		s = fmt.Sprintf("%d", v)
	case bool:
		if dt == value.TypeBoolean {
			return value.Boolean(v)
		}
		s = fmt.Sprintf("%v", v)
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		s = fmt.Sprintf("%v", v)
	}
	coerced, err := value.Coerce(value.String(s), dt)
	if err != nil {
		return value.String(s)
	}
	return coerced
}

func (s *Source) Close(ctx context.Context) error {
	return s.db.Close()
}

// Target writes rows into a table through database/sql, creating the
// table if absent and truncating it first when mode is ModeTruncate.
type Target struct {
	dialect Dialect
	db      *sql.DB
	table   string
	schema  *pgschema.Schema
}

func newTarget(ctx context.Context, d Dialect, uri string, options map[string]string) (connector.Target, error) {
	db, err := d.Open(ctx, uri, options)
	if err != nil {
		return nil, err
	}
	table, err := tableFromURI(uri, options)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Target{dialect: d, db: db, table: table}, nil
}

func (t *Target) SupportsTruncate() bool { return true }

func (t *Target) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	t.schema = schema
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.dialect.QuoteIdent(t.table), ddlForColumns(t.dialect, schema.Columns))
	if _, err := t.db.ExecContext(ctx, ddl); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create SQL target table").
			WithDetail("table", t.table)
	}
	if mode == connector.ModeTruncate {
		stmt := fmt.Sprintf("DELETE FROM %s", t.dialect.QuoteIdent(t.table))
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to truncate SQL target table").
				WithDetail("table", t.table)
		}
	}
	return nil
}

func (t *Target) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	if len(rows) == 0 {
		return nil
	}
	names := t.schema.ColumnNames()

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = t.dialect.QuoteIdent(n)
	}
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = t.dialect.Placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.dialect.QuoteIdent(t.table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to begin SQL write transaction")
	}

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to prepare SQL insert statement")
	}
	defer prepared.Close()

	for _, row := range rows {
		vals := make(map[string]value.Value, len(row.Fields))
		for _, f := range row.Fields {
			vals[f.Name] = f.Value
		}
		args := make([]interface{}, len(names))
		for i, name := range names {
			args[i] = sqlArgFromValue(vals[name])
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to insert SQL row").
				WithDetail("table", t.table)
		}
	}

	if err := tx.Commit(); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to commit SQL write transaction")
	}
	return nil
}

func sqlArgFromValue(v value.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.DataType() {
	case value.TypeInteger:
		i, _ := v.AsInteger()
		return i
	case value.TypeBoolean:
		b, _ := v.AsBoolean()
		return b
	default:
		return value.ToCanonicalString(v)
	}
}

func (t *Target) Close(ctx context.Context) error {
	return t.db.Close()
}
