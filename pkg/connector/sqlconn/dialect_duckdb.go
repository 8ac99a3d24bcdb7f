package sqlconn

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

type duckdbDialect struct{}

func duckdbPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed DuckDB URI")
	}
	path := u.Path
	if path == "" {
		path = u.Host
	}
	if path == "" || path == "/" {
		return ":memory:", nil
	}
	return path, nil
}

func (duckdbDialect) Open(ctx context.Context, uri string, options map[string]string) (*sql.DB, error) {
	path, err := duckdbPath(uri)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open DuckDB database").
			WithDetail("path", path)
	}
	return db, nil
}

func (duckdbDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (duckdbDialect) Placeholder(i int) string { return "?" }

func (duckdbDialect) ColumnDDL(col pgschema.ColumnSpec) string {
	t := "VARCHAR"
	switch col.DataType {
	case value.TypeInteger:
		t = "BIGINT"
	case value.TypeDecimal:
		t = "DECIMAL(38,10)"
	case value.TypeBoolean:
		t = "BOOLEAN"
	case value.TypeDate:
		t = "DATE"
	case value.TypeDateTime:
		t = "TIMESTAMP"
	}
	ddl := duckdbDialect{}.QuoteIdent(col.Name) + " " + t
	if !col.Nullable {
		ddl += " NOT NULL"
	}
	return ddl
}

func (duckdbDialect) ValueType(sqlType string) value.DataType {
	switch strings.ToUpper(sqlType) {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT":
		return value.TypeInteger
	case "DECIMAL", "DOUBLE", "FLOAT":
		return value.TypeDecimal
	case "BOOLEAN":
		return value.TypeBoolean
	case "DATE":
		return value.TypeDate
	case "TIMESTAMP":
		return value.TypeDateTime
	default:
		return value.TypeString
	}
}
