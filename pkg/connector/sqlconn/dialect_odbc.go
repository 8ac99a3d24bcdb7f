package sqlconn

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/alexbrainman/odbc"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

type odbcDialect struct{}

// odbcDSN returns the connection string odbc expects; unlike the other
// dialects, ODBC's DSN syntax (semicolon-delimited key=value pairs) has
// no natural URI mapping, so the full string is taken from the "dsn"
// option rather than parsed out of the endpoint URI.
func odbcDSN(uri string, options map[string]string) (string, error) {
	if dsn, ok := options["dsn"]; ok && dsn != "" {
		return dsn, nil
	}
	return "", pgerrors.New(pgerrors.KindConfiguration, "odbc:// endpoints require a \"dsn\" option").
		WithDetail("uri", uri)
}

func (odbcDialect) Open(ctx context.Context, uri string, options map[string]string) (*sql.DB, error) {
	dsn, err := odbcDSN(uri, options)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("odbc", dsn)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open ODBC connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reach ODBC data source")
	}
	return db, nil
}

func (odbcDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (odbcDialect) Placeholder(i int) string { return "?" }

func (odbcDialect) ColumnDDL(col pgschema.ColumnSpec) string {
	t := "VARCHAR(255)"
	switch col.DataType {
	case value.TypeInteger:
		t = "BIGINT"
	case value.TypeDecimal:
		t = "DECIMAL(38,10)"
	case value.TypeBoolean:
		t = "BIT"
	case value.TypeDate:
		t = "DATE"
	case value.TypeDateTime:
		t = "DATETIME"
	}
	ddl := odbcDialect{}.QuoteIdent(col.Name) + " " + t
	if !col.Nullable {
		ddl += " NOT NULL"
	}
	return ddl
}

func (odbcDialect) ValueType(sqlType string) value.DataType {
	switch strings.ToUpper(sqlType) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT":
		return value.TypeInteger
	case "DECIMAL", "NUMERIC", "FLOAT", "REAL", "DOUBLE":
		return value.TypeDecimal
	case "BIT", "BOOLEAN":
		return value.TypeBoolean
	case "DATE":
		return value.TypeDate
	case "DATETIME", "TIMESTAMP":
		return value.TypeDateTime
	default:
		return value.TypeString
	}
}
