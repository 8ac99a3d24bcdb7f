package sqlconn

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

type postgresDialect struct{}

func (postgresDialect) Open(ctx context.Context, uri string, options map[string]string) (*sql.DB, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open PostgreSQL connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reach PostgreSQL server")
	}
	return db, nil
}

func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) Placeholder(i int) string { return "$" + strconv.Itoa(i) }

func (postgresDialect) ColumnDDL(col pgschema.ColumnSpec) string {
	t := "TEXT"
	switch col.DataType {
	case value.TypeInteger:
		t = "BIGINT"
	case value.TypeDecimal:
		t = "NUMERIC"
	case value.TypeBoolean:
		t = "BOOLEAN"
	case value.TypeDate:
		t = "DATE"
	case value.TypeDateTime:
		t = "TIMESTAMPTZ"
	}
	ddl := postgresDialect{}.QuoteIdent(col.Name) + " " + t
	if !col.Nullable {
		ddl += " NOT NULL"
	}
	return ddl
}

func (postgresDialect) ValueType(sqlType string) value.DataType {
	switch strings.ToUpper(sqlType) {
	case "INT2", "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT":
		return value.TypeInteger
	case "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8":
		return value.TypeDecimal
	case "BOOL", "BOOLEAN":
		return value.TypeBoolean
	case "DATE":
		return value.TypeDate
	case "TIMESTAMP", "TIMESTAMPTZ":
		return value.TypeDateTime
	default:
		return value.TypeString
	}
}
