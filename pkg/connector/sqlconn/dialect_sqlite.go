package sqlconn

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

type sqliteDialect struct{}

// sqlitePath extracts the database file path from "sqlite:///path.db"
// or "sqlite://path.db".
func sqlitePath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed SQLite URI")
	}
	path := u.Path
	if path == "" {
		path = u.Host
	}
	if path == "" {
		return "", pgerrors.New(pgerrors.KindConfiguration, "SQLite URI has no database file path").WithDetail("uri", uri)
	}
	return path, nil
}

func (sqliteDialect) Open(ctx context.Context, uri string, options map[string]string) (*sql.DB, error) {
	path, err := sqlitePath(uri)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open SQLite database").
			WithDetail("path", path)
	}
	return db, nil
}

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(i int) string { return "?" }

func (sqliteDialect) ColumnDDL(col pgschema.ColumnSpec) string {
	t := "TEXT"
	switch col.DataType {
	case value.TypeInteger:
		t = "INTEGER"
	case value.TypeDecimal:
		t = "TEXT" // exact decimals carried as canonical strings
	case value.TypeBoolean:
		t = "BOOLEAN"
	}
	ddl := sqliteDialect{}.QuoteIdent(col.Name) + " " + t
	if !col.Nullable {
		ddl += " NOT NULL"
	}
	return ddl
}

func (sqliteDialect) ValueType(sqlType string) value.DataType {
	switch strings.ToUpper(sqlType) {
	case "INTEGER", "INT", "BIGINT":
		return value.TypeInteger
	case "REAL", "NUMERIC", "DECIMAL":
		return value.TypeDecimal
	case "BOOLEAN", "BOOL":
		return value.TypeBoolean
	default:
		return value.TypeString
	}
}
