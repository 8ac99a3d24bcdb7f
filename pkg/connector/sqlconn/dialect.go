// Package sqlconn implements the database/sql-backed protocol
// connectors for postgresql, mysql, sqlite, duckdb, odbc, and
// snowflake schemes. Each dialect supplies its own driver registration,
// DSN translation, identifier quoting, and column DDL; the Source and
// Target types in sqlconn.go are otherwise dialect-agnostic, driven
// entirely through the database/sql standard interfaces.
//
// bigquery is the one scheme in this package that does not go through
// database/sql: BigQuery's native Go client has no database/sql driver,
// so it is wired directly in bigquery.go.
package sqlconn

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

// Dialect isolates the differences between SQL engines behind a single
// interface; Source and Target use only this and database/sql.
type Dialect interface {
	// Open translates uri into this dialect's DSN and opens a pool.
	Open(ctx context.Context, uri string, options map[string]string) (*sql.DB, error)
	// QuoteIdent quotes a table or column identifier for safe inclusion
	// in generated SQL.
	QuoteIdent(name string) string
	// Placeholder renders the i'th (1-based) bound parameter marker.
	Placeholder(i int) string
	// ColumnDDL renders "name TYPE [NOT NULL]" for a CREATE TABLE.
	ColumnDDL(col pgschema.ColumnSpec) string
	// ValueType maps a database/sql ColumnType's DatabaseTypeName to the
	// closest value.DataType.
	ValueType(sqlType string) value.DataType
}

// tableFromURI extracts the table name from a SQL endpoint URI's
// fragment, e.g. "postgresql://host/db#employees" -> "employees", per
// the URI-fragment-as-table-name convention. Falls back to the
// "table" option.
func tableFromURI(uri string, options map[string]string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed SQL endpoint URI")
	}
	if u.Fragment != "" {
		return u.Fragment, nil
	}
	if t, ok := options["table"]; ok && t != "" {
		return t, nil
	}
	return "", pgerrors.New(pgerrors.KindConfiguration, "SQL endpoint URI has no table fragment and no table option").
		WithDetail("uri", uri)
}

func queryFromOptions(options map[string]string) string {
	return options["query"]
}

// userInfo splits a URI's userinfo into username/password, or "" if
// absent.
func userInfo(u *url.URL) (user, pass string) {
	if u.User == nil {
		return "", ""
	}
	pass, _ = u.User.Password()
	return u.User.Username(), pass
}

func ddlForColumns(d Dialect, cols []pgschema.ColumnSpec) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = d.ColumnDDL(c)
	}
	return strings.Join(parts, ", ")
}
