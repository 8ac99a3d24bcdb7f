// Package connector defines the Source and Target capability interfaces
// that every protocol-specific connector implements, plus the shared
// RowStream type the transfer engine reads from and writes to.
package connector

import (
	"context"

	"github.com/portage-data/portage/pkg/pgschema"
)

// RowStream is a pull-based stream of source rows, not yet validated
// against any schema. A Source's Read
// closes Rows when exhausted and reports any terminal error on Errors
// exactly once before Rows closes.
type RowStream struct {
	Rows   <-chan pgschema.Row
	Errors <-chan error
}

// Source is the read side of a connector: a single protocol endpoint the
// transfer engine samples for schema inference and then streams in full.
type Source interface {
	// Discover returns a Schema inferred or declared for this endpoint.
	// For connectors with inherent schema (SQL tables, Arrow files) it
	// is authoritative; for schemaless text connectors it
	// samples DefaultSampleSize rows and infers one.
	Discover(ctx context.Context) (*pgschema.Schema, error)

	// Read streams every row of the endpoint, in natural source order.
	// When Discover sampled rows to infer a schema, Read's stream
	// includes those sampled rows first.
	Read(ctx context.Context) (*RowStream, error)

	// Close releases any resources (file handles, connections) held by
	// the source. Safe to call more than once.
	Close(ctx context.Context) error
}

// WriteMode governs how a Target treats data already present at its
// endpoint, per the append-first fallback policy.
type WriteMode string

const (
	// ModeAppend adds rows without disturbing existing data. The default.
	ModeAppend WriteMode = "append"
	// ModeTruncate clears the endpoint of existing data before writing.
	ModeTruncate WriteMode = "truncate"
)

// Target is the write side of a connector.
type Target interface {
	// SupportsTruncate reports whether this connector can honor
	// ModeTruncate. Connectors that cannot (e.g. appending to a live
	// stream) only ever see ModeAppend.
	SupportsTruncate() bool

	// Prepare readies the endpoint to receive rows of schema, creating
	// it if absent. When mode is ModeTruncate, Prepare clears any
	// existing data first.
	Prepare(ctx context.Context, schema *pgschema.Schema, mode WriteMode) error

	// WriteBatch writes one batch of already-validated, already-projected
	// rows. The transfer engine calls WriteBatch repeatedly; it never
	// calls it concurrently for the same Target.
	WriteBatch(ctx context.Context, rows []pgschema.Row) error

	// Close flushes any buffered data and releases resources.
	Close(ctx context.Context) error
}

// Capabilities describes optional behavior a Source or Target can
// expose. The transfer engine does not consult it; it calls
// Target.SupportsTruncate directly.
type Capabilities struct {
	SupportsTruncate bool
	SupportsPreview  bool
}
