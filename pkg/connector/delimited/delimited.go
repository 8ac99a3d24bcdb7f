// Package delimited implements the file/http/https/ssh delimited-text
// connector: CSV and TSV sources and targets, with configurable
// delimiter, header, and null-token handling.
package delimited

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"

	"github.com/portage-data/portage/pkg/connector"
)

func init() {
	connector.RegisterFormatSource("csv", newCommaSource)
	connector.RegisterFormatSource("tsv", newTabSource)
	connector.RegisterFormatTarget("csv", newCommaTarget)
	connector.RegisterFormatTarget("tsv", newTabTarget)
}

// options carries the delimited-format knobs read from an endpoint's
// options map, per §6.
type options struct {
	delimiter rune
	hasHeader bool
	nullToken string
}

func parseOptions(raw map[string]string) options {
	o := options{delimiter: ',', hasHeader: true, nullToken: ""}
	if d, ok := raw["delimiter"]; ok && d != "" {
		r, _ := utf8.DecodeRuneInString(d)
		o.delimiter = r
	}
	if strings.HasSuffix(strings.ToLower(raw["format"]), "tsv") {
		o.delimiter = '\t'
	}
	if h, ok := raw["has_header"]; ok {
		if b, err := strconv.ParseBool(h); err == nil {
			o.hasHeader = b
		}
	}
	if n, ok := raw["null_token"]; ok {
		o.nullToken = n
	}
	return o
}

// Source reads one delimited-text file, inferring a header-derived schema
// on first Discover/Read and deferring type inference to pgschema.Infer
// over the leading sample.
type Source struct {
	path string
	opts options

	file    *os.File
	headers []string
	schema  *pgschema.Schema
}

func newCommaSource(ctx context.Context, path string, opts map[string]string) (connector.Source, error) {
	return &Source{path: path, opts: parseOptions(opts)}, nil
}

func newTabSource(ctx context.Context, path string, opts map[string]string) (connector.Source, error) {
	o := parseOptions(opts)
	o.delimiter = '\t'
	return &Source{path: path, opts: o}, nil
}

func (s *Source) open() error {
	if s.file != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open delimited source").
			WithDetail("path", s.path)
	}
	s.file = f
	return nil
}

func (s *Source) reader() *csv.Reader {
	r := csv.NewReader(s.file)
	r.Comma = s.opts.delimiter
	r.FieldsPerRecord = -1
	return r
}

func (s *Source) rowFromRecord(rec []string) pgschema.Row {
	row := pgschema.Row{Fields: make([]pgschema.Field, len(rec))}
	for i, cell := range rec {
		name := fmt.Sprintf("column_%d", i+1)
		if s.headers != nil && i < len(s.headers) {
			name = s.headers[i]
		}
		if cell == s.opts.nullToken && s.opts.nullToken != "" {
			row.Fields[i] = pgschema.Field{Name: name, Value: value.Null()}
		} else {
			row.Fields[i] = pgschema.Field{Name: name, Value: value.String(cell)}
		}
	}
	return row
}

// Discover samples up to pgschema.DefaultSampleSize rows to infer a
// Schema. The underlying file is then reopened, so Read starts from the
// first data row and its stream includes the sampled rows.
func (s *Source) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	if err := s.open(); err != nil {
		return nil, err
	}

	r := s.reader()
	if s.opts.hasHeader {
		headers, err := r.Read()
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to read header row")
		}
		s.headers = headers
	}

	sample := make([]pgschema.Row, 0, pgschema.DefaultSampleSize)
	for i := 0; i < pgschema.DefaultSampleSize; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to read sample row")
		}
		sample = append(sample, s.rowFromRecord(rec))
	}
	if len(sample) == 0 {
		return nil, pgerrors.New(pgerrors.KindSchemaInference, "delimited source has no rows to sample").
			WithDetail("path", s.path)
	}

	schema, err := pgschema.Infer(s.path, sample)
	if err != nil {
		return nil, err
	}
	s.schema = schema

	// Reopen so Read starts from the beginning and can replay the sample
	// as part of its own stream, per §4.4.
	s.file.Close()
	s.file = nil
	if err := s.open(); err != nil {
		return nil, err
	}
	return s.schema, nil
}

// Read streams every data row of the file in order.
func (s *Source) Read(ctx context.Context) (*connector.RowStream, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	r := s.reader()
	if s.opts.hasHeader {
		if _, err := r.Read(); err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read header row")
		}
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read row")
				return
			}
			select {
			case rows <- s.rowFromRecord(rec):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

// Close releases the file handle. Safe to call more than once.
func (s *Source) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Target writes rows to a delimited-text file, optionally truncating
// it first, per connector.Target's WriteMode contract.
type Target struct {
	path string
	opts options

	file   *os.File
	writer *csv.Writer
	schema *pgschema.Schema
}

func newCommaTarget(ctx context.Context, path string, opts map[string]string) (connector.Target, error) {
	return &Target{path: path, opts: parseOptions(opts)}, nil
}

func newTabTarget(ctx context.Context, path string, opts map[string]string) (connector.Target, error) {
	o := parseOptions(opts)
	o.delimiter = '\t'
	return &Target{path: path, opts: o}, nil
}

// SupportsTruncate is true: a local file can always be reopened with
// os.O_TRUNC.
func (t *Target) SupportsTruncate() bool { return true }

func (t *Target) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	t.schema = schema
	flags := os.O_CREATE | os.O_WRONLY
	if mode == connector.ModeTruncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(t.path, flags, 0o644)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open delimited target").
			WithDetail("path", t.path)
	}
	t.file = f
	t.writer = csv.NewWriter(f)
	t.writer.Comma = t.opts.delimiter

	info, err := f.Stat()
	if err == nil && info.Size() == 0 && t.opts.hasHeader {
		if err := t.writer.Write(schema.ColumnNames()); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write header row")
		}
	}
	return nil
}

func (t *Target) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	for _, row := range rows {
		rec := make([]string, len(row.Fields))
		for i, f := range row.Fields {
			if f.Value.IsNull() {
				rec[i] = t.opts.nullToken
				continue
			}
			rec[i] = value.ToCanonicalString(f.Value)
		}
		if err := t.writer.Write(rec); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write row")
		}
	}
	t.writer.Flush()
	return t.writer.Error()
}

func (t *Target) Close(ctx context.Context) error {
	if t.writer != nil {
		t.writer.Flush()
	}
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
