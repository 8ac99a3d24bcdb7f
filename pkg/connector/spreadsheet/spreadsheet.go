// Package spreadsheet implements the "xlsx" format connector using
// excelize. Rows are read and written against a sheet selected by the
// "sheet" option, defaulting to the first sheet on read and Sheet1 on
// write; the first row of that sheet is always the header.
package spreadsheet

import (
	"context"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	connector.RegisterFormatSource("xlsx", newSource)
	connector.RegisterFormatTarget("xlsx", newTarget)
}

const defaultSheet = "Sheet1"

// Source reads rows from a sheet of an xlsx workbook, one row per read,
// with the header row supplying column names and Infer supplying data
// types from the remaining rows. The sheet is selected by the "sheet"
// option (threaded from the URI's "#fragment" by the byte-endpoint
// layer); the default on read is the workbook's first sheet, per §4.3.
type Source struct {
	path   string
	sheet  string
	file   *excelize.File
	schema *pgschema.Schema
	rows   [][]string
}

func newSource(ctx context.Context, path string, options map[string]string) (connector.Source, error) {
	return &Source{path: path, sheet: options["sheet"]}, nil
}

func (s *Source) open() error {
	if s.file != nil {
		return nil
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open xlsx source").
			WithDetail("path", s.path)
	}
	sheet := s.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return pgerrors.New(pgerrors.KindConnection, "xlsx source has no sheets").WithDetail("path", s.path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read xlsx rows").WithDetail("sheet", sheet)
	}
	if len(rows) == 0 {
		f.Close()
		return pgerrors.New(pgerrors.KindSchemaInference, "xlsx sheet has no header row").WithDetail("path", s.path)
	}
	s.file = f
	s.sheet = sheet
	s.rows = rows
	return nil
}

func (s *Source) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	if err := s.open(); err != nil {
		return nil, err
	}

	header := s.rows[0]
	sampleSize := pgschema.DefaultSampleSize
	if sampleSize > len(s.rows)-1 {
		sampleSize = len(s.rows) - 1
	}
	sample := make([]pgschema.Row, sampleSize)
	for i := 0; i < sampleSize; i++ {
		sample[i] = rowFromCells(header, s.rows[i+1])
	}

	schema, err := pgschema.Infer(s.path, sample)
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s.schema, nil
}

func rowFromCells(header, cells []string) pgschema.Row {
	row := pgschema.Row{Fields: make([]pgschema.Field, len(header))}
	for i, name := range header {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		row.Fields[i] = pgschema.Field{Name: name, Value: cellValue(cell)}
	}
	return row
}

func cellValue(cell string) value.Value {
	if cell == "" {
		return value.Null()
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return value.Integer(i)
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		return value.Boolean(b)
	}
	return value.String(cell)
}

func (s *Source) Read(ctx context.Context) (*connector.RowStream, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		header := s.rows[0]
		for _, cells := range s.rows[1:] {
			select {
			case rows <- rowFromCells(header, cells):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func (s *Source) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Target writes rows to a sheet of a new xlsx workbook, header row
// first. The sheet is named by the "sheet" option (threaded from the
// URI's "#fragment"), defaulting to Sheet1 per §4.3. Like the other
// whole-file binary formats, it does not support append.
type Target struct {
	path    string
	sheet   string
	file    *excelize.File
	schema  *pgschema.Schema
	nextRow int
}

func newTarget(ctx context.Context, path string, options map[string]string) (connector.Target, error) {
	sheet := options["sheet"]
	if sheet == "" {
		sheet = defaultSheet
	}
	return &Target{path: path, sheet: sheet}, nil
}

func (t *Target) SupportsTruncate() bool { return true }

func (t *Target) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	if mode == connector.ModeAppend {
		return pgerrors.New(pgerrors.KindTarget, "xlsx target does not support append, only truncate").
			WithDetail("path", t.path)
	}
	if t.sheet == "" {
		t.sheet = defaultSheet
	}
	t.schema = schema
	t.file = excelize.NewFile()
	t.file.SetSheetName(t.file.GetSheetList()[0], t.sheet)

	names := schema.ColumnNames()
	for i, name := range names {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to compute xlsx header cell")
		}
		t.file.SetCellValue(t.sheet, cell, name)
	}
	t.nextRow = 2
	return nil
}

func (t *Target) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	names := t.schema.ColumnNames()
	for _, row := range rows {
		vals := make(map[string]value.Value, len(row.Fields))
		for _, f := range row.Fields {
			vals[f.Name] = f.Value
		}
		for col, name := range names {
			cell, err := excelize.CoordinatesToCellName(col+1, t.nextRow)
			if err != nil {
				return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to compute xlsx data cell")
			}
			if v, ok := vals[name]; ok && !v.IsNull() {
				t.file.SetCellValue(t.sheet, cell, cellFromValue(v))
			}
		}
		t.nextRow++
	}
	return nil
}

func cellFromValue(v value.Value) interface{} {
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
	if t.file == nil {
		return nil
	}
	if err := t.file.SaveAs(t.path); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to save xlsx target").WithDetail("path", t.path)
	}
	return t.file.Close()
}
