// Package jsonconn implements the JSON-array file connector: a source
// that streams a top-level JSON array of objects, and a target that
// writes one.
package jsonconn

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	connector.RegisterFormatSource("json", newSource)
	connector.RegisterFormatTarget("json", newTarget)
}

// Source streams the objects of a top-level JSON array, one Row per
// object. Column order within a Row follows first-seen key order across
// the sample used for inference.
type Source struct {
	path   string
	file   *os.File
	dec    *json.Decoder
	schema *pgschema.Schema
}

func newSource(ctx context.Context, path string, opts map[string]string) (connector.Source, error) {
	return &Source{path: path}, nil
}

func (s *Source) open() error {
	if s.file != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open JSON source").
			WithDetail("path", s.path)
	}
	s.file = f
	s.dec = json.NewDecoder(f)
	if _, err := s.dec.Token(); err != nil { // consume opening '['
		return pgerrors.Wrap(err, pgerrors.KindConnection, "JSON source is not a top-level array")
	}
	return nil
}

func rowFromObject(obj map[string]interface{}, order []string) pgschema.Row {
	row := pgschema.Row{Fields: make([]pgschema.Field, 0, len(obj))}
	seen := make(map[string]bool, len(obj))
	for _, name := range order {
		if v, ok := obj[name]; ok {
			row.Fields = append(row.Fields, pgschema.Field{Name: name, Value: valueFromJSON(v)})
			seen[name] = true
		}
	}
	extra := make([]string, 0)
	for name := range obj {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		row.Fields = append(row.Fields, pgschema.Field{Name: name, Value: valueFromJSON(obj[name])})
	}
	return row
}

func valueFromJSON(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Boolean(t)
	case string:
		return value.String(t)
	case float64:
		if t == float64(int64(t)) {
			return value.Integer(int64(t))
		}
		dv, _ := value.Coerce(value.String(jsonNumberString(t)), value.TypeDecimal)
		return dv
	case []interface{}:
		arr := make([]value.Value, len(t))
		for i, e := range t {
			arr[i] = valueFromJSON(e)
		}
		return value.Array(arr)
	case map[string]interface{}:
		m := make(map[string]value.Value, len(t))
		for k, e := range t {
			m[k] = valueFromJSON(e)
		}
		return value.Map(m)
	default:
		return value.Null()
	}
}

func jsonNumberString(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// Discover samples up to pgschema.DefaultSampleSize objects to infer a
// Schema, then rewinds the file so Read can replay the sample.
func (s *Source) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	if err := s.open(); err != nil {
		return nil, err
	}

	order := make([]string, 0)
	seen := make(map[string]bool)
	objs := make([]map[string]interface{}, 0, pgschema.DefaultSampleSize)
	sample := make([]pgschema.Row, 0, pgschema.DefaultSampleSize)

	for i := 0; i < pgschema.DefaultSampleSize && s.dec.More(); i++ {
		var raw json.RawMessage
		var obj map[string]interface{}
		if err := s.dec.Decode(&raw); err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to decode sample object")
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to decode sample object")
		}
		// Walk the object's keys as tokens, since a decoded map loses the
		// order in which they appear in the document.
		keys := json.NewDecoder(bytes.NewReader(raw))
		keys.Token() // consume '{'
		for keys.More() {
			tok, _ := keys.Token()
			if k, ok := tok.(string); ok && !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
			var skip json.RawMessage
			keys.Decode(&skip)
		}
		objs = append(objs, obj)
		sample = append(sample, rowFromObject(obj, order))
	}
	if len(sample) == 0 {
		return nil, pgerrors.New(pgerrors.KindSchemaInference, "JSON source has no objects to sample").
			WithDetail("path", s.path)
	}

	// Re-project every sampled row against the final key order now that
	// every sample has been seen, so columns seen late still line up.
	for i := range sample {
		sample[i] = rowFromObject(objs[i], order)
	}

	schema, err := pgschema.Infer(s.path, sample)
	if err != nil {
		return nil, err
	}
	s.schema = schema

	s.file.Close()
	s.file = nil
	if err := s.open(); err != nil {
		return nil, err
	}
	return s.schema, nil
}

// Read streams every object in the array as a Row.
func (s *Source) Read(ctx context.Context) (*connector.RowStream, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	order := s.schema.ColumnNames()
	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		for s.dec.More() {
			var obj map[string]interface{}
			if err := s.dec.Decode(&obj); err != nil {
				if err != io.EOF {
					errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to decode object")
				}
				return
			}
			select {
			case rows <- rowFromObject(obj, order):
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

// Target writes rows as a single top-level JSON array of objects.
type Target struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	schema *pgschema.Schema
	first  bool
}

func newTarget(ctx context.Context, path string, opts map[string]string) (connector.Target, error) {
	return &Target{path: path}, nil
}

func (t *Target) SupportsTruncate() bool { return true }

func (t *Target) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	t.schema = schema
	if mode == connector.ModeAppend {
		return pgerrors.New(pgerrors.KindTarget, "JSON target does not support append, only truncate").
			WithDetail("path", t.path)
	}
	f, err := os.Create(t.path)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open JSON target").
			WithDetail("path", t.path)
	}
	t.file = f
	t.enc = json.NewEncoder(f)
	t.first = true
	if _, err := f.WriteString("["); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write array opening")
	}
	return nil
}

func (t *Target) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	for _, row := range rows {
		if !t.first {
			if _, err := t.file.WriteString(","); err != nil {
				return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to write separator")
			}
		}
		t.first = false
		obj := make(map[string]interface{}, len(row.Fields))
		for _, f := range row.Fields {
			obj[f.Name] = jsonFromValue(f.Value)
		}
		if err := t.enc.Encode(obj); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to encode row")
		}
	}
	return nil
}

func jsonFromValue(v value.Value) interface{} {
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
	case value.TypeArray:
		arr, _ := v.AsArray()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = jsonFromValue(e)
		}
		return out
	case value.TypeMap:
		m, _ := v.AsMap()
		out := make(map[string]interface{}, len(m))
		for k, e := range m {
			out[k] = jsonFromValue(e)
		}
		return out
	default:
		return value.ToCanonicalString(v)
	}
}

func (t *Target) Close(ctx context.Context) error {
	if t.file == nil {
		return nil
	}
	_, werr := t.file.WriteString("]")
	err := t.file.Close()
	t.file = nil
	if werr != nil {
		return werr
	}
	return err
}
