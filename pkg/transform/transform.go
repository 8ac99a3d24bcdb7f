// Package transform implements the Transformer of spec §4.5: inline
// column=expression assignments, or a single script expression
// evaluating to a kept-row map or nil. Both modes share one evaluator,
// github.com/expr-lang/expr, compiled against an explicit environment
// exposing only a row map — no statement execution, no I/O, no access
// to the host process.
package transform

import (
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"

	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/value"
)

// Type is the kind of transform a Config describes.
type Type string

const (
	TypeNone   Type = "none"
	TypeInline Type = "inline"
	TypeFile   Type = "file"
	TypeScript Type = "script"
)

// Config is the transform document section: a type and its value.
// "inline" and "script" carry expression text directly in Value;
// "file" carries a path to a script file whose content is the script
// expression text.
type Config struct {
	Type  Type
	Value string
}

// assignment is one compiled "name=expression" program from inline mode.
type assignment struct {
	name    string
	program *vm.Program
}

// Transformer evaluates rows according to a compiled Config. Inline
// transforms are additive (source columns survive, new ones appended);
// script transforms are projective (only returned keys survive).
type Transformer struct {
	inline  []assignment
	script  *vm.Program
	outputs *pgschema.Schema // derived from the first transformed row
}

// Compile parses and compiles cfg into a Transformer. TypeNone compiles
// to nil with no error: callers should treat a nil Transformer as a
// pass-through.
func Compile(cfg Config) (*Transformer, error) {
	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeInline:
		return compileInline(cfg.Value)
	case TypeScript:
		return compileScript(cfg.Value)
	case TypeFile:
		data, err := os.ReadFile(cfg.Value)
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindTransform, "failed to read transform script file").
				WithDetail("path", cfg.Value)
		}
		return compileScript(string(data))
	default:
		return nil, pgerrors.New(pgerrors.KindTransform, "unknown transform type").WithDetail("type", string(cfg.Type))
	}
}

func compileInline(spec string) (*Transformer, error) {
	parts := strings.Split(spec, ";")
	assignments := make([]assignment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq < 0 {
			return nil, pgerrors.New(pgerrors.KindTransform, "inline transform assignment missing '='").
				WithDetail("assignment", part)
		}
		name := strings.TrimSpace(part[:eq])
		exprText := strings.TrimSpace(part[eq+1:])
		program, err := expr.Compile(exprText, exprOptions()...)
		if err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindTransform, "failed to compile inline transform expression").
				WithDetail("name", name)
		}
		assignments = append(assignments, assignment{name: name, program: program})
	}
	if len(assignments) == 0 {
		return nil, pgerrors.New(pgerrors.KindTransform, "inline transform has no assignments")
	}
	return &Transformer{inline: assignments}, nil
}

func compileScript(source string) (*Transformer, error) {
	program, err := expr.Compile(source, exprOptions()...)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindTransform, "failed to compile transform script")
	}
	return &Transformer{script: program}, nil
}

// exprOptions is the compile option set shared by inline and script
// transforms: an environment exposing only "row", and operator
// overloads that route +, -, *, / through decimal.Decimal for
// decimalValue operands instead of expr-lang's default float64 math,
// so a Decimal input round-trips without binary floating-point error
// (row.unit_price * 100 on a Decimal must land on 129999, not
// 129998.99999999998...).
func exprOptions() []expr.Option {
	return []expr.Option{
		expr.Env(rowEnv{}),
		expr.AllowUndefinedVariables(),
		expr.Operator("+", "Add"),
		expr.Operator("-", "Sub"),
		expr.Operator("*", "Mul"),
		expr.Operator("/", "Div"),
	}
}

// rowEnv is the environment expr-lang compiles against: a single "row"
// binding, a read-only map of field name to its native Go value.
type rowEnv struct {
	Row map[string]interface{} `expr:"row"`
}

// Apply transforms row, returning the transformed row and whether it
// should be kept (a script that evaluates to nil/empty drops the row).
// The first call fixes the Transformer's output schema; later rows
// producing a type or shape mismatch fail with a Transform error, per
// the output-schema-discovery rule of spec §4.5.
func (t *Transformer) Apply(row pgschema.Row) (pgschema.Row, bool, error) {
	env := rowEnv{Row: rowToInterfaceMap(row)}

	if t.script != nil {
		return t.applyScript(env)
	}
	return t.applyInline(row, env)
}

func (t *Transformer) applyInline(row pgschema.Row, env rowEnv) (pgschema.Row, bool, error) {
	out := pgschema.Row{Fields: append([]pgschema.Field{}, row.Fields...)}
	for _, a := range t.inline {
		result, err := expr.Run(a.program, env)
		if err != nil {
			return pgschema.Row{}, false, pgerrors.Wrap(err, pgerrors.KindTransform, "inline transform evaluation failed").
				WithDetail("name", a.name)
		}
		v := valueFromInterface(result)
		out.Set(a.name, v)
		env.Row[a.name] = result // later assignments may reference earlier ones
	}
	if err := t.checkOutputSchema(out); err != nil {
		return pgschema.Row{}, false, err
	}
	return out, true, nil
}

func (t *Transformer) applyScript(env rowEnv) (pgschema.Row, bool, error) {
	result, err := expr.Run(t.script, env)
	if err != nil {
		return pgschema.Row{}, false, pgerrors.Wrap(err, pgerrors.KindTransform, "script transform evaluation failed")
	}
	if result == nil {
		return pgschema.Row{}, false, nil
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return pgschema.Row{}, false, pgerrors.New(pgerrors.KindTransform,
			"script transform must return a map of column name to value, or nil")
	}
	if len(m) == 0 {
		return pgschema.Row{}, false, nil
	}

	out := pgschema.Row{Fields: make([]pgschema.Field, 0, len(m))}
	for name, raw := range m {
		out.Fields = append(out.Fields, pgschema.Field{Name: name, Value: valueFromInterface(raw)})
	}
	if err := t.checkOutputSchema(out); err != nil {
		return pgschema.Row{}, false, err
	}
	return out, true, nil
}

// checkOutputSchema fixes the Transformer's output schema from the
// first row it sees, and on every subsequent row checks that the set
// of columns and each column's DataType still match.
func (t *Transformer) checkOutputSchema(row pgschema.Row) error {
	if t.outputs == nil {
		cols := make([]pgschema.ColumnSpec, len(row.Fields))
		for i, f := range row.Fields {
			cols[i] = pgschema.ColumnSpec{Name: f.Name, DataType: f.Value.DataType(), Nullable: true}
		}
		t.outputs = &pgschema.Schema{Columns: cols}
		return nil
	}

	if len(row.Fields) != len(t.outputs.Columns) {
		return pgerrors.New(pgerrors.KindTransform, "transform output row has a different column count than the first row")
	}
	for _, f := range row.Fields {
		idx := t.outputs.IndexOf(f.Name)
		if idx < 0 {
			return pgerrors.New(pgerrors.KindTransform, "transform output row introduced a new column after the first row").
				WithDetail("column", f.Name)
		}
		if !f.Value.IsNull() && f.Value.DataType() != t.outputs.Columns[idx].DataType {
			return pgerrors.New(pgerrors.KindTransform, "transform output row's column type drifted from the first row").
				WithDetail("column", f.Name)
		}
	}
	return nil
}

// OutputSchema returns the schema derived from the first transformed
// row, or nil if no row has been transformed yet.
func (t *Transformer) OutputSchema() *pgschema.Schema {
	return t.outputs
}

// decimalValue is decimal.Decimal exposed to expr-lang programs. It
// carries Add/Sub/Mul/Div methods matching the expr.Operator overloads
// registered in exprOptions, so arithmetic on it stays on
// shopspring/decimal's fixed-point path rather than expr-lang's
// default float64 evaluation.
type decimalValue decimal.Decimal

func (d decimalValue) dec() decimal.Decimal { return decimal.Decimal(d) }

func (d decimalValue) Add(other interface{}) decimalValue {
	return decimalValue(d.dec().Add(operandToDecimal(other)))
}

func (d decimalValue) Sub(other interface{}) decimalValue {
	return decimalValue(d.dec().Sub(operandToDecimal(other)))
}

func (d decimalValue) Mul(other interface{}) decimalValue {
	return decimalValue(d.dec().Mul(operandToDecimal(other)))
}

func (d decimalValue) Div(other interface{}) decimalValue {
	return decimalValue(d.dec().Div(operandToDecimal(other)))
}

func operandToDecimal(v interface{}) decimal.Decimal {
	switch x := v.(type) {
	case decimalValue:
		return x.dec()
	case decimal.Decimal:
		return x
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case float64:
		return decimal.NewFromFloat(x)
	default:
		return decimal.Zero
	}
}

func rowToInterfaceMap(row pgschema.Row) map[string]interface{} {
	m := make(map[string]interface{}, len(row.Fields))
	for _, f := range row.Fields {
		m[f.Name] = toInterface(f.Value)
	}
	return m
}

func toInterface(v value.Value) interface{} {
	switch v.DataType() {
	case value.TypeInteger:
		i, _ := v.AsInteger()
		return i
	case value.TypeDecimal:
		d, _ := v.AsDecimal()
		return decimalValue(d)
	case value.TypeBoolean:
		b, _ := v.AsBoolean()
		return b
	case value.TypeArray:
		arr, _ := v.AsArray()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = toInterface(e)
		}
		return out
	case value.TypeMap:
		m, _ := v.AsMap()
		out := make(map[string]interface{}, len(m))
		for k, e := range m {
			out[k] = toInterface(e)
		}
		return out
	default:
		if v.IsNull() {
			return nil
		}
		return value.ToCanonicalString(v)
	}
}

func valueFromInterface(raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Null()
	case int:
		return value.Integer(int64(v))
	case int64:
		return value.Integer(v)
	case float64:
		return value.Decimal(decimal.NewFromFloat(v))
	case decimalValue:
		return value.Decimal(v.dec())
	case decimal.Decimal:
		return value.Decimal(v)
	case bool:
		return value.Boolean(v)
	case string:
		return value.String(v)
	case []interface{}:
		out := make([]value.Value, len(v))
		for i, e := range v {
			out[i] = valueFromInterface(e)
		}
		return value.Array(out)
	case map[string]interface{}:
		out := make(map[string]value.Value, len(v))
		for k, e := range v {
			out[k] = valueFromInterface(e)
		}
		return value.Map(out)
	default:
		return value.Null()
	}
}
