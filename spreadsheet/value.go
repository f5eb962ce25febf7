package spreadsheet

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindDate
	KindBool
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a single normalized cell.
//
// Values are comparable: two error values built from the same description
// compare equal with ==.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string // string, date and error description
	b    bool
}

// Null is the empty cell.
var Null = Value{}

// IntValue returns an integer cell.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue returns a floating-point cell. Callers holding a number that
// may be integral should use NumberValue instead.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue returns a text cell.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// BoolValue returns a boolean cell.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ErrorValue returns the sentinel for a spreadsheet cell that held an error
// (e.g. "#DIV/0!").
func ErrorValue(description string) Value { return Value{kind: KindError, s: description} }

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload and whether v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float payload and whether v is a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Text returns the payload of string and date cells.
func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindString || v.kind == KindDate
}

// Bool returns the boolean payload and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// ErrorDescription returns the description of an error sentinel.
func (v Value) ErrorDescription() (string, bool) { return v.s, v.kind == KindError }

// IsError reports whether v is the error sentinel.
func (v Value) IsError() bool { return v.kind == KindError }

// IsBlank reports whether the cell is falsy: null, empty string or false.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindBool:
		return !v.b
	default:
		return false
	}
}

// String renders the value as text. Header cells are named with it.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString, KindDate, KindError:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value for the metrics store. Floats always carry
// a decimal point or exponent so they never read back as integers. The
// error sentinel is the object {"error": description}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, &json.UnsupportedValueError{Str: strconv.FormatFloat(v.f, 'g', -1, 64)}
		}
		return []byte(formatFloat(v.f)), nil
	case KindString, KindDate:
		return json.Marshal(v.s)
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{v.s})
	default:
		return []byte("null"), nil
	}
}

// formatFloat follows encoding/json's cutoffs for exponent notation.
func formatFloat(f float64) string {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'f' && !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Row is one ordered line of cells.
type Row []Value

// IsBlank reports whether every cell of the row is falsy. A row with no
// cells is blank.
func (r Row) IsBlank() bool {
	for _, v := range r {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

// Record maps header field names to the cells of one data row.
type Record map[string]Value
