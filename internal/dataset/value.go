package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the value types a cell can hold.
type Kind int

const (
	KindMissing Kind = iota
	KindNumber
	KindText
)

// Value is a single dataset cell. Cells arrive from JSON as numbers, strings
// or nulls; Value keeps the original representation and exposes an explicit
// coercion step so callers never have to type-switch on interface{}.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Number returns a numeric value. Kind is KindNumber.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text returns a textual value. Kind is KindText.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Missing returns the missing-cell sentinel.
func Missing() Value { return Value{kind: KindMissing} }

// FromAny converts a decoded JSON value into a Value. Unknown types are
// stringified rather than rejected so one odd cell cannot fail an upload.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Missing()
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		if t {
			return Number(1)
		}
		return Number(0)
	case string:
		if strings.TrimSpace(t) == "" {
			return Missing()
		}
		return Text(t)
	default:
		return Text(fmt.Sprint(t))
	}
}

// Kind reports the cell's kind.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the cell is empty.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Number coerces the cell to a float64. Text cells are parsed; missing cells
// and unparseable text report ok=false. It never panics and never returns
// NaN or Inf.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, false
		}
		return v.num, true
	case KindText:
		return TryParseNumber(v.text)
	default:
		return 0, false
	}
}

// String renders the cell for display and templating.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	default:
		return ""
	}
}

// TryParseNumber parses s as a float64. Surrounding whitespace is ignored.
// NaN and infinities are rejected so downstream arithmetic stays defined.
func TryParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
