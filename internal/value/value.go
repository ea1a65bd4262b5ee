// Package value defines the tagged cell value carried through report rows.
//
// A Value is one of Null, Bool, Number, Text, Date or Label. Numbers are held as
// arbitrary-precision decimals so totals and format templates never lose precision.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reportgen/internal/sqltype"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindDate
	// KindLabel is rendered text produced by choice substitution, display
	// formatting or the totals label row.
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindLabel:
		return "label"
	default:
		return "null"
	}
}

// Value is an immutable report cell.
type Value struct {
	kind Kind
	b    bool
	num  decimal.Decimal
	str  string
	t    time.Time
}

// Null returns the absent value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a decimal.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// Int wraps an integer as a Number.
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }

// Float wraps a float as a Number. NaN and infinities become Null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Number(decimal.NewFromFloat(f))
}

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Date wraps a timestamp.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Label wraps rendered text.
func Label(s string) Value { return Value{kind: KindLabel, str: s} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the absent value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the decimal payload.
func (v Value) AsNumber() (decimal.Decimal, bool) { return v.num, v.kind == KindNumber }

// AsText returns the string payload of Text and Label values.
func (v Value) AsText() (string, bool) {
	return v.str, v.kind == KindText || v.kind == KindLabel
}

// AsDate returns the time payload.
func (v Value) AsDate() (time.Time, bool) { return v.t, v.kind == KindDate }

// Truthy follows the usual dynamic-language notion of truth: null, false,
// zero and the empty string are false; everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return !v.num.IsZero()
	case KindText, KindLabel:
		return v.str != ""
	case KindDate:
		return true
	default:
		return false
	}
}

// String renders the value for display and export.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		// Keep the scale: 4.00 stays "4.00".
		if exp := v.num.Exponent(); exp < 0 {
			return v.num.StringFixed(-exp)
		}
		return v.num.String()
	case KindText, KindLabel:
		return v.str
	case KindDate:
		if isMidnight(v.t) {
			return v.t.Format(time.DateOnly)
		}
		return v.t.Format(time.DateTime)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num.Equal(o.num)
	case KindText, KindLabel:
		return v.str == o.str
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// MarshalJSON encodes numbers as JSON numbers, dates as strings and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.num.String()), nil
	default:
		return json.Marshal(v.String())
	}
}

// FromAny converts a Go value into a Value. Unknown types are rendered with fmt.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case decimal.Decimal:
		return Number(t)
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case time.Time:
		return Date(t)
	case *time.Time:
		if t == nil {
			return Null()
		}
		return Date(*t)
	case fmt.Stringer:
		return Text(t.String())
	default:
		return Text(fmt.Sprint(t))
	}
}

// FromSQL converts a raw driver value using the column category to pick the variant.
// The MySQL driver returns most columns as []byte, so the category decides parsing.
func FromSQL(raw any, category sqltype.Category) Value {
	if raw == nil {
		return Null()
	}
	var s string
	switch t := raw.(type) {
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		v := FromAny(raw)
		if category == sqltype.CategoryBool {
			if n, ok := v.AsNumber(); ok {
				return Bool(!n.IsZero())
			}
		}
		return v
	}

	switch category {
	case sqltype.CategoryInt, sqltype.CategoryDecimal:
		if d, err := decimal.NewFromString(s); err == nil {
			return Number(d)
		}
	case sqltype.CategoryBool:
		switch strings.ToLower(s) {
		case "1", "true", "\x01":
			return Bool(true)
		case "0", "false", "\x00":
			return Bool(false)
		}
	case sqltype.CategoryDate:
		if t, ok := parseTime(s); ok {
			return Date(t)
		}
	}
	return Text(s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
	time.DateOnly,
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromUint(u uint64) Value {
	return Number(decimal.RequireFromString(strconv.FormatUint(u, 10)))
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
