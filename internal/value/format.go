package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ErrFormat is returned when a display template cannot be applied to a number.
var ErrFormat = errors.New("invalid display format")

// ApplyFormat renders v through a brace template such as "{:,.2f}" or "${} USD".
// Numeric-looking values are converted to a decimal first; other non-null
// values are substituted as text. When rendering fails the original value is
// returned unchanged.
func ApplyFormat(template string, v Value) Value {
	if v.IsNull() {
		return v
	}
	var out string
	var err error
	if d, ok := ToDecimal(v); ok {
		out, err = Format(template, d)
	} else {
		out, err = FormatText(template, v.String())
	}
	if err != nil {
		return v
	}
	return Label(out)
}

// ToDecimal converts numeric-looking values to a decimal. Booleans count as 1 and 0.
func ToDecimal(v Value) (decimal.Decimal, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case KindText, KindLabel:
		d, err := decimal.NewFromString(strings.TrimSpace(v.str))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// Format substitutes d into every replacement field of template.
// Fields are "{}" or "{0}" with an optional ":spec" using the
// [[fill]align][sign][0][width][,|_][.precision][type] mini-language.
// Supported types are f, F, e, E, g, G, n and %; "{{" and "}}" are literal braces.
func Format(template string, d decimal.Decimal) (string, error) {
	return substitute(template, func(spec string) (string, error) {
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		return fs.render(d)
	})
}

// FormatText substitutes s into every replacement field of template. Only
// fill, alignment, width, precision (truncation) and the "s" type apply to text.
func FormatText(template string, s string) (string, error) {
	return substitute(template, func(spec string) (string, error) {
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		return fs.renderText(s)
	})
}

func substitute(template string, render func(spec string) (string, error)) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unmatched '{' in %q", ErrFormat, template)
			}
			field := template[i+1 : i+1+end]
			name, spec, _ := strings.Cut(field, ":")
			if name != "" && name != "0" {
				return "", fmt.Errorf("%w: unsupported field %q", ErrFormat, name)
			}
			rendered, err := render(spec)
			if err != nil {
				return "", err
			}
			b.WriteString(rendered)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' in %q", ErrFormat, template)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	width     int
	grouping  byte
	precision int
	typ       byte
}

func parseSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	rest := spec

	if r, size := utf8.DecodeRuneInString(rest); size > 0 && len(rest) > size && isAlign(rest[size]) {
		fs.fill = r
		fs.align = rest[size]
		rest = rest[size+1:]
	} else if len(rest) > 0 && isAlign(rest[0]) {
		fs.align = rest[0]
		rest = rest[1:]
	}

	if len(rest) > 0 && (rest[0] == '+' || rest[0] == '-' || rest[0] == ' ') {
		fs.sign = rest[0]
		rest = rest[1:]
	}
	rest = strings.TrimPrefix(rest, "#")
	if len(rest) > 0 && rest[0] == '0' {
		if fs.align == 0 {
			fs.fill = '0'
			fs.align = '='
		}
		rest = rest[1:]
	}

	digits := leadingDigits(rest)
	if digits != "" {
		fs.width, _ = strconv.Atoi(digits)
		rest = rest[len(digits):]
	}
	if len(rest) > 0 && (rest[0] == ',' || rest[0] == '_') {
		fs.grouping = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '.' {
		digits = leadingDigits(rest[1:])
		if digits == "" {
			return fs, fmt.Errorf("%w: missing precision in %q", ErrFormat, spec)
		}
		fs.precision, _ = strconv.Atoi(digits)
		rest = rest[1+len(digits):]
	}

	switch len(rest) {
	case 0:
	case 1:
		fs.typ = rest[0]
	default:
		return fs, fmt.Errorf("%w: invalid format specifier %q", ErrFormat, spec)
	}
	return fs, nil
}

func (fs formatSpec) render(d decimal.Decimal) (string, error) {
	negative := d.Sign() < 0
	abs := d.Abs()

	var body string
	switch fs.typ {
	case 'f', 'F':
		body = abs.StringFixed(int32(fs.precisionOr(6)))
	case '%':
		body = abs.Mul(decimal.NewFromInt(100)).StringFixed(int32(fs.precisionOr(6))) + "%"
	case 'e', 'E':
		f, _ := abs.Float64()
		body = strconv.FormatFloat(f, 'e', fs.precisionOr(6), 64)
		if fs.typ == 'E' {
			body = strings.ToUpper(body)
		}
	case 'g', 'G', 'n':
		f, _ := abs.Float64()
		body = strconv.FormatFloat(f, 'g', fs.precisionOr(-1), 64)
		if fs.typ == 'G' {
			body = strings.ToUpper(body)
		}
	case 0:
		if fs.precision >= 0 {
			f, _ := abs.Float64()
			body = strconv.FormatFloat(f, 'g', fs.precision, 64)
		} else {
			body = Number(abs).String()
		}
	default:
		return "", fmt.Errorf("%w: unknown format code %q for decimal", ErrFormat, string(fs.typ))
	}

	if fs.grouping != 0 {
		body = groupThousands(body, fs.grouping)
	}

	sign := ""
	switch {
	case negative && !abs.IsZero():
		sign = "-"
	case fs.sign == '+':
		sign = "+"
	case fs.sign == ' ':
		sign = " "
	}

	return fs.pad(sign, body), nil
}

// renderText left-aligns by default; sign, grouping, zero padding and numeric
// types are errors.
func (fs formatSpec) renderText(s string) (string, error) {
	if fs.typ != 0 && fs.typ != 's' {
		return "", fmt.Errorf("%w: unknown format code %q for text", ErrFormat, string(fs.typ))
	}
	if fs.sign != 0 || fs.grouping != 0 || fs.align == '=' {
		return "", fmt.Errorf("%w: numeric option in text format", ErrFormat)
	}
	if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	if fs.align == 0 {
		fs.align = '<'
	}
	return fs.pad("", s), nil
}

func (fs formatSpec) precisionOr(def int) int {
	if fs.precision < 0 {
		return def
	}
	return fs.precision
}

func (fs formatSpec) pad(sign, body string) string {
	n := utf8.RuneCountInString(sign) + utf8.RuneCountInString(body)
	if n >= fs.width {
		return sign + body
	}
	fill := strings.Repeat(string(fs.fill), fs.width-n)
	switch fs.align {
	case '<':
		return sign + body + fill
	case '^':
		left := (fs.width - n) / 2
		return strings.Repeat(string(fs.fill), left) + sign + body + strings.Repeat(string(fs.fill), fs.width-n-left)
	case '=':
		return sign + fill + body
	default:
		return fill + sign + body
	}
}

// groupThousands inserts sep every three digits of the integer part of s.
func groupThousands(s string, sep byte) string {
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(s)
	}
	intPart, tail := s[:end], s[end:]
	if len(intPart) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(tail)
	return b.String()
}

func isAlign(c byte) bool {
	return c == '<' || c == '>' || c == '=' || c == '^'
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
