package report

import (
	"context"
	"fmt"
	"strings"

	"reportgen/internal/value"
)

// excluded reports whether any filter drops the row. Evaluation stops at the
// first filter that excludes.
func excluded(ctx context.Context, r *rowResolver, filters []PropertyFilter) (bool, error) {
	for _, f := range filters {
		if f.Exclude == nil {
			continue
		}
		v, err := r.resolve(ctx, f.Path, f.Kind)
		if err != nil {
			return false, err
		}
		if f.Exclude(v) {
			return true, nil
		}
	}
	return false, nil
}

// FilterOp names a comparison used by report definitions.
type FilterOp string

const (
	OpIsNull   FilterOp = "is_null"
	OpNotNull  FilterOp = "not_null"
	OpEq       FilterOp = "eq"
	OpNe       FilterOp = "ne"
	OpLt       FilterOp = "lt"
	OpLte      FilterOp = "lte"
	OpGt       FilterOp = "gt"
	OpGte      FilterOp = "gte"
	OpContains FilterOp = "contains"
	OpIn       FilterOp = "in"
)

// Matcher builds a predicate that reports whether a value satisfies op against
// operands. Comparisons are numeric when both sides convert to decimals and
// case-insensitive text otherwise.
func Matcher(op FilterOp, operands []value.Value) (func(value.Value) bool, error) {
	need := func(n int) error {
		if len(operands) < n {
			return fmt.Errorf("filter %s needs %d operand(s), got %d", op, n, len(operands))
		}
		return nil
	}
	switch op {
	case OpIsNull:
		return func(v value.Value) bool { return isBlank(v) }, nil
	case OpNotNull:
		return func(v value.Value) bool { return !isBlank(v) }, nil
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		if err := need(1); err != nil {
			return nil, err
		}
		operand := operands[0]
		return func(v value.Value) bool {
			if v.IsNull() {
				return op == OpNe && !operand.IsNull()
			}
			c := compareLoose(v, operand)
			switch op {
			case OpEq:
				return c == 0
			case OpNe:
				return c != 0
			case OpLt:
				return c < 0
			case OpLte:
				return c <= 0
			case OpGt:
				return c > 0
			default:
				return c >= 0
			}
		}, nil
	case OpContains:
		if err := need(1); err != nil {
			return nil, err
		}
		needle := strings.ToLower(operands[0].String())
		return func(v value.Value) bool {
			return !v.IsNull() && strings.Contains(strings.ToLower(v.String()), needle)
		}, nil
	case OpIn:
		if err := need(1); err != nil {
			return nil, err
		}
		return func(v value.Value) bool {
			for _, o := range operands {
				if !v.IsNull() && compareLoose(v, o) == 0 {
					return true
				}
			}
			return false
		}, nil
	default:
		return nil, fmt.Errorf("unknown filter operator %q", op)
	}
}

// NewFilter builds a PropertyFilter that keeps rows matching op, or drops
// them when exclude is set.
func NewFilter(path string, op FilterOp, operands []value.Value, exclude bool) (PropertyFilter, error) {
	match, err := Matcher(op, operands)
	if err != nil {
		return PropertyFilter{}, err
	}
	return PropertyFilter{
		Path: path,
		Exclude: func(v value.Value) bool {
			return match(v) == exclude
		},
	}, nil
}

func isBlank(v value.Value) bool {
	if v.IsNull() {
		return true
	}
	s, ok := v.AsText()
	return ok && s == ""
}

func compareLoose(a, b value.Value) int {
	if ad, ok := value.ToDecimal(a); ok {
		if bd, ok := value.ToDecimal(b); ok {
			return ad.Cmp(bd)
		}
	}
	if at, ok := a.AsDate(); ok {
		if bt, ok := b.AsDate(); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(strings.ToLower(a.String()), strings.ToLower(b.String()))
}
