package report

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reportgen/internal/value"
)

// nullPolicy substitutes nulls so that a column's values become comparable.
type nullPolicy int

const (
	nullAsText nullPolicy = iota
	nullAsDate
	nullAsZero
)

var nullPolicies = []nullPolicy{nullAsText, nullAsDate, nullAsZero}

func (p nullPolicy) String() string {
	switch p {
	case nullAsDate:
		return "date"
	case nullAsZero:
		return "number"
	default:
		return "text"
	}
}

// accepts reports whether every non-null value fits the policy.
func (p nullPolicy) accepts(v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		return true
	case value.KindText, value.KindLabel:
		return p == nullAsText
	case value.KindDate:
		return p == nullAsDate
	case value.KindNumber, value.KindBool:
		return p == nullAsZero
	default:
		return false
	}
}

func (p nullPolicy) compare(a, b value.Value) int {
	switch p {
	case nullAsDate:
		return dateKey(a).Compare(dateKey(b))
	case nullAsZero:
		return numericKey(a).Cmp(numericKey(b))
	default:
		as, _ := a.AsText()
		bs, _ := b.AsText()
		return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
	}
}

// earliestDate is the substitute for null dates; the zero time is 0001-01-01.
var earliestDate = time.Time{}

func dateKey(v value.Value) time.Time {
	if t, ok := v.AsDate(); ok {
		return t
	}
	return earliestDate
}

func numericKey(v value.Value) decimal.Decimal {
	if v.IsNull() {
		return decimal.Zero
	}
	d, _ := value.ToDecimal(v)
	return d
}

// policyFor picks the first null policy under which the whole column is comparable.
func policyFor(rows []Row, slot int) (nullPolicy, bool) {
	for _, p := range nullPolicies {
		ok := true
		for _, row := range rows {
			if !p.accepts(row[slot]) {
				ok = false
				break
			}
		}
		if ok {
			return p, true
		}
	}
	return 0, false
}

// sortRows applies every sort column as a stable sort in ascending priority so
// that the highest priority ends up as the primary key.
func sortRows(rows []Row, columns []Column, logger *slog.Logger) {
	var keys []Column
	for _, c := range columns {
		if c.Sort > 0 {
			keys = append(keys, c)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Sort < keys[j].Sort })

	for _, key := range keys {
		slot := key.Position
		policy, ok := policyFor(rows, slot)
		if !ok {
			logger.Warn("skipping sort on column with mixed value types",
				slog.String("column", key.DisplayName()),
				slog.Int("position", slot),
			)
			continue
		}
		logger.Debug("sorting rows",
			slog.String("column", key.DisplayName()),
			slog.String("null_policy", policy.String()),
			slog.Bool("reverse", key.SortReverse),
		)
		reverse := key.SortReverse
		sort.SliceStable(rows, func(i, j int) bool {
			if reverse {
				return policy.compare(rows[j][slot], rows[i][slot]) < 0
			}
			return policy.compare(rows[i][slot], rows[j][slot]) < 0
		})
	}
}
