package report

import (
	"github.com/shopspring/decimal"

	"reportgen/internal/value"
)

var one = decimal.NewFromInt(1)

// totals keeps one running sum per total column slot.
type totals struct {
	sums map[int]decimal.Decimal
}

func newTotals(slots map[int]struct{}) *totals {
	if len(slots) == 0 {
		return nil
	}
	t := &totals{sums: make(map[int]decimal.Decimal, len(slots))}
	for slot := range slots {
		t.sums[slot] = decimal.New(0, -2)
	}
	return t
}

// add accumulates v into the slot's sum when the slot is a total column.
func (t *totals) add(slot int, v value.Value) {
	if t == nil {
		return
	}
	sum, ok := t.sums[slot]
	if !ok {
		return
	}
	t.sums[slot] = sum.Add(increment(v))
}

// addRow accumulates every total slot of row.
func (t *totals) addRow(row Row) {
	if t == nil {
		return
	}
	for slot := range t.sums {
		if slot < len(row) {
			t.add(slot, row[slot])
		}
	}
}

// sum returns the slot's total and whether the slot is a total column.
func (t *totals) sum(slot int) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Decimal{}, false
	}
	d, ok := t.sums[slot]
	return d, ok
}

// increment is the amount one value contributes: booleans count 1 or 0,
// numbers add themselves, other truthy values count 1.
func increment(v value.Value) decimal.Decimal {
	if b, ok := v.AsBool(); ok {
		if b {
			return one
		}
		return decimal.Zero
	}
	if d, ok := v.AsNumber(); ok {
		return d
	}
	if v.Truthy() {
		return one
	}
	return decimal.Zero
}
