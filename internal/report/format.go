package report

import (
	"reportgen/internal/schema"
	"reportgen/internal/value"
)

// TotalsLabel heads the label row placed before the totals row.
const TotalsLabel = "TOTALS"

// choiceLabels builds the lookup for one column. Blank raw values always map
// to the empty label.
func choiceLabels(choices []schema.Choice) map[string]string {
	labels := make(map[string]string, len(choices)+1)
	for _, c := range choices {
		labels[c.Value] = c.Label
	}
	labels[""] = ""
	return labels
}

// formatRows applies choice labels and then display formats in place.
func formatRows(rows []Row, columns []Column) {
	for _, c := range columns {
		slot := c.Position
		var labels map[string]string
		if len(c.Choices) > 0 {
			labels = choiceLabels(c.Choices)
		}
		if labels == nil && c.DisplayFormat == "" {
			continue
		}
		for _, row := range rows {
			v := row[slot]
			if labels != nil {
				v = substituteChoice(labels, v)
			}
			if c.DisplayFormat != "" {
				v = value.ApplyFormat(c.DisplayFormat, v)
			}
			row[slot] = v
		}
	}
}

// substituteChoice swaps a raw value for its label. Values outside the choice
// set are kept as they are.
func substituteChoice(labels map[string]string, v value.Value) value.Value {
	key := ""
	if !v.IsNull() {
		key = v.String()
	}
	label, ok := labels[key]
	if !ok {
		return v
	}
	return value.Label(label)
}

// totalsRows builds the label row and the totals row.
func totalsRows(columns []Column, t *totals) []Row {
	n := len(columns)
	label := make(Row, n)
	sums := make(Row, n)
	for i := range label {
		label[i] = value.Text("")
		sums[i] = value.Text("")
	}
	if n > 0 {
		label[0] = value.Label(TotalsLabel)
	}
	for _, c := range columns {
		d, ok := t.sum(c.Position)
		if !ok {
			continue
		}
		v := value.Number(d)
		if c.DisplayFormat != "" {
			v = value.ApplyFormat(c.DisplayFormat, v)
		}
		sums[c.Position] = v
	}
	return []Row{label, sums}
}
