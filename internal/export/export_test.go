package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/internal/report"
	"reportgen/internal/value"
)

func TestSheetTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Payroll by department", want: "Payrollbydepartment"},
		{in: "Café staff (2024)", want: "Cafestaff2024"},
		{in: "snake_case_kept", want: "snake_case_kept"},
		{in: "A very long report title that keeps going", want: "Averylongreporttitlethatkeepsg"},
		{in: "!!!", want: DefaultTitle},
		{in: "", want: DefaultTitle},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SheetTitle(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 30)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "application/json", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)

	assert.Equal(t, "Payroll.csv", Filename("Payroll!", FormatCSV))
}

func TestWriteCSV(t *testing.T) {
	rows := []report.Row{
		{value.Text("Ann, Lee"), value.Int(3), value.Null()},
		{value.Label("TOTALS"), value.Text(""), value.Text("3.00")},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"Name", "Count", "Total"}, rows))

	assert.Equal(t, "Name,Count,Total\n\"Ann, Lee\",3,\nTOTALS,,3.00\n", buf.String())
}

func TestWriteCSVWithoutHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, []report.Row{{value.Bool(true)}}))
	assert.Equal(t, "true\n", buf.String())
}

func TestWriteCSVSheets(t *testing.T) {
	sheets := []Sheet{
		{Name: "Engineering team", Rows: []report.Row{{value.Text("Ann")}}},
		{Name: "Sales", Rows: []report.Row{{value.Text("Bob")}, {value.Text("Cy")}}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSVSheets(&buf, []string{"Name"}, sheets))

	assert.Equal(t, "Engineeringteam\nName\nAnn\n\nSales\nName\nBob\nCy\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	res := report.Result{
		Rows: []report.Row{
			{value.Text("Ann"), value.Int(3), value.Null()},
		},
		Message: "You don't have permission to Salary",
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, "Payroll", []string{"Name", "Count", "Dept"}, res))

	var doc struct {
		Title   string   `json:"title"`
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
		Message string   `json:"message"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "Payroll", doc.Title)
	assert.Equal(t, []string{"Name", "Count", "Dept"}, doc.Columns)
	assert.Equal(t, [][]any{{"Ann", float64(3), nil}}, doc.Rows)
	assert.Equal(t, res.Message, doc.Message)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "r", nil, report.Result{Rows: []report.Row{}}))
	assert.JSONEq(t, `{"title":"r","columns":[],"rows":[]}`, buf.String())
}

func TestHeader(t *testing.T) {
	columns := []report.Column{
		{Path: "first_name"},
		{Path: "salary", Aggregate: report.AggregateSum, Name: "Payroll"},
	}
	header := Header(columns)
	require.Len(t, header, 2)
	assert.Equal(t, columns[0].DisplayName(), header[0])
	assert.Equal(t, "Payroll", header[1])
}
