// Package export writes report results as CSV or JSON documents.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"reportgen/internal/report"
	"reportgen/internal/value"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DefaultTitle names untitled exports.
const DefaultTitle = "report"

const maxTitleLen = 30

var nonWord = regexp.MustCompile(`\W+`)

// ParseFormat validates a requested format. An empty string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// SheetTitle reduces name to at most 30 word characters. Accents are folded
// so "Café staff" becomes "Cafestaff".
func SheetTitle(name string) string {
	folded, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), name)
	if err != nil {
		folded = name
	}
	title := nonWord.ReplaceAllString(folded, "")
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	if title == "" {
		return DefaultTitle
	}
	return title
}

// Filename returns the attachment name for a report title.
func Filename(title string, f Format) string {
	return SheetTitle(title) + "." + string(f)
}

// Header returns the display names of columns in position order.
func Header(columns []report.Column) []string {
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.DisplayName()
	}
	return header
}

// Sheet is one named block of rows.
type Sheet struct {
	Name string
	Rows []report.Row
}

// WriteCSV writes an optional header followed by rows.
func WriteCSV(w io.Writer, header []string, rows []report.Row) error {
	cw := csv.NewWriter(w)
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := writeRecords(cw, rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVSheets writes each sheet as its own section: a title record, the
// header, the rows and a blank separator record.
func WriteCSVSheets(w io.Writer, header []string, sheets []Sheet) error {
	cw := csv.NewWriter(w)
	for i, sheet := range sheets {
		if i > 0 {
			if err := cw.Write([]string{""}); err != nil {
				return fmt.Errorf("failed to write csv separator: %w", err)
			}
		}
		if err := cw.Write([]string{SheetTitle(sheet.Name)}); err != nil {
			return fmt.Errorf("failed to write sheet title: %w", err)
		}
		if len(header) > 0 {
			if err := cw.Write(header); err != nil {
				return fmt.Errorf("failed to write csv header: %w", err)
			}
		}
		if err := writeRecords(cw, sheet.Rows); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRecords(cw *csv.Writer, rows []report.Row) error {
	for i, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	return nil
}

func record(row report.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = v.String()
	}
	return out
}

// Document is the JSON export shape.
type Document struct {
	Title   string          `json:"title"`
	Columns []string        `json:"columns"`
	Rows    [][]value.Value `json:"rows"`
	Message string          `json:"message,omitempty"`
}

// WriteJSON encodes res with its header as a Document.
func WriteJSON(w io.Writer, title string, header []string, res report.Result) error {
	doc := Document{
		Title:   title,
		Columns: header,
		Rows:    make([][]value.Value, len(res.Rows)),
		Message: res.Message,
	}
	if doc.Columns == nil {
		doc.Columns = []string{}
	}
	for i, row := range res.Rows {
		doc.Rows[i] = row
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// Write encodes res in format f.
func Write(w io.Writer, f Format, title string, header []string, res report.Result) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, title, header, res)
	case FormatCSV:
		return WriteCSV(w, header, res.Rows)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}
