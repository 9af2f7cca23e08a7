package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet renders every sheet of an xlsx workbook as a text table.
func extractSpreadsheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[sheet] %s\n", sheet)
		sb.WriteString(renderTable(rows))
	}
	return sb.String(), nil
}

// extractCSV renders comma-separated records as a text table.
func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read csv: %w", err)
	}
	return renderTable(rows), nil
}

// renderTable flattens rows into aligned columns. The first row is treated as
// the header; data rows are prefixed with their zero-based index.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow(tw, "", rows[0], width)
	for i, row := range rows[1:] {
		writeRow(tw, strconv.Itoa(i), row, width)
	}
	tw.Flush()
	return buf.String()
}

func writeRow(tw *tabwriter.Writer, index string, row []string, width int) {
	cells := make([]string, 0, width+1)
	cells = append(cells, index)
	for c := range width {
		cell := ""
		if c < len(row) {
			cell = strings.ReplaceAll(row[c], "\n", " ")
		}
		cells = append(cells, cell)
	}
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
}
