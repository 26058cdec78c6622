package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is a titled grid of report cells.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Width returns the number of columns.
func (t Table) Width() int {
	return len(t.Columns)
}

// CSVExporter writes tables as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the header row followed by every data row. Short rows are
// padded and long rows are rejected.
func (e *CSVExporter) Render(table Table) ([]byte, error) {
	if table.Width() == 0 {
		return nil, fmt.Errorf("csv: table has no columns")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	for i, row := range table.Rows {
		record, err := fitRow(row, table.Width())
		if err != nil {
			return nil, fmt.Errorf("csv: row %d: %w", i, err)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("csv: write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("csv: flush: %w", err)
	}
	return buf.Bytes(), nil
}

func fitRow(row []string, width int) ([]string, error) {
	if len(row) > width {
		return nil, fmt.Errorf("%d cells for %d columns", len(row), width)
	}
	if len(row) == width {
		return row, nil
	}
	out := make([]string, width)
	copy(out, row)
	return out, nil
}
