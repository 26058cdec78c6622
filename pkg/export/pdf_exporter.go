package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0 // A4 landscape minus margins
	pdfRowHeight  = 7.0
	pdfHeadHeight = 8.0
)

// PDFExporter renders tables into a landscape A4 report.
type PDFExporter struct {
	// Widths optionally weights column widths; missing entries weigh 1.
	Widths []float64
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(widths ...float64) *PDFExporter {
	return &PDFExporter{Widths: widths}
}

// Render creates the report. The header row is repeated on every page.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if table.Width() == 0 {
		return nil, fmt.Errorf("pdf: table has no columns")
	}
	widths := e.columnWidths(table.Width())

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, col := range table.Columns {
			pdf.CellFormat(widths[i], pdfHeadHeight, tr(col), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	pdf.AddPage()
	if table.Title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 10, tr(table.Title), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, row := range table.Rows {
		cells, err := fitRow(row, table.Width())
		if err != nil {
			return nil, fmt.Errorf("pdf: row %d: %w", i, err)
		}
		if pdf.GetY()+pdfRowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for j, cell := range cells {
			pdf.CellFormat(widths[j], pdfRowHeight, tr(cell), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) columnWidths(n int) []float64 {
	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		weights[i] = 1
		if i < len(e.Widths) && e.Widths[i] > 0 {
			weights[i] = e.Widths[i]
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] = pdfPageWidth * weights[i] / total
	}
	return weights
}
