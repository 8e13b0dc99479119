package reports

import (
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// The core PDF fonts only cover cp1252; fold the Turkish letters outside it.
var turkishFold = strings.NewReplacer(
	"ğ", "g", "Ğ", "G",
	"ş", "s", "Ş", "S",
	"ı", "i", "İ", "I",
)

const (
	pdfLineHeight = 5.5
	pdfColumnGap  = 2.0
)

// WritePDF writes doc as an A4 portrait PDF. Header and title rows are bold;
// columns share the page width evenly.
func WritePDF(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(turkishFold.Replace(s)) }

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, text(doc.Title), "", 1, "L", false, 0, "")

	for _, b := range doc.Blocks {
		pdf.Ln(pdfLineHeight)
		if b.Title != "" {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, 7, text(b.Title), "", 1, "L", false, 0, "")
		}
		for i, r := range b.Rows {
			if len(r) == 0 {
				continue
			}
			header := b.Header && i == 0
			if header {
				pdf.SetFont("Helvetica", "B", 9)
			} else {
				pdf.SetFont("Helvetica", "", 9)
			}

			colWidth := usable / float64(len(r))
			for j, cell := range r {
				ln := 0
				if j == len(r)-1 {
					ln = 1
				}
				border := ""
				if header {
					border = "B"
				}
				pdf.CellFormat(colWidth, pdfLineHeight, fitText(pdf, text(cell), colWidth-pdfColumnGap), border, ln, "L", false, 0, "")
			}
		}
	}

	return pdf.Output(w)
}

// fitText truncates s so it fits in width at the current font.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"..") > width {
		s = s[:len(s)-1]
	}
	return s + ".."
}
