package export

import (
	"errors"
	"io"
	"os"

	"github.com/go-pdf/fpdf"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
)

var errClosed = errors.New("document already written")

// PDFExporter accumulates article blocks into one document for a whole run.
type PDFExporter struct {
	pdf       *fpdf.Fpdf
	translate func(string) string
	articles  int
	closed    bool
}

func NewPDFExporter() *PDFExporter {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("PubMed abstracts", true)
	pdf.SetCreator("readmit", true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)

	return &PDFExporter{
		pdf: pdf,
		// Core fonts are encoded in cp1252.
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

// AddArticle appends a bold title followed by the abstract and its link.
func (e *PDFExporter) AddArticle(a models.Article) error {
	if e.closed {
		return types.Wrap(types.KindExport, "add article", errClosed)
	}

	title := e.translate(Sanitize(a.Title))
	body := e.translate(Sanitize(a.Abstract) + "\nLink: " + Sanitize(a.URL) + "\n\n")

	e.pdf.SetFont("Arial", "B", 12)
	e.pdf.MultiCell(0, 10, title, "", "L", false)
	e.pdf.SetFont("Arial", "", 11)
	e.pdf.MultiCell(0, 10, body, "", "L", false)

	if err := e.pdf.Error(); err != nil {
		return types.Wrap(types.KindExport, "add article", err)
	}
	e.articles++
	return nil
}

// Len is the number of articles added.
func (e *PDFExporter) Len() int { return e.articles }

// PageCount is the number of pages laid out so far.
func (e *PDFExporter) PageCount() int { return e.pdf.PageCount() }

// Write finalizes the document to w. The exporter cannot be reused.
func (e *PDFExporter) Write(w io.Writer) error {
	if e.closed {
		return types.Wrap(types.KindExport, "write pdf", errClosed)
	}
	e.closed = true
	return types.Wrap(types.KindExport, "write pdf", e.pdf.Output(w))
}

// WriteFile finalizes the document to path.
func (e *PDFExporter) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return types.Wrap(types.KindExport, "create "+path, err)
	}
	if err := e.Write(f); err != nil {
		f.Close()
		return err
	}
	return types.Wrap(types.KindExport, "close "+path, f.Close())
}
