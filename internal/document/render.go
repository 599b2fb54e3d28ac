package document

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Document is a rendered order PDF.
type Document struct {
	Bytes []byte
	Pages int
}

// Renderer turns an order into a document.
type Renderer interface {
	Render(o Order) (Document, error)
}

// PDFRenderer draws Layout output with fpdf core fonts.
type PDFRenderer struct {
	Geometry Geometry
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Geometry: DefaultGeometry}
}

func (r *PDFRenderer) Render(o Order) (Document, error) {
	g := r.Geometry
	if g.Width == 0 || g.Height == 0 {
		g = DefaultGeometry
	}
	pages := Layout(o, g)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: g.Width, Ht: g.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Order", true)
	pdf.SetCreator("buildmart-storefront", true)
	if !o.Date.IsZero() {
		pdf.SetCreationDate(o.Date)
	}
	pdf.SetFont("Helvetica", "", bodySize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range pages {
		pdf.AddPage()
		for _, t := range page.Texts {
			pdf.SetFontSize(t.Size)
			pdf.Text(t.X, g.Height-t.Y, tr(t.Body))
		}
	}
	if err := pdf.Error(); err != nil {
		return Document{}, fmt.Errorf("render order pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("write order pdf: %w", err)
	}
	return Document{Bytes: buf.Bytes(), Pages: len(pages)}, nil
}
