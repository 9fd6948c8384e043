package render

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/jung-kurt/gofpdf"
)

// A4 printable area in millimetres.
const (
	pdfMargin    = 10.0
	pdfMaxWidth  = 210.0 - 2*pdfMargin
	pdfMaxHeight = 297.0 - 2*pdfMargin
)

// PDF wraps a rasterized receipt in a single-page A4 document, scaled to fit
// the printable area.
func PDF(receiptPNG []byte, title string) ([]byte, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(receiptPNG))
	if err != nil {
		return nil, fmt.Errorf("read receipt image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("receipt image is empty")
	}

	w := pdfMaxWidth
	h := w * float64(cfg.Height) / float64(cfg.Width)
	if h > pdfMaxHeight {
		h = pdfMaxHeight
		w = h * float64(cfg.Width) / float64(cfg.Height)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("receiptgen", true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("receipt", opt, bytes.NewReader(receiptPNG))
	pdf.ImageOptions("receipt", (210.0-w)/2, pdfMargin, w, h, false, opt, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
