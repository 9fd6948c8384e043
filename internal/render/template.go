// Package render turns receipt records into HTML documents and rasterizes
// them to PNG through a headless browser.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"receiptgen/internal/receipt"
)

// TemplateName is the file name of the receipt template, both embedded and
// in an override directory.
const TemplateName = "receipt.html.tmpl"

// ReadyExpression evaluates to true once the page has settled.
const ReadyExpression = `() => window.__receiptReady === true`

// resetReadyExpression clears the signal left by the previous document.
// Replacing the document content keeps the same window object.
const resetReadyExpression = `() => { window.__receiptReady = false }`

//go:embed templates/*.tmpl
var embedded embed.FS

// View is the data the receipt template executes against.
type View struct {
	receipt.Record
	AmountWords string
	AmountText  string
	DateText    string
	Logo        template.URL
	Signature   template.URL
	QRCode      template.URL
}

// NewView derives the display fields for rec.
func NewView(rec receipt.Record) View {
	v := View{
		Record:      rec,
		AmountWords: receipt.AmountInWordsFloat(rec.PaymentAmount),
		AmountText:  receipt.FormatAmount(rec.PaymentAmount),
		DateText:    receipt.FormatDate(rec.PaymentDate),
		Logo:        imageURL(rec.LogoURL),
		Signature:   imageURL(rec.SignatureURL),
	}
	if qr, err := QRDataURL(rec); err == nil {
		v.QRCode = template.URL(qr)
	}
	return v
}

// imageURL admits http(s) and inline image URLs; anything else is dropped.
func imageURL(s string) template.URL {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"):
		return template.URL(s)
	default:
		return ""
	}
}

// Templates holds the parsed receipt template. Reload swaps it atomically.
type Templates struct {
	mu   sync.RWMutex
	tmpl *template.Template
	dir  string
}

// NewTemplates parses the template from dir, or the embedded copy when dir
// is empty.
func NewTemplates(dir string) (*Templates, error) {
	t := &Templates{dir: dir}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Dir returns the override directory, or "" for the embedded template.
func (t *Templates) Dir() string {
	return t.dir
}

// Reload re-parses the template. On failure the previous template stays in use.
func (t *Templates) Reload() error {
	var (
		tmpl *template.Template
		err  error
	)
	if t.dir == "" {
		tmpl, err = template.ParseFS(embedded, "templates/"+TemplateName)
	} else {
		var src []byte
		src, err = os.ReadFile(filepath.Join(t.dir, TemplateName))
		if err == nil {
			tmpl, err = template.New(TemplateName).Parse(string(src))
		}
	}
	if err != nil {
		return fmt.Errorf("parse receipt template: %w", err)
	}

	t.mu.Lock()
	t.tmpl = tmpl
	t.mu.Unlock()
	return nil
}

// Page renders the receipt document for rec.
func (t *Templates) Page(rec receipt.Record) ([]byte, error) {
	t.mu.RLock()
	tmpl := t.tmpl
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, TemplateName, NewView(rec)); err != nil {
		return nil, fmt.Errorf("execute receipt template: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	defaultOnce sync.Once
	defaultTmpl *Templates
	defaultErr  error
)

// Page renders rec with the embedded template.
func Page(rec receipt.Record) ([]byte, error) {
	defaultOnce.Do(func() {
		defaultTmpl, defaultErr = NewTemplates("")
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultTmpl.Page(rec)
}
