package statement

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns documents into self-contained HTML pages.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("documents").Funcs(template.FuncMap{
		"money":   formatMoney,
		"logoURL": logoURL,
		"nonZero": func(d decimal.Decimal) bool { return !d.IsZero() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse statement templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) RenderStatement(w io.Writer, s Statement) error {
	return r.render(w, "statement.html", s)
}

func (r *Renderer) RenderReceipt(w io.Writer, rc Receipt) error {
	return r.render(w, "receipt.html", rc)
}

// render executes into a buffer so a failed page never reaches w half written.
func (r *Renderer) render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// formatMoney renders a decimal with two places and thousand separators.
// Example: -1234.5 -> "-1,234.50"
func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	intPart, decPart, _ := strings.Cut(d.StringFixed(2), ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + "." + decPart
}

// logoURL lets inline image data URIs through html/template's URL filter.
// Anything else is dropped.
func logoURL(uri string) template.URL {
	if strings.HasPrefix(uri, "data:image/") {
		return template.URL(uri)
	}
	return ""
}
