package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/billing"
)

// ErrPDFUnavailable is returned when no HTML to PDF converter is configured.
var ErrPDFUnavailable = errors.New("pdf rendering is not configured")

// Converter is the external HTML to PDF capability.
type Converter interface {
	ConvertHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Renderer turns invoice documents into printable bytes.
type Renderer struct {
	tmpl      *template.Template
	converter Converter
}

// NewRenderer parses the invoice template. converter may be nil, in which
// case only HTML output is available.
func NewRenderer(converter Converter) (*Renderer, error) {
	tmpl, err := template.New("invoice").Funcs(template.FuncMap{
		"amount": billing.FormatAmount,
		"date":   func(t time.Time) string { return t.Format("2006-01-02") },
		"credit": func(d decimal.Decimal) bool { return d.IsNegative() },
		"abs":    func(d decimal.Decimal) string { return billing.FormatAmount(d.Abs()) },
	}).Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &Renderer{tmpl: tmpl, converter: converter}, nil
}

// HTML renders the invoice as a standalone HTML page.
func (r *Renderer) HTML(doc billing.InvoiceDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render invoice html: %w", err)
	}
	return buf.Bytes(), nil
}

// PDF renders the invoice to HTML and hands it to the converter.
func (r *Renderer) PDF(ctx context.Context, doc billing.InvoiceDocument) ([]byte, error) {
	if r.converter == nil {
		return nil, ErrPDFUnavailable
	}

	html, err := r.HTML(doc)
	if err != nil {
		return nil, err
	}

	out, err := r.converter.ConvertHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return out, nil
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.CustomerName}} {{.PeriodLabel}}</title>
<style>
body { font-family: sans-serif; margin: 32px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 6px; text-align: left; }
td.num, th.num { text-align: right; }
.totals p { margin: 4px 0; }
</style>
</head>
<body>
<h1>Invoice for {{.CustomerName}} &mdash; {{.PeriodLabel}}</h1>
<p>Phone: {{.Phone}}</p>
<table>
<tr><th>Date</th><th>Details</th><th class="num">Total</th></tr>
{{- range .Lines}}
<tr><td>{{date .Date}}</td><td>{{.Description}}</td><td class="num">{{amount .Total}}</td></tr>
{{- else}}
<tr><td colspan="3">No deliveries in this period.</td></tr>
{{- end}}
</table>
{{- if .Payments}}
<h2>Payments</h2>
<table>
<tr><th>Date</th><th>Method</th><th class="num">Amount</th></tr>
{{- range .Payments}}
<tr><td>{{date .Date}}</td><td>{{.Method}}</td><td class="num">{{amount .Amount}}</td></tr>
{{- end}}
</table>
{{- end}}
<div class="totals">
<p>Total: {{amount .TotalCharges}}</p>
<p>Paid: {{amount .TotalPaid}}</p>
{{- if credit .Due}}
<p>Credit: {{abs .Due}}</p>
{{- else}}
<p>Due: {{amount .Due}}</p>
{{- end}}
</div>
</body>
</html>
`
