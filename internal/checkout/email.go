package checkout

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/buildmart/storefront/internal/document"
	"github.com/shopspring/decimal"
)

const orderSubject = "New order"

var orderEmailTemplate = template.Must(template.New("order").Parse(`<h2>New order received</h2>
<p>Reference: {{.Reference}}</p>
<p>Date: {{.Date}}</p>
<h3>Order summary:</h3>
<ul>
  <li>Subtotal: {{.Subtotal}}</li>
  <li>Shipping: {{.Shipping}}</li>
  <li>VAT ({{.TaxPercent}}%): {{.Tax}}</li>
  <li>Total: {{.Total}}</li>
</ul>
<h3>Items:</h3>
<ul>
{{- range .Items}}
  <li>{{.Name}} - {{.Quantity}} {{.Unit}} ({{.Total}})</li>
{{- end}}
</ul>
`))

type emailItem struct {
	Name     string
	Quantity int
	Unit     string
	Total    string
}

type emailData struct {
	Reference  string
	Date       string
	Subtotal   string
	Shipping   string
	Tax        string
	TaxPercent string
	Total      string
	Items      []emailItem
}

func newEmailData(reference string, o document.Order) emailData {
	money := func(v decimal.Decimal) string {
		if o.Currency == "" {
			return v.StringFixed(2)
		}
		return v.StringFixed(2) + " " + o.Currency
	}
	data := emailData{
		Reference:  reference,
		Date:       o.Date.Format("02.01.2006"),
		Subtotal:   money(o.Summary.Subtotal),
		Shipping:   money(o.Summary.Shipping),
		Tax:        money(o.Summary.Tax),
		TaxPercent: document.TaxPercent(o.TaxRate),
		Total:      money(o.Summary.Total),
	}
	for _, line := range o.Lines {
		data.Items = append(data.Items, emailItem{
			Name:     line.Name,
			Quantity: line.Quantity,
			Unit:     line.Unit,
			Total:    money(line.LineTotal),
		})
	}
	return data
}

// renderEmail returns the HTML body and a plain-text fallback.
func renderEmail(reference string, o document.Order) (string, string, error) {
	data := newEmailData(reference, o)

	var html bytes.Buffer
	if err := orderEmailTemplate.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render order email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "New order %s (%s)\n", data.Reference, data.Date)
	for _, item := range data.Items {
		fmt.Fprintf(&text, "- %s: %d %s, %s\n", item.Name, item.Quantity, item.Unit, item.Total)
	}
	fmt.Fprintf(&text, "Subtotal: %s\nShipping: %s\nVAT (%s%%): %s\nTotal: %s\n",
		data.Subtotal, data.Shipping, data.TaxPercent, data.Tax, data.Total)
	return html.String(), text.String(), nil
}
