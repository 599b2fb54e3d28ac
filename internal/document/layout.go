// Package document lays out and renders the order PDF.
package document

import (
	"fmt"
	"time"

	"github.com/buildmart/storefront/internal/order"
	"github.com/shopspring/decimal"
)

// Geometry is measured in points with the origin at the bottom-left.
type Geometry struct {
	Width  float64
	Height float64
	Top    float64
	Bottom float64
}

// DefaultGeometry is a 600x800pt page written from y=750 down to y=100.
var DefaultGeometry = Geometry{Width: 600, Height: 800, Top: 750, Bottom: 100}

const (
	marginX     = 50
	indentX     = 70
	titleX      = 250
	titleSize   = 20
	headingSize = 14
	bodySize    = 12

	itemBlockHeight    = 20 + 20 + 20 + 30
	summaryBlockHeight = 20 + 20 + 20 + 20 + 30

	ContinuationMarker = "(continued on next page)"
)

// Line is one priced item of an order.
type Line struct {
	Name      string
	Quantity  int
	Unit      string
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Order is everything the document shows.
type Order struct {
	Date     time.Time
	Lines    []Line
	Summary  order.Summary
	TaxRate  decimal.Decimal
	Currency string
}

// Text is a single positioned string.
type Text struct {
	X, Y float64
	Size float64
	Body string
	// Item is the 1-based item index the text belongs to, 0 otherwise.
	Item int
}

// Page is the ordered text of one page.
type Page struct {
	Texts []Text
}

// Layout plans pages. Item blocks and the summary block are never split:
// when one does not fit above Bottom a continuation marker is written and a
// new page begins.
func Layout(o Order, g Geometry) []Page {
	p := &planner{g: g, y: g.Top, currency: o.Currency}
	p.pages = []Page{{}}

	p.text(titleX, titleSize, "Order", 0)
	p.y -= 40
	p.text(marginX, bodySize, "Date: "+o.Date.Format("02.01.2006"), 0)
	p.y -= 30
	p.text(marginX, headingSize, "Items:", 0)
	p.y -= 20

	for i, line := range o.Lines {
		idx := i + 1
		p.reserve(itemBlockHeight)
		p.text(marginX, bodySize, fmt.Sprintf("%d. %s", idx, line.Name), idx)
		p.y -= 20
		p.text(indentX, bodySize, fmt.Sprintf("Quantity: %d %s", line.Quantity, line.Unit), idx)
		p.y -= 20
		p.text(indentX, bodySize, "Unit price: "+p.money(line.UnitPrice), idx)
		p.y -= 20
		p.text(indentX, bodySize, "Total: "+p.money(line.LineTotal), idx)
		p.y -= 30
	}

	p.reserve(summaryBlockHeight)
	p.text(marginX, headingSize, "Order summary:", 0)
	p.y -= 20
	p.text(marginX, bodySize, "Subtotal: "+p.money(o.Summary.Subtotal), 0)
	p.y -= 20
	p.text(marginX, bodySize, "Shipping: "+p.money(o.Summary.Shipping), 0)
	p.y -= 20
	p.text(marginX, bodySize, fmt.Sprintf("VAT (%s%%): %s", TaxPercent(o.TaxRate), p.money(o.Summary.Tax)), 0)
	p.y -= 20
	p.text(marginX, bodySize, "Total: "+p.money(o.Summary.Total), 0)
	p.y -= 30

	return p.pages
}

type planner struct {
	g        Geometry
	y        float64
	pages    []Page
	currency string
}

func (p *planner) text(x, size float64, body string, item int) {
	last := &p.pages[len(p.pages)-1]
	last.Texts = append(last.Texts, Text{X: x, Y: p.y, Size: size, Body: body, Item: item})
}

func (p *planner) reserve(height float64) {
	if p.y-height >= p.g.Bottom {
		return
	}
	p.text(marginX, bodySize, ContinuationMarker, 0)
	p.pages = append(p.pages, Page{})
	p.y = p.g.Top
}

func (p *planner) money(v decimal.Decimal) string {
	if p.currency == "" {
		return v.StringFixed(2)
	}
	return v.StringFixed(2) + " " + p.currency
}

// TaxPercent renders a rate such as 0.20 as "20".
func TaxPercent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}
