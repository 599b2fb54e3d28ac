package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/buildmart/storefront/pkg/errors"
)

//go:embed data/products.json
var defaultProducts []byte

// Lookup resolves products by id.
type Lookup interface {
	Product(id int64) (Product, bool)
}

// Catalog is an immutable, in-memory product collection.
type Catalog struct {
	products []Product
	byID     map[int64]int
}

// Default loads the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultProducts))
}

// Load decodes and validates a JSON array of products.
func Load(r io.Reader) (*Catalog, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(products)
}

// New builds a catalog from already decoded products.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[int64]int, len(products)),
	}
	for _, p := range products {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %d", p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func validate(p Product) error {
	if p.ID <= 0 {
		return fmt.Errorf("product %q: id must be positive", p.Name)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product %d: name is required", p.ID)
	}
	if p.Price.Value.IsNegative() {
		return fmt.Errorf("product %d: negative price", p.ID)
	}
	if !p.Price.Unit.valid() {
		return fmt.Errorf("product %d: unknown unit %q", p.ID, p.Price.Unit)
	}
	for _, tier := range p.Price.BulkPrices {
		if tier.Quantity <= 0 || tier.Price.IsNegative() {
			return fmt.Errorf("product %d: invalid bulk tier %d@%s", p.ID, tier.Quantity, tier.Price)
		}
	}
	if p.Stock.MinOrder < 1 || p.Stock.MaxOrder < p.Stock.MinOrder {
		return fmt.Errorf("product %d: invalid order bounds [%d, %d]", p.ID, p.Stock.MinOrder, p.Stock.MaxOrder)
	}
	return nil
}

// Product implements Lookup.
func (c *Catalog) Product(id int64) (Product, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[idx], true
}

// Get returns the product or a NOT_FOUND error.
func (c *Catalog) Get(id int64) (Product, error) {
	p, ok := c.Product(id)
	if !ok {
		return Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"productId": id})
	}
	return p, nil
}

// List returns products matching the filter in catalog order.
func (c *Catalog) List(f Filter) []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if f.Main != "" && !strings.EqualFold(p.Category.Main, f.Main) {
			continue
		}
		if f.Sub != "" && !strings.EqualFold(p.Category.Sub, f.Sub) {
			continue
		}
		if f.InStock && !p.Status.InStock {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Categories derives the main -> sub tree, preserving first-seen order.
func (c *Catalog) Categories() []CategoryNode {
	var nodes []CategoryNode
	index := map[string]int{}
	seenSub := map[string]struct{}{}
	for _, p := range c.products {
		i, ok := index[p.Category.Main]
		if !ok {
			i = len(nodes)
			index[p.Category.Main] = i
			nodes = append(nodes, CategoryNode{Name: p.Category.Main, Subcategories: []string{}})
		}
		nodes[i].ProductCount++
		key := p.Category.Main + "\x00" + p.Category.Sub
		if _, ok := seenSub[key]; ok || p.Category.Sub == "" {
			continue
		}
		seenSub[key] = struct{}{}
		nodes[i].Subcategories = append(nodes[i].Subcategories, p.Category.Sub)
	}
	return nodes
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}
