package catalog

import "github.com/shopspring/decimal"

// Unit is the unit of measure a product is priced in.
type Unit string

const (
	UnitPiece  Unit = "piece"
	UnitM2     Unit = "m2"
	UnitM3     Unit = "m3"
	UnitKg     Unit = "kg"
	UnitTon    Unit = "ton"
	UnitBag    Unit = "bag"
	UnitPallet Unit = "pallet"
	UnitMeter  Unit = "meter"
)

func (u Unit) valid() bool {
	switch u {
	case UnitPiece, UnitM2, UnitM3, UnitKg, UnitTon, UnitBag, UnitPallet, UnitMeter:
		return true
	}
	return false
}

// Product is a read-only catalog record.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	SKU            string          `json:"sku"`
	Brand          string          `json:"brand"`
	Price          Price           `json:"price"`
	Stock          Stock           `json:"stock"`
	Specifications *Specifications `json:"specifications,omitempty"`
	Category       Category        `json:"category"`
	Images         Images          `json:"images"`
	Description    Description     `json:"description"`
	Tags           []string        `json:"tags,omitempty"`
	Rating         *Rating         `json:"rating,omitempty"`
	Status         Status          `json:"status"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

// Price carries the base unit price and optional bulk tiers.
// Tiers are kept in source order; callers must not assume sorting.
type Price struct {
	Value      decimal.Decimal `json:"value"`
	Unit       Unit            `json:"unit"`
	BulkPrices []BulkTier      `json:"bulkPrices,omitempty"`
}

type BulkTier struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Stock struct {
	Available int    `json:"available"`
	MinOrder  int    `json:"minOrder"`
	MaxOrder  int    `json:"maxOrder"`
	LeadTime  string `json:"leadTime,omitempty"`
	Warehouse string `json:"warehouse"`
}

type Status struct {
	InStock      bool  `json:"inStock"`
	IsNew        bool  `json:"isNew,omitempty"`
	OnSale       *Sale `json:"onSale,omitempty"`
	Discontinued bool  `json:"discontinued,omitempty"`
}

// Sale describes a percentage markdown. EndDate is informational.
type Sale struct {
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	EndDate         string          `json:"endDate,omitempty"`
}

type Category struct {
	Main string `json:"main"`
	Sub  string `json:"sub"`
	Type string `json:"type,omitempty"`
}

type Images struct {
	Main    string   `json:"main"`
	Gallery []string `json:"gallery,omitempty"`
}

type Description struct {
	Short string `json:"short"`
	Full  string `json:"full,omitempty"`
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Measure struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

// Specifications is display-only product detail.
type Specifications struct {
	Dimensions      *Dimensions `json:"dimensions,omitempty"`
	Weight          *Measure    `json:"weight,omitempty"`
	Material        string      `json:"material,omitempty"`
	Strength        string      `json:"strength,omitempty"`
	Grade           string      `json:"grade,omitempty"`
	Manufacturer    string      `json:"manufacturer,omitempty"`
	CountryOfOrigin string      `json:"countryOfOrigin,omitempty"`
	Certificates    []string    `json:"certificates,omitempty"`
}

// CategoryNode groups subcategories under a main category.
type CategoryNode struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
	ProductCount  int      `json:"productCount"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Main    string
	Sub     string
	InStock bool
}
