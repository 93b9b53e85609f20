package domain

import (
	"time"
)

// Price presentation modes. A product either carries a fixed numeric price,
// is open to negotiation (no numeric price at all), or shows a free-form
// price label the seller typed in.
const (
	PriceTypeFixed      = "fixed"
	PriceTypeNegotiable = "negotiable"
	PriceTypeCustom     = "custom"
)

// ValidPriceType reports whether t is one of the known price modes.
func ValidPriceType(t string) bool {
	return t == PriceTypeFixed || t == PriceTypeNegotiable || t == PriceTypeCustom
}

// Currencies accepted for fixed prices. Anything else falls back to USD.
var ValidCurrencies = []string{"USD", "EUR", "BYN", "RUB"}

// ValidCurrency reports whether c is an accepted currency code.
func ValidCurrency(c string) bool {
	for _, v := range ValidCurrencies {
		if v == c {
			return true
		}
	}
	return false
}

// Category represents a product category (the filterable "type" of a listing).
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Characteristic is a (title, value) pair attached to exactly one product.
// Titles are not unique across products; they form the facet space.
type Characteristic struct {
	ID        int64  `json:"id,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
	Title     string `json:"title"`
	Value     string `json:"value"`
}

// Product is a marketplace listing. Price is nullable: absence of a numeric
// price is a valid state (negotiable and custom price modes), not an error.
type Product struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Description     *string          `json:"description,omitempty"`
	City            string           `json:"city"`
	Price           *float64         `json:"price,omitempty"`
	PriceType       string           `json:"price_type"`
	PriceText       *string          `json:"price_text,omitempty"`
	Currency        string           `json:"currency"`
	SellerID        int64            `json:"seller_id"`
	CategoryID      *int64           `json:"category_id,omitempty"`
	ImageURL        *string          `json:"image_url,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	Characteristics []Characteristic `json:"characteristics,omitempty"`
}

// HasPrice reports whether the product carries a usable numeric price.
// A zero price is treated the same as a missing one throughout filtering
// and sorting.
func (p *Product) HasPrice() bool {
	return p.Price != nil && *p.Price > 0
}
