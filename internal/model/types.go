package model

import (
	"fmt"
	"time"
)

// Product is a catalog listing. It is the payload carried by the feed and
// the canonical type for storage, transport and display.
type Product struct {
	ID          string    `json:"id" yaml:"id"`
	SellerID    string    `json:"seller_id" yaml:"seller_id"`
	SellerName  string    `json:"seller_name" yaml:"seller_name"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	PriceCents  int64     `json:"price_cents" yaml:"price_cents"`
	Currency    string    `json:"currency" yaml:"currency"`
	ImageURL    string    `json:"image_url,omitempty" yaml:"image_url"`
	SalesCount  int64     `json:"sales_count" yaml:"sales_count"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitzero" yaml:"expires_at"` // zero = never
}

// Price formats PriceCents with the currency code, e.g. "12.50 USD".
func (p Product) Price() string {
	cur := p.Currency
	if cur == "" {
		cur = "USD"
	}
	sign := ""
	cents := p.PriceCents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, cur)
}

// Seller is a shop with its active listing count.
type Seller struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ListingCount int64  `json:"listing_count"`
}

// ProductPage is one page of the reverse-chronological catalog.
type ProductPage struct {
	Items   []Product `json:"items"`
	HasMore bool      `json:"has_more"`
	Total   int64     `json:"total"`
}

// ImportRun records one catalog import.
type ImportRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Accepted   int64     `json:"accepted"`
	Rejected   int64     `json:"rejected"`
	FinishedAt time.Time `json:"finished_at"`
}

// IngestLine is one line read from a streaming product source. EOF marks the
// end of the stream named by Source and carries no line.
type IngestLine struct {
	Source string
	Line   string
	EOF    bool
}
