package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// rawProduct accepts the field spellings seen in seller exports.
type rawProduct struct {
	ID          string `json:"id" yaml:"id"`
	SellerID    string `json:"seller_id" yaml:"seller_id"`
	Seller      string `json:"seller" yaml:"seller"`
	SellerName  string `json:"seller_name" yaml:"seller_name"`
	Title       string `json:"title" yaml:"title"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	PriceCents  *int64 `json:"price_cents" yaml:"price_cents"`
	Price       any    `json:"price" yaml:"price"`
	Currency    string `json:"currency" yaml:"currency"`
	ImageURL    string `json:"image_url" yaml:"image_url"`
	SalesCount  int64  `json:"sales_count" yaml:"sales_count"`
	CreatedAt   any    `json:"created_at" yaml:"created_at"`
	ExpiresAt   any    `json:"expires_at" yaml:"expires_at"`
}

var (
	errMissingTitle  = errors.New("missing title")
	errMissingSeller = errors.New("missing seller_id")
)

// ParseProductJSON parses one JSON object into a validated product.
func ParseProductJSON(data []byte) (*model.Product, error) {
	var raw rawProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return raw.normalize()
}

// normalize maps the raw record onto model.Product. Missing ids become
// UUIDs; missing creation times stay zero and are stamped on insert.
func (r rawProduct) normalize() (*model.Product, error) {
	p := &model.Product{
		ID:          strings.TrimSpace(r.ID),
		SellerID:    strings.TrimSpace(firstNonEmpty(r.SellerID, r.Seller)),
		SellerName:  strings.TrimSpace(r.SellerName),
		Title:       strings.TrimSpace(firstNonEmpty(r.Title, r.Name)),
		Description: strings.TrimSpace(r.Description),
		Currency:    strings.ToUpper(strings.TrimSpace(r.Currency)),
		ImageURL:    strings.TrimSpace(r.ImageURL),
		SalesCount:  max(r.SalesCount, 0),
	}
	if p.Title == "" {
		return nil, errMissingTitle
	}
	if p.SellerID == "" {
		return nil, errMissingSeller
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SellerName == "" {
		p.SellerName = p.SellerID
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}

	switch {
	case r.PriceCents != nil:
		p.PriceCents = *r.PriceCents
	case r.Price != nil:
		cents, err := priceToCents(r.Price)
		if err != nil {
			return nil, err
		}
		p.PriceCents = cents
	}
	if p.PriceCents < 0 {
		return nil, fmt.Errorf("negative price %d", p.PriceCents)
	}

	var err error
	if p.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if p.ExpiresAt, err = parseTime(r.ExpiresAt); err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	return p, nil
}

// priceToCents accepts 12.5, "12.50" or "12.50 USD".
func priceToCents(v any) (int64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s, _, _ := strings.Cut(strings.TrimSpace(x), " ")
		parsed, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
		if err != nil {
			return 0, fmt.Errorf("price %q: %w", x, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("price: unsupported type %T", v)
	}
	return int64(math.Round(f * 100)), nil
}

// parseTime accepts RFC 3339 strings, YYYY-MM-DD dates, unix seconds, or a
// time already decoded by the YAML parser. nil yields the zero time.
func parseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x.UTC(), nil
	case float64:
		return time.Unix(int64(x), 0).UTC(), nil
	case int:
		return time.Unix(int64(x), 0).UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", time.DateOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
