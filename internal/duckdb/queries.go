package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const productColumns = `id, seller_id, seller_name, title, description, price_cents, currency, image_url, sales_count, created_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	var expires sql.NullTime
	err := row.Scan(
		&p.ID, &p.SellerID, &p.SellerName, &p.Title, &p.Description,
		&p.PriceCents, &p.Currency, &p.ImageURL, &p.SalesCount,
		&p.CreatedAt, &expires,
	)
	if err != nil {
		return p, err
	}
	if expires.Valid {
		p.ExpiresAt = expires.Time
	}
	return p, nil
}

func (s *Store) queryProducts(ctx context.Context, op, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			log.Printf("duckdb scan error (%s): %v", op, err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TotalProductCount returns the number of listings in the catalog.
func (s *Store) TotalProductCount(ctx context.Context) (int64, error) {
	release, err := s.beginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.countLocked(ctx)
}

func (s *Store) countLocked(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// FetchPage returns page pageIndex of the catalog, newest first. Ties on
// created_at are broken by id so page boundaries are stable.
func (s *Store) FetchPage(ctx context.Context, pageIndex, pageSize int) (model.ProductPage, error) {
	pageSize = model.ClampPageSize(pageSize)
	offset, ok := model.PageOffset(pageIndex, pageSize)
	if !ok {
		return model.ProductPage{}, fmt.Errorf("duckdb: page index %d out of range", pageIndex)
	}

	release, err := s.beginRead(ctx)
	if err != nil {
		return model.ProductPage{}, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	total, err := s.countLocked(ctx)
	if err != nil {
		return model.ProductPage{}, fmt.Errorf("duckdb: count products: %w", err)
	}

	items, err := s.queryProducts(ctx, "FetchPage",
		`SELECT `+productColumns+` FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		pageSize, offset)
	if err != nil {
		return model.ProductPage{}, err
	}

	return model.ProductPage{
		Items:   items,
		HasMore: total > int64(offset+pageSize),
		Total:   total,
	}, nil
}

// TopSellers returns the sellers with the most listings.
func (s *Store) TopSellers(ctx context.Context, limit int) ([]model.Seller, error) {
	release, err := s.beginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seller_id, max(seller_name) AS name, COUNT(*) AS listings
		FROM products
		GROUP BY seller_id
		ORDER BY listings DESC, seller_id
		LIMIT ?`, carouselLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seller
	for rows.Next() {
		var sl model.Seller
		if err := rows.Scan(&sl.ID, &sl.Name, &sl.ListingCount); err != nil {
			log.Printf("duckdb scan error (TopSellers): %v", err)
			continue
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// TrendingProducts returns the best-selling listings.
func (s *Store) TrendingProducts(ctx context.Context, limit int) ([]model.Product, error) {
	release, err := s.beginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	return s.queryProducts(ctx, "TrendingProducts",
		`SELECT `+productColumns+` FROM products
		WHERE sales_count > 0
		ORDER BY sales_count DESC, created_at DESC, id DESC
		LIMIT ?`, carouselLimit(limit))
}

// ProductsByIDs returns the listings with the given ids in the order asked.
// Unknown ids are skipped.
func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	release, err := s.beginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := s.queryProducts(ctx, "ProductsByIDs",
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out, nil
}

// ImportRuns returns the most recent catalog imports.
func (s *Store) ImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	release, err := s.beginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, accepted, rejected, finished_at
		FROM import_runs
		ORDER BY finished_at DESC
		LIMIT ?`, carouselLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		if err := rows.Scan(&r.ID, &r.Source, &r.Accepted, &r.Rejected, &r.FinishedAt); err != nil {
			log.Printf("duckdb scan error (ImportRuns): %v", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func carouselLimit(limit int) int {
	if limit <= 0 {
		return model.DefaultCarouselLimit
	}
	return min(limit, model.MaxPageSize)
}
