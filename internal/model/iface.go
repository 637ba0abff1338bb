package model

import "context"

// CatalogReader is the read contract shared by the store and the read
// surfaces (HTTP and socket RPC). FetchPage makes every reader a feed source.
type CatalogReader interface {
	FetchPage(ctx context.Context, pageIndex, pageSize int) (ProductPage, error)
	TotalProductCount(ctx context.Context) (int64, error)
	TopSellers(ctx context.Context, limit int) ([]Seller, error)
	TrendingProducts(ctx context.Context, limit int) ([]Product, error)
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// CatalogWriter provides append-oriented writes for imported products.
type CatalogWriter interface {
	InsertProductBatch(products []*Product) error
}
