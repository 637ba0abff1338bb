package tui

import (
	"context"

	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/model"
)

// CatalogSource adapts a catalog reader (the socket client or the store)
// to the feed engine's page source.
func CatalogSource(reader model.CatalogReader) feed.PagedSource[model.Product] {
	return feed.SourceFunc[model.Product](func(ctx context.Context, pageIndex, pageSize int) (feed.Page[model.Product], error) {
		page, err := reader.FetchPage(ctx, pageIndex, pageSize)
		if err != nil {
			return feed.Page[model.Product]{}, err
		}
		return feed.Page[model.Product]{Items: page.Items, HasMore: page.HasMore}, nil
	})
}
