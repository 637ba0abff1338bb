package duckdb

import "github.com/tinytelemetry/storefeed/internal/model"

var (
	_ model.CatalogReader = (*Store)(nil)
	_ model.CatalogWriter = (*Store)(nil)
)
