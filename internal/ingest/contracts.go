package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// Supported import formats.
const (
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
	FormatYAML   = "yaml"
)

// ProductSink receives validated products. *duckdb.InsertBuffer satisfies it.
type ProductSink interface {
	Add(p *model.Product)
}

// SinkFunc adapts a function to ProductSink.
type SinkFunc func(p *model.Product)

func (f SinkFunc) Add(p *model.Product) { f(p) }

// FormatFromPath picks a format from a file extension. Unknown extensions
// are read as NDJSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatNDJSON
	}
}

// ParseFormat validates a user-supplied format name. Empty means NDJSON.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatNDJSON, "jsonl":
		return FormatNDJSON, nil
	case FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown import format %q (expected ndjson, json or yaml)", s)
	}
}
