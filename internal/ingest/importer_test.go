package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tinytelemetry/storefeed/internal/model"
)

type collectSink struct {
	mu       sync.Mutex
	products []*model.Product
}

func (c *collectSink) Add(p *model.Product) {
	c.mu.Lock()
	c.products = append(c.products, p)
	c.mu.Unlock()
}

func (c *collectSink) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.products))
	for i, p := range c.products {
		out[i] = p.Title
	}
	return out
}

func TestImport_NDJSONWithMultilineObject(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		`{"title":"Lamp","seller_id":"s1","price_cents":100}`,
		``,
		`{`,
		`  "title": "Desk {oak}",`,
		`  "seller_id": "s2",`,
		`  "price": 89.99`,
		`}`,
		`not json`,
		`{"seller_id":"s3"}`,
	}, "\n")

	sink := &collectSink{}
	stats, err := Import(context.Background(), strings.NewReader(input), FormatNDJSON, sink)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Accepted != 2 || stats.Rejected != 2 {
		t.Errorf("stats = %+v, want 2 accepted 2 rejected", stats)
	}
	got := sink.titles()
	if len(got) != 2 || got[0] != "Lamp" || got[1] != "Desk {oak}" {
		t.Errorf("titles = %v", got)
	}
}

func TestImport_UnterminatedObjectIsRejected(t *testing.T) {
	t.Parallel()
	input := "{\"title\":\"a\",\"seller_id\":\"s\"}\n{\n\"title\": \"b\","
	stats, err := Import(context.Background(), strings.NewReader(input), "", &collectSink{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Accepted != 1 || stats.Rejected != 1 {
		t.Errorf("stats = %+v, want 1/1", stats)
	}
}

func TestImport_JSONArray(t *testing.T) {
	t.Parallel()
	input := `[{"title":"A","seller_id":"s"},{"title":"","seller_id":"s"},{"title":"C","seller_id":"s"}]`
	sink := &collectSink{}
	stats, err := Import(context.Background(), strings.NewReader(input), FormatJSON, sink)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Accepted != 2 || stats.Rejected != 1 {
		t.Errorf("stats = %+v, want 2/1", stats)
	}

	if _, err := Import(context.Background(), strings.NewReader(`{"title":"A"}`), FormatJSON, sink); err == nil {
		t.Error("a JSON object is not an array and should fail")
	}
}

func TestImport_YAMLListAndProductsKey(t *testing.T) {
	t.Parallel()
	list := `
- title: Kettle
  seller_id: s1
  price: 24.5
  created_at: 2025-02-01T08:00:00Z
- title: Teapot
  seller: s2
  price_cents: 1999
`
	keyed := `
products:
  - title: Cup
    seller_id: s1
    expires_at: 2030-01-01
  - seller_id: s9
`
	sink := &collectSink{}
	stats, err := Import(context.Background(), strings.NewReader(list), FormatYAML, sink)
	if err != nil {
		t.Fatalf("Import list: %v", err)
	}
	if stats.Accepted != 2 || stats.Rejected != 0 {
		t.Errorf("list stats = %+v", stats)
	}

	stats, err = Import(context.Background(), strings.NewReader(keyed), FormatYAML, sink)
	if err != nil {
		t.Fatalf("Import keyed: %v", err)
	}
	if stats.Accepted != 1 || stats.Rejected != 1 {
		t.Errorf("keyed stats = %+v", stats)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.products[0].PriceCents != 2450 {
		t.Errorf("Kettle PriceCents = %d, want 2450", sink.products[0].PriceCents)
	}
	if sink.products[0].CreatedAt.IsZero() {
		t.Error("Kettle CreatedAt should be parsed")
	}
	if sink.products[2].ExpiresAt.Year() != 2030 {
		t.Errorf("Cup ExpiresAt = %v", sink.products[2].ExpiresAt)
	}
}

func TestImport_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Import(ctx, strings.NewReader(`{"title":"a","seller_id":"s"}`), FormatNDJSON, &collectSink{})
	if err == nil {
		t.Error("Import with canceled context should fail")
	}
}

func TestImportFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := os.WriteFile(path, []byte("- {title: A, seller_id: s}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var n int
	stats, err := ImportFile(context.Background(), path, SinkFunc(func(*model.Product) { n++ }))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if stats.Accepted != 1 || n != 1 {
		t.Errorf("stats = %+v, sink calls = %d", stats, n)
	}

	if _, err := ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("missing file should fail")
	}
}

func TestCountJSONDepth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want int
	}{
		{`{`, 1},
		{`}`, -1},
		{`{"a": [1, 2]}`, 0},
		{`"tags": ["x", "{"],`, 0},
		{`"q": "say \"}\"" {`, 1},
	}
	for _, tt := range tests {
		if got := CountJSONDepth(tt.line); got != tt.want {
			t.Errorf("CountJSONDepth(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}
