package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/storefeed/internal/duckdb"
	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/ingest"
	"github.com/tinytelemetry/storefeed/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer wires the API to an in-memory store. Imports are written
// through synchronously so assertions can follow the request directly.
func newTestServer(t *testing.T, conf ...ServerConfig) (*Server, *duckdb.Store, *gin.Engine) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := ServerConfig{
		Sink: ingest.SinkFunc(func(p *model.Product) {
			if err := store.InsertProductBatch([]*model.Product{p}); err != nil {
				t.Errorf("insert: %v", err)
			}
		}),
	}
	if len(conf) > 0 {
		cfg.Planner = conf[0].Planner
	}

	srv := NewServer("", store, cfg)
	srv.startTime = time.Now()
	return srv, store, srv.routes()
}

func seed(t *testing.T, store *duckdb.Store, n int) {
	t.Helper()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	products := make([]*model.Product, n)
	for i := range products {
		products[i] = &model.Product{
			ID:         fmt.Sprintf("p-%03d", i),
			SellerID:   fmt.Sprintf("s-%d", i%4),
			SellerName: fmt.Sprintf("Shop %d", i%4),
			Title:      fmt.Sprintf("Item %d", i),
			PriceCents: 500,
			SalesCount: int64(i % 5),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	if err := store.InsertProductBatch(products); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func get(t *testing.T, r *gin.Engine, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("unmarshal %s: %v; body: %s", path, err, w.Body.String())
		}
	}
	return w.Code
}

type feedResponse struct {
	Page    int         `json:"page"`
	Size    int         `json:"size"`
	HasMore bool        `json:"has_more"`
	Total   int64       `json:"total"`
	Items   []feedEntry `json:"items"`
}

func TestHealthEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seed(t, store, 3)

	var body map[string]interface{}
	if code := get(t, r, "/api/health", &body); code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["product_count"] != float64(3) {
		t.Errorf("product_count = %v, want 3", body["product_count"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestFeedEndpoint_PagesAndSlots(t *testing.T) {
	_, store, r := newTestServer(t)
	seed(t, store, 45)

	var first feedResponse
	if code := get(t, r, "/api/feed", &first); code != http.StatusOK {
		t.Fatalf("feed status = %d", code)
	}
	if first.Size != model.DefaultPageSize || first.Page != 0 || !first.HasMore || first.Total != 45 {
		t.Errorf("first page meta = %+v", first)
	}
	if len(first.Items) != 20 {
		t.Fatalf("first page items = %d, want 20", len(first.Items))
	}
	if first.Items[0].Product.ID != "p-044" {
		t.Errorf("newest first: got %s", first.Items[0].Product.ID)
	}
	if first.Items[9].Slot != "sellers" || first.Items[19].Slot != "recently_viewed" {
		t.Errorf("slots = %q, %q", first.Items[9].Slot, first.Items[19].Slot)
	}
	if first.Items[10].Slot != "" {
		t.Errorf("unexpected slot at position 10: %q", first.Items[10].Slot)
	}

	var last feedResponse
	get(t, r, "/api/feed?page=2&size=20", &last)
	if last.HasMore {
		t.Error("last page should report has_more=false")
	}
	if len(last.Items) != 5 || last.Items[0].Position != 40 {
		t.Errorf("last page = %d items starting at %d", len(last.Items), last.Items[0].Position)
	}
}

func TestFeedEndpoint_ClampsAndValidates(t *testing.T) {
	_, store, r := newTestServer(t)
	seed(t, store, 5)

	var resp feedResponse
	get(t, r, "/api/feed?size=1000", &resp)
	if resp.Size != model.MaxPageSize {
		t.Errorf("size = %d, want clamp to %d", resp.Size, model.MaxPageSize)
	}
	get(t, r, "/api/feed?size=0", &resp)
	if resp.Size != model.DefaultPageSize {
		t.Errorf("size = %d, want default %d", resp.Size, model.DefaultPageSize)
	}

	for _, path := range []string{
		"/api/feed?page=-1",
		"/api/feed?page=x",
		"/api/feed?size=big",
		"/api/feed?page=9223372036854775807",
		"/api/feed?page=461168601842738790&size=20",
	} {
		if code := get(t, r, path, nil); code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, code)
		}
	}
}

func TestFeedEndpoint_ConfiguredPlanner(t *testing.T) {
	planner := feed.NewPlanner(feed.Rule{Every: 2, Kind: feed.SlotTrending})
	_, store, r := newTestServer(t, ServerConfig{Planner: &planner})
	seed(t, store, 4)

	var resp feedResponse
	get(t, r, "/api/feed", &resp)
	for i, e := range resp.Items {
		want := ""
		if (i+1)%2 == 0 {
			want = "trending"
		}
		if e.Slot != want {
			t.Errorf("item %d slot = %q, want %q", i, e.Slot, want)
		}
	}
}

func TestCarouselEndpoints(t *testing.T) {
	_, store, r := newTestServer(t)
	seed(t, store, 12)

	var sellers struct {
		Sellers []model.Seller `json:"sellers"`
	}
	if code := get(t, r, "/api/sellers/top?limit=2", &sellers); code != http.StatusOK {
		t.Fatalf("sellers status = %d", code)
	}
	if len(sellers.Sellers) != 2 || sellers.Sellers[0].ListingCount != 3 {
		t.Errorf("sellers = %+v", sellers.Sellers)
	}

	var trending struct {
		Products []model.Product `json:"products"`
	}
	get(t, r, "/api/products/trending", &trending)
	if len(trending.Products) == 0 || trending.Products[0].SalesCount != 4 {
		t.Errorf("trending = %+v", trending.Products)
	}

	if code := get(t, r, "/api/sellers/top?limit=abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", code)
	}
}

func TestProductsByIDsEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seed(t, store, 5)

	var resp struct {
		Products []model.Product `json:"products"`
	}
	get(t, r, "/api/products?ids=p-003,missing,p-001", &resp)
	if len(resp.Products) != 2 || resp.Products[0].ID != "p-003" || resp.Products[1].ID != "p-001" {
		t.Errorf("products = %+v", resp.Products)
	}

	if code := get(t, r, "/api/products", nil); code != http.StatusBadRequest {
		t.Errorf("missing ids status = %d, want 400", code)
	}
}

func TestImportEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)

	body := `{"title":"Lamp","seller_id":"s1","price":12.5}
{"title":"","seller_id":"s1"}
{"title":"Desk","seller_id":"s2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("import status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["accepted"] != 2 || resp["rejected"] != 1 {
		t.Errorf("import response = %v", resp)
	}

	count, err := store.TotalProductCount(context.Background())
	if err != nil || count != 2 {
		t.Errorf("TotalProductCount = %d, %v; want 2", count, err)
	}

	var runs struct {
		Runs []model.ImportRun `json:"runs"`
	}
	get(t, r, "/api/imports", &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].Source != "http" || runs.Runs[0].Accepted != 2 {
		t.Errorf("runs = %+v", runs.Runs)
	}
}

func TestImportEndpoint_JSONArrayAndBadBody(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`[{"title":"A","seller_id":"s"}]`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("json array import status = %d; body: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/products?format=json", bytes.NewBufferString(`not json`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/products?format=csv", bytes.NewBufferString(``))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", w.Code)
	}
}

func TestImportEndpoint_DisabledWithoutSink(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	r := NewServer("", store).routes()

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestServer_StartStop(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	srv := NewServer("127.0.0.1:0", store)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
