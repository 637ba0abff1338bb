package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// stubCatalog returns fixed values for dispatch unit testing.
type stubCatalog struct {
	lastPageIndex int
	lastPageSize  int
	lastIDs       []string
	fail          error
}

func (c *stubCatalog) FetchPage(_ context.Context, pageIndex, pageSize int) (model.ProductPage, error) {
	c.lastPageIndex, c.lastPageSize = pageIndex, pageSize
	if c.fail != nil {
		return model.ProductPage{}, c.fail
	}
	return model.ProductPage{
		Items:   []model.Product{{ID: "p1", Title: "Lamp", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}},
		HasMore: true,
		Total:   41,
	}, nil
}

func (c *stubCatalog) TotalProductCount(context.Context) (int64, error) { return 41, nil }

func (c *stubCatalog) TopSellers(_ context.Context, limit int) ([]model.Seller, error) {
	return []model.Seller{{ID: "s1", Name: "Shop", ListingCount: int64(limit)}}, nil
}

func (c *stubCatalog) TrendingProducts(context.Context, int) ([]model.Product, error) {
	return []model.Product{{ID: "p9", SalesCount: 12}}, nil
}

func (c *stubCatalog) ProductsByIDs(_ context.Context, ids []string) ([]model.Product, error) {
	c.lastIDs = ids
	out := make([]model.Product, len(ids))
	for i, id := range ids {
		out[i] = model.Product{ID: id}
	}
	return out, nil
}

func newTestDispatcher() (*Server, *stubCatalog) {
	stub := &stubCatalog{}
	return &Server{store: stub}, stub
}

func dispatch(t *testing.T, srv *Server, method, params string) Response {
	t.Helper()
	req := Request{JSONRPC: "2.0", ID: 7, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	resp := srv.dispatch(context.Background(), req)
	if resp.ID != 7 || resp.JSONRPC != "2.0" {
		t.Fatalf("%s: envelope = %+v", method, resp)
	}
	return resp
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"FetchPage", `{"PageIndex":1,"PageSize":20}`},
		{"TotalProductCount", ``},
		{"TotalProductCount", `null`},
		{"TopSellers", `{"Limit":5}`},
		{"TrendingProducts", `{"Limit":5}`},
		{"ProductsByIDs", `{"IDs":["a","b"]}`},
	}
	for _, tt := range tests {
		resp := dispatch(t, srv, tt.method, tt.params)
		if resp.Error != nil {
			t.Errorf("%s: unexpected error %v", tt.method, resp.Error)
		}
		if len(resp.Result) == 0 {
			t.Errorf("%s: empty result", tt.method)
		}
	}
}

func TestDispatch_FetchPagePassesArguments(t *testing.T) {
	t.Parallel()
	srv, stub := newTestDispatcher()

	resp := dispatch(t, srv, "FetchPage", `{"PageIndex":2,"PageSize":15}`)
	if resp.Error != nil {
		t.Fatalf("FetchPage: %v", resp.Error)
	}
	if stub.lastPageIndex != 2 || stub.lastPageSize != 15 {
		t.Errorf("store got page=%d size=%d, want 2/15", stub.lastPageIndex, stub.lastPageSize)
	}

	var page model.ProductPage
	if err := json.Unmarshal(resp.Result, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !page.HasMore || len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Errorf("page = %+v", page)
	}
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()
	srv, stub := newTestDispatcher()

	tests := []struct {
		name   string
		method string
		params string
		code   int
	}{
		{"unknown method", "DropTable", ``, codeMethodNotFound},
		{"malformed params", "TopSellers", `{"Limit":"five"}`, codeInvalidParams},
		{"negative page", "FetchPage", `{"PageIndex":-1}`, codeInvalidParams},
	}
	for _, tt := range tests {
		resp := dispatch(t, srv, tt.method, tt.params)
		if resp.Error == nil || resp.Error.Code != tt.code {
			t.Errorf("%s: error = %+v, want code %d", tt.name, resp.Error, tt.code)
		}
	}

	stub.fail = errors.New("catalog offline")
	resp := dispatch(t, srv, "FetchPage", `{"PageIndex":0}`)
	if resp.Error == nil || resp.Error.Code != codeApplication || resp.Error.Message != "catalog offline" {
		t.Errorf("store failure: error = %+v", resp.Error)
	}
}
