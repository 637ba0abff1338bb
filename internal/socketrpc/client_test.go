package socketrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/storefeed/internal/duckdb"
	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/model"
	"github.com/tinytelemetry/storefeed/internal/socketrpc"
)

func newSeededStore(t *testing.T, n int) *duckdb.Store {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	products := make([]*model.Product, n)
	for i := range products {
		products[i] = &model.Product{
			ID:         fmt.Sprintf("p-%03d", i),
			SellerID:   fmt.Sprintf("s-%d", i%2),
			SellerName: fmt.Sprintf("Shop %d", i%2),
			Title:      fmt.Sprintf("Item %d", i),
			SalesCount: int64(i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	if err := store.InsertProductBatch(products); err != nil {
		t.Fatalf("InsertProductBatch: %v", err)
	}
	return store
}

func startTestServer(t *testing.T, store model.CatalogReader) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, store)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func dialTest(t *testing.T, sockPath string) *socketrpc.Client {
	t.Helper()
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 25))
	defer srv.Stop()
	client := dialTest(t, sockPath)
	ctx := context.Background()

	t.Run("FetchPage", func(t *testing.T) {
		page, err := client.FetchPage(ctx, 1, 20)
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if len(page.Items) != 5 || page.HasMore || page.Total != 25 {
			t.Fatalf("page = %d items, more=%v, total=%d", len(page.Items), page.HasMore, page.Total)
		}
		if page.Items[0].ID != "p-004" {
			t.Errorf("first item = %s, want p-004", page.Items[0].ID)
		}
		if page.Items[0].CreatedAt.IsZero() {
			t.Error("created_at lost in transport")
		}
	})

	t.Run("TotalProductCount", func(t *testing.T) {
		n, err := client.TotalProductCount(ctx)
		if err != nil || n != 25 {
			t.Fatalf("TotalProductCount = %d, %v", n, err)
		}
	})

	t.Run("TopSellers", func(t *testing.T) {
		sellers, err := client.TopSellers(ctx, 5)
		if err != nil {
			t.Fatalf("TopSellers: %v", err)
		}
		if len(sellers) != 2 || sellers[0].ID != "s-0" || sellers[0].ListingCount != 13 {
			t.Fatalf("sellers = %+v", sellers)
		}
	})

	t.Run("TrendingProducts", func(t *testing.T) {
		got, err := client.TrendingProducts(ctx, 3)
		if err != nil {
			t.Fatalf("TrendingProducts: %v", err)
		}
		if len(got) != 3 || got[0].ID != "p-024" {
			t.Fatalf("trending = %+v", got)
		}
	})

	t.Run("ProductsByIDs", func(t *testing.T) {
		got, err := client.ProductsByIDs(ctx, []string{"p-010", "p-002"})
		if err != nil {
			t.Fatalf("ProductsByIDs: %v", err)
		}
		if len(got) != 2 || got[0].ID != "p-010" || got[1].ID != "p-002" {
			t.Fatalf("products = %+v", got)
		}
	})

	t.Run("ApplicationError", func(t *testing.T) {
		_, err := client.FetchPage(ctx, -1, 20)
		if err == nil {
			t.Fatal("expected error for negative page index")
		}
		rpcErr, ok := err.(*socketrpc.RPCError)
		if !ok || rpcErr.Code != -32602 {
			t.Fatalf("err = %#v, want invalid params", err)
		}
	})
}

func TestClientDrivesPaginator(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 60))
	defer srv.Stop()
	client := dialTest(t, sockPath)

	src := feed.SourceFunc[model.Product](func(ctx context.Context, pageIndex, pageSize int) (feed.Page[model.Product], error) {
		page, err := client.FetchPage(ctx, pageIndex, pageSize)
		return feed.Page[model.Product]{Items: page.Items, HasMore: page.HasMore}, err
	})
	p := feed.NewPaginator[model.Product](src)

	for i := 0; i < 4; i++ {
		if _, err := p.LoadNext(context.Background()); err != nil {
			t.Fatalf("LoadNext %d: %v", i, err)
		}
	}
	st := p.State()
	if len(st.Items) != 60 || st.HasMore || st.NextPageIndex != 3 {
		t.Fatalf("state = %d items, more=%v, next=%d", len(st.Items), st.HasMore, st.NextPageIndex)
	}
	if st.Items[0].Payload.ID != "p-059" || st.Items[59].Payload.ID != "p-000" {
		t.Errorf("order = %s..%s, want p-059..p-000", st.Items[0].Payload.ID, st.Items[59].Payload.ID)
	}
}

func TestCanceledContext(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 1))
	defer srv.Stop()
	client := dialTest(t, sockPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.TotalProductCount(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
	// The connection is still usable.
	if _, err := client.TotalProductCount(context.Background()); err != nil {
		t.Fatalf("TotalProductCount after cancel: %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestStartRejectsLiveSocket(t *testing.T) {
	store := newSeededStore(t, 1)
	sockPath, srv := startTestServer(t, store)
	defer srv.Stop()

	second := socketrpc.NewServer(sockPath, store)
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 1))
	srv.Stop()

	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	_, srv := startTestServer(t, newSeededStore(t, 1))
	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 1))
	client := dialTest(t, sockPath)

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.TotalProductCount(context.Background())
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}

// slowCatalog delays the first FetchPage by delay.
type slowCatalog struct {
	model.CatalogReader
	delay time.Duration
	calls atomic.Int32
}

func (s *slowCatalog) FetchPage(ctx context.Context, pageIndex, pageSize int) (model.ProductPage, error) {
	if s.calls.Add(1) == 1 {
		time.Sleep(s.delay)
	}
	return s.CatalogReader.FetchPage(ctx, pageIndex, pageSize)
}

func TestClientRecoversAfterTimedOutCall(t *testing.T) {
	slow := &slowCatalog{CatalogReader: newSeededStore(t, 30), delay: 300 * time.Millisecond}
	sockPath, srv := startTestServer(t, slow)
	defer srv.Stop()
	client := dialTest(t, sockPath)

	src := feed.WithTimeout[model.Product](feed.SourceFunc[model.Product](func(ctx context.Context, pageIndex, pageSize int) (feed.Page[model.Product], error) {
		page, err := client.FetchPage(ctx, pageIndex, pageSize)
		return feed.Page[model.Product]{Items: page.Items, HasMore: page.HasMore}, err
	}), 100*time.Millisecond)
	p := feed.NewPaginator[model.Product](src)
	ctx := context.Background()

	if _, err := p.LoadNext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first load err = %v, want deadline exceeded", err)
	}

	fetched, err := p.Retry(ctx)
	if !fetched || err != nil {
		t.Fatalf("Retry = %v, %v", fetched, err)
	}
	st := p.State()
	if len(st.Items) != 20 || st.Items[0].Payload.ID != "p-029" || st.NextPageIndex != 1 {
		t.Fatalf("state = %d items, next=%d", len(st.Items), st.NextPageIndex)
	}

	n, err := client.TotalProductCount(ctx)
	if err != nil || n != 30 {
		t.Fatalf("TotalProductCount after timeout = %d, %v", n, err)
	}
}

func TestClientSkipsStaleReplies(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "stale.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := json.NewDecoder(conn)
		enc := json.NewEncoder(conn)
		var req socketrpc.Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		enc.Encode(socketrpc.Response{JSONRPC: "2.0", ID: req.ID - 1, Result: json.RawMessage("1")})
		enc.Encode(socketrpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage("42")})
	}()

	client := dialTest(t, sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := client.TotalProductCount(ctx)
	if err != nil || n != 42 {
		t.Fatalf("TotalProductCount = %d, %v; want 42", n, err)
	}
}

func TestClientCallsFailAfterClose(t *testing.T) {
	sockPath, srv := startTestServer(t, newSeededStore(t, 1))
	defer srv.Stop()
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client.Close()
	if _, err := client.TotalProductCount(context.Background()); err == nil {
		t.Fatal("expected error after Close")
	}
}
