package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const (
	// scannerInitBufSize is the initial per-connection scanner buffer (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize caps one request line (4 MB).
	scannerMaxTokenSize = 4 * 1024 * 1024
	// requestTimeout bounds one dispatched catalog read.
	requestTimeout = 15 * time.Second
)

// Server exposes a model.CatalogReader over a Unix domain socket.
type Server struct {
	socketPath string
	store      model.CatalogReader
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a socket RPC server for store.
func NewServer(socketPath string, store model.CatalogReader) *Server {
	return &Server{
		socketPath: socketPath,
		store:      store,
		quit:       make(chan struct{}),
	}
}

// Start listens on the socket path, replacing a stale socket file.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			// Nobody is listening.
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener, waits for connections and removes the socket.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				// Transient errors (fd limit) must not end the loop.
				log.Printf("socketrpc: accept error: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			encoder.Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParseError, Message: "parse error"}})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		resp := s.dispatch(ctx, req)
		cancel()
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	result := func(v any, err error) Response {
		if err != nil {
			resp.Error = &RPCError{Code: codeApplication, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	// decode accepts empty or null params and rejects malformed JSON.
	decode := func(dst any) error {
		if len(req.Params) == 0 {
			return nil
		}
		return json.Unmarshal(req.Params, dst)
	}

	switch req.Method {
	case "FetchPage":
		var p struct {
			PageIndex int
			PageSize  int
		}
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		if _, ok := model.PageOffset(p.PageIndex, model.ClampPageSize(p.PageSize)); !ok {
			return invalidParams(fmt.Errorf("page index %d out of range", p.PageIndex))
		}
		return result(s.store.FetchPage(ctx, p.PageIndex, p.PageSize))

	case "TotalProductCount":
		return result(s.store.TotalProductCount(ctx))

	case "TopSellers":
		var p struct{ Limit int }
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		return result(s.store.TopSellers(ctx, p.Limit))

	case "TrendingProducts":
		var p struct{ Limit int }
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		return result(s.store.TrendingProducts(ctx, p.Limit))

	case "ProductsByIDs":
		var p struct{ IDs []string }
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		return result(s.store.ProductsByIDs(ctx, p.IDs))

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
